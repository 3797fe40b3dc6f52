package gwd

import (
	bridge "github.com/mcubridge/gatewayd"
)

// ConsoleComponent relays console bytes in both directions, respecting the
// MCU's XOFF/XON pause signal on the gateway→MCU path.
type ConsoleComponent struct {
	ctx   BridgeContext
	state *RuntimeState
}

func NewConsoleComponent(ctx BridgeContext, state *RuntimeState) *ConsoleComponent {
	return &ConsoleComponent{ctx: ctx, state: state}
}

// HandleFrame: CMD_CONSOLE_WRITE publishes to console/out; XOFF/XON flip the
// paused flag, and XON flushes anything queued while paused.
func (c *ConsoleComponent) HandleFrame(frame bridge.Frame) bool {
	switch frame.CommandID {
	case bridge.CmdConsoleWrite:
		c.ctx.Publish("console/out", frame.Payload, ResponseMeta{}, nil)
		return true
	case bridge.CmdConsoleXoff:
		c.state.SetMcuPaused(true)
		return true
	case bridge.CmdConsoleXon:
		c.state.SetMcuPaused(false)
		c.flush()
		return true
	}
	return false
}

// HandleMQTT: console/in chunks the payload into ≤MaxPayloadSize writes,
// queuing them instead of sending while the MCU has signalled XOFF.
func (c *ConsoleComponent) HandleMQTT(topic string, payload []byte, _ ResponseMeta) bool {
	if topic != "in" && topic != "console/in" {
		return false
	}

	for start := 0; start < len(payload); start += bridge.MaxPayloadSize {
		end := start + bridge.MaxPayloadSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[start:end]

		if c.state.McuPaused() {
			if !c.state.ConsoleQueue().Push(chunk) {
				c.ctx.Log().Warning("console queue saturated while mcu paused, dropping chunk")
			}
			continue
		}
		if _, err := c.ctx.SendFrame(bridge.CmdConsoleWrite, chunk); err != nil {
			c.ctx.Log().Warning("console write failed:", err)
		}
	}
	return true
}

func (c *ConsoleComponent) flush() {
	for _, chunk := range c.state.ConsoleQueue().DrainAll() {
		if _, err := c.ctx.SendFrame(bridge.CmdConsoleWrite, chunk); err != nil {
			c.ctx.Log().Warning("console flush write failed:", err)
			return
		}
	}
}
