package gwd

import (
	"strconv"
	"strings"

	bridge "github.com/mcubridge/gatewayd"
)

// PinComponent implements digital and analog pin I/O: writes forward
// directly to the MCU, reads enqueue a PendingPinRequest and are answered
// when the matching *_READ_RESP frame arrives.
type PinComponent struct {
	ctx   BridgeContext
	state *RuntimeState
}

func NewPinComponent(ctx BridgeContext, state *RuntimeState) *PinComponent {
	return &PinComponent{ctx: ctx, state: state}
}

// HandleFrame answers the oldest pending read for the responding pin.
// Digital and analog reads of the same pin share one FIFO, so the FIFO is
// not separated by kind.
func (p *PinComponent) HandleFrame(frame bridge.Frame) bool {
	switch frame.CommandID {
	case bridge.CmdDigitalReadResp, bridge.CmdAnalogReadResp:
		resp, err := bridge.ParsePinReadRespPayload(frame.Payload)
		if err != nil {
			p.ctx.Log().Warning("malformed pin read response:", err)
			return true
		}
		fifo := p.state.PinFIFO(resp.Pin)
		req, ok := fifo.Pop()
		if !ok {
			p.ctx.Log().Debug("pin read response with no pending requester for pin", resp.Pin)
			return true
		}
		kindPath := "d"
		if frame.CommandID == bridge.CmdAnalogReadResp {
			kindPath = "a"
		}
		topic := req.ReplyTopic
		if topic == "" {
			topic = kindPath + "/" + strconv.Itoa(int(resp.Pin)) + "/value"
		}
		p.ctx.Publish(topic, resp.Value, req.ResponseMeta, nil)
		return true
	}
	return false
}

// HandleMQTT implements the d/<pin>[/read|/mode] and a/<pin>[/read] surface.
func (p *PinComponent) HandleMQTT(topic string, payload []byte, meta ResponseMeta) bool {
	segs := strings.Split(strings.Trim(topic, "/"), "/")
	if len(segs) < 2 {
		return false
	}
	analog := segs[0] == "a"
	pin64, err := strconv.ParseUint(segs[1], 10, 8)
	if err != nil {
		p.ctx.Log().Warning("pin topic with non-numeric pin:", topic)
		return true
	}
	pin := uint8(pin64)

	if !p.validatePinAccess(pin, analog) {
		p.ctx.Publish(topic, nil, meta, map[string]string{"bridge-error": "pin-out-of-range"})
		return true
	}

	switch {
	case len(segs) >= 3 && segs[2] == "mode":
		return p.handleMode(pin, payload)
	case len(segs) >= 3 && segs[2] == "read":
		return p.handleRead(pin, analog, meta)
	default:
		return p.handleWrite(pin, analog, payload)
	}
}

func (p *PinComponent) validatePinAccess(pin uint8, analog bool) bool {
	caps := p.state.Capabilities()
	if caps.NumDigitalPins == 0 && caps.NumAnalogInputs == 0 {
		return true // capabilities not yet negotiated; don't block boot-time traffic
	}
	if analog {
		return int(pin) < caps.NumAnalogInputs
	}
	return int(pin) < caps.NumDigitalPins
}

func (p *PinComponent) handleWrite(pin uint8, analog bool, payload []byte) bool {
	value, err := strconv.ParseUint(strings.TrimSpace(string(payload)), 10, 8)
	if err != nil {
		p.ctx.Log().Warning("pin write with non-numeric value:", string(payload))
		return true
	}
	cmd := bridge.CmdDigitalWrite
	if analog {
		cmd = bridge.CmdAnalogWrite
	}
	wp := bridge.PinWritePayload{Pin: pin, Value: uint8(value)}
	if _, err := p.ctx.SendFrame(cmd, wp.Pack()); err != nil {
		p.ctx.Log().Warning("pin write failed:", err)
	}
	return true
}

func (p *PinComponent) handleRead(pin uint8, analog bool, meta ResponseMeta) bool {
	fifo := p.state.PinFIFO(pin)
	if !fifo.Push(PendingPinRequest{Pin: pin, ReplyTopic: meta.ResponseTopic, ResponseMeta: meta}) {
		p.state.IncPendingPinOverflows()
		kindPath := "d"
		if analog {
			kindPath = "a"
		}
		p.ctx.Publish(kindPath+"/"+strconv.Itoa(int(pin))+"/value", nil, meta, map[string]string{"bridge-error": "pending-pin-overflow"})
		return true
	}
	cmd := bridge.CmdDigitalRead
	if analog {
		cmd = bridge.CmdAnalogRead
	}
	rp := bridge.PinReadPayload{Pin: pin}
	if _, err := p.ctx.SendFrame(cmd, rp.Pack()); err != nil {
		fifo.Pop()
		p.ctx.Log().Warning("pin read failed:", err)
	}
	return true
}

func (p *PinComponent) handleMode(pin uint8, payload []byte) bool {
	mode, err := strconv.ParseUint(strings.TrimSpace(string(payload)), 10, 8)
	if err != nil {
		p.ctx.Log().Warning("pin mode with non-numeric mode:", string(payload))
		return true
	}
	mp := bridge.SetPinModePayload{Pin: pin, Mode: uint8(mode)}
	if _, err := p.ctx.SendFrame(bridge.CmdSetPinMode, mp.Pack()); err != nil {
		p.ctx.Log().Warning("set pin mode failed:", err)
	}
	return true
}
