package gwd

import (
	bridge "github.com/mcubridge/gatewayd"
)

// MailboxComponent relays length-prefixed messages between MQTT and the
// MCU through two independently bounded queues: outgoing (gateway → MCU,
// drained on CMD_MAILBOX_READ) and incoming (MCU → MQTT, drained as each
// CMD_MAILBOX_WRITE frame arrives).
type MailboxComponent struct {
	ctx   BridgeContext
	state *RuntimeState
}

func NewMailboxComponent(ctx BridgeContext, state *RuntimeState) *MailboxComponent {
	return &MailboxComponent{ctx: ctx, state: state}
}

// HandleFrame answers the MCU's poll/read requests from the outgoing queue
// and republishes each inbound CMD_MAILBOX_WRITE to MQTT.
func (m *MailboxComponent) HandleFrame(frame bridge.Frame) bool {
	switch frame.CommandID {
	case bridge.CmdMailboxAvailable:
		resp := bridge.MailboxAvailableRespPayload{Count: uint16(m.state.MailboxOutgoing().Len())}
		if _, err := m.ctx.SendFrame(bridge.CmdMailboxAvailableResp, resp.Pack()); err != nil {
			m.ctx.Log().Warning("mailbox available response failed:", err)
		}
		return true

	case bridge.CmdMailboxRead:
		raw, ok := m.state.MailboxOutgoing().Pop()
		if !ok {
			empty := bridge.MailboxMessagePayload{}
			if _, err := m.ctx.SendFrame(bridge.CmdMailboxReadResp, empty.Pack()); err != nil {
				m.ctx.Log().Warning("mailbox empty read response failed:", err)
			}
			return true
		}
		msg := bridge.MailboxMessagePayload{Message: raw}
		if _, err := m.ctx.SendFrame(bridge.CmdMailboxReadResp, msg.Pack()); err != nil {
			// Preserve the message rather than lose it: requeue at the front
			// without disturbing byte accounting for the rest of the queue.
			m.state.MailboxOutgoing().PushFront(raw)
			m.ctx.Log().Warning("mailbox read response failed, requeued:", err)
		}
		return true

	case bridge.CmdMailboxWrite:
		msg, err := bridge.ParseMailboxMessagePayload(frame.Payload)
		if err != nil {
			m.ctx.Log().Warning("malformed mailbox write from mcu:", err)
			return true
		}
		if !m.state.MailboxIncoming().Push(msg.Message) {
			m.state.IncMailboxOverflows()
			m.ctx.Publish("mailbox/incoming_available", nil, ResponseMeta{}, map[string]string{"bridge-error": "mailbox"})
			return true
		}
		m.ctx.Publish("mailbox/incoming_available", []byte{1}, ResponseMeta{}, nil)
		m.ctx.Publish("mailbox/processed", msg.Message, ResponseMeta{}, nil)
		m.state.MailboxIncoming().Pop()
		return true
	}
	return false
}

// HandleMQTT implements mailbox/write: the payload is enqueued for the
// MCU's next CMD_MAILBOX_READ poll.
func (m *MailboxComponent) HandleMQTT(topic string, payload []byte, _ ResponseMeta) bool {
	if topic != "write" && topic != "mailbox/write" {
		return false
	}
	if !m.state.MailboxOutgoing().Push(payload) {
		m.state.IncMailboxOverflows()
		m.ctx.Publish("mailbox/outgoing_available", nil, ResponseMeta{}, map[string]string{"bridge-error": "mailbox"})
		return true
	}
	m.ctx.Publish("mailbox/outgoing_available", []byte{1}, ResponseMeta{}, nil)
	return true
}
