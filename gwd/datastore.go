package gwd

import (
	"strings"

	bridge "github.com/mcubridge/gatewayd"
)

// DatastoreComponent mirrors a small key/value cache between MQTT and the
// MCU: a put from either side updates the shared map and republishes the
// current value; a get from either side answers from the map without a
// further round trip.
type DatastoreComponent struct {
	ctx   BridgeContext
	state *RuntimeState
}

func NewDatastoreComponent(ctx BridgeContext, state *RuntimeState) *DatastoreComponent {
	return &DatastoreComponent{ctx: ctx, state: state}
}

// HandleFrame answers CMD_DATASTORE_PUT (push from MCU) by updating the map
// and republishing, and CMD_DATASTORE_GET (MCU pulling a cached key) by
// replying with CMD_DATASTORE_GET_RESP over serial.
func (d *DatastoreComponent) HandleFrame(frame bridge.Frame) bool {
	switch frame.CommandID {
	case bridge.CmdDatastorePut:
		put, err := bridge.ParseDatastorePutPayload(frame.Payload)
		if err != nil {
			d.ctx.Log().Warning("malformed datastore put from mcu:", err)
			return true
		}
		d.state.DatastorePut(put.Key, put.Value)
		d.ctx.Publish("datastore/get/"+put.Key, put.Value, ResponseMeta{}, nil)
		return true

	case bridge.CmdDatastoreGet:
		get, err := bridge.ParseDatastoreGetPayload(frame.Payload)
		if err != nil {
			d.ctx.Log().Warning("malformed datastore get from mcu:", err)
			return true
		}
		value, _ := d.state.DatastoreGet(get.Key)
		resp := bridge.DatastoreGetRespPayload{Value: truncateToPayload(value)}
		if _, err := d.ctx.SendFrame(bridge.CmdDatastoreGetResp, resp.Pack()); err != nil {
			d.ctx.Log().Warning("datastore get response failed:", err)
		}
		return true
	}
	return false
}

// HandleMQTT implements datastore/put/<key> and datastore/get/<key>: both
// are answered from the shared in-memory map; put additionally forwards
// the value to the MCU so its own cache (if any) stays consistent.
func (d *DatastoreComponent) HandleMQTT(topic string, payload []byte, meta ResponseMeta) bool {
	switch {
	case strings.HasPrefix(topic, "datastore/put/"):
		key := strings.TrimPrefix(topic, "datastore/put/")
		d.state.DatastorePut(key, payload)
		d.ctx.Publish("datastore/get/"+key, payload, ResponseMeta{}, nil)

		put := bridge.DatastorePutPayload{Key: key, Value: truncateToPayload(payload)}
		if len(put.Pack()) <= bridge.MaxPayloadSize {
			if _, err := d.ctx.SendFrame(bridge.CmdDatastorePut, put.Pack()); err != nil {
				d.ctx.Log().Warning("forwarding datastore put to mcu failed:", err)
			}
		}
		return true

	case strings.HasPrefix(topic, "datastore/get/"):
		key := strings.TrimPrefix(topic, "datastore/get/")
		value, _ := d.state.DatastoreGet(key)
		replyTopic := meta.ResponseTopic
		if replyTopic == "" {
			replyTopic = "datastore/get/" + key
		}
		d.ctx.Publish(replyTopic, value, meta, nil)
		return true
	}
	return false
}

func truncateToPayload(value []byte) []byte {
	if len(value) > bridge.MaxPayloadSize-1 {
		return value[:bridge.MaxPayloadSize-1]
	}
	return value
}
