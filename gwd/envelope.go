package gwd

import "encoding/json"

// envelope is the on-the-wire shape every publish and every inbound message
// is wrapped in, working around paho.mqtt.golang's v3.1.1-only feature set:
// ResponseTopic, CorrelationData, and arbitrary user properties have no v5
// equivalent on this client, so they travel alongside the payload inside a
// JSON envelope instead of as real MQTT v5 properties.
type envelope struct {
	Payload         []byte            `json:"payload"`
	ResponseTopic   string            `json:"response_topic,omitempty"`
	CorrelationData string            `json:"correlation_data,omitempty"`
	UserProperties  map[string]string `json:"user_properties,omitempty"`
}

func encodeEnvelope(payload []byte, meta ResponseMeta, userProps map[string]string) ([]byte, error) {
	env := envelope{
		Payload:         payload,
		ResponseTopic:   meta.ResponseTopic,
		CorrelationData: meta.CorrelationData,
		UserProperties:  userProps,
	}
	if env.UserProperties == nil {
		env.UserProperties = meta.UserProperties
	}
	return json.Marshal(env)
}

func decodeEnvelope(raw []byte) (payload []byte, meta ResponseMeta, err error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ResponseMeta{}, err
	}
	meta = ResponseMeta{
		ResponseTopic:   env.ResponseTopic,
		CorrelationData: env.CorrelationData,
		UserProperties:  env.UserProperties,
	}
	return env.Payload, meta, nil
}
