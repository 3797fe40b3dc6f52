package gwd

import (
	"time"

	"github.com/op/go-logging"
)

// ResponseMeta carries the MQTT v5 request/response metadata that the
// vendored v3.1.1 client cannot express natively: ResponseTopic and
// CorrelationData are folded into a JSON envelope around the payload
// instead of real v5 properties (see envelope.go). A component that
// receives a request with non-empty ResponseMeta must publish its answer
// to ResponseMeta.ResponseTopic with ResponseMeta.CorrelationData echoed
// back, rather than to its own default topic.
type ResponseMeta struct {
	ResponseTopic   string            `json:"response_topic,omitempty"`
	CorrelationData string            `json:"correlation_data,omitempty"`
	UserProperties  map[string]string `json:"user_properties,omitempty"`
}

// BridgeContext is the capability handle every service component receives:
// send a frame to the MCU, publish to MQTT, schedule background work, and
// check command authorization. Components never reach for global state —
// everything they can do to the outside world comes through this interface.
type BridgeContext interface {
	SendFrame(commandID uint16, payload []byte) (FlowResult, error)
	Publish(topic string, payload []byte, meta ResponseMeta, userProps map[string]string)
	ScheduleBackground(name string, f func())
	IsCommandAllowed(command string) bool
	Log() *logging.Logger
	Now() time.Time
}

// FlowResult is what a completed Send returns: whether the ACK (and, for
// request commands, the *_RESP frame) arrived before timing out, and the
// response payload when one was expected.
type FlowResult struct {
	Acked           bool
	ResponsePayload []byte
	Attempts        int
	FailureStatus   string
}
