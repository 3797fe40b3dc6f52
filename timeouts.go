package bridge

import "time"

// Timeouts bounds every blocking wait in the system: ACK/response
// correlation in the flow controller, the handshake exchange, serial
// reconnection, and the MQTT spool's retry backoff.
type Timeouts struct {
	Ack             time.Duration
	Response        time.Duration
	Handshake       time.Duration
	HandshakeMinInterval time.Duration
	Reconnect       time.Duration
	SpoolRetry      time.Duration
	BackoffMin      time.Duration
	BackoffMax      time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Ack:                  500 * time.Millisecond,
		Response:             3 * time.Second,
		Handshake:            2 * time.Second,
		HandshakeMinInterval: 5 * time.Second,
		Reconnect:            3 * time.Second,
		SpoolRetry:           10 * time.Second,
		BackoffMin:           250 * time.Millisecond,
		BackoffMax:           30 * time.Second,
	}
}
