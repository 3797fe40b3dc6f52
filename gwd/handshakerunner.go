package gwd

import (
	"strconv"
	"time"

	bridge "github.com/mcubridge/gatewayd"
	"github.com/op/go-logging"
)

// HandshakeRunner performs the authenticated CMD_LINK_SYNC /
// CMD_LINK_CONFIG exchange against a freshly (re)connected serial port,
// before the flow controller or router see any traffic. It rate-limits
// retries to handshakeMinInterval and counts consecutive failures toward
// serial_handshake_fatal_failures, past which it returns a FatalError.
type HandshakeRunner struct {
	port        rawPort
	state       *RuntimeState
	log         *logging.Logger
	secret      []byte
	linkConfig  bridge.LinkConfig
	minInterval time.Duration
	timeout     time.Duration
	fatalAfter  int

	consecutiveFailures int
	lastAttempt         time.Time
}

// rawPort is the minimal synchronous read/write surface HandshakeRunner
// needs from SerialTransport, kept narrow so it's trivially fakeable in
// tests.
type rawPort interface {
	WriteRaw(frame []byte) error
	ReadFrame(timeout time.Duration) (bridge.Frame, error)
}

func NewHandshakeRunner(port rawPort, state *RuntimeState, log *logging.Logger, secret []byte, linkConfig bridge.LinkConfig, minInterval, timeout time.Duration, fatalAfter int) *HandshakeRunner {
	return &HandshakeRunner{
		port:        port,
		state:       state,
		log:         log,
		secret:      secret,
		linkConfig:  linkConfig,
		minInterval: minInterval,
		timeout:     timeout,
		fatalAfter:  fatalAfter,
	}
}

// Run performs one handshake attempt, enforcing the minimum interval since
// the last attempt. On fatal exhaustion it returns a *FatalError wrapping
// bridge.ErrHandshakeFatal so the supervisor terminates the daemon.
func (h *HandshakeRunner) Run() error {
	if since := time.Since(h.lastAttempt); since < h.minInterval {
		time.Sleep(h.minInterval - since)
	}
	h.lastAttempt = time.Now()

	err := h.attempt()
	if err == nil {
		h.consecutiveFailures = 0
		h.state.RecordHandshakeAttempt("success")
		return nil
	}

	h.consecutiveFailures++
	h.state.RecordHandshakeAttempt("failure")

	if h.consecutiveFailures >= h.fatalAfter {
		h.state.Alert("handshake failed " + strconv.Itoa(h.consecutiveFailures) + " consecutive times, giving up")
		return Fatal(bridge.ErrHandshakeFatal)
	}
	return err
}

func (h *HandshakeRunner) attempt() error {
	lastCounter := h.state.HandshakeCounter()
	nonce, newCounter, err := bridge.GenerateHandshakeNonce(lastCounter)
	if err != nil {
		return bridge.NewHandshakeError(bridge.HandshakeErrMalformed, "generating nonce: %v", err)
	}

	syncRaw, err := bridge.BuildFrame(bridge.CmdLinkSync, nonce, false)
	if err != nil {
		return bridge.NewHandshakeError(bridge.HandshakeErrMalformed, "building CMD_LINK_SYNC: %v", err)
	}
	if err := h.port.WriteRaw(syncRaw); err != nil {
		return bridge.NewTransportError("writing CMD_LINK_SYNC: %v", err)
	}

	respFrame, err := h.port.ReadFrame(h.timeout)
	if err != nil {
		return bridge.NewHandshakeError(bridge.HandshakeErrMalformed, "awaiting CMD_LINK_SYNC_RESP: %v", err)
	}
	if respFrame.CommandID != bridge.CmdLinkSyncResp {
		return bridge.NewHandshakeError(bridge.HandshakeErrMalformed, "expected CMD_LINK_SYNC_RESP, got %s", bridge.CommandName(respFrame.CommandID))
	}
	if len(respFrame.Payload) != bridge.HandshakeNonceLength+bridge.HandshakeTagLength {
		return bridge.NewHandshakeError(bridge.HandshakeErrMalformed, "CMD_LINK_SYNC_RESP payload is %d bytes", len(respFrame.Payload))
	}

	echoedNonce := respFrame.Payload[:bridge.HandshakeNonceLength]
	tag := respFrame.Payload[bridge.HandshakeNonceLength:]

	ok, confirmedCounter, err := bridge.ValidateNonceCounter(echoedNonce, lastCounter)
	if err != nil {
		return bridge.NewHandshakeError(bridge.HandshakeErrMalformed, "validating echoed nonce: %v", err)
	}
	if !ok {
		return bridge.NewHandshakeError(bridge.HandshakeErrReplay, "nonce counter %d did not advance past %d", confirmedCounter, lastCounter)
	}

	if !bridge.VerifyHandshakeTag(h.secret, echoedNonce, tag) {
		return bridge.NewHandshakeError(bridge.HandshakeErrTagMismatch, "HMAC tag mismatch on CMD_LINK_SYNC_RESP")
	}

	// Only now, after the tag verifies, does the new counter get persisted —
	// a replayed response never advances state.
	h.state.SetHandshakeCounter(newCounter)

	if err := h.linkConfig.Validate(); err != nil {
		return bridge.NewHandshakeError(bridge.HandshakeErrConfigReject, "link config rejected: %v", err)
	}

	configRaw, err := bridge.BuildFrame(bridge.CmdLinkConfig, h.linkConfig.Pack(), false)
	if err != nil {
		return bridge.NewHandshakeError(bridge.HandshakeErrMalformed, "building CMD_LINK_CONFIG: %v", err)
	}
	if err := h.port.WriteRaw(configRaw); err != nil {
		return bridge.NewTransportError("writing CMD_LINK_CONFIG: %v", err)
	}

	ackFrame, err := h.port.ReadFrame(h.timeout)
	if err != nil {
		return bridge.NewHandshakeError(bridge.HandshakeErrConfigReject, "awaiting CMD_LINK_CONFIG ack: %v", err)
	}
	if ackFrame.CommandID != bridge.StatusAck && ackFrame.CommandID != bridge.CmdLinkConfigResp {
		return bridge.NewHandshakeError(bridge.HandshakeErrConfigReject, "MCU rejected link config: got %s", bridge.CommandName(ackFrame.CommandID))
	}

	return nil
}
