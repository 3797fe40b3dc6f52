package gwd

import (
	"encoding/binary"
	"sync"
	"time"

	bridge "github.com/mcubridge/gatewayd"
	lru "github.com/golang/groupcache/lru"
	"github.com/op/go-logging"
)

// FrameWriter is the transport-facing sink a FlowController sends frames
// through. SerialTransport implements it.
type FrameWriter interface {
	WriteFrame(commandID uint16, payload []byte, compressed bool) error
}

// FlowController serializes outbound commands one at a time: it compresses
// and writes a frame, waits for the matching STATUS_ACK, and — for commands
// with an expected *_RESP — waits for that response too. Only one command
// may be in flight; a second Send blocks on the same mutex the first holds.
type FlowController struct {
	mu          sync.Mutex
	writer      FrameWriter
	state       *RuntimeState
	log         *logging.Logger
	timeouts    bridge.Timeouts
	maxAttempts int

	pendingMu   sync.Mutex
	pendingCmd  uint16
	pendingResp uint16
	ackCh       chan struct{}
	respCh      chan []byte
	waiting     bool

	recentAcks *lru.Cache
}

// NewFlowController constructs a controller bound to writer for outbound
// frames and state for metrics. maxAttempts is the `serial_retry_attempts`
// config knob: the number of times Send will write the frame before giving
// up on a timing-out command.
func NewFlowController(writer FrameWriter, state *RuntimeState, log *logging.Logger, timeouts bridge.Timeouts, maxAttempts int) *FlowController {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &FlowController{
		writer:      writer,
		state:       state,
		log:         log,
		timeouts:    timeouts,
		maxAttempts: maxAttempts,
		recentAcks:  lru.New(256),
	}
}

// Send writes commandID/payload to the MCU, optionally RLE-compressing the
// payload first, and waits for the ACK (and, if applicable, the *_RESP
// frame). On an ACK or response timeout it retries, re-writing the frame,
// with exponential backoff starting at the ack timeout and doubling up to
// the response timeout as a cap, at most maxAttempts times. Only one Send
// may be outstanding at a time; a write failure is never retried, since it
// indicates the transport itself is broken.
func (fc *FlowController) Send(commandID uint16, payload []byte) (FlowResult, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	compressed := bridge.ShouldCompressRLE(payload)
	wirePayload := payload
	if compressed {
		wirePayload = bridge.EncodeRLE(payload)
		fc.state.RecordCompressionRatio(bridge.RLECompressionRatio(payload, wirePayload))
	}

	expectedResp, wantsResp := bridge.ExpectedResponse(commandID)

	backoff := fc.timeouts.Ack
	var lastResult FlowResult
	var lastErr error

	for attempt := 1; attempt <= fc.maxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(backoff)
			backoff *= 2
			if backoff > fc.timeouts.Response {
				backoff = fc.timeouts.Response
			}
		}

		result, err := fc.sendOnce(commandID, wirePayload, compressed, expectedResp, wantsResp)
		result.Attempts = attempt
		if err == nil || !isFlowTimeout(err) {
			fc.state.RecordFlowOutcome(outcomeFor(err), attempt)
			return result, err
		}
		lastResult, lastErr = result, err
	}

	fc.state.RecordFlowOutcome("timeout", lastResult.Attempts)
	return lastResult, lastErr
}

// sendOnce performs a single write-and-wait attempt; it does not record
// flow-outcome metrics, since the caller only knows the final attempt count
// once retries (if any) are exhausted.
func (fc *FlowController) sendOnce(commandID uint16, wirePayload []byte, compressed bool, expectedResp uint16, wantsResp bool) (FlowResult, error) {
	fc.pendingMu.Lock()
	fc.pendingCmd = commandID
	fc.pendingResp = expectedResp
	fc.ackCh = make(chan struct{}, 1)
	fc.respCh = make(chan []byte, 1)
	fc.waiting = true
	fc.pendingMu.Unlock()

	defer func() {
		fc.pendingMu.Lock()
		fc.waiting = false
		fc.pendingMu.Unlock()
	}()

	if err := fc.writer.WriteFrame(commandID, wirePayload, compressed); err != nil {
		return FlowResult{}, bridge.NewTransportError("writing frame for command %s: %v", bridge.CommandName(commandID), err)
	}

	select {
	case <-fc.ackCh:
	case <-time.After(fc.timeouts.Ack):
		return FlowResult{}, newFlowTimeoutError("ack")
	}

	if !wantsResp {
		return FlowResult{Acked: true}, nil
	}

	select {
	case resp := <-fc.respCh:
		return FlowResult{Acked: true, ResponsePayload: resp}, nil
	case <-time.After(fc.timeouts.Response):
		return FlowResult{Acked: true}, newFlowTimeoutError("response")
	}
}

// isFlowTimeout reports whether err is the timeout error sendOnce produces
// on a missed ACK or response, as opposed to a transport write failure.
func isFlowTimeout(err error) bool {
	_, ok := err.(*bridge.FlowError)
	return ok
}

func outcomeFor(err error) string {
	if err == nil {
		return "success"
	}
	return "failure"
}

// HandleFrame is called by the serial read loop for every CRC-verified,
// decompressed frame, in receive order. It intercepts STATUS_ACK and the
// currently-expected *_RESP; everything else (including STATUS_* frames
// that look like log lines) is returned to the caller for dispatch to the
// router.
func (fc *FlowController) HandleFrame(frame bridge.Frame) (consumed bool) {
	if frame.CommandID == bridge.StatusAck {
		if bridge.LooksLikeLogLine(frame.Payload) && len(frame.Payload) != 2 {
			return false
		}
		if len(frame.Payload) != 2 {
			return false
		}
		ackedCmd := binary.BigEndian.Uint16(frame.Payload)

		fc.pendingMu.Lock()
		match := fc.waiting && fc.pendingCmd == ackedCmd
		ch := fc.ackCh
		fc.pendingMu.Unlock()

		fc.pendingMu.Lock()
		_, recentlySeen := fc.recentAcks.Get(ackedCmd)
		fc.recentAcks.Add(ackedCmd, struct{}{})
		fc.pendingMu.Unlock()

		if match {
			select {
			case ch <- struct{}{}:
			default:
			}
			return true
		}
		if !recentlySeen {
			fc.state.IncUnexpectedStatusFrames()
		}
		return true
	}

	fc.pendingMu.Lock()
	match := fc.waiting && fc.pendingResp != 0 && fc.pendingResp == frame.CommandID
	ch := fc.respCh
	fc.pendingMu.Unlock()

	if match {
		select {
		case ch <- frame.Payload:
		default:
		}
		return true
	}

	return false
}

func newFlowTimeoutError(stage string) error {
	return bridge.NewFlowError("timeout", "%s timed out", stage)
}
