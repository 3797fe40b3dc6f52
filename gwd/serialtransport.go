package gwd

import (
	"context"
	"time"

	bridge "github.com/mcubridge/gatewayd"
	"github.com/op/go-logging"
	"go.bug.st/serial"
)

// FrameSink receives every CRC-verified, decompressed frame from the
// serial read loop, in receive order. HandleFrame's synchronous prologue
// must return before the next frame is dispatched; long work should be
// offloaded via BridgeContext.ScheduleBackground.
type FrameSink interface {
	HandleFrame(frame bridge.Frame) (consumed bool)
}

// SerialTransport owns the OS serial handle: it runs the read loop,
// exposes WriteFrame as the single outbound sink, and calls
// onConnected/onDisconnected hooks around reconnects.
type SerialTransport struct {
	portName     string
	baud         int
	safeBaud     int
	maxAttempts  int

	state *RuntimeState
	log   *logging.Logger
	sinks []FrameSink

	onConnected    func()
	onDisconnected func()

	// handshake, if set, runs synchronously right after connect succeeds
	// and before the port is marked synced or the read loop starts. A
	// non-nil error aborts Run and is returned to the supervisor.
	handshake func() error

	port serial.Port

	reconnectRequested chan struct{}
}

func NewSerialTransport(portName string, baud, safeBaud int, state *RuntimeState, log *logging.Logger) *SerialTransport {
	return &SerialTransport{
		portName:            portName,
		baud:                baud,
		safeBaud:            safeBaud,
		maxAttempts:         3,
		state:               state,
		log:                 log,
		reconnectRequested:  make(chan struct{}, 1),
	}
}

// RequestReconnect asks the read loop to tear down the current connection
// and let the supervisor restart Run, forcing a fresh handshake. Normally
// bound to the control server's /reset endpoint.
func (t *SerialTransport) RequestReconnect() {
	select {
	case t.reconnectRequested <- struct{}{}:
	default:
	}
}

// AddSink registers a FrameSink; sinks are tried in order and the first to
// report consumed=true stops the chain. The daemon registers the flow
// controller first and the service-component dispatcher after it.
func (t *SerialTransport) AddSink(sink FrameSink) {
	t.sinks = append(t.sinks, sink)
}

func (t *SerialTransport) OnConnected(f func())    { t.onConnected = f }
func (t *SerialTransport) OnDisconnected(f func())  { t.onDisconnected = f }

// OnHandshake registers the function run synchronously after each successful
// connect, before the port is marked synced. Normally bound to a
// HandshakeRunner's Run method.
func (t *SerialTransport) OnHandshake(f func() error) { t.handshake = f }

// Run opens the port (negotiating baud if needed) and reads frames until
// ctx is cancelled or an unrecoverable transport error occurs, in which
// case it returns an error for the supervisor to restart against.
func (t *SerialTransport) Run(ctx context.Context) error {
	if err := t.connect(ctx); err != nil {
		return bridge.NewTransportError("opening %s: %v", t.portName, err)
	}
	defer func() {
		if t.port != nil {
			t.port.Close()
		}
		t.state.SetSerialSynced(false)
		if t.onDisconnected != nil {
			t.onDisconnected()
		}
	}()

	if t.handshake != nil {
		if err := t.handshake(); err != nil {
			return err
		}
	}

	t.state.SetSerialSynced(true)
	if t.onConnected != nil {
		t.onConnected()
	}

	buf := make([]byte, 0, bridge.MaxSerialPacketBytes*2)
	read := make([]byte, 4096)
	discarding := false

	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-t.reconnectRequested:
			return bridge.NewTransportError("reconnect requested on %s", t.portName)
		default:
		}

		t.port.SetReadTimeout(500 * time.Millisecond)
		n, err := t.port.Read(read)
		if err != nil {
			return bridge.NewTransportError("reading from %s: %v", t.portName, err)
		}
		if n == 0 {
			continue
		}
		buf = append(buf, read[:n]...)

		packets, remainder, splitErr := bridge.SplitCOBSStream(buf)
		buf = remainder
		if splitErr != nil {
			t.state.IncSerialDecodeErrors()
		}

		if len(buf) > bridge.MaxSerialPacketBytes {
			discarding = true
		}
		if discarding {
			if idx := indexZero(buf); idx >= 0 {
				buf = buf[idx+1:]
				discarding = false
			} else {
				buf = nil
			}
		}

		for _, packet := range packets {
			t.dispatch(packet)
		}
	}
}

func (t *SerialTransport) dispatch(raw []byte) {
	frame, err := bridge.ParseFrame(raw)
	if err != nil {
		switch {
		case isKind(err, bridge.FrameErrCRCMismatch):
			t.state.IncSerialCRCErrors()
		default:
			t.state.IncSerialDecodeErrors()
		}
		return
	}

	for _, sink := range t.sinks {
		if sink.HandleFrame(frame) {
			return
		}
	}
}

func isKind(err error, kind string) bool {
	fe, ok := err.(*bridge.FrameError)
	return ok && fe.Kind == kind
}

func indexZero(buf []byte) int {
	for i, b := range buf {
		if b == 0 {
			return i
		}
	}
	return -1
}

// WriteFrame implements FrameWriter: builds, optionally marks compressed,
// COBS-encodes, and writes one frame plus its trailing delimiter.
func (t *SerialTransport) WriteFrame(commandID uint16, payload []byte, compressed bool) error {
	raw, err := bridge.BuildFrame(commandID, payload, compressed)
	if err != nil {
		return err
	}
	encoded := bridge.EncodeCOBS(raw)
	encoded = append(encoded, 0)
	if t.port == nil {
		return bridge.NewTransportError("serial port not connected")
	}
	_, err = t.port.Write(encoded)
	return err
}

// WriteRaw COBS-encodes and writes a pre-built frame (header+payload+CRC),
// for callers — the handshake runner — that build frames themselves rather
// than going through WriteFrame's compression path.
func (t *SerialTransport) WriteRaw(frame []byte) error {
	if t.port == nil {
		return bridge.NewTransportError("serial port not connected")
	}
	encoded := append(bridge.EncodeCOBS(frame), 0)
	_, err := t.port.Write(encoded)
	return err
}

// ReadFrame performs one synchronous read-and-decode cycle outside the main
// dispatch loop, used only during the handshake window before normal
// sink-based dispatch is active.
func (t *SerialTransport) ReadFrame(timeout time.Duration) (bridge.Frame, error) {
	if t.port == nil {
		return bridge.Frame{}, bridge.NewTransportError("serial port not connected")
	}
	t.port.SetReadTimeout(timeout)
	buf := make([]byte, 512)
	n, err := t.port.Read(buf)
	if err != nil {
		return bridge.Frame{}, err
	}
	if n == 0 {
		return bridge.Frame{}, bridge.NewTransportError("read timed out after %s", timeout)
	}
	packets, _, err := bridge.SplitCOBSStream(buf[:n])
	if err != nil {
		return bridge.Frame{}, err
	}
	if len(packets) == 0 {
		return bridge.Frame{}, bridge.NewTransportError("no complete frame within %s", timeout)
	}
	return bridge.ParseFrame(packets[0])
}

// connect opens the port, negotiating baud if configured baud differs from
// the safe baud: connect at safe baud, send CMD_SET_BAUDRATE, wait for its
// response, then reopen at the target rate. Up to 3 attempts; failure
// falls back to the safe baud rather than refusing to start.
func (t *SerialTransport) connect(ctx context.Context) error {
	mode := &serial.Mode{BaudRate: t.safeBaud}
	port, err := serial.Open(t.portName, mode)
	if err != nil {
		return err
	}
	t.port = port

	if t.baud == t.safeBaud {
		return nil
	}

	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		if t.negotiateBaud() {
			port.Close()
			mode.BaudRate = t.baud
			reopened, err := serial.Open(t.portName, mode)
			if err != nil {
				t.log.Warning("reopen at negotiated baud failed, falling back to safe baud:", err)
				mode.BaudRate = t.safeBaud
				reopened, err = serial.Open(t.portName, mode)
				if err != nil {
					return err
				}
			}
			t.port = reopened
			return nil
		}
	}

	t.log.Warning("baud negotiation failed after", t.maxAttempts, "attempts, continuing at safe baud", t.safeBaud)
	return nil
}

// negotiateBaud sends CMD_SET_BAUDRATE(new_baud) and waits briefly for
// CMD_SET_BAUDRATE_RESP. Best-effort: a real response loop is not running
// yet at this point in connect, so this performs a minimal synchronous
// write/read round trip directly against the port.
func (t *SerialTransport) negotiateBaud() bool {
	payload := make([]byte, 4)
	payload[0] = byte(t.baud >> 24)
	payload[1] = byte(t.baud >> 16)
	payload[2] = byte(t.baud >> 8)
	payload[3] = byte(t.baud)

	raw, err := bridge.BuildFrame(bridge.CmdSetBaudrate, payload, false)
	if err != nil {
		return false
	}
	encoded := append(bridge.EncodeCOBS(raw), 0)
	if _, err := t.port.Write(encoded); err != nil {
		return false
	}

	t.port.SetReadTimeout(1 * time.Second)
	buf := make([]byte, 256)
	n, err := t.port.Read(buf)
	if err != nil || n == 0 {
		return false
	}
	packets, _, err := bridge.SplitCOBSStream(buf[:n])
	if err != nil || len(packets) == 0 {
		return false
	}
	frame, err := bridge.ParseFrame(packets[0])
	return err == nil && frame.CommandID == bridge.CmdSetBaudrateResp
}
