package gwd

import (
	"sync"
	"time"

	"github.com/op/go-logging"

	bridge "github.com/mcubridge/gatewayd"
)

// testConfig returns a DefaultConfig with the one field Validate requires
// that has no zero-value default: a shared secret of legal length.
func testConfig() bridge.Config {
	cfg := bridge.DefaultConfig()
	cfg.SerialSharedSecret = "0123456789abcdef"
	return cfg
}

func testLogger() *logging.Logger {
	return bridge.SetupLogging("test", bridge.DebugLevel(false))
}

// publishedMessage records one call to fakeBridgeContext.Publish.
type publishedMessage struct {
	topic     string
	payload   []byte
	meta      ResponseMeta
	userProps map[string]string
}

// sentFrame records one call to fakeBridgeContext.SendFrame.
type sentFrame struct {
	commandID uint16
	payload   []byte
}

// fakeBridgeContext is a BridgeContext double for component unit tests: it
// records every outbound call instead of touching a real transport, and
// lets a test script the FlowResult each SendFrame call returns.
type fakeBridgeContext struct {
	mu sync.Mutex

	log *logging.Logger

	sent       []sentFrame
	published  []publishedMessage
	background []string

	sendResult FlowResult
	sendErr    error
	deniedCmds map[string]bool
}

func newFakeBridgeContext() *fakeBridgeContext {
	return &fakeBridgeContext{log: testLogger()}
}

func (f *fakeBridgeContext) SendFrame(commandID uint16, payload []byte) (FlowResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFrame{commandID, payload})
	return f.sendResult, f.sendErr
}

func (f *fakeBridgeContext) Publish(topic string, payload []byte, meta ResponseMeta, userProps map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{topic, payload, meta, userProps})
}

func (f *fakeBridgeContext) ScheduleBackground(name string, fn func()) {
	f.mu.Lock()
	f.background = append(f.background, name)
	f.mu.Unlock()
	go fn()
}

// sentSnapshot and publishedSnapshot give tests that exercise a real
// ScheduleBackground goroutine a race-free read of recorded calls.
func (f *fakeBridgeContext) sentSnapshot() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentFrame, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeBridgeContext) publishedSnapshot() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.published))
	copy(out, f.published)
	return out
}

func (f *fakeBridgeContext) IsCommandAllowed(command string) bool {
	if f.deniedCmds == nil {
		return true
	}
	return !f.deniedCmds[command]
}

func (f *fakeBridgeContext) Log() *logging.Logger { return f.log }

func (f *fakeBridgeContext) Now() time.Time { return time.Now() }
