package gwd

import (
	"os"
	"sync"
	"time"

	bridge "github.com/mcubridge/gatewayd"
)

// RuntimeState is the shared substrate every component reads and updates:
// serial sync/pause flags, the MCU capability record, per-pin pending-read
// FIFOs, the in-memory datastore, the process table, spool/supervisor
// stats, and every counter published in a MetricsSnapshot. All access goes
// through the methods below; no field is exported for direct mutation.
type RuntimeState struct {
	mu sync.Mutex

	serialSynced bool
	mcuPaused    bool
	capabilities bridge.McuCapabilities

	serialCRCErrors    uint64
	serialDecodeErrors uint64
	serialReconnects   uint64

	flowSuccess  uint64
	flowFailure  uint64
	flowTimeout  uint64
	flowAttempts uint64

	compressionRatioSum   float64
	compressionRatioCount uint64

	handshakeAttempts    uint64
	handshakeFailures    uint64
	handshakeLastOutcome string
	handshakeLastCounter uint64
	lastHandshakeAt      time.Time

	mqttSpoolDegraded      bool
	mqttSpoolDegradeReason string
	mqttSpoolDroppedLimit  uint64
	mqttSpoolDepth         int
	mqttQueueDepth         int

	pendingPinOverflows uint64
	mailboxOverflows    uint64
	unexpectedStatusFrames uint64

	datastore map[string][]byte

	fileBytesWritten map[string]int64
	fileQuotaUsed    int64

	pendingPinFIFOs map[uint8]*pendingPinFIFO
	pinFIFOLimit    int

	consoleQueue *boundedQueue

	mailboxOutgoing *boundedQueue
	mailboxIncoming *boundedQueue

	processes map[string]*ProcessHandle

	supervisorTasks map[string]bridge.TaskStats

	startedAt time.Time

	alertSink func(string)
}

// NewRuntimeState constructs the shared state from the subsystems' capacity
// limits.
func NewRuntimeState(cfg bridge.Config) *RuntimeState {
	return &RuntimeState{
		datastore:        make(map[string][]byte),
		fileBytesWritten: make(map[string]int64),
		pendingPinFIFOs: make(map[uint8]*pendingPinFIFO),
		pinFIFOLimit:    cfg.PendingPinRequestLimit,
		consoleQueue:    newBoundedQueue(1<<20, cfg.ConsoleQueueLimitBytes),
		mailboxOutgoing: newBoundedQueue(cfg.MailboxQueueLimit, cfg.MailboxQueueBytesLimit),
		mailboxIncoming: newBoundedQueue(cfg.MailboxQueueLimit, cfg.MailboxQueueBytesLimit),
		processes:       make(map[string]*ProcessHandle),
		supervisorTasks: make(map[string]bridge.TaskStats),
		startedAt:       time.Now(),
	}
}

func (s *RuntimeState) SetSerialSynced(synced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serialSynced = synced
}

func (s *RuntimeState) SerialSynced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serialSynced
}

func (s *RuntimeState) SetMcuPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mcuPaused = paused
}

func (s *RuntimeState) McuPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mcuPaused
}

func (s *RuntimeState) SetCapabilities(caps bridge.McuCapabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capabilities = caps
}

func (s *RuntimeState) Capabilities() bridge.McuCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capabilities
}

func (s *RuntimeState) IncSerialCRCErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serialCRCErrors++
}

func (s *RuntimeState) IncSerialDecodeErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serialDecodeErrors++
}

func (s *RuntimeState) IncSerialReconnects() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serialReconnects++
}

func (s *RuntimeState) RecordFlowOutcome(outcome string, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flowAttempts += uint64(attempts)
	switch outcome {
	case "success":
		s.flowSuccess++
	case "timeout":
		s.flowTimeout++
	default:
		s.flowFailure++
	}
}

func (s *RuntimeState) RecordCompressionRatio(ratio float64) {
	if ratio <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compressionRatioSum += ratio
	s.compressionRatioCount++
}

func (s *RuntimeState) RecordHandshakeAttempt(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handshakeAttempts++
	s.handshakeLastOutcome = outcome
	s.lastHandshakeAt = time.Now()
	if outcome != "success" {
		s.handshakeFailures++
	}
}

func (s *RuntimeState) HandshakeCounter() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakeLastCounter
}

func (s *RuntimeState) SetHandshakeCounter(c uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handshakeLastCounter = c
}

func (s *RuntimeState) SetSpoolDegraded(degraded bool, reason string) {
	s.mu.Lock()
	wasDegraded := s.mqttSpoolDegraded
	s.mqttSpoolDegraded = degraded
	s.mqttSpoolDegradeReason = reason
	s.mu.Unlock()

	if degraded && !wasDegraded {
		s.Alert("mqtt spool degraded: " + reason)
	}
}

// SetAlertSink registers the function used by Alert to record operator-facing
// alert lines (policy denials, handshake-fatal terminations, spool
// degradation). A nil sink, the default, makes Alert a no-op.
func (s *RuntimeState) SetAlertSink(sink func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertSink = sink
}

// Alert forwards msg to the registered alert sink, if any.
func (s *RuntimeState) Alert(msg string) {
	s.mu.Lock()
	sink := s.alertSink
	s.mu.Unlock()
	if sink != nil {
		sink(msg)
	}
}

func (s *RuntimeState) IncSpoolDroppedLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mqttSpoolDroppedLimit++
}

// SetMQTTDepths is called periodically by the metrics publisher to record
// the current spool row count and outbound queue length for MetricsSnapshot.
func (s *RuntimeState) SetMQTTDepths(spoolDepth, queueDepth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mqttSpoolDepth = spoolDepth
	s.mqttQueueDepth = queueDepth
}

func (s *RuntimeState) IncPendingPinOverflows() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingPinOverflows++
}

func (s *RuntimeState) IncMailboxOverflows() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mailboxOverflows++
}

// IncUnexpectedStatusFrames counts a STATUS_ACK the flow controller could
// not match to any pending command or recently-completed one. Per policy
// these are dropped silently; they never fail a subsequent command.
func (s *RuntimeState) IncUnexpectedStatusFrames() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unexpectedStatusFrames++
}

// ReserveFileBytes records path's new size as newSize (a write replaces,
// not appends to, the tracked size for that path) and reports whether the
// resulting cumulative quota across all tracked paths stays within limit.
// On rejection, no state is changed.
func (s *RuntimeState) ReserveFileBytes(path string, newSize int64, limit int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior := s.fileBytesWritten[path]
	projected := s.fileQuotaUsed - prior + newSize
	if projected > limit {
		return false
	}
	s.fileQuotaUsed = projected
	s.fileBytesWritten[path] = newSize
	return true
}

func (s *RuntimeState) DatastorePut(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datastore[key] = value
}

func (s *RuntimeState) DatastoreGet(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.datastore[key]
	return v, ok
}

// PinFIFO returns (creating if necessary) the pending-read FIFO for pin.
func (s *RuntimeState) PinFIFO(pin uint8) *pendingPinFIFO {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.pendingPinFIFOs[pin]
	if !ok {
		f = newPendingPinFIFO(s.pinFIFOLimit)
		s.pendingPinFIFOs[pin] = f
	}
	return f
}

func (s *RuntimeState) ConsoleQueue() *boundedQueue   { return s.consoleQueue }
func (s *RuntimeState) MailboxOutgoing() *boundedQueue { return s.mailboxOutgoing }
func (s *RuntimeState) MailboxIncoming() *boundedQueue { return s.mailboxIncoming }

func (s *RuntimeState) PutProcess(id string, h *ProcessHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processes[id] = h
}

func (s *RuntimeState) GetProcess(id string) (*ProcessHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.processes[id]
	return h, ok
}

func (s *RuntimeState) RemoveProcess(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processes, id)
}

func (s *RuntimeState) RecordTaskStats(name string, stats bridge.TaskStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supervisorTasks[name] = stats
}

// Snapshot assembles the current MetricsSnapshot for publication.
func (s *RuntimeState) Snapshot() bridge.MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ratioAvg := 0.0
	if s.compressionRatioCount > 0 {
		ratioAvg = s.compressionRatioSum / float64(s.compressionRatioCount)
	}

	tasks := make(map[string]bridge.TaskStats, len(s.supervisorTasks))
	for k, v := range s.supervisorTasks {
		tasks[k] = v
	}

	return bridge.MetricsSnapshot{
		SerialSynced:           s.serialSynced,
		McuPaused:               s.mcuPaused,
		SerialCRCErrors:         s.serialCRCErrors,
		SerialDecodeErrors:      s.serialDecodeErrors,
		SerialReconnects:        s.serialReconnects,
		FlowSuccess:             s.flowSuccess,
		FlowFailure:             s.flowFailure,
		FlowTimeout:             s.flowTimeout,
		FlowAttempts:            s.flowAttempts,
		CompressionRatioAvg:     ratioAvg,
		HandshakeAttempts:       s.handshakeAttempts,
		HandshakeFailures:       s.handshakeFailures,
		HandshakeLastOutcome:    s.handshakeLastOutcome,
		MQTTSpoolDegraded:       s.mqttSpoolDegraded,
		MQTTSpoolDegradeReason:  s.mqttSpoolDegradeReason,
		MQTTSpoolDepth:          s.mqttSpoolDepth,
		MQTTSpoolDroppedLimit:   s.mqttSpoolDroppedLimit,
		MQTTQueueDepth:          s.mqttQueueDepth,
		PendingPinOverflows:     s.pendingPinOverflows,
		MailboxOverflows:        s.mailboxOverflows,
		UnexpectedStatusFrames:  s.unexpectedStatusFrames,
		SupervisorTasks:         tasks,
		UptimeSeconds:           time.Since(s.startedAt).Seconds(),
	}
}

// ProcessHandle tracks one spawned host process: bounded stdout/stderr
// buffers drained under the stdout-before-stderr fairness rule, and the
// concurrency-semaphore slot it occupies until both buffers are empty and
// the process has exited.
type ProcessHandle struct {
	mu       sync.Mutex
	Command  string
	Proc     *os.Process
	Stdout   []byte
	Stderr   []byte
	Exited   bool
	ExitCode int
	Release  func()
}

func (p *ProcessHandle) SetExited(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Exited = true
	p.ExitCode = code
}

func (p *ProcessHandle) IsExited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Exited
}

func (p *ProcessHandle) AppendStdout(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Stdout = append(p.Stdout, b...)
}

func (p *ProcessHandle) AppendStderr(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Stderr = append(p.Stderr, b...)
}

// CollectOutput drains up to maxBytes, stdout first, returning the chunk and
// whether anything was left in either buffer.
func (p *ProcessHandle) CollectOutput(maxBytes int) (chunk []byte, drained bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	remaining := maxBytes
	if len(p.Stdout) > 0 {
		n := len(p.Stdout)
		if n > remaining {
			n = remaining
		}
		chunk = append(chunk, p.Stdout[:n]...)
		p.Stdout = p.Stdout[n:]
		remaining -= n
	}
	if remaining > 0 && len(p.Stderr) > 0 {
		n := len(p.Stderr)
		if n > remaining {
			n = remaining
		}
		chunk = append(chunk, p.Stderr[:n]...)
		p.Stderr = p.Stderr[n:]
	}
	drained = len(p.Stdout) == 0 && len(p.Stderr) == 0
	return
}
