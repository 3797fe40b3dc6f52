package bridge

// MetricsSnapshot is the JSON body published on `<prefix>/system/metrics`
// and served on the control server's /metrics endpoint, which gwctl reads.
// It is not written to a status file. Every counter here
// is monotonic for the process lifetime; ratios and gauges are point-in-time.
type MetricsSnapshot struct {
	SerialSynced       bool   `json:"serial_synced"`
	McuPaused          bool   `json:"mcu_paused"`
	SerialCRCErrors    uint64 `json:"serial_crc_errors"`
	SerialDecodeErrors uint64 `json:"serial_decode_errors"`
	SerialReconnects   uint64 `json:"serial_reconnects"`

	FlowSuccess  uint64 `json:"flow_success"`
	FlowFailure  uint64 `json:"flow_failure"`
	FlowTimeout  uint64 `json:"flow_timeout"`
	FlowAttempts uint64 `json:"flow_attempts_total"`

	CompressionRatioAvg float64 `json:"serial_compression_ratio_avg"`

	HandshakeAttempts    uint64 `json:"handshake_attempts"`
	HandshakeFailures    uint64 `json:"handshake_failures"`
	HandshakeLastOutcome string `json:"handshake_last_outcome"`

	MQTTSpoolDegraded      bool   `json:"mqtt_spool_degraded"`
	MQTTSpoolDegradeReason string `json:"mqtt_spool_degrade_reason,omitempty"`
	MQTTSpoolDepth         int    `json:"mqtt_spool_depth"`
	MQTTSpoolDroppedLimit  uint64 `json:"mqtt_spool_dropped_limit"`
	MQTTQueueDepth         int    `json:"mqtt_queue_depth"`

	PendingPinOverflows uint64 `json:"pending_pin_overflows"`
	MailboxOverflows    uint64 `json:"mailbox_overflows"`
	UnexpectedStatusFrames uint64 `json:"unexpected_status_frames"`

	SupervisorTasks map[string]TaskStats `json:"supervisor_tasks"`

	UptimeSeconds float64 `json:"uptime_seconds"`
}

// TaskStats mirrors the supervisor's per-task bookkeeping: {restarts,
// last_error, backoff_seconds, fatal}.
type TaskStats struct {
	Restarts       int     `json:"restarts"`
	LastError      string  `json:"last_error,omitempty"`
	BackoffSeconds float64 `json:"backoff_seconds"`
	Fatal          bool    `json:"fatal"`
}

// BridgeSummary is the compact payload for `system/bridge/summary/value`,
// published every bridge_summary_interval with the bridge-snapshot=summary
// user property.
type BridgeSummary struct {
	ProtocolVersion int    `json:"protocol_version"`
	McuBoardArch    string `json:"mcu_board_arch"`
	SerialSynced    bool   `json:"serial_synced"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// BridgeHandshakeSummary is the compact payload for
// `system/bridge/handshake/value`, published every bridge_handshake_interval
// with the bridge-snapshot=handshake user property.
type BridgeHandshakeSummary struct {
	LastOutcome      string  `json:"last_outcome"`
	Attempts         uint64  `json:"attempts"`
	Failures         uint64  `json:"failures"`
	SecondsSinceLast float64 `json:"seconds_since_last"`
}

// McuCapabilities is negotiated (or assumed-default) hardware metadata used
// to bound pin indices and report CMD_GET_VERSION/board arch.
type McuCapabilities struct {
	ProtocolVersion  uint8
	BoardArch        string
	NumDigitalPins   int
	NumAnalogInputs  int
	FeatureBits      uint32
}
