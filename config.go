package bridge

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every option recognized at boot, read once from a TOML file.
// Field names follow the snake_case keys from the wire spec so the TOML tags
// below are a literal transcription, not a renaming.
type Config struct {
	SerialPort         string `toml:"serial_port"`
	SerialBaud         int    `toml:"serial_baud"`
	SerialSafeBaud     int    `toml:"serial_safe_baud"`
	SerialSharedSecret string `toml:"serial_shared_secret"`

	MQTTHost         string `toml:"mqtt_host"`
	MQTTPort         int    `toml:"mqtt_port"`
	MQTTTLS          bool   `toml:"mqtt_tls"`
	MQTTCAFile       string `toml:"mqtt_cafile"`
	MQTTCertFile     string `toml:"mqtt_certfile"`
	MQTTKeyFile      string `toml:"mqtt_keyfile"`
	MQTTTLSInsecure  bool   `toml:"mqtt_tls_insecure"`
	MQTTUser         string `toml:"mqtt_user"`
	MQTTPass         string `toml:"mqtt_pass"`
	MQTTTopic        string `toml:"mqtt_topic"`
	MQTTSpoolDir     string `toml:"mqtt_spool_dir"`
	MQTTQueueLimit   int    `toml:"mqtt_queue_limit"`
	MQTTSpoolLimit   int    `toml:"mqtt_spool_limit"`

	FileSystemRoot        string `toml:"file_system_root"`
	FileWriteMaxBytes     int    `toml:"file_write_max_bytes"`
	FileStorageQuotaBytes int64  `toml:"file_storage_quota_bytes"`
	AllowNonTmpPaths      bool   `toml:"allow_non_tmp_paths"`

	AllowedCommands       []string `toml:"allowed_commands"`
	ProcessTimeout        int      `toml:"process_timeout"`
	ProcessMaxOutputBytes int      `toml:"process_max_output_bytes"`
	ProcessMaxConcurrent  int      `toml:"process_max_concurrent"`

	ConsoleQueueLimitBytes  int `toml:"console_queue_limit_bytes"`
	MailboxQueueLimit       int `toml:"mailbox_queue_limit"`
	MailboxQueueBytesLimit  int `toml:"mailbox_queue_bytes_limit"`
	PendingPinRequestLimit  int `toml:"pending_pin_request_limit"`

	ReconnectDelay          int  `toml:"reconnect_delay"`
	StatusInterval          int  `toml:"status_interval"`
	BridgeSummaryInterval   int  `toml:"bridge_summary_interval"`
	BridgeHandshakeInterval int  `toml:"bridge_handshake_interval"`
	WatchdogEnabled         bool `toml:"watchdog_enabled"`
	WatchdogInterval        int  `toml:"watchdog_interval"`

	SerialRetryTimeout           int `toml:"serial_retry_timeout"`
	SerialResponseTimeout        int `toml:"serial_response_timeout"`
	SerialRetryAttempts          int `toml:"serial_retry_attempts"`
	SerialHandshakeMinInterval   int `toml:"serial_handshake_min_interval"`
	SerialHandshakeFatalFailures int `toml:"serial_handshake_fatal_failures"`

	SupervisorMinBackoffMS int `toml:"supervisor_min_backoff_ms"`
	SupervisorMaxBackoffMS int `toml:"supervisor_max_backoff_ms"`
	SupervisorMaxRestarts  int `toml:"supervisor_max_restarts"`
	SupervisorRestartIntervalSeconds int `toml:"supervisor_restart_interval_seconds"`

	DebugLogging bool `toml:"debug_logging"`

	ControlSocketPath string `toml:"control_socket_path"`

	AlertLogDir string `toml:"alert_log_dir"`
}

// LoadConfig reads and parses path as TOML. It does not validate; call
// Validate separately so callers can distinguish parse errors from
// precondition failures.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, newConfigError("path", "reading %s: %v", path, err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, newConfigError("toml", "parsing %s: %v", path, err)
	}
	return cfg, nil
}

// DefaultConfig returns the baseline every field falls back to before a TOML
// file is applied on top, matching the defaults implied by §6 of the design.
func DefaultConfig() Config {
	return Config{
		SerialBaud:                   115200,
		SerialSafeBaud:               9600,
		MQTTPort:                     1883,
		MQTTTopic:                    "br",
		MQTTSpoolDir:                 "/tmp/gatewayd/spool",
		MQTTQueueLimit:               64,
		MQTTSpoolLimit:               1024,
		FileSystemRoot:               "/tmp/gatewayd/files",
		FileWriteMaxBytes:            4096,
		FileStorageQuotaBytes:        1 << 20,
		ProcessTimeout:               30,
		ProcessMaxOutputBytes:        65536,
		ProcessMaxConcurrent:         4,
		ConsoleQueueLimitBytes:       8192,
		MailboxQueueLimit:            64,
		MailboxQueueBytesLimit:       65536,
		PendingPinRequestLimit:       16,
		ReconnectDelay:               3,
		StatusInterval:               30,
		BridgeSummaryInterval:        60,
		BridgeHandshakeInterval:      60,
		WatchdogInterval:             10,
		SerialRetryTimeout:           500,
		SerialResponseTimeout:        3000,
		SerialRetryAttempts:          3,
		SerialHandshakeMinInterval:   5,
		SerialHandshakeFatalFailures: 5,
		SupervisorMinBackoffMS:       250,
		SupervisorMaxBackoffMS:       30000,
		SupervisorRestartIntervalSeconds: 60,
		ControlSocketPath:            "/tmp/gatewayd/control.sock",
		AlertLogDir:                  "/tmp/gatewayd/alerts",
	}
}

// Validate enforces every boot precondition named in the design: nonempty
// topic after `//` collapse, positive intervals, secret constraints, and
// flash-protection on the two filesystem-touching paths.
func (c Config) Validate() error {
	topic := collapseSlashes(c.MQTTTopic)
	if topic == "" {
		return newConfigError("mqtt_topic", "topic is empty after collapsing repeated slashes")
	}
	if c.StatusInterval <= 0 {
		return newConfigError("status_interval", "must be > 0, got %d", c.StatusInterval)
	}
	if c.WatchdogEnabled && c.WatchdogInterval <= 0 {
		return newConfigError("watchdog_interval", "must be > 0 when watchdog_enabled, got %d", c.WatchdogInterval)
	}
	if c.SerialHandshakeFatalFailures <= 0 {
		return newConfigError("serial_handshake_fatal_failures", "must be > 0, got %d", c.SerialHandshakeFatalFailures)
	}
	if len(c.SerialSharedSecret) == 0 {
		return newConfigError("serial_shared_secret", "must not be empty")
	}
	if len(c.SerialSharedSecret) < 16 {
		return newConfigError("serial_shared_secret", "must be at least 16 bytes, got %d", len(c.SerialSharedSecret))
	}

	// mqtt_spool_dir is always required to be under a volatile path,
	// regardless of allow_non_tmp_paths.
	if !isUnderVolatilePath(c.MQTTSpoolDir) {
		return newConfigError("mqtt_spool_dir", "%q must resolve under a volatile path (e.g. /tmp, /var/run)", c.MQTTSpoolDir)
	}
	if !c.AllowNonTmpPaths && !isUnderVolatilePath(c.FileSystemRoot) {
		return newConfigError("file_system_root", "%q must resolve under a volatile path unless allow_non_tmp_paths is set", c.FileSystemRoot)
	}

	if c.ProcessMaxConcurrent <= 0 {
		return newConfigError("process_max_concurrent", "must be > 0, got %d", c.ProcessMaxConcurrent)
	}
	if c.PendingPinRequestLimit <= 0 {
		return newConfigError("pending_pin_request_limit", "must be > 0, got %d", c.PendingPinRequestLimit)
	}
	if c.MQTTQueueLimit <= 0 {
		return newConfigError("mqtt_queue_limit", "must be > 0, got %d", c.MQTTQueueLimit)
	}
	if c.MQTTSpoolLimit <= 0 {
		return newConfigError("mqtt_spool_limit", "must be > 0, got %d", c.MQTTSpoolLimit)
	}

	return nil
}

func collapseSlashes(s string) string {
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	return strings.Trim(s, "/")
}

var volatilePathPrefixes = []string{"/tmp", "/var/run", "/run", os.TempDir()}

func isUnderVolatilePath(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, prefix := range volatilePathPrefixes {
		prefixAbs, err := filepath.Abs(prefix)
		if err != nil {
			continue
		}
		if abs == prefixAbs || strings.HasPrefix(abs, prefixAbs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Timeouts derives a Timeouts value from the millisecond/second config
// fields, for components that want a time.Duration API instead of raw ints.
func (c Config) Timeouts() Timeouts {
	return Timeouts{
		Ack:                  time.Duration(c.SerialRetryTimeout) * time.Millisecond,
		Response:             time.Duration(c.SerialResponseTimeout) * time.Millisecond,
		Handshake:            time.Duration(c.SerialRetryTimeout) * time.Millisecond,
		HandshakeMinInterval: time.Duration(c.SerialHandshakeMinInterval) * time.Second,
		Reconnect:            time.Duration(c.ReconnectDelay) * time.Second,
		SpoolRetry:           10 * time.Second,
		BackoffMin:           time.Duration(c.SupervisorMinBackoffMS) * time.Millisecond,
		BackoffMax:           time.Duration(c.SupervisorMaxBackoffMS) * time.Millisecond,
	}
}
