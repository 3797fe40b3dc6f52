package bridge

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.SerialSharedSecret = "0123456789abcdef"
	return cfg
}

func TestConfigValidateAccepts(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestConfigValidateRejectsEmptyTopic(t *testing.T) {
	cfg := validConfig()
	cfg.MQTTTopic = "///"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a topic that collapses to empty")
	}
}

func TestConfigValidateRejectsShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.SerialSharedSecret = "short"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a shared secret under 16 bytes")
	}
}

func TestConfigValidateRejectsNonVolatileSpoolDir(t *testing.T) {
	cfg := validConfig()
	cfg.MQTTSpoolDir = "/etc/gatewayd/spool"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted mqtt_spool_dir outside a volatile path")
	}
}

func TestConfigValidateAllowsNonVolatileFileRootWhenOptedIn(t *testing.T) {
	cfg := validConfig()
	cfg.FileSystemRoot = "/srv/gatewayd/files"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted non-volatile file_system_root without allow_non_tmp_paths")
	}
	cfg.AllowNonTmpPaths = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with allow_non_tmp_paths = %v, want nil", err)
	}
}

func TestConfigValidateRejectsZeroWatchdogIntervalWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.WatchdogEnabled = true
	cfg.WatchdogInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted watchdog_interval = 0 with watchdog_enabled")
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gatewayd.toml")
	body := "serial_port = \"/dev/ttyUSB0\"\nmqtt_host = \"broker.local\"\nmqtt_port = 8883\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SerialPort != "/dev/ttyUSB0" {
		t.Errorf("SerialPort = %q, want /dev/ttyUSB0", cfg.SerialPort)
	}
	if cfg.MQTTHost != "broker.local" {
		t.Errorf("MQTTHost = %q, want broker.local", cfg.MQTTHost)
	}
	if cfg.MQTTPort != 8883 {
		t.Errorf("MQTTPort = %d, want 8883", cfg.MQTTPort)
	}
	// Fields absent from the TOML body keep DefaultConfig's values.
	if cfg.SerialBaud != 115200 {
		t.Errorf("SerialBaud = %d, want default 115200", cfg.SerialBaud)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/gatewayd.toml"); err == nil {
		t.Error("LoadConfig on a missing file unexpectedly succeeded")
	}
}

func TestTimeoutsDerivation(t *testing.T) {
	cfg := validConfig()
	timeouts := cfg.Timeouts()
	if timeouts.Ack.Milliseconds() != int64(cfg.SerialRetryTimeout) {
		t.Errorf("Ack = %v, want %dms", timeouts.Ack, cfg.SerialRetryTimeout)
	}
	if timeouts.Response.Milliseconds() != int64(cfg.SerialResponseTimeout) {
		t.Errorf("Response = %v, want %dms", timeouts.Response, cfg.SerialResponseTimeout)
	}
}
