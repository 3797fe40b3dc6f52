package bridge

import (
	"os"

	"github.com/op/go-logging"
)

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.4s} %{module} ▶ %{message}%{color:reset}`,
)

// SetupLogging wires a colored stderr backend at defaultLevel, overridable
// by the MCUBRIDGE_LOG_LEVEL environment variable. Every component receives
// the returned logger through its constructor rather than reaching for a
// package-level global.
func SetupLogging(module string, defaultLevel logging.Level) *logging.Logger {
	log := logging.MustGetLogger(module)

	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, stderrFormat)
	leveled := logging.AddModuleLevel(formatted)

	level := defaultLevel
	switch os.Getenv("MCUBRIDGE_LOG_LEVEL") {
	case "CRITICAL":
		level = logging.CRITICAL
	case "ERROR":
		level = logging.ERROR
	case "WARNING":
		level = logging.WARNING
	case "NOTICE":
		level = logging.NOTICE
	case "INFO":
		level = logging.INFO
	case "DEBUG":
		level = logging.DEBUG
	}
	leveled.SetLevel(level, module)

	logging.SetBackend(leveled)
	return log
}

// DebugLevel maps Config.DebugLogging to a logging.Level for SetupLogging.
func DebugLevel(debug bool) logging.Level {
	if debug {
		return logging.DEBUG
	}
	return logging.NOTICE
}
