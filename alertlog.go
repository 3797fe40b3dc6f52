package bridge

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const alertLogFileName = "gatewayd-alerts.log"

// AlertLog is an append-only, file-backed log of user-facing alerts: policy
// denials, handshake-fatal terminations, spool degradation. gwctl tails it
// to show the operator what the daemon most recently refused or dropped.
type AlertLog struct {
	*os.File
	*sync.Mutex
}

func OpenAlertLog(dir string) (a AlertLog, err error) {
	if err = os.MkdirAll(dir, 0700); err != nil {
		return
	}
	file, err := os.OpenFile(filepath.Join(dir, alertLogFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	a = AlertLog{file, &sync.Mutex{}}
	return
}

// Append writes one alert line, prefixed with its timestamp.
func (a AlertLog) Append(line string) (err error) {
	a.Lock()
	defer a.Unlock()
	_, err = a.WriteString(time.Now().UTC().Format(time.RFC3339) + " " + line + "\n")
	if err != nil {
		return
	}
	return a.Sync()
}

// AlertLogReader reads an alert log from its beginning, then picks up lines
// appended after that.
type AlertLogReader struct {
	*os.File
	lineReader *bufio.Reader
}

func OpenAlertLogReader(dir string) (r AlertLogReader, err error) {
	file, err := os.OpenFile(filepath.Join(dir, alertLogFileName), os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return
	}
	r = AlertLogReader{File: file, lineReader: bufio.NewReader(file)}
	return
}

// ReadLine blocks until a new line is appended or the deadline elapses.
func (r AlertLogReader) ReadLine(deadline time.Duration) (line string, err error) {
	elapsed := time.Duration(0)
	for {
		body, readErr := r.lineReader.ReadBytes('\n')
		if readErr == nil {
			return string(body), nil
		}
		if readErr != io.EOF {
			return "", readErr
		}
		if elapsed >= deadline {
			return "", io.EOF
		}
		step := 50 * time.Millisecond
		<-time.After(step)
		elapsed += step
	}
}
