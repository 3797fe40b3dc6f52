package gwd

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/op/go-logging"
)

// ControlServer exposes the daemon's live state to gwctl over a Unix
// socket: /ping for liveness, /metrics for the current snapshot,
// /process/<id> for one spawned host process, and /reset to request a
// serial handshake restart.
type ControlServer struct {
	state  *RuntimeState
	log    *logging.Logger
	reset  func()
	socket string
}

func NewControlServer(state *RuntimeState, log *logging.Logger, socketPath string, reset func()) *ControlServer {
	return &ControlServer{state: state, log: log, reset: reset, socket: socketPath}
}

// Listen removes any stale socket left behind by an unclean shutdown and
// binds a fresh Unix listener at the configured path.
func (cs *ControlServer) Listen() (net.Listener, error) {
	_ = os.Remove(cs.socket)
	return net.Listen("unix", cs.socket)
}

func (cs *ControlServer) HandleControlHTTP(listener net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", cs.handlePing)
	mux.HandleFunc("/metrics", cs.handleMetrics)
	mux.HandleFunc("/process/", cs.handleProcess)
	mux.HandleFunc("/reset", cs.handleReset)
	return http.Serve(listener, mux)
}

func (cs *ControlServer) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (cs *ControlServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if err := json.NewEncoder(w).Encode(cs.state.Snapshot()); err != nil {
		cs.log.Error("encoding metrics response:", err)
	}
}

// handleProcess reports the command, exit state and buffered byte counts
// for one tracked process, addressed by /process/<id>.
func (cs *ControlServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/process/")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	handle, ok := cs.state.GetProcess(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	handle.mu.Lock()
	stdoutBytes, stderrBytes := len(handle.Stdout), len(handle.Stderr)
	handle.mu.Unlock()
	resp := struct {
		Command     string `json:"command"`
		Exited      bool   `json:"exited"`
		ExitCode    int    `json:"exit_code"`
		StdoutBytes int    `json:"stdout_bytes"`
		StderrBytes int    `json:"stderr_bytes"`
	}{
		Command:     handle.Command,
		Exited:      handle.IsExited(),
		ExitCode:    handle.ExitCode,
		StdoutBytes: stdoutBytes,
		StderrBytes: stderrBytes,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		cs.log.Error("encoding process response:", err)
	}
}

func (cs *ControlServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if cs.reset != nil {
		cs.reset()
	}
	w.WriteHeader(http.StatusOK)
}
