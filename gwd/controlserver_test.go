package gwd

import (
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"
)

func newTestControlServerClient(t *testing.T, cs *ControlServer) *http.Client {
	t.Helper()
	listener, err := cs.Listen()
	if err != nil {
		t.Fatal(err)
	}
	go cs.HandleControlHTTP(listener)
	t.Cleanup(func() { listener.Close() })

	return &http.Client{
		Transport: &http.Transport{
			Dial: func(_, _ string) (net.Conn, error) {
				return net.DialTimeout("unix", cs.socket, time.Second)
			},
		},
	}
}

func TestControlServerPing(t *testing.T) {
	state := NewRuntimeState(testConfig())
	log := testLogger()
	socket := filepath.Join(t.TempDir(), "gwd.sock")
	cs := NewControlServer(state, log, socket, nil)
	client := newTestControlServerClient(t, cs)

	resp, err := client.Get("http://unix/ping")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestControlServerMetricsReturnsSnapshot(t *testing.T) {
	state := NewRuntimeState(testConfig())
	log := testLogger()
	socket := filepath.Join(t.TempDir(), "gwd.sock")
	cs := NewControlServer(state, log, socket, nil)
	client := newTestControlServerClient(t, cs)

	resp, err := client.Get("http://unix/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && ct != "application/json" {
		t.Logf("content-type = %q", ct)
	}
}

func TestControlServerProcessUnknownID(t *testing.T) {
	state := NewRuntimeState(testConfig())
	log := testLogger()
	socket := filepath.Join(t.TempDir(), "gwd.sock")
	cs := NewControlServer(state, log, socket, nil)
	client := newTestControlServerClient(t, cs)

	resp, err := client.Get("http://unix/process/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestControlServerProcessMissingIDIsBadRequest(t *testing.T) {
	state := NewRuntimeState(testConfig())
	log := testLogger()
	socket := filepath.Join(t.TempDir(), "gwd.sock")
	cs := NewControlServer(state, log, socket, nil)
	client := newTestControlServerClient(t, cs)

	resp, err := client.Get("http://unix/process/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestControlServerResetInvokesCallback(t *testing.T) {
	state := NewRuntimeState(testConfig())
	log := testLogger()
	socket := filepath.Join(t.TempDir(), "gwd.sock")

	called := make(chan struct{}, 1)
	cs := NewControlServer(state, log, socket, func() { called <- struct{}{} })
	client := newTestControlServerClient(t, cs)

	resp, err := client.Post("http://unix/reset", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Error("reset callback was not invoked")
	}
}

func TestControlServerResetRejectsGET(t *testing.T) {
	state := NewRuntimeState(testConfig())
	log := testLogger()
	socket := filepath.Join(t.TempDir(), "gwd.sock")
	cs := NewControlServer(state, log, socket, func() {})
	client := newTestControlServerClient(t, cs)

	resp, err := client.Get("http://unix/reset")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
