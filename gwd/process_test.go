package gwd

import (
	"strings"
	"testing"
	"time"

	bridge "github.com/mcubridge/gatewayd"
)

func waitForExit(t *testing.T, state *RuntimeState, pid string) *ProcessHandle {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		handle, ok := state.GetProcess(pid)
		if !ok {
			t.Fatalf("process %s was removed before the test could observe its exit", pid)
		}
		if handle.IsExited() {
			return handle
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("process %s did not exit within the test deadline", pid)
	return nil
}

func TestProcessComponentRunEchoesOutput(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	p := NewProcessComponent(ctx, state, testConfig())

	p.HandleMQTT("sh/run", []byte("echo hello"), ResponseMeta{})

	sent := ctx.publishedSnapshot()
	if len(sent) != 1 {
		t.Fatalf("published %d messages for sh/run, want 1", len(sent))
	}
	pid := string(sent[0].payload)
	if pid == "" {
		t.Fatal("sh/run did not publish a process id")
	}

	waitForExit(t, state, pid)

	p.HandleMQTT("sh/poll/"+pid, nil, ResponseMeta{})
	polled := ctx.publishedSnapshot()
	if len(polled) != 2 {
		t.Fatalf("published %d messages after poll, want 2", len(polled))
	}
	if !strings.Contains(string(polled[1].payload), "hello") {
		t.Errorf("poll output = %q, want it to contain hello", polled[1].payload)
	}
}

func TestProcessComponentRunRejectsDisallowedCommand(t *testing.T) {
	ctx := newFakeBridgeContext()
	ctx.deniedCmds = map[string]bool{"rm -rf /": true}
	state := NewRuntimeState(testConfig())
	p := NewProcessComponent(ctx, state, testConfig())

	p.HandleMQTT("sh/run", []byte("rm -rf /"), ResponseMeta{})

	published := ctx.publishedSnapshot()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	if published[0].userProps["bridge-error"] != "command-not-allowed" {
		t.Errorf("bridge-error = %q, want command-not-allowed", published[0].userProps["bridge-error"])
	}
}

func TestProcessComponentRunEnforcesConcurrencyLimit(t *testing.T) {
	ctx := newFakeBridgeContext()
	cfg := testConfig()
	cfg.ProcessMaxConcurrent = 1
	cfg.ProcessTimeout = 5
	state := NewRuntimeState(cfg)
	p := NewProcessComponent(ctx, state, cfg)

	p.HandleMQTT("sh/run", []byte("sleep 1"), ResponseMeta{})
	p.HandleMQTT("sh/run", []byte("echo second"), ResponseMeta{})

	published := ctx.publishedSnapshot()
	if len(published) != 2 {
		t.Fatalf("published %d messages, want 2", len(published))
	}
	if published[1].userProps["bridge-error"] != "process-concurrency-limit" {
		t.Errorf("second run bridge-error = %q, want process-concurrency-limit", published[1].userProps["bridge-error"])
	}
	if string(published[1].payload) != bridge.InvalidIDSentinel {
		t.Errorf("second run payload = %q, want the invalid-id sentinel %q", published[1].payload, bridge.InvalidIDSentinel)
	}
}

func TestProcessComponentPollUnknownPid(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	p := NewProcessComponent(ctx, state, testConfig())

	p.HandleMQTT("sh/poll/no-such-pid", nil, ResponseMeta{})
	published := ctx.publishedSnapshot()
	if len(published) != 1 || published[0].userProps["bridge-error"] != "unknown-pid" {
		t.Fatalf("unexpected publish: %+v", published)
	}
}

func TestProcessComponentKillTerminatesRunningProcess(t *testing.T) {
	ctx := newFakeBridgeContext()
	cfg := testConfig()
	cfg.ProcessTimeout = 30
	state := NewRuntimeState(cfg)
	p := NewProcessComponent(ctx, state, cfg)

	p.HandleMQTT("sh/run", []byte("sleep 30"), ResponseMeta{})
	pid := string(ctx.publishedSnapshot()[0].payload)

	p.HandleMQTT("sh/kill/"+pid, nil, ResponseMeta{})

	handle := waitForExit(t, state, pid)
	if handle.Command != "sleep 30" {
		t.Errorf("Command = %q, want sleep 30", handle.Command)
	}
}

func TestProcessComponentHandleFrameHasNoFromMcuSurface(t *testing.T) {
	ctx := newFakeBridgeContext()
	state := NewRuntimeState(testConfig())
	p := NewProcessComponent(ctx, state, testConfig())

	if p.HandleFrame(bridge.Frame{CommandID: bridge.CmdGetVersionResp}) {
		t.Error("HandleFrame claimed a frame; process component has no from-mcu surface")
	}
}
