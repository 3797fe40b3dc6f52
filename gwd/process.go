package gwd

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	bridge "github.com/mcubridge/gatewayd"
)

// ProcessComponent spawns host commands on behalf of sh/run, bounded by a
// concurrency semaphore, with output delivered through sh/poll/<pid> under
// a stdout-before-stderr fairness rule, and sh/kill/<pid> for termination.
type ProcessComponent struct {
	ctx   BridgeContext
	state *RuntimeState

	timeout        time.Duration
	maxOutputBytes int

	sem chan struct{}
}

func NewProcessComponent(ctx BridgeContext, state *RuntimeState, cfg bridge.Config) *ProcessComponent {
	return &ProcessComponent{
		ctx:            ctx,
		state:          state,
		timeout:        time.Duration(cfg.ProcessTimeout) * time.Second,
		maxOutputBytes: cfg.ProcessMaxOutputBytes,
		sem:            make(chan struct{}, cfg.ProcessMaxConcurrent),
	}
}

// HandleFrame: the process component has no from-MCU surface.
func (p *ProcessComponent) HandleFrame(frame bridge.Frame) bool { return false }

func (p *ProcessComponent) HandleMQTT(topic string, payload []byte, meta ResponseMeta) bool {
	switch {
	case topic == "sh/run":
		p.run(string(payload), meta)
		return true
	case strings.HasPrefix(topic, "sh/poll/"):
		p.poll(strings.TrimPrefix(topic, "sh/poll/"), meta)
		return true
	case strings.HasPrefix(topic, "sh/kill/"):
		p.kill(strings.TrimPrefix(topic, "sh/kill/"))
		return true
	}
	return false
}

func (p *ProcessComponent) run(command string, meta ResponseMeta) {
	if !p.ctx.IsCommandAllowed(command) {
		p.ctx.Publish("sh/response", nil, meta, map[string]string{"bridge-error": "command-not-allowed"})
		return
	}

	select {
	case p.sem <- struct{}{}:
	default:
		p.ctx.Publish("sh/response", []byte(bridge.InvalidIDSentinel), meta, map[string]string{"bridge-error": "process-concurrency-limit"})
		return
	}

	id := bridge.NewProcessID()

	fields := strings.Fields(command)
	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdoutPipe, stderrPipe bytes.Buffer
	cmd.Stdout = &stdoutPipe
	cmd.Stderr = &stderrPipe

	handle := &ProcessHandle{Command: command}
	released := sync.Once{}
	handle.Release = func() { released.Do(func() { <-p.sem }) }
	p.state.PutProcess(id, handle)

	if err := cmd.Start(); err != nil {
		handle.SetExited(-1)
		handle.AppendStderr([]byte(err.Error()))
		handle.Release()
		p.ctx.Publish("sh/response", []byte(id), meta, map[string]string{"bridge-error": "spawn-failed"})
		return
	}
	handle.Proc = cmd.Process

	p.ctx.Publish("sh/response", []byte(id), meta, nil)

	p.ctx.ScheduleBackground("process:"+id, func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()

		select {
		case <-ctx.Done():
			p.killProcessGroup(cmd.Process)
			<-done
		case <-done:
		}

		handle.AppendStdout(stdoutPipe.Bytes())
		handle.AppendStderr(stderrPipe.Bytes())
		code := 0
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		handle.SetExited(code)
	})
}

func (p *ProcessComponent) poll(pid string, meta ResponseMeta) {
	handle, ok := p.state.GetProcess(pid)
	if !ok {
		p.ctx.Publish("sh/response", nil, meta, map[string]string{"bridge-error": "unknown-pid"})
		return
	}

	headerOverhead := 16
	budget := p.maxOutputBytes
	if budget > bridge.MaxPayloadSize-headerOverhead {
		budget = bridge.MaxPayloadSize - headerOverhead
	}
	chunk, drained := handle.CollectOutput(budget)
	p.ctx.Publish("sh/response", chunk, meta, nil)

	if drained && handle.IsExited() {
		handle.Release()
		p.state.RemoveProcess(pid)
	}
}

func (p *ProcessComponent) kill(pid string) {
	handle, ok := p.state.GetProcess(pid)
	if !ok || handle.Proc == nil {
		return
	}
	p.killProcessGroup(handle.Proc)
}

// killProcessGroup signals the whole process group where supported,
// swallowing the lookup error a race against a just-exited process
// produces.
func (p *ProcessComponent) killProcessGroup(proc *os.Process) {
	if proc == nil || proc.Pid <= 0 {
		return
	}
	if err := syscall.Kill(-proc.Pid, syscall.SIGTERM); err != nil {
		_ = err // ESRCH for an already-exited process is expected, not logged
	}
}
