package gwd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bridge "github.com/mcubridge/gatewayd"
	"github.com/op/go-logging"
)

func errFromPanic(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

// FatalError marks an error class that bypasses the supervisor's retry
// policy entirely: the task's failure propagates and terminates the
// daemon. bridge.ErrHandshakeFatal is always wrapped in one of these by
// the handshake runner.
type FatalError struct {
	error
}

func (e *FatalError) Unwrap() error { return e.error }

func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{err}
}

func isFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// Supervisor wraps each long-lived task with a bounded-restart policy:
// exponential backoff between attempts, a "healthy long enough" reset of
// the restart counter, and a fatal-exception bypass that gives up
// immediately and surfaces the last error to the caller of Run.
type Supervisor struct {
	state  *RuntimeState
	log    *logging.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	maxRestarts int
	restartInterval time.Duration
}

func NewSupervisor(state *RuntimeState, log *logging.Logger, cfg bridge.Config) *Supervisor {
	return &Supervisor{
		state:           state,
		log:             log,
		minBackoff:      time.Duration(cfg.SupervisorMinBackoffMS) * time.Millisecond,
		maxBackoff:      time.Duration(cfg.SupervisorMaxBackoffMS) * time.Millisecond,
		maxRestarts:     cfg.SupervisorMaxRestarts,
		restartInterval: time.Duration(cfg.SupervisorRestartIntervalSeconds) * time.Second,
	}
}

// Run supervises task under name until ctx is cancelled or a fatal error is
// returned, whichever happens first. task should itself watch ctx and
// return promptly when it is cancelled.
func (sv *Supervisor) Run(ctx context.Context, name string, task func(context.Context) error) error {
	var (
		restarts int
		backoff  = sv.minBackoff
		lastErr  error
	)

	for {
		start := time.Now()
		err := sv.runOnce(task, ctx)
		ran := time.Since(start)

		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// A task returning nil voluntarily ends its supervision.
			sv.recordStats(name, restarts, "", backoff, false)
			return nil
		}

		if isFatal(err) {
			sv.recordStats(name, restarts, err.Error(), backoff, true)
			sv.log.Error("task", name, "hit a fatal error, terminating:", err)
			return err
		}

		if ran >= sv.restartInterval {
			restarts = 0
			backoff = sv.minBackoff
		}

		restarts++
		lastErr = err
		sv.recordStats(name, restarts, err.Error(), backoff, false)
		sv.log.Warning("task", name, "failed, restart", restarts, "in", backoff, ":", err)

		if sv.maxRestarts > 0 && restarts >= sv.maxRestarts {
			sv.log.Error("task", name, "exceeded max_restarts, giving up:", lastErr)
			return lastErr
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > sv.maxBackoff {
			backoff = sv.maxBackoff
		}
	}
}

func (sv *Supervisor) runOnce(task func(context.Context) error, ctx context.Context) (err error) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// RecoverToLog logs the panic and its stack trace the same way it
		// does for the teacher's connection-handler goroutines; the
		// recovered value comes back so it can be turned into a plain,
		// restart-eligible error rather than swallowed. Only errors
		// explicitly wrapped with Fatal (a named variant like
		// bridge.ErrHandshakeFatal) bypass the restart policy.
		if r := bridge.RecoverToLog(func() { err = task(ctx) }, sv.log); r != nil {
			err = errFromPanic(r)
		}
	}()
	wg.Wait()
	return
}

func (sv *Supervisor) recordStats(name string, restarts int, lastErr string, backoff time.Duration, fatal bool) {
	sv.state.RecordTaskStats(name, bridge.TaskStats{
		Restarts:       restarts,
		LastError:      lastErr,
		BackoffSeconds: backoff.Seconds(),
		Fatal:          fatal,
	})
}
