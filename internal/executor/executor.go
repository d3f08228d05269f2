// Package executor runs commands on fleet hosts through the SSH session
// pool, enforcing timeouts and translating transport/exit/timeout failures
// into a small, explicit taxonomy. It never parses stdout; that is always
// the caller's job.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/observability"
	"github.com/artemis/fleetmigrate/internal/sshpool"
	"golang.org/x/crypto/ssh"
)

// Result is the captured outcome of a non-streaming Run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// RunOptions tunes a single Run call.
type RunOptions struct {
	// Timeout overrides the default ShortTimeout budget when non-zero.
	Timeout time.Duration
}

// Executor dispatches commands onto pooled SSH sessions.
type Executor struct {
	pool *sshpool.Pool
}

// New builds an Executor backed by pool.
func New(pool *sshpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// Run executes cmd on host, capturing stdout/stderr, and enforcing opts.Timeout
// (or ShortTimeout when unset) via SIGTERM-then-5s-then-SIGKILL over the SSH
// session's signal channel.
func (e *Executor) Run(ctx context.Context, host config.Host, cmd string, opts RunOptions) (Result, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = ShortTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sess, err := e.acquire(runCtx, host)
	if err != nil {
		return Result{}, err
	}

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- sess.Session.Run(cmd) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-runCtx.Done():
		killSession(sess.Session, done)
		result := Result{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}
		e.pool.Release(sess, cmd, false, runCtx.Err())
		if ctx.Err() == context.Canceled {
			return result, &CancelledError{Partial: result}
		}
		return result, &TimeoutError{Budget: timeout.String(), Partial: result}
	}

	duration := time.Since(start)
	result := Result{Stdout: stdout.String(), Stderr: stderr.String(), Duration: duration}

	if runErr == nil {
		e.pool.Release(sess, cmd, true, nil)
		return result, nil
	}

	if exitErr, ok := runErr.(*ssh.ExitError); ok {
		result.ExitCode = exitErr.ExitStatus()
		wrapped := &ExitError{Code: result.ExitCode, Stderr: result.Stderr}
		e.pool.Release(sess, cmd, false, wrapped)
		return result, wrapped
	}

	wrapped := &TransportError{Err: runErr}
	e.pool.Release(sess, cmd, false, wrapped)
	return result, wrapped
}

// Stream executes cmd on host and invokes onLine for every line of
// combined stdout, for commands whose output is large or unbounded (e.g.
// transfer progress). It honors the same timeout/kill sequence as Run.
func (e *Executor) Stream(ctx context.Context, host config.Host, cmd string, onLine func(string)) error {
	runCtx, cancel := context.WithTimeout(ctx, GeneralTimeout)
	defer cancel()

	sess, err := e.acquire(runCtx, host)
	if err != nil {
		return err
	}

	stdout, err := sess.Session.StdoutPipe()
	if err != nil {
		e.pool.Release(sess, cmd, false, err)
		return &TransportError{Err: err}
	}

	if err := sess.Session.Start(cmd); err != nil {
		e.pool.Release(sess, cmd, false, err)
		return &TransportError{Err: err}
	}

	lines := make(chan string, 64)
	scanDone := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanDone <- scanner.Err()
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- sess.Session.Wait() }()

	for {
		select {
		case line := <-lines:
			onLine(line)
		case scanErr := <-scanDone:
			// The scanner sends every line before scanDone, so whatever
			// is still buffered belongs to this command.
			for drained := false; !drained; {
				select {
				case line := <-lines:
					onLine(line)
				default:
					drained = true
				}
			}
			waitErr := <-waitDone
			if scanErr != nil && scanErr != io.EOF {
				e.pool.Release(sess, cmd, false, scanErr)
				return &TransportError{Err: scanErr}
			}
			if waitErr == nil {
				e.pool.Release(sess, cmd, true, nil)
				return nil
			}
			if exitErr, ok := waitErr.(*ssh.ExitError); ok {
				wrapped := &ExitError{Code: exitErr.ExitStatus()}
				e.pool.Release(sess, cmd, false, wrapped)
				return wrapped
			}
			wrapped := &TransportError{Err: waitErr}
			e.pool.Release(sess, cmd, false, wrapped)
			return wrapped
		case <-runCtx.Done():
			killSession(sess.Session, waitDone)
			e.pool.Release(sess, cmd, false, runCtx.Err())
			return &TimeoutError{Budget: GeneralTimeout.String()}
		}
	}
}

// acquire checks a session out of the pool, absorbing transient rate-limit
// refusals with a bounded backoff before giving up with RateLimitedError.
func (e *Executor) acquire(ctx context.Context, host config.Host) (*sshpool.Session, error) {
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		sess, err := e.pool.Acquire(ctx, host)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, sshpool.ErrRateLimited) {
			return nil, &TransportError{Err: err}
		}
		if attempt >= 3 {
			observability.RecordRetry("acquire_rate_limited", "exhausted")
			return nil, &RateLimitedError{Host: host.Hostname}
		}
		select {
		case <-ctx.Done():
			observability.RecordRetry("acquire_rate_limited", "exhausted")
			return nil, &RateLimitedError{Host: host.Hostname}
		case <-time.After(backoff):
		}
		observability.RecordRetry("acquire_rate_limited", "retried")
		backoff *= 2
	}
}

// killSession sends SIGTERM, waits killGrace for the process to exit, and
// escalates to SIGKILL if it hasn't. done is the channel the caller is
// already waiting on for process exit, so we never block twice on Wait.
func killSession(sess *ssh.Session, done chan error) {
	_ = sess.Signal(ssh.SIGTERM)
	select {
	case <-done:
		return
	case <-time.After(killGrace):
	}
	_ = sess.Signal(ssh.SIGKILL)
	_ = sess.Close()
}

// RunWithRetry retries a TransportError exactly once with a fresh session,
// matching the executor's propagation policy: transport failures get one
// retry before the error is surfaced.
func (e *Executor) RunWithRetry(ctx context.Context, host config.Host, cmd string, opts RunOptions) (Result, error) {
	result, err := e.Run(ctx, host, cmd, opts)
	if err == nil {
		return result, nil
	}
	if _, isTransport := err.(*TransportError); !isTransport {
		return result, err
	}
	observability.RecordRetry("transport", "retried")
	result, err = e.Run(ctx, host, cmd, opts)
	if err != nil {
		observability.RecordRetry("transport", "exhausted")
	}
	return result, err
}
