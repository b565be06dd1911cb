// Package executor orchestrates a single remote command execution: safety
// classification, cache lookup, transport lease, timed execution, token
// shaping, and cache insertion.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"time"

	cryptossh "golang.org/x/crypto/ssh"

	"github.com/rs/zerolog"

	"github.com/websoft9/sshmux/internal/cache"
	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/pool"
	"github.com/websoft9/sshmux/internal/safety"
	"github.com/websoft9/sshmux/internal/shaper"
)

// CacheHint is the caller's opt-in to result caching for one call.
type CacheHint struct {
	Enabled bool
	Tier    cache.Tier
	TTL     time.Duration
}

// Result is the CommandResult the spec names: (stdout, stderr, exit-code,
// duration-ms, truncated-flag, shaping-mode-used, from-cache-flag).
type Result struct {
	Stdout       string
	Stderr       string
	ExitCode     int
	DurationMS   int64
	Truncated    bool
	ShapingMode  shaper.Mode
	FromCache    bool
	Warnings     []string
}

// Request bundles everything Execute needs for one remote command.
type Request struct {
	HostKey    pool.HostKey
	Credential pool.Credential
	Command    string
	Timeout    time.Duration
	Shaping    shaper.Spec
	Cache      CacheHint
	CacheKey   string // canonicalized command; Execute adds the host and shaping spec to form the cache key
}

const defaultCommandTimeout = 30 * time.Second

// Executor ties the Safety Gate, Result Cache, Connection Pool, and Token
// Shaper together around a single remote execution.
type Executor struct {
	pool  *pool.Pool
	cache *cache.Cache
	gate  *safety.Gate
	log   zerolog.Logger
}

// New builds an Executor from its already-constructed dependencies.
func New(p *pool.Pool, c *cache.Cache, gate *safety.Gate, log zerolog.Logger) *Executor {
	return &Executor{pool: p, cache: c, gate: gate, log: log.With().Str("component", "executor").Logger()}
}

// Execute runs req.Command on req.HostKey in this order: gate, cache
// lookup, lease, run-with-timeout, release, shape, conditional cache
// insert, return.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	verdict := e.gate.Classify(req.Command)
	if verdict.Verdict == safety.Blocked {
		return Result{}, errs.New(errs.KindSafetyBlocked, verdict.Reason).WithHost(req.HostKey.String())
	}

	key := cache.Key(req.HostKey.String(), req.CacheKey, shapingSpecString(req.Shaping))
	if req.Cache.Enabled {
		if v, ok := e.cache.Get(key); ok {
			cached := v.(Result)
			cached.FromCache = true
			return cached, nil
		}
	}

	transport, leaseWarnings, err := e.pool.Lease(ctx, req.HostKey, req.Credential)
	if err != nil {
		return Result{}, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	result, runErr := e.run(ctx, transport, req.Command, timeout)
	e.pool.Release(transport)
	if runErr != nil {
		return Result{}, runErr
	}

	stdoutShaped, err := shaper.Shape(result.Stdout, req.Shaping)
	if err != nil {
		return Result{}, errs.Wrap(errs.KindConfigError, "shape stdout", err).WithHost(req.HostKey.String())
	}
	stderrShaped, err := shaper.Shape(result.Stderr, req.Shaping)
	if err != nil {
		return Result{}, errs.Wrap(errs.KindConfigError, "shape stderr", err).WithHost(req.HostKey.String())
	}

	out := Result{
		Stdout:      stdoutShaped.Text,
		Stderr:      stderrShaped.Text,
		ExitCode:    result.ExitCode,
		DurationMS:  result.DurationMS,
		Truncated:   stdoutShaped.Truncated || stderrShaped.Truncated,
		ShapingMode: req.Shaping.Mode,
		Warnings:    leaseWarnings,
	}
	if verdict.Verdict == safety.Warn {
		out.Warnings = append(out.Warnings, verdict.Reason)
	}

	eligible := req.Cache.Enabled && out.ExitCode == 0 && verdict.Verdict != safety.Warn
	if eligible {
		e.cache.Put(key, req.HostKey.Host, out, req.Cache.Tier, req.Cache.TTL)
	}

	return out, nil
}

type rawResult struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMS int64
}

// run opens a command channel, writes the command, and reads stdout+stderr
// concurrently until EOF or timeout.
func (e *Executor) run(ctx context.Context, transport *pool.Transport, command string, timeout time.Duration) (rawResult, error) {
	sess, err := transport.Client().NewSession()
	if err != nil {
		return rawResult{}, errs.Wrap(errs.KindConnectError, "open command channel", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		_ = sess.Signal(0) // best-effort; channel close below terminates the remote process
		_ = sess.Close()
		return rawResult{}, errs.Wrap(errs.KindCancelled, "execution cancelled", ctx.Err())
	case <-timer.C:
		_ = sess.Close() // channel-close is this library's SIGTERM-equivalent
		<-done           // wait for the Run goroutine to stop writing before reading the buffers
		return rawResult{
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			DurationMS: time.Since(start).Milliseconds(),
		}, errs.New(errs.KindTimedOut, fmt.Sprintf("command exceeded %s", timeout))
	case runErr := <-done:
		duration := time.Since(start).Milliseconds()
		exitCode := 0
		if runErr != nil {
			if exitErr, ok := asExitError(runErr); ok {
				exitCode = exitErr
			} else {
				return rawResult{}, errs.Wrap(errs.KindExecutionError, "command channel disrupted", runErr)
			}
		}
		return rawResult{
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			ExitCode:   exitCode,
			DurationMS: duration,
		}, nil
	}
}

func shapingSpecString(s shaper.Spec) string {
	return fmt.Sprintf("%s|%s|%d", s.Mode, s.Regex, s.MaxTokens)
}

// asExitError extracts the remote exit code from an SSH ExitError. A
// non-ExitError failure (e.g. the channel closed unexpectedly) is not a
// command exit and must be reported as ExecutionError instead.
func asExitError(err error) (int, bool) {
	if exitErr, ok := err.(*cryptossh.ExitError); ok {
		return exitErr.ExitStatus(), true
	}
	return 0, false
}
