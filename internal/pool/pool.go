// Package pool implements the per-host bounded connection pool: connection
// reuse, thundering-herd suppression on first connect, FIFO waiter queues,
// and background idle reaping.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/websoft9/sshmux/internal/errs"
)

// CredentialResolver resolves a Credential for a HostKey when the caller
// did not supply one inline — the keystore lookup step of the connect
// policy's auth chain.
type CredentialResolver interface {
	Resolve(host, user string) (Credential, bool, error)
}

// Config tunes pool-wide policy, sourced from the configuration table.
type Config struct {
	PerHostMaxConnections int
	IdleTTL               time.Duration
	ReapInterval          time.Duration
	RetryCount            int
	RetryDelay            time.Duration
	KnownHostsPolicy      KnownHostsPolicy
	KnownHostsPath        string
	// ConnectRatePerHost bounds connect attempts per HostKey per second as a
	// safety valve against retry storms; zero disables the limiter.
	ConnectRatePerHost rate.Limit
}

// connectFuture is the single-writer/many-reader rendezvous used to
// coalesce concurrent first-connect attempts for one HostKey.
type connectFuture struct {
	done      chan struct{}
	transport *Transport
	warnings  []string
	err       error
}

type hostEntry struct {
	mu       sync.Mutex
	idle     []*Transport
	active   int
	waiters  []chan waiterResult
	pending  *connectFuture
	limiter  *rate.Limiter
}

type waiterResult struct {
	transport *Transport
	err       error
}

// Pool is the per-host bounded set of authenticated SSH transports.
type Pool struct {
	cfg      Config
	log      zerolog.Logger
	resolver CredentialResolver

	mu      sync.Mutex
	hosts   map[HostKey]*hostEntry
	closed  bool
	stopCh  chan struct{}
	reapWG  sync.WaitGroup

	// dialFunc defaults to dial; overridden in tests with a counting fake to
	// verify request-coalescing produces exactly one connect attempt.
	dialFunc func(ctx context.Context, hk HostKey, cred Credential, policy KnownHostsPolicy, knownHostsPath string) (*Transport, []string, error)
}

// New builds a Pool. resolver may be nil if credentials are always supplied
// inline by callers.
func New(cfg Config, resolver CredentialResolver, log zerolog.Logger) *Pool {
	if cfg.PerHostMaxConnections <= 0 {
		cfg.PerHostMaxConnections = 5
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 300 * time.Second
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = cfg.IdleTTL / 2
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	p := &Pool{
		cfg:      cfg,
		log:      log.With().Str("component", "pool").Logger(),
		resolver: resolver,
		hosts:    make(map[HostKey]*hostEntry),
		stopCh:   make(chan struct{}),
		dialFunc: dial,
	}
	p.reapWG.Add(1)
	go p.reapLoop()
	return p
}

func (p *Pool) entryFor(hk HostKey) *hostEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.hosts[hk]
	if !ok {
		e = &hostEntry{}
		if p.cfg.ConnectRatePerHost > 0 {
			e.limiter = rate.NewLimiter(p.cfg.ConnectRatePerHost, 1)
		}
		p.hosts[hk] = e
	}
	return e
}

// Lease acquires a Transport for hk, authenticating with cred if non-zero
// or via the resolver otherwise. It implements the full lease protocol:
// idle reuse, coalesced first-connect, and FIFO waiter enqueue at quota.
func (p *Pool) Lease(ctx context.Context, hk HostKey, cred Credential) (*Transport, []string, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil, errs.New(errs.KindPoolShuttingDown, "pool is shutting down").WithHost(hk.String())
	}
	p.mu.Unlock()

	e := p.entryFor(hk)

	e.mu.Lock()
	// 1. idle reuse
	if n := len(e.idle); n > 0 {
		t := e.idle[n-1]
		e.idle = e.idle[:n-1]
		e.active++
		e.mu.Unlock()
		t.LastUsedAt = time.Now()
		return t, nil, nil
	}

	// 2. under quota: connect, coalescing with any in-flight attempt
	if e.active < p.cfg.PerHostMaxConnections {
		if e.pending != nil {
			fut := e.pending
			e.mu.Unlock()
			return p.awaitFuture(ctx, e, fut)
		}
		fut := &connectFuture{done: make(chan struct{})}
		e.pending = fut
		e.active++ // reserve a slot for the in-flight connect
		e.mu.Unlock()

		t, warnings, err := p.connectWithRetry(ctx, hk, cred, e)

		e.mu.Lock()
		e.pending = nil
		if err != nil {
			e.active--
			fut.err = err
		} else {
			fut.transport = t
			fut.warnings = warnings
		}
		e.mu.Unlock()
		close(fut.done)

		if err != nil {
			return nil, nil, err
		}
		return t, warnings, nil
	}

	// 3. quota full: enqueue FIFO
	ch := make(chan waiterResult, 1)
	e.waiters = append(e.waiters, ch)
	e.mu.Unlock()

	select {
	case <-ctx.Done():
		p.removeWaiter(e, ch)
		return nil, nil, errs.Wrap(errs.KindCancelled, "lease cancelled while queued", ctx.Err()).WithHost(hk.String())
	case r := <-ch:
		if r.err != nil {
			return nil, nil, r.err
		}
		r.transport.LastUsedAt = time.Now()
		return r.transport, nil, nil
	}
}

// awaitFuture coalesces this lease onto an in-flight connect for the same
// host. Per the pool invariant ("at most one lessee holds a given
// Transport"), the connecting goroutine keeps exclusive ownership of the
// Transport it dials; every other coalesced caller takes its turn through
// the normal FIFO release queue instead of sharing that Transport
// concurrently — so "N identical outcomes" means all N callers eventually
// lease the same Transport, serialized, not N concurrent holders of one.
func (p *Pool) awaitFuture(ctx context.Context, e *hostEntry, fut *connectFuture) (*Transport, []string, error) {
	select {
	case <-ctx.Done():
		return nil, nil, errs.Wrap(errs.KindCancelled, "lease cancelled while coalescing", ctx.Err())
	case <-fut.done:
	}
	if fut.err != nil {
		return nil, nil, fut.err
	}

	ch := make(chan waiterResult, 1)
	e.mu.Lock()
	// The connecting caller may already have released the Transport to the
	// idle set before this caller got here; take it from there in that case.
	if n := len(e.idle); n > 0 {
		t := e.idle[n-1]
		e.idle = e.idle[:n-1]
		e.active++
		e.mu.Unlock()
		t.LastUsedAt = time.Now()
		return t, fut.warnings, nil
	}
	e.waiters = append(e.waiters, ch)
	e.mu.Unlock()

	select {
	case <-ctx.Done():
		p.removeWaiter(e, ch)
		return nil, nil, errs.Wrap(errs.KindCancelled, "lease cancelled while queued", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, nil, r.err
		}
		r.transport.LastUsedAt = time.Now()
		return r.transport, fut.warnings, nil
	}
}

func (p *Pool) connectWithRetry(ctx context.Context, hk HostKey, cred Credential, e *hostEntry) (*Transport, []string, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, nil, errs.Wrap(errs.KindCancelled, "rate limiter wait", err).WithHost(hk.String())
		}
	}

	resolved, err := p.resolveCredential(hk, cred)
	if err != nil {
		return nil, nil, err
	}

	var lastErr error
	for attempt := 0; attempt < p.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, errs.Wrap(errs.KindCancelled, "connect retry cancelled", ctx.Err()).WithHost(hk.String())
			case <-time.After(p.cfg.RetryDelay):
			}
		}
		t, warnings, err := p.dialFunc(ctx, hk, resolved, p.cfg.KnownHostsPolicy, p.cfg.KnownHostsPath)
		if err == nil {
			return t, warnings, nil
		}
		lastErr = err
		kind, _ := errs.KindOf(err)
		if !errs.Retryable(kind) {
			return nil, nil, err
		}
		p.log.Warn().Err(err).Str("host", hk.String()).Int("attempt", attempt+1).Msg("connect attempt failed")
	}
	return nil, nil, lastErr
}

func (p *Pool) resolveCredential(hk HostKey, cred Credential) (Credential, error) {
	if cred.Kind != "" {
		return cred, nil
	}
	if p.resolver == nil {
		return Credential{}, errs.New(errs.KindAuthFailure, "no credential supplied and no keystore configured").WithHost(hk.String())
	}
	resolved, ok, err := p.resolver.Resolve(hk.Host, hk.User)
	if err != nil {
		return Credential{}, errs.Wrap(errs.KindAuthFailure, "keystore lookup failed", err).WithHost(hk.String())
	}
	if !ok {
		return Credential{}, errs.New(errs.KindAuthFailure, "no credential in call args or keystore").WithHost(hk.String())
	}
	return resolved, nil
}

func (p *Pool) removeWaiter(e *hostEntry, ch chan waiterResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, w := range e.waiters {
		if w == ch {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
}

// Release marks t idle and either hands it directly to the head waiter or
// returns it to the idle set.
func (p *Pool) Release(t *Transport) {
	e := p.entryFor(t.HostKey)
	e.mu.Lock()
	t.LastUsedAt = time.Now()

	if len(e.waiters) > 0 {
		ch := e.waiters[0]
		e.waiters = e.waiters[1:]
		e.mu.Unlock()
		ch <- waiterResult{transport: t}
		return
	}

	for _, existing := range e.idle {
		if existing == t {
			// Defensive: a Transport must never be released twice into the
			// same idle set, or the reaper would Close it more than once.
			p.log.Warn().Str("host", t.HostKey.String()).Msg("release: transport already idle, ignoring duplicate")
			e.mu.Unlock()
			return
		}
	}
	e.active--
	e.idle = append(e.idle, t)
	e.mu.Unlock()
}

// Destroy closes t and decrements its host's active count without
// returning it to the idle pool — used when a Transport is known to be
// unusable (connect failure, unrecoverable channel error).
func (p *Pool) Destroy(t *Transport) {
	e := p.entryFor(t.HostKey)
	e.mu.Lock()
	e.active--
	e.mu.Unlock()
	_ = t.Close()
}

// Stats reports pool occupancy for one HostKey.
type Stats struct {
	Idle    int
	Active  int
	Waiting int
	Max     int
}

func (p *Pool) Stats(hk HostKey) Stats {
	e := p.entryFor(hk)
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Idle:    len(e.idle),
		Active:  e.active,
		Waiting: len(e.waiters),
		Max:     p.cfg.PerHostMaxConnections,
	}
}

func (p *Pool) reapLoop() {
	defer p.reapWG.Done()
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapIdle()
		case <-p.stopCh:
			return
		}
	}
}

// reapIdle snapshots idle Transports under lock, then closes the expired
// ones outside the lock, per the "acquire the mutex only to snapshot"
// contract.
func (p *Pool) reapIdle() {
	p.mu.Lock()
	entries := make([]*hostEntry, 0, len(p.hosts))
	for _, e := range p.hosts {
		entries = append(entries, e)
	}
	p.mu.Unlock()

	now := time.Now()
	for _, e := range entries {
		e.mu.Lock()
		var kept, expired []*Transport
		for _, t := range e.idle {
			if now.Sub(t.LastUsedAt) > p.cfg.IdleTTL {
				expired = append(expired, t)
			} else {
				kept = append(kept, t)
			}
		}
		e.idle = kept
		e.mu.Unlock()

		for _, t := range expired {
			_ = t.Close()
		}
	}
}

// Shutdown refuses new leases, cancels waiters with PoolShuttingDown, and
// closes idle Transports immediately. For each host that still has leased
// Transports it waits for grace; it does not close in-use Transports.
func (p *Pool) Shutdown(grace time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	hosts := make([]*hostEntry, 0, len(p.hosts))
	for _, e := range p.hosts {
		hosts = append(hosts, e)
	}
	p.mu.Unlock()

	close(p.stopCh)
	p.reapWG.Wait()

	for _, e := range hosts {
		e.mu.Lock()
		for _, w := range e.waiters {
			w <- waiterResult{err: errs.New(errs.KindPoolShuttingDown, "pool is shutting down")}
		}
		e.waiters = nil
		idle := e.idle
		e.idle = nil
		hadActive := e.active > 0
		e.mu.Unlock()

		for _, t := range idle {
			_ = t.Close()
		}
		if hadActive && grace > 0 {
			time.Sleep(grace)
		}
	}
}
