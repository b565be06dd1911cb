package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/pool"
)

const defaultSweepInterval = 30 * time.Second

// Registry tracks active interactive sessions and enforces idle timeouts.
// Built once and injected by constructor, per the "avoid true globals"
// design note — this is the de-globalized counterpart of a package-level
// session map.
type Registry struct {
	pool *pool.Pool
	log  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Registry bound to p and starts its idle sweeper.
func New(p *pool.Pool, log zerolog.Logger) *Registry {
	r := &Registry{
		pool:     p,
		log:      log.With().Str("component", "session_registry").Logger(),
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.sweepLoop()
	return r
}

// Open leases a Transport pinned for the session's lifetime, opens a
// persistent shell channel, and registers the session.
func (r *Registry) Open(ctx context.Context, hk pool.HostKey, cred pool.Credential, idleTTL time.Duration) (*Session, []string, error) {
	transport, warnings, err := r.pool.Lease(ctx, hk, cred)
	if err != nil {
		return nil, nil, err
	}

	shell, err := openShell(transport)
	if err != nil {
		r.pool.Destroy(transport)
		return nil, nil, errs.Wrap(errs.KindExecutionError, "open interactive shell", err).WithHost(hk.String())
	}

	id, err := newSessionID()
	if err != nil {
		_ = shell.close()
		r.pool.Release(transport)
		return nil, nil, errs.Wrap(errs.KindExecutionError, "generate session id", err).WithHost(hk.String())
	}
	if idleTTL <= 0 {
		idleTTL = 15 * time.Minute
	}

	now := time.Now()
	sess := &Session{
		ID:             id,
		HostKey:        hk,
		CreatedAt:      now,
		idleTTL:        idleTTL,
		shell:          shell,
		transport:      transport,
		lastActivityAt: now,
	}

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	return sess, warnings, nil
}

// Send writes input to the session's shell and reads available output
// within readTimeout. A concurrent send on the same session fails with
// SessionBusy; sends are otherwise serialized per session.
func (r *Registry) Send(ctx context.Context, id string, input string, readTimeout time.Duration) (string, error) {
	sess, err := r.lookup(id)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return "", errs.New(errs.KindSessionNotFound, "session is closed").WithHost(sess.HostKey.String())
	}
	if sess.busy {
		sess.mu.Unlock()
		return "", errs.New(errs.KindSessionBusy, "a send is already in progress on this session").WithHost(sess.HostKey.String())
	}
	sess.busy = true
	sess.mu.Unlock()

	defer func() {
		sess.mu.Lock()
		sess.busy = false
		sess.mu.Unlock()
	}()

	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	if err := sess.shell.write(input); err != nil {
		return "", errs.Wrap(errs.KindExecutionError, "write to session", err).WithHost(sess.HostKey.String())
	}
	out, err := sess.shell.read(ctx, readTimeout)
	if err != nil {
		return "", errs.Wrap(errs.KindExecutionError, "read from session", err).WithHost(sess.HostKey.String())
	}

	sess.mu.Lock()
	sess.lastActivityAt = time.Now()
	sess.mu.Unlock()

	return out, nil
}

// Close closes the shell channel and releases the pinned Transport back to
// the pool. Closing an already-closed or unknown session id is
// SessionNotFound.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return errs.New(errs.KindSessionNotFound, fmt.Sprintf("no such session %q", id))
	}
	return r.closeSession(sess)
}

func (r *Registry) closeSession(sess *Session) error {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil
	}
	sess.closed = true
	sess.mu.Unlock()

	err := sess.shell.close()
	r.pool.Release(sess.transport)
	return err
}

func (r *Registry) lookup(id string) (*Session, error) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.KindSessionNotFound, fmt.Sprintf("no such session %q", id))
	}
	return sess, nil
}

// Stats reports how many sessions are currently registered, for
// ssh_session_info.
func (r *Registry) Stats() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepIdle()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) sweepIdle() {
	now := time.Now()
	r.mu.Lock()
	var idle []*Session
	for id, sess := range r.sessions {
		sess.mu.Lock()
		expired := now.Sub(sess.lastActivityAt) > sess.idleTTL
		sess.mu.Unlock()
		if expired {
			idle = append(idle, sess)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, sess := range idle {
		r.log.Info().Str("session_id", sess.ID).Msg("closing idle interactive session")
		_ = r.closeSession(sess)
	}
}

// Shutdown stops the idle sweeper and closes every registered session.
func (r *Registry) Shutdown() {
	close(r.stopCh)
	r.wg.Wait()

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		_ = r.closeSession(sess)
	}
}
