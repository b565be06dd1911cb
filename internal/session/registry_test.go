package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/pool"
)

func TestCloseUnknownSessionIsSessionNotFound(t *testing.T) {
	r := New(pool.New(pool.Config{}, nil, zerolog.Nop()), zerolog.Nop())
	defer r.Shutdown()

	err := r.Close("does-not-exist")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind, ok := errs.KindOf(err); !ok || kind != errs.KindSessionNotFound {
		t.Errorf("got kind=%v ok=%v, want SessionNotFound", kind, ok)
	}
}

func TestSendOnClosedSessionIsSessionNotFound(t *testing.T) {
	r := New(pool.New(pool.Config{}, nil, zerolog.Nop()), zerolog.Nop())
	defer r.Shutdown()

	hk := pool.HostKey{Host: "h1", Port: 22, User: "root"}
	sess := &Session{ID: "abc", HostKey: hk, CreatedAt: time.Now(), idleTTL: time.Minute, closed: true}
	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	_, err := r.Send(nil, "abc", "ls\n", time.Second)
	if err == nil {
		t.Fatal("expected error for closed session")
	}
	if kind, ok := errs.KindOf(err); !ok || kind != errs.KindSessionNotFound {
		t.Errorf("got kind=%v ok=%v, want SessionNotFound", kind, ok)
	}
}

func TestSendBusySessionIsSessionBusy(t *testing.T) {
	r := New(pool.New(pool.Config{}, nil, zerolog.Nop()), zerolog.Nop())
	defer r.Shutdown()

	hk := pool.HostKey{Host: "h1", Port: 22, User: "root"}
	sess := &Session{ID: "abc", HostKey: hk, CreatedAt: time.Now(), idleTTL: time.Minute, busy: true}
	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	_, err := r.Send(nil, "abc", "ls\n", time.Second)
	if err == nil {
		t.Fatal("expected error for busy session")
	}
	if kind, ok := errs.KindOf(err); !ok || kind != errs.KindSessionBusy {
		t.Errorf("got kind=%v ok=%v, want SessionBusy", kind, ok)
	}
}

func TestSessionIDsAreUniqueAndNotReused(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := newSessionID()
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = true
	}
}
