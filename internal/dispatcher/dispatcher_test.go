package dispatcher

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/websoft9/sshmux/internal/cache"
	"github.com/websoft9/sshmux/internal/executor"
	"github.com/websoft9/sshmux/internal/keystore"
	"github.com/websoft9/sshmux/internal/pool"
	"github.com/websoft9/sshmux/internal/safety"
	"github.com/websoft9/sshmux/internal/session"
	"github.com/websoft9/sshmux/internal/transfer"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	p := pool.New(pool.Config{}, nil, zerolog.Nop())
	c := cache.New(16)
	gate := safety.New(false)
	keys, err := keystore.New("")
	if err != nil {
		t.Fatal(err)
	}
	return New(Deps{
		Pool:     p,
		Cache:    c,
		Gate:     gate,
		Keystore: keys,
		Executor: executor.New(p, c, gate, zerolog.Nop()),
		Transfer: transfer.New(p, zerolog.Nop()),
		Sessions: session.New(p, zerolog.Nop()),
		Log:      zerolog.Nop(),
	})
}

func TestDispatchUnknownToolIsConfigError(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "no_such_tool", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Kind != "ConfigError" {
		t.Errorf("got kind=%v, want ConfigError", err.Kind)
	}
}

func TestDispatchSSHExecuteMissingHostIsConfigError(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "ssh_execute", map[string]any{"command": "ls"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Kind != "ConfigError" {
		t.Errorf("got kind=%v, want ConfigError", err.Kind)
	}
}

func TestDispatchSSHExecuteBlockedCommandIsSafetyBlocked(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "ssh_execute", map[string]any{
		"host": "h1", "user": "root", "command": "rm -rf /",
		"credential_kind": "password", "credential_secret": "x",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Kind != "SafetyBlocked" {
		t.Errorf("got kind=%v, want SafetyBlocked", err.Kind)
	}
}

func TestDispatchDirInteractiveCloseUnknownSessionIsSessionNotFound(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "dir_interactive", map[string]any{
		"op": "close", "session_id": "no-such-session",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Kind != "SessionNotFound" {
		t.Errorf("got kind=%v, want SessionNotFound", err.Kind)
	}
}

func TestDispatchDirInteractiveUnknownOpIsConfigError(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "dir_interactive", map[string]any{"op": "list"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Kind != "ConfigError" {
		t.Errorf("got kind=%v, want ConfigError", err.Kind)
	}
}

func TestDispatchAuthStoreCredentialsThenClearCache(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "auth_store_credentials", map[string]any{
		"host": "h1", "user": "root", "kind": "password", "value": "hunter2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = d.Dispatch(context.Background(), "ssh_clear_cache", map[string]any{"host": "h1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
