package executor

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/websoft9/sshmux/internal/cache"
	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/pool"
	"github.com/websoft9/sshmux/internal/safety"
)

func TestExecuteBlockedCommandNeverLeasesTransport(t *testing.T) {
	gate := safety.New(false)
	c := cache.New(16)
	p := pool.New(pool.Config{}, nil, zerolog.Nop())
	e := New(p, c, gate, zerolog.Nop())

	_, err := e.Execute(nil, Request{
		HostKey: pool.HostKey{Host: "h1", Port: 22, User: "root"},
		Command: "rm -rf /",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if kind, ok := errs.KindOf(err); !ok || kind != errs.KindSafetyBlocked {
		t.Errorf("got kind=%v ok=%v, want SafetyBlocked", kind, ok)
	}
}

func TestShapingSpecStringStableForIdenticalSpecs(t *testing.T) {
	a := shapingSpecString(Request{}.Shaping)
	b := shapingSpecString(Request{Shaping: Request{}.Shaping}.Shaping)
	if a != b {
		t.Error("expected identical specs to produce identical strings")
	}
}

func TestAsExitErrorFalseForPlainError(t *testing.T) {
	_, ok := asExitError(errNotExit)
	if ok {
		t.Error("expected false for a non-ExitError")
	}
}

var errNotExit = errTestSentinel("boom")

type errTestSentinel string

func (e errTestSentinel) Error() string { return string(e) }
