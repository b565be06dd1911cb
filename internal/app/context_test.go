package app

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/websoft9/sshmux/internal/config"
)

func TestNewBuildsFullComponentGraph(t *testing.T) {
	cfg := config.Default()
	ctx, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Pool == nil || ctx.Cache == nil || ctx.Gate == nil || ctx.Keystore == nil || ctx.Dispatcher == nil {
		t.Fatal("expected every component to be non-nil")
	}
	ctx.Shutdown(10 * time.Millisecond)
}
