// Package app wires every component into a single injected AppContext.
// There is deliberately no package-level registry anywhere in this
// service: every dependency a tool call needs is constructed once here
// and threaded through constructors.
package app

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/websoft9/sshmux/internal/cache"
	"github.com/websoft9/sshmux/internal/config"
	"github.com/websoft9/sshmux/internal/dispatcher"
	"github.com/websoft9/sshmux/internal/executor"
	"github.com/websoft9/sshmux/internal/keystore"
	"github.com/websoft9/sshmux/internal/pool"
	"github.com/websoft9/sshmux/internal/safety"
	"github.com/websoft9/sshmux/internal/session"
	"github.com/websoft9/sshmux/internal/transfer"
)

// Context holds every top-level component for the lifetime of one sshmux
// process: Pool, Cache, SessionRegistry, Keystore, and Dispatcher.
type Context struct {
	Config     *config.Config
	Log        zerolog.Logger
	Pool       *pool.Pool
	Cache      *cache.Cache
	Gate       *safety.Gate
	Keystore   *keystore.Store
	Executor   *executor.Executor
	Transfer   *transfer.Engine
	Sessions   *session.Registry
	Dispatcher *dispatcher.Dispatcher
}

// New builds the full component graph from cfg. keystoreResolver lets the
// Pool fall back to the keystore when a Lease call has no inline
// credential.
func New(cfg *config.Config, log zerolog.Logger) (*Context, error) {
	keys, err := keystore.New(cfg.EncryptionKeyHex)
	if err != nil {
		return nil, fmt.Errorf("app: build keystore: %w", err)
	}

	knownHostsPolicy := pool.KnownHostsPolicy(cfg.KnownHostsPolicy)

	p := pool.New(pool.Config{
		PerHostMaxConnections: cfg.PerHostMaxConnections,
		IdleTTL:               time.Duration(cfg.IdleConnectionTTLSeconds) * time.Second,
		RetryCount:            cfg.ConnectionRetryCount,
		RetryDelay:            time.Duration(cfg.ConnectionRetryDelaySeconds * float64(time.Second)),
		KnownHostsPolicy:      knownHostsPolicy,
		ConnectRatePerHost:    rate.Limit(5),
	}, keystoreResolver{keys}, log)

	c := cache.New(cfg.CacheMaxSize)
	gate := safety.New(cfg.AllowlistMode)
	exec := executor.New(p, c, gate, log)
	xfer := transfer.New(p, log)
	sessions := session.New(p, log)

	disp := dispatcher.New(dispatcher.Deps{
		Pool:     p,
		Cache:    c,
		Gate:     gate,
		Keystore: keys,
		Executor: exec,
		Transfer: xfer,
		Sessions: sessions,
		Log:      log,
	})

	return &Context{
		Config:     cfg,
		Log:        log,
		Pool:       p,
		Cache:      c,
		Gate:       gate,
		Keystore:   keys,
		Executor:   exec,
		Transfer:   xfer,
		Sessions:   sessions,
		Dispatcher: disp,
	}, nil
}

// Shutdown drains the session registry and connection pool with grace as
// the maximum wait for in-flight work to finish.
func (c *Context) Shutdown(grace time.Duration) {
	c.Sessions.Shutdown()
	c.Pool.Shutdown(grace)
}

// keystoreResolver adapts *keystore.Store to pool.CredentialResolver.
type keystoreResolver struct {
	keys *keystore.Store
}

func (r keystoreResolver) Resolve(host, user string) (pool.Credential, bool, error) {
	secret, found, err := r.keys.Get(host, user)
	if err != nil || !found {
		return pool.Credential{}, found, err
	}
	switch secret.Kind {
	case keystore.KindPassword:
		return pool.Credential{Kind: pool.CredentialPassword, Secret: secret.Value}, true, nil
	case keystore.KindPrivateKey:
		return pool.Credential{Kind: pool.CredentialPrivateKey, Secret: secret.Value}, true, nil
	default:
		return pool.Credential{}, true, fmt.Errorf("app: unsupported stored credential kind %q", secret.Kind)
	}
}
