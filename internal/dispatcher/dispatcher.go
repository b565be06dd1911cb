// Package dispatcher implements the tool registry: validating incoming
// tool-call arguments, routing to the right component, and shaping every
// outcome into the uniform result envelope.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/websoft9/sshmux/internal/cache"
	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/executor"
	"github.com/websoft9/sshmux/internal/keystore"
	"github.com/websoft9/sshmux/internal/pool"
	"github.com/websoft9/sshmux/internal/safety"
	"github.com/websoft9/sshmux/internal/session"
	"github.com/websoft9/sshmux/internal/transfer"
)

// ToolFunc handles one tool call's already-decoded arguments and returns a
// result value to be marshalled back to the client, or an error.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// Dispatcher owns the tool registry and every injected component it routes
// calls to. Built once at startup; no package-level state.
type Dispatcher struct {
	pool      *pool.Pool
	cache     *cache.Cache
	gate      *safety.Gate
	keys      *keystore.Store
	executor  *executor.Executor
	transfer  *transfer.Engine
	sessions  *session.Registry
	log       zerolog.Logger
	auditor   *Auditor

	tools map[string]ToolFunc
}

// Deps bundles the already-constructed components a Dispatcher routes to.
type Deps struct {
	Pool      *pool.Pool
	Cache     *cache.Cache
	Gate      *safety.Gate
	Keystore  *keystore.Store
	Executor  *executor.Executor
	Transfer  *transfer.Engine
	Sessions  *session.Registry
	Log       zerolog.Logger
}

// New builds a Dispatcher and registers the full 14-tool catalog.
func New(d Deps) *Dispatcher {
	disp := &Dispatcher{
		pool:     d.Pool,
		cache:    d.Cache,
		gate:     d.Gate,
		keys:     d.Keystore,
		executor: d.Executor,
		transfer: d.Transfer,
		sessions: d.Sessions,
		log:      d.Log.With().Str("component", "dispatcher").Logger(),
		auditor:  NewAuditor(d.Log),
	}
	disp.tools = disp.registry()
	return disp
}

// Dispatch routes name to its registered tool, audits the call, and always
// returns a non-nil *Error envelope on failure (never a bare Go error).
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (any, *errs.Error) {
	fn, ok := d.tools[name]
	if !ok {
		e := errs.New(errs.KindConfigError, fmt.Sprintf("unknown tool %q", name))
		d.auditor.Record(name, args, false, e)
		return nil, e
	}

	result, err := fn(ctx, args)
	if err != nil {
		envelope := asEnvelope(err)
		d.auditor.Record(name, args, false, envelope)
		return nil, envelope
	}
	d.auditor.Record(name, args, true, nil)
	return result, nil
}

func asEnvelope(err error) *errs.Error {
	if e, ok := err.(*errs.Error); ok {
		return e
	}
	return errs.Wrap(errs.KindExecutionError, "unexpected error", err)
}

func (d *Dispatcher) registry() map[string]ToolFunc {
	return map[string]ToolFunc{
		"auth_store_credentials": d.toolAuthStoreCredentials,
		"ssh_execute":            d.toolSSHExecute,
		"ssh_execute_batch":      d.toolSSHExecuteBatch,
		"ssh_execute_script":     d.toolSSHExecuteScript,
		"ssh_system_info":        d.toolSSHSystemInfo,
		"ssh_search_content":     d.toolSSHSearchContent,
		"ssh_health_check":       d.toolSSHHealthCheck,
		"ssh_session_info":       d.toolSSHSessionInfo,
		"ssh_clear_cache":        d.toolSSHClearCache,
		"file_upload":            d.toolFileUpload,
		"file_download":          d.toolFileDownload,
		"file_info":              d.toolFileInfo,
		"dir_list":               d.toolDirList,
		"dir_interactive":        d.toolDirInteractive,
	}
}
