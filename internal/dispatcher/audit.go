package dispatcher

import (
	"github.com/rs/zerolog"

	"github.com/websoft9/sshmux/internal/errs"
)

// Auditor records one structured log line per dispatched tool call. A
// named struct replaces the positional-argument form to avoid a
// swap-bug between similarly-typed fields.
type Auditor struct {
	log zerolog.Logger
}

// NewAuditor builds an Auditor writing through log.
func NewAuditor(log zerolog.Logger) *Auditor {
	return &Auditor{log: log.With().Str("component", "audit").Logger()}
}

// Record logs one tool call's outcome. A redacted view of args is logged —
// credential material is never written to the audit trail.
func (a *Auditor) Record(tool string, args map[string]any, ok bool, err *errs.Error) {
	event := a.log.Info()
	if !ok {
		event = a.log.Warn()
	}
	event = event.Str("tool", tool).Bool("ok", ok)
	for k, v := range redact(args) {
		event = event.Interface(k, v)
	}
	if err != nil {
		event = event.Str("error_kind", string(err.Kind)).Str("error_message", err.Message)
	}
	event.Msg("tool call")
}

var sensitiveArgKeys = map[string]bool{
	"credential_secret":     true,
	"credential_passphrase": true,
	"value":                 true,
}

func redact(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if sensitiveArgKeys[k] {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}
