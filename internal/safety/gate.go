// Package safety classifies a command string as allowed, warn, or blocked
// before it ever reaches the connection pool.
package safety

import "strings"

// Verdict is the classification outcome of Classify.
type Verdict int

const (
	Allowed Verdict = iota
	Warn
	Blocked
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case Warn:
		return "warn"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Result carries the verdict plus, for Warn, the reason that triggered it
// and, for Blocked, the reason the command was refused.
type Result struct {
	Verdict Verdict
	Reason  string
}

// Gate holds the classification rules. The zero value uses the built-in
// rule sets; AllowlistMode flips the gate into read-only-only mode.
type Gate struct {
	AllowlistMode bool
}

// New builds a Gate. allowlistMode inverts policy so only read-only
// commands (per the read-only pattern set) are permitted.
func New(allowlistMode bool) *Gate {
	return &Gate{AllowlistMode: allowlistMode}
}

// Classify evaluates cmd against the gate's rule sets, case-sensitively,
// after trimming surrounding whitespace. Blocklist and warnlist patterns are
// matched anywhere in the trimmed command (so "FOO=bar rm -rf /" is
// blocked); they are not limited to the first shell token. Only allowlist
// mode isolates the first shell token, skipping leading environment
// assignments.
func (g *Gate) Classify(cmd string) Result {
	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return Result{Verdict: Allowed}
	}

	if g.AllowlistMode {
		bin := firstToken(trimmed)
		for _, re := range readOnlyPatterns {
			if re.MatchString(bin) {
				return Result{Verdict: Allowed}
			}
		}
		return Result{Verdict: Blocked, Reason: "allowlist mode: command not in read-only set"}
	}

	for _, re := range blockPatterns {
		if re.MatchString(trimmed) {
			return Result{Verdict: Blocked, Reason: "matches blocklist pattern: " + re.String()}
		}
	}
	for _, re := range warnPatterns {
		if re.MatchString(trimmed) {
			return Result{Verdict: Warn, Reason: "matches warnlist pattern: " + re.String()}
		}
	}
	return Result{Verdict: Allowed}
}

// firstToken returns the first shell token of cmd, skipping leading
// environment variable assignments of the form NAME=value.
func firstToken(cmd string) string {
	fields := strings.Fields(cmd)
	for _, f := range fields {
		if isEnvAssignment(f) {
			continue
		}
		return f
	}
	return ""
}

func isEnvAssignment(tok string) bool {
	eq := strings.IndexByte(tok, '=')
	if eq <= 0 {
		return false
	}
	name := tok[:eq]
	for i, r := range name {
		if i == 0 && !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
		if i > 0 && !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
