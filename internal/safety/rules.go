package safety

import "regexp"

// blockPatterns are hard-refusal rules: recursive root deletion, filesystem
// creation, raw-device writes, fork bombs, shutdown/reboot/halt, disk wipes.
var blockPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-[rRf]+.*\s+/($|\s)`),
	regexp.MustCompile(`mkfs(\.|\s)`),
	regexp.MustCompile(`dd\s+.*of=/dev/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|\s*:\s*&\s*\}\s*;`), // fork bomb
	regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`),
	regexp.MustCompile(`\bwipefs\b`),
	regexp.MustCompile(`\bshred\b`),
}

// warnPatterns are soft rules: execution proceeds but the result carries a
// warnings entry.
var warnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`chmod\s+777`),
	regexp.MustCompile(`kill\s+-9\b`),
	regexp.MustCompile(`\b(apt|apt-get|yum|dnf|apk)\s+install\b`),
	regexp.MustCompile(`\bpip\s+install\b`),
}

// readOnlyPatterns is the allowlist-mode read-only set. In allowlist mode,
// only commands whose first token matches one of these are permitted.
var readOnlyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(ls|cat|grep|head|tail|find|stat|file|wc|diff|du|df|ps|top|uname|whoami|id|pwd|echo|which|hostname|uptime|free|env)$`),
}
