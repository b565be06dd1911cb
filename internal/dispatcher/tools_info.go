package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/websoft9/sshmux/internal/executor"
	"github.com/websoft9/sshmux/internal/shaper"
)

// systemInfoCommand gathers a compact host snapshot in one round trip:
// kernel/release, uptime, memory, and disk usage, mirroring what a
// /proc-reading resource sampler would report for a local process.
const systemInfoCommand = `uname -a; echo ---; uptime; echo ---; free -m; echo ---; df -h`

func (d *Dispatcher) toolSSHSystemInfo(ctx context.Context, args map[string]any) (any, error) {
	h, err := decodeHostArgs(args)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolveCredential(h, args)
	if err != nil {
		return nil, err
	}
	return d.executor.Execute(ctx, executor.Request{
		HostKey:    h.hostKey(),
		Credential: cred,
		Command:    systemInfoCommand,
		Timeout:    10 * time.Second,
		Shaping:    shaper.Spec{Mode: shaper.Full},
		CacheKey:   systemInfoCommand,
	})
}

func (d *Dispatcher) toolSSHSearchContent(ctx context.Context, args map[string]any) (any, error) {
	h, err := decodeHostArgs(args)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolveCredential(h, args)
	if err != nil {
		return nil, err
	}
	pattern, err := requireString(args, "pattern")
	if err != nil {
		return nil, err
	}
	path := optionalString(args, "path", ".")
	recursive := optionalBool(args, "recursive", true)

	flag := "-n"
	if recursive {
		flag = "-rn"
	}
	command := fmt.Sprintf("grep %s -- %q %q", flag, pattern, path)

	return d.executor.Execute(ctx, executor.Request{
		HostKey:    h.hostKey(),
		Credential: cred,
		Command:    command,
		Timeout:    time.Duration(optionalInt(args, "timeout_seconds", 30)) * time.Second,
		Shaping:    decodeShapingSpec(args),
		CacheKey:   command,
	})
}

func (d *Dispatcher) toolSSHHealthCheck(ctx context.Context, args map[string]any) (any, error) {
	h, err := decodeHostArgs(args)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolveCredential(h, args)
	if err != nil {
		return nil, err
	}
	res, err := d.executor.Execute(ctx, executor.Request{
		HostKey:    h.hostKey(),
		Credential: cred,
		Command:    "true",
		Timeout:    5 * time.Second,
		Shaping:    shaper.Spec{Mode: shaper.Full},
	})
	if err != nil {
		return map[string]any{"reachable": false, "error": err.Error()}, nil
	}
	return map[string]any{"reachable": true, "duration_ms": res.DurationMS}, nil
}

func (d *Dispatcher) toolSSHSessionInfo(ctx context.Context, args map[string]any) (any, error) {
	return map[string]any{
		"active_sessions": d.sessions.Stats(),
		"cache":           d.cache.Stats(),
	}, nil
}

func (d *Dispatcher) toolSSHClearCache(ctx context.Context, args map[string]any) (any, error) {
	host := optionalString(args, "host", "")
	d.cache.Invalidate(host)
	return map[string]any{"cleared": true}, nil
}
