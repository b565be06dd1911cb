package dispatcher

import (
	"context"
	"time"

	"github.com/spf13/cast"

	"github.com/websoft9/sshmux/internal/cache"
	"github.com/websoft9/sshmux/internal/executor"
	"github.com/websoft9/sshmux/internal/shaper"
)

func (d *Dispatcher) toolSSHExecute(ctx context.Context, args map[string]any) (any, error) {
	h, err := decodeHostArgs(args)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolveCredential(h, args)
	if err != nil {
		return nil, err
	}
	command, err := requireString(args, "command")
	if err != nil {
		return nil, err
	}

	req := executor.Request{
		HostKey:    h.hostKey(),
		Credential: cred,
		Command:    command,
		Timeout:    time.Duration(optionalInt(args, "timeout_seconds", 30)) * time.Second,
		Shaping:    decodeShapingSpec(args),
		Cache:      decodeCacheHint(args),
		CacheKey:   command,
	}
	return d.executor.Execute(ctx, req)
}

func (d *Dispatcher) toolSSHExecuteBatch(ctx context.Context, args map[string]any) (any, error) {
	h, err := decodeHostArgs(args)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolveCredential(h, args)
	if err != nil {
		return nil, err
	}
	rawCommands, _ := args["commands"].([]any)
	stopOnError := optionalBool(args, "stop_on_error", false)
	shaping := decodeShapingSpec(args)
	timeout := time.Duration(optionalInt(args, "timeout_seconds", 30)) * time.Second

	reqs := make([]executor.Request, 0, len(rawCommands))
	for _, c := range rawCommands {
		cmd := cast.ToString(c)
		reqs = append(reqs, executor.Request{
			HostKey:    h.hostKey(),
			Credential: cred,
			Command:    cmd,
			Timeout:    timeout,
			Shaping:    shaping,
			CacheKey:   cmd,
		})
	}
	return d.executor.ExecuteBatch(ctx, reqs, stopOnError)
}

func (d *Dispatcher) toolSSHExecuteScript(ctx context.Context, args map[string]any) (any, error) {
	h, err := decodeHostArgs(args)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolveCredential(h, args)
	if err != nil {
		return nil, err
	}
	body, err := requireString(args, "script")
	if err != nil {
		return nil, err
	}

	req := executor.ScriptRequest{
		HostKey:    h.hostKey(),
		Credential: cred,
		Body:       body,
		Shell:      optionalString(args, "shell", ""),
		Timeout:    time.Duration(optionalInt(args, "timeout_seconds", 30)) * time.Second,
		Shaping:    decodeShapingSpec(args),
	}
	return d.executor.ExecuteScript(ctx, d.transfer, req)
}

// decodeShapingSpec reads (mode, regex, max_tokens) into a shaper.Spec,
// defaulting to full (unshaped) output.
func decodeShapingSpec(args map[string]any) shaper.Spec {
	mode := shaper.Mode(optionalString(args, "shaping_mode", string(shaper.Full)))
	return shaper.Spec{
		Mode:      mode,
		Regex:     optionalString(args, "shaping_regex", ""),
		MaxTokens: optionalInt(args, "shaping_max_tokens", 0),
	}
}

// decodeCacheHint reads the caller's cache opt-in. Caching defaults off:
// a command's side effects are unknown to the dispatcher, so caching must
// be explicit per call.
func decodeCacheHint(args map[string]any) executor.CacheHint {
	enabled := optionalBool(args, "cache", false)
	tier := cache.Dynamic
	if optionalString(args, "cache_tier", "dynamic") == string(cache.Static) {
		tier = cache.Static
	}
	ttl := time.Duration(optionalInt(args, "cache_ttl_seconds", 60)) * time.Second
	return executor.CacheHint{Enabled: enabled, Tier: tier, TTL: ttl}
}
