package executor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/pool"
	"github.com/websoft9/sshmux/internal/shaper"
	"github.com/websoft9/sshmux/internal/transfer"
)

// ScriptRequest describes a script body to upload and run remotely.
type ScriptRequest struct {
	HostKey    pool.HostKey
	Credential pool.Credential
	Body       string
	Shell      string // e.g. "/bin/bash"; empty defaults to "/bin/sh"
	Timeout    time.Duration
	Shaping    shaper.Spec
}

// ExecuteScript uploads req.Body to a temporary remote path via SFTP,
// executes it with the configured shell, and best-effort removes the
// remote temp file regardless of execution outcome.
func (e *Executor) ExecuteScript(ctx context.Context, transferEngine *transfer.Engine, req ScriptRequest) (Result, error) {
	shell := req.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	local, err := os.CreateTemp("", "sshmux-script-*")
	if err != nil {
		return Result{}, errs.Wrap(errs.KindExecutionError, "create local temp script", err)
	}
	localPath := local.Name()
	defer os.Remove(localPath)
	if _, err := local.WriteString(req.Body); err != nil {
		local.Close()
		return Result{}, errs.Wrap(errs.KindExecutionError, "write local temp script", err)
	}
	local.Close()

	remotePath := fmt.Sprintf("/tmp/sshmux-script-%d", time.Now().UnixNano())
	if _, err := transferEngine.Upload(ctx, transfer.Job{
		HostKey:    req.HostKey,
		Credential: req.Credential,
		LocalPath:  localPath,
		RemotePath: remotePath,
	}); err != nil {
		return Result{}, err
	}

	command := fmt.Sprintf("%s %s", shell, remotePath)
	result, err := e.Execute(ctx, Request{
		HostKey:    req.HostKey,
		Credential: req.Credential,
		Command:    command,
		Timeout:    req.Timeout,
		Shaping:    req.Shaping,
	})

	cleanupReq := Request{
		HostKey:    req.HostKey,
		Credential: req.Credential,
		Command:    fmt.Sprintf("rm -f %s", remotePath),
		Timeout:    5 * time.Second,
		Shaping:    shaper.Spec{Mode: shaper.Full},
	}
	_, _ = e.Execute(ctx, cleanupReq) // best-effort cleanup, failures are not reported

	return result, err
}
