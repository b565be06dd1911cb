package dispatcher

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dustin/go-humanize"

	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/transfer"
)

// fileInfoView adds a human-readable size alongside the raw byte count, the
// way a terminal file listing would render it.
type fileInfoView struct {
	transfer.FileInfo
	SizeHuman string `json:"size_human"`
}

func toView(info transfer.FileInfo) fileInfoView {
	return fileInfoView{FileInfo: info, SizeHuman: humanize.Bytes(uint64(info.Size))}
}

func filterByName(entries []transfer.FileInfo, pattern string) ([]transfer.FileInfo, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfigError, "invalid filter_regex", err)
	}
	out := make([]transfer.FileInfo, 0, len(entries))
	for _, e := range entries {
		if re.MatchString(e.Name) {
			out = append(out, e)
		}
	}
	return out, nil
}

// paginate returns entries[ (page-1)*pageSize : page*pageSize ] plus the
// total count before slicing, clamping to bounds rather than erroring on
// an out-of-range page.
func paginate(entries []transfer.FileInfo, page, pageSize int) ([]transfer.FileInfo, int) {
	total := len(entries)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = total
	}
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return entries[start:end], total
}

func (d *Dispatcher) toolFileUpload(ctx context.Context, args map[string]any) (any, error) {
	h, err := decodeHostArgs(args)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolveCredential(h, args)
	if err != nil {
		return nil, err
	}
	localPath, err := requireString(args, "local_path")
	if err != nil {
		return nil, err
	}
	remotePath, err := requireString(args, "remote_path")
	if err != nil {
		return nil, err
	}
	return d.transfer.Upload(ctx, transfer.Job{
		HostKey:    h.hostKey(),
		Credential: cred,
		LocalPath:  localPath,
		RemotePath: remotePath,
		ChunkSize:  optionalInt(args, "chunk_size", 0),
		Resume:     optionalBool(args, "resume", false),
		Hash:       transfer.HashAlgorithm(optionalString(args, "hash", string(transfer.HashNone))),
	})
}

func (d *Dispatcher) toolFileDownload(ctx context.Context, args map[string]any) (any, error) {
	h, err := decodeHostArgs(args)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolveCredential(h, args)
	if err != nil {
		return nil, err
	}
	localPath, err := requireString(args, "local_path")
	if err != nil {
		return nil, err
	}
	remotePath, err := requireString(args, "remote_path")
	if err != nil {
		return nil, err
	}
	return d.transfer.Download(ctx, transfer.Job{
		HostKey:    h.hostKey(),
		Credential: cred,
		LocalPath:  localPath,
		RemotePath: remotePath,
		ChunkSize:  optionalInt(args, "chunk_size", 0),
		Resume:     optionalBool(args, "resume", false),
		Hash:       transfer.HashAlgorithm(optionalString(args, "hash", string(transfer.HashNone))),
	})
}

func (d *Dispatcher) toolFileInfo(ctx context.Context, args map[string]any) (any, error) {
	h, err := decodeHostArgs(args)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolveCredential(h, args)
	if err != nil {
		return nil, err
	}
	remotePath, err := requireString(args, "remote_path")
	if err != nil {
		return nil, err
	}
	info, err := d.transfer.Stat(ctx, h.hostKey(), cred, remotePath)
	if err != nil {
		return nil, err
	}
	return toView(info), nil
}

func (d *Dispatcher) toolDirList(ctx context.Context, args map[string]any) (any, error) {
	h, err := decodeHostArgs(args)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolveCredential(h, args)
	if err != nil {
		return nil, err
	}
	remotePath := optionalString(args, "remote_path", ".")
	entries, err := d.transfer.ListDir(ctx, h.hostKey(), cred, remotePath)
	if err != nil {
		return nil, err
	}

	if pattern := optionalString(args, "filter_regex", ""); pattern != "" {
		entries, err = filterByName(entries, pattern)
		if err != nil {
			return nil, err
		}
	}

	page := optionalInt(args, "page", 1)
	pageSize := optionalInt(args, "page_size", 100)
	paged, total := paginate(entries, page, pageSize)

	views := make([]fileInfoView, 0, len(paged))
	for _, e := range paged {
		views = append(views, toView(e))
	}
	return map[string]any{"entries": views, "total": total, "page": page, "page_size": pageSize}, nil
}

// toolDirInteractive dispatches the three interactive-session operations
// named in the tool catalog: open, send, close.
func (d *Dispatcher) toolDirInteractive(ctx context.Context, args map[string]any) (any, error) {
	op := optionalString(args, "op", "open")
	switch op {
	case "open":
		return d.dirInteractiveOpen(ctx, args)
	case "send":
		return d.dirInteractiveSend(ctx, args)
	case "close":
		return d.dirInteractiveClose(ctx, args)
	default:
		return nil, errs.New(errs.KindConfigError, fmt.Sprintf("dir_interactive: unknown op %q", op))
	}
}

// dirInteractiveOpen opens a persistent interactive session pinned to the
// host so a client can run a sequence of "cd"+"ls"-style commands that
// depend on shell working-directory state across calls.
func (d *Dispatcher) dirInteractiveOpen(ctx context.Context, args map[string]any) (any, error) {
	h, err := decodeHostArgs(args)
	if err != nil {
		return nil, err
	}
	cred, err := d.resolveCredential(h, args)
	if err != nil {
		return nil, err
	}
	sess, warnings, err := d.sessions.Open(ctx, h.hostKey(), cred, secondsToDuration(optionalInt(args, "idle_ttl_seconds", 900)))
	if err != nil {
		return nil, err
	}
	return map[string]any{"session_id": sess.ID, "warnings": warnings}, nil
}

func (d *Dispatcher) dirInteractiveSend(ctx context.Context, args map[string]any) (any, error) {
	sessionID, err := requireString(args, "session_id")
	if err != nil {
		return nil, err
	}
	input, err := requireString(args, "input")
	if err != nil {
		return nil, err
	}
	readTimeoutSeconds := optionalInt(args, "read_timeout_seconds", 5)
	out, err := d.sessions.Send(ctx, sessionID, input, secondsToDuration(readTimeoutSeconds))
	if err != nil {
		return nil, err
	}
	return map[string]any{"session_id": sessionID, "output": out}, nil
}

func (d *Dispatcher) dirInteractiveClose(ctx context.Context, args map[string]any) (any, error) {
	sessionID, err := requireString(args, "session_id")
	if err != nil {
		return nil, err
	}
	if err := d.sessions.Close(sessionID); err != nil {
		return nil, err
	}
	return map[string]any{"session_id": sessionID, "closed": true}, nil
}
