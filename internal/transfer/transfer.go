// Package transfer implements the File Transfer Engine: chunked SFTP
// upload/download with resume, remote hash verification, and atomic
// renamed writes.
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"

	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/pool"
)

// defaultChunkSize matches the spec's 32 KiB default chunk.
const defaultChunkSize = 32 * 1024

// HashAlgorithm selects which remote hash command family to try.
type HashAlgorithm string

const (
	HashNone   HashAlgorithm = "none"
	HashMD5    HashAlgorithm = "md5"
	HashSHA256 HashAlgorithm = "sha256"
	HashBoth   HashAlgorithm = "both"
)

// Job describes one upload or download.
type Job struct {
	HostKey      pool.HostKey
	Credential   pool.Credential
	LocalPath    string
	RemotePath   string
	ChunkSize    int
	Resume       bool
	Hash         HashAlgorithm
}

// JobResult is the TransferJob outcome the spec names.
type JobResult struct {
	BytesTransferred int64
	Resumed          bool
	LocalHash        string
	RemoteHash       string
	HashVerified     bool
}

// Engine ties the Connection Pool to github.com/pkg/sftp clients for chunked,
// resumable, hash-verified transfers.
type Engine struct {
	pool *pool.Pool
	log  zerolog.Logger
}

// New builds an Engine bound to p.
func New(p *pool.Pool, log zerolog.Logger) *Engine {
	return &Engine{pool: p, log: log.With().Str("component", "transfer").Logger()}
}

func (e *Engine) openSFTP(ctx context.Context, job Job) (*sftp.Client, *pool.Transport, error) {
	transport, _, err := e.pool.Lease(ctx, job.HostKey, job.Credential)
	if err != nil {
		return nil, nil, err
	}
	client, err := sftp.NewClient(transport.Client())
	if err != nil {
		e.pool.Release(transport)
		return nil, nil, errs.Wrap(errs.KindTransferError, "open sftp client", err).WithHost(job.HostKey.String())
	}
	return client, transport, nil
}

// Upload writes job.LocalPath to job.RemotePath via a temporary ".part" file
// and atomic rename, optionally resuming from the existing destination size
// and optionally verifying the transfer with a remote hash.
func (e *Engine) Upload(ctx context.Context, job Job) (JobResult, error) {
	if !ValidateRemotePath(job.RemotePath) {
		return JobResult{}, errs.New(errs.KindTransferError, "remote path contains a traversal segment").WithHost(job.HostKey.String())
	}
	chunkSize := job.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	local, err := os.Open(job.LocalPath)
	if err != nil {
		return JobResult{}, errs.Wrap(errs.KindTransferError, "open local file", err)
	}
	defer local.Close()

	localInfo, err := local.Stat()
	if err != nil {
		return JobResult{}, errs.Wrap(errs.KindTransferError, "stat local file", err)
	}

	client, transport, err := e.openSFTP(ctx, job)
	if err != nil {
		return JobResult{}, err
	}
	defer client.Close()
	defer e.pool.Release(transport)

	partPath := job.RemotePath + ".part"
	var offset int64
	resumed := false

	if job.Resume {
		if info, err := client.Stat(partPath); err == nil {
			offset = info.Size()
			if offset > localInfo.Size() {
				return JobResult{}, errs.New(errs.KindTransferError, "ResumeMismatch: destination larger than source").WithHost(job.HostKey.String())
			}
			resumed = offset > 0
		}
	}

	var remote *sftp.File
	if resumed {
		remote, err = client.OpenFile(partPath, os.O_WRONLY|os.O_APPEND)
	} else {
		if err := client.MkdirAll(path.Dir(job.RemotePath)); err != nil {
			return JobResult{}, errs.Wrap(errs.KindTransferError, "create remote directory", err).WithHost(job.HostKey.String())
		}
		remote, err = client.Create(partPath)
	}
	if err != nil {
		return JobResult{}, errs.Wrap(errs.KindTransferError, "open remote part file", err).WithHost(job.HostKey.String())
	}
	defer remote.Close()

	if _, err := local.Seek(offset, io.SeekStart); err != nil {
		return JobResult{}, errs.Wrap(errs.KindTransferError, "seek local file", err)
	}

	written, err := copyChunked(ctx, remote, local, chunkSize)
	if err != nil {
		return JobResult{}, errs.Wrap(errs.KindTransferError, "upload chunk", err).WithHost(job.HostKey.String())
	}
	if err := remote.Close(); err != nil {
		return JobResult{}, errs.Wrap(errs.KindTransferError, "finalize remote file", err).WithHost(job.HostKey.String())
	}

	result := JobResult{BytesTransferred: offset + written, Resumed: resumed}
	if job.Hash != "" && job.Hash != HashNone {
		if err := e.verify(ctx, transport, client, job, partPath, &result); err != nil {
			if !job.Resume {
				_ = client.Remove(partPath)
			}
			return result, err
		}
	}

	if err := client.Rename(partPath, job.RemotePath); err != nil {
		_ = client.Remove(job.RemotePath)
		if err := client.Rename(partPath, job.RemotePath); err != nil {
			return result, errs.Wrap(errs.KindTransferError, "rename part file into place", err).WithHost(job.HostKey.String())
		}
	}
	return result, nil
}

// Download reads job.RemotePath into job.LocalPath, resuming from the
// existing local file's size when job.Resume is set.
func (e *Engine) Download(ctx context.Context, job Job) (JobResult, error) {
	if !ValidateRemotePath(job.RemotePath) {
		return JobResult{}, errs.New(errs.KindTransferError, "remote path contains a traversal segment").WithHost(job.HostKey.String())
	}
	chunkSize := job.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	client, transport, err := e.openSFTP(ctx, job)
	if err != nil {
		return JobResult{}, err
	}
	defer client.Close()
	defer e.pool.Release(transport)

	remoteInfo, err := client.Stat(job.RemotePath)
	if err != nil {
		return JobResult{}, errs.Wrap(errs.KindTransferError, "stat remote file", err).WithHost(job.HostKey.String())
	}

	var offset int64
	resumed := false
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if job.Resume {
		if info, err := os.Stat(job.LocalPath); err == nil {
			offset = info.Size()
			if offset > remoteInfo.Size() {
				return JobResult{}, errs.New(errs.KindTransferError, "ResumeMismatch: destination larger than source")
			}
			resumed = offset > 0
			flags = os.O_WRONLY | os.O_APPEND
		}
	}

	local, err := os.OpenFile(job.LocalPath, flags, 0o644)
	if err != nil {
		return JobResult{}, errs.Wrap(errs.KindTransferError, "open local destination", err)
	}
	defer local.Close()

	remote, err := client.Open(job.RemotePath)
	if err != nil {
		return JobResult{}, errs.Wrap(errs.KindTransferError, "open remote file", err).WithHost(job.HostKey.String())
	}
	defer remote.Close()

	if _, err := remote.Seek(offset, io.SeekStart); err != nil {
		return JobResult{}, errs.Wrap(errs.KindTransferError, "seek remote file", err).WithHost(job.HostKey.String())
	}

	written, err := copyChunked(ctx, local, remote, chunkSize)
	if err != nil {
		return JobResult{}, errs.Wrap(errs.KindTransferError, "download chunk", err).WithHost(job.HostKey.String())
	}

	result := JobResult{BytesTransferred: offset + written, Resumed: resumed}
	if job.Hash != "" && job.Hash != HashNone {
		if err := e.verify(ctx, transport, client, job, job.RemotePath, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// copyChunked copies src into dst in chunkSize pieces, checking ctx between
// chunks so a cancelled transfer stops promptly instead of running to
// completion.
func copyChunked(ctx context.Context, dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}

// FileInfo mirrors what the dir_list / file_info tools need from a remote
// stat call.
type FileInfo struct {
	Name    string
	Size    int64
	Mode    string
	ModTime time.Time
	IsDir   bool
}

// Stat returns metadata for a single remote path.
func (e *Engine) Stat(ctx context.Context, hk pool.HostKey, cred pool.Credential, remotePath string) (FileInfo, error) {
	client, transport, err := e.openSFTP(ctx, Job{HostKey: hk, Credential: cred})
	if err != nil {
		return FileInfo{}, err
	}
	defer client.Close()
	defer e.pool.Release(transport)

	info, err := client.Stat(remotePath)
	if err != nil {
		return FileInfo{}, errs.Wrap(errs.KindTransferError, "stat remote path", err).WithHost(hk.String())
	}
	return FileInfo{Name: info.Name(), Size: info.Size(), Mode: info.Mode().String(), ModTime: info.ModTime(), IsDir: info.IsDir()}, nil
}

// ListDir lists remotePath's entries in lexicographic order.
func (e *Engine) ListDir(ctx context.Context, hk pool.HostKey, cred pool.Credential, remotePath string) ([]FileInfo, error) {
	client, transport, err := e.openSFTP(ctx, Job{HostKey: hk, Credential: cred})
	if err != nil {
		return nil, err
	}
	defer client.Close()
	defer e.pool.Release(transport)

	entries, err := client.ReadDir(remotePath)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransferError, fmt.Sprintf("list directory %q", remotePath), err).WithHost(hk.String())
	}
	out := make([]FileInfo, 0, len(entries))
	for _, info := range entries {
		out = append(out, FileInfo{Name: info.Name(), Size: info.Size(), Mode: info.Mode().String(), ModTime: info.ModTime(), IsDir: info.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
