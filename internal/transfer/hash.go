package transfer

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/sync/errgroup"

	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/pool"
)

// hashOutcome is one algorithm's local+remote hash pair, computed by a
// verifyAlgo goroutine and collected back on the errgroup's join.
type hashOutcome struct {
	algo       HashAlgorithm
	localHash  string
	remoteHash string
}

// remoteHashCommands is the fallback chain tried in order for each
// algorithm; the remote is probed with the first binary it actually has.
var remoteHashCommands = map[HashAlgorithm][]string{
	HashMD5:    {"md5sum %q", "openssl dgst -md5 %q", "busybox md5sum %q"},
	HashSHA256: {"sha256sum %q", "openssl dgst -sha256 %q", "busybox sha256sum %q"},
}

// verify computes the local hash and the remote hash (via SSH command, not
// SFTP) against remotePath and records whether they match. It fails with
// HashUnsupported only when every command in the fallback chain is
// unavailable; a genuine mismatch is itself a TransferError (HashMismatch),
// since the caller must not treat a corrupted transfer as successful. For
// HashBoth, md5 and sha256 are each computed locally+remotely on their own
// goroutine — each pair opens its own SSH session and reads its own local
// file handle, so the two algorithms never contend with each other.
func (e *Engine) verify(ctx context.Context, transport *pool.Transport, client *sftp.Client, job Job, remotePath string, result *JobResult) error {
	algos := []HashAlgorithm{}
	switch job.Hash {
	case HashBoth:
		algos = []HashAlgorithm{HashMD5, HashSHA256}
	case HashMD5, HashSHA256:
		algos = []HashAlgorithm{job.Hash}
	default:
		return errs.New(errs.KindConfigError, fmt.Sprintf("unsupported hash algorithm %q", job.Hash)).WithHost(job.HostKey.String())
	}

	outcomes := make([]hashOutcome, len(algos))
	group, gctx := errgroup.WithContext(ctx)
	for i, algo := range algos {
		i, algo := i, algo
		group.Go(func() error {
			localHash, err := localFileHash(job.LocalPath, algo)
			if err != nil {
				return errs.Wrap(errs.KindTransferError, "compute local hash", err)
			}
			remoteHash, err := remoteFileHash(gctx, transport, remotePath, algo)
			if err != nil {
				return err
			}
			outcomes[i] = hashOutcome{algo: algo, localHash: localHash, remoteHash: remoteHash}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	result.HashVerified = true
	var mismatched []HashAlgorithm
	for _, o := range outcomes {
		if o.algo == HashMD5 {
			result.LocalHash = o.localHash
			result.RemoteHash = o.remoteHash
		}
		if !strings.EqualFold(o.localHash, o.remoteHash) {
			result.HashVerified = false
			mismatched = append(mismatched, o.algo)
		}
	}
	if len(mismatched) > 0 {
		return errs.New(errs.KindTransferError, fmt.Sprintf("HashMismatch: %v differ between local and remote", mismatched)).WithHost(job.HostKey.String())
	}
	return nil
}

func localFileHash(path string, algo HashAlgorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch algo {
	case HashMD5:
		h := md5.New()
		if _, err := io.Copy(h, f); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	case HashSHA256:
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

// remoteFileHash walks remoteHashCommands in order, running each over the
// leased Transport's session channel, until one succeeds. Only once every
// command in the chain fails does this return HashUnsupported.
func remoteFileHash(ctx context.Context, transport *pool.Transport, remotePath string, algo HashAlgorithm) (string, error) {
	commands := remoteHashCommands[algo]
	var lastErr error
	for _, tmpl := range commands {
		cmd := fmt.Sprintf(tmpl, remotePath)
		sess, err := transport.Client().NewSession()
		if err != nil {
			lastErr = err
			continue
		}
		out, err := sess.Output(cmd)
		sess.Close()
		if err != nil {
			lastErr = err
			continue
		}
		hash := firstHexToken(string(out))
		if hash != "" {
			return hash, nil
		}
		lastErr = fmt.Errorf("unparsable output from %q", cmd)
	}
	return "", errs.Wrap(errs.KindTransferError, "HashUnsupported: no remote hash command available", lastErr)
}

// firstHexToken extracts the first whitespace-delimited hex-looking token
// from hash command output (md5sum/sha256sum: "<hash>  <path>"; openssl
// dgst: "<algo>(<path>)= <hash>").
func firstHexToken(s string) string {
	fields := strings.Fields(s)
	for _, f := range fields {
		if isHex(f) && (len(f) == 32 || len(f) == 64) {
			return f
		}
	}
	return ""
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}
