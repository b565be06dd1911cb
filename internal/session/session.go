// Package session implements the interactive session registry: long-lived
// shell channels keyed by session id, with idle timeout and explicit close.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	cryptossh "golang.org/x/crypto/ssh"

	"github.com/websoft9/sshmux/internal/pool"
)

// shellDrainBuffer bounds the concurrent stderr drain buffer so a chatty
// remote process cannot exhaust memory while nobody is reading stderr.
const shellDrainBuffer = 1 << 20 // 1 MiB

// Shell is a persistent remote shell channel. It owns one Transport for
// the session's lifetime.
type Shell struct {
	transport *pool.Transport
	sshSess   *cryptossh.Session
	stdin     io.WriteCloser
	stdout    io.Reader

	stderrMu  sync.Mutex
	stderrBuf bytes.Buffer
}

func openShell(transport *pool.Transport) (*Shell, error) {
	sshSess, err := transport.Client().NewSession()
	if err != nil {
		return nil, fmt.Errorf("session: new ssh session: %w", err)
	}
	modes := cryptossh.TerminalModes{
		cryptossh.ECHO:          0,
		cryptossh.TTY_OP_ISPEED: 14400,
		cryptossh.TTY_OP_OSPEED: 14400,
	}
	if err := sshSess.RequestPty("xterm-256color", 40, 200, modes); err != nil {
		sshSess.Close()
		return nil, fmt.Errorf("session: request pty: %w", err)
	}
	stdin, err := sshSess.StdinPipe()
	if err != nil {
		sshSess.Close()
		return nil, fmt.Errorf("session: stdin pipe: %w", err)
	}
	stdout, err := sshSess.StdoutPipe()
	if err != nil {
		sshSess.Close()
		return nil, fmt.Errorf("session: stdout pipe: %w", err)
	}
	stderr, err := sshSess.StderrPipe()
	if err != nil {
		sshSess.Close()
		return nil, fmt.Errorf("session: stderr pipe: %w", err)
	}
	if err := sshSess.Shell(); err != nil {
		sshSess.Close()
		return nil, fmt.Errorf("session: start shell: %w", err)
	}

	sh := &Shell{transport: transport, sshSess: sshSess, stdin: stdin, stdout: stdout}

	// Drain stderr concurrently into a bounded buffer so a backed-up stderr
	// pipe never blocks stdout consumption — the spec explicitly forbids
	// reproducing a blocking best-effort drain.
	go sh.drainStderr(stderr)

	return sh, nil
}

func (s *Shell) drainStderr(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.stderrMu.Lock()
			if s.stderrBuf.Len()+n > shellDrainBuffer {
				s.stderrBuf.Reset() // discard everything buffered so far rather than block or grow unbounded
			}
			s.stderrBuf.Write(buf[:n])
			s.stderrMu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// takeStderr returns and clears everything buffered from stderr so far.
func (s *Shell) takeStderr() string {
	s.stderrMu.Lock()
	defer s.stderrMu.Unlock()
	out := s.stderrBuf.String()
	s.stderrBuf.Reset()
	return out
}

func (s *Shell) write(input string) error {
	_, err := s.stdin.Write([]byte(input))
	return err
}

// read reads whatever stdout is available within readTimeout. It is not an
// error for nothing to arrive before the deadline — that yields an empty
// string, matching an idle shell prompt.
func (s *Shell) read(ctx context.Context, readTimeout time.Duration) (string, error) {
	type chunk struct {
		data []byte
		err  error
	}
	ch := make(chan chunk, 1)
	go func() {
		buf := make([]byte, 8192)
		n, err := s.stdout.Read(buf)
		ch <- chunk{data: buf[:n], err: err}
	}()

	timer := time.NewTimer(readTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", nil
	case c := <-ch:
		if c.err != nil && c.err != io.EOF {
			return string(c.data), c.err
		}
		return string(c.data), nil
	}
}

func (s *Shell) close() error {
	_ = s.stdin.Close()
	return s.sshSess.Close()
}

// Session is an open interactive session: (session-id, HostKey, shell
// channel, created-at, last-activity-at, idle-ttl).
type Session struct {
	ID             string
	HostKey        pool.HostKey
	CreatedAt      time.Time
	idleTTL        time.Duration
	shell          *Shell
	transport      *pool.Transport

	mu             sync.Mutex
	lastActivityAt time.Time
	busy           bool
	closed         bool
}

// newSessionID returns an opaque, unguessable session id: a random (v4)
// UUID, backed by crypto/rand the same as a hand-rolled random-byte id
// would be.
func newSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
