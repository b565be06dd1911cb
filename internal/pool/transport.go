package pool

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	cryptossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/websoft9/sshmux/internal/errs"
)

const dialTimeout = 10 * time.Second

// KnownHostsPolicy governs host-key verification during connect.
type KnownHostsPolicy string

const (
	PolicyIgnore KnownHostsPolicy = "ignore"
	PolicyWarn   KnownHostsPolicy = "warn"
	PolicyReject KnownHostsPolicy = "reject"
)

// Transport is an authenticated SSH channel factory owned by the pool.
// Exactly one lessee may hold a Transport between lease and release; no
// locking is needed on the Transport itself beyond the SSH library's own
// guarantees.
type Transport struct {
	HostKey    HostKey
	CreatedAt  time.Time
	LastUsedAt time.Time
	Seq        uint64

	client *cryptossh.Client

	mu     sync.Mutex
	closed bool
}

// Client returns the underlying SSH client for opening command/SFTP
// channels. Callers must hold a valid lease on the Transport.
func (t *Transport) Client() *cryptossh.Client { return t.client }

// Close terminates the underlying SSH connection. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.client.Close()
}

// tofuStore is an in-memory trust-on-first-use cache for PolicyWarn: the
// first host key seen for an address is accepted and remembered; a later
// mismatch is reported to the caller as a returned warning but the
// connection still proceeds.
type tofuStore struct {
	mu   sync.Mutex
	seen map[string]cryptossh.PublicKey
}

var tofu = &tofuStore{seen: make(map[string]cryptossh.PublicKey)}

func (s *tofuStore) callback(warnings *[]string) cryptossh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key cryptossh.PublicKey) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		prior, ok := s.seen[hostname]
		if !ok {
			s.seen[hostname] = key
			return nil
		}
		if !bytesEqual(prior.Marshal(), key.Marshal()) {
			*warnings = append(*warnings, fmt.Sprintf("host key for %s changed since first connection", hostname))
		}
		return nil
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// hostKeyCallback builds the ssh.HostKeyCallback for the given policy.
// knownHostsPath is only consulted for PolicyReject; when empty, reject
// mode falls back to the in-memory TOFU store so the pool still functions
// without a provisioned known_hosts file.
func hostKeyCallback(policy KnownHostsPolicy, knownHostsPath string, warnings *[]string) (cryptossh.HostKeyCallback, error) {
	switch policy {
	case PolicyReject:
		if knownHostsPath != "" {
			cb, err := knownhosts.New(knownHostsPath)
			if err != nil {
				return nil, fmt.Errorf("pool: load known_hosts %s: %w", knownHostsPath, err)
			}
			return cb, nil
		}
		return func(hostname string, remote net.Addr, key cryptossh.PublicKey) error {
			tofu.mu.Lock()
			defer tofu.mu.Unlock()
			prior, ok := tofu.seen[hostname]
			if !ok {
				tofu.seen[hostname] = key
				return nil
			}
			if !bytesEqual(prior.Marshal(), key.Marshal()) {
				return fmt.Errorf("host key for %s does not match pinned key", hostname)
			}
			return nil
		}, nil
	case PolicyWarn:
		return tofu.callback(warnings), nil
	case PolicyIgnore, "":
		return cryptossh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit policy choice
	default:
		return nil, fmt.Errorf("pool: unknown known_hosts_policy %q", policy)
	}
}

func authMethod(cred Credential) (cryptossh.AuthMethod, error) {
	switch cred.Kind {
	case CredentialPrivateKey:
		var signer cryptossh.Signer
		var err error
		if cred.Passphrase != "" {
			signer, err = cryptossh.ParsePrivateKeyWithPassphrase([]byte(cred.Secret), []byte(cred.Passphrase))
		} else {
			signer, err = cryptossh.ParsePrivateKey([]byte(cred.Secret))
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return cryptossh.PublicKeys(signer), nil
	case CredentialPassword:
		return cryptossh.Password(cred.Secret), nil
	default:
		return nil, fmt.Errorf("unsupported credential kind %q", cred.Kind)
	}
}

// dial opens a single authenticated SSH connection; it does not retry —
// retry policy is the pool's responsibility.
func dial(ctx context.Context, hk HostKey, cred Credential, policy KnownHostsPolicy, knownHostsPath string) (*Transport, []string, error) {
	var warnings []string
	hkCallback, err := hostKeyCallback(policy, knownHostsPath, &warnings)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindConfigError, "build host key callback", err)
	}

	auth, err := authMethod(cred)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindAuthFailure, "build auth method", err).WithHost(hk.String())
	}

	clientCfg := &cryptossh.ClientConfig{
		User:            hk.User,
		Auth:            []cryptossh.AuthMethod{auth},
		HostKeyCallback: hkCallback,
		Timeout:         dialTimeout,
	}

	addr := net.JoinHostPort(hk.Host, fmt.Sprintf("%d", hk.Port))

	type dialResult struct {
		client *cryptossh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		cl, err := cryptossh.Dial("tcp", addr, clientCfg)
		ch <- dialResult{cl, err}
	}()

	select {
	case <-ctx.Done():
		return nil, nil, errs.Wrap(errs.KindCancelled, "dial cancelled", ctx.Err()).WithHost(hk.String())
	case r := <-ch:
		if r.err != nil {
			kind := errs.KindConnectError
			if isAuthError(r.err) {
				kind = errs.KindAuthFailure
			}
			return nil, warnings, errs.Wrap(kind, fmt.Sprintf("dial %s", addr), r.err).WithHost(hk.String())
		}
		now := time.Now()
		return &Transport{
			HostKey:    hk,
			CreatedAt:  now,
			LastUsedAt: now,
			client:     r.client,
		}, warnings, nil
	}
}

// isAuthError distinguishes a rejected-credential failure from a
// network/handshake failure so the caller can pick the right error Kind;
// golang.org/x/crypto/ssh does not expose a typed error for this.
func isAuthError(err error) bool {
	if _, ok := err.(*net.OpError); ok {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"unable to authenticate", "no supported methods remain"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
