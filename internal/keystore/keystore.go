package keystore

import (
	"fmt"
	"sync"
)

// Kind identifies how Value should be used to authenticate: a raw
// password, a private key body (PEM), or an opaque agent reference.
type Kind string

const (
	KindPassword   Kind = "password"
	KindPrivateKey Kind = "private_key"
	KindAgent      Kind = "agent"
)

// Secret is the decrypted form of a stored credential, handed to the pool
// only for the duration of a single connect attempt and never retained
// beyond it.
type Secret struct {
	Kind  Kind
	Value string
}

type identity struct {
	host, user string
}

type entry struct {
	kind       Kind
	ciphertext string
}

// Store is the in-memory (host,user)->credential oracle. Zero value is
// not usable; construct with New.
type Store struct {
	mu   sync.RWMutex
	key  []byte
	data map[identity]entry
}

// New builds a Store. hexKey is the 64-hex-char AES-256 key; an empty
// string falls back to the deterministic dev key.
func New(hexKey string) (*Store, error) {
	k, err := cipherKey(hexKey)
	if err != nil {
		return nil, err
	}
	return &Store{key: k, data: make(map[identity]entry)}, nil
}

// Put stores (or overwrites) the credential for host+user.
func (s *Store) Put(host, user string, kind Kind, value string) error {
	ct, err := encrypt(s.key, value)
	if err != nil {
		return fmt.Errorf("keystore: put %s@%s: %w", user, host, err)
	}
	s.mu.Lock()
	s.data[identity{host, user}] = entry{kind: kind, ciphertext: ct}
	s.mu.Unlock()
	return nil
}

// Get returns the decrypted Secret for host+user, and false if none is
// stored; callers then fail with AuthFailure.
func (s *Store) Get(host, user string) (Secret, bool, error) {
	s.mu.RLock()
	e, ok := s.data[identity{host, user}]
	s.mu.RUnlock()
	if !ok {
		return Secret{}, false, nil
	}
	plaintext, err := decrypt(s.key, e.ciphertext)
	if err != nil {
		return Secret{}, true, fmt.Errorf("keystore: get %s@%s: %w", user, host, err)
	}
	return Secret{Kind: e.kind, Value: plaintext}, true, nil
}

// Delete removes any stored credential for host+user. Deleting an absent
// entry is a no-op.
func (s *Store) Delete(host, user string) {
	s.mu.Lock()
	delete(s.data, identity{host, user})
	s.mu.Unlock()
}
