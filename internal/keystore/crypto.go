// Package keystore is the in-memory (host,user)->credential oracle behind
// the boundary interface the protocol layer calls through: put and get.
// Values are held at rest as AES-256-GCM ciphertext so a core crash dump
// never contains a plaintext secret.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// devKey is a deterministic 256-bit key used only when no key is supplied
// to New. Not suitable for production use.
const devKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// ErrCiphertextTooShort is returned by decrypt when the stored blob is
// shorter than one GCM nonce.
var ErrCiphertextTooShort = errors.New("keystore: ciphertext too short")

// cipherKey resolves a 32-byte AES key from a hex string, falling back to
// devKey when hexKey is empty.
func cipherKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		hexKey = devKey
	}
	k, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("keystore: invalid hex key: %w", err)
	}
	if len(k) != 32 {
		return nil, fmt.Errorf("keystore: key must be 32 bytes (64 hex chars), got %d", len(k))
	}
	return k, nil
}

func encrypt(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("keystore: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("keystore: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("keystore: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

func decrypt(key []byte, ciphertextHex string) (string, error) {
	data, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("keystore: invalid hex ciphertext: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("keystore: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("keystore: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrCiphertextTooShort
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("keystore: decryption failed: %w", err)
	}
	return string(plaintext), nil
}
