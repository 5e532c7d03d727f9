// Package crypto encrypts stored credentials and hashes API keys.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// GenerateKey returns a random 32-byte secretbox key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// DecodeKey parses a base64-encoded 32-byte key as found in SECRETS_KEY.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode secrets key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("secrets key must be %d bytes, got %d", keySize, len(key))
	}
	return key, nil
}

// Encrypt seals plaintext and returns base64(nonce || box).
func Encrypt(plaintext, key []byte) (string, error) {
	k, err := toKey(key)
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, k)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func Decrypt(encoded string, key []byte) ([]byte, error) {
	k, err := toKey(key)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(data) < nonceSize+secretbox.Overhead {
		return nil, errors.New("ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plaintext, ok := secretbox.Open(nil, data[nonceSize:], &nonce, k)
	if !ok {
		return nil, errors.New("decrypt: authentication failed")
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func toKey(key []byte) (*[keySize]byte, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keySize, len(key))
	}
	var k [keySize]byte
	copy(k[:], key)
	return &k, nil
}
