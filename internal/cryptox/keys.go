package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// DeriveKey stretches a passphrase into a 32-byte key with argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// GenerateKey returns a fresh random 32-byte key.
func GenerateKey() ([]byte, error) {
	return RandomBytes(32)
}

// EncodeKey renders key the way ParseKey expects it.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// ParseKey decodes a key given as hex or as base64 (standard or URL
// alphabet, padded or not). The decoded length must be 16, 24 or 32 bytes.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	// hex goes first: a 32-char hex key is also valid raw base64
	decoders := []func(string) ([]byte, error){
		hex.DecodeString,
		base64.StdEncoding.DecodeString,
		base64.RawStdEncoding.DecodeString,
		base64.URLEncoding.DecodeString,
		base64.RawURLEncoding.DecodeString,
	}
	for _, decode := range decoders {
		key, err := decode(s)
		if err != nil {
			continue
		}
		switch len(key) {
		case 16, 24, 32:
			return key, nil
		}
		Wipe(key)
	}

	return nil, ErrInvalidKey
}

// RandomBytes reads n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Wipe overwrites b with zeros. Safe on nil.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
