// Package cryptox implements field-level encryption for everything the
// assistant persists: sessions, preferences, consent and spooled jobs.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrIntegrity is returned when a record cannot be authenticated: wrong key,
// tampered ciphertext or nonce, or a record moved to another owner.
var ErrIntegrity = errors.New("cryptox: record failed integrity check")

// ErrInvalidKey is returned for keys that are not 16, 24 or 32 bytes long.
var ErrInvalidKey = errors.New("cryptox: invalid key length")

const nonceSize = 12

// Record is the only shape that crosses the persistence port. Owner and
// UpdatedAt are stored in the clear; Owner is authenticated as GCM
// additional data.
type Record struct {
	Ciphertext []byte
	Nonce      []byte
	Owner      string
	UpdatedAt  time.Time
}

// Sealer encrypts and decrypts records on behalf of an owner.
type Sealer interface {
	Seal(owner string, plaintext []byte) (*Record, error)
	Open(rec *Record) ([]byte, error)
}

// AESGCM is a Sealer backed by AES-GCM with a random 12-byte nonce per record.
type AESGCM struct {
	aead cipher.AEAD
	now  func() time.Time
}

// NewAESGCM builds a sealer from a raw AES-128/192/256 key. The key is
// copied into the cipher state; callers may wipe their slice afterwards.
func NewAESGCM(key []byte) (*AESGCM, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESGCM{aead: aead, now: time.Now}, nil
}

// Seal encrypts plaintext for owner.
func (s *AESGCM) Seal(owner string, plaintext []byte) (*Record, error) {
	nonce, err := RandomBytes(nonceSize)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	ciphertext := s.aead.Seal(nil, nonce, plaintext, []byte(owner))

	return &Record{
		Ciphertext: ciphertext,
		Nonce:      nonce,
		Owner:      owner,
		UpdatedAt:  s.now().UTC(),
	}, nil
}

// Open authenticates and decrypts rec. Any failure is ErrIntegrity.
func (s *AESGCM) Open(rec *Record) ([]byte, error) {
	if rec == nil || len(rec.Nonce) != s.aead.NonceSize() {
		return nil, ErrIntegrity
	}

	plaintext, err := s.aead.Open(nil, rec.Nonce, rec.Ciphertext, []byte(rec.Owner))
	if err != nil {
		return nil, ErrIntegrity
	}
	if plaintext == nil {
		plaintext = []byte{}
	}

	return plaintext, nil
}

// SealJSON serializes v to JSON and seals it for owner.
func SealJSON(s Sealer, owner string, v any) (*Record, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	defer Wipe(plaintext)

	return s.Seal(owner, plaintext)
}

// OpenJSON opens rec and unmarshals the JSON payload into v.
func OpenJSON(s Sealer, rec *Record, v any) error {
	plaintext, err := s.Open(rec)
	if err != nil {
		return err
	}
	defer Wipe(plaintext)

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}
