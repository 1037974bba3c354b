// Package records is the persistence port for sealed records. Only
// cryptox.Record values cross it, so plaintext never reaches a store.
//
// Keys follow a slash-separated layout:
//
//	session/<user>   prefs/<user>   consent/<user>   spool/<nanos>/<job>
package records

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
)

// Repository stores sealed records by key.
type Repository interface {
	// Save inserts or replaces the record stored under key.
	Save(ctx context.Context, key string, rec *cryptox.Record) error
	// Load returns (nil, nil) when nothing is stored under key.
	Load(ctx context.Context, key string) (*cryptox.Record, error)
	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// SaveBatch stores every record atomically.
	SaveBatch(ctx context.Context, recs map[string]*cryptox.Record) error
	// Keys lists keys starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// DeleteOwner removes every record belonging to owner.
	DeleteOwner(ctx context.Context, owner string) error
}

// Key prefixes.
const (
	PrefixSession = "session/"
	PrefixPrefs   = "prefs/"
	PrefixConsent = "consent/"
	PrefixSpool   = "spool/"
)

func SessionKey(user string) string { return PrefixSession + user }
func PrefsKey(user string) string   { return PrefixPrefs + user }
func ConsentKey(user string) string { return PrefixConsent + user }

// SpoolKey orders spooled jobs by enqueue time; the nanosecond stamp is
// zero-padded so lexical order matches numeric order.
func SpoolKey(enqueuedNanos int64, jobID string) string {
	if enqueuedNanos < 0 {
		enqueuedNanos = 0
	}
	return fmt.Sprintf("%s%020d/%s", PrefixSpool, enqueuedNanos, jobID)
}

func cloneRecord(rec *cryptox.Record) *cryptox.Record {
	if rec == nil {
		return nil
	}
	return &cryptox.Record{
		Ciphertext: append([]byte(nil), rec.Ciphertext...),
		Nonce:      append([]byte(nil), rec.Nonce...),
		Owner:      rec.Owner,
		UpdatedAt:  rec.UpdatedAt,
	}
}
