// Package artifacts keeps uploaded media where a model backend can reach it.
// A stored object's key doubles as the remote file reference handed back to
// the session layer.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound means the object is gone: deleted, expired or never stored.
var ErrNotFound = errors.New("artifact not found")

// Store is a remote object store for uploaded media.
type Store interface {
	// Put stores data and returns its key.
	Put(ctx context.Context, data []byte, mime string) (string, error)
	// Get returns the stored bytes and their MIME type.
	Get(ctx context.Context, key string) ([]byte, string, error)
	// URL returns a URL a remote model can fetch the object from.
	URL(ctx context.Context, key string) (string, error)
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// NewKey returns a date-partitioned random object key.
func NewKey() string {
	return newKeyAt(time.Now())
}

func newKeyAt(d time.Time) string {
	return fmt.Sprintf("uploads/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}
