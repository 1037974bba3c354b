// Package filex reads local media files for the console producer and
// prepares directories for file-backed stores.
package filex

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrTooLarge is returned when a file exceeds the read limit.
var ErrTooLarge = errors.New("file too large")

// EnsureParentDir creates the directory that will hold path. Paths
// without a directory component need nothing.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// ReadMedia reads at most limit bytes of path and guesses its MIME type,
// first from the extension and then from the content.
func ReadMedia(path string, limit int64) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("%s: %w (limit %d bytes)", path, ErrTooLarge, limit)
	}

	return data, DetectMime(path, data), nil
}

// DetectMime returns the bare media type, without parameters.
func DetectMime(name string, data []byte) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if t == "" {
		t = http.DetectContentType(data)
	}
	t, _, _ = strings.Cut(t, ";")
	return strings.TrimSpace(t)
}
