package objectstore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned (possibly wrapped) for a missing key.
var ErrNotFound = errors.New("object not found")

type Object struct {
	Key     string
	Size    int64
	Updated time.Time
}

// Base is the last path element of the key.
func (o Object) Base() string { return path.Base(o.Key) }

// Store is a flat bucket of objects addressed by slash-separated keys.
type Store interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Download(ctx context.Context, key string, w io.Writer) error
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	Close() error
}

// IsPDF matches keys ending in .pdf, case-insensitively.
func IsPDF(key string) bool {
	return strings.EqualFold(path.Ext(key), ".pdf")
}

// Join builds a key from a prefix and a name without doubling slashes.
func Join(prefix, name string) string {
	prefix = strings.TrimLeft(prefix, "/")
	name = strings.TrimLeft(name, "/")
	if prefix == "" {
		return name
	}
	if strings.HasPrefix(name, prefix) {
		return name
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + name
}
