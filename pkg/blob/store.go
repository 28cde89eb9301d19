// Package blob keeps in-memory payloads reachable through locally-scoped,
// revocable "blob:" URLs, the way a browser's object URLs work.
package blob

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mywio/reelsaver/pkg/metrics"
)

const scheme = "blob:"

// Blob is an immutable payload with its MIME type.
type Blob struct {
	Data []byte
	Type string
}

// Size returns the payload length in bytes.
func (b Blob) Size() int { return len(b.Data) }

// Store maps live blob URLs to their payloads.
type Store struct {
	mu     sync.RWMutex
	origin string
	blobs  map[string]Blob
}

// NewStore creates a store whose URLs are scoped to origin
// (e.g. "reelsaver://background").
func NewStore(origin string) *Store {
	return &Store{
		origin: strings.TrimSuffix(origin, "/"),
		blobs:  make(map[string]Blob),
	}
}

// Create registers data under a fresh URL. The store keeps the slice as-is;
// callers must not modify it afterwards.
func (s *Store) Create(data []byte, mimeType string) string {
	url := scheme + s.origin + "/" + uuid.NewString()

	s.mu.Lock()
	s.blobs[url] = Blob{Data: data, Type: mimeType}
	s.mu.Unlock()

	metrics.BlobsLive.Inc()
	return url
}

// Resolve returns the blob registered under url.
func (s *Store) Resolve(url string) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[url]
	return b, ok
}

// Revoke releases url. Revoking an unknown URL is a no-op.
func (s *Store) Revoke(url string) {
	s.mu.Lock()
	_, ok := s.blobs[url]
	delete(s.blobs, url)
	s.mu.Unlock()

	if ok {
		metrics.BlobsLive.Dec()
	}
}

// Len returns the number of live URLs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// IsBlobURL reports whether url uses the blob scheme.
func IsBlobURL(url string) bool {
	return strings.HasPrefix(url, scheme)
}
