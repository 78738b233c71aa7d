// Package archive keeps the source PDF of every analysis.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	gcsstorage "cloud.google.com/go/storage"
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("document not found")

// Archive stores and returns documents by key.
type Archive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// DocumentKey is the object key of an analysis source document.
func DocumentKey(demandeID, analysisID string) string {
	demande := sanitizeSegment(demandeID)
	if demande == "" {
		demande = "no-demande"
	}
	return fmt.Sprintf("analyses/%s/%s.pdf", demande, sanitizeSegment(analysisID))
}

// sanitizeSegment removes characters unsafe in an object path segment.
func sanitizeSegment(s string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", "*", "", "?", "", "\"", "", "<", "", ">", "", "|", "", "..", "")
	result := strings.TrimSpace(replacer.Replace(s))
	if len(result) > 80 {
		result = result[:80]
	}
	return result
}

// GCSArchive stores documents in a Cloud Storage bucket.
type GCSArchive struct {
	bucket *gcsstorage.BucketHandle
	name   string
}

func NewGCSArchive(client *gcsstorage.Client, bucket string) *GCSArchive {
	return &GCSArchive{bucket: client.Bucket(bucket), name: bucket}
}

// Put writes data under key and returns the gs:// path of the object.
func (a *GCSArchive) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	w := a.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.name, key), nil
}

func (a *GCSArchive) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := a.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcsstorage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// DefaultMemoryLimit bounds the bytes a MemoryArchive holds.
const DefaultMemoryLimit = 64 << 20

// MemoryArchive keeps documents in memory for local runs and tests. Once the
// byte limit is reached the oldest documents are evicted.
type MemoryArchive struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	order []string // insertion order, oldest first
	size  int64
	limit int64
}

// NewMemoryArchive creates an archive bounded by DefaultMemoryLimit.
func NewMemoryArchive() *MemoryArchive {
	return NewMemoryArchiveWithLimit(DefaultMemoryLimit)
}

// NewMemoryArchiveWithLimit creates an archive holding at most limit bytes.
func NewMemoryArchiveWithLimit(limit int64) *MemoryArchive {
	return &MemoryArchive{docs: make(map[string][]byte), limit: limit}
}

func (a *MemoryArchive) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if int64(len(data)) > a.limit {
		return "", fmt.Errorf("document of %d bytes exceeds the in-memory archive limit of %d", len(data), a.limit)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if old, ok := a.docs[key]; ok {
		a.size -= int64(len(old))
		a.removeFromOrder(key)
	}
	for a.size+int64(len(data)) > a.limit && len(a.order) > 0 {
		oldest := a.order[0]
		a.order = a.order[1:]
		a.size -= int64(len(a.docs[oldest]))
		delete(a.docs, oldest)
	}

	a.docs[key] = append([]byte(nil), data...)
	a.order = append(a.order, key)
	a.size += int64(len(data))
	return "mem://" + key, nil
}

func (a *MemoryArchive) Get(ctx context.Context, key string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.docs[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (a *MemoryArchive) removeFromOrder(key string) {
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			return
		}
	}
}
