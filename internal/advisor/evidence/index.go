package evidence

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"sync"
)

// Hit is one ranked result of an index lookup. Doc carries the stored payload.
type Hit struct {
	ID    string
	Score float64
	Doc   Document
}

// Filter is pushed down to backends that can evaluate it. Crops matches documents tagged with
// any listed crop; backends must also accept documents tagged "all".
type Filter struct {
	Crops []string
}

// VectorIndex is the semantic search backend.
type VectorIndex interface {
	Name() string
	Upsert(ctx context.Context, docs []Document, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error)
}

var ErrDimensionMismatch = errors.New("VECTOR_DIMENSION_MISMATCH")

// transientError marks a failure worth exactly one retry.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return "transient: " + e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so IsTransient reports true.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a connection level failure that may clear on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// MemoryIndex is an exact cosine index held in process.
type MemoryIndex struct {
	mu      sync.RWMutex
	docs    []Document
	vectors [][]float32
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) Name() string { return "memory" }

func (m *MemoryIndex) Upsert(_ context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return ErrDimensionMismatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := make(map[string]int, len(m.docs))
	for i, d := range m.docs {
		pos[d.ID] = i
	}
	for i, d := range docs {
		if j, ok := pos[d.ID]; ok {
			m.docs[j] = d
			m.vectors[j] = vectors[i]
			continue
		}
		pos[d.ID] = len(m.docs)
		m.docs = append(m.docs, d)
		m.vectors = append(m.vectors, vectors[i])
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.docs))
	for i, d := range m.docs {
		if !filter.allows(d) {
			continue
		}
		if len(m.vectors[i]) != len(vector) {
			return nil, ErrDimensionMismatch
		}
		hits = append(hits, Hit{ID: d.ID, Score: cosine(vector, m.vectors[i]), Doc: d})
	}
	sortHits(hits)
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f Filter) allows(d Document) bool {
	if len(f.Crops) == 0 {
		return true
	}
	c := normalizeCrop(d.Crop)
	if c == "" || c == "all" {
		return true
	}
	for _, want := range f.Crops {
		if normalizeCrop(want) == c {
			return true
		}
	}
	return false
}

func normalizeCrop(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "paddy" {
		return "rice"
	}
	return c
}
