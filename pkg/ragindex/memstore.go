// SPDX-License-Identifier: Apache-2.0

package ragindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/primus-os/primus/pkg/errors"
)

// MemoryVectorStore is an in-process VectorStore with cosine scoring.
// It backs tests and single-machine deployments that skip Qdrant.
type MemoryVectorStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
}

// NewMemoryVectorStore creates an empty in-memory vector store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{collections: make(map[string]map[string]Point)}
}

// CreateCollection registers the collection. Creating an existing
// collection is a no-op.
func (m *MemoryVectorStore) CreateCollection(_ context.Context, name string, _ uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = make(map[string]Point)
	}
	return nil
}

// Upsert stores points by ID, replacing earlier versions.
func (m *MemoryVectorStore) Upsert(_ context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return errors.New(errors.CodeStorage, "collection does not exist", nil).
			WithContext("collection", collection)
	}
	for _, p := range points {
		c[p.ID] = p
	}
	return nil
}

// Search returns the points nearest to vector by cosine similarity,
// best first, dropping scores below the threshold.
func (m *MemoryVectorStore) Search(_ context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, errors.New(errors.CodeStorage, "collection does not exist", nil).
			WithContext("collection", collection)
	}

	results := make([]SearchResult, 0, len(c))
	for _, p := range c {
		score := cosine(vector, p.Vector)
		if score < scoreThreshold {
			continue
		}
		results = append(results, SearchResult{ID: p.ID, Score: score, Point: p})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
