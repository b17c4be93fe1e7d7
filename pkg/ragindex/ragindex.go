// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package ragindex keeps one vector collection per partition so that
// retrieval inherits the partition walls: a search runs inside exactly
// one collection and can never pull a neighbor's points. Sandbox-class
// partitions are never indexed at all.
package ragindex

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
)

// VectorStore defines the interface for a vector database.
type VectorStore interface {
	// Upsert adds or updates points in the vector store.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search searches for the nearest vectors to the given vector.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
	// CreateCollection creates a collection if it doesn't exist.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
}

// Point represents a data point in the vector store.
type Point struct {
	ID        string                 `json:"id"`
	Vector    []float32              `json:"vector"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp int64                  `json:"timestamp"`
}

// SearchResult represents a result from a vector search.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder defines the interface for converting text to vectors.
type Embedder interface {
	// Embed converts a text string into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index scopes a vector store to partitions. Every operation names the
// partition it runs in; the index derives the collection and refuses
// sandbox-class targets.
type Index struct {
	store      VectorStore
	embedder   Embedder
	vectorSize uint64
	prefix     string

	mu      sync.Mutex
	ensured map[string]bool
}

// Option configures an Index.
type Option func(*Index)

// WithVectorSize overrides the embedding dimension used when creating
// collections. It must match the embedder's output.
func WithVectorSize(size uint64) Option {
	return func(ix *Index) { ix.vectorSize = size }
}

// WithCollectionPrefix overrides the collection name prefix.
func WithCollectionPrefix(prefix string) Option {
	return func(ix *Index) { ix.prefix = prefix }
}

// NewIndex wires a vector store and an embedder into a partition-scoped
// index. The default vector size matches nomic-embed-text.
func NewIndex(store VectorStore, embedder Embedder, opts ...Option) *Index {
	ix := &Index{
		store:      store,
		embedder:   embedder,
		vectorSize: 768,
		prefix:     "primus",
		ensured:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Upsert embeds text and stores it in the partition's collection. The
// text itself rides in the payload under "text" so search results can
// feed prompt bundles without a second store round trip.
func (ix *Index) Upsert(ctx context.Context, p core.PartitionID, docID, text string, payload map[string]interface{}) (string, error) {
	if err := ix.checkPartition(p); err != nil {
		return "", err
	}
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return "", errors.New(errors.CodeStorage, "embedding failed", err)
	}
	collection := ix.collectionFor(p)
	if err := ix.ensureCollection(ctx, collection); err != nil {
		return "", err
	}

	if docID == "" {
		docID = uuid.NewString()
	}
	merged := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		merged[k] = v
	}
	merged["text"] = text

	err = ix.store.Upsert(ctx, collection, []Point{{
		ID:        docID,
		Vector:    vec,
		Payload:   merged,
		Timestamp: time.Now().UnixMilli(),
	}})
	if err != nil {
		return "", errors.New(errors.CodeStorage, "vector upsert failed", err).
			WithContext("collection", collection)
	}
	return docID, nil
}

// Search embeds the query and searches the partition's collection. A
// partition that was never written to returns no results.
func (ix *Index) Search(ctx context.Context, p core.PartitionID, query string, limit int) ([]SearchResult, error) {
	if err := ix.checkPartition(p); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "embedding failed", err)
	}
	collection := ix.collectionFor(p)
	if err := ix.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}

	results, err := ix.store.Search(ctx, collection, vec, limit, 0)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "vector search failed", err).
			WithContext("collection", collection)
	}
	return results, nil
}

func (ix *Index) checkPartition(p core.PartitionID) error {
	if p.IsZero() {
		return errors.New(errors.CodeInvalidInput, "index operation without a partition", nil)
	}
	if p.Class == core.PartitionSandbox {
		return errors.New(errors.CodeInvalidInput, "sandbox partitions are never indexed", nil).
			WithContext("owner", p.Owner)
	}
	return nil
}

func (ix *Index) collectionFor(p core.PartitionID) string {
	return ix.prefix + "_" + string(p.Class) + "_" + sanitizeCollectionPart(p.Owner)
}

func (ix *Index) ensureCollection(ctx context.Context, name string) error {
	ix.mu.Lock()
	done := ix.ensured[name]
	ix.mu.Unlock()
	if done {
		return nil
	}
	if err := ix.store.CreateCollection(ctx, name, ix.vectorSize); err != nil {
		return errors.New(errors.CodeStorage, "collection create failed", err).
			WithContext("collection", name)
	}
	ix.mu.Lock()
	ix.ensured[name] = true
	ix.mu.Unlock()
	return nil
}

// sanitizeCollectionPart keeps collection names inside the backend's
// accepted alphabet.
func sanitizeCollectionPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
