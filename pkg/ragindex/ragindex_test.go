// SPDX-License-Identifier: Apache-2.0

package ragindex

import (
	"context"
	"testing"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
)

// stubEmbedder maps known strings to fixed vectors so ranking is
// deterministic.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func testIndex() (*Index, *MemoryVectorStore) {
	store := NewMemoryVectorStore()
	emb := &stubEmbedder{vectors: map[string][]float32{
		"apples":  {1, 0, 0},
		"oranges": {0.9, 0.1, 0},
		"engines": {0, 1, 0},
	}}
	return NewIndex(store, emb, WithVectorSize(3)), store
}

func TestIndexScopesSearchToPartition(t *testing.T) {
	ix, _ := testIndex()
	ctx := context.Background()

	alice := core.PartitionID{Owner: "alice", Class: core.PartitionAgent}
	bob := core.PartitionID{Owner: "bob", Class: core.PartitionAgent}

	if _, err := ix.Upsert(ctx, alice, "", "apples", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := ix.Upsert(ctx, bob, "", "oranges", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Bob's fruit is the best cosine match for "apples", but it lives
	// in another partition and must stay invisible.
	got, err := ix.Search(ctx, alice, "apples", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("%d results, want 1", len(got))
	}
	if text := got[0].Point.Payload["text"]; text != "apples" {
		t.Errorf("result text = %v, want apples", text)
	}
}

func TestIndexRanksBySimilarity(t *testing.T) {
	ix, _ := testIndex()
	ctx := context.Background()
	p := core.PartitionID{Owner: "alice", Class: core.PartitionAgent}

	if _, err := ix.Upsert(ctx, p, "fruit", "oranges", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := ix.Upsert(ctx, p, "cars", "engines", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := ix.Search(ctx, p, "apples", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("%d results, want 2", len(got))
	}
	if got[0].ID != "fruit" {
		t.Errorf("best match = %s, want fruit", got[0].ID)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("results not ranked: %v then %v", got[0].Score, got[1].Score)
	}
}

func TestIndexRejectsSandboxPartitions(t *testing.T) {
	ix, _ := testIndex()
	ctx := context.Background()
	sandbox := core.PartitionID{Owner: "sandbox-1", Class: core.PartitionSandbox}

	if _, err := ix.Upsert(ctx, sandbox, "", "secret", nil); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("sandbox upsert: %v", err)
	}
	if _, err := ix.Search(ctx, sandbox, "secret", 5); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("sandbox search: %v", err)
	}
	if _, err := ix.Upsert(ctx, core.PartitionID{}, "", "x", nil); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("zero partition upsert: %v", err)
	}
}

func TestIndexSearchFreshPartitionIsEmpty(t *testing.T) {
	ix, _ := testIndex()
	got, err := ix.Search(context.Background(), core.PartitionID{Owner: "new", Class: core.PartitionSubChat}, "apples", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("fresh partition returned %d results", len(got))
	}
}

func TestIndexUpsertAssignsIDAndKeepsPayload(t *testing.T) {
	ix, _ := testIndex()
	ctx := context.Background()
	p := core.PartitionID{Owner: "alice", Class: core.PartitionAgent}

	id, err := ix.Upsert(ctx, p, "", "apples", map[string]interface{}{"kind": "fruit"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if id == "" {
		t.Fatal("no ID assigned")
	}

	got, err := ix.Search(ctx, p, "apples", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("results = %+v, want id %s", got, id)
	}
	if got[0].Point.Payload["kind"] != "fruit" {
		t.Errorf("payload = %v", got[0].Point.Payload)
	}
}

func TestSanitizeCollectionPart(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"agent-7f3a", "agent-7f3a"},
		{"has space", "has_space"},
		{"dots.and/slash", "dots_and_slash"},
		{"UPPER_ok-9", "UPPER_ok-9"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := sanitizeCollectionPart(tt.in); got != tt.want {
				t.Errorf("sanitizeCollectionPart(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMemoryVectorStoreThresholdAndLimit(t *testing.T) {
	store := NewMemoryVectorStore()
	ctx := context.Background()
	if err := store.CreateCollection(ctx, "c", 3); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	// Idempotent create must not wipe contents.
	points := []Point{
		{ID: "exact", Vector: []float32{1, 0, 0}},
		{ID: "near", Vector: []float32{0.9, 0.1, 0}},
		{ID: "far", Vector: []float32{0, 0, 1}},
	}
	if err := store.Upsert(ctx, "c", points); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.CreateCollection(ctx, "c", 3); err != nil {
		t.Fatalf("re-create: %v", err)
	}

	got, err := store.Search(ctx, "c", []float32{1, 0, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("%d results above threshold, want 2", len(got))
	}
	if got[0].ID != "exact" || got[1].ID != "near" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}

	got, err = store.Search(ctx, "c", []float32{1, 0, 0}, 1, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "exact" {
		t.Fatalf("limited results = %+v", got)
	}

	if _, err := store.Search(ctx, "missing", []float32{1}, 1, 0); !errors.HasCode(err, errors.CodeStorage) {
		t.Fatalf("missing collection: %v", err)
	}
}
