package audit

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
)

func testRecord(i int) Record {
	return Record{
		ActorID:    fmt.Sprintf("actor-%d", i),
		ActorKind:  core.KindAgent,
		ActionKind: core.ActionPartitionRead,
		Decision:   core.DecisionAllow,
		Mode:       core.ModeNormal,
		RuleID:     "partition.owner",
		Reason:     "owner access",
	}
}

func TestMemoryLogAppendAssignsChain(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	var prevDigest []byte
	for i := 1; i <= 5; i++ {
		r, err := log.Append(ctx, testRecord(i))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if r.Seq != uint64(i) {
			t.Errorf("record %d: seq = %d, want %d", i, r.Seq, i)
		}
		if len(r.Digest) == 0 {
			t.Errorf("record %d: empty digest", i)
		}
		if bytesEqual(r.Digest, prevDigest) {
			t.Errorf("record %d: digest did not advance", i)
		}
		prevDigest = r.Digest
	}

	n, err := log.Len(ctx)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 5 {
		t.Errorf("len = %d, want 5", n)
	}
	if err := log.Verify(ctx); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestMemoryLogTail(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	for i := 1; i <= 5; i++ {
		if _, err := log.Append(ctx, testRecord(i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	tests := []struct {
		name     string
		n        int
		wantLen  int
		wantSeqs []uint64
	}{
		{"last two", 2, 2, []uint64{4, 5}},
		{"more than stored", 10, 5, []uint64{1, 2, 3, 4, 5}},
		{"zero", 0, 0, nil},
		{"negative", -1, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := log.Tail(ctx, tt.n)
			if err != nil {
				t.Fatalf("tail: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("tail returned %d records, want %d", len(got), tt.wantLen)
			}
			for i, r := range got {
				if r.Seq != tt.wantSeqs[i] {
					t.Errorf("tail[%d].Seq = %d, want %d", i, r.Seq, tt.wantSeqs[i])
				}
			}
		})
	}
}

func TestMemoryLogVerifyDetectsTamper(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	for i := 1; i <= 3; i++ {
		if _, err := log.Append(ctx, testRecord(i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	log.records[1].Reason = "rewritten"
	if err := log.Verify(ctx); err == nil {
		t.Fatal("verify passed on tampered chain")
	}
}

func TestSQLiteLogRoundTrip(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	log, err := NewSQLiteLog(db)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}

	for i := 1; i <= 3; i++ {
		r, err := log.Append(ctx, testRecord(i))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if r.Seq != uint64(i) {
			t.Errorf("seq = %d, want %d", r.Seq, i)
		}
	}

	got, err := log.Tail(ctx, 2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 2 || got[1].Seq != 3 {
		t.Errorf("tail returned wrong records: %+v", got)
	}
	if got[1].ActorID != "actor-3" {
		t.Errorf("actor = %q, want actor-3", got[1].ActorID)
	}
	if got[1].Decision != core.DecisionAllow {
		t.Errorf("decision = %q, want allow", got[1].Decision)
	}

	n, err := log.Len(ctx)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 3 {
		t.Errorf("len = %d, want 3", n)
	}
	if err := log.Verify(ctx); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestSQLiteLogResumesChain(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	first, err := NewSQLiteLog(db)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	if _, err := first.Append(ctx, testRecord(1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := first.Append(ctx, testRecord(2)); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Reopen over the same database: the chain head must carry over.
	second, err := NewSQLiteLog(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	r, err := second.Append(ctx, testRecord(3))
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if r.Seq != 3 {
		t.Errorf("seq after reopen = %d, want 3", r.Seq)
	}
	if err := second.Verify(ctx); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestSQLiteLogVerifyDetectsTamper(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	log, err := NewSQLiteLog(db)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if _, err := log.Append(ctx, testRecord(i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if _, err := db.Exec(`UPDATE audit_records SET reason = 'rewritten' WHERE seq = 2`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	err = log.Verify(ctx)
	if err == nil {
		t.Fatal("verify passed on tampered chain")
	}
	if !errors.HasCode(err, errors.CodeInternal) {
		t.Errorf("verify error code = %v, want INTERNAL_ERROR", err)
	}
}
