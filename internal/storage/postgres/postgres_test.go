package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/rankwatch/internal/storage"
	"github.com/google/uuid"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if RANKWATCH_TEST_PG_DSN is set
	dsn := os.Getenv("RANKWATCH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: RANKWATCH_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	now := time.Now().UTC()
	runID := uuid.NewString()

	rec := &storage.RankRecord{
		ID:             uuid.NewString(),
		RunID:          runID,
		RunAt:          now,
		Timestamp:      now.Format(storage.TimestampLayout),
		Keyword:        "강남 한의원",
		Branch:         "Gangnam",
		Rank:           3,
		MatchTitle:     "A clinic",
		MatchLink:      "http://a-clinic.example.com/",
		MatchAddress:   "Gangnam-daero 1 Yeoksam-dong",
		MatchTelephone: "02-555-1234",
	}
	if err := b.Save(ctx, rec); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}
	failed := &storage.RankRecord{
		ID:        uuid.NewString(),
		RunID:     runID,
		RunAt:     now,
		Timestamp: rec.Timestamp,
		Keyword:   "q2",
		Error:     "upstream status 500",
	}
	if err := b.Save(ctx, failed); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	results, err := b.Query(ctx, storage.Filter{RunID: runID})
	if err != nil {
		t.Fatalf("Failed to query records: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	got := results[0]
	if got.ID != rec.ID {
		t.Errorf("Expected records in save order, got %s first", got.ID)
	}
	if got.Rank != rec.Rank || got.MatchLink != rec.MatchLink || got.MatchTelephone != rec.MatchTelephone {
		t.Errorf("Expected %+v, got %+v", rec, got)
	}
	// Postgres timestamps might differ in sub-microsecond precision, so
	// compare Unix seconds.
	if got.RunAt.Unix() != rec.RunAt.Unix() {
		t.Errorf("Expected RunAt %v, got %v", rec.RunAt, got.RunAt)
	}
	if results[1].Error != failed.Error {
		t.Errorf("Expected Error %q, got %q", failed.Error, results[1].Error)
	}

	boolTrue := true
	ranked, err := b.Query(ctx, storage.Filter{RunID: runID, Ranked: &boolTrue})
	if err != nil {
		t.Fatalf("Failed to query ranked: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("Expected 1 ranked result, got %d", len(ranked))
	}

	past := now.Add(-1 * time.Hour)
	since, err := b.Query(ctx, storage.Filter{RunID: runID, Since: &past, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query with Since: %v", err)
	}
	if len(since) != 1 || since[0].ID != failed.ID {
		t.Errorf("Expected the second record, got %+v", since)
	}
}
