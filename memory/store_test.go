package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vectorhaus/mnemo/memory"
	"github.com/vectorhaus/mnemo/memory/embedder/mock"
	"github.com/vectorhaus/mnemo/memory/index/chromem"
)

func TestStoreSaveCreatesNewRecord(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	store := memory.NewStore(idx, newFakeEmbedder(8))

	result, err := store.Save(ctx, memory.SaveRequest{
		Namespace: "user1",
		Text:      "I like jazz",
	})
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if result.Action != memory.ActionCreated {
		t.Errorf("Expected created, got %s", result.Action)
	}
	if result.Status != memory.StatusNew {
		t.Errorf("Expected new status, got %s", result.Status)
	}

	entry, ok := idx.entries["user1"][result.ID]
	if !ok {
		t.Fatalf("Expected entry %s in index", result.ID)
	}
	if entry.Metadata["text"] != "I like jazz" {
		t.Errorf("Expected text metadata, got %q", entry.Metadata["text"])
	}
	if entry.Metadata["type"] != "message" {
		t.Errorf("Expected default type message, got %q", entry.Metadata["type"])
	}
	if _, err := time.Parse(time.RFC3339, entry.Metadata["created_at"]); err != nil {
		t.Errorf("Expected RFC3339 created_at, got %q", entry.Metadata["created_at"])
	}
}

func TestStoreSaveMergesDuplicate(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	idx.matches["user1"] = []memory.Match{
		{ID: "existing", Score: 0.92},
	}
	store := memory.NewStore(idx, newFakeEmbedder(8))

	result, err := store.Save(ctx, memory.SaveRequest{
		Namespace: "user1",
		Text:      "I like jazz",
	})
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if result.Action != memory.ActionUpdated {
		t.Errorf("Expected updated, got %s", result.Action)
	}
	if result.ID != "existing" {
		t.Errorf("Expected surviving id to be the match, got %s", result.ID)
	}
	if result.MatchedID != "existing" || result.Score != 0.92 {
		t.Errorf("Expected audit fields from the match, got %+v", result)
	}

	if len(idx.updates) != 1 || idx.updates[0].id != "existing" {
		t.Errorf("Expected one metadata merge on the match, got %+v", idx.updates)
	}
	if len(idx.upsertCalls) != 0 {
		t.Errorf("Expected no upsert on merge, got %+v", idx.upsertCalls)
	}
}

func TestStoreSaveSkipOnDuplicate(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	idx.matches["user1"] = []memory.Match{
		{ID: "existing", Score: 0.92},
	}
	store := memory.NewStore(idx, newFakeEmbedder(8))

	result, err := store.Save(ctx, memory.SaveRequest{
		Namespace:       "user1",
		Text:            "I like jazz",
		SkipOnDuplicate: true,
	})
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if result.Action != memory.ActionSkipped {
		t.Errorf("Expected skipped, got %s", result.Action)
	}
	if len(idx.updates) != 0 || len(idx.upsertCalls) != 0 {
		t.Error("Expected no writes when skipping a duplicate")
	}
}

func TestStoreSaveSimilarContentIsCreated(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	idx.matches["user1"] = []memory.Match{
		{ID: "existing", Score: 0.77},
	}
	store := memory.NewStore(idx, newFakeEmbedder(8))

	result, err := store.Save(ctx, memory.SaveRequest{
		Namespace: "user1",
		Text:      "I like jazz concerts",
	})
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if result.Action != memory.ActionCreated {
		t.Errorf("Expected created for similar content, got %s", result.Action)
	}
	if result.Status != memory.StatusSimilar || result.MatchedID != "existing" {
		t.Errorf("Expected similar audit fields, got %+v", result)
	}
}

func TestStoreSaveRequiresNamespace(t *testing.T) {
	ctx := context.Background()

	store := memory.NewStore(newFakeIndex(), newFakeEmbedder(8))

	if _, err := store.Save(ctx, memory.SaveRequest{Text: "orphan"}); err == nil {
		t.Fatal("Expected error for missing namespace")
	}
}

func TestStoreSaveBatchChunksFastPath(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	emb := newFakeEmbedder(8)
	store := memory.NewStore(idx, emb)

	reqs := make([]memory.SaveRequest, 250)
	for i := range reqs {
		reqs[i] = memory.SaveRequest{
			Namespace: "user1",
			ID:        fmt.Sprintf("rec_%d", i),
			Text:      fmt.Sprintf("chunk text %d", i),
			SkipDedup: true,
		}
	}

	batch, err := store.SaveBatch(ctx, reqs)
	if err != nil {
		t.Fatalf("Failed to save batch: %v", err)
	}
	if batch.Created != 250 || batch.Failed != 0 {
		t.Errorf("Expected 250 created, got %+v", batch)
	}
	if emb.batchCalls != 3 {
		t.Errorf("Expected 3 embedding round trips for 250 items, got %d", emb.batchCalls)
	}
	if len(idx.upsertCalls) != 3 {
		t.Fatalf("Expected 3 upsert calls, got %d", len(idx.upsertCalls))
	}
	if len(idx.upsertCalls[0]) != 100 || len(idx.upsertCalls[2]) != 50 {
		t.Errorf("Expected 100/100/50 chunking, got %d/%d/%d",
			len(idx.upsertCalls[0]), len(idx.upsertCalls[1]), len(idx.upsertCalls[2]))
	}
	for i := range batch.Results {
		if batch.Results[i].ID != reqs[i].ID {
			t.Fatalf("Expected results in input order, got %s at %d", batch.Results[i].ID, i)
		}
	}
}

func TestStoreSaveBatchRecordsPerItemFailures(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	emb := newFakeEmbedder(8)
	emb.failTexts["broken"] = true
	store := memory.NewStore(idx, emb)

	reqs := []memory.SaveRequest{
		{Namespace: "user1", Text: "first"},
		{Namespace: "user1", Text: "broken"},
		{Namespace: "user1", Text: "third"},
	}

	batch, err := store.SaveBatch(ctx, reqs)
	if err != nil {
		t.Fatalf("Failed to save batch: %v", err)
	}
	if batch.Created != 2 || batch.Failed != 1 {
		t.Errorf("Expected 2 created and 1 failed, got %+v", batch)
	}
	if batch.Results[1].Err == nil {
		t.Error("Expected the failing item to carry its error")
	}
	if batch.Results[0].Err != nil || batch.Results[2].Err != nil {
		t.Error("Expected surrounding items to succeed")
	}
}

func TestStorePassportIsIdempotent(t *testing.T) {
	ctx := context.Background()

	idx := chromem.New()
	store := memory.NewStore(idx, mock.New())

	first, err := store.SaveDocumentPassport(ctx, "user1", "report.pdf", 10)
	if err != nil {
		t.Fatalf("Failed to save passport: %v", err)
	}
	second, err := store.SaveDocumentPassport(ctx, "user1", "report.pdf", 12)
	if err != nil {
		t.Fatalf("Failed to re-save passport: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("Expected stable passport id, got %s then %s", first.ID, second.ID)
	}

	records, err := store.Fetch(ctx, "user1", first.ID)
	if err != nil {
		t.Fatalf("Failed to fetch passport: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected exactly one passport record, got %d", len(records))
	}
	if records[0].ChunkCount != 12 {
		t.Errorf("Expected the re-ingest to win, got chunk count %d", records[0].ChunkCount)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}
	if stats.Namespaces["user1"].RecordCount != 1 {
		t.Errorf("Expected one record in namespace, got %d", stats.Namespaces["user1"].RecordCount)
	}
}

func TestStoreForgetAndClear(t *testing.T) {
	ctx := context.Background()

	idx := chromem.New()
	store := memory.NewStore(idx, mock.New())

	for i := 0; i < 3; i++ {
		_, err := store.Save(ctx, memory.SaveRequest{
			Namespace: "user1",
			ID:        fmt.Sprintf("rec_%d", i),
			Text:      fmt.Sprintf("memory number %d", i),
			SkipDedup: true,
		})
		if err != nil {
			t.Fatalf("Failed to save: %v", err)
		}
	}

	if err := store.Forget(ctx, "user1", "rec_0"); err != nil {
		t.Fatalf("Failed to forget: %v", err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}
	if stats.Namespaces["user1"].RecordCount != 2 {
		t.Errorf("Expected 2 records after forget, got %d", stats.Namespaces["user1"].RecordCount)
	}

	if err := store.Clear(ctx, "user1"); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	stats, err = store.Stats(ctx)
	if err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}
	if stats.Namespaces["user1"].RecordCount != 0 {
		t.Errorf("Expected empty namespace after clear, got %d", stats.Namespaces["user1"].RecordCount)
	}
}

func TestStoreSaveBatchDerivedIDsAreDistinct(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	// A frozen clock makes every derived timestamp identical, so only the
	// batch position can keep the ids apart.
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(idx, newFakeEmbedder(8), memory.WithClock(func() time.Time { return fixed }))

	reqs := []memory.SaveRequest{
		{Namespace: "user1", Text: "first", SkipDedup: true},
		{Namespace: "user1", Text: "second", SkipDedup: true},
		{Namespace: "user1", Text: "third", SkipDedup: true},
	}
	batch, err := store.SaveBatch(ctx, reqs)
	if err != nil {
		t.Fatalf("Failed to save batch: %v", err)
	}
	if batch.Created != 3 {
		t.Fatalf("Expected 3 created, got %d", batch.Created)
	}

	seen := make(map[string]bool)
	for _, r := range batch.Results {
		if seen[r.ID] {
			t.Errorf("Expected distinct ids, got %q twice", r.ID)
		}
		seen[r.ID] = true
	}
	if got := len(idx.entries["user1"]); got != 3 {
		t.Errorf("Expected 3 stored entries, got %d", got)
	}
}

func TestStoreClockIsInjectable(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(idx, newFakeEmbedder(8), memory.WithClock(func() time.Time { return fixed }))

	result, err := store.Save(ctx, memory.SaveRequest{
		Namespace: "user1",
		Text:      "stable timestamps",
		SkipDedup: true,
	})
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	entry := idx.entries["user1"][result.ID]
	if entry.Metadata["created_at"] != "2025-06-01T12:00:00Z" {
		t.Errorf("Expected injected clock in metadata, got %q", entry.Metadata["created_at"])
	}
}
