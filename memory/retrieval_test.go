package memory_test

import (
	"context"
	"testing"

	"github.com/vectorhaus/mnemo/memory"
	"github.com/vectorhaus/mnemo/memory/embedder/mock"
	"github.com/vectorhaus/mnemo/memory/index/chromem"
)

func scoredMatches() []memory.Match {
	return []memory.Match{
		{ID: "a", Score: 0.9, Metadata: map[string]string{"type": "message", "text": "loves jazz"}},
		{ID: "b", Score: 0.5, Metadata: map[string]string{"type": "message", "text": "lives in Berlin"}},
		{ID: "c", Score: 0.31, Metadata: map[string]string{"type": "fact", "text": "vegetarian"}},
		{ID: "d", Score: 0.30, Metadata: map[string]string{"type": "message", "text": "boundary noise"}},
		{ID: "e", Score: 0.29, Metadata: map[string]string{"type": "message", "text": "below the floor"}},
	}
}

func TestRetrieveAppliesScoreFloor(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	idx.matches["user1"] = scoredMatches()
	retriever := memory.NewRetriever(idx, newFakeEmbedder(8))

	records, err := retriever.Retrieve(ctx, "user1", "what music does the user like", 10)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records above the floor, got %d", len(records))
	}
	// A boundary-exact 0.30 must be excluded.
	for _, rec := range records {
		if rec.ID == "d" || rec.ID == "e" {
			t.Errorf("Expected %s to be gated out at score %v", rec.ID, rec.Score)
		}
	}
	if records[0].ID != "a" {
		t.Errorf("Expected descending score order, got %s first", records[0].ID)
	}
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	idx.matches["user1"] = scoredMatches()
	retriever := memory.NewRetriever(idx, newFakeEmbedder(8))

	records, err := retriever.Retrieve(ctx, "user1", "what music does the user like", 2)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected topK truncation to 2, got %d", len(records))
	}
	if records[0].ID != "a" || records[1].ID != "b" {
		t.Errorf("Expected the two best records, got %s and %s", records[0].ID, records[1].ID)
	}
}

func TestRetrieveExcludesPassports(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	idx.matches["user1"] = []memory.Match{
		{ID: "doc_abc", Score: 0.95, Metadata: map[string]string{"type": "doc_index", "text": "Document report.pdf indexed as 10 chunks"}},
		{ID: "msg", Score: 0.6, Metadata: map[string]string{"type": "message", "text": "loves jazz"}},
	}
	retriever := memory.NewRetriever(idx, newFakeEmbedder(8))

	records, err := retriever.Retrieve(ctx, "user1", "report", 10)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(records) != 1 || records[0].ID != "msg" {
		t.Errorf("Expected passports filtered from results, got %+v", records)
	}
}

func TestRetrieveRecallEverythingSkipsGate(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	idx.matches["user1"] = scoredMatches()
	retriever := memory.NewRetriever(idx, newFakeEmbedder(8))

	queries := []string{
		"что ты знаешь обо мне?",
		"Напомни мне все мои предпочтения",
		"What do you know about me?",
	}
	for _, query := range queries {
		records, err := retriever.Retrieve(ctx, "user1", query, 10)
		if err != nil {
			t.Fatalf("Failed to retrieve for %q: %v", query, err)
		}
		if len(records) != 5 {
			t.Errorf("Expected all 5 records without the gate for %q, got %d", query, len(records))
		}
	}
}

func TestRetrieveNamespaceIsolation(t *testing.T) {
	ctx := context.Background()

	idx := chromem.New()
	embedder := mock.New()
	store := memory.NewStore(idx, embedder)

	_, err := store.Save(ctx, memory.SaveRequest{
		Namespace: "userA",
		Text:      "I love jazz",
		SkipDedup: true,
	})
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	retriever := memory.NewRetriever(idx, embedder)

	// An identical query text in another namespace sees nothing.
	records, err := retriever.Retrieve(ctx, "userB", "I love jazz", 10)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no cross-namespace results, got %d", len(records))
	}

	cls, err := store.Classifier().Classify(ctx, "I love jazz", "userB", nil, memory.Thresholds{})
	if err != nil {
		t.Fatalf("Failed to classify: %v", err)
	}
	if cls.Status != memory.StatusNew {
		t.Errorf("Expected new in the empty namespace, got %s", cls.Status)
	}

	// The owning namespace still finds it; the mock embedder is
	// deterministic, so the identical text scores a perfect match.
	records, err = retriever.Retrieve(ctx, "userA", "I love jazz", 10)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(records) != 1 || records[0].Text != "I love jazz" {
		t.Errorf("Expected the record in its own namespace, got %+v", records)
	}
}

func TestRetrieveCustomFloorAndTriggers(t *testing.T) {
	ctx := context.Background()

	idx := newFakeIndex()
	idx.matches["user1"] = scoredMatches()
	retriever := memory.NewRetriever(idx, newFakeEmbedder(8),
		memory.WithScoreFloor(0.6),
		memory.WithTriggers([]string{"dump everything"}),
	)

	records, err := retriever.Retrieve(ctx, "user1", "what music does the user like", 10)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(records) != 1 || records[0].ID != "a" {
		t.Errorf("Expected raised floor to keep one record, got %+v", records)
	}

	records, err = retriever.Retrieve(ctx, "user1", "please dump everything you have", 10)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(records) != 5 {
		t.Errorf("Expected custom trigger to bypass the gate, got %d records", len(records))
	}
}
