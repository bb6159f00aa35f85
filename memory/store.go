package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/vectorhaus/mnemo/logging"
)

// Action is what a smart upsert did with the candidate record.
type Action string

const (
	// ActionCreated means a new record was written under the request id.
	ActionCreated Action = "created"

	// ActionUpdated means an existing near-duplicate was merged in place;
	// the surviving id is the matched record's, not the request's.
	ActionUpdated Action = "updated"

	// ActionSkipped means a duplicate was found and nothing was written.
	ActionSkipped Action = "skipped"
)

// batchSize is how many records a dedup-free batch save embeds and writes
// per provider round trip.
const batchSize = 100

// SaveRequest describes one smart-upsert candidate.
//
// Zero values select the documented defaults: duplicate checking on, merge
// on duplicate, default thresholds, type "message", and a timestamp-derived
// id.
type SaveRequest struct {
	Namespace string
	Text      string

	// ID is the requested record id. Derived from the namespace, type and
	// current time when empty.
	ID string

	// Type tags the record role; TypeMessage when empty.
	Type Type

	// Optional metadata fields, written only when set.
	Author     string
	Filename   string
	ChunkIndex int
	PageNo     int
	Headings   string
	ChunkCount int

	// SkipDedup writes unconditionally, bypassing the similarity check.
	SkipDedup bool

	// SkipOnDuplicate drops duplicates instead of merging into the match.
	SkipOnDuplicate bool

	// Thresholds overrides the classifier thresholds for this call.
	Thresholds Thresholds

	// Filter restricts the duplicate probe to matching records.
	Filter Filter
}

// SaveResult reports the outcome of one smart upsert. Status, Score and
// MatchedID are populated whenever a duplicate check ran, regardless of the
// action taken, so callers can audit the decision. Err is set only inside
// batch results.
type SaveResult struct {
	Action    Action  `json:"action"`
	ID        string  `json:"id"`
	Status    Status  `json:"similarity_status,omitempty"`
	Score     float64 `json:"similarity_score,omitempty"`
	MatchedID string  `json:"matched_id,omitempty"`
	Err       error   `json:"-"`
}

// BatchResult aggregates per-action counts over a batch save. Results keeps
// the input order.
type BatchResult struct {
	Total   int          `json:"total"`
	Created int          `json:"created"`
	Updated int          `json:"updated"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
	Results []SaveResult `json:"results"`
}

// Store is the upsert/delete/stats API over the vector index. It applies the
// classifier to decide create-vs-merge and enforces the record metadata
// schema.
type Store struct {
	index      Index
	embedder   Embedder
	classifier *Classifier
	now        func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the timestamp source. Used by tests for stable ids.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store over the given index and embedder.
func NewStore(index Index, embedder Embedder, opts ...StoreOption) *Store {
	s := &Store{
		index:      index,
		embedder:   embedder,
		classifier: NewClassifier(index, embedder),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classifier exposes the store's similarity classifier for read-only checks.
func (s *Store) Classifier() *Classifier {
	return s.classifier
}

// Save performs a smart upsert of one record:
//
//  1. With SkipDedup set, the record is written unconditionally.
//  2. Otherwise the text is classified against the namespace. A duplicate is
//     merged into the matched record (or skipped when SkipOnDuplicate is
//     set); similar and new content is written under the request id.
//
// Any embedding or index failure aborts the whole call.
func (s *Store) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	if req.Namespace == "" {
		return nil, goerr.New("namespace is required", goerr.T(ErrTagIndexOp))
	}
	if req.Type == "" {
		req.Type = TypeMessage
	}
	if req.ID == "" {
		req.ID = NewRecordID(req.Namespace, req.Type, s.now())
	}

	result := &SaveResult{ID: req.ID}

	if !req.SkipDedup {
		cls, err := s.classifier.Classify(ctx, req.Text, req.Namespace, req.Filter, req.Thresholds)
		if err != nil {
			return nil, err
		}
		result.Status = cls.Status
		if cls.Match != nil {
			result.Score = cls.Match.Score
			result.MatchedID = cls.Match.ID
		}

		if cls.Status == StatusDuplicate {
			if req.SkipOnDuplicate {
				result.Action = ActionSkipped
				return result, nil
			}
			md := s.record(req).metadata()
			if err := s.index.UpdateMetadata(ctx, req.Namespace, cls.Match.ID, md); err != nil {
				return nil, goerr.Wrap(err, "failed to merge duplicate record",
					goerr.T(ErrTagIndexOp), goerr.Value("matched_id", cls.Match.ID))
			}
			result.Action = ActionUpdated
			result.ID = cls.Match.ID
			return result, nil
		}
	}

	vector, err := s.embedder.Embed(ctx, req.Text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed record text", goerr.T(ErrTagEmbedding))
	}

	entry := Entry{ID: req.ID, Vector: vector, Metadata: s.record(req).metadata()}
	if err := s.index.Upsert(ctx, req.Namespace, []Entry{entry}); err != nil {
		return nil, goerr.Wrap(err, "failed to upsert record",
			goerr.T(ErrTagIndexOp), goerr.Value("id", req.ID))
	}

	result.Action = ActionCreated
	return result, nil
}

// SaveBatch applies Save to each request, best-effort per item: a failing
// item gets its error recorded in its result entry and the batch continues.
//
// Requests with duplicate checking enabled are processed strictly one at a
// time, since each decision can depend on what the previous one wrote.
// Consecutive SkipDedup requests in the same namespace are embedded together
// and written in chunks for throughput.
func (s *Store) SaveBatch(ctx context.Context, reqs []SaveRequest) (*BatchResult, error) {
	batch := &BatchResult{
		Total:   len(reqs),
		Results: make([]SaveResult, len(reqs)),
	}

	var pending []int
	flush := func() {
		if len(pending) > 0 {
			s.saveFast(ctx, reqs, pending, batch)
			pending = pending[:0]
		}
	}

	for i := range reqs {
		if reqs[i].SkipDedup {
			if len(pending) > 0 && (reqs[pending[0]].Namespace != reqs[i].Namespace || len(pending) == batchSize) {
				flush()
			}
			pending = append(pending, i)
			continue
		}
		flush()

		res, err := s.Save(ctx, reqs[i])
		if err != nil {
			batch.Results[i] = SaveResult{ID: reqs[i].ID, Err: err}
			batch.Failed++
			continue
		}
		batch.Results[i] = *res
		batch.count(res.Action)
	}
	flush()

	logging.From(ctx).Debug("batch save finished",
		"total", batch.Total,
		"created", batch.Created,
		"updated", batch.Updated,
		"skipped", batch.Skipped,
		"failed", batch.Failed,
	)
	return batch, nil
}

// saveFast embeds and writes a group of same-namespace, dedup-free requests
// in one provider round trip. An embedding failure is attributed to every
// item in the group; an upsert failure likewise.
func (s *Store) saveFast(ctx context.Context, reqs []SaveRequest, idxs []int, batch *BatchResult) {
	namespace := reqs[idxs[0]].Namespace

	texts := make([]string, len(idxs))
	for n, i := range idxs {
		if reqs[i].Type == "" {
			reqs[i].Type = TypeMessage
		}
		if reqs[i].ID == "" {
			// Batch position keeps derived ids distinct even when the
			// clock is too coarse to separate consecutive items.
			reqs[i].ID = fmt.Sprintf("%s_%d", NewRecordID(namespace, reqs[i].Type, s.now()), n)
		}
		texts[n] = reqs[i].Text
	}

	fail := func(err error) {
		for _, i := range idxs {
			batch.Results[i] = SaveResult{ID: reqs[i].ID, Err: err}
			batch.Failed++
		}
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		fail(goerr.Wrap(err, "failed to embed batch", goerr.T(ErrTagEmbedding)))
		return
	}
	if len(vectors) != len(texts) {
		fail(goerr.New("embedding batch size mismatch", goerr.T(ErrTagEmbedding),
			goerr.Value("want", len(texts)), goerr.Value("got", len(vectors))))
		return
	}

	entries := make([]Entry, len(idxs))
	for n, i := range idxs {
		entries[n] = Entry{ID: reqs[i].ID, Vector: vectors[n], Metadata: s.record(reqs[i]).metadata()}
	}
	if err := s.index.Upsert(ctx, namespace, entries); err != nil {
		fail(goerr.Wrap(err, "failed to upsert batch", goerr.T(ErrTagIndexOp)))
		return
	}

	for _, i := range idxs {
		batch.Results[i] = SaveResult{Action: ActionCreated, ID: reqs[i].ID}
		batch.Created++
	}
}

// SaveDocumentPassport upserts the singleton passport record for an ingested
// document. The id is a deterministic digest of the filename, so repeating
// the call for the same file replaces the prior passport instead of
// duplicating it. Duplicate checking is always off here: identity is the
// filename, not the text.
func (s *Store) SaveDocumentPassport(ctx context.Context, namespace, filename string, chunkCount int) (*SaveResult, error) {
	if filename == "" {
		return nil, goerr.New("filename is required", goerr.T(ErrTagIndexOp))
	}
	return s.Save(ctx, SaveRequest{
		Namespace:  namespace,
		ID:         PassportID(filename),
		Text:       passportText(filename, chunkCount),
		Type:       TypeDocIndex,
		Filename:   filename,
		ChunkCount: chunkCount,
		SkipDedup:  true,
	})
}

// Forget deletes the given record ids from the namespace.
func (s *Store) Forget(ctx context.Context, namespace string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.index.Delete(ctx, namespace, ids); err != nil {
		return goerr.Wrap(err, "failed to delete records",
			goerr.T(ErrTagIndexOp), goerr.Value("namespace", namespace))
	}
	return nil
}

// Clear deletes every record in the namespace.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	if err := s.index.DeleteAll(ctx, namespace); err != nil {
		return goerr.Wrap(err, "failed to clear namespace",
			goerr.T(ErrTagIndexOp), goerr.Value("namespace", namespace))
	}
	logging.From(ctx).Info("namespace cleared", "namespace", namespace)
	return nil
}

// Fetch returns the records stored under the given ids.
func (s *Store) Fetch(ctx context.Context, namespace string, ids ...string) ([]Record, error) {
	entries, err := s.index.Fetch(ctx, namespace, ids)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch records",
			goerr.T(ErrTagIndexOp), goerr.Value("namespace", namespace))
	}
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, recordFromMetadata(namespace, e.ID, 0, e.Metadata))
	}
	return records, nil
}

// Stats reports per-namespace record counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read index stats", goerr.T(ErrTagIndexOp))
	}
	return stats, nil
}

// record builds the metadata-bearing record view of a request.
func (s *Store) record(req SaveRequest) Record {
	return Record{
		ID:         req.ID,
		Namespace:  req.Namespace,
		Text:       req.Text,
		Type:       req.Type,
		CreatedAt:  s.now(),
		Author:     req.Author,
		Filename:   req.Filename,
		ChunkIndex: req.ChunkIndex,
		PageNo:     req.PageNo,
		Headings:   req.Headings,
		ChunkCount: req.ChunkCount,
	}
}

func (b *BatchResult) count(action Action) {
	switch action {
	case ActionCreated:
		b.Created++
	case ActionUpdated:
		b.Updated++
	case ActionSkipped:
		b.Skipped++
	}
}
