package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/vectorhaus/mnemo/logging"
)

// defaultScoreFloor is the minimum similarity for the normal retrieval path.
// Raw user messages score lower than distilled facts, so the gate sits well
// below the dedup thresholds. Comparison is a strict >: a boundary-exact
// score is excluded.
const defaultScoreFloor = 0.30

// defaultTopK is the result cap when the caller does not pick one.
const defaultTopK = 10

// recallTopK is the widened neighbor count for the recall-everything path.
const recallTopK = 50

// recallProbe is the generic query embedded on the recall-everything path.
// It covers the common themes of stored messages; scoring against the
// user's literal "tell me everything" phrasing would be meaningless.
const recallProbe = "пользователь написал сказал предпочтения интересы"

// recallTriggers are literal phrase fragments that switch retrieval to the
// recall-everything path. Matching is case-insensitive substring
// containment, deliberately exact rather than fuzzy.
var recallTriggers = []string{
	"все предпочтени",
	"мои предпочтени",
	"напомни мне",
	"расскажи о мне",
	"что ты знаешь обо мне",
	"моя память",
	"мои интересы",
	"обо мне",
	"what do you know about me",
	"remind me",
	"my memory",
	"my preferences",
}

// Retriever turns a free-text query into a ranked, score-gated list of
// records from one namespace. Document passports (doc_index) never appear in
// its results: they describe documents, not content.
type Retriever struct {
	index    Index
	embedder Embedder
	floor    float64
	triggers []string
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithScoreFloor overrides the minimum similarity gate.
func WithScoreFloor(floor float64) RetrieverOption {
	return func(r *Retriever) {
		r.floor = floor
	}
}

// WithTriggers replaces the recall-everything trigger phrases.
func WithTriggers(triggers []string) RetrieverOption {
	return func(r *Retriever) {
		r.triggers = triggers
	}
}

// NewRetriever creates a retriever over the given index and embedder.
func NewRetriever(index Index, embedder Embedder, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		index:    index,
		embedder: embedder,
		floor:    defaultScoreFloor,
		triggers: recallTriggers,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK records semantically close to query, sorted by
// descending score. When the query contains a recall-everything trigger
// phrase, the score gate is dropped and a broad probe is issued instead:
// recall dominates precision on "what do you know about me" questions.
func (r *Retriever) Retrieve(ctx context.Context, namespace, query string, topK int) ([]Record, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	if r.wantsEverything(query) {
		logging.From(ctx).Debug("recall-everything trigger matched, skipping score gate",
			"namespace", namespace)
		return r.retrieveAll(ctx, namespace, topK)
	}

	matches, err := r.query(ctx, namespace, query, topK)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(matches))
	for _, m := range matches {
		if m.Score <= r.floor {
			continue
		}
		rec := recordFromMetadata(namespace, m.ID, m.Score, m.Metadata)
		if rec.Type == TypeDocIndex {
			continue
		}
		records = append(records, rec)
	}
	if len(records) > topK {
		records = records[:topK]
	}
	return records, nil
}

// retrieveAll is the override path: a broad probe with a widened topK and no
// score filter. Passports are still excluded.
func (r *Retriever) retrieveAll(ctx context.Context, namespace string, topK int) ([]Record, error) {
	if topK < recallTopK {
		topK = recallTopK
	}

	matches, err := r.query(ctx, namespace, recallProbe, topK)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(matches))
	for _, m := range matches {
		rec := recordFromMetadata(namespace, m.ID, m.Score, m.Metadata)
		if rec.Type == TypeDocIndex {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// query embeds text and fetches its nearest neighbors, re-sorted descending
// by score. The index contract already promises score-descending output, but
// ranking must not depend on it.
func (r *Retriever) query(ctx context.Context, namespace, text string, topK int) ([]Match, error) {
	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query", goerr.T(ErrTagEmbedding))
	}

	matches, err := r.index.Query(ctx, namespace, vector, topK, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query index",
			goerr.T(ErrTagIndexOp), goerr.Value("namespace", namespace))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches, nil
}

func (r *Retriever) wantsEverything(query string) bool {
	lower := strings.ToLower(query)
	for _, phrase := range r.triggers {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
