package memory_test

import (
	"context"
	"errors"
	"sync"

	"github.com/vectorhaus/mnemo/memory"
)

// fakeEmbedder returns length-derived vectors and counts provider calls.
// It mimics the real embedders closely enough for plumbing tests; it does
// not provide semantic similarity.
type fakeEmbedder struct {
	dims       int
	embedCalls int
	batchCalls int
	failTexts  map[string]bool
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims, failTexts: map[string]bool{}}
}

func (e *fakeEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.dims)
	for i := range vec {
		vec[i] = float32(len(text)) / float32(e.dims+i+1)
	}
	return vec
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.embedCalls++
	if e.failTexts[text] {
		return nil, errors.New("embedding backend down")
	}
	return e.vector(text), nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batchCalls++
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		if e.failTexts[text] {
			return nil, errors.New("embedding backend down")
		}
		vecs[i] = e.vector(text)
	}
	return vecs, nil
}

func (e *fakeEmbedder) Dimensions() int {
	return e.dims
}

type metadataUpdate struct {
	namespace string
	id        string
	metadata  map[string]string
}

// fakeIndex is a scriptable memory.Index. Query answers come from the
// matches table regardless of vector; writes are recorded for inspection.
type fakeIndex struct {
	mu sync.Mutex

	matches  map[string][]memory.Match
	queryErr error

	entries     map[string]map[string]memory.Entry
	upsertCalls [][]string
	updates     []metadataUpdate
	upsertErr   error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		matches: map[string][]memory.Match{},
		entries: map[string]map[string]memory.Entry{},
	}
}

func (x *fakeIndex) Upsert(ctx context.Context, namespace string, entries []memory.Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.upsertErr != nil {
		return x.upsertErr
	}
	if x.entries[namespace] == nil {
		x.entries[namespace] = map[string]memory.Entry{}
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		x.entries[namespace][e.ID] = e
		ids = append(ids, e.ID)
	}
	x.upsertCalls = append(x.upsertCalls, ids)
	return nil
}

func (x *fakeIndex) Query(ctx context.Context, namespace string, vector []float32, topK int, filter memory.Filter) ([]memory.Match, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.queryErr != nil {
		return nil, x.queryErr
	}
	matches := x.matches[namespace]
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (x *fakeIndex) Fetch(ctx context.Context, namespace string, ids []string) ([]memory.Entry, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []memory.Entry
	for _, id := range ids {
		if e, ok := x.entries[namespace][id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (x *fakeIndex) UpdateMetadata(ctx context.Context, namespace, id string, metadata map[string]string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.updates = append(x.updates, metadataUpdate{namespace: namespace, id: id, metadata: metadata})
	if e, ok := x.entries[namespace][id]; ok {
		e.Metadata = metadata
		x.entries[namespace][id] = e
	}
	return nil
}

func (x *fakeIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		delete(x.entries[namespace], id)
	}
	return nil
}

func (x *fakeIndex) DeleteAll(ctx context.Context, namespace string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, namespace)
	return nil
}

func (x *fakeIndex) Stats(ctx context.Context) (*memory.Stats, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	stats := &memory.Stats{Namespaces: map[string]memory.NamespaceStats{}}
	for ns, entries := range x.entries {
		stats.Namespaces[ns] = memory.NamespaceStats{RecordCount: len(entries)}
		stats.TotalRecords += len(entries)
	}
	return stats, nil
}
