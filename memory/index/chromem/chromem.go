// Package chromem adapts chromem-go, a pure-Go embedded vector database, to
// the memory.Index contract. Each namespace maps to its own collection,
// which is what enforces isolation: a query can only ever see the
// collection it was issued against.
//
// Intended for local runs and integration tests; production deployments use
// the pinecone adapter.
package chromem

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"

	"github.com/vectorhaus/mnemo/memory"
)

// Index is an embedded, in-process memory.Index.
type Index struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// New creates an empty in-memory index. State is lost when the process
// exits; use NewPersistent for anything longer-lived.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// NewPersistent creates an index backed by an on-disk database at path,
// loading any collections a previous process left there.
func NewPersistent(path string) (*Index, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open persistent database",
			goerr.T(memory.ErrTagIndexConn), goerr.Value("path", path))
	}
	return &Index{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// collection returns the namespace's collection, resolving one loaded from
// disk or creating it on first use.
func (x *Index) collection(namespace string) (*chromem.Collection, error) {
	if namespace == "" {
		return nil, goerr.New("namespace is required", goerr.T(memory.ErrTagIndexOp))
	}

	x.mu.RLock()
	col, ok := x.collections[namespace]
	x.mu.RUnlock()
	if ok {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, ok := x.collections[namespace]; ok {
		return col, nil
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col = x.db.GetCollection(namespace, nil)
	if col == nil {
		var err error
		col, err = x.db.CreateCollection(namespace, nil, nil)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create collection",
				goerr.T(memory.ErrTagIndexConn), goerr.Value("namespace", namespace))
		}
	}
	x.collections[namespace] = col
	return col, nil
}

// Upsert writes entries into the namespace. chromem keys documents by id, so
// re-adding an id replaces the prior document.
func (x *Index) Upsert(ctx context.Context, namespace string, entries []memory.Entry) error {
	col, err := x.collection(namespace)
	if err != nil {
		return err
	}
	for _, e := range entries {
		doc := chromem.Document{
			ID:        e.ID,
			Content:   e.Metadata["text"],
			Embedding: e.Vector,
			Metadata:  e.Metadata,
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return goerr.Wrap(err, "failed to add document",
				goerr.T(memory.ErrTagIndexOp), goerr.Value("id", e.ID))
		}
	}
	return nil
}

// Query returns up to topK nearest neighbors. chromem rejects result counts
// above the collection size, so topK is clamped first.
func (x *Index) Query(ctx context.Context, namespace string, vector []float32, topK int, filter memory.Filter) ([]memory.Match, error) {
	col, err := x.collection(namespace)
	if err != nil {
		return nil, err
	}

	if count := col.Count(); topK > count {
		topK = count
	}
	if topK <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, map[string]string(filter), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query collection",
			goerr.T(memory.ErrTagIndexOp), goerr.Value("namespace", namespace))
	}

	matches := make([]memory.Match, 0, len(results))
	for _, res := range results {
		matches = append(matches, memory.Match{
			ID:       res.ID,
			Score:    float64(res.Similarity),
			Metadata: res.Metadata,
		})
	}
	return matches, nil
}

// Fetch returns the stored entries for the given ids, omitting missing ones.
func (x *Index) Fetch(ctx context.Context, namespace string, ids []string) ([]memory.Entry, error) {
	col, err := x.collection(namespace)
	if err != nil {
		return nil, err
	}

	entries := make([]memory.Entry, 0, len(ids))
	for _, id := range ids {
		doc, err := col.GetByID(ctx, id)
		if err != nil {
			continue
		}
		entries = append(entries, memory.Entry{
			ID:       doc.ID,
			Vector:   doc.Embedding,
			Metadata: doc.Metadata,
		})
	}
	return entries, nil
}

// UpdateMetadata replaces an entry's metadata in place, keeping its vector.
// chromem has no partial update, so the document is re-added under its id.
func (x *Index) UpdateMetadata(ctx context.Context, namespace, id string, metadata map[string]string) error {
	col, err := x.collection(namespace)
	if err != nil {
		return err
	}

	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "record to update not found",
			goerr.T(memory.ErrTagIndexOp), goerr.Value("id", id))
	}

	updated := chromem.Document{
		ID:        id,
		Content:   metadata["text"],
		Embedding: doc.Embedding,
		Metadata:  metadata,
	}
	if err := col.AddDocument(ctx, updated); err != nil {
		return goerr.Wrap(err, "failed to update document",
			goerr.T(memory.ErrTagIndexOp), goerr.Value("id", id))
	}
	return nil
}

// Delete removes the given ids from the namespace.
func (x *Index) Delete(ctx context.Context, namespace string, ids []string) error {
	col, err := x.collection(namespace)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return goerr.Wrap(err, "failed to delete documents",
			goerr.T(memory.ErrTagIndexOp), goerr.Value("namespace", namespace))
	}
	return nil
}

// DeleteAll drops the namespace's collection entirely.
func (x *Index) DeleteAll(ctx context.Context, namespace string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.db.GetCollection(namespace, nil) == nil {
		delete(x.collections, namespace)
		return nil
	}
	if err := x.db.DeleteCollection(namespace); err != nil {
		return goerr.Wrap(err, "failed to delete collection",
			goerr.T(memory.ErrTagIndexOp), goerr.Value("namespace", namespace))
	}
	delete(x.collections, namespace)
	return nil
}

// Stats counts records per namespace.
func (x *Index) Stats(ctx context.Context) (*memory.Stats, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	// ListCollections covers namespaces loaded from disk that this
	// process has not touched yet.
	cols := x.db.ListCollections()
	stats := &memory.Stats{Namespaces: make(map[string]memory.NamespaceStats, len(cols))}
	for name, col := range cols {
		count := col.Count()
		stats.Namespaces[name] = memory.NamespaceStats{RecordCount: count}
		stats.TotalRecords += count
	}
	return stats, nil
}
