package memory

import (
	"context"
)

// Embedder converts text to fixed-dimension vector embeddings.
// Implementations: openai.Embedder (production), mock.MockEmbedder
// (testing), cache.Embedder (read-through wrapper around either).
//
// Implementations do not retry internally; a failed provider request is
// returned as-is and surfaces to the caller of the store operation.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts in one provider round trip,
	// preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Index is the namespaced vector storage backend.
// Implementations: pinecone.Index (remote), chromem.Index (embedded).
//
// All methods are scoped to a single namespace except Stats. The index owns
// persistence and last-write-wins semantics per record id; the memory core
// never assumes more than that.
type Index interface {
	// Upsert writes entries into the namespace, replacing any entry with the
	// same id.
	Upsert(ctx context.Context, namespace string, entries []Entry) error

	// Query returns up to topK nearest neighbors of vector, optionally
	// restricted by a metadata equality filter.
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter Filter) ([]Match, error)

	// Fetch returns the entries stored under the given ids. Missing ids are
	// omitted from the result, not errors.
	Fetch(ctx context.Context, namespace string, ids []string) ([]Entry, error)

	// UpdateMetadata replaces the metadata of an existing entry in place,
	// keeping its vector.
	UpdateMetadata(ctx context.Context, namespace, id string, metadata map[string]string) error

	// Delete removes the entries with the given ids.
	Delete(ctx context.Context, namespace string, ids []string) error

	// DeleteAll removes every entry in the namespace.
	DeleteAll(ctx context.Context, namespace string) error

	// Stats reports per-namespace record counts for the whole index.
	Stats(ctx context.Context) (*Stats, error)
}

// Entry is the unit the index stores: an id, its vector, and flat string
// metadata. The record text always travels inside the metadata so it can be
// recovered without re-embedding.
type Entry struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Match is a scored query result. Score is cosine similarity normalized to
// [0,1], highest first in a conforming index response.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Filter is a metadata equality filter for index queries. All pairs must
// match.
type Filter map[string]string

// Stats is an aggregate view over the index.
type Stats struct {
	TotalRecords int
	Namespaces   map[string]NamespaceStats
}

// NamespaceStats holds per-namespace aggregates.
type NamespaceStats struct {
	RecordCount int
}
