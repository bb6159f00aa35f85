// Package memory implements a per-user long-term semantic memory store
// backed by a remote vector index.
//
// Free-text records are embedded, written into a namespaced vector index,
// and retrieved by semantic similarity. Write paths run through a
// similarity-based deduplication step ("smart upsert") that decides between
// creating a new record, merging into an existing near-duplicate, or
// skipping the write entirely.
//
// Architecture:
//   - Index: vector storage backend (Pinecone for production, chromem-go embedded)
//   - Embedder: text-to-vector conversion (OpenAI API, deterministic mock for tests)
//   - Classifier: duplicate / similar / new decision against the nearest neighbor
//   - Store: smart-upsert CRUD over the index, record schema enforcement
//   - Retriever: query-to-ranked-records engine with a recall-everything override
//   - Ingestor: dedicated worker for bulk document-chunk ingestion
//
// Namespaces are the only isolation boundary: one namespace per end user, and
// no operation ever reads or writes across namespaces. Deduplication is
// best-effort, not linearizable: two concurrent saves of near-duplicate text
// in the same namespace can both classify as new against the same index
// snapshot and produce two records.
package memory
