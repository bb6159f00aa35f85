package memory

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"time"
)

// Type tags the role of a record. The set is open: unknown tags pass through
// retrieval and formatting as conversational content.
type Type string

const (
	// TypeMessage is a raw user message stored as-is.
	TypeMessage Type = "message"

	// TypeFact is a distilled statement about the user.
	TypeFact Type = "fact"

	// TypeDocChunk is one positional fragment of an ingested document.
	TypeDocChunk Type = "doc_chunk"

	// TypeDocIndex is a document passport: a singleton per (namespace,
	// filename) summarizing an ingestion. Passports never appear in
	// retrieval results used as conversational context.
	TypeDocIndex Type = "doc_index"
)

// Record is the unit of storage, normalized into one shape regardless of the
// underlying type. The embedding itself is transient: computed on write,
// never read back.
type Record struct {
	ID        string    `json:"id"`
	Namespace string    `json:"namespace"`
	Text      string    `json:"text"`
	Type      Type      `json:"type"`
	Score     float64   `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Source locators, present on document-derived records only.
	Filename   string `json:"filename,omitempty"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
	PageNo     int    `json:"page_no,omitempty"`
	Headings   string `json:"headings,omitempty"`

	// Author is the display name of the user who produced a message.
	Author string `json:"author,omitempty"`

	// ChunkCount is the number of chunks a passport covers.
	ChunkCount int `json:"chunk_count,omitempty"`
}

// Metadata keys as stored in the index. The schema is closed: required keys
// plus the optional set below; unknown keys are ignored on read.
const (
	metaType       = "type"
	metaText       = "text"
	metaCreatedAt  = "created_at"
	metaAuthor     = "author"
	metaFilename   = "filename"
	metaChunkIndex = "chunk_index"
	metaPageNo     = "page_no"
	metaHeadings   = "headings"
	metaChunkCount = "chunk_count"
)

// NewRecordID derives a timestamp-based id for an ordinary save. Ids only
// need to be unique within the namespace.
func NewRecordID(namespace string, typ Type, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d", namespace, typ, now.UnixNano())
}

// PassportID derives the deterministic id of a document passport from its
// filename, so re-ingesting the same file overwrites its passport instead of
// duplicating it.
func PassportID(filename string) string {
	h := fnv.New64a()
	h.Write([]byte(filename))
	return fmt.Sprintf("doc_%016x", h.Sum64())
}

// ChunkID derives the positional id of a document chunk. Chunk identity is
// positional, not content-based, so re-ingesting a file replaces its chunks
// index-for-index.
func ChunkID(filename string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", PassportID(filename), index)
}

// metadata flattens a record into the index metadata map. Type, text and
// creation timestamp are always present; optional fields are written only
// when set.
func (r Record) metadata() map[string]string {
	md := map[string]string{
		metaType:      string(r.Type),
		metaText:      r.Text,
		metaCreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.Author != "" {
		md[metaAuthor] = r.Author
	}
	if r.Filename != "" {
		md[metaFilename] = r.Filename
		md[metaChunkIndex] = strconv.Itoa(r.ChunkIndex)
	}
	if r.PageNo > 0 {
		md[metaPageNo] = strconv.Itoa(r.PageNo)
	}
	if r.Headings != "" {
		md[metaHeadings] = r.Headings
	}
	if r.ChunkCount > 0 {
		md[metaChunkCount] = strconv.Itoa(r.ChunkCount)
	}
	return md
}

// recordFromMetadata rebuilds a record from index metadata, ignoring keys
// outside the schema.
func recordFromMetadata(namespace, id string, score float64, md map[string]string) Record {
	rec := Record{
		ID:        id,
		Namespace: namespace,
		Score:     score,
		Text:      md[metaText],
		Type:      Type(md[metaType]),
		Author:    md[metaAuthor],
		Filename:  md[metaFilename],
		Headings:  md[metaHeadings],
	}
	if rec.Type == "" {
		rec.Type = TypeMessage
	}
	if ts, err := time.Parse(time.RFC3339, md[metaCreatedAt]); err == nil {
		rec.CreatedAt = ts
	}
	if n, err := strconv.Atoi(md[metaChunkIndex]); err == nil {
		rec.ChunkIndex = n
	}
	if n, err := strconv.Atoi(md[metaPageNo]); err == nil {
		rec.PageNo = n
	}
	if n, err := strconv.Atoi(md[metaChunkCount]); err == nil {
		rec.ChunkCount = n
	}
	return rec
}
