package memory

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures by the collaborator that produced them.
// Adapters attach the matching tag when wrapping transport errors; callers
// branch with goerr.HasTag. Batch operations are the only place a tagged
// error is recorded per item instead of aborting the call.
var (
	// ErrTagEmbedding marks embedding provider failures (unreachable or
	// rejected input).
	ErrTagEmbedding = goerr.NewTag("embedding_failure")

	// ErrTagIndexConn marks index connectivity failures, including a
	// misconfigured vector dimension.
	ErrTagIndexConn = goerr.NewTag("index_connection_failure")

	// ErrTagIndexOp marks rejected index operations (upsert, query, delete,
	// metadata update).
	ErrTagIndexOp = goerr.NewTag("index_operation_failure")

	// ErrTagClassify marks failures during the duplicate check. The original
	// cause keeps its own tag and stays reachable through Unwrap.
	ErrTagClassify = goerr.NewTag("classification_failure")
)
