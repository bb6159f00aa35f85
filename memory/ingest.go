package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/vectorhaus/mnemo/logging"
)

// Chunk is one pre-parsed fragment of a source document, produced by an
// external ingestion collaborator. Index is the chunk's position within the
// document; PageNo and Headings are optional source locators.
type Chunk struct {
	Text     string `json:"text"`
	Index    int    `json:"index"`
	PageNo   int    `json:"page_no,omitempty"`
	Headings string `json:"headings,omitempty"`
}

// IngestJob is one document's worth of chunks bound for a namespace.
type IngestJob struct {
	ID        string
	Namespace string
	Filename  string
	Chunks    []Chunk
}

// IngestReport summarizes a finished job. Failed counts chunks whose save
// errored; the job itself still completes and writes its passport over the
// saved count.
type IngestReport struct {
	JobID      string `json:"job_id"`
	Namespace  string `json:"namespace"`
	Filename   string `json:"filename"`
	Saved      int    `json:"saved"`
	Failed     int    `json:"failed"`
	PassportID string `json:"passport_id"`
	Err        error  `json:"-"`
}

// Ingestor writes document chunks into the store on a dedicated worker, so
// bulk ingestion never blocks a caller's request path. Chunk identity is
// positional and duplicate checking is off by design: re-ingesting a file
// replaces its chunks index-for-index, and a single passport records the
// ingestion.
//
// The worker owns no shared state beyond issuing independent store calls.
type Ingestor struct {
	store   *Store
	jobs    chan IngestJob
	reports chan IngestReport

	mu     sync.Mutex
	closed bool
}

// NewIngestor creates an ingestor with the given job queue depth. Call Run
// on its own goroutine to start the worker.
func NewIngestor(store *Store, queueSize int) *Ingestor {
	if queueSize <= 0 {
		queueSize = 8
	}
	return &Ingestor{
		store:   store,
		jobs:    make(chan IngestJob, queueSize),
		reports: make(chan IngestReport, queueSize),
	}
}

// Submit queues a job for the worker, assigning a job id when absent.
// It blocks when the queue is full and errors once Close has been called.
func (g *Ingestor) Submit(job IngestJob) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return "", goerr.New("ingestor is closed", goerr.Value("job_id", job.ID))
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	g.jobs <- job
	return job.ID, nil
}

// Close stops accepting jobs. Run drains what is queued, then closes the
// report channel. Calling Close more than once is safe.
func (g *Ingestor) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	close(g.jobs)
}

// Reports delivers one report per submitted job, in completion order.
func (g *Ingestor) Reports() <-chan IngestReport {
	return g.reports
}

// Run processes submitted jobs until Close is called or ctx is canceled.
func (g *Ingestor) Run(ctx context.Context) {
	defer close(g.reports)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-g.jobs:
			if !ok {
				return
			}
			report, err := g.Ingest(ctx, job)
			if err != nil {
				report = &IngestReport{JobID: job.ID, Namespace: job.Namespace, Filename: job.Filename, Err: err}
			}
			select {
			case g.reports <- *report:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Ingest writes one job's chunks synchronously and finishes with the
// document passport. Chunk saves are best-effort per item; only an invalid
// job or a failed passport write fails the call.
func (g *Ingestor) Ingest(ctx context.Context, job IngestJob) (*IngestReport, error) {
	if job.Namespace == "" || job.Filename == "" {
		return nil, goerr.New("ingest job needs a namespace and a filename",
			goerr.Value("namespace", job.Namespace), goerr.Value("filename", job.Filename))
	}

	reqs := make([]SaveRequest, 0, len(job.Chunks))
	for _, c := range job.Chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		reqs = append(reqs, SaveRequest{
			Namespace:  job.Namespace,
			ID:         ChunkID(job.Filename, c.Index),
			Text:       c.Text,
			Type:       TypeDocChunk,
			Filename:   job.Filename,
			ChunkIndex: c.Index,
			PageNo:     c.PageNo,
			Headings:   c.Headings,
			SkipDedup:  true,
		})
	}

	report := &IngestReport{JobID: job.ID, Namespace: job.Namespace, Filename: job.Filename}

	batch, err := g.store.SaveBatch(ctx, reqs)
	if err != nil {
		return nil, err
	}
	report.Saved = batch.Created
	report.Failed = batch.Failed

	passport, err := g.store.SaveDocumentPassport(ctx, job.Namespace, job.Filename, report.Saved)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to write document passport",
			goerr.Value("filename", job.Filename))
	}
	report.PassportID = passport.ID

	logging.From(ctx).Debug("document ingested",
		"filename", job.Filename,
		"namespace", job.Namespace,
		"saved", report.Saved,
		"failed", report.Failed,
	)
	return report, nil
}

// passportText is the embedded summary line of a document passport.
func passportText(filename string, chunkCount int) string {
	return fmt.Sprintf("Document %s indexed as %d chunks", filename, chunkCount)
}
