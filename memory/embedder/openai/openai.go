// Package openai provides a memory.Embedder backed by the OpenAI
// embeddings API (or any compatible endpoint via a custom base URL).
package openai

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	oa "github.com/sashabaranov/go-openai"

	"github.com/vectorhaus/mnemo/memory"
)

const defaultDimensions = 1536

// Embedder calls the OpenAI embeddings endpoint. Safe for concurrent use.
type Embedder struct {
	client     *oa.Client
	model      oa.EmbeddingModel
	dimensions int
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithModel overrides the embedding model (default text-embedding-3-small).
func WithModel(model oa.EmbeddingModel) Option {
	return func(e *Embedder) {
		e.model = model
	}
}

// WithDimensions sets the vector width reported by Dimensions. It must
// match the chosen model's output width.
func WithDimensions(n int) Option {
	return func(e *Embedder) {
		e.dimensions = n
	}
}

// New creates an Embedder using the given API key.
func New(apiKey string, opts ...Option) (*Embedder, error) {
	return NewWithConfig(oa.DefaultConfig(apiKey), opts...)
}

// NewWithConfig creates an Embedder from a client config, allowing a
// custom base URL for OpenAI-compatible servers.
func NewWithConfig(cfg oa.ClientConfig, opts ...Option) (*Embedder, error) {
	if cfg.BaseURL == "" {
		return nil, goerr.New("openai base url is required", goerr.T(memory.ErrTagEmbedding))
	}
	e := &Embedder{
		client:     oa.NewClientWithConfig(cfg),
		model:      oa.SmallEmbedding3,
		dimensions: defaultDimensions,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed returns the embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one embedding per input text, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, oa.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "embedding request failed",
			goerr.T(memory.ErrTagEmbedding), goerr.Value("model", e.model), goerr.Value("count", len(texts)))
	}
	if len(resp.Data) != len(texts) {
		return nil, goerr.New("embedding response size mismatch",
			goerr.T(memory.ErrTagEmbedding),
			goerr.Value("want", len(texts)), goerr.Value("got", len(resp.Data)))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, goerr.New("embedding response index out of range",
				goerr.T(memory.ErrTagEmbedding), goerr.Value("index", d.Index))
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// Dimensions returns the configured vector width.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
