// Package cache wraps a memory.Embedder with a read-through embedding
// cache. Identical texts embed once; repeat lookups return a copy of the
// cached vector so callers can mutate results safely.
package cache

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"

	"github.com/vectorhaus/mnemo/memory"
)

const defaultMaxCost = 64 << 20 // 64 MiB of cached vectors

// Embedder is a caching decorator around another memory.Embedder.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// Option configures an Embedder.
type Option func(*config)

type config struct {
	maxCost int64
}

// WithMaxCost limits the total byte size of cached vectors.
func WithMaxCost(n int64) Option {
	return func(c *config) {
		c.maxCost = n
	}
}

// New wraps inner with a ristretto-backed cache keyed by text.
func New(inner memory.Embedder, opts ...Option) (*Embedder, error) {
	cfg := config{maxCost: defaultMaxCost}
	for _, opt := range opts {
		opt(&cfg)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     cfg.maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache", goerr.T(memory.ErrTagEmbedding))
	}

	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, embedding on miss.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.lookup(text); ok {
		return vec, nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(text, vec)
	return cloneVector(vec), nil
}

// EmbedBatch embeds only the texts missing from the cache, forwarding
// them to the inner embedder in a single call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	var missing []string
	var missingAt []int
	for i, text := range texts {
		if vec, ok := e.lookup(text); ok {
			vecs[i] = vec
			continue
		}
		missing = append(missing, text)
		missingAt = append(missingAt, i)
	}

	if len(missing) == 0 {
		return vecs, nil
	}

	fresh, err := e.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, goerr.New("embedder returned wrong batch size",
			goerr.T(memory.ErrTagEmbedding),
			goerr.Value("want", len(missing)), goerr.Value("got", len(fresh)))
	}

	for j, vec := range fresh {
		e.store(missing[j], vec)
		vecs[missingAt[j]] = cloneVector(vec)
	}
	return vecs, nil
}

// Dimensions reports the inner embedder's vector width.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until pending cache writes are visible. Intended for tests.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

func (e *Embedder) lookup(text string) ([]float32, bool) {
	v, ok := e.cache.Get(text)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	if !ok {
		return nil, false
	}
	return cloneVector(vec), true
}

func (e *Embedder) store(text string, vec []float32) {
	e.cache.Set(text, cloneVector(vec), int64(len(vec)*4))
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
