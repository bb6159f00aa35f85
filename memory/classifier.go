package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/vectorhaus/mnemo/logging"
)

// Status is the outcome of a similarity check against the nearest existing
// record in a namespace.
type Status string

const (
	// StatusDuplicate means the nearest neighbor is close enough to be the
	// same fact; the match is the merge candidate.
	StatusDuplicate Status = "duplicate"

	// StatusSimilar means related but distinct content; written as new.
	StatusSimilar Status = "similar"

	// StatusNew means no sufficiently close record exists.
	StatusNew Status = "new"
)

// Thresholds partition the similarity range. High > Low is required:
// score >= High is a duplicate, score >= Low is similar, anything below is
// new. Callers may tighten or loosen per call to trade dedup recall against
// precision.
type Thresholds struct {
	High float64
	Low  float64
}

// DefaultThresholds returns the thresholds tuned for raw user messages.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.80, Low: 0.75}
}

// IsZero reports whether the thresholds were left unset.
func (t Thresholds) IsZero() bool {
	return t.High == 0 && t.Low == 0
}

// Classification carries the full detail of a similarity check so callers
// can audit dedup decisions. Match is nil when the namespace returned no
// neighbors at all.
type Classification struct {
	Status Status
	Match  *Match
}

// Classifier decides whether candidate text duplicates an existing record in
// a namespace. It is read-only: classification never mutates the index.
type Classifier struct {
	index    Index
	embedder Embedder
	probeK   int
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithProbeK sets how many nearest neighbors the duplicate check fetches.
func WithProbeK(k int) ClassifierOption {
	return func(c *Classifier) {
		if k > 0 {
			c.probeK = k
		}
	}
}

// NewClassifier creates a classifier over the given index and embedder.
func NewClassifier(index Index, embedder Embedder, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		index:    index,
		embedder: embedder,
		probeK:   5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify embeds text, probes the namespace for its nearest neighbors, and
// classifies the relationship to the best one. An empty thresholds value
// selects the defaults. Any embedding or index failure aborts the call; it is
// never silently treated as StatusNew.
func (c *Classifier) Classify(ctx context.Context, text, namespace string, filter Filter, th Thresholds) (*Classification, error) {
	if th.IsZero() {
		th = DefaultThresholds()
	}
	if th.High <= th.Low {
		return nil, goerr.New("similarity thresholds must satisfy high > low",
			goerr.T(ErrTagClassify),
			goerr.Value("high", th.High), goerr.Value("low", th.Low))
	}

	vector, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed candidate text", goerr.T(ErrTagClassify))
	}

	matches, err := c.index.Query(ctx, namespace, vector, c.probeK, filter)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to probe nearest neighbors",
			goerr.T(ErrTagClassify), goerr.Value("namespace", namespace))
	}

	if len(matches) == 0 {
		return &Classification{Status: StatusNew}, nil
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.Score > best.Score {
			best = m
		}
	}

	status := StatusNew
	switch {
	case best.Score >= th.High:
		status = StatusDuplicate
	case best.Score >= th.Low:
		status = StatusSimilar
	}

	logging.From(ctx).Debug("similarity check",
		"namespace", namespace,
		"status", status,
		"score", best.Score,
		"matched_id", best.ID,
	)

	return &Classification{Status: status, Match: &best}, nil
}
