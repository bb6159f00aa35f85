// Package pinecone adapts the Pinecone serverless vector database to the
// memory.Index contract. Namespace isolation maps directly onto Pinecone
// namespaces; every data-plane call goes through a per-namespace connection.
package pinecone

import (
	"context"
	"fmt"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	pc "github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vectorhaus/mnemo/memory"
)

// Config holds the connection parameters for a Pinecone index.
type Config struct {
	APIKey    string
	IndexName string

	// Dimension must match the embedder for the life of the index.
	// Defaults to 1536 (text-embedding-3-small).
	Dimension int

	// Serverless placement, used only when the index has to be created.
	Cloud  string
	Region string
}

// Index is a remote memory.Index backed by Pinecone.
type Index struct {
	client *pc.Client
	host   string

	mu    sync.RWMutex
	conns map[string]*pc.IndexConnection
}

// New connects to the configured index, creating it (cosine metric,
// serverless) when it does not exist yet. A dimension mismatch with an
// existing index is a connection failure: continuing would corrupt queries.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.APIKey == "" {
		return nil, goerr.New("pinecone api key is required", goerr.T(memory.ErrTagIndexConn))
	}
	if cfg.IndexName == "" {
		return nil, goerr.New("pinecone index name is required", goerr.T(memory.ErrTagIndexConn))
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}
	if cfg.Cloud == "" {
		cfg.Cloud = "aws"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	client, err := pc.NewClient(pc.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create pinecone client", goerr.T(memory.ErrTagIndexConn))
	}

	desc, err := ensureIndex(ctx, client, cfg)
	if err != nil {
		return nil, err
	}
	// Sparse indexes report no dimension; they cannot back this store.
	if desc.Dimension == nil {
		return nil, goerr.New("index has no dense dimension",
			goerr.T(memory.ErrTagIndexConn), goerr.Value("name", cfg.IndexName))
	}
	if int(*desc.Dimension) != cfg.Dimension {
		return nil, goerr.New("index dimension does not match configuration",
			goerr.T(memory.ErrTagIndexConn),
			goerr.Value("index", *desc.Dimension), goerr.Value("configured", cfg.Dimension))
	}

	return &Index{
		client: client,
		host:   desc.Host,
		conns:  make(map[string]*pc.IndexConnection),
	}, nil
}

func ensureIndex(ctx context.Context, client *pc.Client, cfg Config) (*pc.Index, error) {
	indexes, err := client.ListIndexes(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list indexes", goerr.T(memory.ErrTagIndexConn))
	}
	for _, idx := range indexes {
		if idx.Name == cfg.IndexName {
			return idx, nil
		}
	}

	dimension := int32(cfg.Dimension)
	metric := pc.Cosine
	idx, err := client.CreateServerlessIndex(ctx, &pc.CreateServerlessIndexRequest{
		Name:      cfg.IndexName,
		Dimension: &dimension,
		Metric:    &metric,
		Cloud:     pc.Cloud(cfg.Cloud),
		Region:    cfg.Region,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create index",
			goerr.T(memory.ErrTagIndexConn), goerr.Value("name", cfg.IndexName))
	}
	return idx, nil
}

// conn returns the data-plane connection scoped to a namespace.
func (x *Index) conn(namespace string) (*pc.IndexConnection, error) {
	x.mu.RLock()
	conn, ok := x.conns[namespace]
	x.mu.RUnlock()
	if ok {
		return conn, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if conn, ok := x.conns[namespace]; ok {
		return conn, nil
	}

	conn, err := x.client.Index(pc.NewIndexConnParams{Host: x.host, Namespace: namespace})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open index connection",
			goerr.T(memory.ErrTagIndexConn), goerr.Value("namespace", namespace))
	}
	x.conns[namespace] = conn
	return conn, nil
}

// Upsert writes entries into the namespace, replacing matching ids.
func (x *Index) Upsert(ctx context.Context, namespace string, entries []memory.Entry) error {
	conn, err := x.conn(namespace)
	if err != nil {
		return err
	}

	vectors := make([]*pc.Vector, 0, len(entries))
	for _, e := range entries {
		md, err := toMetadata(e.Metadata)
		if err != nil {
			return err
		}
		values := e.Vector
		vectors = append(vectors, &pc.Vector{Id: e.ID, Values: &values, Metadata: md})
	}

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return goerr.Wrap(err, "failed to upsert vectors",
			goerr.T(memory.ErrTagIndexOp), goerr.Value("namespace", namespace))
	}
	return nil
}

// Query returns the topK nearest neighbors, score-descending.
func (x *Index) Query(ctx context.Context, namespace string, vector []float32, topK int, filter memory.Filter) ([]memory.Match, error) {
	conn, err := x.conn(namespace)
	if err != nil {
		return nil, err
	}

	req := &pc.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	}
	if len(filter) > 0 {
		md, err := toMetadata(filter)
		if err != nil {
			return nil, err
		}
		req.MetadataFilter = md
	}

	resp, err := conn.QueryByVectorValues(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query vectors",
			goerr.T(memory.ErrTagIndexOp), goerr.Value("namespace", namespace))
	}

	matches := make([]memory.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.Vector == nil {
			continue
		}
		matches = append(matches, memory.Match{
			ID:       m.Vector.Id,
			Score:    float64(m.Score),
			Metadata: fromMetadata(m.Vector.Metadata),
		})
	}
	return matches, nil
}

// Fetch returns the stored entries for the given ids, omitting missing ones.
func (x *Index) Fetch(ctx context.Context, namespace string, ids []string) ([]memory.Entry, error) {
	conn, err := x.conn(namespace)
	if err != nil {
		return nil, err
	}

	resp, err := conn.FetchVectors(ctx, ids)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch vectors",
			goerr.T(memory.ErrTagIndexOp), goerr.Value("namespace", namespace))
	}

	entries := make([]memory.Entry, 0, len(resp.Vectors))
	for _, v := range resp.Vectors {
		var vec []float32
		if v.Values != nil {
			vec = *v.Values
		}
		entries = append(entries, memory.Entry{
			ID:       v.Id,
			Vector:   vec,
			Metadata: fromMetadata(v.Metadata),
		})
	}
	return entries, nil
}

// UpdateMetadata replaces an entry's metadata, keeping its vector.
func (x *Index) UpdateMetadata(ctx context.Context, namespace, id string, metadata map[string]string) error {
	conn, err := x.conn(namespace)
	if err != nil {
		return err
	}

	md, err := toMetadata(metadata)
	if err != nil {
		return err
	}
	if err := conn.UpdateVector(ctx, &pc.UpdateVectorRequest{Id: id, Metadata: md}); err != nil {
		return goerr.Wrap(err, "failed to update vector metadata",
			goerr.T(memory.ErrTagIndexOp), goerr.Value("id", id))
	}
	return nil
}

// Delete removes the given ids from the namespace.
func (x *Index) Delete(ctx context.Context, namespace string, ids []string) error {
	conn, err := x.conn(namespace)
	if err != nil {
		return err
	}
	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return goerr.Wrap(err, "failed to delete vectors",
			goerr.T(memory.ErrTagIndexOp), goerr.Value("namespace", namespace))
	}
	return nil
}

// DeleteAll removes every vector in the namespace.
func (x *Index) DeleteAll(ctx context.Context, namespace string) error {
	conn, err := x.conn(namespace)
	if err != nil {
		return err
	}
	if err := conn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return goerr.Wrap(err, "failed to clear namespace",
			goerr.T(memory.ErrTagIndexOp), goerr.Value("namespace", namespace))
	}
	return nil
}

// Stats reads per-namespace vector counts from the index.
func (x *Index) Stats(ctx context.Context) (*memory.Stats, error) {
	conn, err := x.conn("")
	if err != nil {
		return nil, err
	}

	resp, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to describe index stats", goerr.T(memory.ErrTagIndexOp))
	}

	stats := &memory.Stats{
		TotalRecords: int(resp.TotalVectorCount),
		Namespaces:   make(map[string]memory.NamespaceStats, len(resp.Namespaces)),
	}
	for name, summary := range resp.Namespaces {
		if summary == nil {
			continue
		}
		stats.Namespaces[name] = memory.NamespaceStats{RecordCount: int(summary.VectorCount)}
	}
	return stats, nil
}

func toMetadata(md map[string]string) (*pc.Metadata, error) {
	fields := make(map[string]any, len(md))
	for k, v := range md {
		fields[k] = v
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build metadata struct", goerr.T(memory.ErrTagIndexOp))
	}
	return s, nil
}

func fromMetadata(md *pc.Metadata) map[string]string {
	if md == nil {
		return nil
	}
	out := make(map[string]string, len(md.Fields))
	for k, v := range md.AsMap() {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
