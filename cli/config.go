package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	oa "github.com/sashabaranov/go-openai"
	"github.com/urfave/cli/v3"

	"github.com/vectorhaus/mnemo/logging"
	"github.com/vectorhaus/mnemo/memory"
	"github.com/vectorhaus/mnemo/memory/embedder/cache"
	"github.com/vectorhaus/mnemo/memory/embedder/mock"
	"github.com/vectorhaus/mnemo/memory/embedder/openai"
	"github.com/vectorhaus/mnemo/memory/index/chromem"
	"github.com/vectorhaus/mnemo/memory/index/pinecone"
)

// config holds configuration values
type config struct {
	logLevel string

	// Index backend: "chromem" (embedded) or "pinecone"
	backend        string
	dbPath         string
	pineconeAPIKey string
	pineconeIndex  string
	dimension      int64

	// Embedder: "openai" or "mock"
	embedder      string
	openaiAPIKey  string
	openaiBaseURL string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("MNEMO_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "Vector index backend (chromem, pinecone)",
			Value:       "chromem",
			Sources:     cli.EnvVars("MNEMO_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "Directory for the chromem backend's on-disk database",
			Value:       "./mnemo-db",
			Sources:     cli.EnvVars("MNEMO_DB_PATH"),
			Destination: &cfg.dbPath,
		},
		&cli.StringFlag{
			Name:        "pinecone-api-key",
			Usage:       "Pinecone API key",
			Sources:     cli.EnvVars("PINECONE_API_KEY"),
			Destination: &cfg.pineconeAPIKey,
		},
		&cli.StringFlag{
			Name:        "pinecone-index",
			Usage:       "Pinecone index name",
			Value:       "mnemo",
			Sources:     cli.EnvVars("PINECONE_INDEX"),
			Destination: &cfg.pineconeIndex,
		},
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding vector width",
			Value:       1536,
			Sources:     cli.EnvVars("MNEMO_DIMENSION"),
			Destination: &cfg.dimension,
		},
		&cli.StringFlag{
			Name:        "embedder",
			Aliases:     []string{"e"},
			Usage:       "Embedding provider (openai, mock)",
			Value:       "openai",
			Sources:     cli.EnvVars("MNEMO_EMBEDDER"),
			Destination: &cfg.embedder,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "Override the OpenAI API base URL",
			Sources:     cli.EnvVars("OPENAI_BASE_URL"),
			Destination: &cfg.openaiBaseURL,
		},
	}
}

// setup installs the configured logger as the process default and attaches
// it to the context.
func (cfg *config) setup(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newIndex creates the configured vector index backend.
func (cfg *config) newIndex(ctx context.Context) (memory.Index, error) {
	switch cfg.backend {
	case "chromem":
		if cfg.dbPath == "" {
			return chromem.New(), nil
		}
		idx, err := chromem.NewPersistent(cfg.dbPath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open chromem database")
		}
		return idx, nil

	case "pinecone":
		idx, err := pinecone.New(ctx, pinecone.Config{
			APIKey:    cfg.pineconeAPIKey,
			IndexName: cfg.pineconeIndex,
			Dimension: int(cfg.dimension),
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create pinecone index")
		}
		return idx, nil

	default:
		return nil, goerr.New("unknown backend", goerr.Value("backend", cfg.backend))
	}
}

// newEmbedder creates the configured embedding provider, wrapped in the
// read-through cache.
func (cfg *config) newEmbedder() (memory.Embedder, error) {
	var inner memory.Embedder
	switch cfg.embedder {
	case "openai":
		if cfg.openaiAPIKey == "" {
			return nil, goerr.New("openai-api-key is required")
		}
		oaCfg := oa.DefaultConfig(cfg.openaiAPIKey)
		if cfg.openaiBaseURL != "" {
			oaCfg.BaseURL = cfg.openaiBaseURL
		}
		emb, err := openai.NewWithConfig(oaCfg, openai.WithDimensions(int(cfg.dimension)))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create openai embedder")
		}
		inner = emb

	case "mock":
		inner = mock.NewWithDimensions(int(cfg.dimension))

	default:
		return nil, goerr.New("unknown embedder", goerr.Value("embedder", cfg.embedder))
	}

	cached, err := cache.New(inner)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}
	return cached, nil
}

// newStore wires the configured index and embedder into a memory store.
func (cfg *config) newStore(ctx context.Context) (*memory.Store, error) {
	idx, err := cfg.newIndex(ctx)
	if err != nil {
		return nil, err
	}
	emb, err := cfg.newEmbedder()
	if err != nil {
		return nil, err
	}
	return memory.NewStore(idx, emb), nil
}
