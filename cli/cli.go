package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/vectorhaus/mnemo/logging"
	"github.com/vectorhaus/mnemo/memory"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "mnemo",
		Usage: "Long-term semantic memory store for conversational agents",
		Commands: []*cli.Command{
			rememberCommand(),
			recallCommand(),
			ingestCommand(),
			forgetCommand(),
			statsCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

func rememberCommand() *cli.Command {
	var (
		cfg       config
		namespace string
		recType   string
		author    string
		noDedup   bool
		skipDup   bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "namespace",
			Aliases:     []string{"n"},
			Usage:       "Memory namespace (e.g. a user id)",
			Required:    true,
			Sources:     cli.EnvVars("MNEMO_NAMESPACE"),
			Destination: &namespace,
		},
		&cli.StringFlag{
			Name:        "type",
			Aliases:     []string{"t"},
			Usage:       "Record type (message, fact)",
			Value:       string(memory.TypeMessage),
			Destination: &recType,
		},
		&cli.StringFlag{
			Name:        "author",
			Usage:       "Record author",
			Destination: &author,
		},
		&cli.BoolFlag{
			Name:        "no-dedup",
			Usage:       "Write unconditionally, skipping the similarity check",
			Destination: &noDedup,
		},
		&cli.BoolFlag{
			Name:        "skip-on-duplicate",
			Usage:       "Drop duplicates instead of merging into the match",
			Destination: &skipDup,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "remember",
		Usage:     "Save a memory record with duplicate detection",
		ArgsUsage: "<text>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			text := c.Args().First()
			if text == "" {
				return goerr.New("text argument is required")
			}

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			result, err := store.Save(ctx, memory.SaveRequest{
				Namespace:       namespace,
				Text:            text,
				Type:            memory.Type(recType),
				Author:          author,
				SkipDedup:       noDedup,
				SkipOnDuplicate: skipDup,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func recallCommand() *cli.Command {
	var (
		cfg       config
		namespace string
		topK      int64
		raw       bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "namespace",
			Aliases:     []string{"n"},
			Usage:       "Memory namespace (e.g. a user id)",
			Required:    true,
			Sources:     cli.EnvVars("MNEMO_NAMESPACE"),
			Destination: &namespace,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"k"},
			Usage:       "Maximum number of records to return",
			Value:       10,
			Destination: &topK,
		},
		&cli.BoolFlag{
			Name:        "raw",
			Usage:       "Print records as JSON instead of formatted context",
			Destination: &raw,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "recall",
		Usage:     "Retrieve memories relevant to a query",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			query := c.Args().First()
			if query == "" {
				return goerr.New("query argument is required")
			}

			idx, err := cfg.newIndex(ctx)
			if err != nil {
				return err
			}
			emb, err := cfg.newEmbedder()
			if err != nil {
				return err
			}

			retriever := memory.NewRetriever(idx, emb)
			records, err := retriever.Retrieve(ctx, namespace, query, int(topK))
			if err != nil {
				return err
			}

			if raw {
				return printJSON(records)
			}
			fmt.Println(memory.FormatContext(records))
			return nil
		},
	}
}

func ingestCommand() *cli.Command {
	var (
		cfg       config
		namespace string
		filename  string
		input     string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "namespace",
			Aliases:     []string{"n"},
			Usage:       "Memory namespace (e.g. a user id)",
			Required:    true,
			Sources:     cli.EnvVars("MNEMO_NAMESPACE"),
			Destination: &namespace,
		},
		&cli.StringFlag{
			Name:        "filename",
			Aliases:     []string{"f"},
			Usage:       "Source document filename",
			Required:    true,
			Destination: &filename,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to JSON file with the chunk array",
			Required:    true,
			Destination: &input,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Index document chunks and write the document passport",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			data, err := os.ReadFile(input)
			if err != nil {
				return goerr.Wrap(err, "failed to read chunk file", goerr.Value("path", input))
			}
			var chunks []memory.Chunk
			if err := json.Unmarshal(data, &chunks); err != nil {
				return goerr.Wrap(err, "failed to parse chunk file", goerr.Value("path", input))
			}

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			ingestor := memory.NewIngestor(store, 0)
			report, err := ingestor.Ingest(ctx, memory.IngestJob{
				Namespace: namespace,
				Filename:  filename,
				Chunks:    chunks,
			})
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

func forgetCommand() *cli.Command {
	var (
		cfg       config
		namespace string
		query     string
		topK      int64
		all       bool
		force     bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "namespace",
			Aliases:     []string{"n"},
			Usage:       "Memory namespace (e.g. a user id)",
			Required:    true,
			Sources:     cli.EnvVars("MNEMO_NAMESPACE"),
			Destination: &namespace,
		},
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Preview deletion candidates matching a query (deletes nothing)",
			Destination: &query,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"k"},
			Usage:       "Number of candidates to preview",
			Value:       5,
			Destination: &topK,
		},
		&cli.BoolFlag{
			Name:        "all",
			Aliases:     []string{"a"},
			Usage:       "Delete every record in the namespace",
			Destination: &all,
		},
		&cli.BoolFlag{
			Name:        "force",
			Usage:       "Confirm deleting the whole namespace",
			Destination: &force,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "forget",
		Usage:     "Delete records by id, preview candidates, or clear a namespace",
		ArgsUsage: "[record-id...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			if query != "" {
				idx, err := cfg.newIndex(ctx)
				if err != nil {
					return err
				}
				emb, err := cfg.newEmbedder()
				if err != nil {
					return err
				}
				retriever := memory.NewRetriever(idx, emb)
				candidates, err := retriever.Retrieve(ctx, namespace, query, int(topK))
				if err != nil {
					return err
				}
				if len(candidates) == 0 {
					fmt.Println("No matching records")
					return nil
				}
				return printJSON(candidates)
			}

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			if all {
				if !force {
					return goerr.New("deleting a whole namespace is destructive, pass --force to confirm")
				}
				if err := store.Clear(ctx, namespace); err != nil {
					return err
				}
				fmt.Printf("Cleared namespace %s\n", namespace)
				return nil
			}

			ids := c.Args().Slice()
			if len(ids) == 0 {
				return goerr.New("at least one record id is required")
			}
			if err := store.Forget(ctx, namespace, ids...); err != nil {
				return err
			}
			fmt.Printf("Deleted %d record(s)\n", len(ids))
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "stats",
		Usage: "Show per-namespace record counts",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "failed to encode output")
	}
	return nil
}
