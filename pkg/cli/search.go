package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg   config
		limit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of results",
			Value:       3,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Search the knowledge base directly, without the agent",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			query := c.Args().First()
			if query == "" {
				return goerr.New("query is required")
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			embedding, err := gemini.Embed(ctx, query)
			if err != nil {
				return goerr.Wrap(err, "failed to embed query")
			}

			results, err := repo.SearchSimilarDocuments(ctx, embedding, int(limit))
			if err != nil {
				return goerr.Wrap(err, "failed to search documents")
			}

			if len(results) == 0 {
				fmt.Fprintf(c.Root().Writer, "No documents found\n")
				return nil
			}

			for i, r := range results {
				fmt.Fprintf(c.Root().Writer, "%d. [%.4f] %s\n", i+1, r.Score, r.Text)
			}
			return nil
		},
	}
}
