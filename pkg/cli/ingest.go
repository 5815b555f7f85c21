package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/usecase/ingest"
	"github.com/urfave/cli/v3"
)

func ingestCommand() *cli.Command {
	var (
		cfg    config
		input  string
		object string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to a corpus file, one document per line",
			Destination: &input,
		},
		&cli.StringFlag{
			Name:        "object",
			Aliases:     []string{"o"},
			Usage:       "Corpus object key in the Cloud Storage bucket",
			Destination: &object,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Aliases:     []string{"b"},
			Usage:       "Cloud Storage bucket holding the corpus",
			Sources:     cli.EnvVars("RECALL_CORPUS_BUCKET"),
			Destination: &cfg.bucket,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Ingest a document corpus into the knowledge base",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			if input == "" && object == "" {
				return goerr.New("either --input or --object is required")
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			var storage adapter.Storage
			if object != "" {
				if storage, err = cfg.newStorage(ctx); err != nil {
					return err
				}
			}

			uc, err := ingest.New(ingest.NewInput{
				Repo:    repo,
				Gemini:  gemini,
				Storage: storage,
			})
			if err != nil {
				return err
			}

			var result *ingest.Result
			if object != "" {
				result, err = uc.RunObject(ctx, object)
			} else {
				f, openErr := os.Open(input)
				if openErr != nil {
					return goerr.Wrap(openErr, "failed to open corpus file", goerr.V("path", input))
				}
				defer f.Close()
				result, err = uc.Run(ctx, f)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Ingested %d document(s), %d failed\n", result.Inserted, result.Failed)
			for _, outcome := range result.Outcomes {
				if outcome.Err != nil {
					fmt.Fprintf(c.Root().Writer, "  line %d: %v\n", outcome.Index+1, outcome.Err)
				}
			}
			return nil
		},
	}
}
