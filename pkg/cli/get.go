package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/urfave/cli/v3"
)

func getCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "get",
		Usage:     "Show a knowledge base document by ID",
		ArgsUsage: "<document-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			id := c.Args().First()
			if id == "" {
				return goerr.New("document ID is required")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			doc, err := repo.GetDocument(ctx, model.DocumentID(id))
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "ID:       %s\n", doc.ID)
			fmt.Fprintf(c.Root().Writer, "Ingested: %s\n", doc.IngestedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(c.Root().Writer, "Text:     %s\n", doc.Text)
			return nil
		},
	}
}
