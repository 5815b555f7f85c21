package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Skip count for pagination",
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of documents",
			Value:       20,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List knowledge base documents, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			docs, err := repo.ListDocuments(ctx, int(offset), int(limit))
			if err != nil {
				return err
			}

			if len(docs) == 0 {
				fmt.Fprintf(c.Root().Writer, "No documents\n")
				return nil
			}

			for _, doc := range docs {
				fmt.Fprintf(c.Root().Writer, "%s  %s  %s\n",
					doc.ID, doc.IngestedAt.Format("2006-01-02 15:04:05"), doc.Text)
			}
			return nil
		},
	}
}
