package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/tool/knowledge"
	"github.com/m-mizutani/recall/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

// messageBudget caps one conversation turn, model and tool calls included
const messageBudget = 30 * time.Second

func chatCommand() *cli.Command {
	var cfg config

	flags := append(globalFlags(&cfg), llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive chat backed by the knowledge base",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			registry := tool.New(
				knowledge.NewAddResource(repo, gemini),
				knowledge.NewGetInformation(repo, gemini),
			)

			session, err := chat.New(chat.NewInput{
				Gemini:   gemini,
				Registry: registry,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to create chat session")
			}

			// Interactive chat loop
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprintf(c.Root().Writer, "Chat session started. Type 'exit' to quit.\n")

			for {
				fmt.Fprintf(c.Root().Writer, "> ")
				if !scanner.Scan() {
					break
				}

				message := scanner.Text()
				if message == "exit" {
					break
				}
				if message == "" {
					continue
				}

				if err := sendMessage(ctx, c, session, message); err != nil {
					return goerr.Wrap(err, "failed to send message")
				}
			}

			fmt.Fprintf(c.Root().Writer, "\nChat session completed\n")
			return nil
		},
	}
}

func sendMessage(ctx context.Context, c *cli.Command, session *chat.Session, message string) error {
	ctx, cancel := context.WithTimeout(ctx, messageBudget)
	defer cancel()

	err := session.Stream(ctx, message, func(event *model.ChatEvent) error {
		switch event.Type {
		case model.ChatEventText:
			fmt.Fprint(c.Root().Writer, event.Text)

		case model.ChatEventToolCall:
			fmt.Fprintf(c.Root().Writer, "\n   🔧 %s %v\n", event.Tool, event.Args)

		case model.ChatEventToolResult:
			if event.IsErr {
				fmt.Fprintf(c.Root().Writer, "   ❌ %s: %s\n", event.Tool, event.Result)
			}

		case model.ChatEventDone:
			fmt.Fprintln(c.Root().Writer)
			if event.Reason == model.DoneReasonStepLimit {
				fmt.Fprintf(c.Root().Writer, "(step limit reached)\n")
			}
		}
		return nil
	})

	return err
}
