package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/integrasalud/integrasalud/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

const envFile = ".env"

func Run(ctx context.Context, argv []string) *Error {
	if err := run(ctx, argv, os.Stdout); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}
	return nil
}

func run(ctx context.Context, argv []string, w io.Writer) error {
	if err := loadDotEnv(envFile); err != nil {
		return err
	}

	cmd := &cli.Command{
		Name:   "integrasalud",
		Usage:  "Anonymous health consultation assistant",
		Writer: w,
		Commands: []*cli.Command{
			chatCommand(),
			askCommand(),
			tokenCommand(),
			topicsCommand(),
			serveCommand(),
			mcpCommand(),
		},
	}

	return cmd.Run(ctx, argv)
}

// setup configures logging and returns a context carrying the logger
func (cfg *config) setup(ctx context.Context) (context.Context, error) {
	logger, err := cfg.newLogger()
	if err != nil {
		return nil, err
	}
	return logging.With(ctx, logger), nil
}

func topicsCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "topics",
		Usage: "List consultation topics and their health centers",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			if _, err := cfg.setup(ctx); err != nil {
				return err
			}

			catalog, err := cfg.newCatalog()
			if err != nil {
				return err
			}

			for _, t := range catalog.Topics() {
				printTopic(c.Root().Writer, t)
			}
			return nil
		},
	}
}

func printTopic(w io.Writer, t *model.Topic) {
	fmt.Fprintf(w, "%s %s (%s)\n", t.Emoji, t.Name, t.ID)
	fmt.Fprintf(w, "  %s\n", t.Title)
	for _, f := range t.Facilities {
		fmt.Fprintf(w, "  - %s: %s\n", f.Name, strings.Join(f.Specialties, ", "))
	}
}
