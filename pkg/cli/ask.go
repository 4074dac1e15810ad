package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/integrasalud/integrasalud/pkg/usecase/token"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		cfg   config
		topic string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "topic",
			Aliases:     []string{"t"},
			Usage:       "Topic ID to ask about; the first topic when empty",
			Sources:     cli.EnvVars("INTEGRASALUD_TOPIC"),
			Destination: &topic,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer one query and exit",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return goerr.New("query is required")
			}

			ctx, err := cfg.setup(ctx)
			if err != nil {
				return err
			}

			factory, err := cfg.newSessionFactory(ctx, nil, true)
			if err != nil {
				return err
			}
			session, err := factory.newSession(model.TopicID(topic))
			if err != nil {
				return err
			}

			answer, err := session.Ask(ctx, query)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "%s\n", answer.Provenance.Label())
			if answer.HasText() {
				fmt.Fprintf(w, "%s\n", answer.Text)
				return nil
			}

			fmt.Fprintf(w, "Elige un centro y una especialidad y ejecuta 'integrasalud token':\n")
			for _, f := range session.Topic().Facilities {
				fmt.Fprintf(w, "  - %s: %s\n", f.Name, strings.Join(f.Specialties, ", "))
			}
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	var (
		cfg       config
		topic     string
		facility  string
		specialty string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "topic",
			Aliases:     []string{"t"},
			Usage:       "Topic ID the health center belongs to",
			Sources:     cli.EnvVars("INTEGRASALUD_TOPIC"),
			Destination: &topic,
		},
		&cli.StringFlag{
			Name:        "facility",
			Aliases:     []string{"f"},
			Usage:       "Health center name",
			Required:    true,
			Destination: &facility,
		},
		&cli.StringFlag{
			Name:        "specialty",
			Aliases:     []string{"s"},
			Usage:       "Specialty offered by the health center",
			Required:    true,
			Destination: &specialty,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "token",
		Usage: "Issue an anonymous appointment code",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx)
			if err != nil {
				return err
			}

			factory, err := cfg.newSessionFactory(ctx, nil, false)
			if err != nil {
				return err
			}
			session, err := factory.newSession(model.TopicID(topic))
			if err != nil {
				return err
			}

			tk, err := session.IssueToken(facility, specialty)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.Root().Writer, token.Instructions(tk))
			return nil
		},
	}
}
