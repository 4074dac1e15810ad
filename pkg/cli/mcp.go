package cli

import (
	"context"

	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/integrasalud/integrasalud/pkg/service/mcp"
	"github.com/urfave/cli/v3"
)

// version is reported to MCP clients
const version = "0.1.0"

func mcpCommand() *cli.Command {
	var (
		cfg   config
		topic string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "topic",
			Aliases:     []string{"t"},
			Usage:       "Initial topic ID",
			Sources:     cli.EnvVars("INTEGRASALUD_TOPIC"),
			Destination: &topic,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve one consultation session as MCP tools over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
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

			return mcp.New(session, factory.catalog, version).Run(ctx)
		},
	}
}
