package cli

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/integrasalud/integrasalud/pkg/adapter"
	"github.com/integrasalud/integrasalud/pkg/knowledge"
	"github.com/integrasalud/integrasalud/pkg/metrics"
	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/integrasalud/integrasalud/pkg/policy"
	"github.com/integrasalud/integrasalud/pkg/usecase/chat"
	"github.com/integrasalud/integrasalud/pkg/usecase/token"
	"github.com/integrasalud/integrasalud/pkg/utils/logging"
	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	logLevel string

	// Knowledge
	topicsPath   string
	policyDir    string
	learnedLimit int64

	// Generator
	geminiAPIKey    string
	geminiProject   string
	geminiLocation  string
	geminiModel     string
	generateTimeout time.Duration
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Aliases:     []string{"l"},
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("INTEGRASALUD_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "topics",
			Usage:       "Path to a YAML topic catalog; the built-in catalog when empty",
			Sources:     cli.EnvVars("INTEGRASALUD_TOPICS"),
			Destination: &cfg.topicsPath,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies for appointment intent",
			Sources:     cli.EnvVars("INTEGRASALUD_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.IntFlag{
			Name:        "learned-limit",
			Usage:       "Maximum learned answers per topic and session (0 is unbounded)",
			Value:       chat.DefaultLearnedLimit,
			Sources:     cli.EnvVars("INTEGRASALUD_LEARNED_LIMIT"),
			Destination: &cfg.learnedLimit,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("GEMINI_API_KEY", "GOOGLE_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini on Vertex AI",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini on Vertex AI",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Value:       adapter.DefaultGeminiModel,
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.DurationFlag{
			Name:        "generate-timeout",
			Usage:       "Timeout of one generator call",
			Value:       chat.DefaultGenerateTimeout,
			Sources:     cli.EnvVars("INTEGRASALUD_GENERATE_TIMEOUT"),
			Destination: &cfg.generateTimeout,
		},
	}
}

// loadDotEnv exports variables of a .env file that are not already set. A
// missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return goerr.Wrap(err, "failed to load env file", goerr.V("path", path))
	}
	return nil
}

// newLogger configures the process logger; logs go to stderr
func (cfg *config) newLogger() (*slog.Logger, error) {
	logger, err := logging.New(cfg.logLevel, os.Stderr)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)
	return logger, nil
}

func (cfg *config) newCatalog() (*knowledge.Catalog, error) {
	return knowledge.Load(cfg.topicsPath)
}

func (cfg *config) newIntent(ctx context.Context) (*policy.Intent, error) {
	return policy.NewIntent(ctx, cfg.policyDir)
}

var offlineWarning sync.Once

// newGenerator returns nil when no credential is configured or the client
// cannot be created; the caller then runs offline only. The reason is
// reported once per process.
func (cfg *config) newGenerator(ctx context.Context) adapter.Generator {
	gemini, err := adapter.NewGemini(ctx, adapter.GeminiConfig{
		APIKey:   cfg.geminiAPIKey,
		Project:  cfg.geminiProject,
		Location: cfg.geminiLocation,
	}, adapter.WithGenerativeModel(cfg.geminiModel))
	if err != nil {
		offlineWarning.Do(func() {
			logging.From(ctx).Warn("online mode is disabled, answering from the catalog only", "error", err)
		})
		return nil
	}

	logging.From(ctx).Debug("online mode is enabled", "model", gemini.Model())
	return gemini
}

// newResolver builds the resolver; online false skips generator setup
func (cfg *config) newResolver(ctx context.Context, m *metrics.Metrics, online bool) (*chat.Resolver, error) {
	intent, err := cfg.newIntent(ctx)
	if err != nil {
		return nil, err
	}

	opts := []chat.ResolverOption{
		chat.WithIntent(intent),
		chat.WithGenerateTimeout(cfg.generateTimeout),
		chat.WithResolverMetrics(m),
	}
	if online {
		if gen := cfg.newGenerator(ctx); gen != nil {
			opts = append(opts, chat.WithGenerator(gen))
		}
	}
	return chat.NewResolver(opts...), nil
}

// sessionFactory wires catalog, resolver and issuer into a constructor of
// sessions sharing them
type sessionFactory struct {
	catalog  *knowledge.Catalog
	resolver *chat.Resolver
	issuer   *token.Issuer
	metrics  *metrics.Metrics
	limit    int
}

func (cfg *config) newSessionFactory(ctx context.Context, m *metrics.Metrics, online bool) (*sessionFactory, error) {
	catalog, err := cfg.newCatalog()
	if err != nil {
		return nil, err
	}
	resolver, err := cfg.newResolver(ctx, m, online)
	if err != nil {
		return nil, err
	}

	return &sessionFactory{
		catalog:  catalog,
		resolver: resolver,
		issuer:   token.New(),
		metrics:  m,
		limit:    int(cfg.learnedLimit),
	}, nil
}

func (f *sessionFactory) newSession(topic model.TopicID) (*chat.Session, error) {
	session, err := chat.New(chat.NewInput{
		Catalog:      f.catalog,
		Resolver:     f.resolver,
		Issuer:       f.issuer,
		Metrics:      f.metrics,
		Topic:        topic,
		LearnedLimit: f.limit,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create session")
	}
	return session, nil
}
