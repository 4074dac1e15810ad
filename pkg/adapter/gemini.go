package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

var (
	ErrNoCredential  = goerr.New("no gemini credential configured")
	ErrEmptyResponse = goerr.New("gemini returned no text")
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Generator produces free text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiConfig selects the Gemini backend. APIKey uses the Gemini API;
// otherwise Project and Location select Vertex AI.
type GeminiConfig struct {
	APIKey   string
	Project  string
	Location string
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	config          *genai.GenerateContentConfig
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		if model != "" {
			g.generativeModel = model
		}
	}
}

func WithTemperature(temperature float32) GeminiOption {
	return func(g *GeminiClient) {
		if g.config == nil {
			g.config = &genai.GenerateContentConfig{}
		}
		g.config.Temperature = &temperature
	}
}

func NewGemini(ctx context.Context, cfg GeminiConfig, opts ...GeminiOption) (*GeminiClient, error) {
	clientConfig := &genai.ClientConfig{}
	switch {
	case cfg.APIKey != "":
		clientConfig.APIKey = cfg.APIKey
		clientConfig.Backend = genai.BackendGeminiAPI
	case cfg.Project != "" && cfg.Location != "":
		clientConfig.Project = cfg.Project
		clientConfig.Location = cfg.Location
		clientConfig.Backend = genai.BackendVertexAI
	default:
		return nil, ErrNoCredential
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: DefaultGeminiModel,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Model returns the generative model name in use
func (g *GeminiClient) Model() string {
	return g.generativeModel
}

func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, genai.Text(prompt), g.config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}

	text := ResponseText(resp)
	if text == "" {
		return "", goerr.Wrap(ErrEmptyResponse, "no text in response", goerr.V("model", g.generativeModel))
	}
	return text, nil
}

// ResponseText joins the text parts of the first candidate
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}
