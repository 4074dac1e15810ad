package adapter_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/integrasalud/integrasalud/pkg/adapter"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func TestGenerate(t *testing.T) {
	apiKey := os.Getenv("TEST_GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("TEST_GEMINI_API_KEY is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewGemini(ctx, adapter.GeminiConfig{APIKey: apiKey})
	gt.NoError(t, err)

	text, err := client.Generate(ctx, "Responde en una sola palabra: ¿cuál es la capital de Francia?")
	gt.NoError(t, err)
	gt.S(t, text).Contains("París")
}

func TestNewGeminiWithoutCredential(t *testing.T) {
	_, err := adapter.NewGemini(context.Background(), adapter.GeminiConfig{Project: "only-project"})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, adapter.ErrNoCredential))
}

func TestResponseText(t *testing.T) {
	testCases := map[string]struct {
		resp   *genai.GenerateContentResponse
		expect string
	}{
		"nil response": {
			resp:   nil,
			expect: "",
		},
		"no candidates": {
			resp:   &genai.GenerateContentResponse{},
			expect: "",
		},
		"nil content": {
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{}},
			},
			expect: "",
		},
		"multiple parts": {
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{
						Content: &genai.Content{
							Role: genai.RoleModel,
							Parts: []*genai.Part{
								{Text: "  Hola, "},
								{Text: "razonando...", Thought: true},
								{Text: "¿en qué te ayudo?\n"},
							},
						},
					},
				},
			},
			expect: "Hola, ¿en qué te ayudo?",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			gt.Equal(t, adapter.ResponseText(tc.resp), tc.expect)
		})
	}
}
