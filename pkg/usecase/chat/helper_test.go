package chat_test

import (
	"context"
	"sync"
	"testing"

	"github.com/integrasalud/integrasalud/pkg/knowledge"
	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/m-mizutani/gt"
)

// mockGenerator returns a fixed text or error and records prompts
type mockGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []string
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	return m.text, m.err
}

func (m *mockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// blockingGenerator waits until the context is done
type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func loadTopic(t *testing.T, id model.TopicID) *model.Topic {
	t.Helper()
	c, err := knowledge.Default()
	gt.NoError(t, err)
	topic, err := c.Get(id)
	gt.NoError(t, err)
	return topic
}

func loadCatalog(t *testing.T) *knowledge.Catalog {
	t.Helper()
	c, err := knowledge.Default()
	gt.NoError(t, err)
	return c
}
