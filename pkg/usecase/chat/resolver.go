package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/integrasalud/integrasalud/pkg/adapter"
	"github.com/integrasalud/integrasalud/pkg/metrics"
	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/integrasalud/integrasalud/pkg/policy"
	"github.com/integrasalud/integrasalud/pkg/utils/logging"
)

const (
	// NotFoundMessage is returned when nothing matched and no generator is available
	NotFoundMessage = "No encontré una respuesta y el modo online no está activo o falló."

	backendFailureFormat = "Hubo un problema al contactar a la IA. Error técnico: %v"
	promptFormat         = "%s Responde a la siguiente consulta del usuario: %s"

	DefaultGenerateTimeout = 30 * time.Second
)

// IntentDetector decides whether a lowercased query asks for an appointment
type IntentDetector interface {
	IsAppointment(ctx context.Context, query string, topic model.TopicID) bool
}

type keywordIntent struct{}

func (keywordIntent) IsAppointment(_ context.Context, query string, _ model.TopicID) bool {
	return strings.Contains(query, policy.AppointmentKeyword)
}

// Resolver answers a query from a topic's keywords, the session's learned
// answers, or the generator, in that order.
type Resolver struct {
	generator adapter.Generator
	intent    IntentDetector
	timeout   time.Duration
	metrics   *metrics.Metrics
}

type ResolverOption func(*Resolver)

// WithGenerator enables online answers. A nil generator keeps the resolver offline.
func WithGenerator(g adapter.Generator) ResolverOption {
	return func(r *Resolver) {
		r.generator = g
	}
}

func WithIntent(intent IntentDetector) ResolverOption {
	return func(r *Resolver) {
		if intent != nil {
			r.intent = intent
		}
	}
}

// WithGenerateTimeout bounds each generator call. Zero or less disables the bound.
func WithGenerateTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.timeout = d
	}
}

func WithResolverMetrics(m *metrics.Metrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		intent:  keywordIntent{},
		timeout: DefaultGenerateTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Online reports whether a generator is configured
func (r *Resolver) Online() bool {
	return r.generator != nil
}

// Resolve never fails: every outcome, including backend errors, is an Answer.
// A successful generation is learned into memo under the lowercased query.
func (r *Resolver) Resolve(ctx context.Context, query string, topic *model.Topic, memo *Memo) *model.Answer {
	answer := r.resolve(ctx, query, topic, memo)
	r.metrics.ObserveAnswer(topic.ID, answer.Provenance)
	return answer
}

func (r *Resolver) resolve(ctx context.Context, query string, topic *model.Topic, memo *Memo) *model.Answer {
	logger := logging.From(ctx).With("topic", topic.ID)
	lowered := strings.ToLower(query)

	if r.intent.IsAppointment(ctx, lowered, topic.ID) {
		logger.Debug("appointment intent detected")
		return &model.Answer{Provenance: model.ProvenanceAppointmentIntent}
	}

	for _, kw := range topic.Keywords {
		if strings.Contains(lowered, kw.Trigger) {
			logger.Debug("keyword matched", "trigger", kw.Trigger)
			return &model.Answer{Text: kw.Answer, Provenance: model.ProvenanceOffline}
		}
	}

	if text, ok := memo.Match(lowered); ok {
		logger.Debug("learned answer matched")
		return &model.Answer{Text: text, Provenance: model.ProvenanceOffline}
	}

	if r.generator == nil {
		return &model.Answer{Text: NotFoundMessage, Provenance: model.ProvenanceError}
	}

	text, err := r.generate(ctx, fmt.Sprintf(promptFormat, topic.SystemInstruction, query))
	if err != nil {
		logger.Warn("generator call failed", "error", err)
		return &model.Answer{
			Text:       fmt.Sprintf(backendFailureFormat, err),
			Provenance: model.ProvenanceError,
		}
	}

	memo.Learn(lowered, text)
	return &model.Answer{Text: text, Provenance: model.ProvenanceOnline}
}

func (r *Resolver) generate(ctx context.Context, prompt string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	text, err := r.generator.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = adapter.ErrEmptyResponse
	}
	r.metrics.ObserveGeneration(time.Since(started), err)
	return text, err
}
