package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/integrasalud/integrasalud/pkg/adapter"
	"github.com/integrasalud/integrasalud/pkg/knowledge"
	"github.com/integrasalud/integrasalud/pkg/metrics"
	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/integrasalud/integrasalud/pkg/service/api"
	"github.com/integrasalud/integrasalud/pkg/usecase/chat"
	"github.com/integrasalud/integrasalud/pkg/usecase/token"
	"github.com/m-mizutani/gt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type stubGenerator struct {
	text string
	err  error
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.text, g.err
}

func newFactory(t *testing.T, gen adapter.Generator) api.SessionFactory {
	t.Helper()
	catalog, err := knowledge.Default()
	gt.NoError(t, err)

	var opts []chat.ResolverOption
	if gen != nil {
		opts = append(opts, chat.WithGenerator(gen))
	}
	resolver := chat.NewResolver(opts...)
	issuer := token.New()

	return func(topic model.TopicID) (*chat.Session, error) {
		return chat.New(chat.NewInput{
			Catalog:  catalog,
			Resolver: resolver,
			Issuer:   issuer,
			Topic:    topic,
		})
	}
}

type testServer struct {
	t      *testing.T
	server *httptest.Server
}

func setup(t *testing.T, gen adapter.Generator) *testServer {
	t.Helper()
	catalog, err := knowledge.Default()
	gt.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := api.NewStore(newFactory(t, gen), time.Hour, m)
	srv := api.New(store, catalog,
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &testServer{t: t, server: ts}
}

func (x *testServer) do(method, path string, body any, out any) int {
	x.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		gt.NoError(x.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, x.server.URL+path, reader)
	gt.NoError(x.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	gt.NoError(x.t, err)
	defer resp.Body.Close()

	if out != nil {
		gt.NoError(x.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type snapshot struct {
	ID      string               `json:"id"`
	Topic   string               `json:"topic"`
	View    string               `json:"view"`
	Online  bool                 `json:"online"`
	History []model.HistoryEntry `json:"history"`
}

type queryResult struct {
	Text       string            `json:"text"`
	Provenance string            `json:"provenance"`
	Label      string            `json:"label"`
	View       string            `json:"view"`
	Facilities []*model.Facility `json:"facilities"`
}

type errorResult struct {
	Error string `json:"error"`
}

func (x *testServer) createSession(topic string) *snapshot {
	x.t.Helper()
	var body any
	if topic != "" {
		body = map[string]string{"topic": topic}
	}
	var snap snapshot
	gt.Equal(x.t, x.do(http.MethodPost, "/api/sessions", body, &snap), http.StatusCreated)
	return &snap
}

func TestHealth(t *testing.T) {
	ts := setup(t, nil)

	var out map[string]any
	gt.Equal(t, ts.do(http.MethodGet, "/health", nil, &out), http.StatusOK)
	gt.Equal(t, out["status"], any("ok"))
}

func TestListTopics(t *testing.T) {
	ts := setup(t, nil)

	var out struct {
		Topics []struct {
			ID         string            `json:"id"`
			Title      string            `json:"title"`
			Facilities []*model.Facility `json:"facilities"`
		} `json:"topics"`
	}
	gt.Equal(t, ts.do(http.MethodGet, "/api/topics", nil, &out), http.StatusOK)
	gt.A(t, out.Topics).Length(3)
	gt.Equal(t, out.Topics[0].ID, "sexual-health")
	gt.A(t, out.Topics[0].Facilities).Length(4)
}

func TestCreateSession(t *testing.T) {
	ts := setup(t, nil)

	t.Run("default topic", func(t *testing.T) {
		snap := ts.createSession("")
		gt.NotEqual(t, snap.ID, "")
		gt.Equal(t, snap.Topic, "sexual-health")
		gt.Equal(t, snap.View, "chat")
		gt.False(t, snap.Online)
		gt.A(t, snap.History).Length(0)
	})

	t.Run("chosen topic", func(t *testing.T) {
		snap := ts.createSession("nutrition")
		gt.Equal(t, snap.Topic, "nutrition")
	})

	t.Run("unknown topic", func(t *testing.T) {
		var out errorResult
		code := ts.do(http.MethodPost, "/api/sessions", map[string]string{"topic": "cardiology"}, &out)
		gt.Equal(t, code, http.StatusBadRequest)
		gt.S(t, out.Error).Contains("unknown topic")
	})
}

func TestSessionNotFound(t *testing.T) {
	ts := setup(t, nil)

	var out errorResult
	gt.Equal(t, ts.do(http.MethodGet, "/api/sessions/missing", nil, &out), http.StatusNotFound)
	gt.S(t, out.Error).Contains("session not found")

	gt.Equal(t, ts.do(http.MethodPost, "/api/sessions/missing/queries", map[string]string{"query": "its"}, nil), http.StatusNotFound)
	gt.Equal(t, ts.do(http.MethodDelete, "/api/sessions/missing", nil, nil), http.StatusNotFound)
}

func TestAskOfflineAndHistory(t *testing.T) {
	ts := setup(t, nil)
	snap := ts.createSession("")

	var res queryResult
	code := ts.do(http.MethodPost, "/api/sessions/"+snap.ID+"/queries", map[string]string{"query": "Qué son las ITS?"}, &res)
	gt.Equal(t, code, http.StatusOK)
	gt.Equal(t, res.Provenance, "offline")
	gt.S(t, res.Text).Contains("Infecciones de Transmisión Sexual")
	gt.Equal(t, res.View, "chat")

	code = ts.do(http.MethodPost, "/api/sessions/"+snap.ID+"/queries", map[string]string{"query": "algo sin respuesta"}, &res)
	gt.Equal(t, code, http.StatusOK)
	gt.Equal(t, res.Provenance, "error")
	gt.Equal(t, res.Text, chat.NotFoundMessage)

	var got snapshot
	gt.Equal(t, ts.do(http.MethodGet, "/api/sessions/"+snap.ID, nil, &got), http.StatusOK)
	gt.A(t, got.History).Length(2)
	gt.Equal(t, got.History[0].Query, "Qué son las ITS?")
}

func TestAskRejectsBadInput(t *testing.T) {
	ts := setup(t, nil)
	snap := ts.createSession("")

	var out errorResult
	gt.Equal(t, ts.do(http.MethodPost, "/api/sessions/"+snap.ID+"/queries", map[string]string{"query": "  "}, &out), http.StatusBadRequest)
	gt.S(t, out.Error).Contains("query is empty")

	gt.Equal(t, ts.do(http.MethodPost, "/api/sessions/"+snap.ID+"/queries", nil, &out), http.StatusBadRequest)
	gt.S(t, out.Error).Contains("invalid request")
}

func TestAskOnlineIsLearned(t *testing.T) {
	ts := setup(t, &stubGenerator{text: "Respuesta del modelo"})
	snap := ts.createSession("")
	path := "/api/sessions/" + snap.ID + "/queries"

	var res queryResult
	gt.Equal(t, ts.do(http.MethodPost, path, map[string]string{"query": "Cómo cuido mi salud"}, &res), http.StatusOK)
	gt.Equal(t, res.Provenance, "online")
	gt.Equal(t, res.Text, "Respuesta del modelo")

	gt.Equal(t, ts.do(http.MethodPost, path, map[string]string{"query": "cómo cuido mi salud"}, &res), http.StatusOK)
	gt.Equal(t, res.Provenance, "offline")
	gt.Equal(t, res.Text, "Respuesta del modelo")

	gt.Equal(t, ts.do(http.MethodDelete, "/api/sessions/"+snap.ID+"/learned", nil, nil), http.StatusNoContent)

	gt.Equal(t, ts.do(http.MethodPost, path, map[string]string{"query": "cómo cuido mi salud"}, &res), http.StatusOK)
	gt.Equal(t, res.Provenance, "online")
}

func TestAskGeneratorFailure(t *testing.T) {
	ts := setup(t, &stubGenerator{err: errors.New("quota exceeded")})
	snap := ts.createSession("")

	var res queryResult
	gt.Equal(t, ts.do(http.MethodPost, "/api/sessions/"+snap.ID+"/queries", map[string]string{"query": "algo nuevo"}, &res), http.StatusOK)
	gt.Equal(t, res.Provenance, "error")
	gt.S(t, res.Text).Contains("Hubo un problema al contactar a la IA")
	gt.S(t, res.Text).Contains("quota exceeded")
}

func TestAppointmentFlow(t *testing.T) {
	ts := setup(t, nil)
	snap := ts.createSession("")
	base := "/api/sessions/" + snap.ID

	var res queryResult
	gt.Equal(t, ts.do(http.MethodPost, base+"/queries", map[string]string{"query": "Necesito un TURNO"}, &res), http.StatusOK)
	gt.Equal(t, res.Provenance, "appointment-intent")
	gt.Equal(t, res.Text, "")
	gt.Equal(t, res.View, "token")
	gt.A(t, res.Facilities).Length(4)

	var tk struct {
		Code         string `json:"code"`
		Facility     string `json:"facility"`
		Specialty    string `json:"specialty"`
		Instructions string `json:"instructions"`
	}
	code := ts.do(http.MethodPost, base+"/tokens", map[string]string{
		"facility":  "CISB La Banda",
		"specialty": "Testeo Rápido ITS",
	}, &tk)
	gt.Equal(t, code, http.StatusCreated)
	gt.True(t, regexp.MustCompile(`^[A-Z]+-[A-Z]+-[1-9][0-9]{2}$`).MatchString(tk.Code))
	gt.Equal(t, tk.Facility, "CISB La Banda")
	gt.S(t, tk.Instructions).Contains(tk.Code)

	var out errorResult
	code = ts.do(http.MethodPost, base+"/tokens", map[string]string{
		"facility":  "CISB La Banda",
		"specialty": "Urología",
	}, &out)
	gt.Equal(t, code, http.StatusBadRequest)
	gt.S(t, out.Error).Contains("unknown specialty")

	var got snapshot
	gt.Equal(t, ts.do(http.MethodPost, base+"/view/chat", nil, &got), http.StatusOK)
	gt.Equal(t, got.View, "chat")
	gt.A(t, got.History).Length(0)

	gt.Equal(t, ts.do(http.MethodPost, base+"/queries", map[string]string{"query": "otro turno"}, &res), http.StatusOK)
	gt.Equal(t, res.View, "token")
	gt.Equal(t, ts.do(http.MethodPost, base+"/queries", map[string]string{"query": "preservativo"}, &res), http.StatusOK)
	gt.Equal(t, res.Provenance, "offline")
	gt.Equal(t, res.View, "chat")
}

func TestSelectTopicClearsHistory(t *testing.T) {
	ts := setup(t, nil)
	snap := ts.createSession("")
	base := "/api/sessions/" + snap.ID

	gt.Equal(t, ts.do(http.MethodPost, base+"/queries", map[string]string{"query": "preservativo"}, nil), http.StatusOK)

	var got snapshot
	gt.Equal(t, ts.do(http.MethodPut, base+"/topic", map[string]string{"topic": "mental-wellness"}, &got), http.StatusOK)
	gt.Equal(t, got.Topic, "mental-wellness")
	gt.A(t, got.History).Length(0)

	var out errorResult
	gt.Equal(t, ts.do(http.MethodPut, base+"/topic", map[string]string{"topic": "cardiology"}, &out), http.StatusBadRequest)
}

func TestDeleteSession(t *testing.T) {
	ts := setup(t, nil)
	snap := ts.createSession("")

	gt.Equal(t, ts.do(http.MethodDelete, "/api/sessions/"+snap.ID, nil, nil), http.StatusNoContent)
	gt.Equal(t, ts.do(http.MethodGet, "/api/sessions/"+snap.ID, nil, nil), http.StatusNotFound)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setup(t, nil)
	ts.createSession("")

	resp, err := http.Get(ts.server.URL + "/metrics")
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	gt.NoError(t, err)
	gt.S(t, buf.String()).Contains("integrasalud_sessions_active 1")
}
