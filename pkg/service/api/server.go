package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/integrasalud/integrasalud/pkg/knowledge"
	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/integrasalud/integrasalud/pkg/usecase/chat"
	"github.com/integrasalud/integrasalud/pkg/usecase/token"
	"github.com/integrasalud/integrasalud/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

var ErrInvalidRequest = goerr.New("invalid request")

// Server is the HTTP front of the consultation core
type Server struct {
	router  *chi.Mux
	store   *Store
	catalog *knowledge.Catalog
	logger  *slog.Logger
	metrics http.Handler
}

type Option func(*Server)

// WithMetricsHandler mounts h at /metrics
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(store *Store, catalog *knowledge.Catalog, opts ...Option) *Server {
	s := &Server{
		store:   store,
		catalog: catalog,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/topics", s.listTopics)
		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Put("/topic", s.selectTopic)
			r.Post("/queries", s.ask)
			r.Post("/tokens", s.issueToken)
			r.Post("/view/chat", s.backToChat)
			r.Delete("/learned", s.forgetLearned)
		})
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			reqLogger := logger.With("request_id", middleware.GetReqID(r.Context()))
			ctx := logging.With(r.Context(), reqLogger)

			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type topicRequest struct {
	Topic model.TopicID `json:"topic"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Text       string            `json:"text"`
	Provenance model.Provenance  `json:"provenance"`
	Label      string            `json:"label"`
	View       model.View        `json:"view"`
	Facilities []*model.Facility `json:"facilities,omitempty"`
}

type tokenRequest struct {
	Facility  string `json:"facility"`
	Specialty string `json:"specialty"`
}

type tokenResponse struct {
	*model.Token
	Instructions string `json:"instructions"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, chat.ErrEmptyQuery),
		errors.Is(err, model.ErrUnknownTopic),
		errors.Is(err, model.ErrUnknownFacility),
		errors.Is(err, model.ErrUnknownSpecialty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	logger := logging.From(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		writeJSON(w, status, &errorResponse{Error: "internal error"})
		return
	}
	logger.Debug("request rejected", "error", err, "status", status)
	writeJSON(w, status, &errorResponse{Error: err.Error()})
}

// decodeBody reads a JSON body into dst. An empty body is accepted when
// optional is set.
func decodeBody(r *http.Request, dst any, optional bool) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return goerr.Wrap(ErrInvalidRequest, "failed to decode request body", goerr.V("cause", err.Error()))
	}
	return nil
}

func (s *Server) session(r *http.Request) (*chat.Session, error) {
	return s.store.Get(model.SessionID(chi.URLParam(r, "id")))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.store.Len(),
	})
}

func (s *Server) listTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"topics": s.catalog.Topics(),
	})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req topicRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	session, err := s.store.Create(req.Topic)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logging.From(r.Context()).Info("session created", "session", session.ID(), "topic", session.Topic().ID)
	writeJSON(w, http.StatusCreated, session.Snapshot())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(model.SessionID(chi.URLParam(r, "id"))); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectTopic(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req topicRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := session.SelectTopic(req.Topic); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req queryRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	answer, err := session.Ask(r.Context(), req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := &queryResponse{
		Text:       answer.Text,
		Provenance: answer.Provenance,
		Label:      answer.Provenance.Label(),
		View:       session.View(),
	}
	if answer.Provenance == model.ProvenanceAppointmentIntent {
		resp.Facilities = session.Topic().Facilities
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req tokenRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	tk, err := session.IssueToken(req.Facility, req.Specialty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &tokenResponse{
		Token:        tk,
		Instructions: token.Instructions(tk),
	})
}

func (s *Server) backToChat(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	session.BackToChat()
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) forgetLearned(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	session.ForgetLearned()
	w.WriteHeader(http.StatusNoContent)
}
