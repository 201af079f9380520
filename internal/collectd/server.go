// Package collectd is the reference tracking collector: it accepts session
// snapshots, event batches and progress updates, persists them through an
// ingest.Store and streams what it receives to websocket subscribers.
package collectd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"

	"github.com/hay-kot/studytrack/internal/collector"
	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/engagement"
	"github.com/hay-kot/studytrack/internal/core/events"
	"github.com/hay-kot/studytrack/internal/core/ingest"
	"github.com/hay-kot/studytrack/internal/core/session"
	"github.com/hay-kot/studytrack/internal/core/validate"
)

const (
	maxBodyBytes   = 4 << 20
	maxBatchEvents = 500
	defaultListMax = 100

	// PathSessions lists stored sessions.
	PathSessions = "/api/tracking/sessions"
	// PathEvents lists stored events.
	PathEvents = "/api/tracking/events"
)

// Options configures a Server.
type Options struct {
	Store          ingest.Store
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server serves the collector endpoints.
type Server struct {
	store   ingest.Store
	hub     *Hub
	log     zerolog.Logger
	origins map[string]bool
}

// New creates a Server.
func New(opts Options) *Server {
	origins := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		origins[strings.TrimSpace(o)] = true
	}

	log := opts.Logger.With().Str("component", "collectd").Logger()
	return &Server{
		store:   opts.Store,
		hub:     NewHub(opts.AllowedOrigins, opts.Logger),
		log:     log,
		origins: origins,
	}
}

// Hub returns the live stream hub.
func (s *Server) Hub() *Hub { return s.hub }

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.cors)

	r.Get(collector.PathHealth, s.health)

	r.Post(collector.PathSession, s.postSession)
	r.Post(collector.PathInteractions, s.postInteractions)
	r.Get(collector.PathStream, s.hub.HandleWebSocket)
	r.Get(PathSessions, s.listSessions)
	r.Get(PathSessions+"/{id}", s.getSession)
	r.Get(PathEvents, s.listEvents)

	r.Get(collector.PathProgress, s.getProgress)
	r.Post(collector.PathProgressUpdate, s.postProgressUpdate)

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("collector listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down collector")
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "subscribers": s.hub.Len()})
}

func (s *Server) postSession(w http.ResponseWriter, r *http.Request) {
	var d session.Data
	if !s.decode(w, r, &d) {
		return
	}
	if err := validateSession(d); err != nil {
		s.writeValidation(w, err)
		return
	}

	if err := s.store.SaveSession(r.Context(), d); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "save session", err)
		return
	}

	s.hub.Publish(StreamMessage{Type: MessageSession, Session: Digest(d)})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessionId": d.SessionID})
}

func (s *Server) postInteractions(w http.ResponseWriter, r *http.Request) {
	var req collector.InteractionsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := validateEvents(req.Events); err != nil {
		s.writeValidation(w, err)
		return
	}

	if err := s.store.AppendEvents(r.Context(), req.Events); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "append events", err)
		return
	}

	if len(req.Events) > 0 {
		s.hub.Publish(StreamMessage{Type: MessageEvents, Events: req.Events})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "received": len(req.Events)})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "list sessions", err)
		return
	}

	limit := queryInt(r, "limit", defaultListMax)
	if len(all) > limit {
		all = all[:limit]
	}

	out := make([]*SessionDigest, 0, len(all))
	for _, d := range all {
		out = append(out, Digest(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validate.ID(id); err != nil {
		s.writeValidation(w, criterio.NewFieldErrors("id", err))
		return
	}

	d, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, ingest.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "session not found"})
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := ingest.EventQuery{
		SessionID: r.URL.Query().Get("sessionId"),
		EventType: r.URL.Query().Get("eventType"),
		Limit:     queryInt(r, "limit", defaultListMax),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339Nano, since)
		if err != nil {
			s.writeValidation(w, criterio.NewFieldErrors("since", fmt.Errorf("must be RFC3339: %w", err)))
			return
		}
		q.Since = t
	}

	evs, err := s.store.ListEvents(r.Context(), q)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "list events", err)
		return
	}
	if evs == nil {
		evs = []events.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	contentID := r.URL.Query().Get("contentId")
	ct := engagement.ContentType(r.URL.Query().Get("contentType"))

	var errs criterio.FieldErrorsBuilder
	if err := validate.ID(contentID); err != nil {
		errs = errs.Append("contentId", err)
	}
	if err := validate.ContentType(ct); err != nil {
		errs = errs.Append("contentType", err)
	}
	userID, err := userFrom(r)
	if err != nil {
		errs = errs.Append(collector.HeaderUserID, err)
	}
	if err := errs.ToError(); err != nil {
		s.writeValidation(w, err)
		return
	}

	rec, err := s.store.GetProgress(r.Context(), ingest.ProgressKey{UserID: userID, ContentID: contentID, ContentType: ct})
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "get progress", err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Progress())
}

func (s *Server) postProgressUpdate(w http.ResponseWriter, r *http.Request) {
	var u content.ProgressUpdate
	if !s.decode(w, r, &u) {
		return
	}

	var errs criterio.FieldErrorsBuilder
	if err := validate.ID(u.ContentID); err != nil {
		errs = errs.Append("contentId", err)
	}
	if err := validate.ContentType(u.ContentType); err != nil {
		errs = errs.Append("contentType", err)
	}
	if err := validate.Score(u.Score); err != nil {
		errs = errs.Append("score", err)
	}
	if err := validate.NonNegative(u.TimeSpent); err != nil {
		errs = errs.Append("timeSpent", err)
	}
	userID, err := userFrom(r)
	if err != nil {
		errs = errs.Append(collector.HeaderUserID, err)
	}
	if err := errs.ToError(); err != nil {
		s.writeValidation(w, err)
		return
	}

	rec, err := s.store.UpdateProgress(r.Context(), userID, u)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "update progress", err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Progress())
}

// decode reads a JSON body. It writes the error response and returns false
// on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json: " + err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Error  string       `json:"error"`
	Fields []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (s *Server) writeValidation(w http.ResponseWriter, err error) {
	body := errorBody{Error: "validation failed"}

	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			body.Fields = append(body.Fields, fieldError{Field: fe.Field, Message: fe.Err.Error()})
		}
	} else {
		body.Error = err.Error()
	}

	writeJSON(w, http.StatusUnprocessableEntity, body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, op string, err error) {
	s.log.Error().
		Err(err).
		Str("op", op).
		Str("request_id", chimiddleware.GetReqID(r.Context())).
		Msg("request failed")
	writeJSON(w, status, errorBody{Error: op + " failed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func userFrom(r *http.Request) (string, error) {
	id := r.Header.Get(collector.HeaderUserID)
	if id == "" {
		return ingest.AnonymousUser, nil
	}
	return id, validate.ID(id)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
