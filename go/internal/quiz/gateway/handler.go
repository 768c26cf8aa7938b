package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/questionset"
	"github.com/mcdev12/quizlive/go/internal/quiz/orchestrator"
	"github.com/mcdev12/quizlive/go/internal/quiz/quizerr"
	"github.com/mcdev12/quizlive/go/internal/quiz/session"
)

// SessionView is the read side of the orchestrator used by the REST routes.
type SessionView interface {
	Snapshot(code string) (session.Snapshot, error)
	Stats() orchestrator.Stats
}

// SetCatalog lists the names of the question set library.
type SetCatalog interface {
	Names() ([]string, error)
}

// HealthCheck reports whether an optional component is reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the websocket endpoint and the REST routes.
type Handler struct {
	connectionManager *ConnectionManager
	sessions          SessionView
	sets              SetCatalog
	checks            map[string]HealthCheck
	maxBodyBytes      int64
}

func NewHandler(cm *ConnectionManager, sessions SessionView, sets SetCatalog, checks map[string]HealthCheck) *Handler {
	if checks == nil {
		checks = map[string]HealthCheck{}
	}
	return &Handler{
		connectionManager: cm,
		sessions:          sessions,
		sets:              sets,
		checks:            checks,
		maxBodyBytes:      cm.config.MaxMessageSize,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/ws", h.HandleConnection)
	r.Get("/health", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.HandleStats)
		r.Get("/sessions/{code}", h.HandleSessionSnapshot)
		r.Get("/question-sets", h.HandleListQuestionSets)
		r.Post("/question-sets/validate", h.HandleValidateQuestionSet)
	})

	return r
}

// GET /ws
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		// the upgrader has already written the HTTP error
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
	}
}

// GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"components": components,
		"timestamp":  time.Now().UnixMilli(),
	})
}

// GET /api/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"connections": h.connectionManager.GetConnectionStats(),
		"sessions":    h.sessions.Stats(),
	})
}

// GET /api/sessions/{code}
func (h *Handler) HandleSessionSnapshot(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	snapshot, err := h.sessions.Snapshot(code)
	if err != nil {
		if errors.Is(err, quizerr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, orchestrator.FailureReply{Reason: quizerr.CodeNotFound})
			return
		}
		log.Error().Err(err).Str("session_code", code).Msg("failed to get session snapshot")
		writeJSON(w, http.StatusInternalServerError, orchestrator.FailureReply{Reason: quizerr.CodeInternal})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// GET /api/question-sets
func (h *Handler) HandleListQuestionSets(w http.ResponseWriter, r *http.Request) {
	if h.sets == nil {
		writeJSON(w, http.StatusOK, map[string]any{"sets": []string{}})
		return
	}
	names, err := h.sets.Names()
	if err != nil {
		log.Error().Err(err).Msg("failed to list question sets")
		writeJSON(w, http.StatusInternalServerError, orchestrator.FailureReply{Reason: quizerr.CodeInternal})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sets": names})
}

type validationResponse struct {
	Valid     bool                  `json:"valid"`
	Name      string                `json:"name,omitempty"`
	Questions int                   `json:"questions"`
	Problems  []questionset.Problem `json:"problems,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// POST /api/question-sets/validate
func (h *Handler) HandleValidateQuestionSet(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, validationResponse{Error: "body too large"})
		return
	}

	format := questionset.DetectFormat(body)
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = questionset.FormatYAML
	}

	set, err := questionset.Parse(body, format)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: err.Error()})
		return
	}

	resp := validationResponse{Valid: true, Name: set.Name, Questions: len(set.Questions)}
	if err := questionset.Validate(set.Questions); err != nil {
		var verr *questionset.ValidationError
		if errors.As(err, &verr) {
			resp.Problems = verr.Problems
		}
		resp.Valid = false
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
