// Package api provides the HTTP server for the guild board.
// Requester identity arrives in the X-User-ID header; authentication happens
// upstream.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/guildboard/guildboard/internal/app/board"
	"github.com/guildboard/guildboard/internal/app/dispatch"
	"github.com/guildboard/guildboard/internal/domain"
	"github.com/guildboard/guildboard/internal/infra/observability"
	"github.com/guildboard/guildboard/internal/infra/redisx"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

var validate = validator.New()

// Server is the guild board HTTP API server.
type Server struct {
	board          *board.Service
	tracer         *observability.Tracer
	dedupe         *redisx.Deduper
	events         *dispatch.Dispatcher
	log            *log.Logger
	metricsEnabled bool
	timeout        time.Duration
}

// NewServer creates a new API server.
func NewServer(svc *board.Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Server{board: svc, log: logger, timeout: 30 * time.Second}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTracer exposes recorded spans at /api/traces.
func (s *Server) SetTracer(t *observability.Tracer) { s.tracer = t }

// SetDeduper enables Idempotency-Key handling on mutating routes.
func (s *Server) SetDeduper(d *redisx.Deduper) { s.dedupe = d }

// SetDispatcher reports event delivery counters at /health.
func (s *Server) SetDispatcher(d *dispatch.Dispatcher) { s.events = d }

// SetTimeout bounds each request.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Open routes
		r.Post("/users", s.handleCreateUser)
		r.Get("/users/{id}/ledger", s.handleLedger)
		r.Get("/badges", s.handleBadges)
		r.Get("/traces", s.handleTraces)
		r.With(requireUser).Get("/users", s.handleListUsers)

		// Routes acting on behalf of a user
		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Use(s.idempotency)

			r.Post("/projects", s.handleCreateProject)
			r.Get("/projects/mine", s.handleMyProjects)
			r.Get("/projects/{id}", s.handleGetProject)
			r.Post("/projects/{id}/manager", s.handleAssignManager)
			r.Post("/projects/{id}/members", s.handleAddMember)
			r.Delete("/projects/{id}/members/{userID}", s.handleRemoveMember)
			r.Get("/projects/{id}/tasks", s.handleProjectTasks)

			r.Post("/tasks", s.handleCreateTask)
			r.Get("/tasks/mine", s.handleMyTasks)
			r.Patch("/tasks/{id}", s.handleUpdateTask)
			r.Delete("/tasks/{id}", s.handleDeleteTask)
		})
	})

	return r
}

// healthResponse is the /health body. Events is present when a dispatcher
// is attached.
type healthResponse struct {
	Status string          `json:"status"`
	Events *dispatch.Stats `json:"events,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.events != nil {
		stats := s.events.Stats()
		resp.Events = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Responses ──────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the wire shape of every failure.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders err with the status its kind implies. Internal errors
// are logged and hidden from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeErrorCode(w, http.StatusBadRequest, domain.KindValidation, describeValidation(verrs))
		return
	}

	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		s.log.WithError(err).WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request failed")
		msg = "internal error"
	}
	writeErrorCode(w, StatusFor(kind), kind, msg)
}

func writeErrorCode(w http.ResponseWriter, status int, kind domain.Kind, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: string(kind), Message: msg}})
}

func describeValidation(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fe.Field()+" failed "+fe.Tag()+"="+fe.Param())
		} else {
			parts = append(parts, fe.Field()+" failed "+fe.Tag())
		}
	}
	return strings.Join(parts, "; ")
}

// ─── Requests ───────────────────────────────────────────────────────────────

// decodeJSON reads a single JSON object into v, rejecting unknown fields, then
// runs struct validation.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	if dec.More() {
		return domain.Validationf("invalid request body: trailing data")
	}
	return validate.Struct(v)
}

// ─── Middleware ─────────────────────────────────────────────────────────────

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+UserHeader+", "+IdempotencyHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request at debug level, and at warn for
// server errors.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		entry := s.log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	})
}
