package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/guildboard/guildboard/internal/app/board"
	"github.com/guildboard/guildboard/internal/app/engagement"
	"github.com/guildboard/guildboard/internal/domain"
)

// ─── Engagement API ─────────────────────────────────────────────────────────
// Read-only views of ledgers, the badge catalog and completion traces.
//
// POST /api/users                create an account with an empty ledger
// GET  /api/users?role=developer developer directory, for project managers
// GET  /api/users/{id}/ledger    xp, level, progress, badges, recent credits
// GET  /api/badges               the badge catalog
// GET  /api/traces               recent task update spans

const (
	defaultRecent = 20
	maxRecent     = 200
)

// handleCreateUser opens an account.
// POST /api/users
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in board.CreateUserInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.board.CreateUser(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// handleLedger returns an account's ledger.
// GET /api/users/{id}/ledger?recent=N
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	recent, err := queryInt(r, "recent", defaultRecent, maxRecent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.board.Ledger(r.Context(), domain.UserID(chi.URLParam(r, "id")), recent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleListUsers lists developers for a project manager. Developers are the
// only role that can be browsed.
// GET /api/users?role=developer
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if role := domain.Role(r.URL.Query().Get("role")); role != "" && role != domain.RoleDeveloper {
		writeErrorCode(w, http.StatusBadRequest, domain.KindValidation, "only role=developer can be listed")
		return
	}
	users, err := s.board.ListDevelopers(r.Context(), requester(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleBadges returns every badge, dormant ones included.
// GET /api/badges
func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	badges := engagement.Badges()
	writeJSON(w, http.StatusOK, map[string]any{
		"badges": badges,
		"count":  len(badges),
	})
}

// handleTraces returns the most recent spans.
// GET /api/traces?limit=N
func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	if s.tracer == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, domain.KindInternal, "tracing not enabled")
		return
	}
	limit, err := queryInt(r, "limit", 100, 1000)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	spans := s.tracer.Spans(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"spans": spans,
		"count": len(spans),
		"total": s.tracer.SpanCount(),
	})
}

// queryInt parses an optional positive integer query parameter, clamped to max.
func queryInt(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, domain.Validationf("%s must be a positive integer", name)
	}
	if n > max {
		n = max
	}
	return n, nil
}
