package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/guildboard/guildboard/internal/domain"
)

const (
	// UserHeader carries the authenticated requester's account ID.
	UserHeader = "X-User-ID"
	// IdempotencyHeader lets a client retry a mutating request safely.
	IdempotencyHeader = "Idempotency-Key"
)

type ctxKey int

const userKey ctxKey = iota

// requireUser rejects requests without an identity and stores it in the
// request context.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(UserHeader)
		if id == "" {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", UserHeader+" header is required")
			return
		}
		ctx := context.WithValue(r.Context(), userKey, domain.UserID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requester returns the identity stored by requireUser.
func requester(r *http.Request) domain.UserID {
	id, _ := r.Context().Value(userKey).(domain.UserID)
	return id
}

// idempotency refuses a mutating request whose Idempotency-Key was already
// accepted for the same user. A key whose request fails is released so the
// client can retry. Redis errors let the request through.
func (s *Server) idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if key == "" || r.Method == http.MethodGet || !s.dedupe.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		user := string(requester(r))
		added, err := s.dedupe.Add(r.Context(), user, key)
		if err != nil {
			s.log.WithError(err).Warn("idempotency check failed; processing request")
			next.ServeHTTP(w, r)
			return
		}
		if !added {
			writeErrorCode(w, http.StatusConflict, domain.KindConflict, "duplicate request for "+IdempotencyHeader+" "+key)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() >= http.StatusBadRequest {
			if err := s.dedupe.Remove(context.WithoutCancel(r.Context()), user, key); err != nil {
				s.log.WithError(err).WithFields(log.Fields{"user": user, "key": key}).Warn("idempotency key not released")
			}
		}
	})
}
