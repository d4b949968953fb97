package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/netsight/reportd/internal/auth"
	"github.com/netsight/reportd/internal/store"
)

type contextKey string

const identityKey contextKey = "identity"

// authenticate resolves the bearer token to a fresh Identity. Role and
// allowed sites come from the user document per request, so admin changes
// take effect without re-login.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		username, err := s.tokens.Subject(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user, err := s.users.FindUser(r.Context(), username)
		if errors.Is(err, store.ErrUserNotFound) {
			respondError(w, http.StatusUnauthorized, "user not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "lookup failed")
			return
		}

		identity := auth.Identity{
			Username:     user.Username,
			Role:         user.Role,
			AllowedSites: user.AllowedSites,
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identityFrom(r).IsAdmin() {
			respondError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityFrom(r *http.Request) auth.Identity {
	identity, _ := r.Context().Value(identityKey).(auth.Identity)
	return identity
}
