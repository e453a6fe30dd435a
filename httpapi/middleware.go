package httpapi

import (
	"context"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-helpdesk/auth"
	"github.com/goliatone/go-helpdesk/core"
)

type principalKey struct{}

// authenticate rejects the request with 401 before any handler runs when the
// bearer token is missing or invalid.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, core.AuthenticationError("Unauthorized"))
			return
		}
		principal, err := s.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			s.logger.WithContext(r.Context()).Debug("bearer token rejected", "error", err)
			writeError(w, core.AuthenticationError("Unauthorized"))
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFrom(ctx context.Context) (core.Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(core.Principal)
	return principal, ok && principal.ProfileID != ""
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithContext(r.Context()).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(started).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
