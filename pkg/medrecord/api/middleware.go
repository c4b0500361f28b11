package api

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/jwtauth"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

type contextKey string

const actorContextKey contextKey = "actor_id"

// anonymousActor is stamped on mutations arriving without any identity.
const anonymousActor = "anonymous"

// WithActor returns a context carrying the acting user's id.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey, actorID)
}

// ActorFromContext returns the acting user's id from the request context.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey).(string); ok && actor != "" {
		return actor
	}
	return anonymousActor
}

// JWTActor extracts the actor id from the verified JWT's subject claim.
// Must sit behind jwtauth.Verifier. Requests without a valid token pass
// through as anonymous; handlers that need a real identity reject them
// downstream.
func JWTActor() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, claims, err := jwtauth.FromContext(r.Context()); err == nil {
				if sub, ok := claims["sub"].(string); ok && sub != "" {
					r = r.WithContext(WithActor(r.Context(), sub))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireActor rejects requests that carry no resolved identity.
func RequireActor() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ActorFromContext(r.Context()) == anonymousActor {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HeaderActor reads the actor id from the X-Actor-ID header. Intended for
// trusted internal deployments without a token issuer.
func HeaderActor() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor := r.Header.Get("X-Actor-ID"); actor != "" {
				r = r.WithContext(WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wrapper that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// RequestLogger logs one line per request with method, path, status,
// duration and the acting user.
func RequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"actor", ActorFromContext(r.Context()),
			)
		})
	}
}
