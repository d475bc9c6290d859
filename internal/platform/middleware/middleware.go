// Package middleware provides the HTTP cross-cutting layers: request
// identification, panic recovery, access logging, and bearer-token auth.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"registra/internal/platform/token"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/requestcontext"
)

const requestIDHeader = "X-Request-ID"

// RequestID stamps every request with a correlation ID and the evaluation
// clock. Downstream code reads both through requestcontext.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), id)
		ctx = requestcontext.WithNow(ctx, time.Now().UTC())
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Recovery converts panics into 500s instead of dropping the connection.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						"panic", rec,
						"path", r.URL.Path,
						"request_id", requestcontext.RequestID(r.Context()))
					http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Logging emits one access log line per request.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestcontext.RequestID(r.Context()))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Validator verifies bearer tokens. Satisfied by token.Service.
type Validator interface {
	Validate(tokenString string) (*token.Claims, error)
}

// RequireAuth rejects requests without a valid bearer token and records the
// token subject as the acting principal for auditing.
func RequireAuth(validator Validator) func(http.Handler) http.Handler {
	return requireRole(validator, "")
}

// RequireAdmin additionally requires the admin role.
func RequireAdmin(validator Validator) func(http.Handler) http.Handler {
	return requireRole(validator, token.RoleAdmin)
}

func requireRole(validator Validator, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}
			claims, err := validator.Validate(raw)
			if err != nil {
				unauthorized(w, "invalid bearer token")
				return
			}
			if role != "" && claims.Role != role {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(dErrors.ToHTTPStatus(dErrors.CodeForbidden))
				w.Write([]byte(`{"error":"insufficient privileges"}`))
				return
			}
			ctx := requestcontext.WithActor(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
