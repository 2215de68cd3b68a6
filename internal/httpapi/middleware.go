package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/BrandonDHaskell/gatepass/server/internal/auth"
	"github.com/BrandonDHaskell/gatepass/server/internal/logger"
)

// RequestLogging stores a per-request logger in the context and writes one
// access log line when the handler returns. Attributes added through
// logger.ContextWithLogAttrs are appended to that line.
func RequestLogging(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := base.With(slog.String("request_id", middleware.GetReqID(r.Context())))
			ctx := logger.ContextWithLogger(r.Context(), reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			}
			attrs = append(attrs, logger.ContextLogAttrs(ctx)...)

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			reqLogger.LogAttrs(ctx, level, "request", attrs...)
		})
	}
}

// RequestSizeLimit rejects bodies larger than maxBytes with 413. A declared
// Content-Length over the cap is refused before the handler runs.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Max-Request-Size", strconv.FormatInt(maxBytes, 10))

			if r.ContentLength > maxBytes {
				respondWithStatus(w, r, http.StatusRequestEntityTooLarge, "request_too_large",
					fmt.Sprintf("Request body size (%d bytes) exceeds maximum allowed size (%d bytes)", r.ContentLength, maxBytes))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func SecurityHeaders(environment string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Cache-Control", "no-store")

			if environment == "prod" || environment == "staging" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit limits requests per second across all clients. If
// requestsPerSecond <= 0, rate limiting is disabled.
func RateLimit(requestsPerSecond, burst int32) func(http.Handler) http.Handler {
	if requestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.ContextWithLogAttrs(r.Context(), slog.Bool("rate_limited", true))
				respondWithStatus(w, r, http.StatusTooManyRequests, "rate_limited",
					"Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OperationTimeout bounds the request context. Handlers see the deadline
// through the service calls they make; d <= 0 disables the bound.
func OperationTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticate requires a valid bearer token whose role is one of roles.
// A missing or invalid token gets 401, a valid token with the wrong role 403.
func Authenticate(tokens *auth.Issuer, roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondWithStatus(w, r, http.StatusUnauthorized, "authentication", "Invalid or expired token")
				return
			}
			id, err := tokens.Parse(raw)
			if err != nil {
				respondWithStatus(w, r, http.StatusUnauthorized, "authentication", "Invalid or expired token")
				return
			}
			if !slices.Contains(roles, id.Role) {
				logger.ContextWithLogAttrs(r.Context(), slog.String("subject", id.Subject))
				respondWithStatus(w, r, http.StatusForbidden, "forbidden", "Insufficient permissions")
				return
			}

			logger.ContextWithLogAttrs(r.Context(),
				slog.String("subject", id.Subject),
				slog.String("role", string(id.Role)),
			)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
		})
	}
}
