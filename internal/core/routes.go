package core

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"bookingrelay/internal/types"
)

// defaultRequestTimeout applies when the config leaves REQUEST_TIMEOUT unset.
// Lambda deployments should use the function timeout minus one second.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in request
// logs. Stripe-Signature carries an HMAC over the body and is never logged.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Stripe-Signature",
}

// MountRoutes registers the global middleware chain, the health check and
// every RouteRegistrar.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Get("/health", s.HandleHealth)

	for _, registrar := range s.RouteRegistrars {
		registrar(s.router)
	}
}

// registerGlobalMiddleware applies middleware in strict order.
//
//  1. Recoverer       - outermost, so every panic is caught.
//  2. ContextTimeout  - soft deadline before the Lambda hard timeout.
//  3. RequestID       - correlation ID for logs.
//  4. SecurityHeaders - present on every response, including errors.
//  5. RequestLogger   - structured access log with redacted headers.
//  6. Metrics         - request latency and count.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(s.MetricsMiddleware)
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

// ContextTimeoutMiddleware sets a deadline on the request context. Handlers
// observe the cancelled context; the response is up to them.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses an inbound X-Request-Id or generates a UUID, then
// stores it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
