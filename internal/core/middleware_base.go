package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"bookingrelay/internal/types"
)

// statusWriter records the first status code and the number of body bytes a
// handler writes, for the access log and request metrics.
type statusWriter struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.code == 0 {
		sw.code = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.code == 0 {
		sw.code = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// status reports the written status, or 200 when the handler wrote nothing.
func (sw *statusWriter) status() int {
	if sw.code == 0 {
		return http.StatusOK
	}
	return sw.code
}

func (sw *statusWriter) wroteHeader() bool {
	return sw.code != 0
}

// Recoverer turns a handler panic into a logged stack trace and a 500. It
// must be the outermost middleware. When the handler already started the
// response, the panic is only logged.
func (s *Server) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}

		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			s.Logger.Error("panic recovered",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("panic", fmt.Sprintf("%v", rvr)),
				slog.String("stack", string(debug.Stack())),
			)

			if sw.wroteHeader() {
				return
			}

			// Recoverer runs outside RequestIDMiddleware, so the ID is only
			// visible on the response header.
			JSON(w, r, http.StatusInternalServerError, ErrorResponse{
				Error:     "an unexpected error occurred",
				Code:      string(types.ErrCodeInternalUnexpected),
				RequestID: w.Header().Get("X-Request-Id"),
			})
		}()

		next.ServeHTTP(sw, r)
	})
}

// RequestLogger writes one access log line per request. Values of the
// headers named in redactedHeaders (case-insensitive) are masked. 5xx logs at
// ERROR and 4xx at WARN, so rejected webhook signatures stand out.
func RequestLogger(logger *slog.Logger, redactedHeaders []string) func(http.Handler) http.Handler {
	redacted := lo.Map(redactedHeaders, func(h string, _ int) string {
		return strings.ToLower(h)
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status", sw.status()),
				slog.Int("bytes", sw.bytes),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if reqID := types.GetRequestID(r.Context()); reqID != "" {
				args = append(args, slog.String("request_id", reqID))
			}

			headers := lo.MapToSlice(r.Header, func(name string, values []string) any {
				if lo.Contains(redacted, strings.ToLower(name)) {
					return slog.String(name, "[REDACTED]")
				}
				return slog.String(name, strings.Join(values, ", "))
			})
			if len(headers) > 0 {
				args = append(args, slog.Group("headers", headers...))
			}

			level := slog.LevelInfo
			switch {
			case sw.status() >= 500:
				level = slog.LevelError
			case sw.status() >= 400:
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request completed", args...)
		})
	}
}

// MetricsMiddleware reports latency and count per route pattern. It is a
// pass-through when no collector is configured.
func (s *Server) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(sw, r)

		s.Metrics.RecordRequest(r.Method, routePattern(r), strconv.Itoa(sw.status()), time.Since(start))
	})
}

// routePattern returns the matched chi pattern so unmatched probes do not
// create a metric dimension per path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// SecurityHeadersMiddleware sets response headers on every response. Checkout
// URLs and webhook acknowledgements must never be cached by intermediaries.
func (s *Server) SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
