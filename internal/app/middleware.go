package app

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/joffchandler/Sentinel-flight-ops/internal/apperrors"
	"github.com/joffchandler/Sentinel-flight-ops/internal/auth"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
)

// AccessLog writes one line per request. Server errors log at error level,
// client errors at warn.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := zerolog.InfoLevel
		switch {
		case status >= 500:
			level = zerolog.ErrorLevel
		case status >= 400:
			level = zerolog.WarnLevel
		}

		ev := log.WithLevel(level).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", apperrors.GetRequestID(r.Context())).
			Str("remote_addr", r.RemoteAddr)
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			ev = ev.Str("route", rc.RoutePattern())
		}
		if p := principals.FromContext(r.Context()); p != nil {
			ev = ev.Str("principal_id", p.ID)
		}
		ev.Msg("request")
	})
}

// Recoverer turns a handler panic into a 500 envelope and logs the stack.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", apperrors.GetRequestID(r.Context())).
				Str("path", r.URL.Path).
				Msg("handler panicked")
			apperrors.WriteInternalError(w, r, "Internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// APIHeaders marks responses as JSON and forbids caching of them. The report
// stream overrides the content type after this runs.
func APIHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Type", "application/json")
		h.Set("Cache-Control", "no-store")
		h.Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

// CSRF rejects state-changing requests whose header token does not match the
// session's CSRF cookie.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := auth.ValidateCSRF(r); err != nil {
			log.Warn().
				Err(err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", apperrors.GetRequestID(r.Context())).
				Msg("csrf check failed")
			apperrors.WriteForbidden(w, r, "Invalid CSRF token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimit(perMinute int, key httprate.KeyFunc, message string) func(http.Handler) http.Handler {
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
			apperrors.WriteError(w, r, http.StatusTooManyRequests, apperrors.CodeTooManyRequests, message)
		}),
	)
}

// LoginRateLimit allows ten login attempts per client address per minute.
func LoginRateLimit() func(http.Handler) http.Handler {
	return rateLimit(10, httprate.KeyByIP, "Too many login attempts. Try again later.")
}

// EvaluationRateLimit bounds evaluations per principal, falling back to the
// client address. It must run after the principal is loaded.
func EvaluationRateLimit(perMinute int) func(http.Handler) http.Handler {
	return rateLimit(perMinute, byPrincipal, "Too many evaluations. Try again later.")
}

func byPrincipal(r *http.Request) (string, error) {
	if p := principals.FromContext(r.Context()); p != nil {
		return "principal:" + p.ID, nil
	}
	return httprate.KeyByIP(r)
}
