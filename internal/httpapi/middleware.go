package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portaria/server/internal/auth"
	"github.com/BrandonDHaskell/Portaria/server/internal/logging"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// loggingMiddleware attaches a request-scoped logger to the context and
// logs one line per request once the handler returns.
func loggingMiddleware(base *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := base.With(
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		if rid := r.Header.Get("X-Request-ID"); rid != "" {
			l = l.With("request_id", rid)
			w.Header().Set("X-Request-ID", rid)
		}
		r = r.WithContext(logging.IntoContext(r.Context(), l))

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)
		dur := time.Since(start)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		switch {
		case status >= 500:
			l.Error("request completed", "status", status, "duration_ms", dur.Milliseconds())
		case status >= 400:
			l.Warn("request completed", "status", status, "duration_ms", dur.Milliseconds())
		default:
			l.Info("request completed", "status", status, "duration_ms", dur.Milliseconds(), "bytes", rec.bytes)
		}
	})
}

// requireSession rejects requests without a valid bearer token and, when
// roles is non-empty, requests whose session role is not listed.
func (s *Server) requireSession(next http.HandlerFunc, roles ...types.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}
		sess, err := s.sessions.Parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid or expired session")
			return
		}
		if len(roles) > 0 && !sess.HasRole(roles...) {
			writeError(w, http.StatusForbidden, "forbidden", "role not allowed")
			return
		}

		ctx := auth.IntoContext(r.Context(), sess)
		ctx = logging.IntoContext(ctx, logging.FromContext(ctx).With("user_id", sess.UserID))
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
