package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/centromex/shopping-buddy/internal/models"
)

type ctxKey string

const actorKey ctxKey = "actor"

const (
	headerEmail     = "X-User-Email"
	headerRole      = "X-User-Role"
	headerRequestID = "X-Request-Id"
)

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// requestLogging tags each request with an id, echoing a caller-supplied
// X-Request-Id, and logs it once it is served.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(headerRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(headerRequestID, requestID)

			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			logger.Info("http request",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration", time.Since(start),
			)
		})
	}
}

// identify resolves the caller from the identity headers set by the
// authenticating proxy in front of the API.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(r.Header.Get(headerEmail))
		role := models.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(headerRole))))
		if email == "" || role == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Error: ErrorPayload{Kind: "unauthenticated", Message: headerEmail + " and " + headerRole + " are required"},
			})
			return
		}

		actor, err := h.svc.ResolveActor(r.Context(), role, email)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(ctx context.Context) (models.Actor, bool) {
	a, ok := ctx.Value(actorKey).(models.Actor)
	return a, ok
}
