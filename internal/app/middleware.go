package app

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/worktrack/worktrack/internal/config"
	"github.com/worktrack/worktrack/internal/metrics"
	"github.com/worktrack/worktrack/internal/rest"
	"github.com/worktrack/worktrack/pkg/user"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-Id"
)

type requestIDKey struct{}

// RequestID returns the request id assigned by the middleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, cfg config.Application) {

	// Request ID: keep a valid incoming UUID, otherwise assign one
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			requestID := req.Header.Get(headerRequestID)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.New().String()
			}
			w.Header().Set(headerRequestID, requestID)
			ctx := context.WithValue(req.Context(), requestIDKey{}, requestID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})

	// Access log and latency histogram, labelled by route template
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, req)
			elapsed := time.Since(start)

			route := req.URL.Path
			if current := mux.CurrentRoute(req); current != nil {
				if template, err := current.GetPathTemplate(); err == nil {
					route = template
				}
			}
			if cfg.Metrics.Enabled {
				metrics.HTTPRequestDuration.
					WithLabelValues(route, req.Method, strconv.Itoa(recorder.status)).
					Observe(elapsed.Seconds())
			}
			log.WithFields(log.Fields{
				"request_id": RequestID(req.Context()),
				"method":     req.Method,
				"route":      route,
				"status":     recorder.status,
				"duration":   elapsed.String(),
			}).Debug("request handled")
		})
	})

	// Propagate X-User-Id header into context for downstream services.
	// Identity is verified upstream; the id is only stamped on audit fields.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			uid := req.Header.Get(headerUserID)
			if uid == "" {
				if isMutating(req.Method) {
					log.Debugf("rejected %s %s without %s", req.Method, req.URL.Path, headerUserID)
					rest.WriteError(w, http.StatusUnauthorized, "Missing actor", headerUserID+" header is required")
					return
				}
				next.ServeHTTP(w, req)
				return
			}
			ctx := user.WithUser(req.Context(), user.User{Uid: uid})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
