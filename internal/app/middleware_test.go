package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/worktrack/worktrack/internal/config"
	"github.com/worktrack/worktrack/pkg/user"
)

func setupRouter(seen *string, requestId *string) *mux.Router {
	r := mux.NewRouter()
	SetupMiddleware(r, config.Application{})
	handler := func(w http.ResponseWriter, req *http.Request) {
		if u, err := user.CurrentUser(req.Context()); err == nil {
			*seen = u.Uid
		}
		*requestId = RequestID(req.Context())
		w.WriteHeader(http.StatusNoContent)
	}
	r.HandleFunc("/api/things", handler).Methods("GET", "POST")
	return r
}

func TestSetupMiddleware(t *testing.T) {
	t.Run("should reject mutating request without actor", func(t *testing.T) {
		var seen, requestId string
		r := setupRouter(&seen, &requestId)
		rr := httptest.NewRecorder()

		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/things", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, seen)
	})

	t.Run("should allow reads without actor", func(t *testing.T) {
		var seen, requestId string
		r := setupRouter(&seen, &requestId)
		rr := httptest.NewRecorder()

		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/things", nil))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Empty(t, seen)
	})

	t.Run("should put actor into the request context", func(t *testing.T) {
		var seen, requestId string
		r := setupRouter(&seen, &requestId)
		req := httptest.NewRequest(http.MethodPost, "/api/things", nil)
		req.Header.Set("X-User-Id", "carol")
		rr := httptest.NewRecorder()

		r.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "carol", seen)
	})

	t.Run("should keep a valid request id", func(t *testing.T) {
		var seen, requestId string
		r := setupRouter(&seen, &requestId)
		incoming := uuid.New().String()
		req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
		req.Header.Set("X-Request-ID", incoming)
		rr := httptest.NewRecorder()

		r.ServeHTTP(rr, req)

		assert.Equal(t, incoming, rr.Header().Get("X-Request-ID"))
		assert.Equal(t, incoming, requestId)
	})

	t.Run("should replace a malformed request id", func(t *testing.T) {
		var seen, requestId string
		r := setupRouter(&seen, &requestId)
		req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
		req.Header.Set("X-Request-ID", "not-a-uuid")
		rr := httptest.NewRecorder()

		r.ServeHTTP(rr, req)

		generated := rr.Header().Get("X-Request-ID")
		assert.NotEqual(t, "not-a-uuid", generated)
		_, err := uuid.Parse(generated)
		assert.NoError(t, err)
		assert.Equal(t, generated, requestId)
	})
}
