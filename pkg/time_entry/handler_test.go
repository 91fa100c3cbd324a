package time_entry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worktrack/worktrack/pkg/consolidation/status"
)

func setupHandler(t *testing.T) (*mux.Router, *ServiceImpl, *RepositoryStub) {
	service, repo := setupService(t)
	handler := NewHandler(service)
	r := mux.NewRouter()
	r.HandleFunc("/api/timeentry/{id:[0-9]+}", handler.Get).Methods("GET")
	r.HandleFunc("/api/timeentry/{id:[0-9]+}", handler.Delete).Methods("DELETE")
	return r, service, repo
}

func TestHandler_Get(t *testing.T) {
	t.Run("should render allocation status by name", func(t *testing.T) {
		// given
		r, service, repo := setupHandler(t)
		created, err := service.Create(ctx, newEntry(buildPhase, "8"))
		require.NoError(t, err)
		repo.SetAllocations(created.Id,
			Allocation{SourceId: 1, ConsolidationId: 3, ConsolidationStatus: status.Finalized, PulledHours: hours("2")},
			Allocation{SourceId: 2, ConsolidationId: 4, ConsolidationStatus: status.Invoiced, PulledHours: hours("1.5")},
		)
		rr := httptest.NewRecorder()

		// when
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/timeentry/"+strconv.Itoa(created.Id), nil))

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			RemainingHours string `json:"remainingHours"`
			Allocations    []struct {
				ConsolidationId     int    `json:"consolidationId"`
				ConsolidationStatus string `json:"consolidationStatus"`
			} `json:"allocations"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		require.Len(t, body.Allocations, 2)
		assert.Equal(t, "finalized", body.Allocations[0].ConsolidationStatus)
		assert.Equal(t, "invoiced", body.Allocations[1].ConsolidationStatus)
		assert.Equal(t, "2.5", body.RemainingHours)
	})

	t.Run("should return 404 for unknown entry", func(t *testing.T) {
		r, _, _ := setupHandler(t)
		rr := httptest.NewRecorder()

		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/timeentry/77", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestHandler_Delete(t *testing.T) {
	t.Run("should return 409 for a consolidated entry", func(t *testing.T) {
		r, service, repo := setupHandler(t)
		created, err := service.Create(ctx, newEntry(buildPhase, "8"))
		require.NoError(t, err)
		repo.SetAllocations(created.Id, Allocation{SourceId: 1, ConsolidationId: 3, ConsolidationStatus: status.Draft, PulledHours: hours("1")})
		rr := httptest.NewRecorder()

		r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/timeentry/"+strconv.Itoa(created.Id), nil))

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}
