package app

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/worktrack/worktrack/internal/config"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Consolidation
	r.HandleFunc("/api/consolidation", deps.ConsolidationHandler.List).Methods("GET")
	r.HandleFunc("/api/consolidation", deps.ConsolidationHandler.CreateFromSources).Methods("POST")
	r.HandleFunc("/api/consolidation/manual", deps.ConsolidationHandler.CreateManual).Methods("POST")
	r.HandleFunc("/api/consolidation/available-entries", deps.ConsolidationHandler.GetAvailableEntries).Methods("GET")
	r.HandleFunc("/api/consolidation/enhancements", deps.ConsolidationHandler.GetEnhancementsWithEntries).Methods("GET")
	r.HandleFunc("/api/consolidation/{id:[0-9]+}", deps.ConsolidationHandler.Get).Methods("GET")
	r.HandleFunc("/api/consolidation/{id:[0-9]+}", deps.ConsolidationHandler.Update).Methods("PUT")
	r.HandleFunc("/api/consolidation/{id:[0-9]+}", deps.ConsolidationHandler.Delete).Methods("DELETE")
	r.HandleFunc("/api/consolidation/{id:[0-9]+}/status", deps.ConsolidationHandler.ChangeStatus).Methods("PATCH")

	// Consolidation summaries
	r.HandleFunc("/api/consolidation/summary/enhancement", deps.SummaryHandler.SummaryByEnhancement).Methods("GET")
	r.HandleFunc("/api/consolidation/summary/servicearea", deps.SummaryHandler.SummaryByServiceArea).Methods("GET")

	// Time entries
	r.HandleFunc("/api/timeentry", deps.TimeEntryHandler.Find).Methods("GET")
	r.HandleFunc("/api/timeentry", deps.TimeEntryHandler.Create).Methods("POST")
	r.HandleFunc("/api/timeentry/{id:[0-9]+}", deps.TimeEntryHandler.Get).Methods("GET")
	r.HandleFunc("/api/timeentry/{id:[0-9]+}", deps.TimeEntryHandler.Update).Methods("PUT")
	r.HandleFunc("/api/timeentry/{id:[0-9]+}", deps.TimeEntryHandler.Delete).Methods("DELETE")

	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}
}
