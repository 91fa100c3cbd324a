package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/worktrack/worktrack/internal/config"
	"github.com/worktrack/worktrack/internal/event_bus"
	"github.com/worktrack/worktrack/internal/metrics"
	"github.com/worktrack/worktrack/internal/utils"
	"github.com/worktrack/worktrack/pkg/consolidation"
	"github.com/worktrack/worktrack/pkg/consolidation_summary"
	"github.com/worktrack/worktrack/pkg/enhancement"
	"github.com/worktrack/worktrack/pkg/time_entry"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	EventBus       *event_bus.EventBus
	Reference      enhancement.Reader
	ReferenceCache *enhancement.CachedReader

	TimeEntryRepo    time_entry.Repository
	TimeEntryService *time_entry.ServiceImpl
	TimeEntryHandler *time_entry.Handler

	ConsolidationRepo    consolidation.Repository
	ConsolidationService *consolidation.ServiceImpl
	ConsolidationHandler *consolidation.Handler

	SummaryService *consolidation_summary.Service
	SummaryHandler *consolidation_summary.Handler

	Clock utils.Clock
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(ctx context.Context, db *pgxpool.Pool, cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}

	deps.Clock = &utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()
	if cfg.Metrics.Enabled {
		metrics.Subscribe(deps.EventBus)
	}

	deps.Reference = enhancement.NewRepository(db)
	if cfg.Cache.Enabled {
		cache, err := enhancement.NewCachedReader(ctx, deps.Reference, cfg.Cache.TTL)
		if err != nil {
			return nil, err
		}
		log.Infof("Reference data cache enabled (ttl %s)", cfg.Cache.TTL)
		deps.ReferenceCache = cache
		deps.Reference = cache
	}

	deps.TimeEntryRepo = time_entry.NewRepository(db)
	deps.TimeEntryService = time_entry.NewService(deps.TimeEntryRepo, deps.Reference, deps.Clock)
	deps.TimeEntryHandler = time_entry.NewHandler(deps.TimeEntryService)

	deps.ConsolidationRepo = consolidation.NewRepository(db)
	deps.ConsolidationService = consolidation.NewService(deps.ConsolidationRepo, deps.Reference, deps.EventBus, deps.Clock)
	deps.ConsolidationHandler = consolidation.NewHandler(deps.ConsolidationService)

	deps.SummaryService = consolidation_summary.NewService(deps.ConsolidationService, deps.Reference)
	deps.SummaryHandler = consolidation_summary.NewHandler(deps.SummaryService)

	return deps, nil
}
