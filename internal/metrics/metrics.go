package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"github.com/worktrack/worktrack/internal/event_bus"
)

// ─── Consolidation ──────────────────────────────────────────────────────────

var ConsolidationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "worktrack",
	Subsystem: "consolidation",
	Name:      "created_total",
	Help:      "Consolidation batches created, by kind (sourced or manual).",
}, []string{"kind"})

var ConsolidationsDeleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "worktrack",
	Subsystem: "consolidation",
	Name:      "deleted_total",
	Help:      "Draft consolidation batches deleted.",
})

var ConsolidationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "worktrack",
	Subsystem: "consolidation",
	Name:      "status_transitions_total",
	Help:      "Committed consolidation status transitions.",
}, []string{"from", "to"})

// ConsolidationBillableHours is observability only; the float conversion is
// never fed back into any stored quantity.
var ConsolidationBillableHours = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "worktrack",
	Subsystem: "consolidation",
	Name:      "billable_hours_total",
	Help:      "Billable hours moved into a status, summed per target status.",
}, []string{"status"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "worktrack",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route template, method and status code.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "method", "code"})

// Subscribe feeds the consolidation counters from the event bus.
func Subscribe(bus *event_bus.EventBus) {
	event_bus.SubscribeTyped[event_bus.ConsolidationChange](bus, event_bus.ConsolidationCreated,
		func(e event_bus.EventT[event_bus.ConsolidationChange]) error {
			ConsolidationsCreated.WithLabelValues(createdKind(e.Data)).Inc()
			return nil
		})
	event_bus.SubscribeTyped[event_bus.ConsolidationChange](bus, event_bus.ConsolidationDeleted,
		func(e event_bus.EventT[event_bus.ConsolidationChange]) error {
			ConsolidationsDeleted.Inc()
			return nil
		})
	event_bus.SubscribeTyped[event_bus.ConsolidationChange](bus, event_bus.ConsolidationStatusChanged,
		func(e event_bus.EventT[event_bus.ConsolidationChange]) error {
			log.Debugf("consolidation %d moved %s -> %s", e.Data.Id, e.Data.FromStatus, e.Data.ToStatus)
			ConsolidationTransitions.WithLabelValues(e.Data.FromStatus, e.Data.ToStatus).Inc()
			ConsolidationBillableHours.WithLabelValues(e.Data.ToStatus).Add(e.Data.BillableHours.InexactFloat64())
			return nil
		})
}

func createdKind(change event_bus.ConsolidationChange) string {
	if change.Manual {
		return "manual"
	}
	return "sourced"
}
