package event_bus

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ConsolidationCreated       EventType = "consolidation.created"
	ConsolidationDeleted       EventType = "consolidation.deleted"
	ConsolidationStatusChanged EventType = "consolidation.status.changed"
)

// ConsolidationChange describes a committed change to a consolidation batch.
// Status values are the lower-case status names ("draft", "finalized", "invoiced").
type ConsolidationChange struct {
	Id            int
	EnhancementId int
	ServiceAreaId int
	PeriodStart   time.Time
	FromStatus    string
	ToStatus      string
	BillableHours decimal.Decimal
	SourceHours   decimal.Decimal
	// Manual is set for batches without time entry sources.
	Manual bool
	Actor  string
}
