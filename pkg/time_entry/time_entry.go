package time_entry

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/worktrack/worktrack/pkg/consolidation/status"
)

// TimeEntry is one resource's reported effort on one enhancement, for one
// work phase, over an inclusive date range.
type TimeEntry struct {
	Id               int
	EnhancementId    int
	ResourceId       int
	WorkPhaseId      int
	StartDate        time.Time
	EndDate          time.Time
	Hours            decimal.Decimal
	ContributedHours decimal.Decimal
	Notes            string
	ChargeCode       string
	// TotalPulledHours is aggregated from consolidation_source on every read.
	TotalPulledHours decimal.Decimal
	CreatedBy        string
	CreatedAt        time.Time
	ModifiedBy       string
	ModifiedAt       time.Time
	// Allocations is only filled by Get.
	Allocations []Allocation
}

// HoursScale is the number of decimal places every hour quantity is stored with.
const HoursScale = 2

// FitsHoursScale reports whether h can be stored without rounding.
func FitsHoursScale(h decimal.Decimal) bool {
	return h.Equal(h.Round(HoursScale))
}

// RemainingHours is the part of ContributedHours not yet pulled into any consolidation.
func (e TimeEntry) RemainingHours() decimal.Decimal {
	return e.ContributedHours.Sub(e.TotalPulledHours)
}

func (e TimeEntry) IsConsolidated() bool {
	return e.TotalPulledHours.IsPositive()
}

// Allocation is a consolidation source seen from the time entry side.
type Allocation struct {
	SourceId            int
	ConsolidationId     int
	ConsolidationStatus status.Status
	PulledHours         decimal.Decimal
}

// Filter selects time entries. Nil fields do not filter. The date window
// matches entries overlapping [From, To].
type Filter struct {
	ServiceAreaId *int
	EnhancementId *int
	ResourceId    *int
	From          *time.Time
	To            *time.Time
}

// NewTimeEntry is the input for recording an entry. When ContributedHours is
// nil it is derived from the work phase contribution percentage.
type NewTimeEntry struct {
	EnhancementId    int
	ResourceId       int
	WorkPhaseId      int
	StartDate        time.Time
	EndDate          time.Time
	Hours            decimal.Decimal
	ContributedHours *decimal.Decimal
	Notes            string
	ChargeCode       string
}

// TimeEntryUpdate replaces the mutable fields of an entry. Once hours of the
// entry have been pulled into a consolidation only Notes may differ.
type TimeEntryUpdate struct {
	WorkPhaseId      int
	StartDate        time.Time
	EndDate          time.Time
	Hours            decimal.Decimal
	ContributedHours decimal.Decimal
	Notes            string
	ChargeCode       string
}
