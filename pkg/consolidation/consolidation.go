package consolidation

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/worktrack/worktrack/pkg/consolidation/status"
	"github.com/worktrack/worktrack/pkg/time_entry"
)

type Status = status.Status

const (
	Draft     = status.Draft
	Finalized = status.Finalized
	Invoiced  = status.Invoiced
)

func ParseStatus(value string) (Status, error) {
	if s, ok := status.Parse(value); ok {
		return s, nil
	}
	return 0, NewValidationError("unknown status %q", value)
}

// Consolidation is one billing batch for one enhancement and calendar month.
type Consolidation struct {
	Id               int
	EnhancementId    int
	ServiceAreaId    int
	StartDate        time.Time
	EndDate          time.Time
	BillableHours    decimal.Decimal
	SourceHours      decimal.Decimal
	Status           Status
	Notes            string
	InvoiceReference string
	CreatedBy        string
	CreatedAt        time.Time
	ModifiedBy       string
	ModifiedAt       time.Time
	// Sources is filled by Get only.
	Sources []Source
}

func (c Consolidation) IsManual() bool {
	return c.SourceHours.IsZero()
}

// Source pulls PulledHours of one time entry into one consolidation.
// TimeEntry is a snapshot taken when the consolidation was read.
type Source struct {
	Id              int
	ConsolidationId int
	TimeEntryId     int
	PulledHours     decimal.Decimal
	TimeEntry       time_entry.TimeEntry
}

type SourceInput struct {
	TimeEntryId int
	PulledHours decimal.Decimal
}

type CreateFromSourcesRequest struct {
	EnhancementId int
	StartDate     time.Time
	EndDate       time.Time
	Sources       []SourceInput
	BillableHours decimal.Decimal
	Notes         string
}

type CreateManualRequest struct {
	EnhancementId int
	StartDate     time.Time
	EndDate       time.Time
	BillableHours decimal.Decimal
	Notes         string
}

// UpdateRequest edits a draft consolidation. A nil Sources leaves the
// source set untouched; a non-nil one replaces it entirely. A nil Notes
// leaves the notes untouched.
type UpdateRequest struct {
	Sources       *[]SourceInput
	BillableHours decimal.Decimal
	Notes         *string
}

type StatusChange struct {
	Status           Status
	InvoiceReference string
}

// Filter selects consolidations; nil fields do not filter. The date window
// matches batches whose period overlaps [From, To].
type Filter struct {
	ServiceAreaId *int
	EnhancementId *int
	From          *time.Time
	To            *time.Time
	Status        *Status
}

// TimeEntryAvailability is a time entry as a pull candidate.
type TimeEntryAvailability struct {
	TimeEntryId      int
	ResourceId       int
	WorkPhaseId      int
	WorkPhaseName    string
	StartDate        time.Time
	EndDate          time.Time
	Hours            decimal.Decimal
	ContributedHours decimal.Decimal
	TotalPulledHours decimal.Decimal
	RemainingHours   decimal.Decimal
	Notes            string
}

type EnhancementEntrySummary struct {
	EnhancementId         int
	EnhancementName       string
	ServiceAreaId         int
	EntryCount            int
	TotalHours            decimal.Decimal
	TotalContributedHours decimal.Decimal
}

// EntryBalance is the locked allocation state of one time entry, used to
// re-check conservation inside the writing transaction.
type EntryBalance struct {
	TimeEntryId      int
	EnhancementId    int
	ForConsolidation bool
	ContributedHours decimal.Decimal
	// PulledElsewhere sums sources in consolidations other than the one being written.
	PulledElsewhere decimal.Decimal
}
