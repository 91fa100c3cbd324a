package consolidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/worktrack/worktrack/pkg/time_entry"
)

// ValidateDateRange accepts a range only when it is ordered and lies within
// one calendar month.
func ValidateDateRange(start, end time.Time) error {
	if end.Before(start) {
		return NewValidationError("end date %s is before start date %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	if start.Year() != end.Year() || start.Month() != end.Month() {
		return NewValidationError("date range %s to %s spans more than one calendar month",
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return nil
}

type ValidationInput struct {
	EnhancementExists bool
	StartDate         time.Time
	EndDate           time.Time
	BillableHours     decimal.Decimal
	HasNotes          bool
	HasSources        bool
}

// ValidateConsolidation checks a consolidation about to be written. The
// service resolves the enhancement before calling it and reports a missing
// one as enhancement.ErrEnhancementNotFound.
func ValidateConsolidation(in ValidationInput) error {
	if err := ValidateDateRange(in.StartDate, in.EndDate); err != nil {
		return err
	}
	if !in.EnhancementExists {
		return NewValidationError("enhancement does not exist")
	}
	if in.BillableHours.IsNegative() {
		return NewValidationError("billable hours must not be negative")
	}
	if !time_entry.FitsHoursScale(in.BillableHours) {
		return NewValidationError("billable hours must not have more than %d decimal places", time_entry.HoursScale)
	}
	if !in.HasSources && !in.HasNotes {
		return NewValidationError("notes are required for a consolidation without time entry sources")
	}
	return nil
}

// ValidateFinalize checks the preconditions of the Draft -> Finalized transition.
func ValidateFinalize(c Consolidation, sourceCount int) error {
	if !c.BillableHours.IsPositive() {
		return NewValidationError("billable hours must be greater than zero to finalize")
	}
	if sourceCount == 0 && !HasNotes(c.Notes) {
		return NewValidationError("notes are required to finalize a consolidation without time entry sources")
	}
	return nil
}

func HasNotes(notes string) bool {
	return strings.TrimSpace(notes) != ""
}

// normalizeSources drops zero pulls, rejects negative or sub-hundredth ones
// and merges repeated entries into a single pull.
func normalizeSources(inputs []SourceInput) ([]SourceInput, error) {
	merged := make(map[int]int, len(inputs))
	var result []SourceInput
	for _, in := range inputs {
		if in.PulledHours.IsNegative() {
			return nil, NewValidationError("pulled hours for time entry %d must not be negative", in.TimeEntryId)
		}
		if !time_entry.FitsHoursScale(in.PulledHours) {
			return nil, NewValidationError("pulled hours for time entry %d must not have more than %d decimal places",
				in.TimeEntryId, time_entry.HoursScale)
		}
		if in.PulledHours.IsZero() {
			continue
		}
		if idx, ok := merged[in.TimeEntryId]; ok {
			result[idx].PulledHours = result[idx].PulledHours.Add(in.PulledHours)
			continue
		}
		merged[in.TimeEntryId] = len(result)
		result = append(result, in)
	}
	return result, nil
}

func sumPulled(sources []SourceInput) decimal.Decimal {
	total := decimal.Zero
	for _, s := range sources {
		total = total.Add(s.PulledHours)
	}
	return total
}

// checkAllocation verifies that each pull targets an eligible entry of the
// consolidation's enhancement and keeps the entry within its contributed hours.
func checkAllocation(enhancementId int, sources []SourceInput, balances map[int]EntryBalance) error {
	for _, s := range sources {
		balance, ok := balances[s.TimeEntryId]
		if !ok {
			return fmt.Errorf("source %w: %d", time_entry.ErrTimeEntryNotFound, s.TimeEntryId)
		}
		if balance.EnhancementId != enhancementId {
			return NewValidationError("time entry %d belongs to enhancement %d, not %d",
				s.TimeEntryId, balance.EnhancementId, enhancementId)
		}
		if !balance.ForConsolidation {
			return NewValidationError("time entry %d is in a work phase that is not eligible for consolidation", s.TimeEntryId)
		}
		if balance.PulledElsewhere.Add(s.PulledHours).GreaterThan(balance.ContributedHours) {
			return &ConservationError{
				TimeEntryId:     s.TimeEntryId,
				Contributed:     balance.ContributedHours,
				PulledElsewhere: balance.PulledElsewhere,
				Requested:       s.PulledHours,
			}
		}
	}
	return nil
}
