package consolidation

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worktrack/worktrack/pkg/time_entry"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func hours(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestValidateDateRange(t *testing.T) {
	t.Run("should accept a range within one month", func(t *testing.T) {
		assert.NoError(t, ValidateDateRange(date(2024, 3, 1), date(2024, 3, 31)))
	})

	t.Run("should accept a single day", func(t *testing.T) {
		assert.NoError(t, ValidateDateRange(date(2024, 3, 15), date(2024, 3, 15)))
	})

	t.Run("should reject end before start", func(t *testing.T) {
		err := ValidateDateRange(date(2024, 3, 10), date(2024, 3, 9))
		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "before start date")
	})

	t.Run("should reject a range crossing a month boundary", func(t *testing.T) {
		err := ValidateDateRange(date(2024, 1, 31), date(2024, 2, 1))
		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "more than one calendar month")
	})

	t.Run("should reject the same month of another year", func(t *testing.T) {
		err := ValidateDateRange(date(2023, 3, 1), date(2024, 3, 1))
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestValidateConsolidation(t *testing.T) {
	valid := ValidationInput{
		EnhancementExists: true,
		StartDate:         date(2024, 3, 1),
		EndDate:           date(2024, 3, 31),
		BillableHours:     hours("10"),
		HasSources:        true,
	}

	t.Run("should accept a sourced batch without notes", func(t *testing.T) {
		assert.NoError(t, ValidateConsolidation(valid))
	})

	t.Run("should accept zero billable hours", func(t *testing.T) {
		in := valid
		in.BillableHours = decimal.Zero
		assert.NoError(t, ValidateConsolidation(in))
	})

	t.Run("should reject negative billable hours", func(t *testing.T) {
		in := valid
		in.BillableHours = hours("-0.25")
		assert.ErrorIs(t, ValidateConsolidation(in), ErrValidation)
	})

	t.Run("should reject billable hours finer than hundredths", func(t *testing.T) {
		in := valid
		in.BillableHours = hours("10.125")
		assert.ErrorIs(t, ValidateConsolidation(in), ErrValidation)

		in.BillableHours = hours("10.120")
		assert.NoError(t, ValidateConsolidation(in))
	})

	t.Run("should require notes when there are no sources", func(t *testing.T) {
		in := valid
		in.HasSources = false
		err := ValidateConsolidation(in)
		assert.ErrorIs(t, err, ErrValidation)

		in.HasNotes = true
		assert.NoError(t, ValidateConsolidation(in))
	})

	t.Run("should reject a missing enhancement", func(t *testing.T) {
		in := valid
		in.EnhancementExists = false
		assert.ErrorIs(t, ValidateConsolidation(in), ErrValidation)
	})

	t.Run("should check the date range first", func(t *testing.T) {
		in := valid
		in.EndDate = date(2024, 4, 1)
		in.BillableHours = hours("-1")
		err := ValidateConsolidation(in)
		assert.Contains(t, err.Error(), "calendar month")
	})
}

func TestValidateFinalize(t *testing.T) {
	t.Run("should require positive billable hours", func(t *testing.T) {
		err := ValidateFinalize(Consolidation{BillableHours: decimal.Zero}, 1)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should require notes without sources", func(t *testing.T) {
		err := ValidateFinalize(Consolidation{BillableHours: hours("8"), Notes: "   "}, 0)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should accept a manual batch with notes", func(t *testing.T) {
		assert.NoError(t, ValidateFinalize(Consolidation{BillableHours: hours("8"), Notes: "fixed fee"}, 0))
	})

	t.Run("should accept a sourced batch without notes", func(t *testing.T) {
		assert.NoError(t, ValidateFinalize(Consolidation{BillableHours: hours("8")}, 2))
	})
}

func TestNormalizeSources(t *testing.T) {
	t.Run("should drop zero pulls and merge repeated entries", func(t *testing.T) {
		result, err := normalizeSources([]SourceInput{
			{TimeEntryId: 1, PulledHours: hours("2")},
			{TimeEntryId: 2, PulledHours: decimal.Zero},
			{TimeEntryId: 1, PulledHours: hours("1.5")},
			{TimeEntryId: 3, PulledHours: hours("4")},
		})

		require.NoError(t, err)
		require.Len(t, result, 2)
		assert.Equal(t, 1, result[0].TimeEntryId)
		assert.True(t, hours("3.5").Equal(result[0].PulledHours))
		assert.Equal(t, 3, result[1].TimeEntryId)
		assert.True(t, hours("7.5").Equal(sumPulled(result)))
	})

	t.Run("should reject negative pulls", func(t *testing.T) {
		_, err := normalizeSources([]SourceInput{{TimeEntryId: 1, PulledHours: hours("-1")}})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should reject pulls finer than hundredths", func(t *testing.T) {
		_, err := normalizeSources([]SourceInput{
			{TimeEntryId: 1, PulledHours: hours("0.005")},
			{TimeEntryId: 2, PulledHours: hours("0.005")},
		})
		assert.ErrorIs(t, err, ErrValidation)

		_, err = normalizeSources([]SourceInput{{TimeEntryId: 1, PulledHours: hours("0.004")}})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should accept trailing zeros beyond hundredths", func(t *testing.T) {
		result, err := normalizeSources([]SourceInput{{TimeEntryId: 1, PulledHours: hours("2.500")}})
		require.NoError(t, err)
		assert.True(t, hours("2.5").Equal(sumPulled(result)))
	})

	t.Run("should return nothing for only zero pulls", func(t *testing.T) {
		result, err := normalizeSources([]SourceInput{{TimeEntryId: 1, PulledHours: decimal.Zero}})
		require.NoError(t, err)
		assert.Empty(t, result)
	})
}

func TestCheckAllocation(t *testing.T) {
	balances := map[int]EntryBalance{
		1: {TimeEntryId: 1, EnhancementId: 7, ForConsolidation: true, ContributedHours: hours("8"), PulledElsewhere: hours("6")},
		2: {TimeEntryId: 2, EnhancementId: 8, ForConsolidation: true, ContributedHours: hours("8")},
		3: {TimeEntryId: 3, EnhancementId: 7, ForConsolidation: false, ContributedHours: hours("8")},
	}

	t.Run("should accept a pull up to the remaining hours", func(t *testing.T) {
		err := checkAllocation(7, []SourceInput{{TimeEntryId: 1, PulledHours: hours("2")}}, balances)
		assert.NoError(t, err)
	})

	t.Run("should reject a pull above the remaining hours", func(t *testing.T) {
		err := checkAllocation(7, []SourceInput{{TimeEntryId: 1, PulledHours: hours("2.01")}}, balances)

		var conservation *ConservationError
		require.True(t, errors.As(err, &conservation))
		assert.ErrorIs(t, err, ErrConservationViolation)
		assert.Equal(t, 1, conservation.TimeEntryId)
		assert.True(t, hours("6").Equal(conservation.PulledElsewhere))
	})

	t.Run("should reject an entry of another enhancement", func(t *testing.T) {
		err := checkAllocation(7, []SourceInput{{TimeEntryId: 2, PulledHours: hours("1")}}, balances)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should reject an entry in an ineligible work phase", func(t *testing.T) {
		err := checkAllocation(7, []SourceInput{{TimeEntryId: 3, PulledHours: hours("1")}}, balances)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should report a missing entry as not found", func(t *testing.T) {
		err := checkAllocation(7, []SourceInput{{TimeEntryId: 99, PulledHours: hours("1")}}, balances)
		assert.ErrorIs(t, err, time_entry.ErrTimeEntryNotFound)
	})
}

func TestStatus(t *testing.T) {
	t.Run("should allow exactly the lifecycle transitions", func(t *testing.T) {
		all := []Status{Draft, Finalized, Invoiced}
		allowed := map[[2]Status]bool{
			{Draft, Finalized}:    true,
			{Finalized, Draft}:    true,
			{Finalized, Invoiced}: true,
		}
		for _, from := range all {
			for _, to := range all {
				assert.Equal(t, allowed[[2]Status{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
			}
		}
	})

	t.Run("should parse status names case-insensitively", func(t *testing.T) {
		status, err := ParseStatus("Finalized")
		require.NoError(t, err)
		assert.Equal(t, Finalized, status)

		_, err = ParseStatus("paid")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should render unknown statuses", func(t *testing.T) {
		assert.False(t, Status(7).IsValid())
		assert.Equal(t, "status(7)", Status(7).String())
	})
}
