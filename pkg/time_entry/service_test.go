package time_entry

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worktrack/worktrack/internal/utils"
	"github.com/worktrack/worktrack/pkg/consolidation/status"
	"github.com/worktrack/worktrack/pkg/enhancement"
	"github.com/worktrack/worktrack/pkg/user"
)

const (
	paymentsArea = 1
	tokenization = 10
	buildPhase   = 100
	reviewPhase  = 200
	legacyPhase  = 300
)

var ctx = user.WithUser(context.Background(), user.User{Uid: "bob", DisplayName: "Bob"})
var now = time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)

func hours(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func setupService(t *testing.T) (*ServiceImpl, *RepositoryStub) {
	t.Helper()
	repo := NewRepositoryStub()
	reference := enhancement.NewReaderStub()
	reference.AddServiceArea(enhancement.ServiceArea{Id: paymentsArea, Name: "Payments", Active: true})
	reference.AddEnhancement(enhancement.Enhancement{Id: tokenization, ServiceAreaId: paymentsArea, Name: "Card tokenization"})
	reference.AddWorkPhase(enhancement.WorkPhase{Id: buildPhase, Name: "Build", ContributionPercent: hours("75"),
		ForTimeRecording: true, ForConsolidation: true})
	reference.AddWorkPhase(enhancement.WorkPhase{Id: reviewPhase, Name: "Review", ContributionPercent: hours("100"),
		ForTimeRecording: true, ForConsolidation: true})
	reference.AddWorkPhase(enhancement.WorkPhase{Id: legacyPhase, Name: "Legacy", ContributionPercent: hours("100")})
	repo.SetServiceArea(tokenization, paymentsArea)
	clock := &utils.MockClock{}
	clock.SetNow(now)
	return NewService(repo, reference, clock), repo
}

func newEntry(phase int, reported string) NewTimeEntry {
	return NewTimeEntry{
		EnhancementId: tokenization,
		ResourceId:    7,
		WorkPhaseId:   phase,
		StartDate:     date(2024, 3, 4),
		EndDate:       date(2024, 3, 8),
		Hours:         hours(reported),
	}
}

func TestServiceImpl_Create(t *testing.T) {
	t.Run("should derive contributed hours from the work phase", func(t *testing.T) {
		// given
		service, _ := setupService(t)

		// when
		entry, err := service.Create(ctx, newEntry(buildPhase, "7.5"))

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, entry.Id)
		assert.True(t, hours("5.63").Equal(entry.ContributedHours), entry.ContributedHours.String())
		assert.Equal(t, "bob", entry.CreatedBy)
		assert.Equal(t, now, entry.CreatedAt)
	})

	t.Run("should keep explicit contributed hours", func(t *testing.T) {
		service, _ := setupService(t)
		input := newEntry(buildPhase, "8")
		contributed := hours("2")
		input.ContributedHours = &contributed

		entry, err := service.Create(ctx, input)

		require.NoError(t, err)
		assert.True(t, contributed.Equal(entry.ContributedHours))
	})

	t.Run("should reject contributed hours above reported hours", func(t *testing.T) {
		service, _ := setupService(t)
		input := newEntry(buildPhase, "4")
		contributed := hours("4.5")
		input.ContributedHours = &contributed

		_, err := service.Create(ctx, input)

		assert.ErrorIs(t, err, ErrInvalidTimeEntry)
	})

	t.Run("should reject hours finer than hundredths", func(t *testing.T) {
		service, repo := setupService(t)
		input := newEntry(buildPhase, "4")
		contributed := hours("2.005")
		input.ContributedHours = &contributed

		_, finerContributed := service.Create(ctx, input)
		_, finerReported := service.Create(ctx, newEntry(buildPhase, "7.333"))

		assert.ErrorIs(t, finerContributed, ErrInvalidTimeEntry)
		assert.ErrorIs(t, finerReported, ErrInvalidTimeEntry)
		entries, err := repo.List(ctx, Filter{})
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("should reject phase closed for time recording", func(t *testing.T) {
		service, _ := setupService(t)
		_, err := service.Create(ctx, newEntry(legacyPhase, "4"))
		assert.ErrorIs(t, err, ErrInvalidTimeEntry)
	})

	t.Run("should reject unknown enhancement", func(t *testing.T) {
		service, _ := setupService(t)
		input := newEntry(buildPhase, "4")
		input.EnhancementId = 99

		_, err := service.Create(ctx, input)

		assert.ErrorIs(t, err, enhancement.ErrEnhancementNotFound)
	})

	t.Run("should reject end date before start date", func(t *testing.T) {
		service, _ := setupService(t)
		input := newEntry(buildPhase, "4")
		input.EndDate = date(2024, 3, 1)

		_, err := service.Create(ctx, input)

		assert.ErrorIs(t, err, ErrInvalidTimeEntry)
	})

	t.Run("should require an acting user", func(t *testing.T) {
		service, _ := setupService(t)
		_, err := service.Create(context.Background(), newEntry(buildPhase, "4"))
		assert.ErrorIs(t, err, user.ErrNoUser)
	})
}

func TestServiceImpl_Update(t *testing.T) {
	update := TimeEntryUpdate{
		WorkPhaseId:      reviewPhase,
		StartDate:        date(2024, 3, 4),
		EndDate:          date(2024, 3, 6),
		Hours:            hours("6"),
		ContributedHours: hours("6"),
		Notes:            "peer review",
	}

	t.Run("should replace all fields of an unconsolidated entry", func(t *testing.T) {
		// given
		service, repo := setupService(t)
		created, err := service.Create(ctx, newEntry(buildPhase, "8"))
		require.NoError(t, err)

		// when
		updated, err := service.Update(ctx, created.Id, update)

		// then
		require.NoError(t, err)
		assert.Equal(t, reviewPhase, updated.WorkPhaseId)
		stored, err := repo.Get(ctx, created.Id)
		require.NoError(t, err)
		assert.True(t, hours("6").Equal(stored.ContributedHours))
		assert.Equal(t, "peer review", stored.Notes)
	})

	t.Run("should only allow notes once hours are consolidated", func(t *testing.T) {
		// given
		service, repo := setupService(t)
		created, err := service.Create(ctx, newEntry(buildPhase, "8"))
		require.NoError(t, err)
		repo.SetAllocations(created.Id, Allocation{SourceId: 1, ConsolidationId: 1, ConsolidationStatus: status.Draft, PulledHours: hours("2")})

		// when
		_, rejected := service.Update(ctx, created.Id, update)
		notesOnly := TimeEntryUpdate{
			WorkPhaseId:      created.WorkPhaseId,
			StartDate:        created.StartDate,
			EndDate:          created.EndDate,
			Hours:            created.Hours,
			ContributedHours: created.ContributedHours,
			Notes:            "moved to sprint 12",
		}
		updated, err := service.Update(ctx, created.Id, notesOnly)

		// then
		assert.ErrorIs(t, rejected, ErrTimeEntryConsolidated)
		require.NoError(t, err)
		assert.Equal(t, "moved to sprint 12", updated.Notes)
	})

	t.Run("should return not found for unknown entry", func(t *testing.T) {
		service, _ := setupService(t)
		_, err := service.Update(ctx, 42, update)
		assert.ErrorIs(t, err, ErrTimeEntryNotFound)
	})
}

func TestServiceImpl_Delete(t *testing.T) {
	t.Run("should delete an unconsolidated entry", func(t *testing.T) {
		service, repo := setupService(t)
		created, err := service.Create(ctx, newEntry(buildPhase, "8"))
		require.NoError(t, err)

		err = service.Delete(ctx, created.Id)

		require.NoError(t, err)
		_, err = repo.Get(ctx, created.Id)
		assert.ErrorIs(t, err, ErrTimeEntryNotFound)
	})

	t.Run("should refuse to delete a consolidated entry", func(t *testing.T) {
		service, repo := setupService(t)
		created, err := service.Create(ctx, newEntry(buildPhase, "8"))
		require.NoError(t, err)
		repo.SetAllocations(created.Id, Allocation{SourceId: 1, ConsolidationId: 1, ConsolidationStatus: status.Draft, PulledHours: hours("1")})

		err = service.Delete(ctx, created.Id)

		assert.ErrorIs(t, err, ErrTimeEntryConsolidated)
		_, err = repo.Get(ctx, created.Id)
		assert.NoError(t, err)
	})
}

func TestServiceImpl_Find(t *testing.T) {
	t.Run("should filter by resource and overlapping window", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		march, err := service.Create(ctx, newEntry(buildPhase, "8"))
		require.NoError(t, err)
		april := newEntry(buildPhase, "4")
		april.StartDate, april.EndDate = date(2024, 4, 1), date(2024, 4, 5)
		_, err = service.Create(ctx, april)
		require.NoError(t, err)
		other := newEntry(buildPhase, "2")
		other.ResourceId = 8
		_, err = service.Create(ctx, other)
		require.NoError(t, err)

		// when
		from, to := date(2024, 3, 1), date(2024, 3, 31)
		entries, err := service.ListByResource(ctx, 7, &from, &to)

		// then
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, march.Id, entries[0].Id)
	})

	t.Run("should reject inverted window", func(t *testing.T) {
		service, _ := setupService(t)
		from, to := date(2024, 3, 31), date(2024, 3, 1)
		_, err := service.Find(ctx, Filter{From: &from, To: &to})
		assert.ErrorIs(t, err, ErrInvalidTimeEntry)
	})

	t.Run("should reject unknown service area", func(t *testing.T) {
		service, _ := setupService(t)
		area := 5
		_, err := service.Find(ctx, Filter{ServiceAreaId: &area})
		assert.ErrorIs(t, err, enhancement.ErrServiceAreaNotFound)
	})

	t.Run("should list entries of an enhancement", func(t *testing.T) {
		service, _ := setupService(t)
		_, err := service.Create(ctx, newEntry(buildPhase, "8"))
		require.NoError(t, err)

		entries, err := service.ListByEnhancement(ctx, tokenization)

		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}
