package consolidation

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/worktrack/worktrack/internal/event_bus"
	"github.com/worktrack/worktrack/internal/test_utils"
	"github.com/worktrack/worktrack/internal/utils"
	"github.com/worktrack/worktrack/pkg/enhancement"
	"github.com/worktrack/worktrack/pkg/time_entry"
)

var pgContainer *postgres.PostgresContainer
var openDb func() *pgxpool.Pool

func TestMain(m *testing.M) {
	pgContainer, openDb = test_utils.TestWithDB()
	code := m.Run()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Errorf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (*pgxpool.Pool, Repository, test_utils.ReferenceData) {
	db := openDb()
	t.Cleanup(func() {
		db.Close()
		err := pgContainer.Restore(context.Background())
		require.NoError(t, err)
	})
	ref := test_utils.SeedReferenceData(t, ctx, db)
	return db, NewRepository(db), ref
}

func storeEntry(t *testing.T, db *pgxpool.Pool, enhancementId, workPhaseId int, contributed string) int {
	t.Helper()
	id, err := time_entry.NewRepository(db).Store(ctx, time_entry.TimeEntry{
		EnhancementId:    enhancementId,
		ResourceId:       7,
		WorkPhaseId:      workPhaseId,
		StartDate:        date(2024, 3, 4),
		EndDate:          date(2024, 3, 8),
		Hours:            hours(contributed),
		ContributedHours: hours(contributed),
		CreatedBy:        "seed",
		CreatedAt:        now,
		ModifiedBy:       "seed",
		ModifiedAt:       now,
	})
	require.NoError(t, err)
	return id
}

func draft(ref test_utils.ReferenceData, notes string) Consolidation {
	return Consolidation{
		EnhancementId: ref.EnhancementId,
		ServiceAreaId: ref.ServiceAreaId,
		StartDate:     date(2024, 3, 1),
		EndDate:       date(2024, 3, 31),
		BillableHours: hours("10"),
		Status:        Draft,
		Notes:         notes,
		CreatedBy:     "alice",
		CreatedAt:     now,
		ModifiedBy:    "alice",
		ModifiedAt:    now,
	}
}

func TestRepositoryImpl_CreateAndGet(t *testing.T) {
	t.Run("should store a batch with its sources and expand their time entries", func(t *testing.T) {
		// given
		db, repo, ref := setupTestRepository(t)
		entryId := storeEntry(t, db, ref.EnhancementId, ref.BuildPhaseId, "7.25")
		c := draft(ref, "")
		c.SourceHours = hours("5.5")

		// when
		var id int
		err := repo.WithTransaction(ctx, func(repo Repository) error {
			var err error
			id, err = repo.Create(ctx, c)
			if err != nil {
				return err
			}
			return repo.ReplaceSources(ctx, id, []SourceInput{{TimeEntryId: entryId, PulledHours: hours("5.5")}})
		})

		// then
		require.NoError(t, err)
		stored, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, Draft, stored.Status)
		assert.True(t, hours("5.5").Equal(stored.SourceHours))
		assert.True(t, date(2024, 3, 1).Equal(stored.StartDate))
		require.Len(t, stored.Sources, 1)
		source := stored.Sources[0]
		assert.Equal(t, entryId, source.TimeEntryId)
		assert.True(t, hours("5.5").Equal(source.PulledHours))
		assert.True(t, hours("7.25").Equal(source.TimeEntry.ContributedHours))
		assert.True(t, hours("1.75").Equal(source.TimeEntry.RemainingHours()))
	})

	t.Run("should return not found for unknown batch", func(t *testing.T) {
		_, repo, _ := setupTestRepository(t)
		_, err := repo.Get(ctx, 999)
		assert.ErrorIs(t, err, ErrConsolidationNotFound)
	})

	t.Run("should roll back when the transaction fails", func(t *testing.T) {
		// given
		_, repo, ref := setupTestRepository(t)
		failure := errors.New("boom")

		// when
		err := repo.WithTransaction(ctx, func(repo Repository) error {
			if _, err := repo.Create(ctx, draft(ref, "manual")); err != nil {
				return err
			}
			return failure
		})

		// then
		assert.ErrorIs(t, err, failure)
		all, err := repo.List(ctx, Filter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestRepositoryImpl_LockEntryBalances(t *testing.T) {
	t.Run("should sum pulls of other batches only", func(t *testing.T) {
		// given
		db, repo, ref := setupTestRepository(t)
		eligible := storeEntry(t, db, ref.EnhancementId, ref.BuildPhaseId, "10")
		estimate := storeEntry(t, db, ref.EnhancementId, ref.EstimatePhaseId, "4")
		first, err := repo.Create(ctx, draft(ref, ""))
		require.NoError(t, err)
		require.NoError(t, repo.ReplaceSources(ctx, first, []SourceInput{{TimeEntryId: eligible, PulledHours: hours("3")}}))
		second, err := repo.Create(ctx, draft(ref, ""))
		require.NoError(t, err)
		require.NoError(t, repo.ReplaceSources(ctx, second, []SourceInput{{TimeEntryId: eligible, PulledHours: hours("4.5")}}))

		// when
		var balances map[int]EntryBalance
		err = repo.WithTransaction(ctx, func(repo Repository) error {
			balances, err = repo.LockEntryBalances(ctx, second, []int{eligible, estimate, 999})
			return err
		})

		// then
		require.NoError(t, err)
		require.Len(t, balances, 2)
		assert.True(t, hours("3").Equal(balances[eligible].PulledElsewhere))
		assert.True(t, hours("10").Equal(balances[eligible].ContributedHours))
		assert.True(t, balances[eligible].ForConsolidation)
		assert.False(t, balances[estimate].ForConsolidation)
		assert.True(t, balances[estimate].PulledElsewhere.IsZero())
	})
}

func TestRepositoryImpl_Delete(t *testing.T) {
	t.Run("should cascade to sources and keep time entries", func(t *testing.T) {
		// given
		db, repo, ref := setupTestRepository(t)
		entryId := storeEntry(t, db, ref.EnhancementId, ref.BuildPhaseId, "8")
		id, err := repo.Create(ctx, draft(ref, ""))
		require.NoError(t, err)
		require.NoError(t, repo.ReplaceSources(ctx, id, []SourceInput{{TimeEntryId: entryId, PulledHours: hours("8")}}))

		// when
		deleted, err := repo.Delete(ctx, id)

		// then
		require.NoError(t, err)
		assert.True(t, deleted)
		count, err := repo.CountSources(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, count)
		entry, err := time_entry.NewRepository(db).Get(ctx, entryId)
		require.NoError(t, err)
		assert.True(t, entry.TotalPulledHours.IsZero())
	})

	t.Run("should refuse deleting a time entry that is pulled", func(t *testing.T) {
		// given
		db, repo, ref := setupTestRepository(t)
		entryId := storeEntry(t, db, ref.EnhancementId, ref.BuildPhaseId, "8")
		id, err := repo.Create(ctx, draft(ref, ""))
		require.NoError(t, err)
		require.NoError(t, repo.ReplaceSources(ctx, id, []SourceInput{{TimeEntryId: entryId, PulledHours: hours("1")}}))

		// when
		_, err = db.Exec(ctx, "DELETE FROM time_entry WHERE id = $1", entryId)

		// then
		assert.Error(t, err)
	})
}

func TestRepositoryImpl_Queries(t *testing.T) {
	t.Run("should list by status and overlapping window", func(t *testing.T) {
		// given
		_, repo, ref := setupTestRepository(t)
		march := draft(ref, "march")
		marchId, err := repo.Create(ctx, march)
		require.NoError(t, err)
		april := draft(ref, "april")
		april.StartDate, april.EndDate = date(2024, 4, 1), date(2024, 4, 30)
		april.Status = Finalized
		_, err = repo.Create(ctx, april)
		require.NoError(t, err)

		// when
		status := Draft
		drafts, err := repo.List(ctx, Filter{Status: &status})
		require.NoError(t, err)
		from, to := date(2024, 3, 20), date(2024, 4, 2)
		overlapping, err := repo.List(ctx, Filter{From: &from, To: &to})
		require.NoError(t, err)

		// then
		require.Len(t, drafts, 1)
		assert.Equal(t, marchId, drafts[0].Id)
		require.Len(t, overlapping, 2)
		assert.Equal(t, "april", overlapping[0].Notes)
	})

	t.Run("should report eligible entries and their remaining hours", func(t *testing.T) {
		// given
		db, repo, ref := setupTestRepository(t)
		eligible := storeEntry(t, db, ref.EnhancementId, ref.BuildPhaseId, "8")
		storeEntry(t, db, ref.EnhancementId, ref.EstimatePhaseId, "4")
		storeEntry(t, db, ref.OtherEnhancementId, ref.BuildPhaseId, "2")
		id, err := repo.Create(ctx, draft(ref, ""))
		require.NoError(t, err)
		require.NoError(t, repo.ReplaceSources(ctx, id, []SourceInput{{TimeEntryId: eligible, PulledHours: hours("8")}}))

		// when
		available, err := repo.GetAvailableEntries(ctx, ref.EnhancementId, date(2024, 3, 1), date(2024, 3, 31))
		require.NoError(t, err)
		area := ref.ServiceAreaId
		summaries, err := repo.GetEnhancementsWithEntries(ctx, &area, date(2024, 3, 1), date(2024, 3, 31))
		require.NoError(t, err)

		// then
		require.Len(t, available, 1)
		assert.Equal(t, eligible, available[0].TimeEntryId)
		assert.Equal(t, "Build", available[0].WorkPhaseName)
		assert.True(t, available[0].RemainingHours.IsZero())
		require.Len(t, summaries, 1)
		assert.Equal(t, ref.EnhancementId, summaries[0].EnhancementId)
		assert.Equal(t, "Card tokenization", summaries[0].EnhancementName)
		assert.Equal(t, 1, summaries[0].EntryCount)
	})
}

func TestServiceImpl_ConcurrentPullsOnPostgres(t *testing.T) {
	t.Run("should never over-pull a time entry", func(t *testing.T) {
		// given
		db, repo, ref := setupTestRepository(t)
		entryId := storeEntry(t, db, ref.EnhancementId, ref.BuildPhaseId, "40")
		service := NewService(repo, enhancement.NewRepository(db), event_bus.NewEventBus(), utils.SystemClock{})
		req := CreateFromSourcesRequest{
			EnhancementId: ref.EnhancementId,
			StartDate:     date(2024, 3, 1),
			EndDate:       date(2024, 3, 31),
			BillableHours: hours("5"),
			Sources:       []SourceInput{{TimeEntryId: entryId, PulledHours: hours("5")}},
		}

		// when
		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded, conserved := 0, 0
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := service.CreateFromSources(ctx, req)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					succeeded++
				} else if errors.Is(err, ErrConservationViolation) {
					conserved++
				}
			}()
		}
		wg.Wait()

		// then
		assert.Equal(t, 8, succeeded)
		assert.Equal(t, 4, conserved)
		entry, err := time_entry.NewRepository(db).Get(ctx, entryId)
		require.NoError(t, err)
		assert.True(t, hours("40").Equal(entry.TotalPulledHours))
	})
}

func TestServiceImpl_HoursPrecisionOnPostgres(t *testing.T) {
	newService := func(db *pgxpool.Pool, repo Repository) *ServiceImpl {
		return NewService(repo, enhancement.NewRepository(db), event_bus.NewEventBus(), utils.SystemClock{})
	}

	t.Run("should reject a sub-hundredth pull as invalid input", func(t *testing.T) {
		// given
		db, repo, ref := setupTestRepository(t)
		entryId := storeEntry(t, db, ref.EnhancementId, ref.BuildPhaseId, "8")
		req := CreateFromSourcesRequest{
			EnhancementId: ref.EnhancementId,
			StartDate:     date(2024, 3, 1),
			EndDate:       date(2024, 3, 31),
			BillableHours: hours("1"),
			Sources:       []SourceInput{{TimeEntryId: entryId, PulledHours: hours("0.004")}},
		}

		// when
		_, err := newService(db, repo).CreateFromSources(ctx, req)

		// then
		assert.ErrorIs(t, err, ErrValidation)
		all, err := repo.List(ctx, Filter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("should store source hours equal to the sum of stored pulls", func(t *testing.T) {
		// given
		db, repo, ref := setupTestRepository(t)
		first := storeEntry(t, db, ref.EnhancementId, ref.BuildPhaseId, "8")
		second := storeEntry(t, db, ref.EnhancementId, ref.BuildPhaseId, "8")
		req := CreateFromSourcesRequest{
			EnhancementId: ref.EnhancementId,
			StartDate:     date(2024, 3, 1),
			EndDate:       date(2024, 3, 31),
			BillableHours: hours("0.02"),
			Sources: []SourceInput{
				{TimeEntryId: first, PulledHours: hours("0.01")},
				{TimeEntryId: second, PulledHours: hours("0.01")},
			},
		}

		// when
		created, err := newService(db, repo).CreateFromSources(ctx, req)

		// then
		require.NoError(t, err)
		stored, err := repo.Get(ctx, created.Id)
		require.NoError(t, err)
		total := decimal.Zero
		for _, s := range stored.Sources {
			total = total.Add(s.PulledHours)
		}
		assert.True(t, hours("0.02").Equal(stored.SourceHours))
		assert.True(t, total.Equal(stored.SourceHours))
	})
}
