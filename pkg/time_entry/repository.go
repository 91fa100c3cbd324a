package time_entry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/worktrack/worktrack/internal/database"
	"github.com/worktrack/worktrack/pkg/consolidation/status"
)

var ErrTimeEntryNotFound = errors.New("time entry not found")

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	List(ctx context.Context, filter Filter) ([]TimeEntry, error)
	// Get returns the entry with its allocations.
	Get(ctx context.Context, id int) (TimeEntry, error)
	// GetForUpdate locks the entry row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int) (TimeEntry, error)
	Store(ctx context.Context, entry TimeEntry) (int, error)
	Update(ctx context.Context, entry TimeEntry) error
	Delete(ctx context.Context, id int) (bool, error)
}

type repositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) getQueryer() database.Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *repositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	if err := fn(&repositoryImpl{db: r.db, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const selectEntries = `SELECT
    			te.id,
    			te.enhancement_id,
    			te.resource_id,
    			te.work_phase_id,
    			te.start_date,
    			te.end_date,
    			te.hours,
    			te.contributed_hours,
    			te.notes,
    			te.charge_code,
    			COALESCE(pulled.total, 0),
    			te.created_by,
    			te.created_at,
    			te.modified_by,
    			te.modified_at
			  FROM time_entry te
			  JOIN enhancement e ON e.id = te.enhancement_id
			  LEFT JOIN (
			      SELECT cs.time_entry_id, SUM(cs.pulled_hours) AS total
			      FROM consolidation_source cs
			      GROUP BY cs.time_entry_id
			  ) pulled ON pulled.time_entry_id = te.id`

func scanEntry(row pgx.Row) (TimeEntry, error) {
	var e TimeEntry
	err := row.Scan(
		&e.Id,
		&e.EnhancementId,
		&e.ResourceId,
		&e.WorkPhaseId,
		&e.StartDate,
		&e.EndDate,
		&e.Hours,
		&e.ContributedHours,
		&e.Notes,
		&e.ChargeCode,
		&e.TotalPulledHours,
		&e.CreatedBy,
		&e.CreatedAt,
		&e.ModifiedBy,
		&e.ModifiedAt,
	)
	return e, err
}

func (r *repositoryImpl) List(ctx context.Context, filter Filter) ([]TimeEntry, error) {
	var conditions []string
	var args []any
	where := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}
	if filter.ServiceAreaId != nil {
		where("e.service_area_id = $%d", *filter.ServiceAreaId)
	}
	if filter.EnhancementId != nil {
		where("te.enhancement_id = $%d", *filter.EnhancementId)
	}
	if filter.ResourceId != nil {
		where("te.resource_id = $%d", *filter.ResourceId)
	}
	if filter.From != nil {
		where("te.end_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		where("te.start_date <= $%d", *filter.To)
	}

	query := selectEntries
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY te.start_date DESC, te.id DESC"

	rows, err := r.getQueryer().Query(ctx, query, args...)
	if err != nil {
		err := fmt.Errorf("could not query time entries: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var entries []TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return entries, nil
}

func (r *repositoryImpl) getEntry(ctx context.Context, id int) (TimeEntry, error) {
	entry, err := scanEntry(r.getQueryer().QueryRow(ctx, selectEntries+" WHERE te.id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TimeEntry{}, ErrTimeEntryNotFound
		}
		err := fmt.Errorf("could not get time entry %d: %w", id, err)
		log.Error(err)
		return TimeEntry{}, err
	}
	return entry, nil
}

func (r *repositoryImpl) Get(ctx context.Context, id int) (TimeEntry, error) {
	entry, err := r.getEntry(ctx, id)
	if err != nil {
		return TimeEntry{}, err
	}

	query := `SELECT cs.id, cs.consolidation_id, c.status, cs.pulled_hours
			  FROM consolidation_source cs
			  JOIN consolidation c ON c.id = cs.consolidation_id
			  WHERE cs.time_entry_id = $1
			  ORDER BY cs.id`
	rows, err := r.getQueryer().Query(ctx, query, id)
	if err != nil {
		err := fmt.Errorf("could not query allocations of time entry %d: %w", id, err)
		log.Error(err)
		return TimeEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var a Allocation
		var consolidationStatus int
		if err := rows.Scan(&a.SourceId, &a.ConsolidationId, &consolidationStatus, &a.PulledHours); err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return TimeEntry{}, err
		}
		a.ConsolidationStatus = status.Status(consolidationStatus)
		entry.Allocations = append(entry.Allocations, a)
	}
	if err := rows.Err(); err != nil {
		return TimeEntry{}, fmt.Errorf("error iterating over rows: %w", err)
	}
	return entry, nil
}

func (r *repositoryImpl) GetForUpdate(ctx context.Context, id int) (TimeEntry, error) {
	var lockedId int
	err := r.getQueryer().QueryRow(ctx, `SELECT id FROM time_entry WHERE id = $1 FOR UPDATE`, id).Scan(&lockedId)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TimeEntry{}, ErrTimeEntryNotFound
		}
		err := fmt.Errorf("could not lock time entry %d: %w", id, err)
		log.Error(err)
		return TimeEntry{}, err
	}
	return r.getEntry(ctx, id)
}

func (r *repositoryImpl) Store(ctx context.Context, entry TimeEntry) (int, error) {
	query := `INSERT INTO time_entry (
                    enhancement_id,
                    resource_id,
                    work_phase_id,
                    start_date,
                    end_date,
                    hours,
                    contributed_hours,
                    notes,
                    charge_code,
                    created_by,
                    created_at,
                    modified_by,
                    modified_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`

	var id int
	err := r.getQueryer().QueryRow(ctx, query,
		entry.EnhancementId,
		entry.ResourceId,
		entry.WorkPhaseId,
		entry.StartDate,
		entry.EndDate,
		entry.Hours,
		entry.ContributedHours,
		entry.Notes,
		entry.ChargeCode,
		entry.CreatedBy,
		entry.CreatedAt,
		entry.ModifiedBy,
		entry.ModifiedAt,
	).Scan(&id)
	if err != nil {
		err := fmt.Errorf("could not store time entry: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *repositoryImpl) Update(ctx context.Context, entry TimeEntry) error {
	query := `UPDATE time_entry SET
                  work_phase_id = $1,
                  start_date = $2,
                  end_date = $3,
                  hours = $4,
                  contributed_hours = $5,
                  notes = $6,
                  charge_code = $7,
                  modified_by = $8,
                  modified_at = $9
              WHERE id = $10`
	result, err := r.getQueryer().Exec(ctx, query,
		entry.WorkPhaseId,
		entry.StartDate,
		entry.EndDate,
		entry.Hours,
		entry.ContributedHours,
		entry.Notes,
		entry.ChargeCode,
		entry.ModifiedBy,
		entry.ModifiedAt,
		entry.Id,
	)
	if err != nil {
		err := fmt.Errorf("could not update time entry %d: %w", entry.Id, err)
		log.Error(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTimeEntryNotFound
	}
	return nil
}

func (r *repositoryImpl) Delete(ctx context.Context, id int) (bool, error) {
	result, err := r.getQueryer().Exec(ctx, "DELETE FROM time_entry WHERE id = $1", id)
	if err != nil {
		err := fmt.Errorf("could not delete time entry %d: %w", id, err)
		log.Error(err)
		return false, err
	}
	return result.RowsAffected() == 1, nil
}
