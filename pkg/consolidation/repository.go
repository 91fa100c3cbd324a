package consolidation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/worktrack/worktrack/internal/database"
)

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	List(ctx context.Context, filter Filter) ([]Consolidation, error)
	// Get returns the consolidation with its sources and their time entries.
	Get(ctx context.Context, id int) (Consolidation, error)
	// GetForUpdate locks the consolidation row until the surrounding transaction ends.
	// Sources are not loaded.
	GetForUpdate(ctx context.Context, id int) (Consolidation, error)
	CountSources(ctx context.Context, id int) (int, error)
	// LockEntryBalances locks the given time entries in id order and returns
	// their allocation state, ignoring sources of excludeConsolidationId.
	// Entries that do not exist are absent from the result.
	LockEntryBalances(ctx context.Context, excludeConsolidationId int, timeEntryIds []int) (map[int]EntryBalance, error)
	Create(ctx context.Context, c Consolidation) (int, error)
	Update(ctx context.Context, c Consolidation) error
	// ReplaceSources deletes every source of the consolidation and inserts the given ones.
	ReplaceSources(ctx context.Context, consolidationId int, sources []SourceInput) error
	Delete(ctx context.Context, id int) (bool, error)
	GetAvailableEntries(ctx context.Context, enhancementId int, start, end time.Time) ([]TimeEntryAvailability, error)
	GetEnhancementsWithEntries(ctx context.Context, serviceAreaId *int, start, end time.Time) ([]EnhancementEntrySummary, error)
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
		// no-op after a successful commit
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

const consolidationColumns = `
    			c.id,
    			c.enhancement_id,
    			c.service_area_id,
    			c.start_date,
    			c.end_date,
    			c.billable_hours,
    			c.source_hours,
    			c.status,
    			c.notes,
    			c.invoice_reference,
    			c.created_by,
    			c.created_at,
    			c.modified_by,
    			c.modified_at`

const pulledTotals = `LEFT JOIN (
			      SELECT cs.time_entry_id, SUM(cs.pulled_hours) AS total
			      FROM consolidation_source cs
			      GROUP BY cs.time_entry_id
			  ) pulled ON pulled.time_entry_id = te.id`

func scanConsolidation(row pgx.Row) (Consolidation, error) {
	var c Consolidation
	var status int
	err := row.Scan(
		&c.Id,
		&c.EnhancementId,
		&c.ServiceAreaId,
		&c.StartDate,
		&c.EndDate,
		&c.BillableHours,
		&c.SourceHours,
		&status,
		&c.Notes,
		&c.InvoiceReference,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.ModifiedBy,
		&c.ModifiedAt,
	)
	c.Status = Status(status)
	return c, err
}

func (r *repositoryImpl) List(ctx context.Context, filter Filter) ([]Consolidation, error) {
	var conditions []string
	var args []any
	where := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}
	if filter.ServiceAreaId != nil {
		where("c.service_area_id = $%d", *filter.ServiceAreaId)
	}
	if filter.EnhancementId != nil {
		where("c.enhancement_id = $%d", *filter.EnhancementId)
	}
	if filter.From != nil {
		where("c.end_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		where("c.start_date <= $%d", *filter.To)
	}
	if filter.Status != nil {
		where("c.status = $%d", int(*filter.Status))
	}

	query := "SELECT" + consolidationColumns + " FROM consolidation c"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY c.start_date DESC, c.id DESC"

	rows, err := r.getQueryer().Query(ctx, query, args...)
	if err != nil {
		err := fmt.Errorf("could not query consolidations: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var result []Consolidation
	for rows.Next() {
		c, err := scanConsolidation(rows)
		if err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return result, nil
}

func (r *repositoryImpl) getConsolidation(ctx context.Context, id int, lock bool) (Consolidation, error) {
	query := "SELECT" + consolidationColumns + " FROM consolidation c WHERE c.id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	c, err := scanConsolidation(r.getQueryer().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consolidation{}, ErrConsolidationNotFound
		}
		err := fmt.Errorf("could not get consolidation %d: %w", id, err)
		log.Error(err)
		return Consolidation{}, err
	}
	return c, nil
}

func (r *repositoryImpl) Get(ctx context.Context, id int) (Consolidation, error) {
	c, err := r.getConsolidation(ctx, id, false)
	if err != nil {
		return Consolidation{}, err
	}

	query := `SELECT
    			cs.id,
    			cs.consolidation_id,
    			cs.pulled_hours,
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
			  FROM consolidation_source cs
			  JOIN time_entry te ON te.id = cs.time_entry_id
			  ` + pulledTotals + `
			  WHERE cs.consolidation_id = $1
			  ORDER BY cs.id`
	rows, err := r.getQueryer().Query(ctx, query, id)
	if err != nil {
		err := fmt.Errorf("could not query sources of consolidation %d: %w", id, err)
		log.Error(err)
		return Consolidation{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var s Source
		te := &s.TimeEntry
		if err := rows.Scan(
			&s.Id,
			&s.ConsolidationId,
			&s.PulledHours,
			&te.Id,
			&te.EnhancementId,
			&te.ResourceId,
			&te.WorkPhaseId,
			&te.StartDate,
			&te.EndDate,
			&te.Hours,
			&te.ContributedHours,
			&te.Notes,
			&te.ChargeCode,
			&te.TotalPulledHours,
			&te.CreatedBy,
			&te.CreatedAt,
			&te.ModifiedBy,
			&te.ModifiedAt,
		); err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return Consolidation{}, err
		}
		s.TimeEntryId = te.Id
		c.Sources = append(c.Sources, s)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return Consolidation{}, err
	}
	return c, nil
}

func (r *repositoryImpl) GetForUpdate(ctx context.Context, id int) (Consolidation, error) {
	return r.getConsolidation(ctx, id, true)
}

func (r *repositoryImpl) CountSources(ctx context.Context, id int) (int, error) {
	var count int
	err := r.getQueryer().QueryRow(ctx, "SELECT COUNT(*) FROM consolidation_source WHERE consolidation_id = $1", id).Scan(&count)
	if err != nil {
		err := fmt.Errorf("could not count sources of consolidation %d: %w", id, err)
		log.Error(err)
		return 0, err
	}
	return count, nil
}

func (r *repositoryImpl) LockEntryBalances(ctx context.Context, excludeConsolidationId int, timeEntryIds []int) (map[int]EntryBalance, error) {
	balances := make(map[int]EntryBalance, len(timeEntryIds))
	if len(timeEntryIds) == 0 {
		return balances, nil
	}

	lockQuery := `SELECT te.id, te.enhancement_id, wp.for_consolidation, te.contributed_hours
				  FROM time_entry te
				  JOIN work_phase wp ON wp.id = te.work_phase_id
				  WHERE te.id = ANY($1)
				  ORDER BY te.id
				  FOR UPDATE OF te`
	rows, err := r.getQueryer().Query(ctx, lockQuery, timeEntryIds)
	if err != nil {
		err := fmt.Errorf("could not lock time entries: %w", err)
		log.Error(err)
		return nil, err
	}
	for rows.Next() {
		var b EntryBalance
		if err := rows.Scan(&b.TimeEntryId, &b.EnhancementId, &b.ForConsolidation, &b.ContributedHours); err != nil {
			rows.Close()
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		balances[b.TimeEntryId] = b
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}

	// Runs after the locks are held, so it sees every pull committed by a
	// competing writer that held them before us.
	sumQuery := `SELECT cs.time_entry_id, SUM(cs.pulled_hours)
				 FROM consolidation_source cs
				 WHERE cs.time_entry_id = ANY($1) AND cs.consolidation_id <> $2
				 GROUP BY cs.time_entry_id`
	rows, err = r.getQueryer().Query(ctx, sumQuery, timeEntryIds, excludeConsolidationId)
	if err != nil {
		err := fmt.Errorf("could not sum pulled hours: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var entryId int
		var b EntryBalance
		if err := rows.Scan(&entryId, &b.PulledElsewhere); err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		if existing, ok := balances[entryId]; ok {
			existing.PulledElsewhere = b.PulledElsewhere
			balances[entryId] = existing
		}
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return balances, nil
}

func (r *repositoryImpl) Create(ctx context.Context, c Consolidation) (int, error) {
	query := `INSERT INTO consolidation (
                    enhancement_id,
                    service_area_id,
                    start_date,
                    end_date,
                    billable_hours,
                    source_hours,
                    status,
                    notes,
                    invoice_reference,
                    created_by,
                    created_at,
                    modified_by,
                    modified_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`
	var id int
	err := r.getQueryer().QueryRow(ctx, query,
		c.EnhancementId,
		c.ServiceAreaId,
		c.StartDate,
		c.EndDate,
		c.BillableHours,
		c.SourceHours,
		int(c.Status),
		c.Notes,
		c.InvoiceReference,
		c.CreatedBy,
		c.CreatedAt,
		c.ModifiedBy,
		c.ModifiedAt,
	).Scan(&id)
	if err != nil {
		err := fmt.Errorf("could not store consolidation: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *repositoryImpl) Update(ctx context.Context, c Consolidation) error {
	query := `UPDATE consolidation SET
                  billable_hours = $1,
                  source_hours = $2,
                  status = $3,
                  notes = $4,
                  invoice_reference = $5,
                  modified_by = $6,
                  modified_at = $7
              WHERE id = $8`
	result, err := r.getQueryer().Exec(ctx, query,
		c.BillableHours,
		c.SourceHours,
		int(c.Status),
		c.Notes,
		c.InvoiceReference,
		c.ModifiedBy,
		c.ModifiedAt,
		c.Id,
	)
	if err != nil {
		err := fmt.Errorf("could not update consolidation %d: %w", c.Id, err)
		log.Error(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrConsolidationNotFound
	}
	return nil
}

func (r *repositoryImpl) ReplaceSources(ctx context.Context, consolidationId int, sources []SourceInput) error {
	_, err := r.getQueryer().Exec(ctx, "DELETE FROM consolidation_source WHERE consolidation_id = $1", consolidationId)
	if err != nil {
		err := fmt.Errorf("could not delete sources of consolidation %d: %w", consolidationId, err)
		log.Error(err)
		return err
	}
	if len(sources) == 0 {
		return nil
	}

	query := "INSERT INTO consolidation_source (consolidation_id, time_entry_id, pulled_hours) VALUES "
	args := make([]any, 0, len(sources)*3)
	values := make([]string, 0, len(sources))
	for i, s := range sources {
		values = append(values, fmt.Sprintf("($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3))
		args = append(args, consolidationId, s.TimeEntryId, s.PulledHours)
	}
	query += strings.Join(values, ", ")

	if _, err := r.getQueryer().Exec(ctx, query, args...); err != nil {
		err := fmt.Errorf("could not insert sources of consolidation %d: %w", consolidationId, err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *repositoryImpl) Delete(ctx context.Context, id int) (bool, error) {
	result, err := r.getQueryer().Exec(ctx, "DELETE FROM consolidation WHERE id = $1", id)
	if err != nil {
		err := fmt.Errorf("could not delete consolidation %d: %w", id, err)
		log.Error(err)
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (r *repositoryImpl) GetAvailableEntries(ctx context.Context, enhancementId int, start, end time.Time) ([]TimeEntryAvailability, error) {
	query := `SELECT
    			te.id,
    			te.resource_id,
    			te.work_phase_id,
    			wp.name,
    			te.start_date,
    			te.end_date,
    			te.hours,
    			te.contributed_hours,
    			COALESCE(pulled.total, 0),
    			te.notes
			  FROM time_entry te
			  JOIN work_phase wp ON wp.id = te.work_phase_id AND wp.for_consolidation
			  ` + pulledTotals + `
			  WHERE te.enhancement_id = $1 AND te.end_date >= $2 AND te.start_date <= $3
			  ORDER BY te.start_date DESC, te.id DESC`
	rows, err := r.getQueryer().Query(ctx, query, enhancementId, start, end)
	if err != nil {
		err := fmt.Errorf("could not query available entries: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var result []TimeEntryAvailability
	for rows.Next() {
		var a TimeEntryAvailability
		if err := rows.Scan(
			&a.TimeEntryId,
			&a.ResourceId,
			&a.WorkPhaseId,
			&a.WorkPhaseName,
			&a.StartDate,
			&a.EndDate,
			&a.Hours,
			&a.ContributedHours,
			&a.TotalPulledHours,
			&a.Notes,
		); err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		a.RemainingHours = a.ContributedHours.Sub(a.TotalPulledHours)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return result, nil
}

func (r *repositoryImpl) GetEnhancementsWithEntries(ctx context.Context, serviceAreaId *int, start, end time.Time) ([]EnhancementEntrySummary, error) {
	args := []any{start, end}
	serviceAreaCondition := ""
	if serviceAreaId != nil {
		args = append(args, *serviceAreaId)
		serviceAreaCondition = " AND e.service_area_id = $3"
	}
	query := `SELECT
    			e.id,
    			e.name,
    			e.service_area_id,
    			COUNT(te.id),
    			COALESCE(SUM(te.hours), 0),
    			COALESCE(SUM(te.contributed_hours), 0)
			  FROM time_entry te
			  JOIN enhancement e ON e.id = te.enhancement_id
			  JOIN work_phase wp ON wp.id = te.work_phase_id AND wp.for_consolidation
			  WHERE te.end_date >= $1 AND te.start_date <= $2` + serviceAreaCondition + `
			  GROUP BY e.id, e.name, e.service_area_id
			  ORDER BY e.name, e.id`
	rows, err := r.getQueryer().Query(ctx, query, args...)
	if err != nil {
		err := fmt.Errorf("could not query enhancements with entries: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var result []EnhancementEntrySummary
	for rows.Next() {
		var s EnhancementEntrySummary
		if err := rows.Scan(
			&s.EnhancementId,
			&s.EnhancementName,
			&s.ServiceAreaId,
			&s.EntryCount,
			&s.TotalHours,
			&s.TotalContributedHours,
		); err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return result, nil
}
