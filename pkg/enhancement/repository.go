package enhancement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
	"github.com/worktrack/worktrack/internal/database"
)

var ErrEnhancementNotFound = errors.New("enhancement not found")
var ErrServiceAreaNotFound = errors.New("service area not found")
var ErrWorkPhaseNotFound = errors.New("work phase not found")

// Reader is the read-only view of the reference data owned by other parts of
// the application.
type Reader interface {
	GetEnhancement(ctx context.Context, id int) (Enhancement, error)
	GetServiceArea(ctx context.Context, id int) (ServiceArea, error)
	GetWorkPhase(ctx context.Context, id int) (WorkPhase, error)
}

type RepositoryImpl struct {
	db database.Querier
}

func NewRepository(db database.Querier) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) GetEnhancement(ctx context.Context, id int) (Enhancement, error) {
	query := `SELECT e.id, e.service_area_id, e.name, COALESCE(e.external_ref, '')
			  FROM enhancement e WHERE e.id = $1`
	var e Enhancement
	err := r.db.QueryRow(ctx, query, id).Scan(&e.Id, &e.ServiceAreaId, &e.Name, &e.ExternalRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Enhancement{}, ErrEnhancementNotFound
		}
		err := fmt.Errorf("could not get enhancement %d: %w", id, err)
		log.Error(err)
		return Enhancement{}, err
	}
	return e, nil
}

func (r *RepositoryImpl) GetServiceArea(ctx context.Context, id int) (ServiceArea, error) {
	query := `SELECT sa.id, sa.name, sa.active FROM service_area sa WHERE sa.id = $1`
	var sa ServiceArea
	err := r.db.QueryRow(ctx, query, id).Scan(&sa.Id, &sa.Name, &sa.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ServiceArea{}, ErrServiceAreaNotFound
		}
		err := fmt.Errorf("could not get service area %d: %w", id, err)
		log.Error(err)
		return ServiceArea{}, err
	}
	return sa, nil
}

func (r *RepositoryImpl) GetWorkPhase(ctx context.Context, id int) (WorkPhase, error) {
	query := `SELECT 
    			wp.id,
    			wp.name,
    			wp.contribution_percent,
    			wp.for_estimation,
    			wp.for_time_recording,
    			wp.for_consolidation
			  FROM work_phase wp WHERE wp.id = $1`
	var wp WorkPhase
	err := r.db.QueryRow(ctx, query, id).Scan(
		&wp.Id,
		&wp.Name,
		&wp.ContributionPercent,
		&wp.ForEstimation,
		&wp.ForTimeRecording,
		&wp.ForConsolidation,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkPhase{}, ErrWorkPhaseNotFound
		}
		err := fmt.Errorf("could not get work phase %d: %w", id, err)
		log.Error(err)
		return WorkPhase{}, err
	}
	return wp, nil
}
