package test_utils

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// ReferenceData holds the ids created by SeedReferenceData.
type ReferenceData struct {
	ServiceAreaId      int
	OtherServiceAreaId int
	EnhancementId      int
	OtherEnhancementId int
	// BuildPhaseId is eligible for time recording and consolidation.
	BuildPhaseId int
	// EstimatePhaseId accepts time recording but is never consolidated.
	EstimatePhaseId int
}

// SeedReferenceData inserts two service areas with one enhancement each and
// two work phases.
func SeedReferenceData(t *testing.T, ctx context.Context, db *pgxpool.Pool) ReferenceData {
	t.Helper()
	var ref ReferenceData
	insert := func(dst *int, query string, args ...any) {
		require.NoError(t, db.QueryRow(ctx, query, args...).Scan(dst))
	}
	insert(&ref.ServiceAreaId, "INSERT INTO service_area (name) VALUES ($1) RETURNING id", "Payments")
	insert(&ref.OtherServiceAreaId, "INSERT INTO service_area (name) VALUES ($1) RETURNING id", "Claims")
	insert(&ref.EnhancementId, "INSERT INTO enhancement (service_area_id, name, external_ref) VALUES ($1, $2, $3) RETURNING id",
		ref.ServiceAreaId, "Card tokenization", "ENH-101")
	insert(&ref.OtherEnhancementId, "INSERT INTO enhancement (service_area_id, name) VALUES ($1, $2) RETURNING id",
		ref.OtherServiceAreaId, "Claim intake")
	insert(&ref.BuildPhaseId, "INSERT INTO work_phase (name, contribution_percent) VALUES ($1, 75) RETURNING id",
		"Build")
	insert(&ref.EstimatePhaseId, "INSERT INTO work_phase (name, for_consolidation) VALUES ($1, FALSE) RETURNING id",
		"Estimate")
	return ref
}
