package consolidation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/worktrack/worktrack/internal/event_bus"
	"github.com/worktrack/worktrack/internal/utils"
	"github.com/worktrack/worktrack/pkg/enhancement"
	"github.com/worktrack/worktrack/pkg/user"
)

type Service interface {
	List(ctx context.Context, filter Filter) ([]Consolidation, error)
	Get(ctx context.Context, id int) (Consolidation, error)
	CreateFromSources(ctx context.Context, req CreateFromSourcesRequest) (Consolidation, error)
	CreateManual(ctx context.Context, req CreateManualRequest) (Consolidation, error)
	// Update edits a Draft consolidation. Sources, when given, replace the
	// current set atomically and are re-checked against every other batch.
	Update(ctx context.Context, id int, req UpdateRequest) (Consolidation, error)
	// Delete removes a Draft consolidation and releases its pulled hours.
	Delete(ctx context.Context, id int) error
	ChangeStatus(ctx context.Context, id int, change StatusChange) (Consolidation, error)
	GetAvailableEntries(ctx context.Context, enhancementId int, start, end time.Time) ([]TimeEntryAvailability, error)
	GetEnhancementsWithEntries(ctx context.Context, serviceAreaId *int, start, end time.Time) ([]EnhancementEntrySummary, error)
}

type ServiceImpl struct {
	repo      Repository
	reference enhancement.Reader
	eventBus  *event_bus.EventBus
	clock     utils.Clock
}

func NewService(repo Repository, reference enhancement.Reader, eventBus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, reference: reference, eventBus: eventBus, clock: clock}
}

func (s *ServiceImpl) List(ctx context.Context, filter Filter) ([]Consolidation, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, NewValidationError("window end is before window start")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, NewValidationError("unknown status %d", int(*filter.Status))
	}
	if filter.ServiceAreaId != nil {
		if _, err := s.reference.GetServiceArea(ctx, *filter.ServiceAreaId); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx, filter)
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (Consolidation, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) CreateFromSources(ctx context.Context, req CreateFromSourcesRequest) (Consolidation, error) {
	return s.create(ctx, req)
}

func (s *ServiceImpl) CreateManual(ctx context.Context, req CreateManualRequest) (Consolidation, error) {
	if !HasNotes(req.Notes) {
		return Consolidation{}, NewValidationError("notes are required for a manual consolidation")
	}
	return s.create(ctx, CreateFromSourcesRequest{
		EnhancementId: req.EnhancementId,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		BillableHours: req.BillableHours,
		Notes:         req.Notes,
	})
}

func (s *ServiceImpl) create(ctx context.Context, req CreateFromSourcesRequest) (Consolidation, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return Consolidation{}, fmt.Errorf("failed to get current user: %w", err)
	}
	enh, err := s.reference.GetEnhancement(ctx, req.EnhancementId)
	if err != nil {
		return Consolidation{}, err
	}
	sources, err := normalizeSources(req.Sources)
	if err != nil {
		return Consolidation{}, err
	}

	now := s.clock.Now()
	c := Consolidation{
		EnhancementId: enh.Id,
		ServiceAreaId: enh.ServiceAreaId,
		StartDate:     utils.Date(req.StartDate),
		EndDate:       utils.Date(req.EndDate),
		BillableHours: req.BillableHours,
		SourceHours:   sumPulled(sources),
		Status:        Draft,
		Notes:         req.Notes,
		CreatedBy:     actor,
		CreatedAt:     now,
		ModifiedBy:    actor,
		ModifiedAt:    now,
	}
	err = ValidateConsolidation(ValidationInput{
		EnhancementExists: true,
		StartDate:         c.StartDate,
		EndDate:           c.EndDate,
		BillableHours:     c.BillableHours,
		HasNotes:          HasNotes(c.Notes),
		HasSources:        len(sources) > 0,
	})
	if err != nil {
		log.Warnf("rejected consolidation for enhancement %d: %v", req.EnhancementId, err)
		return Consolidation{}, err
	}

	err = s.repo.WithTransaction(ctx, func(repo Repository) error {
		if err := allocate(ctx, repo, 0, c.EnhancementId, sources); err != nil {
			return err
		}
		id, err := repo.Create(ctx, c)
		if err != nil {
			return err
		}
		c.Id = id
		return repo.ReplaceSources(ctx, id, sources)
	})
	if err != nil {
		logRejection(err, "create consolidation for enhancement %d", req.EnhancementId)
		return Consolidation{}, err
	}
	log.Infof("consolidation %d created for enhancement %d (%s source hours)", c.Id, c.EnhancementId, c.SourceHours)

	s.publish(ctx, event_bus.ConsolidationCreated, c, "", actor)
	return s.repo.Get(ctx, c.Id)
}

func (s *ServiceImpl) Update(ctx context.Context, id int, req UpdateRequest) (Consolidation, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return Consolidation{}, fmt.Errorf("failed to get current user: %w", err)
	}

	err = s.repo.WithTransaction(ctx, func(repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != Draft {
			return &IllegalTransitionError{Operation: "update", Current: current.Status}
		}

		next := current
		next.BillableHours = req.BillableHours
		if req.Notes != nil {
			next.Notes = *req.Notes
		}
		next.ModifiedBy = actor
		next.ModifiedAt = s.clock.Now()

		var sources []SourceInput
		var hasSources bool
		if req.Sources != nil {
			sources, err = normalizeSources(*req.Sources)
			if err != nil {
				return err
			}
			next.SourceHours = sumPulled(sources)
			hasSources = len(sources) > 0
		} else {
			count, err := repo.CountSources(ctx, id)
			if err != nil {
				return err
			}
			hasSources = count > 0
		}

		err = ValidateConsolidation(ValidationInput{
			EnhancementExists: true,
			StartDate:         next.StartDate,
			EndDate:           next.EndDate,
			BillableHours:     next.BillableHours,
			HasNotes:          HasNotes(next.Notes),
			HasSources:        hasSources,
		})
		if err != nil {
			return err
		}

		if req.Sources != nil {
			if err := allocate(ctx, repo, id, next.EnhancementId, sources); err != nil {
				return err
			}
			if err := repo.ReplaceSources(ctx, id, sources); err != nil {
				return err
			}
		}
		return repo.Update(ctx, next)
	})
	if err != nil {
		logRejection(err, "update consolidation %d", id)
		return Consolidation{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) Delete(ctx context.Context, id int) error {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}

	var deleted Consolidation
	err = s.repo.WithTransaction(ctx, func(repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != Draft {
			return &IllegalTransitionError{Operation: "delete", Current: current.Status}
		}
		ok, err := repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConsolidationNotFound
		}
		deleted = current
		return nil
	})
	if err != nil {
		logRejection(err, "delete consolidation %d", id)
		return err
	}
	log.Infof("consolidation %d deleted", id)

	s.publish(ctx, event_bus.ConsolidationDeleted, deleted, deleted.Status.String(), actor)
	return nil
}

func (s *ServiceImpl) ChangeStatus(ctx context.Context, id int, change StatusChange) (Consolidation, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return Consolidation{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if !change.Status.IsValid() {
		return Consolidation{}, NewValidationError("unknown status %d", int(change.Status))
	}

	var from Status
	var next Consolidation
	err = s.repo.WithTransaction(ctx, func(repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(change.Status) {
			return &IllegalTransitionError{Current: current.Status, Attempted: change.Status}
		}
		if change.Status == Finalized {
			count, err := repo.CountSources(ctx, id)
			if err != nil {
				return err
			}
			if err := ValidateFinalize(current, count); err != nil {
				return err
			}
		}

		from = current.Status
		next = current
		next.Status = change.Status
		if change.Status == Invoiced && change.InvoiceReference != "" {
			next.InvoiceReference = change.InvoiceReference
		}
		next.ModifiedBy = actor
		next.ModifiedAt = s.clock.Now()
		return repo.Update(ctx, next)
	})
	if err != nil {
		logRejection(err, "change status of consolidation %d to %s", id, change.Status)
		return Consolidation{}, err
	}
	log.Infof("consolidation %d moved from %s to %s", id, from, next.Status)

	s.publish(ctx, event_bus.ConsolidationStatusChanged, next, from.String(), actor)
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) GetAvailableEntries(ctx context.Context, enhancementId int, start, end time.Time) ([]TimeEntryAvailability, error) {
	if end.Before(start) {
		return nil, NewValidationError("window end is before window start")
	}
	if _, err := s.reference.GetEnhancement(ctx, enhancementId); err != nil {
		return nil, err
	}
	return s.repo.GetAvailableEntries(ctx, enhancementId, utils.Date(start), utils.Date(end))
}

func (s *ServiceImpl) GetEnhancementsWithEntries(ctx context.Context, serviceAreaId *int, start, end time.Time) ([]EnhancementEntrySummary, error) {
	if end.Before(start) {
		return nil, NewValidationError("window end is before window start")
	}
	if serviceAreaId != nil {
		if _, err := s.reference.GetServiceArea(ctx, *serviceAreaId); err != nil {
			return nil, err
		}
	}
	return s.repo.GetEnhancementsWithEntries(ctx, serviceAreaId, utils.Date(start), utils.Date(end))
}

// allocate locks the time entries behind sources and checks the pulls
// against what every other consolidation already holds.
func allocate(ctx context.Context, repo Repository, consolidationId, enhancementId int, sources []SourceInput) error {
	if len(sources) == 0 {
		return nil
	}
	ids := make([]int, 0, len(sources))
	for _, src := range sources {
		ids = append(ids, src.TimeEntryId)
	}
	slices.Sort(ids)

	balances, err := repo.LockEntryBalances(ctx, consolidationId, ids)
	if err != nil {
		return err
	}
	return checkAllocation(enhancementId, sources, balances)
}

// publish is called after commit. Subscribers only observe, so a failing
// one is logged and does not undo the change.
func (s *ServiceImpl) publish(ctx context.Context, eventType event_bus.EventType, c Consolidation, fromStatus string, actor string) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.Publish(event_bus.NewEvent(ctx, eventType, event_bus.ConsolidationChange{
		Id:            c.Id,
		EnhancementId: c.EnhancementId,
		ServiceAreaId: c.ServiceAreaId,
		PeriodStart:   c.StartDate,
		FromStatus:    fromStatus,
		ToStatus:      c.Status.String(),
		BillableHours: c.BillableHours,
		SourceHours:   c.SourceHours,
		Manual:        c.IsManual(),
		Actor:         actor,
	}))
	if err != nil {
		log.Errorf("failed to publish %s for consolidation %d: %v", eventType, c.Id, err)
	}
}

func logRejection(err error, format string, args ...any) {
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrIllegalTransition) || errors.Is(err, ErrConservationViolation) {
		log.Warnf("rejected: "+format+": %v", append(args, err)...)
	}
}
