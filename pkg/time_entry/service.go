package time_entry

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/worktrack/worktrack/internal/utils"
	"github.com/worktrack/worktrack/pkg/enhancement"
	"github.com/worktrack/worktrack/pkg/user"
)

var ErrInvalidTimeEntry = errors.New("invalid time entry")
var ErrTimeEntryConsolidated = errors.New("time entry hours are already consolidated")

type Service interface {
	ListByEnhancement(ctx context.Context, enhancementId int) ([]TimeEntry, error)
	ListByResource(ctx context.Context, resourceId int, from, to *time.Time) ([]TimeEntry, error)
	Find(ctx context.Context, filter Filter) ([]TimeEntry, error)
	Get(ctx context.Context, id int) (TimeEntry, error)
	Create(ctx context.Context, entry NewTimeEntry) (TimeEntry, error)
	Update(ctx context.Context, id int, update TimeEntryUpdate) (TimeEntry, error)
	Delete(ctx context.Context, id int) error
}

type ServiceImpl struct {
	repo      Repository
	reference enhancement.Reader
	clock     utils.Clock
}

func NewService(repo Repository, reference enhancement.Reader, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, reference: reference, clock: clock}
}

func (s *ServiceImpl) ListByEnhancement(ctx context.Context, enhancementId int) ([]TimeEntry, error) {
	return s.repo.List(ctx, Filter{EnhancementId: &enhancementId})
}

func (s *ServiceImpl) ListByResource(ctx context.Context, resourceId int, from, to *time.Time) ([]TimeEntry, error) {
	return s.Find(ctx, Filter{ResourceId: &resourceId, From: from, To: to})
}

func (s *ServiceImpl) Find(ctx context.Context, filter Filter) ([]TimeEntry, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, fmt.Errorf("%w: window end is before window start", ErrInvalidTimeEntry)
	}
	if filter.ServiceAreaId != nil {
		if _, err := s.reference.GetServiceArea(ctx, *filter.ServiceAreaId); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx, filter)
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (TimeEntry, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) Create(ctx context.Context, input NewTimeEntry) (TimeEntry, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return TimeEntry{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if _, err := s.reference.GetEnhancement(ctx, input.EnhancementId); err != nil {
		return TimeEntry{}, err
	}
	phase, err := s.reference.GetWorkPhase(ctx, input.WorkPhaseId)
	if err != nil {
		return TimeEntry{}, err
	}
	if !phase.ForTimeRecording {
		return TimeEntry{}, fmt.Errorf("%w: work phase %q does not accept time recording", ErrInvalidTimeEntry, phase.Name)
	}

	contributed := phase.Contribution(input.Hours)
	if input.ContributedHours != nil {
		contributed = *input.ContributedHours
	}

	now := s.clock.Now()
	entry := TimeEntry{
		EnhancementId:    input.EnhancementId,
		ResourceId:       input.ResourceId,
		WorkPhaseId:      input.WorkPhaseId,
		StartDate:        utils.Date(input.StartDate),
		EndDate:          utils.Date(input.EndDate),
		Hours:            input.Hours,
		ContributedHours: contributed,
		Notes:            input.Notes,
		ChargeCode:       input.ChargeCode,
		CreatedBy:        actor,
		CreatedAt:        now,
		ModifiedBy:       actor,
		ModifiedAt:       now,
	}
	if err := validateEntry(entry); err != nil {
		return TimeEntry{}, err
	}

	id, err := s.repo.Store(ctx, entry)
	if err != nil {
		return TimeEntry{}, err
	}
	entry.Id = id
	return entry, nil
}

func (s *ServiceImpl) Update(ctx context.Context, id int, update TimeEntryUpdate) (TimeEntry, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return TimeEntry{}, fmt.Errorf("failed to get current user: %w", err)
	}

	var updated TimeEntry
	err = s.repo.WithTransaction(ctx, func(repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		next := current
		next.Notes = update.Notes
		next.ModifiedBy = actor
		next.ModifiedAt = s.clock.Now()

		if current.IsConsolidated() {
			if !onlyNotesChanged(current, update) {
				log.Warnf("rejected update of consolidated time entry %d", id)
				return ErrTimeEntryConsolidated
			}
		} else {
			if update.WorkPhaseId != current.WorkPhaseId {
				phase, err := s.reference.GetWorkPhase(ctx, update.WorkPhaseId)
				if err != nil {
					return err
				}
				if !phase.ForTimeRecording {
					return fmt.Errorf("%w: work phase %q does not accept time recording", ErrInvalidTimeEntry, phase.Name)
				}
			}
			next.WorkPhaseId = update.WorkPhaseId
			next.StartDate = utils.Date(update.StartDate)
			next.EndDate = utils.Date(update.EndDate)
			next.Hours = update.Hours
			next.ContributedHours = update.ContributedHours
			next.ChargeCode = update.ChargeCode
			if err := validateEntry(next); err != nil {
				return err
			}
		}

		if err := repo.Update(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return TimeEntry{}, err
	}
	return updated, nil
}

func (s *ServiceImpl) Delete(ctx context.Context, id int) error {
	return s.repo.WithTransaction(ctx, func(repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.IsConsolidated() {
			log.Warnf("rejected deletion of consolidated time entry %d", id)
			return ErrTimeEntryConsolidated
		}
		deleted, err := repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrTimeEntryNotFound
		}
		return nil
	})
}

func validateEntry(e TimeEntry) error {
	if e.EndDate.Before(e.StartDate) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidTimeEntry,
			e.EndDate.Format(time.DateOnly), e.StartDate.Format(time.DateOnly))
	}
	if !FitsHoursScale(e.Hours) || !FitsHoursScale(e.ContributedHours) {
		return fmt.Errorf("%w: hours must not have more than %d decimal places", ErrInvalidTimeEntry, HoursScale)
	}
	if e.Hours.IsNegative() {
		return fmt.Errorf("%w: hours must not be negative", ErrInvalidTimeEntry)
	}
	if e.ContributedHours.IsNegative() {
		return fmt.Errorf("%w: contributed hours must not be negative", ErrInvalidTimeEntry)
	}
	if e.ContributedHours.GreaterThan(e.Hours) {
		return fmt.Errorf("%w: contributed hours %s exceed reported hours %s", ErrInvalidTimeEntry,
			e.ContributedHours, e.Hours)
	}
	return nil
}

func onlyNotesChanged(current TimeEntry, update TimeEntryUpdate) bool {
	return current.WorkPhaseId == update.WorkPhaseId &&
		current.StartDate.Equal(utils.Date(update.StartDate)) &&
		current.EndDate.Equal(utils.Date(update.EndDate)) &&
		current.Hours.Equal(update.Hours) &&
		current.ContributedHours.Equal(update.ContributedHours) &&
		current.ChargeCode == update.ChargeCode
}
