package time_entry

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// RepositoryStub is an in-memory Repository. Pulled hours are not derived
// from consolidations here; tests set them with SetAllocations.
type RepositoryStub struct {
	mu           sync.Mutex
	entries      map[int]TimeEntry
	allocations  map[int][]Allocation
	serviceAreas map[int]int // enhancementId -> serviceAreaId
	nextId       int
}

func NewRepositoryStub() *RepositoryStub {
	s := &RepositoryStub{}
	s.Reset()
	return s
}

func (s *RepositoryStub) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[int]TimeEntry{}
	s.allocations = map[int][]Allocation{}
	s.serviceAreas = map[int]int{}
	s.nextId = 0
}

// SetServiceArea maps an enhancement to a service area for Filter.ServiceAreaId.
func (s *RepositoryStub) SetServiceArea(enhancementId, serviceAreaId int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serviceAreas[enhancementId] = serviceAreaId
}

func (s *RepositoryStub) SetAllocations(entryId int, allocations ...Allocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocations[entryId] = allocations
}

func (s *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	s.mu.Lock()
	entries := maps.Clone(s.entries)
	nextId := s.nextId
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.entries = entries
		s.nextId = nextId
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *RepositoryStub) withPulled(e TimeEntry) TimeEntry {
	total := decimal.Zero
	for _, a := range s.allocations[e.Id] {
		total = total.Add(a.PulledHours)
	}
	e.TotalPulledHours = total
	return e
}

func (s *RepositoryStub) List(ctx context.Context, filter Filter) ([]TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []TimeEntry
	for _, e := range s.entries {
		if filter.ServiceAreaId != nil && s.serviceAreas[e.EnhancementId] != *filter.ServiceAreaId {
			continue
		}
		if filter.EnhancementId != nil && e.EnhancementId != *filter.EnhancementId {
			continue
		}
		if filter.ResourceId != nil && e.ResourceId != *filter.ResourceId {
			continue
		}
		if filter.From != nil && e.EndDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.StartDate.After(*filter.To) {
			continue
		}
		result = append(result, s.withPulled(e))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.After(result[j].StartDate)
		}
		return result[i].Id > result[j].Id
	})
	return result, nil
}

func (s *RepositoryStub) Get(ctx context.Context, id int) (TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return TimeEntry{}, ErrTimeEntryNotFound
	}
	e = s.withPulled(e)
	e.Allocations = append([]Allocation(nil), s.allocations[id]...)
	return e, nil
}

func (s *RepositoryStub) GetForUpdate(ctx context.Context, id int) (TimeEntry, error) {
	e, err := s.Get(ctx, id)
	e.Allocations = nil
	return e, err
}

func (s *RepositoryStub) Store(ctx context.Context, entry TimeEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	entry.Id = s.nextId
	entry.TotalPulledHours = decimal.Zero
	entry.Allocations = nil
	s.entries[entry.Id] = entry
	return entry.Id, nil
}

func (s *RepositoryStub) Update(ctx context.Context, entry TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.Id]; !ok {
		return ErrTimeEntryNotFound
	}
	entry.Allocations = nil
	s.entries[entry.Id] = entry
	return nil
}

func (s *RepositoryStub) Delete(ctx context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false, nil
	}
	delete(s.entries, id)
	return true, nil
}
