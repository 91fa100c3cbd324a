package consolidation

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/worktrack/worktrack/pkg/time_entry"
)

type stubEntry struct {
	entry            time_entry.TimeEntry
	serviceAreaId    int
	enhancementName  string
	workPhaseName    string
	forConsolidation bool
}

// RepositoryStub is an in-memory Repository. Transactions are serialized,
// which stands in for the row locks taken by the Postgres implementation,
// and are rolled back on error.
type RepositoryStub struct {
	txMu           sync.Mutex
	mu             sync.Mutex
	consolidations map[int]Consolidation
	sources        []Source
	entries        map[int]stubEntry
	nextId         int
	nextSourceId   int
}

func NewRepositoryStub() *RepositoryStub {
	s := &RepositoryStub{}
	s.Reset()
	return s
}

func (s *RepositoryStub) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consolidations = map[int]Consolidation{}
	s.sources = nil
	s.entries = map[int]stubEntry{}
	s.nextId = 0
	s.nextSourceId = 0
}

// AddTimeEntry registers a time entry that sources can pull from.
func (s *RepositoryStub) AddTimeEntry(entry time_entry.TimeEntry, serviceAreaId int, workPhaseName string, forConsolidation bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Id] = stubEntry{
		entry:            entry,
		serviceAreaId:    serviceAreaId,
		enhancementName:  "enhancement",
		workPhaseName:    workPhaseName,
		forConsolidation: forConsolidation,
	}
}

func (s *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	consolidations := maps.Clone(s.consolidations)
	sources := slices.Clone(s.sources)
	nextId, nextSourceId := s.nextId, s.nextSourceId
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.consolidations = consolidations
		s.sources = sources
		s.nextId, s.nextSourceId = nextId, nextSourceId
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *RepositoryStub) pulledTotal(timeEntryId, excludeConsolidationId int) decimal.Decimal {
	total := decimal.Zero
	for _, src := range s.sources {
		if src.TimeEntryId == timeEntryId && src.ConsolidationId != excludeConsolidationId {
			total = total.Add(src.PulledHours)
		}
	}
	return total
}

func (s *RepositoryStub) List(ctx context.Context, filter Filter) ([]Consolidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []Consolidation
	for _, c := range s.consolidations {
		if filter.ServiceAreaId != nil && c.ServiceAreaId != *filter.ServiceAreaId {
			continue
		}
		if filter.EnhancementId != nil && c.EnhancementId != *filter.EnhancementId {
			continue
		}
		if filter.From != nil && c.EndDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && c.StartDate.After(*filter.To) {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.After(result[j].StartDate)
		}
		return result[i].Id > result[j].Id
	})
	return result, nil
}

func (s *RepositoryStub) Get(ctx context.Context, id int) (Consolidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consolidations[id]
	if !ok {
		return Consolidation{}, ErrConsolidationNotFound
	}
	c.Sources = nil
	for _, src := range s.sources {
		if src.ConsolidationId != id {
			continue
		}
		entry := s.entries[src.TimeEntryId].entry
		entry.TotalPulledHours = s.pulledTotal(entry.Id, 0)
		src.TimeEntry = entry
		c.Sources = append(c.Sources, src)
	}
	return c, nil
}

func (s *RepositoryStub) GetForUpdate(ctx context.Context, id int) (Consolidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consolidations[id]
	if !ok {
		return Consolidation{}, ErrConsolidationNotFound
	}
	return c, nil
}

func (s *RepositoryStub) CountSources(ctx context.Context, id int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, src := range s.sources {
		if src.ConsolidationId == id {
			count++
		}
	}
	return count, nil
}

func (s *RepositoryStub) LockEntryBalances(ctx context.Context, excludeConsolidationId int, timeEntryIds []int) (map[int]EntryBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := make(map[int]EntryBalance, len(timeEntryIds))
	for _, id := range timeEntryIds {
		e, ok := s.entries[id]
		if !ok {
			continue
		}
		balances[id] = EntryBalance{
			TimeEntryId:      id,
			EnhancementId:    e.entry.EnhancementId,
			ForConsolidation: e.forConsolidation,
			ContributedHours: e.entry.ContributedHours,
			PulledElsewhere:  s.pulledTotal(id, excludeConsolidationId),
		}
	}
	return balances, nil
}

func (s *RepositoryStub) Create(ctx context.Context, c Consolidation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	c.Id = s.nextId
	c.Sources = nil
	s.consolidations[c.Id] = c
	return c.Id, nil
}

func (s *RepositoryStub) Update(ctx context.Context, c Consolidation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consolidations[c.Id]; !ok {
		return ErrConsolidationNotFound
	}
	c.Sources = nil
	s.consolidations[c.Id] = c
	return nil
}

func (s *RepositoryStub) ReplaceSources(ctx context.Context, consolidationId int, sources []SourceInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = slices.DeleteFunc(s.sources, func(src Source) bool {
		return src.ConsolidationId == consolidationId
	})
	for _, in := range sources {
		s.nextSourceId++
		s.sources = append(s.sources, Source{
			Id:              s.nextSourceId,
			ConsolidationId: consolidationId,
			TimeEntryId:     in.TimeEntryId,
			PulledHours:     in.PulledHours,
		})
	}
	return nil
}

func (s *RepositoryStub) Delete(ctx context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consolidations[id]; !ok {
		return false, nil
	}
	delete(s.consolidations, id)
	s.sources = slices.DeleteFunc(s.sources, func(src Source) bool {
		return src.ConsolidationId == id
	})
	return true, nil
}

func (s *RepositoryStub) overlapping(e time_entry.TimeEntry, start, end time.Time) bool {
	return !e.EndDate.Before(start) && !e.StartDate.After(end)
}

func (s *RepositoryStub) GetAvailableEntries(ctx context.Context, enhancementId int, start, end time.Time) ([]TimeEntryAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []TimeEntryAvailability
	for _, se := range s.entries {
		e := se.entry
		if e.EnhancementId != enhancementId || !se.forConsolidation || !s.overlapping(e, start, end) {
			continue
		}
		pulled := s.pulledTotal(e.Id, 0)
		result = append(result, TimeEntryAvailability{
			TimeEntryId:      e.Id,
			ResourceId:       e.ResourceId,
			WorkPhaseId:      e.WorkPhaseId,
			WorkPhaseName:    se.workPhaseName,
			StartDate:        e.StartDate,
			EndDate:          e.EndDate,
			Hours:            e.Hours,
			ContributedHours: e.ContributedHours,
			TotalPulledHours: pulled,
			RemainingHours:   e.ContributedHours.Sub(pulled),
			Notes:            e.Notes,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.After(result[j].StartDate)
		}
		return result[i].TimeEntryId > result[j].TimeEntryId
	})
	return result, nil
}

func (s *RepositoryStub) GetEnhancementsWithEntries(ctx context.Context, serviceAreaId *int, start, end time.Time) ([]EnhancementEntrySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byEnhancement := map[int]*EnhancementEntrySummary{}
	for _, se := range s.entries {
		e := se.entry
		if !se.forConsolidation || !s.overlapping(e, start, end) {
			continue
		}
		if serviceAreaId != nil && se.serviceAreaId != *serviceAreaId {
			continue
		}
		summary, ok := byEnhancement[e.EnhancementId]
		if !ok {
			summary = &EnhancementEntrySummary{
				EnhancementId:         e.EnhancementId,
				EnhancementName:       se.enhancementName,
				ServiceAreaId:         se.serviceAreaId,
				TotalHours:            decimal.Zero,
				TotalContributedHours: decimal.Zero,
			}
			byEnhancement[e.EnhancementId] = summary
		}
		summary.EntryCount++
		summary.TotalHours = summary.TotalHours.Add(e.Hours)
		summary.TotalContributedHours = summary.TotalContributedHours.Add(e.ContributedHours)
	}
	result := make([]EnhancementEntrySummary, 0, len(byEnhancement))
	for _, summary := range byEnhancement {
		result = append(result, *summary)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EnhancementId < result[j].EnhancementId
	})
	return result, nil
}
