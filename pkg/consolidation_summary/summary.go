package consolidation_summary

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/worktrack/worktrack/pkg/consolidation"
	"github.com/worktrack/worktrack/pkg/enhancement"
)

type EnhancementSummary struct {
	EnhancementId   int
	EnhancementName string
	ServiceAreaId   int
	Count           int
	BillableHours   decimal.Decimal
	SourceHours     decimal.Decimal
}

type ServiceAreaSummary struct {
	ServiceAreaId   int
	ServiceAreaName string
	Count           int
	BillableHours   decimal.Decimal
	SourceHours     decimal.Decimal
}

type Lister interface {
	List(ctx context.Context, filter consolidation.Filter) ([]consolidation.Consolidation, error)
}

// Service aggregates consolidations of every status. It never writes.
type Service struct {
	consolidations Lister
	reference      enhancement.Reader
}

func NewService(consolidations Lister, reference enhancement.Reader) *Service {
	return &Service{consolidations: consolidations, reference: reference}
}

func (s *Service) SummaryByEnhancement(ctx context.Context, serviceAreaId *int, from, to *time.Time) ([]EnhancementSummary, error) {
	list, err := s.consolidations.List(ctx, consolidation.Filter{ServiceAreaId: serviceAreaId, From: from, To: to})
	if err != nil {
		return nil, err
	}

	byEnhancement := map[int]*EnhancementSummary{}
	for _, c := range list {
		summary, ok := byEnhancement[c.EnhancementId]
		if !ok {
			summary = &EnhancementSummary{
				EnhancementId: c.EnhancementId,
				ServiceAreaId: c.ServiceAreaId,
				BillableHours: decimal.Zero,
				SourceHours:   decimal.Zero,
			}
			byEnhancement[c.EnhancementId] = summary
		}
		summary.Count++
		summary.BillableHours = summary.BillableHours.Add(c.BillableHours)
		summary.SourceHours = summary.SourceHours.Add(c.SourceHours)
	}

	result := make([]EnhancementSummary, 0, len(byEnhancement))
	for id, summary := range byEnhancement {
		e, err := s.reference.GetEnhancement(ctx, id)
		if err != nil {
			return nil, err
		}
		summary.EnhancementName = e.Name
		result = append(result, *summary)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EnhancementId < result[j].EnhancementId
	})
	return result, nil
}

func (s *Service) SummaryByServiceArea(ctx context.Context, from, to *time.Time) ([]ServiceAreaSummary, error) {
	list, err := s.consolidations.List(ctx, consolidation.Filter{From: from, To: to})
	if err != nil {
		return nil, err
	}

	byServiceArea := map[int]*ServiceAreaSummary{}
	for _, c := range list {
		summary, ok := byServiceArea[c.ServiceAreaId]
		if !ok {
			summary = &ServiceAreaSummary{
				ServiceAreaId: c.ServiceAreaId,
				BillableHours: decimal.Zero,
				SourceHours:   decimal.Zero,
			}
			byServiceArea[c.ServiceAreaId] = summary
		}
		summary.Count++
		summary.BillableHours = summary.BillableHours.Add(c.BillableHours)
		summary.SourceHours = summary.SourceHours.Add(c.SourceHours)
	}

	result := make([]ServiceAreaSummary, 0, len(byServiceArea))
	for id, summary := range byServiceArea {
		sa, err := s.reference.GetServiceArea(ctx, id)
		if err != nil {
			return nil, err
		}
		summary.ServiceAreaName = sa.Name
		result = append(result, *summary)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ServiceAreaId < result[j].ServiceAreaId
	})
	return result, nil
}
