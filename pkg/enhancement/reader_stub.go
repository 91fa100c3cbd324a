package enhancement

import (
	"context"
	"sync"
)

// ReaderStub is an in-memory Reader for tests of dependent packages.
type ReaderStub struct {
	mu           sync.RWMutex
	enhancements map[int]Enhancement
	serviceAreas map[int]ServiceArea
	workPhases   map[int]WorkPhase
	Calls        int
}

func NewReaderStub() *ReaderStub {
	s := &ReaderStub{}
	s.Reset()
	return s
}

func (s *ReaderStub) AddEnhancement(e Enhancement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enhancements[e.Id] = e
}

func (s *ReaderStub) AddServiceArea(sa ServiceArea) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serviceAreas[sa.Id] = sa
}

func (s *ReaderStub) AddWorkPhase(wp WorkPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workPhases[wp.Id] = wp
}

func (s *ReaderStub) GetEnhancement(ctx context.Context, id int) (Enhancement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if e, ok := s.enhancements[id]; ok {
		return e, nil
	}
	return Enhancement{}, ErrEnhancementNotFound
}

func (s *ReaderStub) GetServiceArea(ctx context.Context, id int) (ServiceArea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if sa, ok := s.serviceAreas[id]; ok {
		return sa, nil
	}
	return ServiceArea{}, ErrServiceAreaNotFound
}

func (s *ReaderStub) GetWorkPhase(ctx context.Context, id int) (WorkPhase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if wp, ok := s.workPhases[id]; ok {
		return wp, nil
	}
	return WorkPhase{}, ErrWorkPhaseNotFound
}

func (s *ReaderStub) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enhancements = map[int]Enhancement{}
	s.serviceAreas = map[int]ServiceArea{}
	s.workPhases = map[int]WorkPhase{}
	s.Calls = 0
}
