// Package memstore is the in-memory ResultStore backend, used by tests and
// by the CLI when no database is configured.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/synphys-pipeline/internal/pipeline"
)

type record struct {
	payload     []byte
	completedAt time.Time
}

type Store struct {
	mu      sync.RWMutex
	results map[string]map[pipeline.Unit]record
}

func New() *Store {
	return &Store{results: make(map[string]map[pipeline.Unit]record)}
}

func (s *Store) FinishedUnits(ctx context.Context, stage string) (map[pipeline.Unit]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[pipeline.Unit]time.Time, len(s.results[stage]))
	for unit, rec := range s.results[stage] {
		out[unit] = rec.completedAt
	}
	return out, nil
}

func (s *Store) RecordResult(ctx context.Context, stage string, unit pipeline.Unit, payload []byte, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.results[stage]
	if m == nil {
		m = make(map[pipeline.Unit]record)
		s.results[stage] = m
	}
	m[unit] = record{payload: payload, completedAt: completedAt}
	return nil
}

func (s *Store) DropUnits(ctx context.Context, stage string, units []pipeline.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.results[stage]
	for _, unit := range units {
		delete(m, unit)
	}
	return nil
}

func (s *Store) DropAll(ctx context.Context, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, stage)
	return nil
}

// Payload returns the stored payload for a key, for tests and debugging.
func (s *Store) Payload(stage string, unit pipeline.Unit) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.results[stage][unit]
	if !ok {
		return nil, false
	}
	return rec.payload, true
}
