// Package memory provides in-process implementations of storage ports,
// used for tests and for the ":memory:" cache DSN.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/irusland/pyroto/ports"
)

// CacheStore is an in-memory implementation of ports.CacheStore.
type CacheStore struct {
	mu      sync.RWMutex
	modules map[string]ports.CachedModule
	runs    []ports.BuildRun
}

// NewCacheStore creates an empty cache store.
func NewCacheStore() *CacheStore {
	return &CacheStore{
		modules: make(map[string]ports.CachedModule),
	}
}

var _ ports.CacheStore = (*CacheStore)(nil)

// Lookup retrieves the record of one module.
func (s *CacheStore) Lookup(ctx context.Context, module string) (ports.CachedModule, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.modules[module]
	return m, ok, nil
}

// Store inserts or replaces the record of m.Module.
func (s *CacheStore) Store(ctx context.Context, m ports.CachedModule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.modules[m.Module] = m
	return nil
}

// Forget deletes the record of one module.
func (s *CacheStore) Forget(ctx context.Context, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.modules, module)
	return nil
}

// RecordRun stores a finished build run.
func (s *CacheStore) RecordRun(ctx context.Context, run ports.BuildRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.runs {
		if r.ID == run.ID {
			return fmt.Errorf("record run %s: duplicate id", run.ID)
		}
	}
	s.runs = append(s.runs, run)
	return nil
}

// Runs returns up to limit runs, newest first.
func (s *CacheStore) Runs(ctx context.Context, limit int) ([]ports.BuildRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := append([]ports.BuildRun(nil), s.runs...)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit >= 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Len returns the number of cached modules.
func (s *CacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.modules)
}
