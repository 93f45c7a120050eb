// Package memory is an in-process Store adapter: a map guarded by a
// mutex, no durability across restarts. Used by unit tests throughout
// the module and by the `backend: memory` config option for local
// development (spec §9's "memory" backend choice).
package memory

import (
	"context"
	"sync"

	"github.com/tourneyforge/livebracket/internal/bracket"
	"github.com/tourneyforge/livebracket/internal/store"
)

type Store struct {
	mu    sync.RWMutex
	data  map[store.BracketKey]store.StoredBracket
	specs map[store.BracketKey]store.BracketSpec
}

func New() *Store {
	return &Store{
		data:  make(map[store.BracketKey]store.StoredBracket),
		specs: make(map[store.BracketKey]store.BracketSpec),
	}
}

func (s *Store) LoadBracketState(_ context.Context, key store.BracketKey) (*store.StoredBracket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := snap
	out.Matches = append([]bracket.Match(nil), snap.Matches...)
	return &out, nil
}

func (s *Store) SaveBracketState(_ context.Context, key store.BracketKey, snap *store.StoredBracket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *snap
	stored.Matches = append([]bracket.Match(nil), snap.Matches...)
	s.data[key] = stored
	return nil
}

func (s *Store) LoadBracketSpec(_ context.Context, key store.BracketKey) (*store.BracketSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := spec
	out.EntrantsOrder = append([]uint64(nil), spec.EntrantsOrder...)
	return &out, nil
}

func (s *Store) SaveBracketSpec(_ context.Context, key store.BracketKey, spec *store.BracketSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *spec
	stored.EntrantsOrder = append([]uint64(nil), spec.EntrantsOrder...)
	s.specs[key] = stored
	return nil
}

func (s *Store) BracketExists(_ context.Context, key store.BracketKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.specs[key]
	return ok, nil
}
