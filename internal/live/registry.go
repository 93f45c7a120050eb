package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tourneyforge/livebracket/internal/store"
	"github.com/tourneyforge/livebracket/internal/system"
)

// FreshLayout supplies the inputs for laying out a brand-new bracket
// when no Store snapshot exists yet for a key (spec §4.5: "absent
// snapshot lays out a fresh bracket from the caller-supplied entrant
// list and system choice").
type FreshLayout func() (systemID uint64, options system.Options, entrantsOrder []uint64, err error)

type handle struct {
	bracket *LiveBracket
	refs    int
}

// Registry is the refcounted LiveBracket cache (spec §4.5):
// hydrates a bracket (from Store, or fresh layout) on first Acquire,
// shares the same actor across every subsequent Acquire of the same
// key, and evicts once the refcount returns to zero. Concurrent
// first-acquire for the same key coalesces into a single hydration via
// singleflight, so two sessions racing to open the same bracket never
// produce two actors.
type Registry struct {
	mu   sync.Mutex
	live map[store.BracketKey]*handle
	grp  singleflight.Group

	systems *system.Registry
	store   store.Store
	backend string
	cfg     Config
	log     *zap.Logger
	rec     Recorder
}

func NewRegistry(systems *system.Registry, st store.Store, backend string, cfg Config, log *zap.Logger, rec Recorder) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		live:    make(map[store.BracketKey]*handle),
		systems: systems,
		store:   st,
		backend: backend,
		cfg:     cfg,
		log:     log,
		rec:     rec,
	}
}

// Acquire returns the LiveBracket for key, bumping its refcount by
// one. Release must be called exactly once for every successful
// Acquire.
func (r *Registry) Acquire(ctx context.Context, key store.BracketKey, fresh FreshLayout) (*LiveBracket, error) {
	r.mu.Lock()
	if h, ok := r.live[key]; ok {
		h.refs++
		r.mu.Unlock()
		return h.bracket, nil
	}
	r.mu.Unlock()

	v, err, _ := r.grp.Do(groupKey(key), func() (interface{}, error) {
		r.mu.Lock()
		if h, ok := r.live[key]; ok {
			r.mu.Unlock()
			return h.bracket, nil
		}
		r.mu.Unlock()

		b, err := r.hydrate(ctx, key, fresh)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.live[key] = &handle{bracket: b, refs: 0}
		r.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	b := v.(*LiveBracket)

	r.mu.Lock()
	if h, ok := r.live[key]; ok {
		h.refs++
	}
	r.mu.Unlock()
	return b, nil
}

// Release decrements key's refcount; at zero it flushes any pending
// store write and evicts the actor (spec §4.5: eviction only once
// unreferenced).
func (r *Registry) Release(ctx context.Context, key store.BracketKey) {
	r.mu.Lock()
	h, ok := r.live[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	h.refs--
	if h.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.live, key)
	r.mu.Unlock()

	h.bracket.Flush(ctx)
	h.bracket.Close()
}

// Len reports the number of currently hydrated brackets (diagnostics
// only).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *Registry) hydrate(ctx context.Context, key store.BracketKey, fresh FreshLayout) (*LiveBracket, error) {
	snap, err := r.store.LoadBracketState(ctx, key)
	switch {
	case err == nil:
		return r.fromSnapshot(key, snap)
	case errors.Is(err, store.ErrNotFound):
		return r.fromFreshLayout(key, fresh)
	default:
		return nil, errors.Wrap(err, "live: load bracket state")
	}
}

func (r *Registry) fromSnapshot(key store.BracketKey, snap *store.StoredBracket) (*LiveBracket, error) {
	sys, ok := r.systems.Get(snap.SystemID)
	if !ok {
		return nil, errors.Errorf("live: unknown system id %d for bracket %+v", snap.SystemID, key)
	}
	// Layout is a pure function of (entrants order, options): it
	// re-derives the same feed-graph Adapter the snapshot was produced
	// under without needing to re-lay-out match state, which the
	// snapshot already carries authoritatively.
	_, adapter := sys.Layout(snap.EntrantsOrder, snap.Options)
	return New(key, snap.Matches, adapter, snap.SystemID, snap.Options, snap.EntrantsOrder, r.cfg, r.store, r.backend, r.log, r.rec, func() { r.evictFatal(key) }), nil
}

func (r *Registry) fromFreshLayout(key store.BracketKey, fresh FreshLayout) (*LiveBracket, error) {
	if fresh == nil {
		return nil, store.ErrNotFound
	}
	systemID, options, entrantsOrder, err := fresh()
	if err != nil {
		return nil, errors.Wrap(err, "live: fresh layout")
	}
	sys, ok := r.systems.Get(systemID)
	if !ok {
		return nil, errors.Errorf("live: unknown system id %d", systemID)
	}
	merged := system.Merge(sys.DefaultOptions(), options)
	matches, adapter := sys.Layout(entrantsOrder, merged)
	return New(key, matches, adapter, systemID, merged, entrantsOrder, r.cfg, r.store, r.backend, r.log, r.rec, func() { r.evictFatal(key) }), nil
}

// evictFatal removes key's bracket from the registry unconditionally,
// independent of its refcount, and retires its actor (spec §7:
// escalating a write-failure into an Internal broadcast and
// eviction). A subsequent Release from a session that is still
// holding this bracket finds no entry and is a no-op, same as any
// other double-release. The bracket's subscribers already received
// the broadcast Internal error before this runs (bracket.go's
// startWrite), so no further write is attempted — flushing here
// would just retry the same doomed write.
func (r *Registry) evictFatal(key store.BracketKey) {
	r.mu.Lock()
	h, ok := r.live[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.live, key)
	r.mu.Unlock()

	h.bracket.Close()
	r.log.Error("bracket evicted after unrecoverable store write failure",
		zap.Uint64("tournament_id", key.TournamentID),
		zap.Uint64("bracket_id", key.BracketID))
}

func groupKey(key store.BracketKey) string {
	return fmt.Sprintf("%d:%d", key.TournamentID, key.BracketID)
}
