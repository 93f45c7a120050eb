// Package store declares the durable-persistence collaborator
// (spec §2 item 5, §6.2) and the shared envelope its adapters encode
// bracket snapshots with. The bracket/live/system packages never
// import an adapter directly — they depend on the Store interface
// only, so the backend is a deployment choice (spec §9: "storage
// backend is pluggable behind `Store`").
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/tourneyforge/livebracket/internal/bracket"
	"github.com/tourneyforge/livebracket/internal/system"
)

// ErrNotFound is returned by LoadBracketState/LoadBracketSpec when no
// row exists for the given key. Callers (LiveRegistry hydration) treat
// a missing *state* as "lay out a fresh bracket from its spec", not as
// a failure; a missing *spec* means the bracket was never registered.
var ErrNotFound = errors.New("store: bracket snapshot not found")

// BracketKey addresses one bracket within one tournament (spec §4.4's
// subscription key shape).
type BracketKey struct {
	TournamentID uint64
	BracketID    uint64
}

// BracketSpec is the registration record for a bracket: which system
// drives it, its option overrides, and the entrant seeding order.
// Written once by the out-of-scope tournament/entrant CRUD layer
// (spec §1) when a bracket is created, and read by LiveRegistry to lay
// out the very first live state the first time anyone subscribes —
// there is no other source for "which system, which entrants" once a
// bracket has no snapshot yet.
type BracketSpec struct {
	SystemID      uint64
	Options       system.Options
	EntrantsOrder []uint64
}

// StoredBracket is the durable tuple a snapshot round-trips through
// (spec §3 supplement): enough to reconstruct both the bracket.State
// and the system.Adapter that drives it, without replaying history.
type StoredBracket struct {
	SystemID      uint64
	Options       system.Options
	EntrantsOrder []uint64
	Matches       []bracket.Match
	UpdatedAt     time.Time
}

// Store is the persistence collaborator every adapter implements.
// Implementations must be safe for concurrent use; callers (the
// LiveBracket actor's write-behind path) may call Save from multiple
// goroutines across different keys concurrently, though never
// concurrently for the *same* key (spec §5: per-bracket serial
// executor).
type Store interface {
	LoadBracketState(ctx context.Context, key BracketKey) (*StoredBracket, error)
	SaveBracketState(ctx context.Context, key BracketKey, snap *StoredBracket) error

	LoadBracketSpec(ctx context.Context, key BracketKey) (*BracketSpec, error)
	SaveBracketSpec(ctx context.Context, key BracketKey, spec *BracketSpec) error

	// BracketExists reports whether key has been registered (a
	// BracketSpec exists), independent of whether any live state has
	// been written for it yet — registration, not hydration, is what
	// makes a bracket a valid subscription target (spec §6.1's 404).
	BracketExists(ctx context.Context, key BracketKey) (bool, error)
}
