// Package live implements the spec's LiveBracket/LiveRegistry
// collaborators (§4.4, §4.5): the actor that owns one bracket's
// authoritative state and fans its edits out to subscribers, and the
// refcounted registry that hydrates/evicts those actors on demand.
package live

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tourneyforge/livebracket/internal/bracket"
	"github.com/tourneyforge/livebracket/internal/store"
	"github.com/tourneyforge/livebracket/internal/system"
	"github.com/tourneyforge/livebracket/internal/wire"
)

// ErrTooManySubscribers is returned by Subscribe once a bracket is at
// its configured subscriber cap (spec §4.8 live.max_subscribers_per_bracket).
var ErrTooManySubscribers = errors.New("live: bracket has reached its subscriber limit")

// Config bundles the per-bracket tunables sourced from deployment
// configuration (spec §4.8, live.*).
type Config struct {
	SubscriberQueueCap   int
	MaxSubscribers       int
	StoreRetryMaxElapsed time.Duration
}

// LiveBracket is the actor owning one bracket's authoritative state
// and its subscriber fan-out (spec §4.4). All mutation — command
// application, subscribe/unsubscribe, write-completion bookkeeping —
// runs as a closure submitted to a single channel, so the embedded
// bracket.State and the subscriber set never need their own lock
// (spec §5: each bracket has exactly one serial executor).
type LiveBracket struct {
	key   store.BracketKey
	state *bracket.State

	systemID      uint64
	options       system.Options
	entrantsOrder []uint64

	cfg     Config
	store   store.Store
	backend string
	log     *zap.Logger
	rec     Recorder

	cmds chan func()
	done chan struct{}

	subs    map[SubscriberID]*Subscriber
	nextSub SubscriberID

	writeInFlight bool
	dirty         bool

	// onFatal is invoked, at most once, after a store write exhausts its
	// retry ceiling (spec §7: "escalating to Internal broadcast and
	// eviction"). The registry supplies it so the bracket can trigger
	// its own removal without holding a reference back to the registry
	// that owns it. Nil in tests that construct a LiveBracket directly.
	onFatal func()

	closeOnce sync.Once
}

// New constructs a LiveBracket from an already-laid-out match list
// (fresh system.Layout, or a Store hydration) and starts its actor
// loop. store may be nil (no persistence, e.g. in tests).
func New(
	key store.BracketKey,
	matches []bracket.Match,
	adapter bracket.Adapter,
	systemID uint64,
	options system.Options,
	entrantsOrder []uint64,
	cfg Config,
	st store.Store,
	backend string,
	log *zap.Logger,
	rec Recorder,
	onFatal func(),
) *LiveBracket {
	if cfg.SubscriberQueueCap <= 0 {
		cfg.SubscriberQueueCap = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	b := &LiveBracket{
		key:           key,
		state:         bracket.New(matches, adapter),
		systemID:      systemID,
		options:       options,
		entrantsOrder: entrantsOrder,
		cfg:           cfg,
		store:         st,
		backend:       backend,
		log:           log,
		rec:           rec,
		cmds:          make(chan func(), 16),
		done:          make(chan struct{}),
		subs:          make(map[SubscriberID]*Subscriber),
		onFatal:       onFatal,
	}
	go b.run()
	return b
}

func (b *LiveBracket) run() {
	for {
		select {
		case fn := <-b.cmds:
			fn()
		case <-b.done:
			// Drain whatever is already queued so a do() call racing
			// with Close never blocks forever.
			for {
				select {
				case fn := <-b.cmds:
					fn()
				default:
					return
				}
			}
		}
	}
}

// do submits fn to the actor loop and blocks until it has run, or
// until the bracket closes without having run it (e.g. a fatal write
// failure evicted this bracket while a session was still dispatching
// a command against it). A fn skipped this way leaves its captured
// output variables at their zero value.
func (b *LiveBracket) do(fn func()) {
	reply := make(chan struct{})
	select {
	case b.cmds <- func() { fn(); close(reply) }:
	case <-b.done:
		return
	}
	select {
	case <-reply:
	case <-b.done:
	}
}

// Close stops the actor loop. Safe to call any number of times (the
// registry's normal Release path and a fatal write-escalation path
// can both race to close the same bracket); only the first call acts.
func (b *LiveBracket) Close() { b.closeOnce.Do(func() { close(b.done) }) }

// Key reports the (tournament, bracket) this actor serves.
func (b *LiveBracket) Key() store.BracketKey { return b.key }

// Subscribe registers a new subscriber and returns its ID, its
// mailbox, and the current snapshot as the SyncStateEvent a fresh
// subscriber always observes first (spec §4.4/§4.6).
func (b *LiveBracket) Subscribe(context.Context) (SubscriberID, *Subscriber, wire.SyncStateEvent, error) {
	var (
		id      SubscriberID
		sub     *Subscriber
		snap    wire.SyncStateEvent
		tooMany bool
	)
	b.do(func() {
		if b.cfg.MaxSubscribers > 0 && len(b.subs) >= b.cfg.MaxSubscribers {
			tooMany = true
			return
		}
		b.nextSub++
		id = b.nextSub
		sub = newSubscriber(id, b.cfg.SubscriberQueueCap)
		b.subs[id] = sub
		snap = wire.SyncStateEvent{Matches: b.state.Snapshot()}
		if b.rec != nil {
			b.rec.SetSubscribers(b.key.TournamentID, b.key.BracketID, len(b.subs))
		}
	})
	if tooMany {
		return 0, nil, wire.SyncStateEvent{}, ErrTooManySubscribers
	}
	return id, sub, snap, nil
}

// Unsubscribe removes a subscriber. A no-op if id is unknown (already
// removed), so callers may call it unconditionally on disconnect.
func (b *LiveBracket) Unsubscribe(id SubscriberID) {
	b.do(func() {
		delete(b.subs, id)
		if b.rec != nil {
			b.rec.SetSubscribers(b.key.TournamentID, b.key.BracketID, len(b.subs))
		}
	})
}

// SubscriberCount reports the current number of live subscribers.
func (b *LiveBracket) SubscriberCount() int {
	var n int
	b.do(func() { n = len(b.subs) })
	return n
}

// SyncState returns the current full snapshot (spec §4.2 SyncState;
// also used by the registry to re-derive the stored envelope).
func (b *LiveBracket) SyncState() wire.SyncStateEvent {
	var snap wire.SyncStateEvent
	b.do(func() { snap = wire.SyncStateEvent{Matches: b.state.Snapshot()} })
	return snap
}

// UpdateMatch applies a score/winner write and broadcasts the
// resulting edits — the originating UpdateMatch, then any cascaded
// ones — to every current subscriber (spec §4.3, §8 S4).
func (b *LiveBracket) UpdateMatch(index uint64, nodes [2]bracket.EntrantScore) error {
	var outErr error
	b.do(func() {
		start := time.Now()
		edits, err := b.state.Update(index, nodes)
		if b.rec != nil {
			b.rec.ObserveCommand("update_match", time.Since(start))
		}
		if err != nil {
			outErr = err
			return
		}
		for _, e := range edits {
			b.broadcast(wire.UpdateMatchEvent{Index: uint64(e.Index), Nodes: scoreNodes(e.Match)})
		}
		b.scheduleWriteLocked()
	})
	return outErr
}

// ResetMatch clears the target match and broadcasts ResetMatch,
// followed by an UpdateMatch for every downstream match the rewind
// cascade touched (spec §8 S6).
func (b *LiveBracket) ResetMatch(index uint64) error {
	var outErr error
	b.do(func() {
		start := time.Now()
		edits, err := b.state.Reset(index)
		if b.rec != nil {
			b.rec.ObserveCommand("reset_match", time.Since(start))
		}
		if err != nil {
			outErr = err
			return
		}
		for i, e := range edits {
			if i == 0 {
				b.broadcast(wire.ResetMatchEvent{Index: uint64(e.Index)})
				continue
			}
			b.broadcast(wire.UpdateMatchEvent{Index: uint64(e.Index), Nodes: scoreNodes(e.Match)})
		}
		b.scheduleWriteLocked()
	})
	return outErr
}

// broadcast pushes evt onto every current subscriber's mailbox. Must
// be called from inside the actor loop.
func (b *LiveBracket) broadcast(evt wire.Event) {
	for _, sub := range b.subs {
		if sub.push(evt) {
			if b.rec != nil {
				b.rec.IncDropped(b.key.TournamentID, b.key.BracketID)
				b.rec.IncLagged(b.key.TournamentID, b.key.BracketID)
			}
		}
	}
}

// scoreNodes extracts the wire-level score pair from a Match. Sides
// that are not SpotEntrant (Empty/Tbd) carry a zero EntrantScore: the
// wire protocol's UpdateMatch body is score-only by design (spec §4.2
// table — the event body is "same as command"), so a cascaded edit
// that turns a Tbd slot into the new round's Entrant is communicated
// as this same score-only shape. A subscriber that needs the newly
// seated entrant's identity (not just that the slot is now live)
// re-derives it from the SyncState it already holds plus the upstream
// UpdateMatch it just received naming that match's winner, or falls
// back to requesting a fresh SyncState.
func scoreNodes(m bracket.Match) [2]bracket.EntrantScore {
	var out [2]bracket.EntrantScore
	for i := 0; i < 2; i++ {
		if m.Entrants[i].Kind == bracket.SpotEntrant {
			out[i] = m.Entrants[i].Data
		}
	}
	return out
}

// scheduleWriteLocked marks the bracket dirty and, if no write is
// already in flight, starts one. Must be called from inside the
// actor loop (spec §4.4: "writes are coalesced — if a write is in
// flight, mark dirty and re-enqueue one follow-up write on
// completion").
func (b *LiveBracket) scheduleWriteLocked() {
	if b.store == nil {
		return
	}
	if b.writeInFlight {
		b.dirty = true
		return
	}
	b.writeInFlight = true
	b.startWrite()
}

func (b *LiveBracket) startWrite() {
	snap := &store.StoredBracket{
		SystemID:      b.systemID,
		Options:       b.options,
		EntrantsOrder: append([]uint64(nil), b.entrantsOrder...),
		Matches:       b.state.Snapshot(),
		UpdatedAt:     time.Now().UTC(),
	}
	key, st, backendName, rec, log := b.key, b.store, b.backend, b.rec, b.log
	maxElapsed := b.cfg.StoreRetryMaxElapsed

	go func() {
		bo := backoff.NewExponentialBackOff()
		if maxElapsed > 0 {
			bo.MaxElapsedTime = maxElapsed
		}
		start := time.Now()
		err := backoff.Retry(func() error {
			return st.SaveBracketState(context.Background(), key, snap)
		}, bo)
		if rec != nil {
			rec.ObserveStoreWrite(backendName, time.Since(start))
			if err != nil {
				rec.IncStoreWriteFailure(backendName)
			}
		}
		if err != nil {
			log.Error("bracket store write failed, escalating to internal error and eviction",
				zap.Error(err),
				zap.Uint64("tournament_id", key.TournamentID),
				zap.Uint64("bracket_id", key.BracketID))
			// The retry ceiling is exhausted: per spec §7, this bracket's
			// state can no longer be durably persisted, so every current
			// subscriber is told and the actor is retired rather than
			// left running with writes that will never succeed.
			b.do(func() { b.broadcast(wire.ErrorEvent{Kind: wire.ErrKindInternal}) })
			if b.onFatal != nil {
				b.onFatal()
			}
			return
		}
		b.do(func() {
			b.writeInFlight = false
			if b.dirty {
				b.dirty = false
				b.scheduleWriteLocked()
			}
		})
	}()
}

// Flush blocks until any in-flight or pending write has completed, or
// ctx is done. Call before Close when evicting from the registry so a
// final dirty write is not lost.
func (b *LiveBracket) Flush(ctx context.Context) {
	for {
		var pending bool
		b.do(func() { pending = b.writeInFlight || b.dirty })
		if !pending {
			return
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
}
