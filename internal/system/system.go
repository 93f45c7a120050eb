package system

import (
	"fmt"
	"sync"

	"github.com/tourneyforge/livebracket/internal/bracket"
)

// System is a bracket-shape plugin: layout is called at hydration.
// When no persisted state exists its matches become the initial state
// (spec §6.2); when a snapshot exists it is called only to rebuild the
// Adapter and its matches are discarded. The returned bracket.Adapter
// is then the sole thing a bracket.State consults for Advance/Rewind
// for the lifetime of that bracket.
type System interface {
	ID() uint64
	Name() string
	DefaultOptions() Options
	// Layout produces the initial, dense-indexed match list and the
	// Adapter instance whose Advance/Rewind understand that list's
	// bracket graph. Deterministic given (entrants, options).
	Layout(entrants []uint64, options Options) ([]bracket.Match, bracket.Adapter)
}

// Registry maps a system_id to its System implementation (spec §9:
// "new shapes register into a system registry keyed by system_id").
type Registry struct {
	mu   sync.RWMutex
	byID map[uint64]System
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint64]System)}
}

func (r *Registry) Register(s System) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID()] = s
}

func (r *Registry) Get(id uint64) (System, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// Default returns a Registry pre-populated with the two shapes the
// spec requires at minimum.
func Default() *Registry {
	r := NewRegistry()
	r.Register(&singleElimination{})
	r.Register(&doubleElimination{})
	return r
}

// --- shared bracket-graph plumbing used by both shapes ---

// feedTarget names the (match, side) a result is written into.
type feedTarget struct {
	match int
	side  int
}

// feedSpec is, per match index, where that match's winner and (if
// applicable) loser propagate to. Built once at Layout time and held
// by the adapter for the bracket's lifetime — not part of the
// wire-visible bracket.Match list (spec §4.3: "stored as part of the
// SystemAdapter instance").
type feedSpec struct {
	winnerTo *feedTarget
	loserTo  *feedTarget
}

// graphAdapter is the common bracket.Adapter implementation shared by
// every shape in this package: Advance/Rewind only need the feed
// table, not shape-specific logic.
type graphAdapter struct {
	feeds []feedSpec
}

func newGraphAdapter(n int) *graphAdapter {
	return &graphAdapter{feeds: make([]feedSpec, n)}
}

func (a *graphAdapter) setWinnerFeed(from, toMatch, toSide int) {
	a.feeds[from].winnerTo = &feedTarget{match: toMatch, side: toSide}
}

func (a *graphAdapter) setLoserFeed(from, toMatch, toSide int) {
	a.feeds[from].loserTo = &feedTarget{match: toMatch, side: toSide}
}

// Advance implements bracket.Adapter. It reads the just-written
// winner flag off matches[index] and writes the winning (and, if a
// loser feed is configured, the losing) entrant into their downstream
// targets.
func (a *graphAdapter) Advance(matches []bracket.Match, index int) []bracket.Edit {
	if index < 0 || index >= len(a.feeds) {
		return nil
	}
	m := matches[index]
	winSide, loseSide := -1, -1
	for side := 0; side < 2; side++ {
		if m.Entrants[side].Kind == bracket.SpotEntrant && m.Entrants[side].Data.Winner {
			winSide = side
		}
	}
	if winSide == -1 {
		return nil
	}
	loseSide = 1 - winSide

	var edits []bracket.Edit
	f := a.feeds[index]
	if f.winnerTo != nil {
		edits = append(edits, writeEntrant(matches, *f.winnerTo, m.Entrants[winSide].Index))
	}
	if f.loserTo != nil && m.Entrants[loseSide].Kind == bracket.SpotEntrant {
		edits = append(edits, writeEntrant(matches, *f.loserTo, m.Entrants[loseSide].Index))
	}
	return edits
}

func writeEntrant(matches []bracket.Match, t feedTarget, entrantIndex uint64) bracket.Edit {
	target := &matches[t.match]
	target.Entrants[t.side] = bracket.Entrant(entrantIndex)
	matches[t.match] = *target
	return bracket.Edit{Index: t.match, Match: *target}
}

// Rewind implements bracket.Adapter. It walks every downstream target
// fed (directly or transitively) by index, clearing the fed slot back
// to Tbd and zeroing scores on the rest of that match, continuing
// recursively since a match whose input became Tbd can no longer carry
// a valid winner of its own. Already-Tbd targets are a no-op, making
// repeated Reset calls idempotent (spec §8 property 8).
func (a *graphAdapter) Rewind(matches []bracket.Match, index int) []bracket.Edit {
	if index < 0 || index >= len(a.feeds) {
		return nil
	}
	var edits []bracket.Edit
	visited := make(map[int]bool)
	var walk func(i int)
	walk = func(i int) {
		if i < 0 || i >= len(a.feeds) {
			return
		}
		f := a.feeds[i]
		if f.winnerTo != nil {
			if e, changed := clearSlot(matches, *f.winnerTo); changed {
				edits = append(edits, e)
				if !visited[f.winnerTo.match] {
					visited[f.winnerTo.match] = true
					walk(f.winnerTo.match)
				}
			}
		}
		if f.loserTo != nil {
			if e, changed := clearSlot(matches, *f.loserTo); changed {
				edits = append(edits, e)
				if !visited[f.loserTo.match] {
					visited[f.loserTo.match] = true
					walk(f.loserTo.match)
				}
			}
		}
	}
	walk(index)
	return edits
}

func clearSlot(matches []bracket.Match, t feedTarget) (bracket.Edit, bool) {
	target := &matches[t.match]
	if target.Entrants[t.side].Kind == bracket.SpotTbd {
		return bracket.Edit{}, false
	}
	target.Entrants[t.side] = bracket.Tbd()
	for side := 0; side < 2; side++ {
		if target.Entrants[side].Kind == bracket.SpotEntrant {
			target.Entrants[side].Data = bracket.EntrantScore{}
		}
	}
	matches[t.match] = *target
	return bracket.Edit{Index: t.match, Match: *target}, true
}

// nextPow2 returns the smallest power of two >= n (n >= 1).
func nextPow2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

// seedSlots pads entrants with Empty byes up to target length and
// returns the slots in bracket-seeding order (consecutive pairing:
// spec only requires the pairing be deterministic given (entrants,
// options), not any particular seeding convention).
func seedSlots(entrants []uint64, target int) []bracket.EntrantSpot {
	slots := make([]bracket.EntrantSpot, target)
	for i := 0; i < target; i++ {
		if i < len(entrants) {
			slots[i] = bracket.Entrant(entrants[i])
		} else {
			slots[i] = bracket.Empty()
		}
	}
	return slots
}

func validateOptions(sysName string, got Options, allowed map[string]OptionValueKind) {
	for k, v := range got {
		if want, ok := allowed[k]; !ok || want != v.Kind {
			panic(fmt.Sprintf("system %s: invalid option %q", sysName, k))
		}
	}
}
