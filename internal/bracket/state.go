package bracket

import (
	"fmt"

	"github.com/pkg/errors"
)

// Adapter is the bracket-shape capability BracketState delegates
// advancement/rewind decisions to (spec §4.3's SystemAdapter). It is
// declared here, at the consumer, so package system can implement it
// without bracket importing system.
type Adapter interface {
	// Advance computes the cascaded edits that follow from the match
	// at index having just had its winner set. Pure function of the
	// current matches and the changed index.
	Advance(matches []Match, index int) []Edit
	// Rewind computes the cascaded edits that follow from the match
	// at index having just been cleared back to an unplayed state.
	Rewind(matches []Match, index int) []Edit
}

// State is the authoritative in-memory state for one bracket. It is
// mutated only by its owner's single serial executor (spec §5); State
// itself holds no lock.
type State struct {
	matches []Match
	adapter Adapter
}

// New wraps an already-laid-out match list (e.g. freshly produced by
// system.Adapter.Layout, or hydrated from a Store snapshot).
func New(matches []Match, adapter Adapter) *State {
	return &State{matches: CloneMatches(matches), adapter: adapter}
}

// Snapshot returns a deep copy of all matches in stable index order.
func (s *State) Snapshot() []Match {
	return CloneMatches(s.matches)
}

// Len reports the number of matches.
func (s *State) Len() int { return len(s.matches) }

// Update applies a score/winner write to the match at index, cascading
// through the adapter's Advance rule whenever exactly one side's winner
// flag is set in nodes (whether or not it was already set). Returns the
// full list of edits applied — the originating match first, then any cascaded downstream edits —
// per spec §4.3.
//
// Winner policy (spec §9 open question (a), resolved): two winners is
// rejected as Proto; zero winners is accepted unconditionally as a
// score-only update with no advancement, regardless of score totals.
func (s *State) Update(index uint64, nodes [2]EntrantScore) ([]Edit, error) {
	if index >= uint64(len(s.matches)) {
		return nil, errors.Wrapf(ErrProto, "match index %d out of range (len=%d)", index, len(s.matches))
	}
	if nodes[0].Winner && nodes[1].Winner {
		return nil, errors.Wrap(ErrProto, "both sides of update marked winner")
	}

	i := int(index)
	m := &s.matches[i]
	for side := 0; side < 2; side++ {
		if m.Entrants[side].Kind == SpotEntrant {
			m.Entrants[side].Data = nodes[side]
		}
	}

	edits := []Edit{{Index: i, Match: m.Clone()}}

	if nodes[0].Winner != nodes[1].Winner {
		if s.adapter != nil {
			cascaded := s.adapter.Advance(s.matches, i)
			for _, e := range cascaded {
				if e.Index < 0 || e.Index >= len(s.matches) {
					continue
				}
				s.matches[e.Index] = e.Match
				edits = append(edits, Edit{Index: e.Index, Match: e.Match.Clone()})
			}
		}
	}
	return edits, nil
}

// Reset clears scores and the winner flag on the target match and
// propagates Tbd downstream through the adapter's Rewind rule. Calling
// Reset twice in a row is idempotent: the second call observes a
// target match already at its zeroed state and an adapter whose
// Rewind of an already-rewound match returns no further edits (spec
// §8 property 8).
func (s *State) Reset(index uint64) ([]Edit, error) {
	if index >= uint64(len(s.matches)) {
		return nil, errors.Wrapf(ErrProto, "match index %d out of range (len=%d)", index, len(s.matches))
	}
	i := int(index)
	m := &s.matches[i]
	for side := 0; side < 2; side++ {
		if m.Entrants[side].Kind == SpotEntrant {
			m.Entrants[side].Data = EntrantScore{}
		}
	}

	edits := []Edit{{Index: i, Match: m.Clone()}}
	if s.adapter != nil {
		cascaded := s.adapter.Rewind(s.matches, i)
		for _, e := range cascaded {
			if e.Index < 0 || e.Index >= len(s.matches) {
				continue
			}
			s.matches[e.Index] = e.Match
			edits = append(edits, Edit{Index: e.Index, Match: e.Match.Clone()})
		}
	}
	return edits, nil
}

func (s State) String() string {
	return fmt.Sprintf("bracket.State{matches=%d}", len(s.matches))
}
