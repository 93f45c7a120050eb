// Package bracket holds the authoritative in-memory state for a single
// bracket: the match list, its node types, and the mutation operations
// (snapshot/update/reset) a LiveBracket actor drives. See spec §3 and
// §4.3.
package bracket

// EntrantScore is the mutable payload of a playable EntrantSpot.
// Invariant: in a two-node Match, at most one side has Winner set.
type EntrantScore struct {
	Score  uint64
	Winner bool
}

// SpotKind discriminates the three EntrantSpot variants.
type SpotKind uint8

const (
	SpotEmpty   SpotKind = 0 // bye: terminal, never wins, never advances an opponent
	SpotTbd     SpotKind = 1 // placeholder, not playable
	SpotEntrant SpotKind = 2 // playable
)

// EntrantSpot is the tagged sum occupying one side of a Match.
type EntrantSpot struct {
	Kind  SpotKind
	Index uint64 // valid only when Kind == SpotEntrant
	Data  EntrantScore
}

func Empty() EntrantSpot { return EntrantSpot{Kind: SpotEmpty} }
func Tbd() EntrantSpot   { return EntrantSpot{Kind: SpotTbd} }
func Entrant(index uint64) EntrantSpot {
	return EntrantSpot{Kind: SpotEntrant, Index: index}
}

// Match is a pairing of two EntrantSpots. The order of the two
// positions is stable for the lifetime of the bracket; the core never
// swaps sides.
type Match struct {
	Entrants [2]EntrantSpot
}

// Clone returns a deep copy (Match has no reference fields today, but
// Clone exists so callers never need to know that).
func (m Match) Clone() Match { return m }

// CloneMatches deep-copies a slice of Match for snapshot isolation.
func CloneMatches(in []Match) []Match {
	out := make([]Match, len(in))
	copy(out, in)
	return out
}

// Edit is one applied mutation to a single match, as returned by
// BracketState.update/reset and broadcast to subscribers (spec §4.3,
// §4.4: "one event per applied edit").
type Edit struct {
	Index int
	Match Match
}
