package system

import "github.com/tourneyforge/livebracket/internal/bracket"

// singleElimination is system_id 1: a single bracket of best-of-one
// matches, losers eliminated immediately. Supports one option,
// third_place_match, which routes the two semifinal losers into a
// bonus consolation match appended after the final.
//
// Match indexing: round 0 holds the first round (len(entrants rounded
// up to a power of two)/2 matches), each following round holds half as
// many, ending at index len(matches)-1 (or -2 when a third-place match
// is appended, which always occupies the final slot).
type singleElimination struct{}

var singleElimOptions = map[string]OptionValueKind{
	"third_place_match": OptionBool,
}

func (s *singleElimination) ID() uint64   { return 1 }
func (s *singleElimination) Name() string { return "single_elimination" }

func (s *singleElimination) DefaultOptions() Options {
	return Options{"third_place_match": BoolOption(false)}
}

func (s *singleElimination) Layout(entrants []uint64, options Options) ([]bracket.Match, bracket.Adapter) {
	validateOptions(s.Name(), options, singleElimOptions)
	thirdPlace := options.BoolOr("third_place_match", false)

	size := nextPow2(len(entrants))
	if size < 2 {
		size = 2
	}
	slots := seedSlots(entrants, size)

	rounds := layoutRounds(size)
	matches, byRoundStart := allocMatches(rounds, thirdPlace)
	adapter := newGraphAdapter(len(matches))

	// Round 0: seed from slots directly, two per match.
	for i := 0; i < rounds[0]; i++ {
		matches[i] = bracket.Match{Entrants: [2]bracket.EntrantSpot{slots[2*i], slots[2*i+1]}}
	}

	// Wire winner feeds from every round into the next, and record
	// which round-0 matches are semifinals for the third-place feed.
	var semifinals []int
	for round := 0; round < len(rounds)-1; round++ {
		start := byRoundStart[round]
		nextStart := byRoundStart[round+1]
		for i := 0; i < rounds[round]; i++ {
			from := start + i
			to := nextStart + i/2
			side := i % 2
			adapter.setWinnerFeed(from, to, side)
			matches[to].Entrants[side] = bracket.Tbd()
		}
		if round == len(rounds)-2 {
			for i := 0; i < rounds[round]; i++ {
				semifinals = append(semifinals, start+i)
			}
		}
	}

	if thirdPlace && len(semifinals) == 2 {
		thirdPlaceIdx := len(matches) - 1
		matches[thirdPlaceIdx] = bracket.Match{Entrants: [2]bracket.EntrantSpot{bracket.Tbd(), bracket.Tbd()}}
		adapter.setLoserFeed(semifinals[0], thirdPlaceIdx, 0)
		adapter.setLoserFeed(semifinals[1], thirdPlaceIdx, 1)
	}

	resolveByes(matches, adapter)
	return matches, adapter
}

// layoutRounds returns the match count of each winners-bracket round
// for a size-entrant (power of two) single-elimination tree.
func layoutRounds(size int) []int {
	var rounds []int
	for n := size / 2; n >= 1; n /= 2 {
		rounds = append(rounds, n)
	}
	return rounds
}

func allocMatches(rounds []int, thirdPlace bool) ([]bracket.Match, []int) {
	total := 0
	starts := make([]int, len(rounds))
	for i, n := range rounds {
		starts[i] = total
		total += n
	}
	if thirdPlace {
		total++
	}
	return make([]bracket.Match, total), starts
}

// resolveByes eagerly propagates any round-0 bye (one side Empty)
// through the adapter as if its absent opponent had already "won" by
// forfeit — spec §4.3: "byes are resolved before a bracket's matches
// are first exposed to subscribers, not through the live Advance
// cascade, since Empty never generates an UpdateMatch event."
func resolveByes(matches []bracket.Match, adapter *graphAdapter) {
	changed := true
	for changed {
		changed = false
		for i := range matches {
			m := matches[i]
			var realSide = -1
			emptyCount, tbdOrRealCount := 0, 0
			for side := 0; side < 2; side++ {
				switch m.Entrants[side].Kind {
				case bracket.SpotEmpty:
					emptyCount++
				case bracket.SpotEntrant:
					realSide = side
					tbdOrRealCount++
				case bracket.SpotTbd:
					tbdOrRealCount++
				}
			}
			if emptyCount == 1 && realSide != -1 && tbdOrRealCount == 1 {
				f := adapter.feeds[i]
				if f.winnerTo == nil {
					continue
				}
				target := &matches[f.winnerTo.match]
				if target.Entrants[f.winnerTo.side].Kind == bracket.SpotEntrant {
					continue
				}
				target.Entrants[f.winnerTo.side] = bracket.Entrant(m.Entrants[realSide].Index)
				changed = true
			}
		}
	}
}
