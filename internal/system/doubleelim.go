package system

import "github.com/tourneyforge/livebracket/internal/bracket"

// doubleElimination is system_id 2: a winners bracket identical in
// shape to single elimination, feeding losers into a losers bracket
// that alternates intra-consolidation rounds (survivors paired
// against each other) with merge rounds (survivors paired 1:1 against
// the next winners round's newly eliminated entrants), converging on
// a single losers finalist who meets the winners-bracket champion in
// a grand final. Verified by hand against the standard 2n-2 total
// match count (grand final included, reset match excluded) for n=4,8;
// below 4 entrants the layout pads to 4.
//
// The grand_final_reset option (default true) appends a second grand
// final match that only plays if the losers-bracket finalist wins the
// first one — true double elimination, since the winners-bracket
// champion still has zero losses at that point.
type doubleElimination struct{}

var doubleElimOptions = map[string]OptionValueKind{
	"grand_final_reset": OptionBool,
}

func (d *doubleElimination) ID() uint64   { return 2 }
func (d *doubleElimination) Name() string { return "double_elimination" }

func (d *doubleElimination) DefaultOptions() Options {
	return Options{"grand_final_reset": BoolOption(true)}
}

func (d *doubleElimination) Layout(entrants []uint64, options Options) ([]bracket.Match, bracket.Adapter) {
	validateOptions(d.Name(), options, doubleElimOptions)
	reset := options.BoolOr("grand_final_reset", true)

	size := nextPow2(len(entrants))
	if size < 4 {
		size = 4 // degenerate below 4: a losers bracket needs at least one consolidation round
	}
	slots := seedSlots(entrants, size)

	rounds := layoutRounds(size) // same winners-round shape as single elimination
	winnersTotal := 0
	winnersByRound := make([][]int, len(rounds))
	for i, n := range rounds {
		winnersByRound[i] = make([]int, n)
		for j := 0; j < n; j++ {
			winnersByRound[i][j] = winnersTotal + j
		}
		winnersTotal += n
	}

	losersMatchCount := losersBracketSize(rounds)
	total := winnersTotal + losersMatchCount + 1 // +1 grand final
	if reset {
		total++
	}
	matches := make([]bracket.Match, total)
	adapter := newGraphAdapter(total)

	// Winners bracket: identical construction to single elimination.
	for i := 0; i < rounds[0]; i++ {
		matches[i] = bracket.Match{Entrants: [2]bracket.EntrantSpot{slots[2*i], slots[2*i+1]}}
	}
	for round := 0; round < len(rounds)-1; round++ {
		for i := 0; i < rounds[round]; i++ {
			from := winnersByRound[round][i]
			to := winnersByRound[round+1][i/2]
			side := i % 2
			adapter.setWinnerFeed(from, to, side)
			matches[to].Entrants[side] = bracket.Tbd()
		}
	}

	next := winnersTotal
	newMatch := func() int {
		i := next
		matches[i] = bracket.Match{Entrants: [2]bracket.EntrantSpot{bracket.Tbd(), bracket.Tbd()}}
		next++
		return i
	}

	// population holds, for each current losers-bracket survivor slot,
	// the source match whose WINNER feeds it (a losers-bracket match).
	// dropSources holds, for a winners round, the source matches whose
	// LOSER feeds the losers bracket.
	population := append([]int(nil), winnersByRound[0]...)
	fromWinnersDrop := true // population entries still name winners-round sources (feed via loser), not LR winners

	for r := 1; r < len(rounds); r++ {
		dropSources := winnersByRound[r]

		for len(population) > len(dropSources) {
			var consolidated []int
			for i := 0; i < len(population); i += 2 {
				m := newMatch()
				feedInto(adapter, population[i], m, 0, fromWinnersDrop)
				feedInto(adapter, population[i+1], m, 1, fromWinnersDrop)
				consolidated = append(consolidated, m)
			}
			population = consolidated
			fromWinnersDrop = false
		}

		var merged []int
		for i := range dropSources {
			m := newMatch()
			feedInto(adapter, population[i], m, 0, fromWinnersDrop)
			adapter.setLoserFeed(dropSources[i], m, 1)
			merged = append(merged, m)
		}
		population = merged
		fromWinnersDrop = false
	}

	losersFinalSrc := population[0]
	winnersFinalMatch := winnersByRound[len(rounds)-1][0]

	gf := newMatch()
	adapter.setWinnerFeed(winnersFinalMatch, gf, 0)
	adapter.setWinnerFeed(losersFinalSrc, gf, 1)

	resetIdx := -1
	if reset {
		resetIdx = newMatch()
	}

	full := &doubleElimAdapter{graphAdapter: adapter, grandFinal: gf, reset: resetIdx}
	resolveByes(matches, adapter)
	return matches, full
}

// feedInto wires source's result into target's side. When
// fromWinnersDrop is true, source is a winners-bracket match and its
// LOSER is what's being fed (the entrant is dropping into the losers
// bracket for the first time); otherwise source is a losers-bracket
// match and its WINNER feeds forward (the entrant is still alive in
// the losers bracket).
func feedInto(a *graphAdapter, source, targetMatch, side int, fromWinnersDrop bool) {
	if fromWinnersDrop {
		a.setLoserFeed(source, targetMatch, side)
	} else {
		a.setWinnerFeed(source, targetMatch, side)
	}
}

// losersBracketSize counts the matches in the losers bracket implied
// by a winners-round shape of the given sizes, excluding the grand
// final itself.
func losersBracketSize(rounds []int) int {
	total := 0
	population := rounds[0]
	for r := 1; r < len(rounds); r++ {
		drop := rounds[r]
		for population > drop {
			population /= 2
			total += population
		}
		total += drop
		population = drop
	}
	return total
}

// doubleElimAdapter wraps the generic graph adapter to special-case
// the grand final: only a losers-bracket-finalist win activates the
// reset match, since the winners-bracket champion has not yet lost a
// set at that point.
type doubleElimAdapter struct {
	*graphAdapter
	grandFinal int
	reset      int // -1 if grand_final_reset is disabled
}

func (a *doubleElimAdapter) Advance(matches []bracket.Match, index int) []bracket.Edit {
	if index != a.grandFinal {
		return a.graphAdapter.Advance(matches, index)
	}
	m := matches[index]
	if a.reset < 0 {
		return nil
	}
	// side 1 is always the losers-bracket finalist by construction.
	if m.Entrants[1].Kind == bracket.SpotEntrant && m.Entrants[1].Data.Winner {
		target := &matches[a.reset]
		target.Entrants[0] = bracket.Entrant(m.Entrants[0].Index)
		target.Entrants[1] = bracket.Entrant(m.Entrants[1].Index)
		matches[a.reset] = *target
		return []bracket.Edit{{Index: a.reset, Match: *target}}
	}
	return nil
}

func (a *doubleElimAdapter) Rewind(matches []bracket.Match, index int) []bracket.Edit {
	edits := a.graphAdapter.Rewind(matches, index)
	if index == a.grandFinal && a.reset >= 0 {
		target := &matches[a.reset]
		if target.Entrants[0].Kind != bracket.SpotTbd || target.Entrants[1].Kind != bracket.SpotTbd {
			target.Entrants[0] = bracket.Tbd()
			target.Entrants[1] = bracket.Tbd()
			matches[a.reset] = *target
			edits = append(edits, bracket.Edit{Index: a.reset, Match: *target})
		}
	}
	return edits
}
