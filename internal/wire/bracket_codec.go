package wire

import "github.com/tourneyforge/livebracket/internal/bracket"

// Codec glue for the domain types in package bracket. Kept separate
// from codec.go (primitive types) and frame.go (command/event sums)
// so each file stays focused on one layer of the protocol.

func WriteEntrantScore(w *Writer, s bracket.EntrantScore) {
	w.WriteU64(s.Score)
	w.WriteBool(s.Winner)
}

func ReadEntrantScore(r *Reader) (bracket.EntrantScore, error) {
	score, err := r.ReadU64()
	if err != nil {
		return bracket.EntrantScore{}, err
	}
	winner, err := r.ReadBool()
	if err != nil {
		return bracket.EntrantScore{}, err
	}
	return bracket.EntrantScore{Score: score, Winner: winner}, nil
}

func WriteEntrantSpot(w *Writer, s bracket.EntrantSpot) {
	w.WriteU8(uint8(s.Kind))
	if s.Kind == bracket.SpotEntrant {
		w.WriteU64(s.Index)
		WriteEntrantScore(w, s.Data)
	}
}

func ReadEntrantSpot(r *Reader) (bracket.EntrantSpot, error) {
	tag, err := r.ReadU8()
	if err != nil {
		return bracket.EntrantSpot{}, err
	}
	switch bracket.SpotKind(tag) {
	case bracket.SpotEmpty:
		return bracket.Empty(), nil
	case bracket.SpotTbd:
		return bracket.Tbd(), nil
	case bracket.SpotEntrant:
		index, err := r.ReadU64()
		if err != nil {
			return bracket.EntrantSpot{}, err
		}
		data, err := ReadEntrantScore(r)
		if err != nil {
			return bracket.EntrantSpot{}, err
		}
		return bracket.EntrantSpot{Kind: bracket.SpotEntrant, Index: index, Data: data}, nil
	default:
		// EntrantSpot only arrives embedded in a SyncState event body
		// this process itself produced (no command carries one), so an
		// unknown tag is always a hard protocol violation, never
		// forward-compatibly skipped.
		return bracket.EntrantSpot{}, ErrInvalidVariant
	}
}

func WriteMatch(w *Writer, m bracket.Match) {
	WriteEntrantSpot(w, m.Entrants[0])
	WriteEntrantSpot(w, m.Entrants[1])
}

func ReadMatch(r *Reader) (bracket.Match, error) {
	a, err := ReadEntrantSpot(r)
	if err != nil {
		return bracket.Match{}, err
	}
	b, err := ReadEntrantSpot(r)
	if err != nil {
		return bracket.Match{}, err
	}
	return bracket.Match{Entrants: [2]bracket.EntrantSpot{a, b}}, nil
}

func WriteMatches(w *Writer, matches []bracket.Match) {
	w.WriteSeqLen(len(matches))
	for _, m := range matches {
		WriteMatch(w, m)
	}
}

func ReadMatches(r *Reader) ([]bracket.Match, error) {
	n, err := r.ReadSeqLen()
	if err != nil {
		return nil, err
	}
	out := make([]bracket.Match, 0, n)
	for i := uint64(0); i < n; i++ {
		if r.Remaining() <= 0 {
			return nil, ErrInvalidSeq
		}
		m, err := ReadMatch(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
