package bracket

import "github.com/pkg/errors"

// ErrProto is returned by Update/Reset for any request that violates a
// bracket-state invariant (out-of-range index, two winners marked in
// the same Update). Every BracketState failure mode the spec defines
// maps to the wire ErrorKind Proto (spec §4.3); callers that need to
// emit an Error event can treat any non-nil error from this package as
// Proto without further inspection.
var ErrProto = errors.New("bracket: protocol violation")
