// Package wire implements the live-bracket binary wire protocol: the
// ULEB128/zigzag varint primitives, tagged sums, sequences and strings
// described by the protocol spec, plus the command/event frame types
// built on top of them.
package wire

// Bit widths and byte bounds for the varint decoders. Adapted from
// erigontech/erigon-lib's integer limit table; CeilDiv is the same
// helper the teacher uses to turn a bit width into a byte budget.

const (
	maxUint32 = 1<<32 - 1
	maxUint64 = 1<<64 - 1
)

// ceilDiv returns ceil(x/y) for positive y, matching erigon-lib's
// math.CeilDiv.
func ceilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// maxVarintBytes is the maximum number of continuation-carrying bytes
// a well-formed ULEB128 encoding of a value with the given bit width
// may occupy before a decoder must fail with ErrIntOverflow.
func maxVarintBytes(bits int) int {
	return ceilDiv(bits, 7)
}

var (
	maxVarintBytesU16 = maxVarintBytes(16) // 3
	maxVarintBytesU32 = maxVarintBytes(32) // 5
	maxVarintBytesU64 = maxVarintBytes(64) // 10
)
