package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// S1 — Varint: encode u64(300) -> [0xAC, 0x02]; decode [0xAC, 0x02] -> 300.
func TestVarintS1(t *testing.T) {
	w := NewWriter()
	w.WriteU64(300)
	assert.Equal(t, []byte{0xAC, 0x02}, w.Bytes())

	v, err := NewReader([]byte{0xAC, 0x02}).ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(300), v)
}

// S2 — Zigzag: encode i64(-1) -> [0x01]; i64(1) -> [0x02]; i64(-2) -> [0x03].
func TestZigzagS2(t *testing.T) {
	cases := []struct {
		in  int64
		out []byte
	}{
		{-1, []byte{0x01}},
		{1, []byte{0x02}},
		{-2, []byte{0x03}},
	}
	for _, c := range cases {
		w := NewWriter()
		w.WriteI64(c.in)
		assert.Equal(t, c.out, w.Bytes(), "encode(%d)", c.in)

		v, err := NewReader(c.out).ReadI64()
		require.NoError(t, err)
		assert.Equal(t, c.in, v)
	}
}

func TestBoolRoundTrip(t *testing.T) {
	for _, v := range []bool{true, false} {
		w := NewWriter()
		w.WriteBool(v)
		got, err := NewReader(w.Bytes()).ReadBool()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestBoolInvalidVariant(t *testing.T) {
	_, err := NewReader([]byte{0x02}).ReadBool()
	assert.ErrorIs(t, err, ErrInvalidVariant)
	assert.Equal(t, ErrKindProtoInvalidVariant, KindOf(err))
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "hello", "tournament", string([]rune{'é', '中', '文'})} {
		w := NewWriter()
		w.WriteString(s)
		got, err := NewReader(w.Bytes()).ReadString()
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

// Property 3 — UTF-8 validation: invalid bytes yield ProtoInvalidStr.
func TestStringInvalidUTF8(t *testing.T) {
	w := NewWriter()
	invalid := []byte{0xff, 0xfe, 0xfd}
	w.WriteSeqLen(len(invalid)) // string length prefix, same shape as u64
	w.writeBytes(invalid)
	_, err := NewReader(w.Bytes()).ReadString()
	assert.ErrorIs(t, err, ErrInvalidStr)
	assert.Equal(t, ErrKindProtoInvalidStr, KindOf(err))
}

func TestSequenceTruncated(t *testing.T) {
	w := NewWriter()
	w.WriteSeqLen(5)
	w.WriteU8(1) // far fewer than 5 declared elements
	_, err := ReadMatches(NewReader(w.Bytes()))
	assert.ErrorIs(t, err, ErrInvalidSeq)
	assert.Equal(t, ErrKindProtoInvalidSeq, KindOf(err))
}

// Property 2 — ULEB128 overflow: u64 decoder fails at 11+ continuation
// bytes; u32 decoder fails at 6+.
func TestVarintOverflowU64(t *testing.T) {
	buf := make([]byte, 11)
	for i := range buf {
		buf[i] = 0x80 // continuation bit set throughout, no terminator
	}
	_, err := NewReader(buf).ReadU64()
	assert.ErrorIs(t, err, ErrIntOverflow)
	assert.Equal(t, ErrKindProtoIntOverflow, KindOf(err))
}

func TestVarintOverflowU32(t *testing.T) {
	buf := make([]byte, 6)
	for i := range buf {
		buf[i] = 0x80
	}
	_, err := NewReader(buf).ReadU32()
	assert.ErrorIs(t, err, ErrIntOverflow)
}

func TestVarintNoOverflowAtBoundary(t *testing.T) {
	// 10 continuation bytes + 1 terminator fits u64's bound exactly.
	buf := make([]byte, 10)
	for i := range buf {
		buf[i] = 0x80
	}
	buf = append(buf, 0x01)
	_, err := NewReader(buf).ReadU64()
	assert.NoError(t, err)
}

// Property 1 — codec round trip, property-based over primitive types.
func TestRapidRoundTripU64(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Uint64().Draw(t, "v")
		w := NewWriter()
		w.WriteU64(v)
		got, err := NewReader(w.Bytes()).ReadU64()
		require.NoError(t, err)
		require.Equal(t, v, got)
	})
}

func TestRapidRoundTripU32(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Uint32().Draw(t, "v")
		w := NewWriter()
		w.WriteU32(v)
		got, err := NewReader(w.Bytes()).ReadU32()
		require.NoError(t, err)
		require.Equal(t, v, got)
	})
}

func TestRapidRoundTripI64(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Int64().Draw(t, "v")
		w := NewWriter()
		w.WriteI64(v)
		got, err := NewReader(w.Bytes()).ReadI64()
		require.NoError(t, err)
		require.Equal(t, v, got)
	})
}

func TestRapidRoundTripI32(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Int32().Draw(t, "v")
		w := NewWriter()
		w.WriteI32(v)
		got, err := NewReader(w.Bytes()).ReadI32()
		require.NoError(t, err)
		require.Equal(t, v, got)
	})
}

func TestRapidRoundTripI16(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Int16().Draw(t, "v")
		w := NewWriter()
		w.WriteI16(v)
		got, err := NewReader(w.Bytes()).ReadI16()
		require.NoError(t, err)
		require.Equal(t, v, got)
	})
}

func TestRapidRoundTripString(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")
		w := NewWriter()
		w.WriteString(s)
		got, err := NewReader(w.Bytes()).ReadString()
		require.NoError(t, err)
		require.Equal(t, s, got)
	})
}

// Non-canonical ULEB128 (trailing zero continuation groups) must still
// decode: spec §4.1 "decoders MUST accept any well-formed ULEB128 up
// to the width bound (non-canonical encodings are valid)".
func TestNonCanonicalZero(t *testing.T) {
	// 0x80, 0x00 encodes zero with one redundant continuation byte.
	v, err := NewReader([]byte{0x80, 0x00}).ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
}
