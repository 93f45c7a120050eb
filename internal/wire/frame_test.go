package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourneyforge/livebracket/internal/bracket"
)

func TestCommandRoundTrip(t *testing.T) {
	cases := []Command{
		AuthorizeCmd{Token: "VALID_TOKEN"},
		SyncStateCmd{},
		UpdateMatchCmd{
			Index: 1,
			Nodes: [2]bracket.EntrantScore{
				{Score: 2, Winner: true},
				{Score: 1, Winner: false},
			},
		},
		ResetMatchCmd{Index: 1},
	}
	for _, c := range cases {
		buf := EncodeCommand(c)
		got, err := DecodeCommand(buf)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestEventRoundTrip(t *testing.T) {
	cases := []Event{
		ErrorEvent{Kind: ErrKindLagged},
		SyncStateEvent{Matches: []bracket.Match{
			{Entrants: [2]bracket.EntrantSpot{bracket.Entrant(0), bracket.Tbd()}},
		}},
		UpdateMatchEvent{
			Index: 1,
			Nodes: [2]bracket.EntrantScore{{Score: 2, Winner: true}, {Score: 1}},
		},
		ResetMatchEvent{Index: 1},
	}
	for _, c := range cases {
		buf := EncodeEvent(c)
		got, err := DecodeEvent(buf)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

// Property 4 — unknown command tag fails with Proto on the request path.
func TestUnknownCommandTagFails(t *testing.T) {
	_, err := DecodeCommand([]byte{0x7F})
	assert.ErrorIs(t, err, ErrProto)
}

// Property 4 — unknown event tag is skipped without error on the event path.
func TestUnknownEventTagSkipped(t *testing.T) {
	evt, err := DecodeEvent([]byte{0x7F})
	assert.NoError(t, err)
	assert.Nil(t, evt)
}

// S3 — Authorize happy path framing: 0x01 then a length-prefixed UTF-8 string.
func TestAuthorizeFrameShapeS3(t *testing.T) {
	buf := EncodeCommand(AuthorizeCmd{Token: "VALID_TOKEN"})
	assert.Equal(t, uint8(CmdAuthorize), buf[0])
	got, err := DecodeCommand(buf)
	require.NoError(t, err)
	assert.Equal(t, AuthorizeCmd{Token: "VALID_TOKEN"}, got)
}

func TestEntrantSpotRoundTrip(t *testing.T) {
	spots := []bracket.EntrantSpot{
		bracket.Empty(),
		bracket.Tbd(),
		{Kind: bracket.SpotEntrant, Index: 42, Data: bracket.EntrantScore{Score: 7, Winner: true}},
	}
	for _, s := range spots {
		w := NewWriter()
		WriteEntrantSpot(w, s)
		got, err := ReadEntrantSpot(NewReader(w.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestEntrantSpotUnknownTag(t *testing.T) {
	_, err := ReadEntrantSpot(NewReader([]byte{0x09}))
	assert.ErrorIs(t, err, ErrInvalidVariant)
}
