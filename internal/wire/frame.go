package wire

import "github.com/tourneyforge/livebracket/internal/bracket"

// CommandTag identifies a client→server frame (spec §4.2). IDs are a
// closed, append-only enum: 0 is reserved and never assigned.
type CommandTag uint8

const (
	CmdReserved    CommandTag = 0
	CmdAuthorize   CommandTag = 1
	CmdSyncState   CommandTag = 2
	CmdUpdateMatch CommandTag = 3
	CmdResetMatch  CommandTag = 4
)

// Command is any decoded client→server frame body.
type Command interface {
	CommandTag() CommandTag
}

// AuthorizeCmd carries the JWT the client wants to exchange for an
// Authenticated session (spec §4.2, §4.6).
type AuthorizeCmd struct{ Token string }

func (AuthorizeCmd) CommandTag() CommandTag { return CmdAuthorize }

// SyncStateCmd requests the current snapshot; it is a no-op at the
// wire level (no body) and never requires authentication.
type SyncStateCmd struct{}

func (SyncStateCmd) CommandTag() CommandTag { return CmdSyncState }

// UpdateMatchCmd writes both sides of one match. Requires
// authentication (spec §4.2 table).
type UpdateMatchCmd struct {
	Index uint64
	Nodes [2]bracket.EntrantScore
}

func (UpdateMatchCmd) CommandTag() CommandTag { return CmdUpdateMatch }

// ResetMatchCmd clears one match and cascades a rewind. Requires
// authentication.
type ResetMatchCmd struct{ Index uint64 }

func (ResetMatchCmd) CommandTag() CommandTag { return CmdResetMatch }

// EncodeCommand serializes cmd as a complete frame (tag byte + body).
func EncodeCommand(cmd Command) []byte {
	w := NewWriter()
	w.WriteU8(uint8(cmd.CommandTag()))
	switch c := cmd.(type) {
	case AuthorizeCmd:
		w.WriteString(c.Token)
	case SyncStateCmd:
		// bodiless
	case UpdateMatchCmd:
		w.WriteU64(c.Index)
		WriteEntrantScore(w, c.Nodes[0])
		WriteEntrantScore(w, c.Nodes[1])
	case ResetMatchCmd:
		w.WriteU64(c.Index)
	}
	return w.Bytes()
}

// DecodeCommand reads a single command frame. An unknown command tag
// is always a hard protocol error on the request path (spec §4.1:
// "Unknown tags on the request path fail with Proto").
func DecodeCommand(buf []byte) (Command, error) {
	r := NewReader(buf)
	tag, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	switch CommandTag(tag) {
	case CmdAuthorize:
		token, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return AuthorizeCmd{Token: token}, nil
	case CmdSyncState:
		return SyncStateCmd{}, nil
	case CmdUpdateMatch:
		index, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		var nodes [2]bracket.EntrantScore
		for i := range nodes {
			nodes[i], err = ReadEntrantScore(r)
			if err != nil {
				return nil, err
			}
		}
		return UpdateMatchCmd{Index: index, Nodes: nodes}, nil
	case CmdResetMatch:
		index, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		return ResetMatchCmd{Index: index}, nil
	default:
		return nil, ErrProto
	}
}

// EventTag identifies a server→client frame (spec §4.2).
type EventTag uint8

const (
	EvtReserved    EventTag = 0
	EvtError       EventTag = 1
	EvtSyncState   EventTag = 2
	EvtUpdateMatch EventTag = 3
	EvtResetMatch  EventTag = 4
)

// Event is any decoded server→client frame body.
type Event interface {
	EventTag() EventTag
}

// ErrorEvent reports a recoverable or fatal condition (spec §4.2,
// §7). Kind is one of the ErrorKind constants.
type ErrorEvent struct{ Kind ErrorKind }

func (ErrorEvent) EventTag() EventTag { return EvtError }

// SyncStateEvent carries a full bracket snapshot.
type SyncStateEvent struct{ Matches []bracket.Match }

func (SyncStateEvent) EventTag() EventTag { return EvtSyncState }

// UpdateMatchEvent mirrors the command of the same name; it is also
// the shape of a cascaded advancement edit (spec §4.3, §8 S4).
type UpdateMatchEvent struct {
	Index uint64
	Nodes [2]bracket.EntrantScore
}

func (UpdateMatchEvent) EventTag() EventTag { return EvtUpdateMatch }

// ResetMatchEvent mirrors ResetMatchCmd.
type ResetMatchEvent struct{ Index uint64 }

func (ResetMatchEvent) EventTag() EventTag { return EvtResetMatch }

// EncodeEvent serializes evt as a complete frame.
func EncodeEvent(evt Event) []byte {
	w := NewWriter()
	w.WriteU8(uint8(evt.EventTag()))
	switch e := evt.(type) {
	case ErrorEvent:
		w.WriteU8(uint8(e.Kind))
	case SyncStateEvent:
		WriteMatches(w, e.Matches)
	case UpdateMatchEvent:
		w.WriteU64(e.Index)
		WriteEntrantScore(w, e.Nodes[0])
		WriteEntrantScore(w, e.Nodes[1])
	case ResetMatchEvent:
		w.WriteU64(e.Index)
	}
	return w.Bytes()
}

// DecodeEvent reads a single event frame as a (synthetic) client would.
// An unknown event tag is forward-compatible: it returns (nil, nil)
// rather than an error, per spec §4.1 ("unknown tags on the event
// path... are skipped").
func DecodeEvent(buf []byte) (Event, error) {
	r := NewReader(buf)
	tag, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	switch EventTag(tag) {
	case EvtError:
		kind, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		return ErrorEvent{Kind: ErrorKind(kind)}, nil
	case EvtSyncState:
		matches, err := ReadMatches(r)
		if err != nil {
			return nil, err
		}
		return SyncStateEvent{Matches: matches}, nil
	case EvtUpdateMatch:
		index, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		var nodes [2]bracket.EntrantScore
		for i := range nodes {
			nodes[i], err = ReadEntrantScore(r)
			if err != nil {
				return nil, err
			}
		}
		return UpdateMatchEvent{Index: index, Nodes: nodes}, nil
	case EvtResetMatch:
		index, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		return ResetMatchEvent{Index: index}, nil
	default:
		return nil, nil
	}
}
