package wire

import "github.com/pkg/errors"

// ErrorKind is the wire-visible protocol error taxonomy (spec §4.2).
// Values are a closed, append-only enum: never renumber an existing
// kind, only add new ones at the end of a minor version.
type ErrorKind uint8

const (
	ErrKindInternal            ErrorKind = 0
	ErrKindProto               ErrorKind = 1
	ErrKindUnauthorized        ErrorKind = 2
	ErrKindLagged              ErrorKind = 3
	ErrKindProtoInvalidVariant ErrorKind = 128
	ErrKindProtoInvalidSeq     ErrorKind = 129
	ErrKindProtoInvalidStr     ErrorKind = 130
	ErrKindProtoIntOverflow    ErrorKind = 131
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindInternal:
		return "Internal"
	case ErrKindProto:
		return "Proto"
	case ErrKindUnauthorized:
		return "Unauthorized"
	case ErrKindLagged:
		return "Lagged"
	case ErrKindProtoInvalidVariant:
		return "ProtoInvalidVariant"
	case ErrKindProtoInvalidSeq:
		return "ProtoInvalidSeq"
	case ErrKindProtoInvalidStr:
		return "ProtoInvalidStr"
	case ErrKindProtoIntOverflow:
		return "ProtoIntOverflow"
	default:
		return "Unknown"
	}
}

// ProtoError pairs a wire ErrorKind with the underlying Go cause, so
// callers can log the cause while still forwarding the correct kind to
// the peer.
type ProtoError struct {
	Kind  ErrorKind
	cause error
}

func (e *ProtoError) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.cause.Error()
}

func (e *ProtoError) Unwrap() error { return e.cause }

func newProtoErr(kind ErrorKind, msg string) *ProtoError {
	return &ProtoError{Kind: kind, cause: errors.New(msg)}
}

// Sentinel errors returned by the codec. Use errors.As to recover the
// ErrorKind for an Error event.
var (
	ErrIntOverflow    = newProtoErr(ErrKindProtoIntOverflow, "varint decode exceeded width bound")
	ErrInvalidVariant = newProtoErr(ErrKindProtoInvalidVariant, "invalid tagged-sum or bool variant")
	ErrInvalidSeq     = newProtoErr(ErrKindProtoInvalidSeq, "buffer ended before declared sequence length")
	ErrInvalidStr     = newProtoErr(ErrKindProtoInvalidStr, "string bytes are not valid UTF-8")
	ErrProto          = newProtoErr(ErrKindProto, "malformed or unknown frame")
)

// KindOf recovers the wire ErrorKind carried by err, defaulting to
// Internal for errors that did not originate in this package.
func KindOf(err error) ErrorKind {
	var pe *ProtoError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindInternal
}
