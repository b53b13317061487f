package realtime

import "errors"

var (
	// ErrUnauthenticated means no identity, or a conflicting one, is bound to the connection.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidRoom means the room code is empty or malformed.
	ErrInvalidRoom = errors.New("invalid room code")
	// ErrNotInRoom means a room-scoped action was attempted by a non-member.
	ErrNotInRoom = errors.New("not in room")
	// ErrTransportClosed means the peer can no longer be written to.
	ErrTransportClosed = errors.New("transport closed")
	// ErrCapacityExceeded means the peer's outbound buffer is full.
	ErrCapacityExceeded = errors.New("outbound buffer full")
	// ErrMalformedEvent means an inbound frame could not be decoded or failed validation.
	ErrMalformedEvent = errors.New("malformed event")
)

// Wire codes carried in error frames.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeInvalidRoom      = "INVALID_ROOM"
	CodeNotInRoom        = "NOT_IN_ROOM"
	CodeMalformedEvent   = "MALFORMED_EVENT"
	CodeCapacityExceeded = "CAPACITY_EXCEEDED"
	CodeTransportClosed  = "TRANSPORT_CLOSED"
	CodeInternal         = "INTERNAL"
)

// ErrorCode maps an error to the code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrInvalidRoom):
		return CodeInvalidRoom
	case errors.Is(err, ErrNotInRoom):
		return CodeNotInRoom
	case errors.Is(err, ErrMalformedEvent):
		return CodeMalformedEvent
	case errors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, ErrTransportClosed):
		return CodeTransportClosed
	default:
		return CodeInternal
	}
}

// ErrorForCode is the inverse of ErrorCode, used by clients to rebuild a
// sentinel from an error frame. Unknown codes yield nil.
func ErrorForCode(code string) error {
	switch code {
	case CodeUnauthenticated:
		return ErrUnauthenticated
	case CodeInvalidRoom:
		return ErrInvalidRoom
	case CodeNotInRoom:
		return ErrNotInRoom
	case CodeMalformedEvent:
		return ErrMalformedEvent
	case CodeCapacityExceeded:
		return ErrCapacityExceeded
	case CodeTransportClosed:
		return ErrTransportClosed
	default:
		return nil
	}
}
