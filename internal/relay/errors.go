package relay

import (
	"errors"

	"github.com/BioHazard786/roomrelay/internal/registry"
)

var (
	ErrDuplicateConnection = registry.ErrDuplicateConnection
	ErrUnknownConnection   = registry.ErrUnknownConnection

	ErrUnknownTarget      = errors.New("signal target is not connected")
	ErrAlreadyInRoom      = errors.New("connection already joined another room")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedMessage   = errors.New("malformed message")

	ErrOutboxFull   = errors.New("outbox full")
	ErrOutboxClosed = errors.New("outbox closed")
)

// errorKind maps a routing error to a short metrics label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateConnection):
		return "duplicate_connection"
	case errors.Is(err, ErrUnknownConnection):
		return "unknown_connection"
	case errors.Is(err, ErrUnknownTarget):
		return "unknown_target"
	case errors.Is(err, ErrAlreadyInRoom):
		return "already_in_room"
	case errors.Is(err, ErrUnknownMessageType):
		return "unknown_message_type"
	case errors.Is(err, ErrMalformedMessage):
		return "malformed_message"
	default:
		return "other"
	}
}
