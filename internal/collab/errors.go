package collab

import "errors"

// Rejection taxonomy. All of these are recoverable: they are reported to the
// originating connection as an error acknowledgment and never affect other
// participants or other documents.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrRoomNotJoined      = errors.New("room not joined")
	ErrInvalidVersion     = errors.New("invalid version")
	ErrMalformedOperation = errors.New("malformed operation")
)

// Code maps an error to its wire code for error acknowledgments.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrRoomNotJoined):
		return "room_not_joined"
	case errors.Is(err, ErrInvalidVersion):
		return "invalid_version"
	case errors.Is(err, ErrMalformedOperation):
		return "malformed_operation"
	}
	return "internal"
}
