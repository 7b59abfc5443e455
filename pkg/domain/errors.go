package domain

import "errors"

var (
	// ErrInvalidParam is returned for malformed, oversize or missing input.
	ErrInvalidParam = errors.New("invalid param")

	// ErrPermissionDenied is returned when the permission policy rejects the caller.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned for unknown sessions, channels or server names.
	ErrNotFound = errors.New("not found")

	// ErrNameRepeated is returned when a session server name is already registered.
	ErrNameRepeated = errors.New("session server name repeated")

	// ErrSessionRepeated signals that an open request matched a live session.
	// It is a dedup signal, not a failure.
	ErrSessionRepeated = errors.New("session repeated")

	// ErrRemoteFailure is returned when a call across the privileged boundary fails.
	ErrRemoteFailure = errors.New("remote call failed")

	// ErrTimeout reports an exhausted wait budget. It is logged, not returned to callers.
	ErrTimeout = errors.New("timeout")

	// ErrInvalidChannelID is returned when a proxy channel id cannot be resolved.
	ErrInvalidChannelID = errors.New("invalid proxy channel id")

	// ErrInvalidUDPChannelID is returned when a udp channel id cannot be resolved.
	ErrInvalidUDPChannelID = errors.New("invalid udp channel id")

	// ErrInvalidCloseChannelID is returned for a close request with an unknown channel type.
	ErrInvalidCloseChannelID = errors.New("invalid close channel id")

	// ErrServerLimit is returned when MaxSessionServerNum servers are registered.
	ErrServerLimit = errors.New("session server limit reached")

	// ErrSessionLimit is returned when the session id space is exhausted.
	ErrSessionLimit = errors.New("session id space exhausted")

	// ErrChannelBound is returned when a channel id already has an owner.
	ErrChannelBound = errors.New("channel already bound")
)
