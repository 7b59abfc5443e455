package domain

// Size bounds for caller supplied identifiers. A valid string is non-empty and
// strictly shorter than its bound; exceeding the bound is rejected, never truncated.
const (
	PkgNameSizeMax     = 65
	SessionNameSizeMax = 256
	DeviceIDSizeMax    = 65
	GroupIDSizeMax     = 65
)

const (
	// MaxSessionID is the upper bound of the session id space (ids are 1..MaxSessionID).
	MaxSessionID = 20

	// MaxSessionServerNum bounds the number of session servers a client may register.
	MaxSessionServerNum = 8

	// InvalidSessionID is returned by open operations that did not produce a session.
	InvalidSessionID = -1

	// InvalidChannelID marks a channel id that the privileged side failed to allocate.
	InvalidChannelID int32 = -1
)
