package domain

import "fmt"

// IsValidString reports whether s is non-empty and strictly shorter than max bytes.
func IsValidString(s string, max int) bool {
	return s != "" && len(s) < max
}

// IsValidSessionID reports whether id lies within the session id space.
func IsValidSessionID(id int) bool {
	return id > 0 && id <= MaxSessionID
}

// ValidateServerName checks the (pkgName, sessionName) pair of a session server.
func ValidateServerName(pkgName, sessionName string) error {
	if !IsValidString(pkgName, PkgNameSizeMax) {
		return fmt.Errorf("%w: pkg name", ErrInvalidParam)
	}
	if !IsValidString(sessionName, SessionNameSizeMax) {
		return fmt.Errorf("%w: session name", ErrInvalidParam)
	}
	return nil
}

// Validate checks every bound of an open request before any lookup or remote call.
func (r OpenRequest) Validate() error {
	if !IsValidString(r.SessionName, SessionNameSizeMax) {
		return fmt.Errorf("%w: session name", ErrInvalidParam)
	}
	if !IsValidString(r.PeerSessionName, SessionNameSizeMax) {
		return fmt.Errorf("%w: peer session name", ErrInvalidParam)
	}
	if !IsValidString(r.PeerDeviceID, DeviceIDSizeMax) {
		return fmt.Errorf("%w: peer device id", ErrInvalidParam)
	}
	// Group id may be empty but is still bounded.
	if len(r.GroupID) >= GroupIDSizeMax {
		return fmt.Errorf("%w: group id", ErrInvalidParam)
	}
	if !r.Attr.DataType.Valid() {
		return fmt.Errorf("%w: data type %d", ErrInvalidParam, r.Attr.DataType)
	}
	return nil
}
