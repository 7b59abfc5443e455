package domain

// SessionServer is a registered endpoint accepting sessions under SessionName.
type SessionServer struct {
	PkgName      string
	SessionName  string
	SecurityType SecurityType
	Listener     SessionListener
}

// Session is a snapshot of one live session.
type Session struct {
	ID              int
	SessionName     string
	PeerSessionName string
	PeerDeviceID    string
	GroupID         string
	DataType        DataType
	Channel         ChannelBinding
	State           SessionState
	IsServer        bool
}

// Matches reports whether the session carries the dedup tuple of req.
func (s Session) Matches(req OpenRequest) bool {
	return s.SessionName == req.SessionName &&
		s.PeerSessionName == req.PeerSessionName &&
		s.PeerDeviceID == req.PeerDeviceID
}
