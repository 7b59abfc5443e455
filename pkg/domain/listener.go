package domain

// SessionListener is the capability set a session server registers.
// All four callbacks are required; the lifecycle layer invokes them without holding
// any registry lock, so implementations may call back into the client.
type SessionListener interface {
	// OnSessionOpened reports the outcome of an open. A non-nil return rejects the session.
	OnSessionOpened(sessionID int, result error) error
	OnSessionClosed(sessionID int)
	OnBytesReceived(sessionID int, data []byte)
	OnMessageReceived(sessionID int, data []byte)
}

// ListenerFuncs adapts plain functions to SessionListener. Every field must be set.
type ListenerFuncs struct {
	Opened   func(sessionID int, result error) error
	Closed   func(sessionID int)
	Bytes    func(sessionID int, data []byte)
	Messages func(sessionID int, data []byte)
}

// Complete reports whether all four callbacks are present.
func (l ListenerFuncs) Complete() bool {
	return l.Opened != nil && l.Closed != nil && l.Bytes != nil && l.Messages != nil
}

// OnSessionOpened calls Opened.
func (l ListenerFuncs) OnSessionOpened(sessionID int, result error) error {
	return l.Opened(sessionID, result)
}

// OnSessionClosed calls Closed.
func (l ListenerFuncs) OnSessionClosed(sessionID int) { l.Closed(sessionID) }

// OnBytesReceived calls Bytes.
func (l ListenerFuncs) OnBytesReceived(sessionID int, data []byte) { l.Bytes(sessionID, data) }

// OnMessageReceived calls Messages.
func (l ListenerFuncs) OnMessageReceived(sessionID int, data []byte) { l.Messages(sessionID, data) }

// ValidListener reports whether l can receive every callback.
func ValidListener(l SessionListener) bool {
	if l == nil {
		return false
	}
	if f, ok := l.(ListenerFuncs); ok {
		return f.Complete()
	}
	if f, ok := l.(*ListenerFuncs); ok {
		return f != nil && f.Complete()
	}
	return true
}
