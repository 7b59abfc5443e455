package domain

import "fmt"

// ChannelType is the closed set of transports a session can be bound to.
// Channel ids are only meaningful together with their type.
type ChannelType int32

const (
	ChannelTypeUnset ChannelType = iota // No channel assigned yet.
	ChannelTypeProxy
	ChannelTypeUDP
)

// Valid reports whether t names a concrete transport.
func (t ChannelType) Valid() bool {
	return t == ChannelTypeProxy || t == ChannelTypeUDP
}

func (t ChannelType) String() string {
	switch t {
	case ChannelTypeUnset:
		return "unset"
	case ChannelTypeProxy:
		return "proxy"
	case ChannelTypeUDP:
		return "udp"
	default:
		return fmt.Sprintf("channel_type(%d)", int32(t))
	}
}

// ParseChannelType maps a wire value onto the closed enum.
func ParseChannelType(v int32) (ChannelType, bool) {
	t := ChannelType(v)
	switch t {
	case ChannelTypeUnset, ChannelTypeProxy, ChannelTypeUDP:
		return t, true
	}
	return ChannelTypeUnset, false
}

// ChannelBinding is the transport descriptor held by a Session.
type ChannelBinding struct {
	ID   int32       `json:"channel_id"`
	Type ChannelType `json:"channel_type"`
}

// Bound reports whether the binding names an established channel.
func (b ChannelBinding) Bound() bool {
	return b.ID != InvalidChannelID && b.Type.Valid()
}

// Key returns the namespaced lookup key of the binding.
func (b ChannelBinding) Key() ChannelKey {
	return ChannelKey{Type: b.Type, ID: b.ID}
}

// ChannelKey identifies a channel within its transport namespace.
type ChannelKey struct {
	Type ChannelType
	ID   int32
}

func (k ChannelKey) String() string {
	return fmt.Sprintf("%s:%d", k.Type, k.ID)
}

// SessionState tracks a Session through its lifecycle.
type SessionState int

const (
	StatePending SessionState = iota // Registered, remote open requested, no channel yet.
	StateBound                       // Channel id and type assigned.
	StateClosed                      // Terminal.
)

func (s SessionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateBound:
		return "bound"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DataType is the payload kind a session carries.
type DataType int32

const (
	TypeMessage DataType = iota + 1
	TypeBytes
	TypeFile
	TypeStream
	typeButt
)

// Valid reports whether d is within the known range.
func (d DataType) Valid() bool {
	return d >= TypeMessage && d < typeButt
}

// SecurityType selects the session server's channel security.
type SecurityType int

const (
	SecTypePlaintext SecurityType = iota + 1
	SecTypeCiphertext
)

// SessionAttribute carries the options of an open request.
type SessionAttribute struct {
	DataType DataType `json:"data_type"`
}

// OpenRequest is the tuple an application opens a session with.
type OpenRequest struct {
	SessionName     string           `json:"session_name"`
	PeerSessionName string           `json:"peer_session_name"`
	PeerDeviceID    string           `json:"peer_device_id"`
	GroupID         string           `json:"group_id"`
	Attr            SessionAttribute `json:"attr"`
}

// Action is the operation a PermissionGuard authorizes.
type Action int32

const (
	ActionSendMsg Action = iota
	ActionCreate
	ActionOpen
)

func (a Action) String() string {
	switch a {
	case ActionSendMsg:
		return "send"
	case ActionCreate:
		return "create"
	case ActionOpen:
		return "open"
	default:
		return fmt.Sprintf("action(%d)", int32(a))
	}
}

// ParseAction maps a policy keyword onto an Action.
func ParseAction(s string) (Action, bool) {
	switch s {
	case "send", "send_msg":
		return ActionSendMsg, true
	case "create":
		return ActionCreate, true
	case "open":
		return ActionOpen, true
	}
	return 0, false
}

// Decision is the outcome of a permission check.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

// Origin is the caller identity supplied by the IPC transport, never by the payload.
type Origin struct {
	UID int32
	PID int32
}

// UnknownOrigin is used when the transport cannot establish the caller identity.
var UnknownOrigin = Origin{UID: -1, PID: -1}

// SessionKey selects a field for Registry data accessors.
type SessionKey int

const (
	KeySessionName SessionKey = iota
	KeyPeerSessionName
	KeyPeerDeviceID
	KeyGroupID
)

// MsgType distinguishes the two payload kinds a bound channel carries.
type MsgType int32

const (
	MsgTypeBytes MsgType = iota + 1
	MsgTypeMessage
)

// ChannelInfo describes a channel the privileged side reports as opened.
// IsServer is set when the peer initiated the session toward a local session server.
type ChannelInfo struct {
	SessionName     string         `json:"session_name"`
	PeerSessionName string         `json:"peer_session_name"`
	PeerDeviceID    string         `json:"peer_device_id"`
	GroupID         string         `json:"group_id,omitempty"`
	Channel         ChannelBinding `json:"channel"`
	IsServer        bool           `json:"is_server,omitempty"`
}
