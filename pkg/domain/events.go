package domain

// EventType defines the category of a channel event.
type EventType string

const (
	EventChannelOpened  EventType = "channel_opened"
	EventChannelClosed  EventType = "channel_closed"
	EventChannelMessage EventType = "channel_message"
)

// ChannelEvent is what the privileged side reports back to the owner of a channel.
// Info is set for every type; MsgType and Data only for EventChannelMessage.
type ChannelEvent struct {
	Type    EventType   `json:"type"`
	Info    ChannelInfo `json:"info"`
	MsgType MsgType     `json:"msg_type,omitempty"`
	Data    []byte      `json:"data,omitempty"`
}
