package softbus

import (
	"context"
	"fmt"

	"github.com/aretw0/softbus/pkg/domain"
)

// Deliver routes a broker channel event to the matching handler.
func (c *Client) Deliver(ctx context.Context, ev domain.ChannelEvent) error {
	switch ev.Type {
	case domain.EventChannelOpened:
		return c.OnChannelOpened(ctx, ev.Info)
	case domain.EventChannelClosed:
		return c.OnChannelClosed(ctx, ev.Info.Channel)
	case domain.EventChannelMessage:
		return c.OnChannelMsgReceived(ctx, ev.Info.Channel, ev.Data, ev.MsgType)
	default:
		return fmt.Errorf("%w: event type %q", domain.ErrInvalidParam, ev.Type)
	}
}

// OnChannelOpened completes a session once its channel is up.
//
// For sessions this client opened, the Pending session carrying the tuple of
// info is bound, which also releases OpenSessionSync waiters. When info.IsServer
// is set a peer opened toward a local server and a new Bound session is recorded.
// OnSessionOpened is then invoked; a non-nil return closes the session again.
func (c *Client) OnChannelOpened(ctx context.Context, info domain.ChannelInfo) error {
	var id int
	var err error
	if info.IsServer {
		id, err = c.registry.AddInboundSession(info)
	} else {
		id, err = c.registry.BindOpened(info)
	}
	if err != nil {
		c.logger.Error("channel opened for unknown session",
			"session_name", info.SessionName, "channel_id", info.Channel.ID, "err", err)
		return err
	}
	c.sessionsChanged()

	listener, err := c.registry.Listener(id)
	if err != nil {
		return err
	}
	if cbErr := listener.OnSessionOpened(id, nil); cbErr != nil {
		c.logger.Error("session callback OnSessionOpened failed", "session_id", id, "err", cbErr)
		c.CloseSession(ctx, id)
		return fmt.Errorf("%w %d: %v", ErrListenerRejected, id, cbErr)
	}
	return nil
}

// OnChannelClosed forgets the session bound to ch and reports it closed.
func (c *Client) OnChannelClosed(ctx context.Context, ch domain.ChannelBinding) error {
	id, err := c.registry.SessionByChannel(ch)
	if err != nil {
		return err
	}
	listener, err := c.registry.Listener(id)
	if err != nil {
		c.logger.Warn("no listener for closed session", "session_id", id, "err", err)
	}
	c.dropSession(id)
	if listener != nil {
		listener.OnSessionClosed(id)
	}
	return nil
}

// OnChannelMsgReceived hands an inbound payload to the owning session's listener.
func (c *Client) OnChannelMsgReceived(ctx context.Context, ch domain.ChannelBinding, data []byte, msgType domain.MsgType) error {
	id, err := c.registry.SessionByChannel(ch)
	if err != nil {
		return err
	}
	listener, err := c.registry.Listener(id)
	if err != nil {
		return err
	}
	switch msgType {
	case domain.MsgTypeBytes:
		listener.OnBytesReceived(id, data)
	case domain.MsgTypeMessage:
		listener.OnMessageReceived(id, data)
	default:
		return fmt.Errorf("%w: msg type %d", domain.ErrInvalidParam, msgType)
	}
	return nil
}
