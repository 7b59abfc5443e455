package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ipc"
	"github.com/aretw0/softbus/pkg/ports"
)

// Transport carries one encoded request to the privileged side and returns its reply.
// Errors are reserved for transport faults; refusals travel as reply codes.
type Transport interface {
	Call(ctx context.Context, op Op, req *ipc.Parcel) (*ipc.Parcel, error)
}

// Stub is the client half of the RPC: it implements ports.RemoteServer by
// encoding each call in the field order the Dispatcher handlers decode.
type Stub struct {
	transport Transport
}

var _ ports.RemoteServer = (*Stub)(nil)

// NewStub creates a stub over t.
func NewStub(t Transport) *Stub {
	return &Stub{transport: t}
}

func (s *Stub) call(ctx context.Context, op Op, req *ipc.Parcel) (int32, error) {
	reply, err := s.transport.Call(ctx, op, req)
	if err != nil {
		return int32(domain.CodeErr), fmt.Errorf("%w: %s: %v", domain.ErrRemoteFailure, op, err)
	}
	v, err := reply.PopInt32()
	if err != nil {
		return int32(domain.CodeErr), fmt.Errorf("%w: %s: malformed reply: %v", domain.ErrRemoteFailure, op, err)
	}
	return v, nil
}

func (s *Stub) status(ctx context.Context, op Op, req *ipc.Parcel) error {
	v, err := s.call(ctx, op, req)
	if err != nil {
		return err
	}
	if err := domain.ErrorOf(domain.ResultCode(v)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CreateSessionServer registers the server on the privileged side.
func (s *Stub) CreateSessionServer(ctx context.Context, pkgName, sessionName string) error {
	return s.status(ctx, OpCreateSessionServer, ipc.New().PushString(pkgName).PushString(sessionName))
}

// RemoveSessionServer unregisters the server on the privileged side.
func (s *Stub) RemoveSessionServer(ctx context.Context, pkgName, sessionName string) error {
	return s.status(ctx, OpRemoveSessionServer, ipc.New().PushString(pkgName).PushString(sessionName))
}

// OpenSession returns the channel id with ChannelTypeUnset: the type is only
// learned from the channel-opened event.
func (s *Stub) OpenSession(ctx context.Context, req domain.OpenRequest) (domain.ChannelBinding, error) {
	p := ipc.New().
		PushString(req.SessionName).
		PushString(req.PeerSessionName).
		PushString(req.PeerDeviceID).
		PushString(req.GroupID).
		PushInt(int32(req.Attr.DataType))
	v, err := s.call(ctx, OpOpenSession, p)
	if err != nil {
		return domain.ChannelBinding{ID: domain.InvalidChannelID}, err
	}
	if v < 0 {
		return domain.ChannelBinding{ID: domain.InvalidChannelID},
			fmt.Errorf("%s: %w", OpOpenSession, domain.ErrorOf(domain.ResultCode(v)))
	}
	return domain.ChannelBinding{ID: v, Type: domain.ChannelTypeUnset}, nil
}

// CloseChannel asks the privileged side to close ch.
func (s *Stub) CloseChannel(ctx context.Context, ch domain.ChannelBinding) error {
	return s.status(ctx, OpCloseChannel, ipc.New().PushInt(ch.ID).PushInt(int32(ch.Type)))
}

// SendMessage sends payload on a proxy channel.
func (s *Stub) SendMessage(ctx context.Context, channelID int32, msgType domain.MsgType, payload []byte) error {
	return s.status(ctx, OpSendSessionMsg, ipc.New().PushInt(channelID).PushInt(int32(msgType)).PushBytes(payload))
}

// Loopback is an in-process Transport that hands requests straight to a Dispatcher
// under a fixed Origin.
type Loopback struct {
	Dispatcher *Dispatcher
	Origin     domain.Origin
}

// Call dispatches req in process. Only ErrUnknownOp is reported as a transport fault.
func (l Loopback) Call(ctx context.Context, op Op, req *ipc.Parcel) (*ipc.Parcel, error) {
	reply := ipc.New()
	err := l.Dispatcher.Handle(ctx, l.Origin, op, req, reply)
	if errors.Is(err, ErrUnknownOp) {
		return nil, err
	}
	return reply, nil
}
