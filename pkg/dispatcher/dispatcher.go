package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/softbus/internal/logging"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ports"
)

// Request is a decoded-on-demand request buffer.
type Request interface {
	PopString() (string, error)
	PopInt32() (int32, error)
	PopBytes() ([]byte, error)
}

// Reply receives the single result of a request.
type Reply interface {
	PushInt32(v int32)
}

// Op names a dispatchable operation.
type Op string

const (
	OpCreateSessionServer Op = "create_session_server"
	OpRemoveSessionServer Op = "remove_session_server"
	OpOpenSession         Op = "open_session"
	OpCloseChannel        Op = "close_channel"
	OpSendSessionMsg      Op = "send_session_msg"
)

// Ops lists every operation in a stable order.
var Ops = []Op{OpCreateSessionServer, OpRemoveSessionServer, OpOpenSession, OpCloseChannel, OpSendSessionMsg}

// ErrUnknownOp is returned by Handle for an op outside Ops.
var ErrUnknownOp = errors.New("unknown op")

// Known reports whether op is one of Ops.
func (op Op) Known() bool {
	for _, o := range Ops {
		if o == op {
			return true
		}
	}
	return false
}

// ObserveFunc is notified once per handled request.
type ObserveFunc func(op Op, code domain.ResultCode, elapsed time.Duration)

// Dispatcher routes privileged requests.
type Dispatcher struct {
	trans   ports.TransManager
	guard   ports.PermissionGuard
	proxy   ports.NameResolver
	udp     ports.NameResolver
	logger  *slog.Logger
	observe ObserveFunc
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger configures a logger for the Dispatcher.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithObserver installs a per-request hook, typically metrics.
func WithObserver(fn ObserveFunc) Option {
	return func(d *Dispatcher) {
		d.observe = fn
	}
}

// New creates a dispatcher. proxy and udp resolve channel ids of their type.
func New(trans ports.TransManager, guard ports.PermissionGuard, proxy, udp ports.NameResolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		trans:  trans,
		guard:  guard,
		proxy:  proxy,
		udp:    udp,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle routes op to its handler.
func (d *Dispatcher) Handle(ctx context.Context, origin domain.Origin, op Op, req Request, reply Reply) error {
	switch op {
	case OpCreateSessionServer:
		return d.CreateSessionServer(ctx, origin, req, reply)
	case OpRemoveSessionServer:
		return d.RemoveSessionServer(ctx, origin, req, reply)
	case OpOpenSession:
		return d.OpenSession(ctx, origin, req, reply)
	case OpCloseChannel:
		return d.CloseChannel(ctx, origin, req, reply)
	case OpSendSessionMsg:
		return d.SendSessionMsg(ctx, origin, req, reply)
	default:
		reply.PushInt32(int32(domain.CodeInvalidParam))
		return fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
}

// Reject answers a request whose buffer could not be decoded at all, so the
// caller still gets exactly one result code.
func (d *Dispatcher) Reject(op Op, reply Reply, err error) error {
	return d.finish(op, time.Now(), reply, err)
}

// AuthorizeEvents decides whether origin may follow the channel events of
// sessionName. The server must be registered and origin must be allowed to
// open sessions on it.
func (d *Dispatcher) AuthorizeEvents(ctx context.Context, origin domain.Origin, sessionName string) error {
	if !domain.IsValidString(sessionName, domain.SessionNameSizeMax) {
		return fmt.Errorf("%w: session name", domain.ErrInvalidParam)
	}
	pkgName, err := d.trans.PkgNameBySessionName(ctx, sessionName)
	if err != nil {
		return fmt.Errorf("events of %s: %w", sessionName, err)
	}
	if !d.allowed(ctx, origin, pkgName, sessionName, domain.ActionOpen) {
		return fmt.Errorf("events of %s for uid %d: %w", sessionName, origin.UID, domain.ErrPermissionDenied)
	}
	return nil
}

// finish pushes the one reply value for err and reports it.
func (d *Dispatcher) finish(op Op, start time.Time, reply Reply, err error) error {
	code := domain.CodeOf(err)
	reply.PushInt32(int32(code))
	d.done(op, start, code, err)
	return err
}

func (d *Dispatcher) done(op Op, start time.Time, code domain.ResultCode, err error) {
	if err != nil {
		d.logger.Warn("request failed", "op", string(op), "code", int32(code), "err", err)
	}
	if d.observe != nil {
		d.observe(op, code, time.Since(start))
	}
}

func (d *Dispatcher) allowed(ctx context.Context, origin domain.Origin, pkgName, sessionName string, action domain.Action) bool {
	return d.guard.Check(ctx, origin, pkgName, sessionName, action) == domain.Allow
}

func popServerNames(req Request) (string, string, error) {
	pkgName, err := req.PopString()
	if err != nil {
		return "", "", fmt.Errorf("%w: pkg name: %v", domain.ErrInvalidParam, err)
	}
	sessionName, err := req.PopString()
	if err != nil {
		return "", "", fmt.Errorf("%w: session name: %v", domain.ErrInvalidParam, err)
	}
	if err := domain.ValidateServerName(pkgName, sessionName); err != nil {
		return "", "", err
	}
	return pkgName, sessionName, nil
}

// CreateSessionServer handles (pkgName, sessionName) under domain.ActionCreate.
func (d *Dispatcher) CreateSessionServer(ctx context.Context, origin domain.Origin, req Request, reply Reply) error {
	start := time.Now()
	pkgName, sessionName, err := popServerNames(req)
	if err != nil {
		return d.finish(OpCreateSessionServer, start, reply, err)
	}
	if !d.allowed(ctx, origin, pkgName, sessionName, domain.ActionCreate) {
		return d.finish(OpCreateSessionServer, start, reply,
			fmt.Errorf("create %s by uid %d: %w", sessionName, origin.UID, domain.ErrPermissionDenied))
	}
	return d.finish(OpCreateSessionServer, start, reply,
		d.trans.CreateSessionServer(ctx, pkgName, sessionName, origin))
}

// RemoveSessionServer handles (pkgName, sessionName), also under domain.ActionCreate.
func (d *Dispatcher) RemoveSessionServer(ctx context.Context, origin domain.Origin, req Request, reply Reply) error {
	start := time.Now()
	pkgName, sessionName, err := popServerNames(req)
	if err != nil {
		return d.finish(OpRemoveSessionServer, start, reply, err)
	}
	if !d.allowed(ctx, origin, pkgName, sessionName, domain.ActionCreate) {
		return d.finish(OpRemoveSessionServer, start, reply,
			fmt.Errorf("remove %s by uid %d: %w", sessionName, origin.UID, domain.ErrPermissionDenied))
	}
	return d.finish(OpRemoveSessionServer, start, reply,
		d.trans.RemoveSessionServer(ctx, pkgName, sessionName))
}

func popOpenRequest(req Request) (domain.OpenRequest, error) {
	var r domain.OpenRequest
	var err error
	for _, dst := range []*string{&r.SessionName, &r.PeerSessionName, &r.PeerDeviceID, &r.GroupID} {
		if *dst, err = req.PopString(); err != nil {
			return r, fmt.Errorf("%w: %v", domain.ErrInvalidParam, err)
		}
	}
	dataType, err := req.PopInt32()
	if err != nil {
		return r, fmt.Errorf("%w: data type: %v", domain.ErrInvalidParam, err)
	}
	r.Attr.DataType = domain.DataType(dataType)
	return r, r.Validate()
}

// OpenSession handles (sessionName, peerSessionName, peerDeviceID, groupID, dataType)
// under domain.ActionOpen. On success the reply carries the channel id.
func (d *Dispatcher) OpenSession(ctx context.Context, origin domain.Origin, req Request, reply Reply) error {
	start := time.Now()
	open, err := popOpenRequest(req)
	if err != nil {
		return d.finish(OpOpenSession, start, reply, err)
	}
	pkgName, err := d.trans.PkgNameBySessionName(ctx, open.SessionName)
	if err != nil {
		return d.finish(OpOpenSession, start, reply,
			fmt.Errorf("%w: no package for %s: %v", domain.ErrInvalidChannelID, open.SessionName, err))
	}
	if !d.allowed(ctx, origin, pkgName, open.SessionName, domain.ActionOpen) {
		return d.finish(OpOpenSession, start, reply,
			fmt.Errorf("open %s by uid %d: %w", open.SessionName, origin.UID, domain.ErrPermissionDenied))
	}
	ch, err := d.trans.OpenSession(ctx, open)
	if err != nil {
		return d.finish(OpOpenSession, start, reply, err)
	}
	reply.PushInt32(ch.ID)
	d.done(OpOpenSession, start, domain.CodeOK, nil)
	d.logger.Debug("channel opened", "session_name", open.SessionName, "channel_id", ch.ID, "channel_type", ch.Type.String())
	return nil
}

// CloseChannel handles (channelID, channelType) under domain.ActionOpen.
func (d *Dispatcher) CloseChannel(ctx context.Context, origin domain.Origin, req Request, reply Reply) error {
	start := time.Now()
	channelID, err := req.PopInt32()
	if err != nil {
		return d.finish(OpCloseChannel, start, reply, fmt.Errorf("%w: channel id: %v", domain.ErrInvalidParam, err))
	}
	rawType, err := req.PopInt32()
	if err != nil {
		return d.finish(OpCloseChannel, start, reply, fmt.Errorf("%w: channel type: %v", domain.ErrInvalidParam, err))
	}

	var pkgName, sessionName string
	ct := domain.ChannelType(rawType)
	switch ct {
	case domain.ChannelTypeProxy:
		if pkgName, sessionName, err = d.proxy.ResolveNameByChannelID(ctx, channelID); err != nil {
			return d.finish(OpCloseChannel, start, reply,
				fmt.Errorf("%w: proxy %d: %v", domain.ErrInvalidChannelID, channelID, err))
		}
	case domain.ChannelTypeUDP:
		if pkgName, sessionName, err = d.udp.ResolveNameByChannelID(ctx, channelID); err != nil {
			return d.finish(OpCloseChannel, start, reply,
				fmt.Errorf("%w: udp %d: %v", domain.ErrInvalidUDPChannelID, channelID, err))
		}
	default:
		return d.finish(OpCloseChannel, start, reply,
			fmt.Errorf("%w: channel type %d", domain.ErrInvalidCloseChannelID, rawType))
	}

	if !d.allowed(ctx, origin, pkgName, sessionName, domain.ActionOpen) {
		return d.finish(OpCloseChannel, start, reply,
			fmt.Errorf("close %s by uid %d: %w", sessionName, origin.UID, domain.ErrPermissionDenied))
	}
	return d.finish(OpCloseChannel, start, reply,
		d.trans.CloseChannel(ctx, domain.ChannelBinding{ID: channelID, Type: ct}))
}

// SendSessionMsg handles (channelID, msgType, payload) under domain.ActionSendMsg.
// Only proxy channels carry messages through the privileged side.
func (d *Dispatcher) SendSessionMsg(ctx context.Context, origin domain.Origin, req Request, reply Reply) error {
	start := time.Now()
	channelID, err := req.PopInt32()
	if err != nil {
		return d.finish(OpSendSessionMsg, start, reply, fmt.Errorf("%w: channel id: %v", domain.ErrInvalidParam, err))
	}
	msgType, err := req.PopInt32()
	if err != nil {
		return d.finish(OpSendSessionMsg, start, reply, fmt.Errorf("%w: msg type: %v", domain.ErrInvalidParam, err))
	}
	payload, err := req.PopBytes()
	if err != nil {
		return d.finish(OpSendSessionMsg, start, reply, fmt.Errorf("%w: payload: %v", domain.ErrInvalidParam, err))
	}

	pkgName, sessionName, err := d.proxy.ResolveNameByChannelID(ctx, channelID)
	if err != nil {
		return d.finish(OpSendSessionMsg, start, reply,
			fmt.Errorf("%w: proxy %d: %v", domain.ErrInvalidChannelID, channelID, err))
	}
	if !d.allowed(ctx, origin, pkgName, sessionName, domain.ActionSendMsg) {
		return d.finish(OpSendSessionMsg, start, reply,
			fmt.Errorf("send on %s by uid %d: %w", sessionName, origin.UID, domain.ErrPermissionDenied))
	}
	return d.finish(OpSendSessionMsg, start, reply,
		d.trans.SendMessage(ctx, channelID, domain.MsgType(msgType), payload))
}
