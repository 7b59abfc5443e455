package softbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/softbus/internal/logging"
	"github.com/aretw0/softbus/pkg/adapters/memory"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ports"
	"github.com/aretw0/softbus/pkg/session"
)

// Defaults of the OpenSessionSync wait budget.
const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultMaxAttempts  = 100
)

// ErrListenerRejected is returned when OnSessionOpened refuses an already bound session.
var ErrListenerRejected = errors.New("listener rejected session")

// SessionGauge receives the live session count after every change.
type SessionGauge interface {
	SetSessions(n int)
}

// Client drives the session lifecycle of one application process.
// Safe for concurrent use.
type Client struct {
	registry *session.Registry
	remote   ports.RemoteServer
	boot     ports.Bootstrapper

	serverMu sync.Mutex // serializes session server create/remove

	pollInterval time.Duration
	maxAttempts  int
	gauge        SessionGauge
	logger       *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithBootstrapper replaces the in-process bootstrapper.
func WithBootstrapper(b ports.Bootstrapper) Option {
	return func(c *Client) {
		c.boot = b
	}
}

// WithLogger sets a custom structured logger for the client and its registry.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics reports the live session count to g.
func WithMetrics(g SessionGauge) Option {
	return func(c *Client) {
		c.gauge = g
	}
}

// WithOpenSyncPolicy sets the OpenSessionSync budget to interval x attempts.
func WithOpenSyncPolicy(interval time.Duration, attempts int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// NewClient creates a client talking to the broker through remote.
func NewClient(remote ports.RemoteServer, opts ...Option) *Client {
	c := &Client{
		remote:       remote,
		boot:         memory.NewBootstrapper(),
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registry = session.NewRegistry(session.WithLogger(c.logger))
	return c
}

// Registry exposes the client's registry for inspection.
func (c *Client) Registry() *session.Registry {
	return c.registry
}

// OpenSyncTimeout is the upper bound OpenSessionSync waits for a binding.
func (c *Client) OpenSyncTimeout() time.Duration {
	return c.pollInterval * time.Duration(c.maxAttempts)
}

func (c *Client) sessionsChanged() {
	if c.gauge != nil {
		c.gauge.SetSessions(len(c.registry.Sessions()))
	}
}

// CreateSessionServer registers sessionName locally and with the broker.
//
// A broker reply of domain.ErrNameRepeated counts as success. Calling it again
// for a server this client already registered under the same package is a no-op.
// Any other broker failure rolls the local registration back.
func (c *Client) CreateSessionServer(ctx context.Context, pkgName, sessionName string, listener domain.SessionListener) error {
	if err := domain.ValidateServerName(pkgName, sessionName); err != nil {
		return err
	}
	if !domain.ValidListener(listener) {
		return fmt.Errorf("%w: incomplete listener", domain.ErrInvalidParam)
	}
	c.logger.Info("CreateSessionServer", "pkg_name", pkgName, "session_name", sessionName)

	if err := c.boot.InitSubsystem(ctx, pkgName); err != nil {
		return fmt.Errorf("init subsystem: %w", err)
	}
	if err := c.boot.CheckPackageName(pkgName); err != nil {
		return err
	}

	c.serverMu.Lock()
	defer c.serverMu.Unlock()

	if srv, err := c.registry.Server(sessionName); err == nil {
		if srv.PkgName == pkgName {
			c.logger.Info("session server already created", "session_name", sessionName)
			return nil
		}
		return fmt.Errorf("%s owned by %s: %w", sessionName, srv.PkgName, domain.ErrNameRepeated)
	}

	if err := c.registry.AddSessionServer(domain.SecTypeCiphertext, pkgName, sessionName, listener); err != nil {
		return err
	}

	err := c.remote.CreateSessionServer(ctx, pkgName, sessionName)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNameRepeated):
		c.logger.Info("session server is already created remotely", "session_name", sessionName)
	default:
		c.logger.Error("remote create session server failed", "session_name", sessionName, "err", err)
		if delErr := c.registry.DeleteSessionServer(domain.SecTypeCiphertext, sessionName); delErr != nil {
			c.logger.Warn("rollback of session server failed", "session_name", sessionName, "err", delErr)
		}
		return err
	}
	return nil
}

// RemoveSessionServer unregisters with the broker first and only then locally.
// Sessions still open under the server are closed before the local entry goes away.
func (c *Client) RemoveSessionServer(ctx context.Context, pkgName, sessionName string) error {
	if err := domain.ValidateServerName(pkgName, sessionName); err != nil {
		return err
	}
	c.logger.Info("RemoveSessionServer", "pkg_name", pkgName, "session_name", sessionName)

	c.serverMu.Lock()
	defer c.serverMu.Unlock()

	if err := c.remote.RemoveSessionServer(ctx, pkgName, sessionName); err != nil {
		c.logger.Error("remove in server failed", "session_name", sessionName, "err", err)
		return err
	}

	for _, s := range c.registry.SessionsOf(sessionName) {
		c.CloseSession(ctx, s.ID)
	}

	if err := c.registry.DeleteSessionServer(domain.SecTypeCiphertext, sessionName); err != nil {
		c.logger.Error("delete session server failed", "session_name", sessionName, "err", err)
		return err
	}
	return nil
}

// OpenSession asks the broker for a channel toward the peer and returns at once.
//
// If a session with the same (session name, peer session name, peer device id)
// exists, no new remote call is made: a Bound one is re-announced through
// OnSessionOpened, a Pending one is returned as is. On failure the Pending
// session is removed and domain.InvalidSessionID returned.
func (c *Client) OpenSession(ctx context.Context, req domain.OpenRequest) (int, error) {
	id, repeated, err := c.openSession(ctx, req)
	if err != nil || !repeated.hit {
		return id, err
	}
	return c.openExisting(ctx, id, repeated.bound)
}

// OpenSessionSync is OpenSession followed by a bounded wait for the channel to bind.
// Running out of budget is logged, not returned: the id is still handed back and
// a later channel-opened event may complete it. ctx cancellation ends the wait early.
func (c *Client) OpenSessionSync(ctx context.Context, req domain.OpenRequest) (int, error) {
	id, repeated, err := c.openSession(ctx, req)
	if err != nil {
		return id, err
	}
	c.waitBound(ctx, id)
	if repeated.hit {
		return c.openExisting(ctx, id, repeated.bound)
	}
	return id, nil
}

type dedup struct {
	hit   bool
	bound bool
}

func (c *Client) openSession(ctx context.Context, req domain.OpenRequest) (int, dedup, error) {
	if err := req.Validate(); err != nil {
		c.logger.Error("OpenSession invalid param", "err", err)
		return domain.InvalidSessionID, dedup{}, err
	}
	c.logger.Info("OpenSession", "session_name", req.SessionName, "peer_session_name", req.PeerSessionName)

	res, err := c.registry.AddSession(req)
	if session.IsRepeated(err) {
		c.logger.Info("session already opened", "session_id", res.SessionID)
		return res.SessionID, dedup{hit: true, bound: res.Bound}, nil
	}
	if err != nil {
		return domain.InvalidSessionID, dedup{}, err
	}
	c.sessionsChanged()

	ch, err := c.remote.OpenSession(ctx, req)
	if err != nil {
		c.logger.Error("remote open session failed", "session_id", res.SessionID, "err", err)
		c.dropSession(res.SessionID)
		return domain.InvalidSessionID, dedup{}, err
	}
	if err := c.registry.SetChannelBySessionID(res.SessionID, ch); err != nil {
		c.logger.Error("open session failed", "session_id", res.SessionID, "channel_id", ch.ID, "err", err)
		c.dropSession(res.SessionID)
		return domain.InvalidSessionID, dedup{}, err
	}
	c.logger.Info("OpenSession ok", "session_id", res.SessionID, "channel_id", ch.ID)
	return res.SessionID, dedup{}, nil
}

// dropSession removes a session that may already be gone.
func (c *Client) dropSession(id int) {
	if err := c.registry.DeleteSession(id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		c.logger.Warn("delete session failed", "session_id", id, "err", err)
	}
	c.sessionsChanged()
}

func (c *Client) openExisting(ctx context.Context, id int, bound bool) (int, error) {
	if !bound {
		c.logger.Info("the channel is opening", "session_id", id)
		return id, nil
	}
	listener, err := c.registry.Listener(id)
	if err != nil {
		c.logger.Error("get session listener failed", "session_id", id, "err", err)
		return id, nil
	}
	if cbErr := listener.OnSessionOpened(id, nil); cbErr != nil {
		c.logger.Error("session callback OnSessionOpened failed", "session_id", id, "err", cbErr)
		c.CloseSession(ctx, id)
		return domain.InvalidSessionID, fmt.Errorf("%w %d: %v", ErrListenerRejected, id, cbErr)
	}
	return id, nil
}

func (c *Client) waitBound(ctx context.Context, id int) {
	err := c.registry.WaitBound(ctx, id, c.OpenSyncTimeout())
	switch {
	case err == nil:
		c.logger.Info("session is enabled", "session_id", id)
	case errors.Is(err, domain.ErrTimeout):
		c.logger.Error("session open timeout", "session_id", id, "timeout", c.OpenSyncTimeout())
	default:
		c.logger.Warn("stopped waiting for session", "session_id", id, "err", err)
	}
}

// CloseSession closes the session's channel and always forgets the session locally.
// Unknown or invalid ids are ignored; a remote failure is only logged.
func (c *Client) CloseSession(ctx context.Context, sessionID int) {
	c.logger.Info("CloseSession", "session_id", sessionID)
	if !domain.IsValidSessionID(sessionID) {
		c.logger.Error("CloseSession invalid param", "session_id", sessionID)
		return
	}
	ch, _, err := c.registry.GetChannelBySessionID(sessionID)
	if err != nil {
		c.logger.Error("get channel err", "session_id", sessionID, "err", err)
		return
	}
	if err := c.remote.CloseChannel(ctx, ch); err != nil {
		c.logger.Info("close channel err", "session_id", sessionID,
			"channel_id", ch.ID, "channel_type", ch.Type.String(), "err", err)
	}
	c.dropSession(sessionID)
}

func (c *Client) sessionData(sessionID int, key domain.SessionKey, maxLen int) (string, error) {
	if !domain.IsValidSessionID(sessionID) || maxLen <= 0 || maxLen > domain.SessionNameSizeMax {
		return "", fmt.Errorf("%w: session id %d len %d", domain.ErrInvalidParam, sessionID, maxLen)
	}
	return c.registry.GetSessionDataByID(sessionID, key, maxLen)
}

// GetMySessionName returns the local session name. maxLen is the caller's
// capacity and may not exceed domain.SessionNameSizeMax.
func (c *Client) GetMySessionName(sessionID, maxLen int) (string, error) {
	return c.sessionData(sessionID, domain.KeySessionName, maxLen)
}

// GetPeerSessionName returns the peer's session name.
func (c *Client) GetPeerSessionName(sessionID, maxLen int) (string, error) {
	return c.sessionData(sessionID, domain.KeyPeerSessionName, maxLen)
}

// GetPeerDeviceID returns the peer's device id.
func (c *Client) GetPeerDeviceID(sessionID, maxLen int) (string, error) {
	return c.sessionData(sessionID, domain.KeyPeerDeviceID, maxLen)
}

func (c *Client) send(ctx context.Context, sessionID int, msgType domain.MsgType, data []byte) error {
	if !domain.IsValidSessionID(sessionID) || len(data) == 0 {
		return fmt.Errorf("%w: session id %d, %d bytes", domain.ErrInvalidParam, sessionID, len(data))
	}
	ch, state, err := c.registry.GetChannelBySessionID(sessionID)
	if err != nil {
		return err
	}
	if state != domain.StateBound {
		return fmt.Errorf("%w: session %d is %s", domain.ErrInvalidParam, sessionID, state)
	}
	if ch.Type != domain.ChannelTypeProxy {
		return fmt.Errorf("%w: session %d is on %s", domain.ErrInvalidChannelID, sessionID, ch.Key())
	}
	return c.remote.SendMessage(ctx, ch.ID, msgType, data)
}

// SendBytes sends a bytes payload on a Bound proxy session.
func (c *Client) SendBytes(ctx context.Context, sessionID int, data []byte) error {
	return c.send(ctx, sessionID, domain.MsgTypeBytes, data)
}

// SendMessage sends a message payload on a Bound proxy session.
func (c *Client) SendMessage(ctx context.Context, sessionID int, data []byte) error {
	return c.send(ctx, sessionID, domain.MsgTypeMessage, data)
}

// Close closes every session and removes every session server. Failures are
// joined; the local state is emptied regardless.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	for _, srv := range c.registry.Servers() {
		if err := c.RemoveSessionServer(ctx, srv.PkgName, srv.SessionName); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range c.registry.Sessions() {
		c.CloseSession(ctx, s.ID)
	}
	for _, srv := range c.registry.Servers() {
		_ = c.registry.DeleteSessionServer(srv.SecurityType, srv.SessionName)
	}
	return errors.Join(errs...)
}
