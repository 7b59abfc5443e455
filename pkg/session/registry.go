package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/softbus/internal/logging"
	"github.com/aretw0/softbus/pkg/binding"
	"github.com/aretw0/softbus/pkg/domain"
)

// entry is one live session plus its bind notification.
type entry struct {
	domain.Session

	ready     chan struct{}
	readyDone bool
}

func (e *entry) signal() {
	if !e.readyDone {
		close(e.ready)
		e.readyDone = true
	}
}

// Registry is the client-side table of session servers and live sessions.
type Registry struct {
	mu       sync.Mutex
	servers  map[string]domain.SessionServer // keyed by session name
	sessions map[int]*entry
	channels *binding.Table

	maxServers int
	logger     *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMaxServers overrides domain.MaxSessionServerNum.
func WithMaxServers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxServers = n
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		servers:    make(map[string]domain.SessionServer),
		sessions:   make(map[int]*entry),
		channels:   binding.NewTable(),
		maxServers: domain.MaxSessionServerNum,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddSessionServer registers a session server under sessionName.
func (r *Registry) AddSessionServer(secType domain.SecurityType, pkgName, sessionName string, listener domain.SessionListener) error {
	if err := domain.ValidateServerName(pkgName, sessionName); err != nil {
		return err
	}
	if !domain.ValidListener(listener) {
		return fmt.Errorf("%w: incomplete listener", domain.ErrInvalidParam)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.servers[sessionName]; ok {
		return fmt.Errorf("%s: %w", sessionName, domain.ErrNameRepeated)
	}
	if len(r.servers) >= r.maxServers {
		return domain.ErrServerLimit
	}
	r.servers[sessionName] = domain.SessionServer{
		PkgName:      pkgName,
		SessionName:  sessionName,
		SecurityType: secType,
		Listener:     listener,
	}
	r.logger.Debug("session server added", "pkg_name", pkgName, "session_name", sessionName)
	return nil
}

// DeleteSessionServer removes the server registered under sessionName.
// Sessions opened under it are left untouched; see SessionsOf.
func (r *Registry) DeleteSessionServer(secType domain.SecurityType, sessionName string) error {
	if !domain.IsValidString(sessionName, domain.SessionNameSizeMax) {
		return fmt.Errorf("%w: session name", domain.ErrInvalidParam)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	srv, ok := r.servers[sessionName]
	if !ok || srv.SecurityType != secType {
		return fmt.Errorf("session server %s: %w", sessionName, domain.ErrNotFound)
	}
	delete(r.servers, sessionName)
	r.logger.Debug("session server deleted", "session_name", sessionName)
	return nil
}

// Server returns the session server registered under sessionName.
func (r *Registry) Server(sessionName string) (domain.SessionServer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	srv, ok := r.servers[sessionName]
	if !ok {
		return domain.SessionServer{}, fmt.Errorf("session server %s: %w", sessionName, domain.ErrNotFound)
	}
	return srv, nil
}

// Servers returns the registered session servers ordered by session name.
func (r *Registry) Servers() []domain.SessionServer {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.SessionServer, 0, len(r.servers))
	for _, srv := range r.servers {
		out = append(out, srv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionName < out[j].SessionName })
	return out
}

// AddResult is the outcome of AddSession.
type AddResult struct {
	SessionID int
	// Bound is set on the dedup path when the existing session already has a channel.
	Bound bool
}

// AddSession allocates a Pending session for req. If a live session already
// carries the same tuple, its id is returned together with domain.ErrSessionRepeated.
func (r *Registry) AddSession(req domain.OpenRequest) (AddResult, error) {
	if err := req.Validate(); err != nil {
		return AddResult{SessionID: domain.InvalidSessionID}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.servers[req.SessionName]; !ok {
		return AddResult{SessionID: domain.InvalidSessionID},
			fmt.Errorf("session server %s: %w", req.SessionName, domain.ErrNotFound)
	}

	for _, e := range r.sessions {
		if !e.IsServer && e.Matches(req) {
			return AddResult{SessionID: e.ID, Bound: e.State == domain.StateBound}, domain.ErrSessionRepeated
		}
	}

	id, err := r.allocID()
	if err != nil {
		return AddResult{SessionID: domain.InvalidSessionID}, err
	}
	r.sessions[id] = &entry{
		Session: domain.Session{
			ID:              id,
			SessionName:     req.SessionName,
			PeerSessionName: req.PeerSessionName,
			PeerDeviceID:    req.PeerDeviceID,
			GroupID:         req.GroupID,
			DataType:        req.Attr.DataType,
			Channel:         domain.ChannelBinding{ID: domain.InvalidChannelID},
			State:           domain.StatePending,
		},
		ready: make(chan struct{}),
	}
	r.logger.Debug("session added", "session_id", id, "session_name", req.SessionName)
	return AddResult{SessionID: id}, nil
}

// AddInboundSession records a session a peer opened toward a local server.
// It is created already Bound.
func (r *Registry) AddInboundSession(info domain.ChannelInfo) (int, error) {
	if !info.Channel.Bound() {
		return domain.InvalidSessionID, fmt.Errorf("%w: channel %+v", domain.ErrInvalidParam, info.Channel)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.servers[info.SessionName]; !ok {
		return domain.InvalidSessionID, fmt.Errorf("session server %s: %w", info.SessionName, domain.ErrNotFound)
	}
	id, err := r.allocID()
	if err != nil {
		return domain.InvalidSessionID, err
	}
	if err := r.channels.Insert(info.Channel.Key(), binding.Entry{SessionName: info.SessionName, SessionID: id}); err != nil {
		return domain.InvalidSessionID, err
	}
	e := &entry{
		Session: domain.Session{
			ID:              id,
			SessionName:     info.SessionName,
			PeerSessionName: info.PeerSessionName,
			PeerDeviceID:    info.PeerDeviceID,
			GroupID:         info.GroupID,
			Channel:         info.Channel,
			State:           domain.StateBound,
			IsServer:        true,
		},
		ready: make(chan struct{}),
	}
	e.signal()
	r.sessions[id] = e
	return id, nil
}

// allocID returns the lowest free session id. Caller holds r.mu.
func (r *Registry) allocID() (int, error) {
	for id := 1; id <= domain.MaxSessionID; id++ {
		if _, used := r.sessions[id]; !used {
			return id, nil
		}
	}
	return domain.InvalidSessionID, domain.ErrSessionLimit
}

// SetChannelBySessionID attaches a channel to a Pending session.
//
// A concrete channel type moves the session to Bound. ChannelTypeUnset records
// the id and leaves the session Pending until the channel-opened event arrives.
// An invalid channel id means the remote open failed: the session is deleted.
func (r *Registry) SetChannelBySessionID(sessionID int, ch domain.ChannelBinding) error {
	if !domain.IsValidSessionID(sessionID) {
		return fmt.Errorf("%w: session id %d", domain.ErrInvalidParam, sessionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %d: %w", sessionID, domain.ErrNotFound)
	}
	if ch.ID < 0 || (!ch.Type.Valid() && ch.Type != domain.ChannelTypeUnset) {
		r.removeLocked(e)
		return fmt.Errorf("%w: channel id %d for session %d", domain.ErrRemoteFailure, ch.ID, sessionID)
	}
	// The channel-opened event may overtake the open reply.
	if e.State == domain.StateBound && e.Channel.ID == ch.ID &&
		(ch.Type == domain.ChannelTypeUnset || ch.Type == e.Channel.Type) {
		return nil
	}
	return r.bindLocked(e, ch)
}

// bindLocked applies ch to e. Caller holds r.mu.
func (r *Registry) bindLocked(e *entry, ch domain.ChannelBinding) error {
	if e.Channel.Type.Valid() {
		r.channels.Delete(e.Channel.Key())
	}
	e.Channel = ch
	if !ch.Type.Valid() {
		return nil
	}
	if err := r.channels.Put(ch.Key(), binding.Entry{SessionName: e.SessionName, SessionID: e.ID}); err != nil {
		return err
	}
	e.State = domain.StateBound
	e.signal()
	r.logger.Debug("session bound", "session_id", e.ID, "channel_id", ch.ID, "channel_type", ch.Type.String())
	return nil
}

// BindOpened binds the Pending session carrying the tuple of info to info.Channel.
func (r *Registry) BindOpened(info domain.ChannelInfo) (int, error) {
	if !info.Channel.Bound() {
		return domain.InvalidSessionID, fmt.Errorf("%w: channel %+v", domain.ErrInvalidParam, info.Channel)
	}
	req := domain.OpenRequest{
		SessionName:     info.SessionName,
		PeerSessionName: info.PeerSessionName,
		PeerDeviceID:    info.PeerDeviceID,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.sessions {
		if e.IsServer || !e.Matches(req) {
			continue
		}
		if e.Channel.ID != domain.InvalidChannelID && e.Channel.ID != info.Channel.ID {
			return domain.InvalidSessionID, fmt.Errorf("%w: session %d is on channel %d, event names %d",
				domain.ErrInvalidParam, e.ID, e.Channel.ID, info.Channel.ID)
		}
		if err := r.bindLocked(e, info.Channel); err != nil {
			return domain.InvalidSessionID, err
		}
		return e.ID, nil
	}
	return domain.InvalidSessionID, fmt.Errorf("pending session %s -> %s: %w", info.SessionName, info.PeerSessionName, domain.ErrNotFound)
}

// DeleteSession removes a session and releases its id.
func (r *Registry) DeleteSession(sessionID int) error {
	if !domain.IsValidSessionID(sessionID) {
		return fmt.Errorf("%w: session id %d", domain.ErrInvalidParam, sessionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %d: %w", sessionID, domain.ErrNotFound)
	}
	r.removeLocked(e)
	return nil
}

// removeLocked drops e and wakes its waiters. Caller holds r.mu.
func (r *Registry) removeLocked(e *entry) {
	if e.Channel.Type.Valid() {
		r.channels.Delete(e.Channel.Key())
	}
	e.State = domain.StateClosed
	e.signal()
	delete(r.sessions, e.ID)
	r.logger.Debug("session deleted", "session_id", e.ID)
}

// GetChannelBySessionID returns the channel binding and state of a session.
func (r *Registry) GetChannelBySessionID(sessionID int) (domain.ChannelBinding, domain.SessionState, error) {
	if !domain.IsValidSessionID(sessionID) {
		return domain.ChannelBinding{}, domain.StateClosed, fmt.Errorf("%w: session id %d", domain.ErrInvalidParam, sessionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return domain.ChannelBinding{}, domain.StateClosed, fmt.Errorf("session %d: %w", sessionID, domain.ErrNotFound)
	}
	return e.Channel, e.State, nil
}

// SessionByChannel resolves a bound channel to its session id.
func (r *Registry) SessionByChannel(ch domain.ChannelBinding) (int, error) {
	e, err := r.channels.Get(ch.Key())
	if err != nil {
		return domain.InvalidSessionID, err
	}
	return e.SessionID, nil
}

// GetSessionDataByID reads one string field of a session. maxLen plays the role
// of the caller's buffer: values that do not fit are rejected, not truncated.
func (r *Registry) GetSessionDataByID(sessionID int, key domain.SessionKey, maxLen int) (string, error) {
	if !domain.IsValidSessionID(sessionID) || maxLen <= 0 {
		return "", fmt.Errorf("%w: session id %d len %d", domain.ErrInvalidParam, sessionID, maxLen)
	}

	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	var v string
	if ok {
		switch key {
		case domain.KeySessionName:
			v = e.SessionName
		case domain.KeyPeerSessionName:
			v = e.PeerSessionName
		case domain.KeyPeerDeviceID:
			v = e.PeerDeviceID
		case domain.KeyGroupID:
			v = e.GroupID
		default:
			r.mu.Unlock()
			return "", fmt.Errorf("%w: key %d", domain.ErrInvalidParam, key)
		}
	}
	r.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("session %d: %w", sessionID, domain.ErrNotFound)
	}
	if len(v) >= maxLen {
		return "", fmt.Errorf("%w: value of %d bytes does not fit in %d", domain.ErrInvalidParam, len(v), maxLen)
	}
	return v, nil
}

// Get returns a snapshot of one session.
func (r *Registry) Get(sessionID int) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return domain.Session{}, fmt.Errorf("session %d: %w", sessionID, domain.ErrNotFound)
	}
	return e.Session, nil
}

// Listener returns the listener of the server owning sessionID.
func (r *Registry) Listener(sessionID int) (domain.SessionListener, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", sessionID, domain.ErrNotFound)
	}
	srv, ok := r.servers[e.SessionName]
	if !ok {
		return nil, fmt.Errorf("session server %s: %w", e.SessionName, domain.ErrNotFound)
	}
	return srv.Listener, nil
}

// SessionsOf returns the live sessions opened under sessionName, ordered by id.
func (r *Registry) SessionsOf(sessionName string) []domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Session
	for _, e := range r.sessions {
		if e.SessionName == sessionName {
			out = append(out, e.Session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sessions returns a snapshot of every live session, ordered by id.
func (r *Registry) Sessions() []domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.Session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WaitBound blocks until sessionID is Bound, removed, ctx is done or timeout elapses.
// It returns nil once Bound, domain.ErrNotFound if the session went away and
// domain.ErrTimeout when the budget is exhausted. The registry lock is only held
// to look up the session, never while waiting.
func (r *Registry) WaitBound(ctx context.Context, sessionID int, timeout time.Duration) error {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	var ready <-chan struct{}
	if ok {
		ready = e.ready
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %d: %w", sessionID, domain.ErrNotFound)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
	case <-timer.C:
		return fmt.Errorf("session %d not bound after %s: %w", sessionID, timeout, domain.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	// The id may already belong to a new session; only e's own state counts.
	r.mu.Lock()
	state := e.State
	r.mu.Unlock()
	if state != domain.StateBound {
		return fmt.Errorf("session %d: %w", sessionID, domain.ErrNotFound)
	}
	return nil
}

// IsRepeated reports whether err is the dedup signal of AddSession.
func IsRepeated(err error) bool {
	return errors.Is(err, domain.ErrSessionRepeated)
}
