package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/softbus/internal/logging"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ports"
)

// allocAttempts bounds the retries when an allocated id turns out to be bound,
// e.g. after the shared id counter was reset.
const allocAttempts = 8

type serverRecord struct {
	pkgName string
	origin  domain.Origin
}

// TransManager is the reference privileged-side session and channel manager.
//
// It has no network: channels it opens are loopback channels whose events are
// reported to the opener through the configured EventSink. Channel ids and
// ownership live in a ports.ChannelStore so several broker replicas can share
// it without handing out the same channel twice.
// Work on one channel is serialized by a per-channel lock, optionally backed by
// a ports.DistributedLocker.
type TransManager struct {
	mu      sync.Mutex
	servers map[string]serverRecord // keyed by session name
	infos   map[domain.ChannelKey]domain.ChannelInfo

	store  ports.ChannelStore
	locks  *keyedLocks
	sink   func(domain.ChannelEvent)
	logger *slog.Logger
}

var _ ports.TransManager = (*TransManager)(nil)

// ManagerOption configures the TransManager.
type ManagerOption func(*TransManager)

// WithStore replaces the default in-memory channel store.
func WithStore(store ports.ChannelStore) ManagerOption {
	return func(m *TransManager) {
		m.store = store
	}
}

// WithLocker enables distributed per-channel locking.
func WithLocker(locker ports.DistributedLocker) ManagerOption {
	return func(m *TransManager) {
		m.locks.locker = locker
	}
}

// WithEventSink receives channel events. It is called without internal locks held.
func WithEventSink(sink func(domain.ChannelEvent)) ManagerOption {
	return func(m *TransManager) {
		m.sink = sink
	}
}

// WithLogger configures a logger for the TransManager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *TransManager) {
		m.logger = logger
		m.locks.logger = logger
	}
}

// NewTransManager creates a manager with an in-memory store.
func NewTransManager(opts ...ManagerOption) *TransManager {
	logger := logging.NewNop()
	m := &TransManager{
		servers: make(map[string]serverRecord),
		infos:   make(map[domain.ChannelKey]domain.ChannelInfo),
		store:   NewStore(),
		locks:   newKeyedLocks(logger),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the channel ownership store, for building NameResolvers.
func (m *TransManager) Store() ports.ChannelStore {
	return m.store
}

func (m *TransManager) emit(ev domain.ChannelEvent) {
	if m.sink != nil {
		m.sink(ev)
	}
}

func (m *TransManager) CreateSessionServer(ctx context.Context, pkgName, sessionName string, origin domain.Origin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.servers[sessionName]; ok {
		return fmt.Errorf("%s: %w", sessionName, domain.ErrNameRepeated)
	}
	m.servers[sessionName] = serverRecord{pkgName: pkgName, origin: origin}
	m.logger.Info("session server created", "pkg_name", pkgName, "session_name", sessionName, "uid", origin.UID)
	return nil
}

// RemoveSessionServer unregisters the server and closes every channel it owns.
func (m *TransManager) RemoveSessionServer(ctx context.Context, pkgName, sessionName string) error {
	m.mu.Lock()
	rec, ok := m.servers[sessionName]
	if !ok || rec.pkgName != pkgName {
		m.mu.Unlock()
		return fmt.Errorf("session server %s/%s: %w", pkgName, sessionName, domain.ErrNotFound)
	}
	delete(m.servers, sessionName)
	var owned []domain.ChannelBinding
	for _, info := range m.infos {
		if info.SessionName == sessionName {
			owned = append(owned, info.Channel)
		}
	}
	m.mu.Unlock()

	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })
	for _, ch := range owned {
		if err := m.CloseChannel(ctx, ch); err != nil {
			m.logger.Warn("close on server removal failed", "session_name", sessionName, "channel_id", ch.ID, "err", err)
		}
	}
	m.logger.Info("session server removed", "pkg_name", pkgName, "session_name", sessionName)
	return nil
}

func (m *TransManager) PkgNameBySessionName(ctx context.Context, sessionName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.servers[sessionName]
	if !ok {
		return "", fmt.Errorf("session server %s: %w", sessionName, domain.ErrNotFound)
	}
	return rec.pkgName, nil
}

// channelTypeFor picks the transport for a payload kind: bulk kinds ride udp.
func channelTypeFor(dt domain.DataType) domain.ChannelType {
	switch dt {
	case domain.TypeFile, domain.TypeStream:
		return domain.ChannelTypeUDP
	default:
		return domain.ChannelTypeProxy
	}
}

// OpenSession allocates a loopback channel from the store and reports it as
// opened. Ids are numbered per channel type.
func (m *TransManager) OpenSession(ctx context.Context, req domain.OpenRequest) (domain.ChannelBinding, error) {
	m.mu.Lock()
	rec, ok := m.servers[req.SessionName]
	m.mu.Unlock()
	if !ok {
		return domain.ChannelBinding{ID: domain.InvalidChannelID}, fmt.Errorf("session server %s: %w", req.SessionName, domain.ErrNotFound)
	}

	ct := channelTypeFor(req.Attr.DataType)
	var (
		info domain.ChannelInfo
		err  error
	)
	for attempt := 0; attempt < allocAttempts; attempt++ {
		if info, err = m.bindNew(ctx, ct, rec.pkgName, req); !errors.Is(err, domain.ErrChannelBound) {
			break
		}
		m.logger.Warn("allocated channel already bound", "channel_id", info.Channel.ID, "channel_type", ct.String())
	}
	if err != nil {
		return domain.ChannelBinding{ID: domain.InvalidChannelID}, err
	}
	ch := info.Channel

	m.logger.Debug("channel opened", "session_name", req.SessionName, "channel_id", ch.ID, "channel_type", ch.Type.String())
	m.emit(domain.ChannelEvent{Type: domain.EventChannelOpened, Info: info})
	return ch, nil
}

// bindNew allocates one id of type ct and claims it for the request's server.
// The returned info carries the allocated channel even when the claim fails.
func (m *TransManager) bindNew(ctx context.Context, ct domain.ChannelType, pkgName string, req domain.OpenRequest) (domain.ChannelInfo, error) {
	id, err := m.store.Allocate(ctx, ct)
	if err != nil {
		return domain.ChannelInfo{Channel: domain.ChannelBinding{ID: domain.InvalidChannelID}}, err
	}
	info := domain.ChannelInfo{
		SessionName:     req.SessionName,
		PeerSessionName: req.PeerSessionName,
		PeerDeviceID:    req.PeerDeviceID,
		GroupID:         req.GroupID,
		Channel:         domain.ChannelBinding{ID: id, Type: ct},
	}
	key := info.Channel.Key()
	err = m.locks.with(ctx, key.String(), func(ctx context.Context) error {
		if err := m.store.Bind(ctx, key, pkgName, req.SessionName); err != nil {
			return err
		}
		m.mu.Lock()
		m.infos[key] = info
		m.mu.Unlock()
		return nil
	})
	return info, err
}

func (m *TransManager) infoOf(key domain.ChannelKey) domain.ChannelInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infos[key]
}

func (m *TransManager) CloseChannel(ctx context.Context, ch domain.ChannelBinding) error {
	var info domain.ChannelInfo
	err := m.locks.with(ctx, ch.Key().String(), func(ctx context.Context) error {
		if _, _, err := m.store.Lookup(ctx, ch.Key()); err != nil {
			return fmt.Errorf("channel %s: %w", ch.Key(), err)
		}
		if err := m.store.Unbind(ctx, ch.Key()); err != nil {
			return err
		}
		m.mu.Lock()
		info = m.infos[ch.Key()]
		delete(m.infos, ch.Key())
		m.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("channel closed", "channel_id", ch.ID, "channel_type", ch.Type.String())
	m.emit(domain.ChannelEvent{Type: domain.EventChannelClosed, Info: info})
	return nil
}

// SendMessage loops payload back to the channel owner as a message event.
func (m *TransManager) SendMessage(ctx context.Context, channelID int32, msgType domain.MsgType, payload []byte) error {
	if msgType != domain.MsgTypeBytes && msgType != domain.MsgTypeMessage {
		return fmt.Errorf("%w: msg type %d", domain.ErrInvalidParam, msgType)
	}
	ch := domain.ChannelBinding{ID: channelID, Type: domain.ChannelTypeProxy}

	var info domain.ChannelInfo
	err := m.locks.with(ctx, ch.Key().String(), func(ctx context.Context) error {
		if _, _, err := m.store.Lookup(ctx, ch.Key()); err != nil {
			return fmt.Errorf("channel %s: %w", ch.Key(), err)
		}
		info = m.infoOf(ch.Key())
		return nil
	})
	if err != nil {
		return err
	}

	m.emit(domain.ChannelEvent{
		Type:    domain.EventChannelMessage,
		Info:    info,
		MsgType: msgType,
		Data:    append([]byte(nil), payload...),
	})
	return nil
}

// Channel returns the info of a channel this manager opened.
func (m *TransManager) Channel(ctx context.Context, key domain.ChannelKey) (domain.ChannelInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.infos[key]
	if !ok {
		return domain.ChannelInfo{}, fmt.Errorf("channel %s: %w", key, domain.ErrNotFound)
	}
	return info, nil
}

// Channels lists the open channels ordered by id.
func (m *TransManager) Channels() []domain.ChannelInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.ChannelInfo, 0, len(m.infos))
	for _, info := range m.infos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Channel, out[j].Channel
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Type < b.Type
	})
	return out
}
