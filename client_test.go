package softbus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRemote simulates the broker.
type MockRemote struct {
	mock.Mock
}

func (m *MockRemote) CreateSessionServer(ctx context.Context, pkgName, sessionName string) error {
	return m.Called(pkgName, sessionName).Error(0)
}

func (m *MockRemote) RemoveSessionServer(ctx context.Context, pkgName, sessionName string) error {
	return m.Called(pkgName, sessionName).Error(0)
}

func (m *MockRemote) OpenSession(ctx context.Context, req domain.OpenRequest) (domain.ChannelBinding, error) {
	args := m.Called(req)
	return args.Get(0).(domain.ChannelBinding), args.Error(1)
}

func (m *MockRemote) CloseChannel(ctx context.Context, ch domain.ChannelBinding) error {
	return m.Called(ch).Error(0)
}

func (m *MockRemote) SendMessage(ctx context.Context, channelID int32, msgType domain.MsgType, payload []byte) error {
	return m.Called(channelID, msgType, payload).Error(0)
}

var _ ports.RemoteServer = (*MockRemote)(nil)

// recordingListener remembers every callback.
type recordingListener struct {
	mu       sync.Mutex
	opened   []int
	closed   []int
	bytes    [][]byte
	messages [][]byte
	reject   error
}

func (l *recordingListener) OnSessionOpened(id int, result error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened = append(l.opened, id)
	return l.reject
}

func (l *recordingListener) OnSessionClosed(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = append(l.closed, id)
}

func (l *recordingListener) OnBytesReceived(id int, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bytes = append(l.bytes, data)
}

func (l *recordingListener) OnMessageReceived(id int, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, data)
}

func (l *recordingListener) openedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.opened)
}

const (
	pkgName     = "com.demo"
	sessionName = "com.demo.chat"
)

func chatReq() domain.OpenRequest {
	return domain.OpenRequest{
		SessionName:     sessionName,
		PeerSessionName: "com.peer.chat",
		PeerDeviceID:    "dev123",
		GroupID:         "group1",
		Attr:            domain.SessionAttribute{DataType: domain.TypeBytes},
	}
}

func newServingClient(t *testing.T, opts ...Option) (*Client, *MockRemote, *recordingListener) {
	t.Helper()
	remote := &MockRemote{}
	remote.On("CreateSessionServer", pkgName, sessionName).Return(nil).Once()
	listener := &recordingListener{}
	c := NewClient(remote, opts...)
	require.NoError(t, c.CreateSessionServer(context.Background(), pkgName, sessionName, listener))
	return c, remote, listener
}

func TestClient_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	c, remote, _ := newServingClient(t)
	remote.On("OpenSession", chatReq()).Return(domain.ChannelBinding{ID: 42, Type: domain.ChannelTypeProxy}, nil).Once()

	id, err := c.OpenSession(ctx, chatReq())
	require.NoError(t, err)
	require.True(t, domain.IsValidSessionID(id))

	ch, state, err := c.Registry().GetChannelBySessionID(id)
	require.NoError(t, err)
	assert.Equal(t, int32(42), ch.ID)
	assert.Equal(t, domain.StateBound, state)

	remote.On("CloseChannel", ch).Return(nil).Once()
	c.CloseSession(ctx, id)

	_, _, err = c.Registry().GetChannelBySessionID(id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	remote.AssertExpectations(t)
}

func TestClient_OpenSession_Dedup(t *testing.T) {
	ctx := context.Background()
	c, remote, listener := newServingClient(t)
	remote.On("OpenSession", chatReq()).Return(domain.ChannelBinding{ID: 3, Type: domain.ChannelTypeProxy}, nil).Once()

	first, err := c.OpenSession(ctx, chatReq())
	require.NoError(t, err)
	second, err := c.OpenSession(ctx, chatReq())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	remote.AssertNumberOfCalls(t, "OpenSession", 1)
	assert.Equal(t, 1, listener.openedCount(), "bound duplicate is re-announced")
}

func TestClient_OpenSession_DedupPending(t *testing.T) {
	ctx := context.Background()
	c, remote, listener := newServingClient(t)
	remote.On("OpenSession", chatReq()).Return(domain.ChannelBinding{ID: 3}, nil).Once()

	first, err := c.OpenSession(ctx, chatReq())
	require.NoError(t, err)
	second, err := c.OpenSession(ctx, chatReq())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 0, listener.openedCount(), "the channel is still opening")
}

func TestClient_OpenSession_DedupRejected(t *testing.T) {
	ctx := context.Background()
	c, remote, listener := newServingClient(t)
	ch := domain.ChannelBinding{ID: 3, Type: domain.ChannelTypeProxy}
	remote.On("OpenSession", chatReq()).Return(ch, nil).Once()
	remote.On("CloseChannel", ch).Return(nil).Once()

	first, err := c.OpenSession(ctx, chatReq())
	require.NoError(t, err)

	listener.reject = errors.New("busy")
	id, err := c.OpenSession(ctx, chatReq())
	assert.ErrorIs(t, err, ErrListenerRejected)
	assert.Equal(t, domain.InvalidSessionID, id)

	_, _, err = c.Registry().GetChannelBySessionID(first)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	remote.AssertExpectations(t)
}

func TestClient_OpenSession_InvalidParams(t *testing.T) {
	ctx := context.Background()
	c, remote, _ := newServingClient(t)

	mutate := map[string]func(*domain.OpenRequest){
		"empty peer session": func(r *domain.OpenRequest) { r.PeerSessionName = "" },
		"long device id":     func(r *domain.OpenRequest) { r.PeerDeviceID = strings.Repeat("d", domain.DeviceIDSizeMax) },
		"long group id":      func(r *domain.OpenRequest) { r.GroupID = strings.Repeat("g", domain.GroupIDSizeMax) },
		"data type too high": func(r *domain.OpenRequest) { r.Attr.DataType = domain.TypeStream + 1 },
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			req := chatReq()
			fn(&req)
			id, err := c.OpenSession(ctx, req)
			assert.ErrorIs(t, err, domain.ErrInvalidParam)
			assert.Equal(t, domain.InvalidSessionID, id)
		})
	}
	remote.AssertNotCalled(t, "OpenSession", mock.Anything)
}

func TestClient_OpenSession_RemoteFailure(t *testing.T) {
	ctx := context.Background()
	c, remote, _ := newServingClient(t)
	remote.On("OpenSession", chatReq()).Return(domain.ChannelBinding{ID: domain.InvalidChannelID}, domain.ErrPermissionDenied).Once()

	id, err := c.OpenSession(ctx, chatReq())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, domain.InvalidSessionID, id)
	assert.Empty(t, c.Registry().Sessions(), "pending session must not dangle")
}

func TestClient_OpenSession_InvalidChannel(t *testing.T) {
	ctx := context.Background()
	c, remote, _ := newServingClient(t)
	remote.On("OpenSession", chatReq()).Return(domain.ChannelBinding{ID: domain.InvalidChannelID}, nil).Once()

	id, err := c.OpenSession(ctx, chatReq())
	assert.ErrorIs(t, err, domain.ErrRemoteFailure)
	assert.Equal(t, domain.InvalidSessionID, id)
	assert.Empty(t, c.Registry().Sessions())
}

func TestClient_OpenSessionSync_Timeout(t *testing.T) {
	ctx := context.Background()
	c, remote, _ := newServingClient(t, WithOpenSyncPolicy(5*time.Millisecond, 4))
	remote.On("OpenSession", chatReq()).Return(domain.ChannelBinding{ID: 8}, nil).Once()

	start := time.Now()
	id, err := c.OpenSessionSync(ctx, chatReq())
	elapsed := time.Since(start)

	require.NoError(t, err, "timeout is not reported to the caller")
	assert.True(t, domain.IsValidSessionID(id))
	assert.GreaterOrEqual(t, elapsed, c.OpenSyncTimeout())
	assert.Less(t, elapsed, time.Second)

	_, state, err := c.Registry().GetChannelBySessionID(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, state)
}

func TestClient_OpenSessionSync_CompletedByEvent(t *testing.T) {
	ctx := context.Background()
	c, remote, listener := newServingClient(t, WithOpenSyncPolicy(10*time.Millisecond, 100))
	remote.On("OpenSession", chatReq()).Return(domain.ChannelBinding{ID: 8}, nil).Once()

	go func() {
		time.Sleep(20 * time.Millisecond)
		req := chatReq()
		_ = c.OnChannelOpened(ctx, domain.ChannelInfo{
			SessionName:     req.SessionName,
			PeerSessionName: req.PeerSessionName,
			PeerDeviceID:    req.PeerDeviceID,
			Channel:         domain.ChannelBinding{ID: 8, Type: domain.ChannelTypeUDP},
		})
	}()

	start := time.Now()
	id, err := c.OpenSessionSync(ctx, chatReq())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), c.OpenSyncTimeout())

	ch, state, err := c.Registry().GetChannelBySessionID(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateBound, state)
	assert.Equal(t, domain.ChannelTypeUDP, ch.Type)
	assert.Eventually(t, func() bool { return listener.openedCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestClient_OpenSessionSync_Cancelled(t *testing.T) {
	c, remote, _ := newServingClient(t)
	remote.On("OpenSession", chatReq()).Return(domain.ChannelBinding{ID: 8}, nil).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	id, err := c.OpenSessionSync(ctx, chatReq())
	require.NoError(t, err)
	assert.True(t, domain.IsValidSessionID(id))
	assert.Less(t, time.Since(start), c.OpenSyncTimeout())
}

func TestClient_CloseSession_RemoteFailureStillCleans(t *testing.T) {
	ctx := context.Background()
	c, remote, _ := newServingClient(t)
	ch := domain.ChannelBinding{ID: 5, Type: domain.ChannelTypeProxy}
	remote.On("OpenSession", chatReq()).Return(ch, nil).Once()
	remote.On("CloseChannel", ch).Return(domain.ErrRemoteFailure).Once()

	id, err := c.OpenSession(ctx, chatReq())
	require.NoError(t, err)

	c.CloseSession(ctx, id)
	_, _, err = c.Registry().GetChannelBySessionID(id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_CloseSession_UnknownIsSilent(t *testing.T) {
	c, remote, _ := newServingClient(t)
	c.CloseSession(context.Background(), 3)
	c.CloseSession(context.Background(), 0)
	c.CloseSession(context.Background(), domain.MaxSessionID+1)
	remote.AssertNotCalled(t, "CloseChannel", mock.Anything)
}

func TestClient_CreateSessionServer(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent duplicates register once", func(t *testing.T) {
		remote := &MockRemote{}
		remote.On("CreateSessionServer", pkgName, sessionName).Return(nil)
		c := NewClient(remote)
		listener := &recordingListener{}

		var wg sync.WaitGroup
		errs := make([]error, 16)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = c.CreateSessionServer(ctx, pkgName, sessionName, listener)
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		remote.AssertNumberOfCalls(t, "CreateSessionServer", 1)
	})

	t.Run("already created remotely", func(t *testing.T) {
		remote := &MockRemote{}
		remote.On("CreateSessionServer", pkgName, sessionName).Return(domain.ErrNameRepeated)
		c := NewClient(remote)
		require.NoError(t, c.CreateSessionServer(ctx, pkgName, sessionName, &recordingListener{}))

		_, err := c.Registry().Server(sessionName)
		assert.NoError(t, err)
	})

	t.Run("remote failure rolls back", func(t *testing.T) {
		remote := &MockRemote{}
		remote.On("CreateSessionServer", pkgName, sessionName).Return(domain.ErrPermissionDenied)
		c := NewClient(remote)

		err := c.CreateSessionServer(ctx, pkgName, sessionName, &recordingListener{})
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)

		_, err = c.Registry().Server(sessionName)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("invalid params", func(t *testing.T) {
		remote := &MockRemote{}
		c := NewClient(remote)
		assert.ErrorIs(t, c.CreateSessionServer(ctx, "", sessionName, &recordingListener{}), domain.ErrInvalidParam)
		assert.ErrorIs(t, c.CreateSessionServer(ctx, pkgName, sessionName, nil), domain.ErrInvalidParam)
		assert.ErrorIs(t, c.CreateSessionServer(ctx, pkgName, sessionName, domain.ListenerFuncs{}), domain.ErrInvalidParam)
		remote.AssertNotCalled(t, "CreateSessionServer", mock.Anything, mock.Anything)
	})

	t.Run("other package rejected", func(t *testing.T) {
		c, remote, _ := newServingClient(t)
		err := c.CreateSessionServer(ctx, "com.other", "com.other.chat", &recordingListener{})
		assert.ErrorIs(t, err, domain.ErrInvalidParam)
		remote.AssertNumberOfCalls(t, "CreateSessionServer", 1)
	})
}

func TestClient_RemoveSessionServer(t *testing.T) {
	ctx := context.Background()

	t.Run("remote failure keeps local entry", func(t *testing.T) {
		c, remote, _ := newServingClient(t)
		remote.On("RemoveSessionServer", pkgName, sessionName).Return(domain.ErrRemoteFailure).Once()

		assert.ErrorIs(t, c.RemoveSessionServer(ctx, pkgName, sessionName), domain.ErrRemoteFailure)
		_, err := c.Registry().Server(sessionName)
		assert.NoError(t, err)
	})

	t.Run("closes sessions of the server", func(t *testing.T) {
		c, remote, _ := newServingClient(t)
		ch := domain.ChannelBinding{ID: 1, Type: domain.ChannelTypeProxy}
		remote.On("OpenSession", chatReq()).Return(ch, nil).Once()
		remote.On("CloseChannel", ch).Return(nil).Once()
		remote.On("RemoveSessionServer", pkgName, sessionName).Return(nil).Once()

		_, err := c.OpenSession(ctx, chatReq())
		require.NoError(t, err)

		require.NoError(t, c.RemoveSessionServer(ctx, pkgName, sessionName))
		assert.Empty(t, c.Registry().Sessions())
		_, err = c.Registry().Server(sessionName)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		remote.AssertExpectations(t)
	})

	t.Run("round trip", func(t *testing.T) {
		c, remote, listener := newServingClient(t)
		remote.On("RemoveSessionServer", pkgName, sessionName).Return(nil).Once()
		remote.On("CreateSessionServer", pkgName, sessionName).Return(nil).Once()

		require.NoError(t, c.RemoveSessionServer(ctx, pkgName, sessionName))
		require.NoError(t, c.CreateSessionServer(ctx, pkgName, sessionName, listener))
		remote.AssertNumberOfCalls(t, "CreateSessionServer", 2)
	})
}

func TestClient_Accessors(t *testing.T) {
	ctx := context.Background()
	c, remote, _ := newServingClient(t)
	remote.On("OpenSession", chatReq()).Return(domain.ChannelBinding{ID: 1, Type: domain.ChannelTypeProxy}, nil).Once()

	id, err := c.OpenSession(ctx, chatReq())
	require.NoError(t, err)

	name, err := c.GetMySessionName(id, domain.SessionNameSizeMax)
	require.NoError(t, err)
	assert.Equal(t, sessionName, name)

	peer, err := c.GetPeerSessionName(id, domain.SessionNameSizeMax)
	require.NoError(t, err)
	assert.Equal(t, "com.peer.chat", peer)

	dev, err := c.GetPeerDeviceID(id, domain.DeviceIDSizeMax)
	require.NoError(t, err)
	assert.Equal(t, "dev123", dev)

	_, err = c.GetMySessionName(id, domain.SessionNameSizeMax+1)
	assert.ErrorIs(t, err, domain.ErrInvalidParam, "oversize buffer is rejected")

	_, err = c.GetPeerDeviceID(id, 3)
	assert.ErrorIs(t, err, domain.ErrInvalidParam, "no silent truncation")

	_, err = c.GetPeerSessionName(0, domain.SessionNameSizeMax)
	assert.ErrorIs(t, err, domain.ErrInvalidParam)
}

func TestClient_InboundEvents(t *testing.T) {
	ctx := context.Background()
	c, remote, listener := newServingClient(t)
	ch := domain.ChannelBinding{ID: 30, Type: domain.ChannelTypeProxy}

	require.NoError(t, c.Deliver(ctx, domain.ChannelEvent{
		Type: domain.EventChannelOpened,
		Info: domain.ChannelInfo{
			SessionName:     sessionName,
			PeerSessionName: "com.remote.chat",
			PeerDeviceID:    "dev9",
			Channel:         ch,
			IsServer:        true,
		},
	}))
	require.Len(t, listener.opened, 1)
	id := listener.opened[0]

	require.NoError(t, c.Deliver(ctx, domain.ChannelEvent{
		Type: domain.EventChannelMessage, Info: domain.ChannelInfo{Channel: ch},
		MsgType: domain.MsgTypeBytes, Data: []byte{1, 2},
	}))
	require.NoError(t, c.Deliver(ctx, domain.ChannelEvent{
		Type: domain.EventChannelMessage, Info: domain.ChannelInfo{Channel: ch},
		MsgType: domain.MsgTypeMessage, Data: []byte("hi"),
	}))
	assert.Equal(t, [][]byte{{1, 2}}, listener.bytes)
	assert.Equal(t, [][]byte{[]byte("hi")}, listener.messages)

	remote.On("SendMessage", int32(30), domain.MsgTypeMessage, []byte("pong")).Return(nil).Once()
	require.NoError(t, c.SendMessage(ctx, id, []byte("pong")))

	require.NoError(t, c.Deliver(ctx, domain.ChannelEvent{Type: domain.EventChannelClosed, Info: domain.ChannelInfo{Channel: ch}}))
	assert.Equal(t, []int{id}, listener.closed)
	assert.Empty(t, c.Registry().Sessions())

	assert.ErrorIs(t, c.Deliver(ctx, domain.ChannelEvent{Type: domain.EventChannelClosed, Info: domain.ChannelInfo{Channel: ch}}), domain.ErrNotFound)
	assert.ErrorIs(t, c.Deliver(ctx, domain.ChannelEvent{Type: "bogus"}), domain.ErrInvalidParam)
}

func TestClient_Send(t *testing.T) {
	ctx := context.Background()
	c, remote, _ := newServingClient(t)
	remote.On("OpenSession", chatReq()).Return(domain.ChannelBinding{ID: 6}, nil).Once()

	id, err := c.OpenSession(ctx, chatReq())
	require.NoError(t, err)

	assert.ErrorIs(t, c.SendBytes(ctx, id, []byte("x")), domain.ErrInvalidParam, "pending sessions cannot send")
	assert.ErrorIs(t, c.SendBytes(ctx, id, nil), domain.ErrInvalidParam)

	req := chatReq()
	require.NoError(t, c.OnChannelOpened(ctx, domain.ChannelInfo{
		SessionName:     req.SessionName,
		PeerSessionName: req.PeerSessionName,
		PeerDeviceID:    req.PeerDeviceID,
		Channel:         domain.ChannelBinding{ID: 6, Type: domain.ChannelTypeProxy},
	}))

	remote.On("SendMessage", int32(6), domain.MsgTypeBytes, []byte("x")).Return(nil).Once()
	require.NoError(t, c.SendBytes(ctx, id, []byte("x")))
	remote.AssertExpectations(t)
}

type countingGauge struct {
	mu   sync.Mutex
	last int
}

func (g *countingGauge) SetSessions(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = n
}

func TestClient_Close(t *testing.T) {
	ctx := context.Background()
	gauge := &countingGauge{}
	c, remote, _ := newServingClient(t, WithMetrics(gauge))
	ch := domain.ChannelBinding{ID: 2, Type: domain.ChannelTypeProxy}
	remote.On("OpenSession", chatReq()).Return(ch, nil).Once()
	remote.On("CloseChannel", ch).Return(nil).Once()
	remote.On("RemoveSessionServer", pkgName, sessionName).Return(nil).Once()

	_, err := c.OpenSession(ctx, chatReq())
	require.NoError(t, err)
	assert.Equal(t, 1, gauge.last)

	require.NoError(t, c.Close(ctx))
	assert.Empty(t, c.Registry().Sessions())
	assert.Empty(t, c.Registry().Servers())
	assert.Equal(t, 0, gauge.last)
}
