package dispatcher_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/softbus/pkg/adapters/memory"
	"github.com/aretw0/softbus/pkg/dispatcher"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ipc"
	"github.com/aretw0/softbus/pkg/permission"
	"github.com/aretw0/softbus/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopbackStub(t *testing.T, guard ports.PermissionGuard) (*dispatcher.Stub, *memory.TransManager) {
	t.Helper()
	trans := memory.NewTransManager()
	store := trans.Store().(*memory.Store)
	d := dispatcher.New(trans, guard, store.Resolver(domain.ChannelTypeProxy), store.Resolver(domain.ChannelTypeUDP))
	return dispatcher.NewStub(dispatcher.Loopback{Dispatcher: d, Origin: caller}), trans
}

func TestStub_RoundTrip(t *testing.T) {
	ctx := context.Background()
	stub, trans := newLoopbackStub(t, permission.AllowAll)

	require.NoError(t, stub.CreateSessionServer(ctx, "com.demo", "com.demo.chat"))
	assert.ErrorIs(t, stub.CreateSessionServer(ctx, "com.demo", "com.demo.chat"), domain.ErrNameRepeated)

	ch, err := stub.OpenSession(ctx, domain.OpenRequest{
		SessionName:     "com.demo.chat",
		PeerSessionName: "com.peer.chat",
		PeerDeviceID:    "device-1",
		Attr:            domain.SessionAttribute{DataType: domain.TypeStream},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelTypeUnset, ch.Type, "the reply carries the id only")

	info, err := trans.Channel(ctx, domain.ChannelKey{Type: domain.ChannelTypeUDP, ID: ch.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelTypeUDP, info.Channel.Type)

	require.NoError(t, stub.CloseChannel(ctx, info.Channel))
	assert.ErrorIs(t, stub.CloseChannel(ctx, info.Channel), domain.ErrInvalidUDPChannelID)

	require.NoError(t, stub.RemoveSessionServer(ctx, "com.demo", "com.demo.chat"))
}

func TestStub_Denied(t *testing.T) {
	stub, _ := newLoopbackStub(t, permission.DenyAll)
	err := stub.CreateSessionServer(context.Background(), "com.demo", "com.demo.chat")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = stub.OpenSession(context.Background(), domain.OpenRequest{
		SessionName:     "com.demo.chat",
		PeerSessionName: "p",
		PeerDeviceID:    "d",
		Attr:            domain.SessionAttribute{DataType: domain.TypeBytes},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidChannelID, "unknown session name is reported before permission")
}

type brokenTransport struct{}

func (brokenTransport) Call(context.Context, dispatcher.Op, *ipc.Parcel) (*ipc.Parcel, error) {
	return nil, errors.New("connection refused")
}

type emptyTransport struct{}

func (emptyTransport) Call(context.Context, dispatcher.Op, *ipc.Parcel) (*ipc.Parcel, error) {
	return ipc.New(), nil
}

func TestStub_TransportFaults(t *testing.T) {
	ctx := context.Background()

	err := dispatcher.NewStub(brokenTransport{}).CloseChannel(ctx, domain.ChannelBinding{ID: 1, Type: domain.ChannelTypeProxy})
	assert.ErrorIs(t, err, domain.ErrRemoteFailure)

	ch, err := dispatcher.NewStub(emptyTransport{}).OpenSession(ctx, domain.OpenRequest{})
	assert.ErrorIs(t, err, domain.ErrRemoteFailure)
	assert.Equal(t, domain.InvalidChannelID, ch.ID)
}
