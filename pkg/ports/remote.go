package ports

import (
	"context"

	"github.com/aretw0/softbus/pkg/domain"
)

// RemoteServer is the client's view of the privileged side.
// Implementations carry the caller identity out of band; it is never part of a request.
type RemoteServer interface {
	// CreateSessionServer registers the server remotely.
	// Returns domain.ErrNameRepeated if the privileged side already knows it.
	CreateSessionServer(ctx context.Context, pkgName, sessionName string) error

	RemoveSessionServer(ctx context.Context, pkgName, sessionName string) error

	// OpenSession asks the privileged side to open a channel toward the peer.
	// A binding with ChannelTypeUnset means the channel is still being established
	// and will be reported later through the channel-opened event.
	OpenSession(ctx context.Context, req domain.OpenRequest) (domain.ChannelBinding, error)

	CloseChannel(ctx context.Context, ch domain.ChannelBinding) error

	SendMessage(ctx context.Context, channelID int32, msgType domain.MsgType, payload []byte) error
}

// Bootstrapper initializes the subsystem on behalf of a package.
type Bootstrapper interface {
	// InitSubsystem is idempotent: the first successful call wins.
	InitSubsystem(ctx context.Context, pkgName string) error

	// CheckPackageName rejects package names other than the initialized one.
	CheckPackageName(pkgName string) error
}
