package ports

import (
	"context"

	"github.com/aretw0/softbus/pkg/domain"
)

// TransManager is the privileged-side mutation target the dispatcher forwards to
// once a request is authorized. Implementations serialize work per channel.
type TransManager interface {
	CreateSessionServer(ctx context.Context, pkgName, sessionName string, origin domain.Origin) error
	RemoveSessionServer(ctx context.Context, pkgName, sessionName string) error

	// PkgNameBySessionName returns the package owning a registered session server.
	PkgNameBySessionName(ctx context.Context, sessionName string) (string, error)

	OpenSession(ctx context.Context, req domain.OpenRequest) (domain.ChannelBinding, error)
	CloseChannel(ctx context.Context, ch domain.ChannelBinding) error
	SendMessage(ctx context.Context, channelID int32, msgType domain.MsgType, payload []byte) error
}
