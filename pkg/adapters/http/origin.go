package http

import (
	"context"
	"net"

	"github.com/aretw0/softbus/pkg/domain"
)

type originKey struct{}

// ConnContext attaches the peer identity of c to the connection context.
// Use it as http.Server.ConnContext.
func ConnContext(ctx context.Context, c net.Conn) context.Context {
	if origin, ok := peerOrigin(c); ok {
		return context.WithValue(ctx, originKey{}, origin)
	}
	return ctx
}

// OriginFromContext returns the identity ConnContext recorded, or domain.UnknownOrigin.
func OriginFromContext(ctx context.Context) domain.Origin {
	if origin, ok := ctx.Value(originKey{}).(domain.Origin); ok {
		return origin
	}
	return domain.UnknownOrigin
}
