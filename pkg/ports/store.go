package ports

import (
	"context"

	"github.com/aretw0/softbus/pkg/domain"
)

// NameResolver maps a channel id of one transport type to its owner.
// Returns domain.ErrNotFound for unknown ids.
type NameResolver interface {
	ResolveNameByChannelID(ctx context.Context, channelID int32) (pkgName, sessionName string, err error)
}

// ChannelStore persists channel ownership for every transport type.
// Keys of different types never collide. A store shared by several broker
// replicas is also the source of their channel ids.
type ChannelStore interface {
	// Allocate returns a channel id of type t that no earlier call returned.
	Allocate(ctx context.Context, t domain.ChannelType) (int32, error)

	// Bind records the owner of key. It returns domain.ErrChannelBound if key
	// already has an owner.
	Bind(ctx context.Context, key domain.ChannelKey, pkgName, sessionName string) error

	// Unbind removes key. Removing an unknown key is not an error.
	Unbind(ctx context.Context, key domain.ChannelKey) error

	// Lookup returns domain.ErrNotFound if key is not bound.
	Lookup(ctx context.Context, key domain.ChannelKey) (pkgName, sessionName string, err error)

	// List returns the bound ids of one type in ascending order.
	List(ctx context.Context, t domain.ChannelType) ([]int32, error)
}

// TypedResolver exposes one transport namespace of a ChannelStore as a NameResolver.
type TypedResolver struct {
	Store ChannelStore
	Type  domain.ChannelType
}

func (r TypedResolver) ResolveNameByChannelID(ctx context.Context, channelID int32) (string, string, error) {
	return r.Store.Lookup(ctx, domain.ChannelKey{Type: r.Type, ID: channelID})
}
