package memory

import (
	"context"

	"github.com/aretw0/softbus/pkg/binding"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ports"
)

// Store implements ports.ChannelStore in memory on top of binding.Table.
// Safe for concurrent use.
type Store struct {
	table *binding.Table
}

var _ ports.ChannelStore = (*Store)(nil)

// NewStore creates a new in-memory channel store.
func NewStore() *Store {
	return &Store{
		table: binding.NewTable(),
	}
}

// Allocate returns the next id of type t.
func (s *Store) Allocate(ctx context.Context, t domain.ChannelType) (int32, error) {
	return s.table.Allocate(t)
}

// Bind records the owner of key unless it is taken.
func (s *Store) Bind(ctx context.Context, key domain.ChannelKey, pkgName, sessionName string) error {
	return s.table.Insert(key, binding.Entry{PkgName: pkgName, SessionName: sessionName})
}

// Unbind removes key.
func (s *Store) Unbind(ctx context.Context, key domain.ChannelKey) error {
	s.table.Delete(key)
	return nil
}

// Lookup resolves key.
func (s *Store) Lookup(ctx context.Context, key domain.ChannelKey) (string, string, error) {
	e, err := s.table.Get(key)
	if err != nil {
		return "", "", err
	}
	return e.PkgName, e.SessionName, nil
}

// List returns the ids bound under t.
func (s *Store) List(ctx context.Context, t domain.ChannelType) ([]int32, error) {
	keys := s.table.Keys(t)
	ids := make([]int32, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
	}
	return ids, nil
}

// Resolver returns the NameResolver of one channel type.
func (s *Store) Resolver(t domain.ChannelType) ports.NameResolver {
	return ports.TypedResolver{Store: s, Type: t}
}
