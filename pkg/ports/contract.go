package ports

import (
	"context"
	"testing"

	"github.com/aretw0/softbus/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunChannelStoreContract runs a suite of tests to verify that a ChannelStore implementation
// adheres to the defined interface contract. The store must start empty.
func RunChannelStoreContract(t *testing.T, store ChannelStore) {
	ctx := context.Background()
	proxy := domain.ChannelKey{Type: domain.ChannelTypeProxy, ID: 7}
	udp := domain.ChannelKey{Type: domain.ChannelTypeUDP, ID: 7}

	t.Run("Bind and Lookup", func(t *testing.T) {
		require.NoError(t, store.Bind(ctx, proxy, "com.demo", "com.demo.chat"))

		pkg, session, err := store.Lookup(ctx, proxy)
		require.NoError(t, err)
		assert.Equal(t, "com.demo", pkg)
		assert.Equal(t, "com.demo.chat", session)
	})

	t.Run("Bind Refuses A Taken Key", func(t *testing.T) {
		err := store.Bind(ctx, proxy, "com.intruder", "com.intruder.chat")
		assert.ErrorIs(t, err, domain.ErrChannelBound)

		pkg, session, err := store.Lookup(ctx, proxy)
		require.NoError(t, err)
		assert.Equal(t, "com.demo", pkg, "the first owner keeps the channel")
		assert.Equal(t, "com.demo.chat", session)
	})

	t.Run("Namespaces Are Disjoint", func(t *testing.T) {
		_, _, err := store.Lookup(ctx, udp)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, store.Bind(ctx, udp, "com.other", "com.other.stream"))
		_, session, err := store.Lookup(ctx, udp)
		require.NoError(t, err)
		assert.Equal(t, "com.other.stream", session)

		_, session, err = store.Lookup(ctx, proxy)
		require.NoError(t, err)
		assert.Equal(t, "com.demo.chat", session, "binding udp:7 must not touch proxy:7")
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, store.Bind(ctx, domain.ChannelKey{Type: domain.ChannelTypeProxy, ID: 2}, "com.demo", "com.demo.chat"))

		ids, err := store.List(ctx, domain.ChannelTypeProxy)
		require.NoError(t, err)
		assert.Equal(t, []int32{2, 7}, ids)
	})

	t.Run("Unbind", func(t *testing.T) {
		require.NoError(t, store.Unbind(ctx, proxy))
		_, _, err := store.Lookup(ctx, proxy)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		assert.NoError(t, store.Unbind(ctx, proxy), "unbinding twice is not an error")

		require.NoError(t, store.Bind(ctx, proxy, "com.next", "com.next.chat"), "an unbound key can be claimed again")
		require.NoError(t, store.Unbind(ctx, proxy))
	})

	t.Run("Allocate", func(t *testing.T) {
		seen := make(map[int32]bool)
		for i := 0; i < 5; i++ {
			id, err := store.Allocate(ctx, domain.ChannelTypeProxy)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, id, int32(0))
			assert.False(t, seen[id], "id %d handed out twice", id)
			seen[id] = true
		}

		_, err := store.Allocate(ctx, domain.ChannelTypeUDP)
		assert.NoError(t, err)

		_, err = store.Allocate(ctx, domain.ChannelTypeUnset)
		assert.ErrorIs(t, err, domain.ErrInvalidParam)
	})

	t.Run("Rejects Unset Type", func(t *testing.T) {
		err := store.Bind(ctx, domain.ChannelKey{Type: domain.ChannelTypeUnset, ID: 1}, "p", "s")
		assert.ErrorIs(t, err, domain.ErrInvalidParam)
	})
}
