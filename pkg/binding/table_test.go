package binding_test

import (
	"testing"

	"github.com/aretw0/softbus/pkg/binding"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_NamespacesAreDisjoint(t *testing.T) {
	tbl := binding.NewTable()
	proxy := domain.ChannelKey{Type: domain.ChannelTypeProxy, ID: 7}
	udp := domain.ChannelKey{Type: domain.ChannelTypeUDP, ID: 7}

	require.NoError(t, tbl.Put(proxy, binding.Entry{PkgName: "pkgA", SessionName: "svcA"}))
	require.NoError(t, tbl.Put(udp, binding.Entry{PkgName: "pkgB", SessionName: "svcB"}))

	e, err := tbl.Get(proxy)
	require.NoError(t, err)
	assert.Equal(t, "svcA", e.SessionName)

	e, err = tbl.Get(udp)
	require.NoError(t, err)
	assert.Equal(t, "svcB", e.SessionName)

	assert.True(t, tbl.Delete(proxy))
	_, err = tbl.Get(proxy)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = tbl.Get(udp)
	assert.NoError(t, err, "deleting the proxy channel must not touch the udp one")
}

func TestTable_RejectsUnsetType(t *testing.T) {
	tbl := binding.NewTable()
	err := tbl.Put(domain.ChannelKey{Type: domain.ChannelTypeUnset, ID: 1}, binding.Entry{})
	assert.ErrorIs(t, err, domain.ErrInvalidParam)
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_InsertConflict(t *testing.T) {
	tbl := binding.NewTable()
	key := domain.ChannelKey{Type: domain.ChannelTypeProxy, ID: 3}

	require.NoError(t, tbl.Insert(key, binding.Entry{SessionID: 1}))
	assert.ErrorIs(t, tbl.Insert(key, binding.Entry{SessionID: 2}), domain.ErrChannelBound)

	e, err := tbl.Get(key)
	require.NoError(t, err)
	assert.Equal(t, 1, e.SessionID)
}

func TestTable_AllocatePerType(t *testing.T) {
	tbl := binding.NewTable()

	for want := int32(0); want < 3; want++ {
		id, err := tbl.Allocate(domain.ChannelTypeProxy)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	id, err := tbl.Allocate(domain.ChannelTypeUDP)
	require.NoError(t, err)
	assert.Equal(t, int32(0), id, "udp ids have their own sequence")

	_, err = tbl.Allocate(domain.ChannelTypeUnset)
	assert.ErrorIs(t, err, domain.ErrInvalidParam)
}

func TestTable_DeleteWhereAndKeys(t *testing.T) {
	tbl := binding.NewTable()
	for i := int32(3); i >= 1; i-- {
		require.NoError(t, tbl.Put(domain.ChannelKey{Type: domain.ChannelTypeProxy, ID: i},
			binding.Entry{SessionName: "svc", SessionID: int(i)}))
	}
	require.NoError(t, tbl.Put(domain.ChannelKey{Type: domain.ChannelTypeUDP, ID: 9},
		binding.Entry{SessionName: "other"}))

	keys := tbl.Keys(domain.ChannelTypeProxy)
	require.Len(t, keys, 3)
	assert.Equal(t, int32(1), keys[0].ID)
	assert.Equal(t, int32(3), keys[2].ID)

	removed := tbl.DeleteWhere(func(_ domain.ChannelKey, e binding.Entry) bool {
		return e.SessionName == "svc"
	})
	assert.Len(t, removed, 3)
	assert.Equal(t, 1, tbl.Len())
}
