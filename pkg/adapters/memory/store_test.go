package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/softbus/pkg/adapters/memory"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ports"
	"github.com/aretw0/softbus/pkg/ports/tests"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunChannelStoreContract(t, store)
}

func TestMemoryStore_ResolverContract(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	_ = store.Bind(ctx, domain.ChannelKey{Type: domain.ChannelTypeProxy, ID: 1}, "com.demo", "com.demo.chat")
	_ = store.Bind(ctx, domain.ChannelKey{Type: domain.ChannelTypeProxy, ID: 2}, "com.demo", "com.demo.file")

	tests.NameResolverContractTest(t, store.Resolver(domain.ChannelTypeProxy), map[int32]tests.Owner{
		1: {PkgName: "com.demo", SessionName: "com.demo.chat"},
		2: {PkgName: "com.demo", SessionName: "com.demo.file"},
	})
}
