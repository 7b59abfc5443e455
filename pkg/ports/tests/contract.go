package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ports"
)

// Owner is the expected resolution of one channel id.
type Owner struct {
	PkgName     string
	SessionName string
}

// NameResolverContractTest is a reusable test suite that verifies if an adapter complies with ports.NameResolver.
// setupData must already be visible through resolver.
func NameResolverContractTest(t *testing.T, resolver ports.NameResolver, setupData map[int32]Owner) {
	t.Helper()
	ctx := context.Background()

	t.Run("Resolve_Success", func(t *testing.T) {
		for id, want := range setupData {
			pkg, session, err := resolver.ResolveNameByChannelID(ctx, id)
			if err != nil {
				t.Fatalf("unexpected error resolving channel %d: %v", id, err)
			}
			if pkg != want.PkgName || session != want.SessionName {
				t.Errorf("owner mismatch for %d. got (%q, %q), want (%q, %q)", id, pkg, session, want.PkgName, want.SessionName)
			}
		}
	})

	t.Run("Resolve_NotFound", func(t *testing.T) {
		var unknown int32 = 1 << 20
		for {
			if _, taken := setupData[unknown]; !taken {
				break
			}
			unknown++
		}
		_, _, err := resolver.ResolveNameByChannelID(ctx, unknown)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for channel %d, got %v", unknown, err)
		}
	})
}
