package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ports"
)

// Bootstrapper implements ports.Bootstrapper for a single process.
// The first package to initialize owns the subsystem.
type Bootstrapper struct {
	mu      sync.Mutex
	pkgName string
}

var _ ports.Bootstrapper = (*Bootstrapper)(nil)

// NewBootstrapper creates an uninitialized bootstrapper.
func NewBootstrapper() *Bootstrapper {
	return &Bootstrapper{}
}

func (b *Bootstrapper) InitSubsystem(ctx context.Context, pkgName string) error {
	if !domain.IsValidString(pkgName, domain.PkgNameSizeMax) {
		return fmt.Errorf("%w: pkg name", domain.ErrInvalidParam)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pkgName == "" {
		b.pkgName = pkgName
	}
	return nil
}

func (b *Bootstrapper) CheckPackageName(pkgName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pkgName == "" || b.pkgName != pkgName {
		return fmt.Errorf("%w: package %q is not the initialized one", domain.ErrInvalidParam, pkgName)
	}
	return nil
}

// Initialized returns the owning package, or "" before the first init.
func (b *Bootstrapper) Initialized() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pkgName
}
