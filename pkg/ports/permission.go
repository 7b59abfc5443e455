package ports

import (
	"context"

	"github.com/aretw0/softbus/pkg/domain"
)

// PermissionGuard authorizes a caller for an action on a session name.
// Callers must treat anything other than domain.Allow as a denial.
type PermissionGuard interface {
	Check(ctx context.Context, origin domain.Origin, pkgName, sessionName string, action domain.Action) domain.Decision
}
