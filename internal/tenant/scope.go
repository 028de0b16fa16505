// Package tenant defines the tenant scope value threaded through every
// data-touching operation. A Scope is constructed once per unit of work and
// passed explicitly; there is no ambient or global tenant state.
package tenant

import (
	"errors"

	"github.com/google/uuid"
)

// ErrNoTenantScope is returned when an operation is attempted without an
// explicit tenant scope.
var ErrNoTenantScope = errors.New("no tenant scope supplied")

// Scope identifies exactly one tenant. The zero value is invalid, so a
// forgotten scope fails Validate instead of silently querying across tenants.
type Scope struct {
	tenantID uuid.UUID
}

// NewScope creates a scope for the given tenant.
func NewScope(tenantID uuid.UUID) Scope {
	return Scope{tenantID: tenantID}
}

// TenantID returns the tenant this scope is bound to.
func (s Scope) TenantID() uuid.UUID {
	return s.tenantID
}

// Validate reports whether the scope is usable. Repositories call this before
// touching any tenant-scoped table.
func (s Scope) Validate() error {
	if s.tenantID == uuid.Nil {
		return ErrNoTenantScope
	}
	return nil
}

// String implements fmt.Stringer for log fields.
func (s Scope) String() string {
	return s.tenantID.String()
}
