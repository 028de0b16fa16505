package tenant

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestZeroScopeIsRejected(t *testing.T) {
	var s Scope
	if err := s.Validate(); !errors.Is(err, ErrNoTenantScope) {
		t.Fatalf("expected ErrNoTenantScope, got: %v", err)
	}
}

func TestNilTenantIDIsRejected(t *testing.T) {
	s := NewScope(uuid.Nil)
	if err := s.Validate(); !errors.Is(err, ErrNoTenantScope) {
		t.Fatalf("expected ErrNoTenantScope, got: %v", err)
	}
}

func TestValidScope(t *testing.T) {
	id := uuid.New()
	s := NewScope(id)

	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.TenantID() != id {
		t.Errorf("TenantID() = %s, want %s", s.TenantID(), id)
	}
	if s.String() != id.String() {
		t.Errorf("String() = %s, want %s", s.String(), id.String())
	}
}

func TestScopesAreComparable(t *testing.T) {
	id := uuid.New()
	if NewScope(id) != NewScope(id) {
		t.Error("scopes for the same tenant should compare equal")
	}
	if NewScope(uuid.New()) == NewScope(uuid.New()) {
		t.Error("scopes for different tenants should not compare equal")
	}
}
