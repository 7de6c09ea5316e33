package shared

import (
	"fmt"
	"strings"
)

// Role is the privilege tier of an authenticated caller.
type Role string

const (
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole normalises raw role names such as "Super-Admin".
func ParseRole(raw string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch Role(normalized) {
	case RoleStaff, RoleAdmin, RoleSuperAdmin:
		return Role(normalized), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrForbidden, raw)
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleStaff, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Elevated reports whether r sees every row of its company.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Principal is the caller identity, authenticated upstream.
type Principal struct {
	CompanyID int64
	UserID    int64
	Role      Role
}

// Validate ensures every identity field is populated.
func (p Principal) Validate() error {
	if p.CompanyID <= 0 {
		return fmt.Errorf("%w: company required", ErrForbidden)
	}
	if p.UserID <= 0 {
		return fmt.Errorf("%w: user required", ErrForbidden)
	}
	if !p.Role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", ErrForbidden, p.Role)
	}
	return nil
}
