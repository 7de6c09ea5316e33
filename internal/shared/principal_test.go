package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"staff":       RoleStaff,
		" Admin ":     RoleAdmin,
		"Super-Admin": RoleSuperAdmin,
		"super_admin": RoleSuperAdmin,
	}
	for raw, want := range cases {
		got, err := ParseRole(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got)
	}

	_, err := ParseRole("owner")
	require.True(t, errors.Is(err, ErrForbidden))
}

func TestPrincipalValidate(t *testing.T) {
	require.NoError(t, Principal{CompanyID: 1, UserID: 2, Role: RoleStaff}.Validate())
	require.ErrorIs(t, Principal{UserID: 2, Role: RoleStaff}.Validate(), ErrForbidden)
	require.ErrorIs(t, Principal{CompanyID: 1, Role: RoleStaff}.Validate(), ErrForbidden)
	require.ErrorIs(t, Principal{CompanyID: 1, UserID: 2, Role: "guest"}.Validate(), ErrForbidden)
}

func TestRoleElevated(t *testing.T) {
	require.False(t, RoleStaff.Elevated())
	require.True(t, RoleAdmin.Elevated())
	require.True(t, RoleSuperAdmin.Elevated())
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	require.False(t, ok)

	ctx := ContextWithPrincipal(context.Background(), Principal{CompanyID: 7, UserID: 9, Role: RoleAdmin})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, int64(7), p.CompanyID)
}
