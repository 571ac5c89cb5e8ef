package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Can(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermQuery, true},
		{RoleViewer, PermViewShadow, false},
		{RoleAnalyst, PermViewShadow, true},
		{RoleAnalyst, PermCreateContract, false},
		{RoleEngineer, PermCreateContract, true},
		{RoleEngineer, PermIngest, true},
		{RoleEngineer, PermPromote, false},
		{RoleEngineer, PermDeprecate, false},
		{RoleAdmin, PermPromote, true},
		{RoleAdmin, PermDeprecate, true},
		{Role("ROOT"), PermQuery, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"_"+string(tt.perm), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.Can(tt.perm))
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("superuser")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "role", ve.Field)
}
