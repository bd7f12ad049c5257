// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package scopes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ForRoles(t *testing.T) {
	t.Parallel()

	r := NewRegistry([]Descriptor{
		{Name: "openid", Kind: KindStandard, Roles: []string{"staff", "student"}},
		{Name: "profile", Kind: KindStandard, Roles: []string{"staff", "student"}},
		{Name: "grades:write", Kind: KindExtension, Roles: []string{"staff"}},
		{Name: "grades:read", Kind: KindExtension, Roles: []string{"student"}},
		{Name: "admin:all", Kind: KindExtension, Roles: []string{"admin"}},
	})

	tests := []struct {
		name  string
		roles []string
		want  []string
	}{
		{
			name:  "union of staff and student",
			roles: []string{"staff", "student"},
			want:  []string{"grades:read", "grades:write", "openid", "profile"},
		},
		{
			name:  "order independent",
			roles: []string{"student", "staff"},
			want:  []string{"grades:read", "grades:write", "openid", "profile"},
		},
		{
			name:  "repeated role",
			roles: []string{"student", "student"},
			want:  []string{"grades:read", "openid", "profile"},
		},
		{
			name:  "unknown role contributes nothing",
			roles: []string{"visitor"},
			want:  []string{},
		},
		{
			name:  "no roles",
			roles: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, r.ForRoles(tt.roles...))
		})
	}
}

func TestDefaultRegistry_StaffAndStudent(t *testing.T) {
	t.Parallel()

	r := Default()
	union := r.ForRoles(RoleStaff, RoleStudent)
	staff := r.ForRoles(RoleStaff)

	// every student grant is also a staff grant in the default catalog
	assert.Equal(t, staff, union)
	assert.ElementsMatch(t, union, r.ForRoles(RoleStudent, RoleStaff))
	assert.NotContains(t, union, AdminAll)
	assert.Contains(t, r.ForRoles(RoleAdmin), AdminAll)

	seen := map[string]bool{}
	for _, s := range union {
		require.False(t, seen[s], "duplicate scope %q", s)
		seen[s] = true
	}
	assert.Empty(t, r.ForRoles())
}

func TestRegistry_Describe(t *testing.T) {
	t.Parallel()

	r := Default()
	assert.Equal(t, "View your email address", r.Describe(Email))
	assert.Equal(t, "widgets:frobnicate", r.Describe("widgets:frobnicate"))

	noDesc := NewRegistry([]Descriptor{{Name: "bare"}})
	assert.Equal(t, "bare", noDesc.Describe("bare"))
}

func TestRegistry_Catalog(t *testing.T) {
	t.Parallel()

	r := Default()
	assert.Equal(t, []string{OpenID, Profile, Email, OfflineAccess}, r.StandardScopes())
	assert.Contains(t, r.ExtensionScopes(), ChatUse)
	assert.NotContains(t, r.ExtensionScopes(), OpenID)

	catalog := r.Catalog()
	assert.Len(t, catalog, len(r.StandardScopes())+len(r.ExtensionScopes()))
	assert.Equal(t, OpenID, catalog[0])
}

func TestRegistry_DuplicateNameReplaces(t *testing.T) {
	t.Parallel()

	r := NewRegistry([]Descriptor{
		{Name: "x", Description: "first", Roles: []string{"a"}},
		{Name: "x", Description: "second", Roles: []string{"b"}},
	})
	assert.Equal(t, "second", r.Describe("x"))
	assert.Equal(t, []string{"x"}, r.Catalog())
	assert.Empty(t, r.ForRoles("a"))
	assert.Equal(t, []string{"x"}, r.ForRoles("b"))
}

func TestRegistry_Filter(t *testing.T) {
	t.Parallel()

	r := Default()
	got := r.Filter([]string{Profile, "unknown", OpenID, Profile})
	assert.Equal(t, []string{Profile, OpenID}, got)
}

func TestRegistry_LookupReturnsCopy(t *testing.T) {
	t.Parallel()

	r := Default()
	d, ok := r.Lookup(AdminAll)
	require.True(t, ok)
	d.Roles[0] = "student"

	again, _ := r.Lookup(AdminAll)
	assert.Equal(t, []string{RoleAdmin}, again.Roles)
}
