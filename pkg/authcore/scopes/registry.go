// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package scopes holds the closed catalog of OAuth scopes the authorization
// server advertises, and resolves which scopes a principal's roles grant.
package scopes

import (
	"slices"
	"sort"
)

// Standard OpenID Connect scopes.
const (
	OpenID        = "openid"
	Profile       = "profile"
	Email         = "email"
	OfflineAccess = "offline_access"
)

// Application scopes.
const (
	DashboardsRead  = "dashboards:read"
	DashboardsWrite = "dashboards:write"
	ChatUse         = "chat:use"
	PromptsRead     = "prompts:read"
	PromptsWrite    = "prompts:write"
	AssistantsRead  = "assistants:read"
	AssistantsWrite = "assistants:write"
	AdminAll        = "admin:all"
)

// Role names understood by the registry.
const (
	RoleAdmin   = "admin"
	RoleStaff   = "staff"
	RoleStudent = "student"
)

// Kind separates protocol-defined scopes from application-defined ones.
type Kind int

const (
	// KindStandard marks identity scopes defined by OpenID Connect.
	KindStandard Kind = iota
	// KindExtension marks application-defined scopes.
	KindExtension
)

// Descriptor describes a single scope.
type Descriptor struct {
	Name        string
	Description string
	Kind        Kind
	// Roles lists the roles allowed to request this scope.
	Roles []string
}

// Registry is an immutable scope catalog. It is safe for concurrent use.
type Registry struct {
	descriptors []Descriptor
	byName      map[string]Descriptor
	byRole      map[string][]string
}

// NewRegistry builds a registry from the given descriptors. Later entries with
// a duplicate name replace earlier ones.
func NewRegistry(descriptors []Descriptor) *Registry {
	r := &Registry{
		byName: make(map[string]Descriptor, len(descriptors)),
		byRole: make(map[string][]string),
	}
	for _, d := range descriptors {
		d.Roles = slices.Clone(d.Roles)
		if _, dup := r.byName[d.Name]; dup {
			r.descriptors = slices.DeleteFunc(r.descriptors, func(x Descriptor) bool { return x.Name == d.Name })
		}
		r.byName[d.Name] = d
		r.descriptors = append(r.descriptors, d)
	}
	for _, d := range r.descriptors {
		for _, role := range d.Roles {
			r.byRole[role] = append(r.byRole[role], d.Name)
		}
	}
	return r
}

var defaultRegistry = NewRegistry(DefaultDescriptors())

// Default returns the registry built from DefaultDescriptors.
func Default() *Registry {
	return defaultRegistry
}

// DefaultDescriptors returns the built-in scope catalog.
func DefaultDescriptors() []Descriptor {
	everyone := []string{RoleAdmin, RoleStaff, RoleStudent}
	return []Descriptor{
		{Name: OpenID, Description: "Sign you in with your account", Kind: KindStandard, Roles: everyone},
		{Name: Profile, Description: "View your basic profile information", Kind: KindStandard, Roles: everyone},
		{Name: Email, Description: "View your email address", Kind: KindStandard, Roles: everyone},
		{Name: OfflineAccess, Description: "Stay signed in when you are not using the app",
			Kind: KindStandard, Roles: []string{RoleAdmin, RoleStaff}},

		{Name: DashboardsRead, Description: "View your dashboards", Kind: KindExtension, Roles: everyone},
		{Name: DashboardsWrite, Description: "Create and edit dashboards",
			Kind: KindExtension, Roles: []string{RoleAdmin, RoleStaff}},
		{Name: ChatUse, Description: "Send and read chat messages", Kind: KindExtension, Roles: everyone},
		{Name: PromptsRead, Description: "Browse the prompt library", Kind: KindExtension, Roles: everyone},
		{Name: PromptsWrite, Description: "Publish prompts to the library",
			Kind: KindExtension, Roles: []string{RoleAdmin, RoleStaff}},
		{Name: AssistantsRead, Description: "Use assistants shared with you", Kind: KindExtension, Roles: everyone},
		{Name: AssistantsWrite, Description: "Build and share assistants",
			Kind: KindExtension, Roles: []string{RoleAdmin, RoleStaff}},
		{Name: AdminAll, Description: "Administer the tenant", Kind: KindExtension, Roles: []string{RoleAdmin}},
	}
}

// Describe returns the human readable description for a scope, or the scope
// name itself when the scope is not in the catalog.
func (r *Registry) Describe(name string) string {
	if d, ok := r.byName[name]; ok && d.Description != "" {
		return d.Description
	}
	return name
}

// Lookup returns the descriptor for a scope.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	if ok {
		d.Roles = slices.Clone(d.Roles)
	}
	return d, ok
}

// ForRoles returns the union of the scopes granted to each role, deduplicated
// and sorted. Roles without grants contribute nothing.
func (r *Registry) ForRoles(roles ...string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, role := range roles {
		for _, scope := range r.byRole[role] {
			if _, ok := seen[scope]; ok {
				continue
			}
			seen[scope] = struct{}{}
			out = append(out, scope)
		}
	}
	sort.Strings(out)
	return out
}

// StandardScopes returns the protocol-defined identity scopes in catalog order.
func (r *Registry) StandardScopes() []string {
	return r.namesOf(KindStandard)
}

// ExtensionScopes returns the application-defined scopes in catalog order.
func (r *Registry) ExtensionScopes() []string {
	return r.namesOf(KindExtension)
}

// Catalog returns every advertised scope: standard scopes first, then
// extensions. This is the value published as scopes_supported.
func (r *Registry) Catalog() []string {
	return append(r.StandardScopes(), r.ExtensionScopes()...)
}

// Filter returns the requested scopes that exist in the catalog, preserving
// request order and dropping duplicates.
func (r *Registry) Filter(requested []string) []string {
	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		if _, ok := r.byName[s]; !ok {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (r *Registry) namesOf(kind Kind) []string {
	var out []string
	for _, d := range r.descriptors {
		if d.Kind == kind {
			out = append(out, d.Name)
		}
	}
	return out
}
