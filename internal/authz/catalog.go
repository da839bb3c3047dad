// Package authz holds the authorization core: the role catalog, role and
// tenant policy evaluation, and the guard composing them. Everything here is
// pure and safe for concurrent use; I/O belongs to the callers.
package authz

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Role is a canonical role name from the catalog.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleModerator  Role = "moderator"
	RoleVendor     Role = "vendor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

type roleEntry struct {
	level   int
	landing string
}

// catalog is the single privilege table. Levels are unique and fixed.
var catalog = map[Role]roleEntry{
	RoleCustomer:   {level: 0, landing: "/account"},
	RoleModerator:  {level: 1, landing: "/moderation"},
	RoleVendor:     {level: 2, landing: "/vendor/dashboard"},
	RoleAdmin:      {level: 3, landing: "/admin/dashboard"},
	RoleSuperAdmin: {level: 4, landing: "/admin/dashboard"},
}

var orderedRoles = []Role{RoleCustomer, RoleModerator, RoleVendor, RoleAdmin, RoleSuperAdmin}

// aliases cover spellings that folding and separator rewriting cannot reach.
var aliases = map[string]Role{
	"superadmin": RoleSuperAdmin,
}

var separators = strings.NewReplacer("-", "_", " ", "_", ".", "_")

// Normalize maps any case or separator variant of a role name to its
// canonical Role. Unknown inputs fail with ErrUnknownRole.
func Normalize(input string) (Role, error) {
	// cases.Caser keeps state, so a fresh one per call.
	key := separators.Replace(cases.Fold().String(strings.TrimSpace(input)))
	if _, ok := catalog[Role(key)]; ok {
		return Role(key), nil
	}
	if role, ok := aliases[key]; ok {
		return role, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, input)
}

// MustNormalize is Normalize for static role names; it panics on failure.
func MustNormalize(input string) Role {
	role, err := Normalize(input)
	if err != nil {
		panic(err)
	}
	return role
}

// LevelOf returns the privilege level of a catalog role, or -1 when the role
// is not in the catalog.
func LevelOf(role Role) int {
	entry, ok := catalog[role]
	if !ok {
		return -1
	}
	return entry.level
}

// AtLeast reports whether role is at or above minimum. Roles outside the
// catalog never satisfy and are never satisfied.
func AtLeast(role, minimum Role) bool {
	if !role.Valid() || !minimum.Valid() {
		return false
	}
	return LevelOf(role) >= LevelOf(minimum)
}

// LandingFor returns the default page for a role; "/" for unknown roles.
func LandingFor(role Role) string {
	if entry, ok := catalog[role]; ok {
		return entry.landing
	}
	return "/"
}

// Roles lists the catalog ordered from least to most privileged.
func Roles() []Role {
	out := make([]Role, len(orderedRoles))
	copy(out, orderedRoles)
	return out
}

// Valid reports whether the role is a canonical catalog entry.
func (r Role) Valid() bool {
	_, ok := catalog[r]
	return ok
}

// Level is shorthand for LevelOf(r).
func (r Role) Level() int {
	return LevelOf(r)
}

func (r Role) String() string {
	return string(r)
}
