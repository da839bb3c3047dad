package authz

// RoleEvaluator decides role requirements.
type RoleEvaluator interface {
	EvaluateRole(principal *Principal, capability Capability) Decision
}

// TenantEvaluator decides tenant ownership requirements.
type TenantEvaluator interface {
	EvaluateTenant(principal *Principal, resource ResourceRef, capability Capability) Decision
}

// TenantScope restricts tenant-bound resources to their owners and staff.
// Roles at admin or above act on every tenant.
type TenantScope struct {
	// Roles evaluates the admin override; PolicyResolver when nil.
	Roles RoleEvaluator
}

// EvaluateTenant decides whether principal may act on resource. The admin
// override is tested before ownership. The capability's role requirement is
// the guard's concern and is not re-checked here.
func (s TenantScope) EvaluateTenant(principal *Principal, resource ResourceRef, _ Capability) Decision {
	tenantID, scoped := resource.Tenant()
	if !scoped {
		return Allow
	}
	roles := s.Roles
	if roles == nil {
		roles = PolicyResolver{}
	}
	if roles.EvaluateRole(principal, adminOverride) == Allow {
		return Allow
	}
	if principal.HasTenant(tenantID) {
		return Allow
	}
	return DenyWrongTenant
}

// EvaluateTenant is TenantScope{}.EvaluateTenant.
func EvaluateTenant(principal *Principal, resource ResourceRef, capability Capability) Decision {
	return TenantScope{}.EvaluateTenant(principal, resource, capability)
}
