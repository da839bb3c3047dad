package authz

// PolicyResolver decides role requirements independent of tenants.
type PolicyResolver struct{}

// EvaluateRole checks the principal's role against the capability minimum.
// A missing principal or a role outside the catalog counts as no session.
func (PolicyResolver) EvaluateRole(principal *Principal, capability Capability) Decision {
	if principal == nil {
		return DenyUnauthenticated
	}
	role, err := Normalize(principal.Role)
	if err != nil {
		return DenyUnauthenticated
	}
	if AtLeast(role, capability.MinimumRole) {
		return Allow
	}
	return DenyInsufficientRole
}

// EvaluateRole is PolicyResolver{}.EvaluateRole.
func EvaluateRole(principal *Principal, capability Capability) Decision {
	return PolicyResolver{}.EvaluateRole(principal, capability)
}

// IsAdminOrAbove reports whether the principal passes the admin override.
func IsAdminOrAbove(principal *Principal) bool {
	return EvaluateRole(principal, adminOverride) == Allow
}
