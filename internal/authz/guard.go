package authz

import "fmt"

// Guard is the single enforcement point: role check first, tenant check
// only when the role check allows.
type Guard struct {
	roles   RoleEvaluator
	tenants TenantEvaluator
}

// GuardOption customises a Guard.
type GuardOption func(*Guard)

// WithRoleEvaluator replaces the role evaluator.
func WithRoleEvaluator(e RoleEvaluator) GuardOption {
	return func(g *Guard) {
		if e != nil {
			g.roles = e
		}
	}
}

// WithTenantEvaluator replaces the tenant evaluator.
func WithTenantEvaluator(e TenantEvaluator) GuardOption {
	return func(g *Guard) {
		if e != nil {
			g.tenants = e
		}
	}
}

// NewGuard builds a Guard over PolicyResolver and TenantScope.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{roles: PolicyResolver{}, tenants: TenantScope{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize evaluates one operation. Denies are ordinary decisions; the only
// error is ErrMalformedCapability, which signals a declaration bug.
func (g *Guard) Authorize(principal *Principal, capability Capability, resource ResourceRef) (Decision, error) {
	if !capability.wellFormed() {
		return 0, fmt.Errorf("%w: %q requires a name and a catalog minimum role", ErrMalformedCapability, capability.Name)
	}
	if decision := g.roles.EvaluateRole(principal, capability); decision != Allow {
		return decision, nil
	}
	return g.tenants.EvaluateTenant(principal, resource, capability), nil
}
