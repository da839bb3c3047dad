package authz

import "sort"

// Principal describes the authenticated actor of one request. It is built
// once by the session provider and never mutated afterwards.
type Principal struct {
	ID string
	// Role is the raw role string from the session provider; it is
	// normalized on every evaluation.
	Role    string
	tenants map[string]struct{}
}

// NewPrincipal builds a Principal owning or staffing the given tenants.
func NewPrincipal(id, role string, tenantIDs ...string) *Principal {
	tenants := make(map[string]struct{}, len(tenantIDs))
	for _, tenantID := range tenantIDs {
		if tenantID == "" {
			continue
		}
		tenants[tenantID] = struct{}{}
	}
	return &Principal{ID: id, Role: role, tenants: tenants}
}

// HasTenant reports whether tenantID is in the principal's tenant set.
func (p *Principal) HasTenant(tenantID string) bool {
	if p == nil {
		return false
	}
	_, ok := p.tenants[tenantID]
	return ok
}

// TenantIDs returns the tenant set sorted.
func (p *Principal) TenantIDs() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.tenants))
	for tenantID := range p.tenants {
		out = append(out, tenantID)
	}
	sort.Strings(out)
	return out
}

// CanonicalRole normalizes the principal's role.
func (p *Principal) CanonicalRole() (Role, error) {
	if p == nil {
		return "", ErrUnknownRole
	}
	return Normalize(p.Role)
}

// ResourceRef identifies the tenant owning the target of an operation.
// A nil TenantID marks a tenant-agnostic operation.
type ResourceRef struct {
	TenantID *string
}

// PlatformResource is the tenant-agnostic resource.
func PlatformResource() ResourceRef {
	return ResourceRef{}
}

// TenantResource references an object owned by tenantID.
func TenantResource(tenantID string) ResourceRef {
	return ResourceRef{TenantID: &tenantID}
}

// Tenant returns the tenant id and whether the resource is tenant-scoped.
func (r ResourceRef) Tenant() (string, bool) {
	if r.TenantID == nil {
		return "", false
	}
	return *r.TenantID, true
}

// Decision is the outcome of evaluating a principal against a capability.
// The zero value is not a valid decision and is never returned.
type Decision int

const (
	Allow Decision = iota + 1
	DenyUnauthenticated
	DenyInsufficientRole
	DenyWrongTenant
)

// Allowed reports whether the decision permits the operation.
func (d Decision) Allowed() bool {
	return d == Allow
}

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "deny_unauthenticated"
	case DenyInsufficientRole:
		return "deny_insufficient_role"
	case DenyWrongTenant:
		return "deny_wrong_tenant"
	default:
		return "unknown"
	}
}
