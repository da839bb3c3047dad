package rbac

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marketdesk/marketdesk/internal/authz"
	"github.com/marketdesk/marketdesk/internal/shared"
)

// Authorizer evaluates one operation; *authz.Guard implements it.
type Authorizer interface {
	Authorize(principal *authz.Principal, capability authz.Capability, resource authz.ResourceRef) (authz.Decision, error)
}

// PrincipalResolver supplies the principal of a request. A nil principal
// with a nil error means the request is anonymous.
type PrincipalResolver interface {
	Resolve(r *http.Request) (*authz.Principal, error)
}

// DecisionRecorder counts decisions; *observability.Metrics implements it.
type DecisionRecorder interface {
	ObserveDecision(capability, decision string)
}

// DenyAuditor receives every deny for the audit trail.
type DenyAuditor interface {
	RecordDeny(ctx context.Context, event DenyEvent) error
}

// DenyEvent describes a denied request.
type DenyEvent struct {
	PrincipalID string    `json:"principal_id,omitempty"`
	Role        string    `json:"role,omitempty"`
	Capability  string    `json:"capability"`
	Decision    string    `json:"decision"`
	TenantID    string    `json:"tenant_id,omitempty"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	RequestID   string    `json:"request_id,omitempty"`
	At          time.Time `json:"at"`
}

// ResourceFunc derives the target resource of a request.
type ResourceFunc func(r *http.Request) authz.ResourceRef

// Platform marks a route as tenant-agnostic.
func Platform() ResourceFunc {
	return func(*http.Request) authz.ResourceRef {
		return authz.PlatformResource()
	}
}

// TenantParam reads the tenant id from a chi URL parameter.
func TenantParam(name string) ResourceFunc {
	return func(r *http.Request) authz.ResourceRef {
		return authz.TenantResource(chi.URLParam(r, name))
	}
}

// PrincipalFromContext returns the principal attached by RequireAPI or
// RequirePage.
func PrincipalFromContext(ctx context.Context) *authz.Principal {
	return shared.PrincipalFromContext(ctx)
}
