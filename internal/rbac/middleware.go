package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/marketdesk/marketdesk/internal/authz"
	"github.com/marketdesk/marketdesk/internal/platform/httpx"
	"github.com/marketdesk/marketdesk/internal/shared"
)

// DefaultSignInPath is where pages send anonymous visitors.
const DefaultSignInPath = "/auth/signin"

// DefaultAuditTimeout caps how long a deny waits on its audit record.
const DefaultAuditTimeout = 250 * time.Millisecond

// Middleware gates handlers behind the access guard and turns decisions into
// redirects (pages) or JSON envelopes (API).
type Middleware struct {
	Guard    Authorizer
	Resolver PrincipalResolver
	Logger   *slog.Logger
	Metrics  DecisionRecorder
	Auditor  DenyAuditor

	// SignInPath overrides DefaultSignInPath.
	SignInPath string
	// AuditTimeout overrides DefaultAuditTimeout.
	AuditTimeout time.Duration
}

// RequireAPI protects an API route. Denies answer 401 or 403 with the
// envelope {success:false,error}.
func (m Middleware) RequireAPI(capability authz.Capability, resource ResourceFunc) func(http.Handler) http.Handler {
	mustBeDeclared(capability)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, decision, err := m.evaluate(r, capability, resource)
			if err != nil {
				httpx.Fail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
				return
			}
			switch decision {
			case authz.Allow:
				next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
			case authz.DenyUnauthenticated:
				httpx.Fail(w, http.StatusUnauthorized, "authentication required")
			case authz.DenyWrongTenant:
				httpx.Fail(w, http.StatusForbidden, "resource outside your stores")
			default:
				httpx.Fail(w, http.StatusForbidden, "insufficient role")
			}
		})
	}
}

// RequirePage protects a page route. Anonymous visitors go to sign-in;
// signed-in principals lacking access go to their own landing page.
func (m Middleware) RequirePage(capability authz.Capability, resource ResourceFunc) func(http.Handler) http.Handler {
	mustBeDeclared(capability)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, decision, err := m.evaluate(r, capability, resource)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			switch decision {
			case authz.Allow:
				next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
			case authz.DenyUnauthenticated:
				http.Redirect(w, r, m.signInPath(), http.StatusSeeOther)
			default:
				if sess := shared.SessionFromContext(r.Context()); sess != nil {
					sess.AddFlash(shared.FlashMessage{Kind: "warning", Message: "That page is not available for your account."})
				}
				http.Redirect(w, r, landingOf(principal), http.StatusSeeOther)
			}
		})
	}
}

func (m Middleware) evaluate(r *http.Request, capability authz.Capability, resource ResourceFunc) (*authz.Principal, authz.Decision, error) {
	principal, err := m.Resolver.Resolve(r)
	if err != nil {
		m.logError("rbac resolve principal", err, r)
		return nil, 0, err
	}
	if resource == nil {
		resource = Platform()
	}
	target := resource(r)
	decision, err := m.Guard.Authorize(principal, capability, target)
	if err != nil {
		m.logError("rbac authorize", err, r)
		return nil, 0, err
	}
	if m.Metrics != nil {
		m.Metrics.ObserveDecision(capability.Name, decision.String())
	}
	if decision != authz.Allow {
		m.recordDeny(r, principal, capability, target, decision)
	}
	return principal, decision, nil
}

func (m Middleware) recordDeny(r *http.Request, principal *authz.Principal, capability authz.Capability, target authz.ResourceRef, decision authz.Decision) {
	event := DenyEvent{
		Capability: capability.Name,
		Decision:   decision.String(),
		Method:     r.Method,
		Path:       r.URL.Path,
		RequestID:  chimw.GetReqID(r.Context()),
		At:         time.Now().UTC(),
	}
	if principal != nil {
		event.PrincipalID = principal.ID
		event.Role = principal.Role
	}
	if tenantID, ok := target.Tenant(); ok {
		event.TenantID = tenantID
	}
	if m.Logger != nil {
		m.Logger.Info("access denied",
			slog.String("capability", event.Capability),
			slog.String("decision", event.Decision),
			slog.String("principal", event.PrincipalID),
			slog.String("tenant", event.TenantID),
			slog.String("path", event.Path),
		)
	}
	if m.Auditor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), m.auditTimeout())
	defer cancel()
	if err := m.Auditor.RecordDeny(ctx, event); err != nil && m.Logger != nil {
		m.Logger.Warn("rbac record deny", slog.Any("error", err))
	}
}

func (m Middleware) auditTimeout() time.Duration {
	if m.AuditTimeout > 0 {
		return m.AuditTimeout
	}
	return DefaultAuditTimeout
}

func (m Middleware) logError(msg string, err error, r *http.Request) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err), slog.String("path", r.URL.Path))
	}
}

func (m Middleware) signInPath() string {
	if m.SignInPath != "" {
		return m.SignInPath
	}
	return DefaultSignInPath
}

func landingOf(principal *authz.Principal) string {
	role, err := principal.CanonicalRole()
	if err != nil {
		return "/"
	}
	return authz.LandingFor(role)
}

// mustBeDeclared fails route mounting for malformed capabilities so the
// fault surfaces at startup rather than per request.
func mustBeDeclared(capability authz.Capability) {
	if err := capability.Validate(); err != nil {
		panic(err)
	}
}
