package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/marketdesk/marketdesk/internal/authz"
	"github.com/marketdesk/marketdesk/internal/shared"
)

// PrincipalStore loads principals by user id.
type PrincipalStore interface {
	Principal(ctx context.Context, userID int64) (*authz.Principal, error)
}

// TokenVerifier validates a bearer token and returns its subject.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// SessionResolver finds the caller from a bearer token or, failing that,
// the session cookie. Role and tenants always come from the store.
type SessionResolver struct {
	Principals PrincipalStore
	Tokens     TokenVerifier
	Logger     *slog.Logger
}

// Resolve implements PrincipalResolver.
func (s SessionResolver) Resolve(r *http.Request) (*authz.Principal, error) {
	if token := BearerToken(r); token != "" {
		if s.Tokens == nil {
			return nil, nil
		}
		userID, err := s.Tokens.Verify(token)
		if err != nil {
			s.debug("bearer token rejected", err)
			return nil, nil
		}
		return s.load(r.Context(), userID)
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		return nil, nil
	}
	userID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		s.debug("session user id unparsable", err)
		return nil, nil
	}
	return s.load(r.Context(), userID)
}

func (s SessionResolver) load(ctx context.Context, userID int64) (*authz.Principal, error) {
	p, err := s.Principals.Principal(ctx, userID)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrInactiveAccount):
		return nil, nil
	default:
		return nil, err
	}
}

func (s SessionResolver) debug(msg string, err error) {
	if s.Logger != nil {
		s.Logger.Debug(msg, slog.Any("error", err))
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
