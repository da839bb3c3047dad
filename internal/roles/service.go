package roles

import (
	"context"

	"github.com/marketdesk/marketdesk/internal/authz"
)

// Counter reports active users per stored role.
type Counter interface {
	CountByRole(ctx context.Context) (map[string]int, error)
}

// Service serves the role catalog.
type Service struct {
	counter Counter
}

// NewService builds Service instance. counter may be nil.
func NewService(counter Counter) *Service {
	return &Service{counter: counter}
}

// Catalog lists the roles from lowest to highest level.
func (s *Service) Catalog() []Role {
	roles := authz.Roles()
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, Role{Name: r.String(), Level: r.Level(), Landing: authz.LandingFor(r)})
	}
	return out
}

// CatalogWithUsage adds user counts. Stored role strings are folded through
// Normalize so legacy spellings count toward their canonical role; strings
// that match no role are ignored.
func (s *Service) CatalogWithUsage(ctx context.Context) ([]Role, error) {
	out := s.Catalog()
	if s.counter == nil {
		return out, nil
	}
	raw, err := s.counter.CountByRole(ctx)
	if err != nil {
		return nil, err
	}
	totals := make(map[authz.Role]int, len(out))
	for stored, n := range raw {
		if role, err := authz.Normalize(stored); err == nil {
			totals[role] += n
		}
	}
	for i := range out {
		n := totals[authz.Role(out[i].Name)]
		out[i].Users = &n
	}
	return out, nil
}
