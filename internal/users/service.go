package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/marketdesk/marketdesk/internal/authz"
	"github.com/marketdesk/marketdesk/internal/shared"
)

// principalLoadTimeout bounds a shared store lookup; it is detached from
// the first caller's context so one cancelled request cannot fail the rest.
const principalLoadTimeout = 5 * time.Second

var (
	// ErrInvalidRole is returned when an assignment names no catalog role.
	ErrInvalidRole = errors.New("users: invalid role")
	// ErrSelfAssignment is returned when an actor changes its own role.
	ErrSelfAssignment = errors.New("users: cannot change own role")
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, limit, offset int) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	TenantIDs(ctx context.Context, userID int64) ([]string, error)
	UpdateRole(ctx context.Context, change RoleChange) (User, error)
}

// LoadObserver is told which tier served each principal lookup.
type LoadObserver interface {
	ObservePrincipalLoad(source string)
}

// Service handles user business logic and provides principals to the
// access layer.
type Service struct {
	repo     RepositoryPort
	cache    *PrincipalCache
	observer LoadObserver
	logger   *slog.Logger
	loads    singleflight.Group
}

// NewService builds Service instance. cache, observer and logger may be nil.
func NewService(repo RepositoryPort, cache *PrincipalCache, observer LoadObserver, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, observer: observer, logger: logger}
}

// Principal returns the authorization principal for a user. Missing users
// fail with ErrNotFound and disabled ones with shared.ErrInactiveAccount.
func (s *Service) Principal(ctx context.Context, userID int64) (*authz.Principal, error) {
	if p, source, err := s.cache.Get(ctx, userID); err != nil {
		s.warn("principal cache get", err)
	} else if p != nil {
		s.observe(source)
		return p, nil
	}

	key := strconv.FormatInt(userID, 10)
	resultCh := s.loads.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), principalLoadTimeout)
		defer cancel()
		return s.loadPrincipal(loadCtx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*authz.Principal), nil
	}
}

func (s *Service) loadPrincipal(ctx context.Context, userID int64) (*authz.Principal, error) {
	gen, genErr := s.cache.Generation(ctx, userID)
	if genErr != nil {
		s.warn("principal cache generation", genErr)
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInactiveAccount
	}
	tenants, err := s.repo.TenantIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("users: load tenants: %w", err)
	}
	p := authz.NewPrincipal(strconv.FormatInt(user.ID, 10), user.Role, tenants...)
	s.observe("store")
	if genErr == nil {
		if _, err := s.cache.Put(ctx, userID, p, gen); err != nil {
			s.warn("principal cache put", err)
		}
	}
	return p, nil
}

// Invalidate drops the cached principal so the next request reloads it.
// Loads already in flight still answer their callers but are not cached.
func (s *Service) Invalidate(ctx context.Context, userID int64) error {
	s.loads.Forget(strconv.FormatInt(userID, 10))
	return s.cache.Invalidate(ctx, userID)
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	pg := shared.NewPagination(page, perPage, 0)
	users, total, err := s.repo.ListUsers(ctx, pg.PerPage, pg.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(pg.Page, pg.PerPage, total), nil
}

// AssignRole moves a user to a catalog role. The role string may use any
// accepted spelling; the canonical name is stored.
func (s *Service) AssignRole(ctx context.Context, actor *authz.Principal, userID int64, role string) (User, error) {
	canonical, err := authz.Normalize(role)
	if err != nil {
		return User{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	actorID := ""
	if actor != nil {
		actorID = actor.ID
	}
	if actorID == strconv.FormatInt(userID, 10) {
		return User{}, ErrSelfAssignment
	}
	current, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	updated, err := s.repo.UpdateRole(ctx, RoleChange{UserID: userID, ActorID: actorID, From: current.Role, To: canonical.String()})
	if err != nil {
		return User{}, err
	}
	if err := s.Invalidate(ctx, userID); err != nil {
		s.warn("principal cache invalidate", err)
	}
	return updated, nil
}

func (s *Service) observe(source string) {
	if s.observer != nil {
		s.observer.ObservePrincipalLoad(source)
	}
}

func (s *Service) warn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.Any("error", err))
	}
}
