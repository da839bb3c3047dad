package stores

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/marketdesk/marketdesk/internal/authz"
	"github.com/marketdesk/marketdesk/internal/shared"
)

var (
	// ErrStatusChange is returned when a non-admin tries to change a status.
	ErrStatusChange = errors.New("stores: only admins can change store status")
	// ErrOwnerAssignment is returned when someone other than an admin or an
	// existing owner adds an owner.
	ErrOwnerAssignment = errors.New("stores: only owners and admins can add owners")
)

// RepositoryPort defines data access methods for stores.
type RepositoryPort interface {
	ListAll(ctx context.Context) ([]Store, error)
	ListByIDs(ctx context.Context, ids []string) ([]Store, error)
	Get(ctx context.Context, id string) (Store, error)
	Update(ctx context.Context, id string, upd StoreUpdate) (Store, error)
	Members(ctx context.Context, storeID string) ([]Member, error)
	MemberRole(ctx context.Context, storeID string, userID int64) (string, error)
	AddMember(ctx context.Context, storeID string, in MemberInput) (Member, error)
}

// PrincipalInvalidator drops cached principals after a membership change.
type PrincipalInvalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// AuditRecorder writes the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements store operations. Callers are already authorized for
// the store; the service only applies rules inside it.
type Service struct {
	repo       RepositoryPort
	principals PrincipalInvalidator
	audit      AuditRecorder
	logger     *slog.Logger
}

// NewService builds Service instance. principals and audit may be nil.
func NewService(repo RepositoryPort, principals PrincipalInvalidator, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, principals: principals, audit: audit, logger: logger}
}

// ListVisible returns every store for admins and the principal's own
// stores for everyone else.
func (s *Service) ListVisible(ctx context.Context, p *authz.Principal) ([]Store, error) {
	if authz.IsAdminOrAbove(p) {
		return s.repo.ListAll(ctx)
	}
	return s.repo.ListByIDs(ctx, p.TenantIDs())
}

// Get returns one store. Ids that are not UUIDs cannot exist.
func (s *Service) Get(ctx context.Context, id string) (Store, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Store{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Update renames a store or changes its status.
func (s *Service) Update(ctx context.Context, actor *authz.Principal, id string, upd StoreUpdate) (Store, error) {
	if upd.Status != nil && !authz.IsAdminOrAbove(actor) {
		return Store{}, ErrStatusChange
	}
	if _, err := uuid.Parse(id); err != nil {
		return Store{}, ErrNotFound
	}
	store, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		return Store{}, err
	}
	s.record(ctx, actor, "stores.updated", id, map[string]any{"name": store.Name, "status": store.Status})
	return store, nil
}

// Members lists store staff.
func (s *Service) Members(ctx context.Context, storeID string) ([]Member, error) {
	if _, err := uuid.Parse(storeID); err != nil {
		return nil, ErrNotFound
	}
	return s.repo.Members(ctx, storeID)
}

// AddMember attaches a user to a store and drops the user's cached
// principal so the new tenant applies on the next request. Only admins and
// the store's owners may add another owner.
func (s *Service) AddMember(ctx context.Context, actor *authz.Principal, storeID string, in MemberInput) (Member, error) {
	if _, err := uuid.Parse(storeID); err != nil {
		return Member{}, ErrNotFound
	}
	if in.Role == MemberOwner {
		if err := s.canAddOwner(ctx, actor, storeID); err != nil {
			return Member{}, err
		}
	}
	member, err := s.repo.AddMember(ctx, storeID, in)
	if err != nil {
		return Member{}, err
	}
	if s.principals != nil {
		if err := s.principals.Invalidate(ctx, in.UserID); err != nil {
			s.warn("invalidate principal", err)
		}
	}
	s.record(ctx, actor, "stores.member_added", storeID, map[string]any{"user_id": in.UserID, "role": in.Role})
	return member, nil
}

func (s *Service) canAddOwner(ctx context.Context, actor *authz.Principal, storeID string) error {
	if authz.IsAdminOrAbove(actor) {
		return nil
	}
	if actor == nil {
		return ErrOwnerAssignment
	}
	actorID, err := strconv.ParseInt(actor.ID, 10, 64)
	if err != nil {
		return ErrOwnerAssignment
	}
	role, err := s.repo.MemberRole(ctx, storeID, actorID)
	if err != nil {
		return err
	}
	if role != MemberOwner {
		return ErrOwnerAssignment
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor *authz.Principal, action, storeID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{Action: action, Entity: "store", EntityID: storeID, Meta: meta}
	if actor != nil {
		entry.ActorID = actor.ID
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.warn("audit "+action, err)
	}
}

func (s *Service) warn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.Any("error", err))
	}
}
