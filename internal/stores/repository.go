package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketdesk/marketdesk/internal/shared"
)

var (
	// ErrNotFound is returned when the store does not exist.
	ErrNotFound = fmt.Errorf("store %w", shared.ErrNotFound)
	// ErrUserNotFound is returned when a member refers to a missing user.
	ErrUserNotFound = fmt.Errorf("user %w", shared.ErrNotFound)
	// ErrMemberExists is returned when the user already belongs to the store.
	ErrMemberExists = fmt.Errorf("store member %w", shared.ErrConflict)
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const storeColumns = `id::text, name, slug, status, created_at, updated_at`

func scanStore(row pgx.Row) (Store, error) {
	var s Store
	err := row.Scan(&s.ID, &s.Name, &s.Slug, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func collectStores(rows pgx.Rows) ([]Store, error) {
	defer rows.Close()
	out := make([]Store, 0)
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListAll returns every store ordered by name.
func (r *Repository) ListAll(ctx context.Context) ([]Store, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+storeColumns+` FROM stores ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	return collectStores(rows)
}

// ListByIDs returns the stores with the given ids ordered by name.
func (r *Repository) ListByIDs(ctx context.Context, ids []string) ([]Store, error) {
	if len(ids) == 0 {
		return []Store{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+storeColumns+` FROM stores WHERE id::text = ANY($1) ORDER BY name, id`, ids)
	if err != nil {
		return nil, err
	}
	return collectStores(rows)
}

// Get fetches one store.
func (r *Repository) Get(ctx context.Context, id string) (Store, error) {
	s, err := scanStore(r.pool.QueryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Store{}, ErrNotFound
	}
	return s, err
}

// Update applies the non-nil fields of upd.
func (r *Repository) Update(ctx context.Context, id string, upd StoreUpdate) (Store, error) {
	sets := make([]string, 0, 3)
	args := []any{id}
	if upd.Name != nil {
		args = append(args, *upd.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if upd.Status != nil {
		args = append(args, *upd.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	query := `UPDATE stores SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + storeColumns
	s, err := scanStore(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Store{}, ErrNotFound
	}
	return s, err
}

// Members lists the users attached to a store.
func (r *Repository) Members(ctx context.Context, storeID string) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.store_id::text, m.user_id, u.email, m.role, m.added_at
FROM store_members m JOIN users u ON u.id = m.user_id
WHERE m.store_id = $1 ORDER BY m.added_at, m.user_id`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Member, 0)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.StoreID, &m.UserID, &m.Email, &m.Role, &m.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MemberRole returns the user's role in the store, or "" when the user is
// not a member.
func (r *Repository) MemberRole(ctx context.Context, storeID string, userID int64) (string, error) {
	var role string
	err := r.pool.QueryRow(ctx, `SELECT role FROM store_members WHERE store_id = $1 AND user_id = $2`,
		storeID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return role, err
}

// AddMember inserts a membership.
func (r *Repository) AddMember(ctx context.Context, storeID string, in MemberInput) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, `WITH inserted AS (
	INSERT INTO store_members (store_id, user_id, role, added_at) VALUES ($1, $2, $3, NOW())
	RETURNING store_id, user_id, role, added_at
)
SELECT i.store_id::text, i.user_id, u.email, i.role, i.added_at FROM inserted i JOIN users u ON u.id = i.user_id`,
		storeID, in.UserID, in.Role).Scan(&m.StoreID, &m.UserID, &m.Email, &m.Role, &m.AddedAt)
	switch {
	case shared.IsUniqueViolation(err):
		return Member{}, ErrMemberExists
	case shared.IsForeignKeyViolation(err):
		return Member{}, ErrUserNotFound
	}
	return m, err
}
