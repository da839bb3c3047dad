package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/marketdesk/marketdesk/internal/platform/db"
	"github.com/marketdesk/marketdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

// ListUsers returns one page of users ordered by id and the total count.
// The count and the page are read concurrently.
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]User, int, error) {
	var (
		total int
		users []User
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	})
	g.Go(func() error {
		rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		users = make([]User, 0, limit)
		for rows.Next() {
			user, err := scanUser(rows)
			if err != nil {
				return err
			}
			users = append(users, user)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// TenantIDs returns the stores a user owns or staffs.
func (r *Repository) TenantIDs(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT store_id::text FROM store_members WHERE user_id = $1 ORDER BY store_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateRole stores the new canonical role and records the change in the
// audit trail within one transaction.
func (r *Repository) UpdateRole(ctx context.Context, change RoleChange) (User, error) {
	var updated User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		user, err := scanUser(tx.QueryRow(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, change.UserID, change.To))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		meta, err := json.Marshal(map[string]string{"from": change.From, "to": change.To})
		if err != nil {
			return err
		}
		var actor *string
		if change.ActorID != "" {
			actor = &change.ActorID
		}
		if _, err := tx.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, 'users.role_changed', 'user', $2, $3, NOW())`, actor, strconv.FormatInt(change.UserID, 10), meta); err != nil {
			return fmt.Errorf("users: audit role change: %w", err)
		}
		updated = user
		return nil
	})
	return updated, err
}

var _ RepositoryPort = (*Repository)(nil)

// ErrNotFound is returned when the user does not exist.
var ErrNotFound = fmt.Errorf("user %w", shared.ErrNotFound)
