package sqlite

import (
	"context"
	"time"

	"github.com/droneops/facilityd/internal/users/domain"
	"github.com/droneops/facilityd/internal/users/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, facility_id, login_id, name, oauth_server, oauth_token,
	can_manage_users, can_control_drone, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.FacilityID,
		&u.LoginID,
		&u.Name,
		&u.OAuthServer,
		&u.OAuthToken,
		&u.CanManageUsers,
		&u.CanControlDrone,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByOAuth(ctx context.Context, server, token string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE oauth_server = ? AND oauth_token = ?`,
		server, token)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, facility_id, login_id, name, oauth_server, oauth_token,
			can_manage_users, can_control_drone
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.FacilityID, u.LoginID, u.Name, u.OAuthServer, u.OAuthToken,
		u.CanManageUsers, u.CanControlDrone,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateName(ctx context.Context, userID, name string) error {
	return r.touch(ctx, userID, `name = ?`, name)
}

func (r *usersRepo) UpdateCanManageUsers(ctx context.Context, userID string, allowed bool) error {
	return r.touch(ctx, userID, `can_manage_users = ?`, allowed)
}

func (r *usersRepo) UpdateCanControlDrone(ctx context.Context, userID string, allowed bool) error {
	return r.touch(ctx, userID, `can_control_drone = ?`, allowed)
}

// touch runs a single-column update and bumps updated_at in the same statement.
func (r *usersRepo) touch(ctx context.Context, userID, assignment string, value any) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET `+assignment+`, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	// Deliberately ignores rows-affected: deleting an absent user succeeds.
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	return err
}
