package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/droneops/facilityd/internal/users/domain"
)

type facilitiesRepo struct {
	db dbtx
}

func (r *facilitiesRepo) GetFacilityByID(ctx context.Context, id string) (domain.Facility, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, invite_code, invite_expires_at,
			invite_can_manage_users, invite_can_control_drone,
			created_at, updated_at
		FROM facilities WHERE id = ?`, id)

	var (
		f               domain.Facility
		inviteCode      sql.NullString
		inviteExpiresAt sql.NullTime
		inviteManage    bool
		inviteControl   bool
	)
	err := row.Scan(
		&f.ID,
		&f.Name,
		&inviteCode,
		&inviteExpiresAt,
		&inviteManage,
		&inviteControl,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return domain.Facility{}, mapNotFound(err)
	}

	if inviteCode.Valid && inviteExpiresAt.Valid {
		f.Invitation = &domain.Invitation{
			Code:            inviteCode.String,
			ExpiresAt:       inviteExpiresAt.Time,
			CanManageUsers:  inviteManage,
			CanControlDrone: inviteControl,
		}
	}
	return f, nil
}

func (r *facilitiesRepo) CreateFacility(ctx context.Context, f domain.Facility) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO facilities (id, name) VALUES (?, ?)`,
		f.ID, f.Name)
	return mapConstraint(err)
}

func (r *facilitiesRepo) SetInvitation(ctx context.Context, facilityID string, inv domain.Invitation) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE facilities SET
			invite_code = ?,
			invite_expires_at = ?,
			invite_can_manage_users = ?,
			invite_can_control_drone = ?,
			updated_at = ?
		WHERE id = ?`,
		inv.Code, inv.ExpiresAt.UTC(), inv.CanManageUsers, inv.CanControlDrone,
		time.Now().UTC(), facilityID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ConsumeInvitation burns a pending key by moving its expiry to now. The code
// match and the unexpired guard live in the WHERE clause so two concurrent
// redemptions of the same key cannot both succeed.
func (r *facilitiesRepo) ConsumeInvitation(ctx context.Context, facilityID, code string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE facilities SET
			invite_expires_at = ?,
			updated_at = ?
		WHERE id = ? AND invite_code = ? AND invite_expires_at > ?`,
		now.UTC(), now.UTC(), facilityID, code, now.UTC())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *facilitiesRepo) ClearExpiredInvitations(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE facilities SET
			invite_code = NULL,
			invite_expires_at = NULL,
			invite_can_manage_users = FALSE,
			invite_can_control_drone = FALSE,
			updated_at = ?
		WHERE invite_code IS NOT NULL AND invite_expires_at <= ?`,
		now.UTC(), now.UTC())
	return err
}
