package store

import (
	"context"
	"errors"
	"time"

	"github.com/droneops/facilityd/internal/users/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. Sub-repositories keep the query surface tidy and let
// services hold a single dependency.
type Store interface {
	Users() Users
	Facilities() Facilities

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise. Prefer this over Tx directly.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos plus Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// IsEmpty reports whether no users exist yet (bootstrap check).
	IsEmpty(ctx context.Context) (bool, error)

	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByOAuth returns the user linked to the (server, token)
	// identity pair, the uniqueness key for external identities.
	GetUserByOAuth(ctx context.Context, server, token string) (domain.User, error)

	// CreateUser inserts a new user (ids are provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateName mutates the display name and bumps updated_at.
	UpdateName(ctx context.Context, userID, name string) error

	// UpdateCanManageUsers sets the user-management grant.
	UpdateCanManageUsers(ctx context.Context, userID string, allowed bool) error

	// UpdateCanControlDrone sets the drone-control grant.
	UpdateCanControlDrone(ctx context.Context, userID string, allowed bool) error

	// DeleteUser removes a user. Deleting an id that does not exist is
	// not an error.
	DeleteUser(ctx context.Context, userID string) error
}

type Facilities interface {
	// GetFacilityByID returns a facility including its pending invitation,
	// if any.
	GetFacilityByID(ctx context.Context, id string) (domain.Facility, error)

	// CreateFacility inserts a new facility. Facility provisioning happens
	// out of band; this exists for seeding and tests.
	CreateFacility(ctx context.Context, f domain.Facility) error

	// SetInvitation overwrites the facility's pending invitation slot,
	// silently discarding any prior key (last writer wins).
	SetInvitation(ctx context.Context, facilityID string, inv domain.Invitation) error

	// ConsumeInvitation invalidates the pending invitation by resetting its
	// expiry to now, in a single conditional update: it only takes effect
	// when the stored code matches exactly and has not yet expired. Returns
	// false when the guard failed, i.e. the code was wrong, already
	// consumed, or expired.
	ConsumeInvitation(ctx context.Context, facilityID, code string, now time.Time) (bool, error)

	// ClearExpiredInvitations empties invitation slots whose expiry has
	// passed (housekeeping).
	ClearExpiredInvitations(ctx context.Context, now time.Time) error
}
