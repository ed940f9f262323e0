package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/droneops/facilityd/internal/users/domain"
	"github.com/droneops/facilityd/internal/users/store"
	"github.com/droneops/facilityd/pkg/cryptox"
	"github.com/droneops/facilityd/pkg/idx"
	"github.com/droneops/facilityd/pkg/slogx"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNoInvitation     = errors.New("facility has no pending invitation")
	ErrKeyInvalid       = errors.New("invitation key does not match")
	ErrKeyExpired       = errors.New("invitation key has expired")
)

const (
	DefaultKeyLength     = 8
	DefaultMaxNameLength = 64
	DefaultInviteTTL     = 5 * time.Minute
)

// AccountService owns the facility-scoped account lifecycle: minting
// invitation keys, redeeming them into users, and editing or deleting
// existing accounts. Every permission check re-reads the caller's record
// from the store; session state is never trusted for authorization.
type AccountService struct {
	Store store.Store

	KeyLength     int
	MaxNameLength int
	InviteTTL     time.Duration
}

func (s *AccountService) keyLength() int {
	if s.KeyLength > 0 {
		return s.KeyLength
	}
	return DefaultKeyLength
}

func (s *AccountService) maxNameLength() int {
	if s.MaxNameLength > 0 {
		return s.MaxNameLength
	}
	return DefaultMaxNameLength
}

func (s *AccountService) inviteTTL() time.Duration {
	if s.InviteTTL > 0 {
		return s.InviteTTL
	}
	return DefaultInviteTTL
}

// IssueInvitationKey mints a fresh invitation code for the caller's facility,
// carrying the requested grants for whoever redeems it. Any previously
// pending key for the facility is silently discarded.
func (s *AccountService) IssueInvitationKey(
	ctx context.Context,
	callerID string,
	canManageUsers bool,
	canControlDrone bool,
) (string, error) {
	log := slogx.FromContext(ctx)

	// 1. Re-fetch the caller and check the manage-users grant.
	caller, err := s.Store.Users().GetUserByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("key issue attempt by unknown caller", slog.String("caller_id", callerID))
			return "", ErrPermissionDenied
		}
		log.Error("failed to fetch caller", slog.Any("error", err))
		return "", err
	}
	if !caller.CanManageUsers {
		log.Warn("key issue attempt without manage-users grant",
			slog.String("caller_id", callerID),
		)
		return "", ErrPermissionDenied
	}

	// 2. Generate the random code.
	code, err := cryptox.GenerateCode(s.keyLength())
	if err != nil {
		log.Error("failed to generate invitation code", slog.Any("error", err))
		return "", err
	}

	// 3. Overwrite the facility's pending invitation slot.
	inv := domain.Invitation{
		Code:            code,
		ExpiresAt:       time.Now().Add(s.inviteTTL()),
		CanManageUsers:  canManageUsers,
		CanControlDrone: canControlDrone,
	}
	if err := s.Store.Facilities().SetInvitation(ctx, caller.FacilityID, inv); err != nil {
		log.Error("failed to store invitation",
			slog.String("facility_id", caller.FacilityID),
			slog.Any("error", err),
		)
		return "", err
	}

	// Logging the code is an operational choice: facility admins relay the
	// key out of band and support needs to reconstruct what was issued.
	log.Info("invitation key issued",
		slog.String("caller_id", callerID),
		slog.String("facility_id", caller.FacilityID),
		slog.String("code", code),
		slog.Bool("can_manage_users", canManageUsers),
		slog.Bool("can_control_drone", canControlDrone),
	)
	return code, nil
}

// RegisterParams carries the validated registration form plus the OAuth
// identity pair popped from the caller's pending session state.
type RegisterParams struct {
	FacilityID  string
	Key         string
	Name        string
	OAuthToken  string
	OAuthServer string
}

// RegisterWithKey redeems an invitation key into a new user. When the OAuth
// identity pair already belongs to a user, the existing record is returned
// with existed=true and no key is consumed (idempotent re-link).
func (s *AccountService) RegisterWithKey(
	ctx context.Context,
	params RegisterParams,
) (domain.User, bool, error) {
	log := slogx.FromContext(ctx)

	// 1. Validate inputs. Name is required alongside the key material; an
	// all-whitespace name is as missing as an absent field.
	if params.FacilityID == "" || params.Key == "" ||
		strings.TrimSpace(params.Name) == "" ||
		params.OAuthToken == "" || params.OAuthServer == "" {
		return domain.User{}, false, ErrInvalidInput
	}

	// 2. Idempotent re-link: an identity pair already bound to a user just
	// logs that user in, leaving the invitation untouched.
	existing, err := s.Store.Users().GetUserByOAuth(ctx, params.OAuthServer, params.OAuthToken)
	if err == nil {
		log.Info("registration matched existing user",
			slog.String("user_id", existing.ID),
		)
		return existing, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to look up oauth identity", slog.Any("error", err))
		return domain.User{}, false, err
	}

	// 3. Fetch the facility and its pending invitation.
	facility, err := s.Store.Facilities().GetFacilityByID(ctx, params.FacilityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("registration against unknown facility",
				slog.String("facility_id", params.FacilityID),
			)
			return domain.User{}, false, ErrNoInvitation
		}
		log.Error("failed to fetch facility", slog.Any("error", err))
		return domain.User{}, false, err
	}
	if facility.Invitation == nil {
		log.Warn("registration against facility without invitation",
			slog.String("facility_id", params.FacilityID),
		)
		return domain.User{}, false, ErrNoInvitation
	}

	// 4. Check the supplied key against the pending invitation. Expiry is
	// re-verified atomically at consumption; these checks only pick the
	// right error message.
	now := time.Now()
	if facility.Invitation.Code != params.Key {
		log.Warn("registration with mismatched key",
			slog.String("facility_id", params.FacilityID),
			slog.String("key", params.Key),
		)
		return domain.User{}, false, ErrKeyInvalid
	}
	if facility.Invitation.Expired(now) {
		log.Warn("registration with expired key",
			slog.String("facility_id", params.FacilityID),
		)
		return domain.User{}, false, ErrKeyExpired
	}

	// 5. Consume the key and insert the user in one transaction. The
	// conditional update guards against a concurrent redemption that
	// committed between step 4 and here.
	user := domain.User{
		ID:              idx.New().String(),
		FacilityID:      facility.ID,
		LoginID:         idx.New().String(),
		Name:            s.normalizeName(params.Name),
		OAuthToken:      params.OAuthToken,
		OAuthServer:     params.OAuthServer,
		CanManageUsers:  facility.Invitation.CanManageUsers,
		CanControlDrone: facility.Invitation.CanControlDrone,
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		consumed, err := tx.Facilities().ConsumeInvitation(ctx, facility.ID, params.Key, now)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrKeyExpired
		}
		return tx.Users().CreateUser(ctx, user)
	})
	if err != nil {
		if errors.Is(err, ErrKeyExpired) {
			log.Warn("invitation consumed concurrently",
				slog.String("facility_id", facility.ID),
			)
			return domain.User{}, false, err
		}
		log.Error("failed to register user", slog.Any("error", err))
		return domain.User{}, false, err
	}

	log.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("facility_id", facility.ID),
		slog.Bool("can_manage_users", user.CanManageUsers),
		slog.Bool("can_control_drone", user.CanControlDrone),
	)
	return user, false, nil
}

// UserChanges is a partial update: nil fields are untouched.
type UserChanges struct {
	Name            *string
	CanManageUsers  *bool
	CanControlDrone *bool
}

// EditUser applies changes to targetID on behalf of callerID. Exactly one of
// three branches applies: self-edit (name only), admin edit of another user
// (grants only), or denial. Providing no fields at all is a silent no-op for
// the first two branches.
func (s *AccountService) EditUser(
	ctx context.Context,
	callerID string,
	targetID string,
	changes UserChanges,
) error {
	log := slogx.FromContext(ctx)

	// 1. Re-fetch the caller; authorization never trusts the session.
	caller, err := s.Store.Users().GetUserByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("edit attempt by unknown caller", slog.String("caller_id", callerID))
			return ErrPermissionDenied
		}
		log.Error("failed to fetch caller", slog.Any("error", err))
		return err
	}

	if targetID == "" {
		targetID = callerID
	}

	switch {
	case targetID == callerID:
		// 2a. Self-service: only the display name may change. A grant flag
		// in the same request is an escalation attempt.
		if changes.CanManageUsers != nil || changes.CanControlDrone != nil {
			log.Warn("self-edit attempted grant change",
				slog.String("caller_id", callerID),
			)
			return ErrPermissionDenied
		}
		if changes.Name == nil {
			return nil
		}
		if err := s.Store.Users().UpdateName(ctx, callerID, s.normalizeName(*changes.Name)); err != nil {
			log.Error("failed to update name", slog.Any("error", err))
			return err
		}

	case caller.CanManageUsers:
		// 2b. Admin editing someone else: grants only, never the name.
		if changes.Name != nil {
			log.Warn("admin edit attempted rename of another user",
				slog.String("caller_id", callerID),
				slog.String("target_id", targetID),
			)
			return ErrPermissionDenied
		}
		if changes.CanManageUsers != nil {
			if err := s.Store.Users().UpdateCanManageUsers(ctx, targetID, *changes.CanManageUsers); err != nil {
				log.Error("failed to update manage-users grant", slog.Any("error", err))
				return err
			}
		}
		if changes.CanControlDrone != nil {
			if err := s.Store.Users().UpdateCanControlDrone(ctx, targetID, *changes.CanControlDrone); err != nil {
				log.Error("failed to update control-drone grant", slog.Any("error", err))
				return err
			}
		}

	default:
		// 2c. Not self, not an admin.
		log.Warn("edit attempt without manage-users grant",
			slog.String("caller_id", callerID),
			slog.String("target_id", targetID),
		)
		return ErrPermissionDenied
	}

	log.Info("user edited",
		slog.String("caller_id", callerID),
		slog.String("target_id", targetID),
	)
	return nil
}

// DeleteUser removes targetID on behalf of callerID and reports whether the
// caller deleted themselves, in which case their session must end. Deleting
// an already-gone target succeeds (idempotent).
func (s *AccountService) DeleteUser(
	ctx context.Context,
	callerID string,
	targetID string,
) (bool, error) {
	log := slogx.FromContext(ctx)

	caller, err := s.Store.Users().GetUserByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("delete attempt by unknown caller", slog.String("caller_id", callerID))
			return false, ErrPermissionDenied
		}
		log.Error("failed to fetch caller", slog.Any("error", err))
		return false, err
	}

	if targetID == "" {
		targetID = callerID
	}
	self := targetID == callerID

	if !self && !caller.CanManageUsers {
		log.Warn("delete attempt without manage-users grant",
			slog.String("caller_id", callerID),
			slog.String("target_id", targetID),
		)
		return false, ErrPermissionDenied
	}

	if err := s.Store.Users().DeleteUser(ctx, targetID); err != nil {
		log.Error("failed to delete user",
			slog.String("target_id", targetID),
			slog.Any("error", err),
		)
		return false, err
	}

	log.Info("user deleted",
		slog.String("caller_id", callerID),
		slog.String("target_id", targetID),
		slog.Bool("self", self),
	)
	return self, nil
}

// normalizeName trims whitespace and caps the name at the configured rune
// count.
func (s *AccountService) normalizeName(name string) string {
	name = strings.TrimSpace(name)
	runes := []rune(name)
	if max := s.maxNameLength(); len(runes) > max {
		runes = runes[:max]
	}
	return string(runes)
}
