package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/droneops/facilityd/internal/users/domain"
	"github.com/droneops/facilityd/internal/users/store"
	"github.com/droneops/facilityd/pkg/idx"
	"github.com/droneops/facilityd/pkg/slogx"
)

var ErrBootstrapAlready = errors.New("system already bootstrapped")

// BootstrapData seeds the first facility and its administrator. Facility
// provisioning is otherwise out of band, so without this seed no user could
// ever mint the first invitation key.
type BootstrapData struct {
	FacilityID   string // optional fixed id, generated when empty
	FacilityName string

	AdminID          string // optional fixed id, generated when empty
	AdminName        string
	AdminOAuthToken  string
	AdminOAuthServer string
}

type BootstrapService struct {
	Store store.Store
}

// IsBootstrapped reports whether any users exist.
func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// Bootstrap creates the seed facility and admin user in one transaction and
// returns their ids. The admin gets both grants so they can mint keys and
// manage the fleet.
func (s *BootstrapService) Bootstrap(ctx context.Context, data BootstrapData) (string, string, error) {
	l := slogx.FromContext(ctx)

	// 1. Refuse to seed a populated system.
	if bootstrapped, err := s.IsBootstrapped(ctx); err != nil {
		return "", "", err
	} else if bootstrapped {
		l.Warn("attempted bootstrap on already-bootstrapped system")
		return "", "", ErrBootstrapAlready
	}

	facilityID := data.FacilityID
	if facilityID == "" {
		facilityID = idx.New().String()
	}
	adminID := data.AdminID
	if adminID == "" {
		adminID = idx.New().String()
	}

	// 2. Create facility and admin together.
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Facilities().CreateFacility(ctx, domain.Facility{
			ID:   facilityID,
			Name: data.FacilityName,
		}); err != nil {
			return err
		}
		return tx.Users().CreateUser(ctx, domain.User{
			ID:              adminID,
			FacilityID:      facilityID,
			LoginID:         idx.New().String(),
			Name:            data.AdminName,
			OAuthToken:      data.AdminOAuthToken,
			OAuthServer:     data.AdminOAuthServer,
			CanManageUsers:  true,
			CanControlDrone: true,
		})
	})
	if err != nil {
		l.Error("bootstrap failed", slog.Any("error", err))
		return "", "", err
	}

	l.Info("system bootstrapped",
		slog.String("facility_id", facilityID),
		slog.String("admin_id", adminID),
	)
	return facilityID, adminID, nil
}
