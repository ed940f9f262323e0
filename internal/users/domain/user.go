package domain

import "time"

// User is an account belonging to a facility. Identity is delegated to an
// external OAuth provider; the (OAuthServer, OAuthToken) pair is unique per
// user and is the only link between the provider and this record.
type User struct {
	ID              string
	FacilityID      string
	LoginID         string // opaque secondary identifier minted at registration
	Name            string
	OAuthToken      string
	OAuthServer     string
	CanManageUsers  bool
	CanControlDrone bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
