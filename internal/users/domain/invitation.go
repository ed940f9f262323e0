package domain

import "time"

// Invitation is the single pending registration key of a facility. It is
// consumed by resetting ExpiresAt to the redemption time, never deleted, so
// a replayed code simply fails the expiry check.
type Invitation struct {
	Code            string
	ExpiresAt       time.Time
	CanManageUsers  bool // grants applied to whoever redeems the code
	CanControlDrone bool
}

// Expired reports whether the invitation is no longer redeemable at now.
func (i Invitation) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}
