package domain

import "time"

// Facility is the organizational tenant owning users. It holds at most one
// pending invitation at a time; issuing a new one overwrites the slot.
type Facility struct {
	ID         string
	Name       string
	Invitation *Invitation // nil when no invitation was ever issued
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
