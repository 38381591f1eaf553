package model

import "time"

// Actor is a resolved caller identity. Identity resolution is a pure
// lookup of credential plus current time; an expired token resolves to
// nothing.
type Actor struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	RateTier  string    `json:"rate_tier"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the credential behind this actor has lapsed.
// A zero ExpiresAt means the credential does not expire.
func (a *Actor) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}
