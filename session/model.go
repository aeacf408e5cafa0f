// Package session implements the refresh-token record registry: one record
// per active authenticated session, stored in Redis, revocable individually
// or in bulk, and rotated atomically on every refresh.
package session

import "time"

// Record is one active (or revoked-but-unexpired) session. The client-side
// refresh token is never stored; TokenHash holds the keyed digest of its
// secret half.
type Record struct {
	ID        string
	UserID    string
	TokenHash [32]byte
	IssuedAt  int64
	ExpiresAt int64
	RevokedAt int64 // zero while the session is live
	UserAgent string
	IP        string
}

// Revoked reports whether the record has been explicitly invalidated.
func (r *Record) Revoked() bool {
	return r.RevokedAt != 0
}

// Expired reports whether the record has passed its natural lifetime.
func (r *Record) Expired(now time.Time) bool {
	return now.Unix() >= r.ExpiresAt
}

// Info is the client-visible session metadata. Token material is never
// exposed.
type Info struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"userAgent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// InfoOf strips a record down to listable metadata.
func InfoOf(r *Record) Info {
	return Info{
		ID:        r.ID,
		UserAgent: r.UserAgent,
		IP:        r.IP,
		IssuedAt:  time.Unix(r.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(r.ExpiresAt, 0).UTC(),
	}
}
