package types

import "time"

// AuthToken records an issued bearer token so it can be revoked at logout.
// ID matches the JWT jti claim.
type AuthToken struct {
	ID        string    `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}
