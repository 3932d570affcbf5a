package domain

import "time"

// User is owned by the identity provider and referenced everywhere else by
// username (spec.md §3).
type User struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Session is an issued auth token (spec.md §3), TTL owned by the identity
// provider.
type Session struct {
	AuthToken string
	Username  string
	CreatedAt time.Time
}

const SessionTTL = 30 * 24 * time.Hour
