package domain

import "time"

// TokenPair is what the login and refresh endpoints return: the short-lived
// access token (JWT) and the opaque refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"` // always "bearer"
	ExpiresIn    int64  `json:"expires_in"` // seconds until access token expiry
}

// RefreshToken models the stored refresh token record. The opaque value
// handed to the client is never persisted; TokenHash is its SHA-256
// fingerprint.
type RefreshToken struct {
	ID               string
	PrincipalID      string
	TokenHash        string
	DeviceDescriptor string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	Revoked          bool
	RevokedAt        *time.Time
	LastUsedAt       *time.Time
}

// Usable reports whether the token can still be redeemed at the given time.
func (t RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
