package domain

import "time"

// Principal is an authenticatable identity. Identity is immutable;
// CredentialHash is the only field that changes after creation (password
// change / reset).
type Principal struct {
	ID             string
	Email          string
	CredentialHash string // argon2id PHC encoded
	Active         bool
	Superuser      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
