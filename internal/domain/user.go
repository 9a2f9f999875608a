package domain

import (
	"context"
	"strings"
	"time"
)

// User represents an account that can sign in with a password, an external
// identity provider, or both.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string // empty for users that only ever signed in through OAuth

	OAuthProvider string
	OAuthSubject  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword reports whether the user can authenticate with credentials.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// NormalizeEmail lower-cases and trims an email address. Every lookup and
// store goes through it so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByOAuth(ctx context.Context, provider, subject string) (*User, error)
	// UpsertPassword creates the user if the email is unknown, otherwise
	// replaces the stored password hash.
	UpsertPassword(ctx context.Context, email, passwordHash string) (*User, error)
}
