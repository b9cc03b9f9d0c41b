// Package identity abstracts the store of login identities (email +
// password accounts) that profiles are linked to.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("identity not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password rejected as weak")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid access token")
	ErrUnavailable        = errors.New("identity provider unavailable")
)

const MinPasswordLength = 8

type Identity struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	CreatedAt        time.Time      `json:"created_at"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at"`
	Metadata         map[string]any `json:"user_metadata,omitempty"`
}

type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
	Identity    Identity
}

type SignUpRequest struct {
	Email    string
	Password string
	Metadata map[string]any
}

// Authenticator covers the end-user session flows.
type Authenticator interface {
	UserFromToken(ctx context.Context, accessToken string) (Identity, error)
	SignIn(ctx context.Context, email, password string) (Tokens, error)
	SignUp(ctx context.Context, req SignUpRequest) (Identity, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Admin covers the privileged operations used by the linking workflow.
type Admin interface {
	GetUser(ctx context.Context, id string) (Identity, error)
	ListUsers(ctx context.Context) ([]Identity, error)
	UpdateEmail(ctx context.Context, id, email string) error
	UpdatePassword(ctx context.Context, id, password string) error
}

type Provider interface {
	Authenticator
	Admin
}
