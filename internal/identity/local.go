package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/andredfaria/daily/internal/auth"
	"github.com/andredfaria/daily/internal/store"
)

// UserStore is the persistence the self-hosted provider needs.
type UserStore interface {
	CreateAuthUser(ctx context.Context, user store.AuthUser) (store.AuthUser, error)
	GetAuthUserByID(ctx context.Context, id string) (store.AuthUser, error)
	GetAuthUserByEmail(ctx context.Context, email string) (store.AuthUser, error)
	ListAuthUsers(ctx context.Context) ([]store.AuthUser, error)
	UpdateAuthUserEmail(ctx context.Context, id, email string) error
	UpdateAuthUserPassword(ctx context.Context, id, passwordHash string) error
	TouchAuthUserSignIn(ctx context.Context, id string, at time.Time) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Local keeps identities in Postgres with bcrypt password hashes and
// issues its own signed access tokens. Used when no hosted auth service is
// configured.
type Local struct {
	store     UserStore
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

func NewLocal(userStore UserStore, secret string, accessTTL time.Duration) *Local {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	return &Local{
		store:     userStore,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

func toIdentity(user store.AuthUser) Identity {
	return Identity{
		ID:               user.ID,
		Email:            user.Email,
		CreatedAt:        user.CreatedAt,
		EmailConfirmedAt: user.EmailConfirmedAt,
		LastSignInAt:     user.LastSignInAt,
	}
}

// weakPassword rejects short passwords and ones drawn from a single
// character class.
func weakPassword(password string) bool {
	if len(password) < MinPasswordLength {
		return true
	}
	var letters, digits, others bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letters = true
		case unicode.IsDigit(r):
			digits = true
		default:
			others = true
		}
	}
	classes := 0
	for _, present := range []bool{letters, digits, others} {
		if present {
			classes++
		}
	}
	return classes < 2
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrEmailTaken):
		return ErrEmailTaken
	default:
		return err
	}
}

func (l *Local) UserFromToken(ctx context.Context, accessToken string) (Identity, error) {
	claims, err := auth.ParseToken(l.secret, accessToken)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	revoked, err := l.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Identity{}, err
	}
	if revoked {
		return Identity{}, ErrInvalidToken
	}
	user, err := l.store.GetAuthUserByID(ctx, claims.Sub)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, ErrInvalidToken
	}
	if err != nil {
		return Identity{}, err
	}
	return toIdentity(user), nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (Tokens, error) {
	user, err := l.store.GetAuthUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Tokens{}, ErrInvalidCredentials
	}
	if err != nil {
		return Tokens{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Tokens{}, ErrInvalidCredentials
	}

	now := l.now()
	expiresAt := now.Add(l.accessTTL)
	token, err := auth.IssueToken(l.secret, auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		JTI:   uuid.NewString(),
		Exp:   expiresAt,
	})
	if err != nil {
		return Tokens{}, err
	}
	if err := l.store.TouchAuthUserSignIn(ctx, user.ID, now); err == nil {
		user.LastSignInAt = &now
	}
	return Tokens{AccessToken: token, ExpiresAt: expiresAt, Identity: toIdentity(user)}, nil
}

func (l *Local) SignUp(ctx context.Context, req SignUpRequest) (Identity, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return Identity{}, fmt.Errorf("email is required")
	}
	if weakPassword(req.Password) {
		return Identity{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}
	confirmedAt := l.now()
	created, err := l.store.CreateAuthUser(ctx, store.AuthUser{
		ID:               uuid.NewString(),
		Email:            email,
		PasswordHash:     string(hash),
		EmailConfirmedAt: &confirmedAt,
	})
	if err != nil {
		return Identity{}, mapStoreErr(err)
	}
	identity := toIdentity(created)
	identity.Metadata = req.Metadata
	return identity, nil
}

func (l *Local) SignOut(ctx context.Context, accessToken string) error {
	claims, err := auth.ParseToken(l.secret, accessToken)
	if err != nil {
		return nil
	}
	return l.store.RevokeAccessToken(ctx, claims.JTI, claims.Exp)
}

func (l *Local) GetUser(ctx context.Context, id string) (Identity, error) {
	user, err := l.store.GetAuthUserByID(ctx, id)
	if err != nil {
		return Identity{}, mapStoreErr(err)
	}
	return toIdentity(user), nil
}

func (l *Local) ListUsers(ctx context.Context) ([]Identity, error) {
	users, err := l.store.ListAuthUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Identity, 0, len(users))
	for _, user := range users {
		out = append(out, toIdentity(user))
	}
	return out, nil
}

func (l *Local) UpdateEmail(ctx context.Context, id, email string) error {
	return mapStoreErr(l.store.UpdateAuthUserEmail(ctx, id, email))
}

func (l *Local) UpdatePassword(ctx context.Context, id, password string) error {
	if weakPassword(password) {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return mapStoreErr(l.store.UpdateAuthUserPassword(ctx, id, string(hash)))
}
