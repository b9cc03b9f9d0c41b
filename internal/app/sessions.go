package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andredfaria/daily/internal/identity"
	"github.com/andredfaria/daily/internal/store"
	"github.com/andredfaria/daily/internal/waha"
)

type RegisterInput struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	Name     *string `json:"name" validate:"omitnil,profile_text"`
	Phone    *string `json:"phone" validate:"omitnil,profile_phone"`
}

type RegisterResult struct {
	User      identity.Identity `json:"user"`
	DailyUser ProfileView       `json:"dailyUser"`
}

// Register creates the identity and then its profile. The profile step is
// idempotent on the identity id, so retrying a half-finished registration
// is safe.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = trimmedOrNil(in.Name)
	in.Phone = trimmedOrNil(in.Phone)
	if problems := validateFields(in); len(problems) > 0 {
		return RegisterResult{}, errValidation(problems)
	}

	metadata := map[string]any{}
	if in.Name != nil {
		metadata["name"] = *in.Name
	}
	ident, err := s.identities.SignUp(ctx, identity.SignUpRequest{
		Email:    in.Email,
		Password: in.Password,
		Metadata: metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrEmailTaken):
			return RegisterResult{}, errConflict(http.StatusConflict, "EMAIL_TAKEN", "Email already registered")
		case errors.Is(err, identity.ErrWeakPassword):
			return RegisterResult{}, errWeakSecret("Password is too weak. Mix letters, numbers and symbols.")
		}
		return RegisterResult{}, s.upstream("could not register", err)
	}

	fields := store.ProfileFields{Name: in.Name}
	if in.Phone != nil {
		phone := *in.Phone
		if !waha.IsChatID(phone) {
			phone = waha.Digits(phone)
		}
		fields.Phone = &phone
	}
	profile, err := s.store.EnsureProfileForIdentity(ctx, ident.ID, fields)
	if err != nil {
		s.logger.Error("profile creation after sign-up failed", zap.String("identity_id", ident.ID), zap.Error(err))
		return RegisterResult{}, errUnknown("PROFILE_CREATE_FAILED", "Account created but the profile could not be saved. Try signing in again.")
	}
	return RegisterResult{User: ident, DailyUser: viewProfile(profile)}, nil
}

type LoginResult struct {
	AccessToken string            `json:"accessToken"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	User        identity.Identity `json:"user"`
}

func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, errBadInput("INVALID_BODY", "Email and password are required", nil)
	}
	tokens, err := s.identities.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return LoginResult{}, domainError(http.StatusUnauthorized, KindUnauthenticated, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		}
		return LoginResult{}, s.upstream("could not sign in", err)
	}
	return LoginResult{AccessToken: tokens.AccessToken, ExpiresAt: tokens.ExpiresAt, User: tokens.Identity}, nil
}

// Logout revokes the token upstream. Failures are logged only; the client
// drops its token either way.
func (s *Service) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := s.identities.SignOut(ctx, token); err != nil {
		s.logger.Info("sign-out failed", zap.Error(err))
	}
}

type MeResult struct {
	User      identity.Identity `json:"user"`
	DailyUser *ProfileView      `json:"dailyUser"`
}

func (s *Service) Me(session Session) MeResult {
	result := MeResult{User: session.Identity}
	if session.Profile != nil {
		view := viewProfile(*session.Profile)
		result.DailyUser = &view
	}
	return result
}

func (s *Service) ValidatePhone(ctx context.Context, phone string) waha.Result {
	return s.phones.Validate(ctx, phone)
}

func (s *Service) WhatsAppProfile(ctx context.Context, phone string) waha.Profile {
	return s.profiles.FetchProfile(ctx, phone)
}
