package app

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/andredfaria/daily/internal/audit"
	"github.com/andredfaria/daily/internal/identity"
	"github.com/andredfaria/daily/internal/policy"
	"github.com/andredfaria/daily/internal/store"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type LinkableIdentity struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	CreatedAt        time.Time  `json:"created_at"`
	IsLinked         bool       `json:"is_linked"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	LastSignInAt     *time.Time `json:"last_sign_in_at"`
}

// ListLinkableIdentities returns every identity, unlinked ones first and
// then by email ignoring case.
func (s *Service) ListLinkableIdentities(ctx context.Context, session Session) ([]LinkableIdentity, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	identities, err := s.identities.ListUsers(ctx)
	if err != nil {
		return nil, s.upstream("could not list identities", err)
	}
	linked, err := s.store.LinkedIdentityIDs(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]LinkableIdentity, 0, len(identities))
	for _, ident := range identities {
		_, isLinked := linked[ident.ID]
		items = append(items, LinkableIdentity{
			ID:               ident.ID,
			Email:            ident.Email,
			CreatedAt:        ident.CreatedAt,
			IsLinked:         isLinked,
			EmailConfirmedAt: ident.EmailConfirmedAt,
			LastSignInAt:     ident.LastSignInAt,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsLinked != items[j].IsLinked {
			return !items[i].IsLinked
		}
		return strings.ToLower(items[i].Email) < strings.ToLower(items[j].Email)
	})
	return items, nil
}

// LinkIdentity attaches identityID to the profile, or detaches whatever
// is attached when identityID is nil or empty.
func (s *Service) LinkIdentity(ctx context.Context, session Session, profileID int64, identityID *string) (store.Profile, error) {
	if err := s.requireAdmin(session); err != nil {
		return store.Profile{}, err
	}
	profile, err := s.store.GetProfile(ctx, profileID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, errNotFound(http.StatusBadRequest, "PROFILE_NOT_FOUND", "Profile not found")
	}
	if err != nil {
		return store.Profile{}, err
	}

	if identityID == nil || strings.TrimSpace(*identityID) == "" {
		return s.unlink(ctx, session, profile)
	}
	target := strings.TrimSpace(*identityID)

	found, err := s.identities.GetUser(ctx, target)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return store.Profile{}, errIdentityNotFound()
		}
		return store.Profile{}, s.upstream("could not look up identity", err)
	}
	// Only the id the provider confirmed is ever stored.
	if !strings.EqualFold(found.ID, target) {
		s.logger.Warn("identity lookup returned a different id", zap.String("requested", target), zap.String("returned", found.ID))
		return store.Profile{}, errIdentityNotFound()
	}
	target = found.ID

	if policy.StateOf(profile.IdentityID) == policy.Linked && *profile.IdentityID == target {
		s.record(ctx, session, profile.ID, audit.ActionLink, &target, map[string]any{"unchanged": true})
		return profile, nil
	}

	// Fast path only; the unique index settles races below.
	holder, err := s.store.GetProfileByIdentity(ctx, target)
	switch {
	case err == nil && holder.ID != profile.ID:
		return store.Profile{}, errAlreadyLinked()
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return store.Profile{}, err
	}

	previous := profile.IdentityID
	updated, err := s.store.SetProfileIdentity(ctx, profile.ID, &target)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrIdentityTaken):
			return store.Profile{}, errAlreadyLinked()
		case errors.Is(err, store.ErrNotFound):
			return store.Profile{}, errNotFound(http.StatusBadRequest, "PROFILE_NOT_FOUND", "Profile not found")
		}
		return store.Profile{}, err
	}

	detail := map[string]any{}
	if previous != nil {
		detail["previous_identity_id"] = *previous
	}
	s.record(ctx, session, updated.ID, audit.ActionLink, &target, detail)
	return updated, nil
}

func (s *Service) unlink(ctx context.Context, session Session, profile store.Profile) (store.Profile, error) {
	previous := profile.IdentityID
	updated, err := s.store.SetProfileIdentity(ctx, profile.ID, nil)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, errNotFound(http.StatusBadRequest, "PROFILE_NOT_FOUND", "Profile not found")
	}
	if err != nil {
		return store.Profile{}, err
	}
	s.record(ctx, session, updated.ID, audit.ActionUnlink, previous, nil)
	return updated, nil
}

func errIdentityNotFound() *DomainError {
	return errNotFound(http.StatusBadRequest, "IDENTITY_NOT_FOUND", "Identity not found")
}

func errAlreadyLinked() *DomainError {
	return errConflict(http.StatusBadRequest, "ALREADY_LINKED", "Identity is already linked to another profile")
}

// linkedIdentity loads the profile and its identity id for the credential
// operations, which need the Linked state.
func (s *Service) linkedIdentity(ctx context.Context, profileID int64) (string, error) {
	profile, err := s.store.GetProfile(ctx, profileID)
	if errors.Is(err, store.ErrNotFound) {
		return "", errNotFound(http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found")
	}
	if err != nil {
		return "", err
	}
	if !policy.CanChangeCredentials(policy.StateOf(profile.IdentityID)) {
		return "", errNotFound(http.StatusBadRequest, "NOT_LINKED", "Profile has no linked identity")
	}
	return *profile.IdentityID, nil
}

func (s *Service) UpdateLinkedEmail(ctx context.Context, session Session, profileID int64, email string) (string, error) {
	if err := s.requireAdmin(session); err != nil {
		return "", err
	}
	email = strings.TrimSpace(email)
	if !emailPattern.MatchString(email) {
		return "", errBadInput("INVALID_EMAIL", "Invalid email address", map[string]string{"email": "Invalid email address"})
	}
	identityID, err := s.linkedIdentity(ctx, profileID)
	if err != nil {
		return "", err
	}

	detail := map[string]any{"new_email": email}
	if current, err := s.identities.GetUser(ctx, identityID); err == nil && current.Email != "" {
		detail["old_email"] = current.Email
	}

	if err := s.identities.UpdateEmail(ctx, identityID, email); err != nil {
		switch {
		case errors.Is(err, identity.ErrEmailTaken):
			return "", errConflict(http.StatusBadRequest, "EMAIL_TAKEN", "Email is already registered to another account")
		case errors.Is(err, identity.ErrNotFound):
			return "", errNotFound(http.StatusBadRequest, "IDENTITY_NOT_FOUND", "Linked identity no longer exists")
		}
		return "", s.upstream("could not update email", err)
	}

	s.record(ctx, session, profileID, audit.ActionEmailChange, &identityID, detail)
	return email, nil
}

// UpdateLinkedPassword rejects short passwords before touching the store
// or the identity provider. The password never reaches a log or audit line.
func (s *Service) UpdateLinkedPassword(ctx context.Context, session Session, profileID int64, password string) error {
	if err := s.requireAdmin(session); err != nil {
		return err
	}
	if utf8.RuneCountInString(password) < identity.MinPasswordLength {
		return errBadInput("INVALID_PASSWORD", "Password must be at least 8 characters", map[string]string{"password": "Password must be at least 8 characters"})
	}
	identityID, err := s.linkedIdentity(ctx, profileID)
	if err != nil {
		return err
	}

	if err := s.identities.UpdatePassword(ctx, identityID, password); err != nil {
		switch {
		case errors.Is(err, identity.ErrWeakPassword):
			return errWeakSecret("Password is too weak. Mix letters, numbers and symbols.")
		case errors.Is(err, identity.ErrNotFound):
			return errNotFound(http.StatusBadRequest, "IDENTITY_NOT_FOUND", "Linked identity no longer exists")
		}
		return s.upstream("could not update password", err)
	}

	s.record(ctx, session, profileID, audit.ActionPasswordChange, &identityID, nil)
	return nil
}

func (s *Service) SetAdminFlag(ctx context.Context, session Session, profileID int64, isAdmin bool) (store.Profile, error) {
	if err := s.requireAdmin(session); err != nil {
		return store.Profile{}, err
	}
	profile, err := s.store.GetProfile(ctx, profileID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, errNotFound(http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found")
	}
	if err != nil {
		return store.Profile{}, err
	}

	updated, err := s.store.SetProfileAdmin(ctx, profileID, isAdmin)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Profile{}, errNotFound(http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found")
		}
		s.logger.Error("set admin flag failed", zap.Int64("profile_id", profileID), zap.Error(err))
		return store.Profile{}, errUnknown("ROLE_UPDATE_FAILED", "Could not update role")
	}

	s.record(ctx, session, profileID, audit.ActionRoleChange, profile.IdentityID, map[string]any{
		"old_is_admin": profile.IsAdmin,
		"new_is_admin": isAdmin,
	})
	return updated, nil
}

// CheckEdit answers the pre-flight question using the same policy the
// mutation routes enforce.
func (s *Service) CheckEdit(ctx context.Context, session Session, targetID int64) (policy.Decision, error) {
	if _, err := s.store.GetProfile(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return policy.Decision{}, errNotFound(http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found")
		}
		return policy.Decision{}, err
	}
	return policy.CanEdit(session.Caller(), targetID), nil
}

// AuditLog lists the newest audit entries for a profile.
func (s *Service) AuditLog(ctx context.Context, session Session, profileID int64, limit int) ([]store.AuditEntry, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	return s.store.ListAuditEntries(ctx, profileID, limit)
}
