package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/andredfaria/daily/internal/audit"
	"github.com/andredfaria/daily/internal/config"
	"github.com/andredfaria/daily/internal/identity"
	"github.com/andredfaria/daily/internal/notify"
	"github.com/andredfaria/daily/internal/policy"
	"github.com/andredfaria/daily/internal/store"
	"github.com/andredfaria/daily/internal/waha"
)

// Session is the caller as resolved for one request. It is rebuilt from
// the bearer token and the stored profile every time; nothing is cached.
type Session struct {
	Token    string
	Identity identity.Identity
	Profile  *store.Profile
}

// Caller maps the session onto the authorization policy's view of it.
func (s Session) Caller() *policy.Caller {
	caller := &policy.Caller{IdentityID: s.Identity.ID}
	if s.Profile != nil {
		caller.ProfileID = s.Profile.ID
		caller.HasProfile = true
		caller.IsAdmin = s.Profile.IsAdmin
	}
	return caller
}

type dataStore interface {
	Ping(context.Context) error
	GetProfile(context.Context, int64) (store.Profile, error)
	GetProfileByIdentity(context.Context, string) (store.Profile, error)
	ListProfiles(context.Context) ([]store.Profile, error)
	LinkedIdentityIDs(context.Context) (map[string]int64, error)
	CreateProfile(context.Context, store.ProfileFields) (store.Profile, error)
	UpdateProfile(context.Context, int64, store.ProfileFields) (store.Profile, error)
	DeleteProfile(context.Context, int64) error
	SetProfileIdentity(context.Context, int64, *string) (store.Profile, error)
	SetProfileAdmin(context.Context, int64, bool) (store.Profile, error)
	EnsureProfileForIdentity(context.Context, string, store.ProfileFields) (store.Profile, error)
	ListActivities(context.Context, int64) ([]store.Activity, error)
	ListAuditEntries(context.Context, int64, int) ([]store.AuditEntry, error)
}

type profileFetcher interface {
	FetchProfile(ctx context.Context, rawPhone string) waha.Profile
}

type creationNotifier interface {
	ProfileCreated(ctx context.Context, event notify.ProfileCreated)
}

type Service struct {
	cfg        config.Config
	store      dataStore
	identities identity.Provider
	phones     waha.PhoneValidator
	profiles   profileFetcher
	audit      *audit.Recorder
	notifier   creationNotifier
	logger     *zap.Logger
	now        func() time.Time
}

type Deps struct {
	Store      *store.PostgresStore
	Identities identity.Provider
	Gateway    *waha.Gateway
	Audit      *audit.Recorder
	Notifier   *notify.Webhook
	Logger     *zap.Logger
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		store:      deps.Store,
		identities: deps.Identities,
		phones:     deps.Gateway,
		profiles:   deps.Gateway,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		logger:     logger.Named("service"),
		now:        time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SessionFromToken validates token with the identity provider and loads
// the profile linked to that identity, if any.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, errUnauthenticated()
	}
	ident, err := s.identities.UserFromToken(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) || errors.Is(err, identity.ErrNotFound) {
			return Session{}, errUnauthenticated()
		}
		return Session{}, s.upstream("session lookup failed", err)
	}

	session := Session{Token: token, Identity: ident}
	profile, err := s.store.GetProfileByIdentity(ctx, ident.ID)
	switch {
	case err == nil:
		session.Profile = &profile
	case errors.Is(err, store.ErrNotFound):
	default:
		return Session{}, err
	}
	return session, nil
}

func (s *Service) requireAdmin(session Session) error {
	if !policy.RequireAdmin(session.Caller()) {
		return errForbidden()
	}
	return nil
}

// upstream logs the underlying cause and returns the client-safe error.
func (s *Service) upstream(message string, err error) *DomainError {
	s.logger.Warn(message, zap.Error(err))
	return errUpstream(message)
}

func (s *Service) record(ctx context.Context, session Session, profileID int64, action audit.Action, identityID *string, detail map[string]any) {
	s.audit.Record(ctx, audit.Record{
		ActorID:    session.Identity.ID,
		ActorEmail: session.Identity.Email,
		ProfileID:  profileID,
		Action:     action,
		IdentityID: identityID,
		Detail:     detail,
		At:         s.now().UTC(),
	})
}
