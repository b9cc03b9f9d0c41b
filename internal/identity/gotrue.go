package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andredfaria/daily/internal/observability"
)

// GoTrueConfig points at a hosted auth service (Supabase style /auth/v1).
type GoTrueConfig struct {
	BaseURL    string
	AnonKey    string
	ServiceKey string
	Timeout    time.Duration
}

// GoTrue talks to the hosted auth REST API. End-user calls use the anon
// key; admin calls use the service-role key, which never leaves the server.
type GoTrue struct {
	http       *resty.Client
	anonKey    string
	serviceKey string
	logger     *zap.Logger
}

const listPageSize = 1000

func NewGoTrue(cfg GoTrueConfig, logger *zap.Logger) *GoTrue {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/auth/v1").
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &GoTrue{
		http:       client,
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		logger:     logger.Named("gotrue"),
	}
}

type gotrueError struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorText        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e gotrueError) code() string {
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	if s, ok := e.Code.(string); ok {
		return s
	}
	return e.ErrorText
}

func (e gotrueError) text() string {
	for _, candidate := range []string{e.Msg, e.Message, e.ErrorDescription, e.ErrorText} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	ExpiresIn   int      `json:"expires_in"`
	ExpiresAt   int64    `json:"expires_at"`
	User        Identity `json:"user"`
}

type listUsersResponse struct {
	Users []Identity `json:"users"`
}

func (g *GoTrue) anon(ctx context.Context) *resty.Request {
	return g.http.R().SetContext(ctx).SetHeader("apikey", g.anonKey)
}

func (g *GoTrue) admin(ctx context.Context) *resty.Request {
	return g.http.R().SetContext(ctx).
		SetHeader("apikey", g.serviceKey).
		SetAuthToken(g.serviceKey)
}

const adminUserPath = "/admin/users/{id}"

// adminUser scopes an admin request to one user. Hosted identities are
// UUIDs; anything else is reported as not found without a request.
func (g *GoTrue) adminUser(ctx context.Context, id string) (*resty.Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return g.admin(ctx).SetPathParam("id", id), nil
}

// do executes req and converts failures into the package sentinels. The
// upstream body is logged, never returned.
func (g *GoTrue) do(req *resty.Request, method, path string) (*resty.Response, error) {
	var apiErr gotrueError
	req.SetError(&apiErr)

	started := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		observability.RecordUpstreamCall("identity", 0, err, time.Since(started))
		g.logger.Warn("identity request failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	observability.RecordUpstreamCall("identity", resp.StatusCode(), nil, time.Since(started))
	if !resp.IsError() {
		return resp, nil
	}

	code := strings.ToLower(apiErr.code())
	text := strings.ToLower(apiErr.text())
	switch {
	case code == "email_exists" || code == "user_already_exists" ||
		strings.Contains(text, "already been registered") || strings.Contains(text, "already registered"):
		return resp, ErrEmailTaken
	case code == "weak_password" || strings.Contains(text, "weak") || strings.Contains(text, "password should"):
		return resp, ErrWeakPassword
	case code == "invalid_credentials" || code == "invalid_grant":
		return resp, ErrInvalidCredentials
	case code == "user_not_found" || resp.StatusCode() == http.StatusNotFound:
		return resp, ErrNotFound
	case code == "bad_jwt" || resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return resp, ErrInvalidToken
	}

	g.logger.Warn("identity request rejected",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.String("code", code),
		zap.String("body", resp.String()),
	)
	return resp, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
}

func (g *GoTrue) UserFromToken(ctx context.Context, accessToken string) (Identity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return Identity{}, ErrInvalidToken
	}
	var user Identity
	_, err := g.do(g.anon(ctx).SetAuthToken(accessToken).SetResult(&user), http.MethodGet, "/user")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, err
	}
	if user.ID == "" {
		return Identity{}, ErrInvalidToken
	}
	return user, nil
}

func (g *GoTrue) SignIn(ctx context.Context, email, password string) (Tokens, error) {
	var out tokenResponse
	req := g.anon(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": strings.TrimSpace(email), "password": password}).
		SetResult(&out)
	if _, err := g.do(req, http.MethodPost, "/token"); err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrNotFound) {
			return Tokens{}, ErrInvalidCredentials
		}
		return Tokens{}, err
	}
	expiresAt := time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	if out.ExpiresAt > 0 {
		expiresAt = time.Unix(out.ExpiresAt, 0)
	}
	return Tokens{AccessToken: out.AccessToken, ExpiresAt: expiresAt, Identity: out.User}, nil
}

func (g *GoTrue) SignUp(ctx context.Context, req SignUpRequest) (Identity, error) {
	body := map[string]any{
		"email":    strings.TrimSpace(req.Email),
		"password": req.Password,
	}
	if len(req.Metadata) > 0 {
		body["data"] = req.Metadata
	}

	// Depending on confirmation settings the signup response is either the
	// user or a session wrapping it.
	var out struct {
		Identity
		User *Identity `json:"user"`
	}
	if _, err := g.do(g.anon(ctx).SetBody(body).SetResult(&out), http.MethodPost, "/signup"); err != nil {
		return Identity{}, err
	}
	if out.User != nil && out.User.ID != "" {
		return *out.User, nil
	}
	return out.Identity, nil
}

func (g *GoTrue) SignOut(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return nil
	}
	_, err := g.do(g.anon(ctx).SetAuthToken(accessToken), http.MethodPost, "/logout")
	if errors.Is(err, ErrInvalidToken) {
		return nil
	}
	return err
}

func (g *GoTrue) GetUser(ctx context.Context, id string) (Identity, error) {
	req, err := g.adminUser(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	var user Identity
	if _, err := g.do(req.SetResult(&user), http.MethodGet, adminUserPath); err != nil {
		return Identity{}, err
	}
	if !strings.EqualFold(user.ID, id) {
		return Identity{}, ErrNotFound
	}
	return user, nil
}

func (g *GoTrue) ListUsers(ctx context.Context) ([]Identity, error) {
	users := make([]Identity, 0)
	for page := 1; ; page++ {
		var out listUsersResponse
		req := g.admin(ctx).
			SetQueryParam("page", strconv.Itoa(page)).
			SetQueryParam("per_page", strconv.Itoa(listPageSize)).
			SetResult(&out)
		if _, err := g.do(req, http.MethodGet, "/admin/users"); err != nil {
			return nil, err
		}
		users = append(users, out.Users...)
		if len(out.Users) < listPageSize {
			return users, nil
		}
	}
}

func (g *GoTrue) UpdateEmail(ctx context.Context, id, email string) error {
	req, err := g.adminUser(ctx, id)
	if err != nil {
		return err
	}
	body := map[string]any{"email": strings.TrimSpace(email), "email_confirm": true}
	_, err = g.do(req.SetBody(body), http.MethodPut, adminUserPath)
	return err
}

func (g *GoTrue) UpdatePassword(ctx context.Context, id, password string) error {
	req, err := g.adminUser(ctx, id)
	if err != nil {
		return err
	}
	_, err = g.do(req.SetBody(map[string]any{"password": password}), http.MethodPut, adminUserPath)
	return err
}
