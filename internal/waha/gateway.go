// Package waha talks to a WAHA (WhatsApp HTTP API) gateway: it checks that
// a phone number has a WhatsApp account and reads its public profile.
package waha

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/andredfaria/daily/internal/observability"
)

// Result is the outcome of a phone validation. IsValid means the gateway
// gave a definitive answer; Exists carries that answer.
type Result struct {
	IsValid        bool   `json:"isValid"`
	Exists         bool   `json:"exists"`
	ValidatedPhone string `json:"validatedPhone,omitempty"`
	ChatID         string `json:"chatId,omitempty"`
	Error          string `json:"error,omitempty"`
}

// PhoneValidator is satisfied by both the direct gateway client and the
// same-origin proxy; callers cannot tell them apart.
type PhoneValidator interface {
	Validate(ctx context.Context, rawPhone string) Result
}

type Config struct {
	BaseURL string
	APIKey  string
	Session string
	Timeout time.Duration
}

// Gateway calls the WAHA REST API with the server-held API key.
type Gateway struct {
	http    *resty.Client
	baseURL string
	session string
	logger  *zap.Logger
}

func NewGateway(cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	session := cfg.Session
	if session == "" {
		session = "default"
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-Api-Key", cfg.APIKey)
	}
	return &Gateway{http: client, baseURL: baseURL, session: session, logger: logger.Named("waha")}
}

func (g *Gateway) Configured() bool {
	return g != nil && g.baseURL != ""
}

type checkExistsResponse struct {
	NumberExists bool   `json:"numberExists"`
	ChatID       string `json:"chatId"`
}

// statusError is a non-2xx gateway reply.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway returned status %d", e.status)
}

func (g *Gateway) get(ctx context.Context, path string, query map[string]string, out any) error {
	started := time.Now()
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetQueryParam("session", g.session).
		SetResult(out).
		Get(path)
	if err != nil {
		observability.RecordUpstreamCall("waha", 0, err, time.Since(started))
		return err
	}
	observability.RecordUpstreamCall("waha", resp.StatusCode(), nil, time.Since(started))
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		g.logger.Warn("gateway returned an error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return &statusError{status: resp.StatusCode()}
	}
	return nil
}

func (g *Gateway) checkExists(ctx context.Context, digits string) (checkExistsResponse, error) {
	var out checkExistsResponse
	err := g.get(ctx, "/api/contacts/check-exists", map[string]string{"phone": digits}, &out)
	return out, err
}

// Validate checks rawPhone against the gateway. It never returns an error;
// every failure is folded into Result.Error.
func (g *Gateway) Validate(ctx context.Context, rawPhone string) Result {
	phone := strings.TrimSpace(rawPhone)
	if phone == "" {
		observability.RecordPhoneValidation("rejected")
		return Result{Error: MsgPhoneRequired}
	}
	if !g.Configured() {
		observability.RecordPhoneValidation("rejected")
		return Result{Error: MsgNotConfigured}
	}
	digits := Digits(phone)
	if digits == "" {
		observability.RecordPhoneValidation("rejected")
		return Result{Error: MsgPhoneNoDigits}
	}

	reply, err := g.checkExists(ctx, digits)
	if err != nil {
		observability.RecordPhoneValidation("failed")
		message := MsgGatewayDown
		var se *statusError
		if errors.As(err, &se) {
			message = fmt.Sprintf("could not validate phone: %s.", se.Error())
		} else {
			g.logger.Warn("phone validation request failed", zap.Error(err))
		}
		return Result{Error: withRegionalHint(message, phone)}
	}

	if !reply.NumberExists || reply.ChatID == "" {
		observability.RecordPhoneValidation("not_found")
		return Result{IsValid: true, Error: withRegionalHint(MsgNotFound, phone)}
	}

	observability.RecordPhoneValidation("exists")
	return Result{
		IsValid:        true,
		Exists:         true,
		ValidatedPhone: DisplayPhone(reply.ChatID),
		ChatID:         reply.ChatID,
	}
}
