package waha

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ValidatePhonePath is the same-origin endpoint the proxy calls.
const ValidatePhonePath = "/api/waha/validate-phone"

// ProxyValidator validates through this service's own HTTP endpoint
// instead of holding gateway credentials. It forwards the caller's bearer
// token, so it is meant for tools and other processes that hold a session
// but not the gateway key.
type ProxyValidator struct {
	http   *resty.Client
	token  string
	logger *zap.Logger
}

func NewProxyValidator(baseURL, bearerToken string, timeout time.Duration, logger *zap.Logger) *ProxyValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout)
	return &ProxyValidator{http: client, token: bearerToken, logger: logger.Named("waha-proxy")}
}

func (p *ProxyValidator) Validate(ctx context.Context, rawPhone string) Result {
	phone := strings.TrimSpace(rawPhone)
	if phone == "" {
		return Result{Error: MsgPhoneRequired}
	}

	var out Result
	req := p.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"phone": phone}).
		SetResult(&out)
	if p.token != "" {
		req.SetAuthToken(p.token)
	}
	resp, err := req.Post(ValidatePhonePath)
	if err != nil {
		p.logger.Warn("validation endpoint unreachable", zap.Error(err))
		return Result{Error: withRegionalHint(MsgGatewayDown, phone)}
	}
	if resp.IsError() {
		p.logger.Warn("validation endpoint rejected request",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return Result{Error: withRegionalHint(MsgGatewayDown, phone)}
	}
	return out
}
