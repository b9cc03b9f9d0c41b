// Package notify tells an external automation about newly created
// profiles so it can schedule their first poll.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/andredfaria/daily/internal/observability"
)

// ProfileCreated is the webhook body. Checklist is the persisted JSON
// array string, not a nested array.
type ProfileCreated struct {
	Title     string `json:"title"`
	Phone     string `json:"phone"`
	Checklist string `json:"checklist"`
	SendTime  string `json:"sendTime"`
}

type Webhook struct {
	http    *resty.Client
	url     string
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewWebhook returns a notifier posting to url. An empty url disables it.
func NewWebhook(url string, timeout time.Duration, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		http:    resty.New().SetTimeout(timeout),
		url:     url,
		timeout: timeout,
		logger:  logger.Named("webhook"),
	}
}

func (w *Webhook) Enabled() bool {
	return w != nil && w.url != ""
}

// ProfileCreated posts event in the background and returns immediately.
// Failures are logged and never reach the caller.
func (w *Webhook) ProfileCreated(ctx context.Context, event ProfileCreated) {
	if !w.Enabled() {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
		defer cancel()
		if err := w.send(sendCtx, event); err != nil {
			w.logger.Warn("profile webhook failed", zap.String("title", event.Title), zap.Error(err))
		}
	}()
}

func (w *Webhook) send(ctx context.Context, event ProfileCreated) error {
	started := time.Now()
	resp, err := w.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		Post(w.url)
	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	observability.RecordUpstreamCall("webhook", status, err, time.Since(started))
	if err != nil {
		return err
	}
	if resp.IsError() {
		w.logger.Debug("webhook response", zap.String("body", resp.String()))
		return &statusError{status: status}
	}
	return nil
}

// Wait blocks until in-flight deliveries finish. Used on shutdown.
func (w *Webhook) Wait() {
	if w == nil {
		return
	}
	w.wg.Wait()
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.status)
}
