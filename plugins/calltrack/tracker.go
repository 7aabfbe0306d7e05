// Package calltrack reports call lifecycle events to the call-record store
// and the platform API.
package calltrack

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/ivrflow/runtime"
)

var _ runtime.CallTracker = &Tracker{}

// Config holds the tracker configuration with declarative tags
type Config struct {
	// RecordsURL serves the per-call record endpoints (/api/call/...).
	RecordsURL string `yaml:"records_url" validate:"required,url_format"`
	// PlatformURL serves the call log and outbound call endpoints.
	PlatformURL string        `yaml:"platform_url" validate:"required,url_format"`
	Timeout     time.Duration `yaml:"timeout" default:"5s" validate:"gte=100ms"`
}

// Tracker implements runtime.CallTracker over HTTP.
type Tracker struct {
	Config   Config
	records  *resty.Client
	platform *resty.Client
}

func New(raw map[string]any) (*Tracker, error) {
	t := &Tracker{}
	if err := runtime.InitializeConfig(&t.Config, raw); err != nil {
		return nil, fmt.Errorf("call tracker config: %w", err)
	}
	t.records = newClient(t.Config.RecordsURL, t.Config.Timeout)
	t.platform = newClient(t.Config.PlatformURL, t.Config.Timeout)
	return t, nil
}

func newClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
}

type startResponse struct {
	CallID any `json:"callId"`
}

func (t *Tracker) Start(ctx context.Context, channelID string) (string, error) {
	var res startResponse
	resp, err := t.records.R().
		SetContext(ctx).
		SetBody(map[string]any{"channelId": channelID}).
		SetResult(&res).
		Post("/api/call/start")
	if err := check(resp, err); err != nil {
		return "", fmt.Errorf("start call record: %w", err)
	}

	callID := runtime.Stringify(res.CallID)
	if callID == "" {
		return "", fmt.Errorf("start call record: response without callId")
	}
	return callID, nil
}

func (t *Tracker) Account(ctx context.Context, callID, accountNumber string) error {
	return t.patch(ctx, callID, "account", map[string]any{"accountNumber": accountNumber})
}

func (t *Tracker) Balance(ctx context.Context, callID string, balance any, currency string) error {
	return t.patch(ctx, callID, "balance", map[string]any{"balance": balance, "currency": currency})
}

func (t *Tracker) End(ctx context.Context, callID, status string) error {
	return t.patch(ctx, callID, "end", map[string]any{"status": status})
}

func (t *Tracker) CallLog(ctx context.Context, summary runtime.CallSummary) error {
	resp, err := t.platform.R().
		SetContext(ctx).
		SetBody(summary).
		Post("/api/engine/call-log")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("call log: %w", err)
	}
	return nil
}

func (t *Tracker) OutboundStatus(ctx context.Context, outboundID string, status runtime.OutboundStatus) error {
	resp, err := t.platform.R().
		SetContext(ctx).
		SetPathParam("id", outboundID).
		SetBody(status).
		Put("/api/engine/outbound-call/{id}")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("outbound call %s: %w", outboundID, err)
	}
	return nil
}

func (t *Tracker) patch(ctx context.Context, callID, field string, body map[string]any) error {
	resp, err := t.records.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"id": callID, "field": field}).
		SetBody(body).
		Patch("/api/call/{id}/{field}")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("update call %s %s: %w", callID, field, err)
	}
	return nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return runtime.NewActionError(fmt.Errorf("unexpected response %s", resp.Status()), resp.StatusCode())
	}
	return nil
}
