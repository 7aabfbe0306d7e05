package http

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/ivrflow/runtime"
)

var (
	_ runtime.ActionInvoker = &Invoker{}
	_ runtime.Initializer   = &Invoker{}
	_ runtime.Shutdowner    = &Invoker{}
)

// Config holds the invoker configuration with declarative tags.
// Timeout applies to actions that carry no timeout of their own.
type Config struct {
	Timeout     time.Duration     `yaml:"timeout" default:"10s" validate:"gte=1s"`
	MaxRetries  int               `yaml:"max_retries" default:"0" validate:"gte=0,lte=5"`
	RetryWaitMS int               `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	Debug       bool              `yaml:"debug" default:"false"`
	Headers     map[string]string `yaml:"headers"`
}

// Invoker performs the outbound HTTP calls of api_call nodes.
type Invoker struct {
	Config Config
	client *resty.Client
}

// New creates an invoker from raw plugin values. Defaults are applied and the
// result is validated.
func New(raw map[string]any) (*Invoker, error) {
	inv := &Invoker{}
	if err := runtime.InitializeConfig(&inv.Config, raw); err != nil {
		return nil, fmt.Errorf("http invoker config: %w", err)
	}
	inv.client = inv.newClient()
	return inv, nil
}

func (h *Invoker) Initialize(ctx context.Context) error {
	if h.client == nil {
		h.client = h.newClient()
	}
	return nil
}

func (h *Invoker) newClient() *resty.Client {
	return resty.New().
		SetRetryCount(h.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(h.Config.RetryWaitMS) * time.Millisecond).
		SetHeaders(h.Config.Headers).
		SetDebug(h.Config.Debug)
}

// Invoke executes action. Non-2xx responses and transport failures are
// returned as *runtime.ActionError.
func (h *Invoker) Invoke(ctx context.Context, action runtime.Action) (runtime.ActionResult, error) {
	if h.client == nil {
		return runtime.ActionResult{}, fmt.Errorf("http invoker not initialized")
	}
	timeout := action.Timeout
	if timeout <= 0 {
		timeout = h.Config.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := h.client.R().
		SetContext(ctx).
		SetHeaders(action.Headers)

	if action.Body != nil {
		form, isForm := action.Body.(map[string]any)
		if isForm && isFormEncoded(action.Headers) {
			req.SetFormData(flattenToFormData(form, ""))
		} else {
			req.SetHeader("Content-Type", "application/json").SetBody(action.Body)
		}
	}

	start := time.Now()
	resp, err := req.Execute(action.Method, action.URL)
	if err != nil {
		return runtime.ActionResult{}, runtime.NewActionError(fmt.Errorf("HTTP request failed: %w", err), 0).
			WithRetryHint(true)
	}

	if resp.IsError() {
		return runtime.ActionResult{}, runtime.NewActionError(
			fmt.Errorf("%s %s returned %s", action.Method, action.URL, resp.Status()),
			resp.StatusCode(),
		).WithMetadata("body", string(resp.Body()))
	}

	return runtime.ActionResult{
		Status:   resp.StatusCode(),
		Payload:  parsePayload(resp.Body()),
		Duration: time.Since(start),
	}, nil
}

// Shutdown keeps the client usable for calls still in flight.
func (h *Invoker) Shutdown(ctx context.Context) error {
	return nil
}

// parsePayload decodes a JSON body. Anything else is kept as text.
func parsePayload(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	parsed, err := gabs.ParseJSON(body)
	if err != nil {
		return string(body)
	}
	return parsed.Data()
}

func isFormEncoded(headers map[string]string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") {
			return strings.HasPrefix(strings.ToLower(v), "application/x-www-form-urlencoded")
		}
	}
	return false
}

// flattenToFormData converts a nested map into bracketed form keys:
// metadata[order_id], items[0][price].
func flattenToFormData(data map[string]any, prefix string) map[string]string {
	result := make(map[string]string)

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "[" + k + "]"
		}
		flattenValue(result, key, data[k])
	}
	return result
}

func flattenValue(result map[string]string, key string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for fk, fv := range flattenToFormData(v, key) {
			result[fk] = fv
		}
	case []any:
		for i, item := range v {
			flattenValue(result, fmt.Sprintf("%s[%d]", key, i), item)
		}
	default:
		result[key] = runtime.Stringify(v)
	}
}
