package loader

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/BDNK1/ivrflow/runtime"
)

var _ runtime.FlowSource = &RemoteLoader{}

// RemoteLoader fetches flows by extension from the platform API and caches
// them for ttl. A zero ttl disables the cache.
type RemoteLoader struct {
	l               *slog.Logger
	client          *resty.Client
	cache           *gocache.Cache
	ttl             time.Duration
	defaultLanguage string
}

func NewRemoteLoader(l *slog.Logger, cfg runtime.FlowsConfig, defaultLanguage string) *RemoteLoader {
	client := resty.New().
		SetBaseURL(cfg.PlatformURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &RemoteLoader{
		l:               l,
		client:          client,
		cache:           gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		ttl:             cfg.CacheTTL,
		defaultLanguage: defaultLanguage,
	}
}

func (r *RemoteLoader) FlowFor(ctx context.Context, extension string) (*runtime.Flow, error) {
	if cached, found := r.cache.Get(extension); found {
		return cached.(*runtime.Flow), nil
	}

	start := time.Now()
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("extension", extension).
		Get("/api/engine/flow/{extension}")
	if err != nil {
		return nil, fmt.Errorf("fetch flow for %s: %w", extension, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("extension %s: %w", extension, runtime.ErrFlowNotFound)
	case resp.IsError():
		return nil, fmt.Errorf("fetch flow for %s: platform returned %s", extension, resp.Status())
	}

	flow, err := ParseJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("flow for %s: %w", extension, err)
	}
	if flow.Extension == "" {
		flow.Extension = extension
	}
	if err := Prepare(flow, r.defaultLanguage); err != nil {
		return nil, err
	}

	r.l.InfoContext(ctx, "Loaded flow from platform",
		"extension", extension,
		"flow", flow.ID,
		"nodes", len(flow.Nodes),
		"duration", time.Since(start))

	if r.ttl > 0 {
		r.cache.Set(extension, flow, r.ttl)
	}
	return flow, nil
}

// Invalidate drops the cached flow of extension.
func (r *RemoteLoader) Invalidate(extension string) {
	r.cache.Delete(extension)
}
