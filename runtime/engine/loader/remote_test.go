package loader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BDNK1/ivrflow/runtime"
)

func newPlatform(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := gin.New()
	g.GET("/api/engine/flow/:extension", func(c *gin.Context) {
		hits.Add(1)
		switch c.Param("extension") {
		case "2001":
			c.Data(http.StatusOK, "application/json", []byte(envelopeJSON))
		case "5000":
			c.JSON(http.StatusInternalServerError, gin.H{"message": "boom"})
		default:
			c.JSON(http.StatusNotFound, gin.H{"message": "IVR flow not found"})
		}
	})
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return srv
}

func newRemote(url string, ttl time.Duration) *RemoteLoader {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRemoteLoader(l, runtime.FlowsConfig{PlatformURL: url, CacheTTL: ttl, Timeout: time.Second}, "ar")
}

func TestRemoteLoader_FetchAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := newPlatform(t, &hits)
	r := newRemote(srv.URL, time.Minute)

	for range 3 {
		flow, err := r.FlowFor(context.Background(), "2001")
		if err != nil {
			t.Fatalf("FlowFor error: %v", err)
		}
		if flow.ID != "balance-ivr" || flow.Language != "ar" {
			t.Errorf("flow = %s/%s", flow.ID, flow.Language)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("platform hit %d times, want 1", hits.Load())
	}

	r.Invalidate("2001")
	if _, err := r.FlowFor(context.Background(), "2001"); err != nil {
		t.Fatalf("FlowFor error: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("platform hit %d times after invalidate, want 2", hits.Load())
	}
}

func TestRemoteLoader_ZeroTTLDisablesCache(t *testing.T) {
	var hits atomic.Int32
	srv := newPlatform(t, &hits)
	r := newRemote(srv.URL, 0)

	for range 2 {
		if _, err := r.FlowFor(context.Background(), "2001"); err != nil {
			t.Fatalf("FlowFor error: %v", err)
		}
	}
	if hits.Load() != 2 {
		t.Errorf("platform hit %d times, want 2", hits.Load())
	}
}

func TestRemoteLoader_Errors(t *testing.T) {
	var hits atomic.Int32
	srv := newPlatform(t, &hits)
	r := newRemote(srv.URL, time.Minute)

	_, err := r.FlowFor(context.Background(), "4040")
	if !errors.Is(err, runtime.ErrFlowNotFound) {
		t.Errorf("404 error = %v, want ErrFlowNotFound", err)
	}

	_, err = r.FlowFor(context.Background(), "5000")
	if err == nil || errors.Is(err, runtime.ErrFlowNotFound) {
		t.Errorf("500 error = %v", err)
	}
}

func TestApp_FallsBackToRemote(t *testing.T) {
	var hits atomic.Int32
	srv := newPlatform(t, &hits)

	app := runtime.NewApp()
	app.SetFallback(newRemote(srv.URL, time.Minute))

	flow, err := app.FlowFor(context.Background(), "2001")
	if err != nil || flow.ID != "balance-ivr" {
		t.Fatalf("FlowFor = %v, %v", flow, err)
	}
}
