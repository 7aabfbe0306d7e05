package ari

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/BDNK1/ivrflow/runtime"
)

// fakeAsterisk serves the ARI resources the engine uses and pushes events
// written to its events channel over the websocket.
type fakeAsterisk struct {
	mu       sync.Mutex
	requests []string
	query    map[string]string
	events   chan Event
	srv      *httptest.Server
}

func newFakeAsterisk(t *testing.T) *fakeAsterisk {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a := &fakeAsterisk{events: make(chan Event, 16), query: make(map[string]string)}
	upgrader := websocket.Upgrader{}

	g := gin.New()
	g.GET("/ari/events", func(c *gin.Context) {
		if c.Query("api_key") != "asterisk:secret" {
			c.Status(http.StatusUnauthorized)
			return
		}
		a.mu.Lock()
		a.query["app"] = c.Query("app")
		a.mu.Unlock()

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for ev := range a.events {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	})

	ari := g.Group("/ari", func(c *gin.Context) {
		if user, pass, ok := c.Request.BasicAuth(); !ok || user != "asterisk" || pass != "secret" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		a.mu.Lock()
		a.requests = append(a.requests, c.Request.Method+" "+c.Request.URL.Path)
		a.mu.Unlock()
	})
	ari.POST("/channels/:id/answer", a.channelOp(http.StatusNoContent))
	ari.DELETE("/channels/:id", a.channelOp(http.StatusNoContent))
	ari.POST("/channels/:id/continue", func(c *gin.Context) {
		a.mu.Lock()
		a.query["continue"] = c.Query("context") + "," + c.Query("extension") + "," + c.Query("priority")
		a.mu.Unlock()
		c.Status(http.StatusNoContent)
	})
	ari.POST("/channels/:id/play/:playback", func(c *gin.Context) {
		if c.Param("id") == "gone" {
			c.JSON(http.StatusNotFound, gin.H{"message": "Channel not found"})
			return
		}
		a.mu.Lock()
		a.query["media"] = c.Query("media")
		a.mu.Unlock()
		c.JSON(http.StatusCreated, gin.H{"id": c.Param("playback")})
		a.events <- Event{
			Type:     EventPlaybackFinished,
			Playback: &Playback{ID: c.Param("playback"), TargetURI: "channel:" + c.Param("id"), State: "done"},
		}
	})
	ari.GET("/channels/:id/variable", func(c *gin.Context) {
		if c.Query("variable") == "OUTBOUND_CALL_ID" && c.Param("id") == "out-1" {
			c.JSON(http.StatusOK, gin.H{"value": "ob-7"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"message": "Provided variable was not found"})
	})

	a.srv = httptest.NewServer(g)
	t.Cleanup(func() {
		a.srv.Close()
		close(a.events)
	})
	return a
}

func (a *fakeAsterisk) channelOp(status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param("id") == "gone" {
			c.JSON(http.StatusNotFound, gin.H{"message": "Channel not found"})
			return
		}
		c.Status(status)
	}
}

func (a *fakeAsterisk) config() map[string]any {
	return map[string]any{
		"url":             a.srv.URL,
		"username":        "asterisk",
		"password":        "secret",
		"connect_timeout": "2s",
	}
}

type call struct {
	channelID string
	callerID  string
	extension string
	vars      map[string]any
}

// scriptedHandler collects a digit, plays a prompt and hangs up.
type scriptedHandler struct {
	calls chan call
	digit chan string
}

func (h *scriptedHandler) HandleCall(ctx context.Context, ch runtime.Channel, extension string, vars map[string]any) runtime.Outcome {
	h.calls <- call{ch.ID(), ch.CallerID(), extension, vars}

	if err := ch.Answer(ctx); err != nil {
		return runtime.OutcomeError
	}
	digits, err := ch.Digits(ctx)
	if err != nil {
		return runtime.OutcomeError
	}
	select {
	case d := <-digits:
		h.digit <- d
	case <-ch.Done():
		return runtime.OutcomeAbandoned
	case <-time.After(2 * time.Second):
		return runtime.OutcomeError
	}
	if err := ch.Play(ctx, "sound:ar/goodbye"); err != nil {
		return runtime.OutcomeError
	}
	if err := ch.Hangup(ctx); err != nil {
		return runtime.OutcomeError
	}
	return runtime.OutcomeCompleted
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPlugin(t *testing.T, a *fakeAsterisk, h CallHandler) *Plugin {
	t.Helper()
	p, err := New(testLogger(), h, a.config())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestNew_DefaultApps(t *testing.T) {
	p, err := New(testLogger(), nil, map[string]any{"url": "http://asterisk:8088", "username": "asterisk"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if app, ok := p.Config.app("balance-ivr"); !ok || app.Extension != "6000" || app.FlowExtension != "2001" {
		t.Errorf("balance-ivr app = %+v", app)
	}
	if p.Config.RequestTimeout != 5*time.Second {
		t.Errorf("request timeout = %v", p.Config.RequestTimeout)
	}

	u, err := p.eventsURL()
	if err != nil {
		t.Fatalf("eventsURL error: %v", err)
	}
	want := "ws://asterisk:8088/ari/events?api_key=asterisk%3A&app=ivr-engine%2Cbalance-ivr"
	if u != want {
		t.Errorf("eventsURL = %s, want %s", u, want)
	}

	if _, err := New(testLogger(), nil, map[string]any{"url": "asterisk"}); err == nil {
		t.Error("expected validation error")
	}
}

func TestPlugin_CallOverEventStream(t *testing.T) {
	a := newFakeAsterisk(t)
	h := &scriptedHandler{calls: make(chan call, 1), digit: make(chan string, 1)}
	p := startPlugin(t, a, h)

	a.events <- Event{
		Type:        EventStasisStart,
		Application: "ivr-engine",
		Args:        []string{"2001"},
		Channel:     &Channel{ID: "c1", Caller: CallerID{Number: "0555"}},
	}

	var got call
	select {
	case got = <-h.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("call not dispatched")
	}
	if got.channelID != "c1" || got.callerID != "0555" || got.extension != "2001" || got.vars != nil {
		t.Errorf("call = %+v", got)
	}

	a.events <- Event{Type: EventChannelDtmfReceived, Digit: "5", Channel: &Channel{ID: "c1"}}
	select {
	case d := <-h.digit:
		if d != "5" {
			t.Errorf("digit = %s", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("digit not delivered")
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.ActiveChannels() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if p.ActiveChannels() != 0 {
		t.Fatal("call did not finish")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.query["app"] != "ivr-engine,balance-ivr" {
		t.Errorf("subscribed apps = %s", a.query["app"])
	}
	if a.query["media"] != "sound:ar/goodbye" {
		t.Errorf("played media = %s", a.query["media"])
	}
	if last := a.requests[len(a.requests)-1]; last != "DELETE /ari/channels/c1" {
		t.Errorf("last request = %s", last)
	}
}

func TestPlugin_FixedExtensionApp(t *testing.T) {
	a := newFakeAsterisk(t)
	h := &scriptedHandler{calls: make(chan call, 1), digit: make(chan string, 1)}
	startPlugin(t, a, h)

	a.events <- Event{
		Type:        EventStasisStart,
		Application: "balance-ivr",
		Channel:     &Channel{ID: "c2", Caller: CallerID{Number: "0555"}},
	}

	select {
	case got := <-h.calls:
		if got.extension != "2001" || got.vars[runtime.VarExtension] != "6000" {
			t.Errorf("call = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call not dispatched")
	}
	a.events <- Event{Type: EventStasisEnd, Channel: &Channel{ID: "c2"}}
}

func TestPlugin_RejectsBadCredentials(t *testing.T) {
	a := newFakeAsterisk(t)
	cfg := a.config()
	cfg["password"] = "wrong"

	p, err := New(testLogger(), nil, cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	start := time.Now()
	if err := p.Initialize(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if time.Since(start) > time.Second {
		t.Error("rejected credentials were retried")
	}
}

func TestChannel_Operations(t *testing.T) {
	a := newFakeAsterisk(t)
	cfg := Config{URL: a.srv.URL, Username: "asterisk", Password: "secret", RequestTimeout: time.Second}
	c := newClient(cfg)
	ctx := context.Background()

	ch := newChannel("out-1", "0555", c)
	if err := ch.Answer(ctx); err != nil {
		t.Fatalf("Answer error: %v", err)
	}
	if v, err := ch.Variable(ctx, "OUTBOUND_CALL_ID"); err != nil || v != "ob-7" {
		t.Errorf("Variable = %q, %v", v, err)
	}
	if _, err := ch.Variable(ctx, "MISSING"); err == nil {
		t.Error("expected error for unset variable")
	}
	if err := ch.Redirect(ctx, runtime.Redirect{Context: "transfer", Extension: "7001", Priority: 1}); err != nil {
		t.Fatalf("Redirect error: %v", err)
	}
	a.mu.Lock()
	if a.query["continue"] != "transfer,7001,1" {
		t.Errorf("continue = %s", a.query["continue"])
	}
	a.mu.Unlock()
	select {
	case <-ch.Done():
	default:
		t.Error("channel not gone after redirect")
	}
	if err := ch.Answer(ctx); !runtime.IsChannelGone(err) {
		t.Errorf("operation after redirect = %v, want channel gone", err)
	}
}

func TestChannel_NotFoundIsGone(t *testing.T) {
	a := newFakeAsterisk(t)
	c := newClient(Config{URL: a.srv.URL, Username: "asterisk", Password: "secret", RequestTimeout: time.Second})
	ch := newChannel("gone", "", c)

	if err := ch.Answer(context.Background()); !runtime.IsChannelGone(err) {
		t.Errorf("Answer = %v, want channel gone", err)
	}
	if err := ch.Play(context.Background(), "sound:ar/welcome"); !runtime.IsChannelGone(err) {
		t.Errorf("Play = %v, want channel gone", err)
	}
}

func TestChannel_PlayWaitsForFinished(t *testing.T) {
	a := newFakeAsterisk(t)
	c := newClient(Config{URL: a.srv.URL, Username: "asterisk", Password: "secret", RequestTimeout: time.Second})
	ch := newChannel("c9", "", c)

	// Nobody routes the PlaybackFinished event, so only the context ends the wait
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := ch.Play(ctx, "sound:ar/welcome"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Play = %v, want deadline exceeded", err)
	}

	done := make(chan error, 1)
	go func() { done <- ch.Play(context.Background(), "sound:ar/welcome") }()
	time.Sleep(20 * time.Millisecond)
	ch.gone()
	select {
	case err := <-done:
		if !runtime.IsChannelGone(err) {
			t.Errorf("Play = %v, want channel gone", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not return after hangup")
	}
}

func TestChannel_DigitsSubscription(t *testing.T) {
	ch := newChannel("c1", "", nil)
	ctx, cancel := context.WithCancel(context.Background())

	digits, err := ch.Digits(ctx)
	if err != nil {
		t.Fatalf("Digits error: %v", err)
	}
	ch.dtmf("1")
	ch.dtmf("#")
	if d := <-digits; d != "1" {
		t.Errorf("first digit = %s", d)
	}
	if d := <-digits; d != "#" {
		t.Errorf("second digit = %s", d)
	}

	cancel()
	if _, ok := <-digits; ok {
		t.Error("stream not closed after cancel")
	}
	ch.dtmf("2")
}
