package ari

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/BDNK1/ivrflow/runtime"
)

var (
	_ runtime.Initializer = &Plugin{}
	_ runtime.Shutdowner  = &Plugin{}
)

// CallHandler runs a call to completion.
type CallHandler interface {
	HandleCall(ctx context.Context, ch runtime.Channel, extension string, vars map[string]any) runtime.Outcome
}

// Plugin receives calls from Asterisk and hands each one to the handler on
// its own goroutine.
type Plugin struct {
	Config Config

	l       *slog.Logger
	handler CallHandler
	client  *client
	dialer  *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	channels map[string]*channel

	ctx    context.Context
	cancel context.CancelFunc
	loop   sync.WaitGroup
	calls  sync.WaitGroup
}

func New(l *slog.Logger, handler CallHandler, raw map[string]any) (*Plugin, error) {
	p := &Plugin{
		l:        l,
		handler:  handler,
		dialer:   websocket.DefaultDialer,
		channels: make(map[string]*channel),
	}
	if err := runtime.InitializeConfig(&p.Config, raw); err != nil {
		return nil, fmt.Errorf("ari config: %w", err)
	}
	if len(p.Config.Apps) == 0 {
		p.Config.Apps = DefaultApps
	}
	p.client = newClient(p.Config)
	return p, nil
}

// Initialize connects the event stream. Connection attempts are retried with
// exponential backoff for Config.ConnectTimeout.
func (p *Plugin) Initialize(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.Config.ConnectTimeout
	b.MaxInterval = p.Config.MaxReconnectWait

	conn, err := p.connect(ctx, b)
	if err != nil {
		p.cancel()
		return fmt.Errorf("connect to ARI: %w", err)
	}
	p.l.Info("Connected to ARI", "url", p.Config.URL, "apps", p.Config.appNames())

	p.loop.Add(1)
	go func() {
		defer p.loop.Done()
		p.run(conn)
	}()
	return nil
}

// Shutdown stops receiving calls and waits for running calls until ctx ends.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	p.mu.Lock()
	if p.conn != nil {
		p.conn.Close()
	}
	p.mu.Unlock()
	p.loop.Wait()

	done := make(chan struct{})
	go func() {
		p.calls.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("calls still running at shutdown: %w", ctx.Err())
	}
}

// ActiveChannels counts channels currently owned by the engine.
func (p *Plugin) ActiveChannels() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channels)
}

func (p *Plugin) eventsURL() (string, error) {
	u, err := url.Parse(p.Config.URL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ari/events"
	q := url.Values{}
	q.Set("app", strings.Join(p.Config.appNames(), ","))
	q.Set("api_key", p.Config.Username+":"+p.Config.Password)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Plugin) connect(ctx context.Context, b backoff.BackOff) (*websocket.Conn, error) {
	target, err := p.eventsURL()
	if err != nil {
		return nil, err
	}

	var conn *websocket.Conn
	op := func() error {
		c, resp, err := p.dialer.DialContext(ctx, target, nil)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return backoff.Permanent(fmt.Errorf("ARI rejected credentials: %s", resp.Status))
			}
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.l.Warn("ARI connection failed, retrying", "error", err, "retry_in", wait)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	return conn, nil
}

// run reads events until shutdown, reconnecting whenever the stream drops.
func (p *Plugin) run(conn *websocket.Conn) {
	for {
		err := p.read(conn)
		if p.ctx.Err() != nil {
			return
		}
		p.l.Warn("ARI event stream lost, reconnecting", "error", err)

		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 0
		b.MaxInterval = p.Config.MaxReconnectWait

		conn, err = p.connect(p.ctx, b)
		if err != nil {
			return
		}
		p.l.Info("Reconnected to ARI")
	}
}

func (p *Plugin) read(conn *websocket.Conn) error {
	defer conn.Close()
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("event stream closed: %w", err)
			}
			return err
		}
		p.handle(ev)
	}
}

func (p *Plugin) handle(ev Event) {
	if ev.Type == EventStasisStart {
		p.startCall(ev)
		return
	}

	ch := p.channel(ev.channelID())
	if ch == nil {
		return
	}

	switch ev.Type {
	case EventChannelDtmfReceived:
		ch.dtmf(ev.Digit)
	case EventPlaybackFinished:
		if ev.Playback != nil {
			ch.playbackFinished(ev.Playback.ID)
		}
	case EventStasisEnd, EventChannelDestroyed, EventChannelHangup:
		ch.gone()
	}
}

func (p *Plugin) startCall(ev Event) {
	if ev.Channel == nil {
		return
	}
	app, ok := p.Config.app(ev.Application)
	if !ok {
		p.l.Warn("StasisStart for unknown application", "app", ev.Application, "channel_id", ev.Channel.ID)
		return
	}

	extension := app.Extension
	if extension == "" && len(ev.Args) > 0 {
		extension = ev.Args[0]
	}
	ch := newChannel(ev.Channel.ID, ev.Channel.Caller.Number, p.client)

	if extension == "" {
		p.l.Warn("StasisStart without extension, hanging up", "app", app.Name, "channel_id", ch.id)
		go func() {
			ctx, cancel := context.WithTimeout(p.ctx, p.Config.RequestTimeout)
			defer cancel()
			_ = ch.Hangup(ctx)
		}()
		return
	}

	flowExtension := extension
	var vars map[string]any
	if app.FlowExtension != "" && app.FlowExtension != extension {
		flowExtension = app.FlowExtension
		vars = map[string]any{runtime.VarExtension: extension}
	}

	p.mu.Lock()
	p.channels[ch.id] = ch
	p.mu.Unlock()

	p.l.Info("Incoming call",
		"app", app.Name,
		"channel_id", ch.id,
		"caller_id", ch.callerID,
		"extension", extension)

	p.calls.Add(1)
	go func() {
		defer p.calls.Done()
		defer func() {
			p.mu.Lock()
			delete(p.channels, ch.id)
			p.mu.Unlock()
		}()
		p.handler.HandleCall(p.ctx, ch, flowExtension, vars)
	}()
}

func (p *Plugin) channel(id string) *channel {
	if id == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[id]
}
