package ari

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BDNK1/ivrflow/runtime"
)

var _ runtime.Channel = &channel{}

const digitBuffer = 32

// channel is a live Asterisk channel inside a Stasis application. Events for
// it are routed in by the plugin's read loop.
type channel struct {
	id       string
	callerID string
	client   *client

	mu        sync.Mutex
	digitSubs map[int]chan string
	nextSub   int
	playbacks map[string]chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func newChannel(id, callerID string, c *client) *channel {
	return &channel{
		id:        id,
		callerID:  callerID,
		client:    c,
		digitSubs: make(map[int]chan string),
		playbacks: make(map[string]chan struct{}),
		done:      make(chan struct{}),
	}
}

func (c *channel) ID() string       { return c.id }
func (c *channel) CallerID() string { return c.callerID }

func (c *channel) Done() <-chan struct{} {
	return c.done
}

func (c *channel) Answer(ctx context.Context) error {
	if c.isGone() {
		return &runtime.ChannelError{Op: "answer", Err: runtime.ErrChannelGone}
	}
	return c.client.answer(ctx, c.id)
}

// Play starts a playback and waits for its PlaybackFinished event.
func (c *channel) Play(ctx context.Context, media string) error {
	if c.isGone() {
		return &runtime.ChannelError{Op: "play", Err: runtime.ErrChannelGone}
	}

	playbackID := uuid.NewString()
	finished := make(chan struct{})
	c.mu.Lock()
	c.playbacks[playbackID] = finished
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.playbacks, playbackID)
		c.mu.Unlock()
	}()

	if err := c.client.play(ctx, c.id, playbackID, media); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-c.done:
		return &runtime.ChannelError{Op: "play", Err: runtime.ErrChannelGone}
	case <-ctx.Done():
		// Keep the caller from hearing a prompt the flow moved past
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = c.client.stopPlayback(stopCtx, playbackID)
		return context.Cause(ctx)
	}
}

// Digits subscribes to DTMF events until ctx ends or the channel is gone.
func (c *channel) Digits(ctx context.Context) (<-chan string, error) {
	if c.isGone() {
		return nil, &runtime.ChannelError{Op: "digits", Err: runtime.ErrChannelGone}
	}

	out := make(chan string, digitBuffer)
	c.mu.Lock()
	sub := c.nextSub
	c.nextSub++
	c.digitSubs[sub] = out
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		}
		c.mu.Lock()
		delete(c.digitSubs, sub)
		close(out)
		c.mu.Unlock()
	}()
	return out, nil
}

func (c *channel) Hangup(ctx context.Context) error {
	if c.isGone() {
		return &runtime.ChannelError{Op: "hangup", Err: runtime.ErrChannelGone}
	}
	err := c.client.hangup(ctx, c.id)
	if err == nil || runtime.IsChannelGone(err) {
		c.gone()
	}
	return err
}

func (c *channel) Variable(ctx context.Context, name string) (string, error) {
	return c.client.variable(ctx, c.id, name)
}

// Redirect sends the channel back to the dialplan. The channel leaves the
// application, so it is gone for the engine afterwards.
func (c *channel) Redirect(ctx context.Context, target runtime.Redirect) error {
	if c.isGone() {
		return &runtime.ChannelError{Op: "redirect", Err: runtime.ErrChannelGone}
	}
	if err := c.client.continueInDialplan(ctx, c.id, target); err != nil {
		return err
	}
	c.gone()
	return nil
}

func (c *channel) dtmf(digit string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.digitSubs {
		select {
		case sub <- digit:
		default:
		}
	}
}

func (c *channel) playbackFinished(playbackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if finished, ok := c.playbacks[playbackID]; ok {
		close(finished)
		delete(c.playbacks, playbackID)
	}
}

func (c *channel) gone() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *channel) isGone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
