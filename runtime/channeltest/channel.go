// Package channeltest provides a scripted runtime.Channel for tests and
// simulations.
package channeltest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BDNK1/ivrflow/runtime"
)

var _ runtime.Channel = &Channel{}

// Channel plays back a caller script. Each Digits subscription consumes the
// next digit batch and delivers it one digit at a time; digits of a batch
// that nobody reads are dropped. Once the script is exhausted the caller is
// silent.
type Channel struct {
	// HangupAfterPlays makes the caller hang up once that many plays finished.
	HangupAfterPlays int
	// DigitDelay is the pause before each scripted digit.
	DigitDelay time.Duration
	// StallPlays makes Play block until its context ends, like a lost
	// PlaybackFinished event.
	StallPlays bool
	// PlayErrors fails plays of the given media refs with the given error.
	PlayErrors map[string]error
	// RedirectErr fails every redirect.
	RedirectErr error

	mu        sync.Mutex
	id        string
	callerID  string
	batches   []string
	vars      map[string]string
	ops       []string
	plays     int
	delivered int
	done      chan struct{}
	closeOnce sync.Once
}

func New(id, callerID string, digits ...string) *Channel {
	return &Channel{
		id:       id,
		callerID: callerID,
		batches:  digits,
		vars:     make(map[string]string),
		done:     make(chan struct{}),
	}
}

// SetVariable sets a channel variable readable through Variable.
func (c *Channel) SetVariable(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[name] = value
}

func (c *Channel) ID() string       { return c.id }
func (c *Channel) CallerID() string { return c.callerID }

func (c *Channel) Answer(ctx context.Context) error {
	if err := c.check("answer"); err != nil {
		return err
	}
	c.record("answer")
	return nil
}

func (c *Channel) Play(ctx context.Context, media string) error {
	if err := c.check("play"); err != nil {
		return err
	}
	c.record("play:" + media)

	if err, ok := c.PlayErrors[media]; ok {
		return err
	}
	if c.StallPlays {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return &runtime.ChannelError{Op: "play", Err: runtime.ErrChannelGone}
		}
	}

	c.mu.Lock()
	c.plays++
	hangup := c.HangupAfterPlays > 0 && c.plays >= c.HangupAfterPlays
	c.mu.Unlock()
	if hangup {
		c.Gone()
	}
	return nil
}

func (c *Channel) Digits(ctx context.Context) (<-chan string, error) {
	if err := c.check("digits"); err != nil {
		return nil, err
	}
	c.record("digits")

	c.mu.Lock()
	var batch string
	if len(c.batches) > 0 {
		batch = c.batches[0]
		c.batches = c.batches[1:]
	}
	c.mu.Unlock()

	out := make(chan string)
	go func() {
		defer close(out)
		for _, r := range batch {
			if c.DigitDelay > 0 {
				select {
				case <-time.After(c.DigitDelay):
				case <-ctx.Done():
					return
				case <-c.done:
					return
				}
			}
			select {
			case out <- string(r):
				c.mu.Lock()
				c.delivered++
				c.mu.Unlock()
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		}
		select {
		case <-ctx.Done():
		case <-c.done:
		}
	}()
	return out, nil
}

func (c *Channel) Hangup(ctx context.Context) error {
	if err := c.check("hangup"); err != nil {
		return err
	}
	c.record("hangup")
	c.Gone()
	return nil
}

func (c *Channel) Variable(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[name]
	if !ok {
		return "", fmt.Errorf("variable %s not set", name)
	}
	return v, nil
}

func (c *Channel) Redirect(ctx context.Context, target runtime.Redirect) error {
	if err := c.check("redirect"); err != nil {
		return err
	}
	if c.RedirectErr != nil {
		return c.RedirectErr
	}
	c.record(fmt.Sprintf("redirect:%s,%s,%d", target.Context, target.Extension, target.Priority))
	c.Gone()
	return nil
}

func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Gone simulates the caller hanging up.
func (c *Channel) Gone() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Ops lists the operations performed on the channel in order.
func (c *Channel) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

// Played lists the media refs passed to Play in order.
func (c *Channel) Played() []string {
	var out []string
	for _, op := range c.Ops() {
		if media, ok := strings.CutPrefix(op, "play:"); ok {
			out = append(out, media)
		}
	}
	return out
}

// Delivered counts the scripted digits actually received by a reader.
func (c *Channel) Delivered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivered
}

func (c *Channel) check(op string) error {
	select {
	case <-c.done:
		return &runtime.ChannelError{Op: op, Err: runtime.ErrChannelGone}
	default:
		return nil
	}
}

func (c *Channel) record(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, op)
}
