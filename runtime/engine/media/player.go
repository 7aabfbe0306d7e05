package media

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BDNK1/ivrflow/runtime"
)

const (
	DefaultPromptTimeout = 10 * time.Second
	DefaultUnitTimeout   = 5 * time.Second
)

// Player plays prompts, digit strings and localized numbers on a channel.
// Every playback carries a safety timeout so a lost completion event cannot
// stall the call. Only a vanished channel or a cancelled call is reported as
// an error; other playback failures are logged and skipped.
type Player struct {
	l             *slog.Logger
	locale        Locale
	promptTimeout time.Duration
	unitTimeout   time.Duration
}

func NewPlayer(l *slog.Logger, locale Locale, promptTimeout, unitTimeout time.Duration) *Player {
	if promptTimeout <= 0 {
		promptTimeout = DefaultPromptTimeout
	}
	if unitTimeout <= 0 {
		unitTimeout = DefaultUnitTimeout
	}
	return &Player{
		l:             l,
		locale:        locale,
		promptTimeout: promptTimeout,
		unitTimeout:   unitTimeout,
	}
}

func (p *Player) Locale() Locale {
	return p.locale
}

func (p *Player) PlayPrompt(ctx context.Context, ch runtime.Channel, name string) error {
	if name == "" {
		return nil
	}
	return p.play(ctx, ch, p.locale.Prompt(name), p.promptTimeout)
}

// SayDigits announces value digit by digit, skipping non-digit characters.
func (p *Player) SayDigits(ctx context.Context, ch runtime.Channel, value string) error {
	for _, d := range DigitsOf(value) {
		if err := p.play(ctx, ch, p.locale.Digit(d), p.unitTimeout); err != nil {
			return err
		}
	}
	return nil
}

// SayNumber announces the integer part of value using the locale's number
// grammar. Unparsable or negative values are logged and skipped.
func (p *Player) SayNumber(ctx context.Context, ch runtime.Channel, value any) error {
	units, ok := Units(value)
	if !ok {
		p.l.WarnContext(ctx, "Invalid number, skipping", "value", value)
		return nil
	}
	p.l.DebugContext(ctx, "Saying number", "value", value, "units", units)

	for _, u := range units {
		if err := p.play(ctx, ch, p.locale.Number(u), p.unitTimeout); err != nil {
			return err
		}
	}
	return nil
}

func (p *Player) play(ctx context.Context, ch runtime.Channel, media string, timeout time.Duration) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	playCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := ch.Play(playCtx, media)
	switch {
	case err == nil:
		return nil
	case runtime.IsChannelGone(err):
		return err
	case ctx.Err() != nil:
		return context.Cause(ctx)
	case errors.Is(err, context.DeadlineExceeded):
		p.l.WarnContext(ctx, "Playback safety timeout reached", "media", media, "timeout", timeout)
		return nil
	default:
		p.l.WarnContext(ctx, "Playback failed, continuing", "media", media, "error", err)
		return nil
	}
}
