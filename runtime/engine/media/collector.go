package media

import (
	"context"
	"strings"
	"time"

	"github.com/BDNK1/ivrflow/runtime"
)

const (
	DefaultMaxDigits   = 10
	DefaultTimeout     = 10 * time.Second
	DefaultTerminators = "#"
)

// CollectOptions configures one digit collection. Zero values take the
// defaults, except Terminators which is used as given.
type CollectOptions struct {
	MaxDigits   int
	Timeout     time.Duration
	Terminators string
	// ValidDigits restricts accepted digits; others are ignored.
	ValidDigits string
}

func (o CollectOptions) withDefaults() CollectOptions {
	if o.MaxDigits <= 0 {
		o.MaxDigits = DefaultMaxDigits
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Collect gathers DTMF digits from ch until a terminator arrives, MaxDigits
// digits were collected, or no digit arrived for Timeout. Every accepted digit
// restarts the inactivity timer; there is no overall cap. Terminators are not
// part of the result. A timeout is not an error: whatever was collected,
// possibly nothing, is returned.
//
// The digit subscription is released before Collect returns, so later digits
// are never observed by this invocation.
func Collect(ctx context.Context, ch runtime.Channel, opts CollectOptions) (string, error) {
	opts = opts.withDefaults()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := ch.Digits(subCtx)
	if err != nil {
		return "", &runtime.ChannelError{Op: "digits", Err: err}
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	var digits strings.Builder
	for {
		select {
		case <-ctx.Done():
			return digits.String(), context.Cause(ctx)

		case <-timer.C:
			return digits.String(), nil

		case d, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return digits.String(), context.Cause(ctx)
				}
				return digits.String(), runtime.ErrChannelGone
			}
			if d == "" {
				continue
			}
			if strings.Contains(opts.Terminators, d) {
				return digits.String(), nil
			}
			if opts.ValidDigits != "" && !strings.Contains(opts.ValidDigits, d) {
				continue
			}

			digits.WriteString(d)
			if digits.Len() >= opts.MaxDigits {
				return digits.String(), nil
			}
			timer.Reset(opts.Timeout)
		}
	}
}
