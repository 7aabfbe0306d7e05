package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/BDNK1/ivrflow/runtime"
)

const (
	notFoundDelay   = 300 * time.Millisecond
	notFoundTimeout = 3 * time.Second
)

// Dispatcher resolves the flow for an incoming call and runs it.
type Dispatcher struct {
	l              *slog.Logger
	source         runtime.FlowSource
	interpreter    *Interpreter
	notFoundPrompt string
	active         atomic.Int64
}

func NewDispatcher(l *slog.Logger, source runtime.FlowSource, interpreter *Interpreter, notFoundPrompt string) *Dispatcher {
	return &Dispatcher{
		l:              l,
		source:         source,
		interpreter:    interpreter,
		notFoundPrompt: notFoundPrompt,
	}
}

// HandleCall runs the flow serving extension on ch. It blocks until the call
// ended and always leaves the channel hung up.
func (d *Dispatcher) HandleCall(ctx context.Context, ch runtime.Channel, extension string, vars map[string]any) runtime.Outcome {
	d.active.Add(1)
	defer d.active.Add(-1)

	l := d.l.With("channel_id", ch.ID(), "extension", extension)

	flow, err := d.source.FlowFor(ctx, extension)
	if err != nil {
		if errors.Is(err, runtime.ErrFlowNotFound) {
			l.WarnContext(ctx, "No flow for extension")
		} else {
			l.ErrorContext(ctx, "Flow lookup failed", "error", err)
		}
		d.rejectCall(ctx, l, ch)
		return runtime.OutcomeError
	}

	l.InfoContext(ctx, "Dispatching call", "flow", flow.ID, "caller_id", ch.CallerID())
	outcome := d.interpreter.Run(ctx, flow, ch, vars)

	select {
	case <-ch.Done():
	default:
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notFoundTimeout)
		defer cancel()
		if err := ch.Hangup(hctx); err != nil && !runtime.IsChannelGone(err) {
			l.WarnContext(ctx, "Hangup after flow failed", "error", err)
		}
	}
	return outcome
}

// Active counts calls currently being handled.
func (d *Dispatcher) Active() int64 {
	return d.active.Load()
}

// Wait blocks until every call-tracking worker finished.
func (d *Dispatcher) Wait() {
	d.interpreter.Wait()
}

func (d *Dispatcher) rejectCall(ctx context.Context, l *slog.Logger, ch runtime.Channel) {
	ctx, cancel := context.WithTimeout(ctx, notFoundDelay+2*notFoundTimeout)
	defer cancel()

	if err := ch.Answer(ctx); err != nil {
		if runtime.IsChannelGone(err) {
			return
		}
		l.WarnContext(ctx, "Answer failed", "error", err)
	}
	if err := sleep(ctx, notFoundDelay); err != nil {
		return
	}

	if d.notFoundPrompt != "" {
		pctx, pcancel := context.WithTimeout(ctx, notFoundTimeout)
		err := ch.Play(pctx, "sound:"+d.notFoundPrompt)
		pcancel()
		if runtime.IsChannelGone(err) {
			return
		}
	}

	if err := ch.Hangup(ctx); err != nil && !runtime.IsChannelGone(err) {
		l.WarnContext(ctx, "Hangup failed", "error", err)
	}
}
