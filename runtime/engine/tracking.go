package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/BDNK1/ivrflow/runtime"
)

type trackKind int

const (
	trackStart trackKind = iota
	trackOutboundAnswered
	trackAccount
	trackBalance
	trackFinish
)

type trackEvent struct {
	kind       trackKind
	channelID  string
	outboundID string
	account    string
	balance    any
	currency   string
	summary    runtime.CallSummary
	status     runtime.OutboundStatus
}

const trackQueueSize = 32

// callTracking reports one call to the call-record store. Events are handled
// in order by a dedicated worker so the call never waits on the store; the
// worker exits after the finish event.
type callTracking struct {
	l       *slog.Logger
	tracker runtime.CallTracker
	timeout time.Duration
	events  chan trackEvent

	// Owned by the call goroutine
	outboundID  string
	lastAccount string
	lastBalance string
}

func (i *Interpreter) startTracking(l *slog.Logger, exec *runtime.Execution) *callTracking {
	if i.tracker == nil {
		return nil
	}

	t := &callTracking{
		l:       l,
		tracker: i.tracker,
		timeout: i.opts.TrackingTimeout,
		events:  make(chan trackEvent, trackQueueSize),
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		t.work()
	}()

	t.send(trackEvent{kind: trackStart, channelID: exec.Channel.ID()})
	return t
}

func (t *callTracking) outbound(id, channelID string) {
	if t == nil {
		return
	}
	t.outboundID = id
	now := time.Now()
	t.send(trackEvent{
		kind:       trackOutboundAnswered,
		outboundID: id,
		status: runtime.OutboundStatus{
			Status:     "answered",
			ChannelID:  channelID,
			AnswerTime: &now,
		},
	})
}

// observe reports the tracked variables once they become defined or change.
func (t *callTracking) observe(exec *runtime.Execution) {
	if t == nil {
		return
	}
	settings := exec.Settings.Tracking

	if settings.Account != "" {
		if v, ok := exec.Store.Get(settings.Account); ok {
			if s := runtime.Stringify(v); s != "" && s != t.lastAccount {
				t.lastAccount = s
				t.send(trackEvent{kind: trackAccount, account: s})
			}
		}
	}

	if settings.Balance != "" {
		if v, ok := exec.Store.Get(settings.Balance); ok {
			if s := runtime.Stringify(v); s != "" && s != t.lastBalance {
				t.lastBalance = s
				var currency string
				if settings.Currency != "" {
					c, _ := exec.Store.Get(settings.Currency)
					currency = runtime.Stringify(c)
				}
				t.send(trackEvent{kind: trackBalance, balance: v, currency: currency})
			}
		}
	}
}

func (t *callTracking) finish(exec *runtime.Execution) {
	if t == nil {
		return
	}
	ev := trackEvent{
		kind:       trackFinish,
		summary:    exec.Summary(),
		outboundID: t.outboundID,
	}
	if t.outboundID != "" {
		end := exec.EndedAt
		ev.status = runtime.OutboundStatus{
			Status:      "completed",
			EndTime:     &end,
			Duration:    int(exec.EndedAt.Sub(exec.StartedAt).Round(time.Second) / time.Second),
			Result:      exec.Captured(),
			DTMFInputs:  exec.DTMFLog,
			HangupCause: string(exec.Outcome),
		}
	}
	// The finish event ends the worker, so it is never dropped.
	t.events <- ev
}

func (t *callTracking) send(ev trackEvent) {
	select {
	case t.events <- ev:
	default:
		t.l.Warn("Call tracking queue full, dropping event", "kind", ev.kind)
	}
}

func (t *callTracking) work() {
	var callID string
	for ev := range t.events {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)

		switch ev.kind {
		case trackStart:
			id, err := t.tracker.Start(ctx, ev.channelID)
			if err != nil {
				t.l.Error("Call tracking start failed", "error", err)
			} else {
				callID = id
				t.l.Info("Call tracking started", "call_id", callID)
			}

		case trackOutboundAnswered:
			if err := t.tracker.OutboundStatus(ctx, ev.outboundID, ev.status); err != nil {
				t.l.Error("Outbound status update failed", "outbound_id", ev.outboundID, "error", err)
			}

		case trackAccount:
			if callID == "" {
				break
			}
			if err := t.tracker.Account(ctx, callID, ev.account); err != nil {
				t.l.Error("Call tracking account update failed", "call_id", callID, "error", err)
			}

		case trackBalance:
			if callID == "" {
				break
			}
			if err := t.tracker.Balance(ctx, callID, ev.balance, ev.currency); err != nil {
				t.l.Error("Call tracking balance update failed", "call_id", callID, "error", err)
			}

		case trackFinish:
			if callID != "" {
				if err := t.tracker.End(ctx, callID, ev.summary.Status); err != nil {
					t.l.Error("Call tracking end failed", "call_id", callID, "error", err)
				}
			}
			ev.summary.CallID = callID
			if err := t.tracker.CallLog(ctx, ev.summary); err != nil {
				t.l.Error("Call log failed", "error", err)
			}
			if ev.outboundID != "" {
				if err := t.tracker.OutboundStatus(ctx, ev.outboundID, ev.status); err != nil {
					t.l.Error("Outbound status update failed", "outbound_id", ev.outboundID, "error", err)
				}
			}
			cancel()
			return
		}

		cancel()
	}
}
