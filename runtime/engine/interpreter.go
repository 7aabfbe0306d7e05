package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BDNK1/ivrflow/runtime"
	"github.com/BDNK1/ivrflow/runtime/engine/media"
	"github.com/BDNK1/ivrflow/runtime/engine/resolver"
)

// VarOutboundCallID is the channel variable set by the dialer on calls it
// originated.
const VarOutboundCallID = "OUTBOUND_CALL_ID"

// Options tunes the interpreter. Zero values take the defaults.
type Options struct {
	// MaxSteps bounds node transitions per call. It is a runaway guard,
	// not a flow-authoring limit.
	MaxSteps        int
	AnswerDelay     time.Duration
	PromptTimeout   time.Duration
	UnitTimeout     time.Duration
	APITimeout      time.Duration
	TrackingTimeout time.Duration
}

const DefaultMaxSteps = 2000

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.PromptTimeout <= 0 {
		o.PromptTimeout = media.DefaultPromptTimeout
	}
	if o.UnitTimeout <= 0 {
		o.UnitTimeout = media.DefaultUnitTimeout
	}
	if o.APITimeout <= 0 {
		o.APITimeout = DefaultAPITimeout
	}
	if o.TrackingTimeout <= 0 {
		o.TrackingTimeout = 5 * time.Second
	}
	return o
}

// OptionsFromConfig maps the engine section of the process config.
func OptionsFromConfig(cfg runtime.EngineConfig) Options {
	return Options{
		MaxSteps:      cfg.MaxSteps,
		AnswerDelay:   cfg.AnswerDelay,
		PromptTimeout: cfg.PromptTimeout,
		UnitTimeout:   cfg.UnitTimeout,
	}
}

// Interpreter walks a flow graph for one call at a time per goroutine. It
// holds no per-call state and may run many calls concurrently.
type Interpreter struct {
	l        *slog.Logger
	executor runtime.NodeExecutor
	tracker  runtime.CallTracker
	opts     Options
	wg       sync.WaitGroup
}

func NewInterpreter(l *slog.Logger, executor runtime.NodeExecutor, tracker runtime.CallTracker, opts Options) *Interpreter {
	return &Interpreter{
		l:        l,
		executor: executor,
		tracker:  tracker,
		opts:     opts.withDefaults(),
	}
}

// Run executes flow on channel and returns the terminal outcome.
func (i *Interpreter) Run(ctx context.Context, flow *runtime.Flow, channel runtime.Channel, vars map[string]any) runtime.Outcome {
	exec, err := i.Execute(ctx, flow, channel, vars)
	if err != nil {
		i.l.ErrorContext(ctx, "Flow execution could not start", "flow", flow.ID, "error", err)
		return runtime.OutcomeError
	}
	return exec.Outcome
}

// Execute executes flow on channel and returns the finished call state.
// The error is only set when the call could not be set up.
func (i *Interpreter) Execute(ctx context.Context, flow *runtime.Flow, channel runtime.Channel, vars map[string]any) (*runtime.Execution, error) {
	exec, err := runtime.NewExecution(ctx, flow, channel, resolver.NewValueStore(), vars)
	if err != nil {
		return nil, err
	}

	l := i.l.With(
		"execution_id", exec.ID,
		"channel_id", channel.ID(),
		"flow", flow.ID,
		"extension", flow.Extension,
	)
	callCtx, span := startCallSpan(exec, exec)

	if _, ok := flow.Node(flow.StartNode); !ok {
		l.WarnContext(callCtx, "Start node not found, hanging up", "start_node", flow.StartNode)
		exec.Finish(runtime.OutcomeHangup)
		endCallSpan(callCtx, span, exec)
		return exec, nil
	}

	l.InfoContext(callCtx, "Starting flow execution", "start_node", flow.StartNode)

	track := i.startTracking(l, exec)
	i.run(callCtx, l, exec, track)
	exec.Finish(runtime.OutcomeHangup)
	track.finish(exec)

	l.InfoContext(callCtx, "Flow execution finished",
		"outcome", exec.Outcome,
		"steps", len(exec.History))
	endCallSpan(callCtx, span, exec)
	return exec, nil
}

// Wait blocks until all call-tracking workers drained their events.
func (i *Interpreter) Wait() {
	i.wg.Wait()
}

func (i *Interpreter) run(ctx context.Context, l *slog.Logger, exec *runtime.Execution, track *callTracking) {
	if err := i.answer(ctx, l, exec, track); err != nil {
		l.InfoContext(ctx, "Channel gone before flow start", "error", err)
		exec.Outcome = runtime.OutcomeAbandoned
		return
	}

	current := exec.Flow.StartNode
	for step := 0; ; step++ {
		if exec.ChannelGone() || ctx.Err() != nil {
			l.InfoContext(ctx, "Call ended, stopping flow", "node", current, "cause", context.Cause(ctx))
			exec.Outcome = runtime.OutcomeAbandoned
			return
		}

		node, ok := exec.Flow.Node(current)
		if !ok {
			if current == "" || current == runtime.HangupTarget {
				l.InfoContext(ctx, "Flow reached hangup", "from", exec.CurrentNode)
				exec.Outcome = runtime.OutcomeCompleted
			} else {
				l.WarnContext(ctx, "Node not found, hanging up", "node", current)
				exec.Outcome = runtime.OutcomeHangup
			}
			i.hangup(ctx, l, exec)
			return
		}

		if step >= i.opts.MaxSteps {
			fe := &runtime.FlowError{
				Type:    runtime.ErrorTypeNode,
				Code:    string(runtime.ErrorCodeStepLimit),
				Message: fmt.Sprintf("step limit of %d node transitions exceeded", i.opts.MaxSteps),
				Node:    current,
			}
			l.ErrorContext(ctx, "Step limit exceeded", "node", current, "error", fe)
			exec.Store.Set(runtime.VarLastError, fe.ToMap())
			i.fail(ctx, l, exec)
			return
		}

		exec.Visit(current)
		l.InfoContext(ctx, "Executing node", "node", current, "type", node.Type)

		next, err := i.executeNode(ctx, exec, node)
		track.observe(exec)

		if exec.Outcome != "" {
			return
		}

		if err != nil {
			if runtime.IsChannelGone(err) || exec.ChannelGone() || ctx.Err() != nil {
				l.InfoContext(ctx, "Call ended during node", "node", current, "error", err)
				exec.Outcome = runtime.OutcomeAbandoned
				return
			}

			fe := runtime.NewFlowError(current, err)
			l.ErrorContext(ctx, "Node execution failed", "node", current, "error", fe)
			exec.Store.Set(runtime.VarLastError, fe.ToMap())

			if node.OnError != "" {
				current = node.OnError
				continue
			}
			i.fail(ctx, l, exec)
			return
		}

		current = next
	}
}

// executeNode runs one handler. A panicking handler fails only its node.
func (i *Interpreter) executeNode(ctx context.Context, exec *runtime.Execution, node *runtime.Node) (next string, err error) {
	nodeCtx, span := startNodeSpan(ctx, node)
	defer func() {
		if r := recover(); r != nil {
			next = ""
			err = &runtime.FlowError{
				Type:    runtime.ErrorTypeNode,
				Code:    string(runtime.ErrorCodePanic),
				Message: fmt.Sprintf("node handler panicked: %v", r),
				Node:    node.ID,
			}
		}
		endNodeSpan(nodeCtx, span, node, next, err)
	}()

	return i.executor.ExecuteNode(nodeCtx, exec, node)
}

func (i *Interpreter) answer(ctx context.Context, l *slog.Logger, exec *runtime.Execution, track *callTracking) error {
	if err := exec.Channel.Answer(ctx); err != nil {
		if runtime.IsChannelGone(err) {
			return err
		}
		l.WarnContext(ctx, "Answer failed, continuing", "error", err)
	}

	if track != nil {
		if id, err := exec.Channel.Variable(ctx, VarOutboundCallID); err == nil && id != "" {
			exec.Store.Set("outbound_call_id", id)
			track.outbound(id, exec.Channel.ID())
		}
	}

	delay := exec.Settings.AnswerDelay
	if delay <= 0 {
		delay = i.opts.AnswerDelay
	}
	return sleep(ctx, delay)
}

// fail ends the call after an unrecovered error, apologising to the caller
// when the channel is still there.
func (i *Interpreter) fail(ctx context.Context, l *slog.Logger, exec *runtime.Execution) {
	exec.Outcome = runtime.OutcomeError
	if exec.ChannelGone() {
		return
	}

	player := media.NewPlayer(l, media.LocaleFor(exec.Flow.Language), i.opts.PromptTimeout, i.opts.UnitTimeout)
	for _, prompt := range []string{exec.Settings.ErrorPrompt, exec.Settings.GoodbyePrompt} {
		if err := player.PlayPrompt(ctx, exec.Channel, prompt); err != nil {
			return
		}
	}
	i.hangup(ctx, l, exec)
}

func (i *Interpreter) hangup(ctx context.Context, l *slog.Logger, exec *runtime.Execution) {
	if exec.ChannelGone() {
		return
	}
	hctx, cancel := context.WithTimeout(ctx, i.opts.PromptTimeout)
	defer cancel()

	if err := exec.Channel.Hangup(hctx); err != nil && !runtime.IsChannelGone(err) {
		l.WarnContext(ctx, "Hangup failed", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
