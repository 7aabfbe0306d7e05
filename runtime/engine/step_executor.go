package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BDNK1/ivrflow/runtime"
	"github.com/BDNK1/ivrflow/runtime/engine/media"
	"github.com/BDNK1/ivrflow/runtime/engine/resolver"
)

const (
	DefaultResultVariable  = "api_result"
	DefaultTransferContext = "transfer"
	DefaultAPITimeout      = 10 * time.Second
)

// StepExecutor dispatches node execution based on the node's Type field.
type StepExecutor struct {
	evaluator runtime.ExpressionEvaluator
	invoker   runtime.ActionInvoker
	l         *slog.Logger
	opts      Options
}

func NewStepExecutor(evaluator runtime.ExpressionEvaluator, invoker runtime.ActionInvoker, l *slog.Logger, opts Options) *StepExecutor {
	return &StepExecutor{
		evaluator: evaluator,
		invoker:   invoker,
		l:         l,
		opts:      opts.withDefaults(),
	}
}

func (e *StepExecutor) ExecuteNode(ctx context.Context, execution *runtime.Execution, node *runtime.Node) (string, error) {
	player := media.NewPlayer(e.l, media.LocaleFor(execution.Flow.Language), e.opts.PromptTimeout, e.opts.UnitTimeout)

	switch node.Type {
	case runtime.NodePlay:
		return e.handlePlay(ctx, execution, player, node)
	case runtime.NodePlayDigits:
		return e.handlePlayDigits(ctx, execution, player, node)
	case runtime.NodePlaySequence:
		return e.handlePlaySequence(ctx, execution, player, node)
	case runtime.NodeCollect:
		return e.handleCollect(ctx, execution, player, node)
	case runtime.NodeBranch:
		return e.handleBranch(execution, node), nil
	case runtime.NodeAPICall:
		return e.handleAPICall(ctx, execution, node)
	case runtime.NodeSetVariable:
		return e.handleSetVariable(execution, node)
	case runtime.NodeTransfer:
		return e.handleTransfer(ctx, execution, node)
	case runtime.NodeHangup:
		return e.handleHangup(ctx, execution, node)
	default:
		e.l.WarnContext(ctx, "Unknown node type", "node", node.ID, "type", node.Type)
		return node.Next, nil
	}
}

func (e *StepExecutor) handlePlay(ctx context.Context, execution *runtime.Execution, player *media.Player, node *runtime.Node) (string, error) {
	if err := player.PlayPrompt(ctx, execution.Channel, node.Prompt); err != nil {
		return "", err
	}

	if node.MaxRetries > 0 && !execution.Flow.IsHangup(node.Next) {
		execution.Retries[node.ID]++
		if count := execution.Retries[node.ID]; count >= node.MaxRetries {
			target := node.OnMaxRetries
			if target == "" {
				target = runtime.HangupTarget
			}
			e.l.InfoContext(ctx, "Max retries reached", "node", node.ID, "count", count, "target", target)
			return target, nil
		}
	}
	return node.Next, nil
}

func (e *StepExecutor) handlePlayDigits(ctx context.Context, execution *runtime.Execution, player *media.Player, node *runtime.Node) (string, error) {
	if err := player.PlayPrompt(ctx, execution.Channel, node.Prompt); err != nil {
		return "", err
	}
	if err := player.PlayPrompt(ctx, execution.Channel, node.Prefix); err != nil {
		return "", err
	}

	value, _ := execution.Store.Get(node.Variable)
	if err := player.SayDigits(ctx, execution.Channel, runtime.Stringify(value)); err != nil {
		return "", err
	}

	if err := player.PlayPrompt(ctx, execution.Channel, node.Suffix); err != nil {
		return "", err
	}
	return node.Next, nil
}

func (e *StepExecutor) handlePlaySequence(ctx context.Context, execution *runtime.Execution, player *media.Player, node *runtime.Node) (string, error) {
	for _, item := range node.Sequence {
		var err error
		switch item.Type {
		case runtime.SequencePrompt:
			err = player.PlayPrompt(ctx, execution.Channel, item.Value)
		case runtime.SequenceNumber:
			value, ok := execution.Store.Get(item.Variable)
			if !ok {
				e.l.WarnContext(ctx, "Number variable undefined, skipping", "node", node.ID, "variable", item.Variable)
				continue
			}
			err = player.SayNumber(ctx, execution.Channel, value)
		case runtime.SequenceDigits:
			value, _ := execution.Store.Get(item.Variable)
			err = player.SayDigits(ctx, execution.Channel, runtime.Stringify(value))
		default:
			e.l.WarnContext(ctx, "Unknown sequence item", "node", node.ID, "type", item.Type)
		}
		if err != nil {
			return "", err
		}
	}
	return node.Next, nil
}

func (e *StepExecutor) handleCollect(ctx context.Context, execution *runtime.Execution, player *media.Player, node *runtime.Node) (string, error) {
	if err := player.PlayPrompt(ctx, execution.Channel, node.Prompt); err != nil {
		return "", err
	}

	terminators := node.Terminators
	if terminators == "" {
		terminators = media.DefaultTerminators
	}
	digits, err := media.Collect(ctx, execution.Channel, media.CollectOptions{
		MaxDigits:   node.MaxDigits,
		Timeout:     time.Duration(node.Timeout * float64(time.Second)),
		Terminators: terminators,
		ValidDigits: node.ValidDigits,
	})
	if err != nil {
		if runtime.IsChannelGone(err) || ctx.Err() != nil {
			return "", err
		}
		e.l.WarnContext(ctx, "Collect error", "node", node.ID, "error", err)
		if node.OnTimeout != "" {
			return node.OnTimeout, nil
		}
		return node.Next, nil
	}

	e.l.InfoContext(ctx, "Digits collected", "node", node.ID, "digits", digits)

	if digits == "" {
		if node.OnEmpty != "" {
			return node.OnEmpty, nil
		}
		if node.OnTimeout != "" {
			return node.OnTimeout, nil
		}
	}

	execution.Store.Set(runtime.VarDTMFInput, digits)
	switch {
	case node.Variable != "":
		execution.Store.Set(node.Variable, digits)
	case strings.Contains(node.ID, "account"):
		execution.Store.Set(runtime.VarAccountNumber, digits)
	}
	execution.LogDTMF(node.ID, digits)

	return node.Next, nil
}

func (e *StepExecutor) handleBranch(execution *runtime.Execution, node *runtime.Node) string {
	var (
		key     string
		defined bool
	)
	switch {
	case node.Condition != "":
		result := e.evaluator.Eval(execution, node.Condition)
		key, defined = runtime.Stringify(result), result != nil
	case node.Variable != "":
		var value any
		value, defined = execution.Store.Get(node.Variable)
		key = runtime.Stringify(value)
	}

	target := node.Default
	if defined {
		if t, ok := node.Branches[key]; ok && t != "" {
			target = t
		}
	}

	e.l.InfoContext(execution, "Branch decision", "node", node.ID, "value", key, "defined", defined, "next", target)
	return target
}

func (e *StepExecutor) handleAPICall(ctx context.Context, execution *runtime.Execution, node *runtime.Node) (string, error) {
	method := strings.ToUpper(node.Method)
	if method == "" {
		method = "GET"
	}
	resultVar := node.ResultVariable
	if resultVar == "" {
		resultVar = DefaultResultVariable
	}

	timeout := e.opts.APITimeout
	if node.Timeout > 0 {
		timeout = time.Duration(node.Timeout * float64(time.Second))
	}

	action := runtime.Action{
		NodeID:  node.ID,
		Method:  method,
		URL:     resolver.Interpolate(node.URL, execution.Store),
		Timeout: timeout,
	}
	if len(node.Headers) > 0 {
		headers := resolver.InterpolateDeep(node.Headers, execution.Store).(map[string]any)
		action.Headers = runtime.ToStringValueMap(headers)
	}
	if node.Body != nil {
		action.Body = resolver.InterpolateDeep(node.Body, execution.Store)
	}

	e.l.InfoContext(ctx, "API call", "node", node.ID, "method", method, "url", action.URL)

	entry := map[string]any{"url": action.URL, "method": method}

	var (
		result runtime.ActionResult
		err    error
	)
	if e.invoker == nil {
		err = errors.New("no action invoker configured")
	} else {
		result, err = e.invoker.Invoke(ctx, action)
	}

	if err != nil {
		if execution.ChannelGone() || ctx.Err() != nil {
			return "", context.Cause(ctx)
		}
		entry["error"] = err.Error()
		var actionErr *runtime.ActionError
		if errors.As(err, &actionErr) && actionErr.Status != 0 {
			entry["status"] = actionErr.Status
		}
		execution.LogAPI(node.ID, entry)
		execution.Store.Set(runtime.VarLastError, runtime.NewFlowError(node.ID, err).ToMap())

		e.l.WarnContext(ctx, "API error", "node", node.ID, "url", action.URL, "error", err)
		if node.OnError != "" {
			return node.OnError, nil
		}
		return node.Next, nil
	}

	entry["status"] = result.Status
	entry["duration_ms"] = result.Duration.Milliseconds()
	execution.LogAPI(node.ID, entry)
	execution.Store.SetNested(resultVar, result.Payload)

	return node.Next, nil
}

func (e *StepExecutor) handleSetVariable(execution *runtime.Execution, node *runtime.Node) (string, error) {
	if node.Variable == "" {
		return "", invalidNode(node, "set_variable node without variable")
	}

	var value any
	if node.Expression != "" {
		value = e.evaluator.Eval(execution, node.Expression)
	} else {
		value = resolver.InterpolateDeep(node.Value, execution.Store)
	}
	execution.Store.Set(node.Variable, value)

	e.l.InfoContext(execution, "Set variable", "node", node.ID, "variable", node.Variable, "value", value)
	return node.Next, nil
}

func (e *StepExecutor) handleTransfer(ctx context.Context, execution *runtime.Execution, node *runtime.Node) (string, error) {
	destination := resolver.Interpolate(node.Destination, execution.Store)
	if destination == "" {
		return "", invalidNode(node, "transfer node without destination")
	}
	dialplanContext := node.Context
	if dialplanContext == "" {
		dialplanContext = DefaultTransferContext
	}

	e.l.InfoContext(ctx, "Transfer", "node", node.ID, "destination", destination, "context", dialplanContext)

	err := execution.Channel.Redirect(ctx, runtime.Redirect{
		Context:   dialplanContext,
		Extension: destination,
		Priority:  1,
	})
	if err != nil {
		return "", &runtime.ChannelError{Op: "redirect", Err: err}
	}

	execution.Outcome = runtime.OutcomeTransferred
	return "", nil
}

func (e *StepExecutor) handleHangup(ctx context.Context, execution *runtime.Execution, node *runtime.Node) (string, error) {
	if err := execution.Channel.Hangup(ctx); err != nil && !runtime.IsChannelGone(err) {
		e.l.WarnContext(ctx, "Hangup failed", "node", node.ID, "error", err)
	}

	execution.Outcome = runtime.OutcomeCompleted
	if node.Status != "" {
		execution.Outcome = runtime.Outcome(node.Status)
	}
	return "", nil
}

func invalidNode(node *runtime.Node, msg string) error {
	return &runtime.FlowError{
		Type:    runtime.ErrorTypeValidation,
		Code:    string(runtime.ErrorCodeInvalidNode),
		Message: fmt.Sprintf("%s: %s", node.ID, msg),
		Node:    node.ID,
	}
}
