package runtime

import "context"

// FlowLoader loads flow definitions from files.
type FlowLoader interface {
	Extensions() []string
	Load(filePath string) (Flow, error)
}

// FlowSource resolves the flow that should answer a dialled extension.
type FlowSource interface {
	FlowFor(ctx context.Context, extension string) (*Flow, error)
}

// ExpressionEvaluator evaluates expressions against the variable scope of an
// execution. Evaluation never fails a call: errors are logged by the
// implementation and a nil result is returned.
type ExpressionEvaluator interface {
	Eval(execution *Execution, expression string) any
}

// ValueStore manages the per-call variable scope. Keys are dot-separated paths.
type ValueStore interface {
	Set(key string, value any)
	Get(key string) (any, bool)
	SetNested(prefix string, value any)
	All() map[string]any
}

// NodeExecutor executes a single flow node and returns the id of the node to
// run next. An empty next id ends the call.
type NodeExecutor interface {
	ExecuteNode(ctx context.Context, execution *Execution, node *Node) (next string, err error)
}

// ActionInvoker performs outbound HTTP calls for api_call nodes.
type ActionInvoker interface {
	Invoke(ctx context.Context, action Action) (ActionResult, error)
}

// CallTracker reports call lifecycle events to the external call-record store.
// Implementations are called from a background worker and their failures are
// only logged.
type CallTracker interface {
	Start(ctx context.Context, channelID string) (callID string, err error)
	Account(ctx context.Context, callID, accountNumber string) error
	Balance(ctx context.Context, callID string, balance any, currency string) error
	End(ctx context.Context, callID, status string) error
	CallLog(ctx context.Context, summary CallSummary) error
	OutboundStatus(ctx context.Context, outboundID string, status OutboundStatus) error
}
