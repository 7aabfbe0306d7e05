package resolver

import (
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"

	"github.com/BDNK1/ivrflow/runtime"
)

// Builtins available to flow expressions. Everything else expr ships with is
// disabled.
var allowedBuiltins = []string{
	"find", "findIndex", "filter", "map", "any", "all", "none", "count",
	"len", "lower", "upper", "trim", "int", "float", "string",
	"abs", "ceil", "floor", "round",
}

// Evaluator evaluates branch conditions and set_variable expressions with
// expr-lang. The call's variables are the only bound names.
type Evaluator struct {
	l *slog.Logger
}

func NewEvaluator(l *slog.Logger) *Evaluator {
	return &Evaluator{l: l}
}

// Eval never fails: errors are logged and yield nil.
func (e *Evaluator) Eval(execution *runtime.Execution, expression string) any {
	result, err := Evaluate(execution.Store, expression)
	if err != nil {
		e.l.WarnContext(execution, "Expression evaluation failed",
			"expression", expression,
			"node", execution.CurrentNode,
			"error", err)
		return nil
	}
	return result
}

// Evaluate compiles and runs expression against store.
func Evaluate(store runtime.ValueStore, expression string) (any, error) {
	if expression == "" {
		return nil, fmt.Errorf("empty expression")
	}

	all := store.All()
	env := make(map[string]any, len(all)+1)
	for k, v := range all {
		env[k] = v
	}
	// null as alias for nil (JSON/YAML compatibility)
	env["null"] = nil

	// defined("a.b") distinguishes a missing path from a nil value
	definedFn := expr.Function(
		"defined",
		func(params ...any) (any, error) {
			path, ok := params[0].(string)
			if !ok {
				return false, fmt.Errorf("defined() expects string path argument, got %T", params[0])
			}
			_, exists := store.Get(path)
			return exists, nil
		},
		new(func(string) bool),
	)

	// NOTE: expr.Env MUST come before AllowUndefinedVariables for it to work
	opts := []expr.Option{
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.DisableAllBuiltins(),
		definedFn,
	}
	for _, name := range allowedBuiltins {
		opts = append(opts, expr.EnableBuiltin(name))
	}

	program, err := expr.Compile(expression, opts...)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}
