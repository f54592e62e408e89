package ruleeval

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"
)

// Context is the read-only data a rule expression evaluates against.
// Three namespaces: user attributes, device descriptors and the
// triggering event's parameters.
type Context struct {
	User   map[string]any
	Device map[string]any
	Params map[string]any
}

func (c Context) env() map[string]any {
	return map[string]any{
		"user":   nonNil(c.User),
		"device": nonNil(c.Device),
		"params": nonNil(c.Params),
	}
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Evaluator runs boolean audience expressions in a sandboxed
// interpreter. No host functions are registered, so expressions cannot
// reach I/O, the clock or randomness: evaluation is a pure function of
// (expression, context).
type Evaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func New() *Evaluator {
	return &Evaluator{programs: map[string]*vm.Program{}}
}

// Evaluate returns whether the expression matches the context. An empty
// expression always matches. Any compile or runtime fault is logged and
// reported as false, never propagated: a broken expression must not
// accidentally show a paywall.
func (e *Evaluator) Evaluate(expression string, ctx Context) bool {
	if expression == "" {
		return true
	}

	program, err := e.compile(expression)
	if err != nil {
		log.Warn().Err(err).Str("expression", expression).Msg("expression compile failed")
		return false
	}

	out, err := vm.Run(program, ctx.env())
	if err != nil {
		log.Warn().Err(err).Str("expression", expression).Msg("expression evaluation failed")
		return false
	}

	result, ok := out.(bool)
	if !ok {
		log.Warn().Str("expression", expression).Msg("expression did not produce a boolean")
		return false
	}
	return result
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[expression] = program
	e.mu.Unlock()
	return program, nil
}
