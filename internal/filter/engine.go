// Package filter implements the event filter engine: boolean trigger
// expressions evaluated against flattened event records.
package filter

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
)

// Engine evaluates trigger expressions. It is safe for concurrent use.
type Engine struct {
	log zerolog.Logger

	mu           sync.Mutex
	programCache map[string]*vm.Program
}

// New creates an engine logging diagnostics to the given logger.
func New(log zerolog.Logger) *Engine {
	return &Engine{
		log:          log,
		programCache: make(map[string]*vm.Program),
	}
}

// Evaluate walks the expression tree. Combinators short-circuit; a
// structurally invalid leaf fails that leaf only and logs, it never
// aborts sibling branches. On total non-match the caller is expected to
// log filter and event together (see policy.Evaluator).
func (e *Engine) Evaluate(f *domain.Filter, ev domain.Event) bool {
	if f == nil {
		// No trigger means no constraint.
		return true
	}

	if f.IsLeaf() {
		return e.evaluateLeaf(f, ev)
	}

	switch f.Combinator {
	case domain.CombinatorAnd:
		for _, child := range f.Children {
			if !e.Evaluate(child, ev) {
				return false
			}
		}
		return true

	case domain.CombinatorOr:
		for _, child := range f.Children {
			if e.Evaluate(child, ev) {
				return true
			}
		}
		return false

	case domain.CombinatorNot:
		if len(f.Children) != 1 {
			e.log.Warn().Int("children", len(f.Children)).Msg("not combinator requires exactly one child")
			return false
		}
		return !e.Evaluate(f.Children[0], ev)

	default:
		e.log.Warn().Str("combinator", string(f.Combinator)).Msg("unknown filter combinator")
		return false
	}
}

func (e *Engine) evaluateLeaf(f *domain.Filter, ev domain.Event) bool {
	op, ok := operators[f.Operator]
	if !ok {
		e.log.Warn().Str("operator", f.Operator).Msg("unknown filter operator")
		return false
	}

	operands := f.OperandValues()
	if op.arity != anyArity && len(operands) != op.arity {
		e.log.Warn().
			Str("operator", f.Operator).
			Int("expected", op.arity).
			Int("got", len(operands)).
			Msg("operand count mismatch")
		return false
	}

	switch f.Operator {
	case hasValueOperator, hasNoValueOperator:
		raw, present := f.Attribute.ResolveRaw(ev)
		if f.Operator == hasValueOperator {
			return present && !raw.IsNull()
		}
		return present && raw.IsNull()
	}

	var eventValue *string
	if raw, present := f.Attribute.Resolve(ev); present {
		eventValue = &raw
	}

	if f.Operator == regexOperator {
		return e.evaluateRegex(eventValue, operands[0])
	}

	return op.passes(eventValue, operands)
}

// evaluateRegex performs a regular-expression search (not a full match)
// through a cached expression program, compiled once per pattern.
func (e *Engine) evaluateRegex(eventValue *string, pattern string) bool {
	if eventValue == nil {
		return false
	}

	program, err := e.regexProgram(pattern)
	if err != nil {
		e.log.Warn().Err(err).Str("pattern", pattern).Msg("regex compile failed")
		return false
	}

	result, err := expr.Run(program, map[string]any{"value": *eventValue})
	if err != nil {
		e.log.Warn().Err(err).Str("pattern", pattern).Msg("regex evaluation failed")
		return false
	}

	matched, ok := result.(bool)
	return ok && matched
}

func (e *Engine) regexProgram(pattern string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.programCache[pattern]; ok {
		return program, nil
	}

	exprStr := fmt.Sprintf("value matches %q", pattern)
	program, err := expr.Compile(exprStr, expr.Env(map[string]any{"value": ""}))
	if err != nil {
		return nil, err
	}

	e.programCache[pattern] = program
	return program, nil
}
