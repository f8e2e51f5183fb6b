// Package factors attaches human-readable risk factors to a prediction.
// Each factor is a CEL predicate compiled once and evaluated in order.
package factors

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/merlin/internal/domain"
)

// DefaultRules returns the built-in factor rules in evaluation order.
func DefaultRules() []domain.FactorRule {
	return []domain.FactorRule{
		{ID: "high_amount", Expression: `amount > 1000.0`, Factor: "High transaction amount", Enabled: true},
		{ID: "night_time", Expression: `part_of_day == "night"`, Factor: "Unusual transaction time", Enabled: true},
		{ID: "cash_out", Expression: `tx_type == "CASH_OUT"`, Factor: "Cash out transaction", Enabled: true},
		{ID: "high_probability", Expression: `probability > 0.7`, Factor: "High fraud probability score", Enabled: true},
		{ID: "unusual_pattern", Expression: `probability > 0.5`, Factor: "Unusual transaction pattern", Enabled: true},
		{ID: "large_transfer", Expression: `tx_type == "TRANSFER" && amount > 500.0`, Factor: "Large transfer amount", Enabled: true},
		{ID: "merchant_night", Expression: `pair_code == "cm" && part_of_day == "night"`, Factor: "Unusual merchant transaction time", Enabled: true},
	}
}

// Input is what factor expressions can see.
type Input struct {
	Amount      float64
	Day         int
	Type        string
	PairCode    string
	PartOfDay   string
	Probability float64
	Method      domain.PredictionMethod
}

// Engine evaluates compiled factor rules. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	env   *cel.Env
	rules []compiledRule
}

type compiledRule struct {
	rule    domain.FactorRule
	program cel.Program
}

// NewEngine compiles the enabled rules, keeping their order.
func NewEngine(rules []domain.FactorRule) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("day", cel.IntType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("pair_code", cel.StringType),
		cel.Variable("part_of_day", cel.StringType),
		cel.Variable("probability", cel.DoubleType),
		cel.Variable("method", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env}
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		program, err := e.compile(r)
		if err != nil {
			return nil, err
		}
		e.rules = append(e.rules, compiledRule{rule: r, program: program})
	}
	return e, nil
}

func (e *Engine) compile(r domain.FactorRule) (cel.Program, error) {
	ast, issues := e.env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile factor %s: %w", r.ID, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("factor %s must return bool, got %s", r.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for factor %s: %w", r.ID, err)
	}
	return program, nil
}

// Evaluate returns the factors whose predicates hold, in rule order.
// The result is never nil.
func (e *Engine) Evaluate(ctx context.Context, in *Input) ([]string, error) {
	activation := map[string]any{
		"amount":      in.Amount,
		"day":         int64(in.Day),
		"tx_type":     in.Type,
		"pair_code":   in.PairCode,
		"part_of_day": in.PartOfDay,
		"probability": in.Probability,
		"method":      string(in.Method),
	}

	factors := []string{}
	for _, r := range e.rules {
		out, _, err := r.program.ContextEval(ctx, activation)
		if err != nil {
			return nil, fmt.Errorf("factor %s: %w", r.rule.ID, err)
		}
		if out == types.True {
			factors = append(factors, r.rule.Factor)
		}
	}
	return factors, nil
}

// Rules returns the loaded rules in evaluation order.
func (e *Engine) Rules() []domain.FactorRule {
	rules := make([]domain.FactorRule, len(e.rules))
	for i, r := range e.rules {
		rules[i] = r.rule
	}
	return rules
}
