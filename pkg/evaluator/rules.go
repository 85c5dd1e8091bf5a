package evaluator

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/helios/pkg/governance"
)

// KindCondition is the rule kind interpreted by RuleEvaluator.
const KindCondition = "condition"

// RuleEvaluator evaluates "condition" rules against the context.
type RuleEvaluator struct {
	logger *slog.Logger
}

// NewRuleEvaluator creates a rule evaluator.
func NewRuleEvaluator() *RuleEvaluator {
	return &RuleEvaluator{logger: slog.Default().With("component", "evaluator.rules")}
}

type condition struct {
	field    string
	operator Operator
	value    any
	weight   float64
	action   string
}

// Evaluate checks every rule of p. A policy without rules is compliant.
func (e *RuleEvaluator) Evaluate(ctx context.Context, p *governance.Policy, evalCtx governance.Metadata) (governance.Result, error) {
	var total, failed float64
	var actions []string

	for i, rule := range p.Rules {
		if err := ctx.Err(); err != nil {
			return governance.Result{}, err
		}
		if rule.Kind != KindCondition {
			return governance.Result{}, fmt.Errorf("rule %q: unsupported kind %q", rule.ID, rule.Kind)
		}
		c, err := parseCondition(rule.Params)
		if err != nil {
			return governance.Result{}, fmt.Errorf("rule %q: %w", rule.ID, err)
		}

		actual, present := evalCtx.Get(c.field)
		ok, err := compare(c.operator, actual, present, c.value)
		if err != nil {
			return governance.Result{}, fmt.Errorf("rule %q (index %d): %w", rule.ID, i, err)
		}

		total += c.weight
		if !ok {
			failed += c.weight
			if c.action != "" {
				actions = append(actions, c.action)
			}
			e.logger.Debug("condition failed", "policy_id", p.ID, "rule_id", rule.ID, "field", c.field, "operator", c.operator)
		}
	}

	if failed == 0 {
		return governance.Result{Compliant: true, Confidence: 1}, nil
	}
	return governance.Result{Compliant: false, Confidence: failed / total, Actions: actions}, nil
}

// ValidateRules reports the first malformed rule without evaluating it.
func ValidateRules(rules []governance.Rule) error {
	for i, rule := range rules {
		if rule.Kind != KindCondition {
			continue
		}
		if _, err := parseCondition(rule.Params); err != nil {
			return governance.NewValidationError(fmt.Sprintf("rules[%d].params", i), "%v", err)
		}
	}
	return nil
}

func parseCondition(params governance.Metadata) (condition, error) {
	c := condition{weight: 1}

	field, ok := params["field"].(string)
	if !ok || field == "" {
		return c, fmt.Errorf("field is required")
	}
	c.field = field

	op, ok := params["operator"].(string)
	if !ok || !Operator(op).Valid() {
		return c, fmt.Errorf("unknown operator %v", params["operator"])
	}
	c.operator = Operator(op)
	c.value = params["value"]

	if w, present := params["weight"]; present {
		f, err := toFloat(w)
		if err != nil || f <= 0 {
			return c, fmt.Errorf("weight must be a positive number")
		}
		c.weight = f
	}
	if a, present := params["action"]; present {
		s, ok := a.(string)
		if !ok {
			return c, fmt.Errorf("action must be a string")
		}
		c.action = s
	}
	return c, nil
}
