package evaluator

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"mercator-hq/helios/pkg/governance"
)

func cond(id, field, op string, value any, extra ...any) governance.Rule {
	params := governance.Metadata{"field": field, "operator": op, "value": value}
	for i := 0; i+1 < len(extra); i += 2 {
		params[extra[i].(string)] = extra[i+1]
	}
	return governance.Rule{ID: id, Kind: KindCondition, Params: params}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		op       Operator
		actual   any
		present  bool
		expected any
		want     bool
		wantErr  bool
	}{
		{"eq int float", OpEqual, 3, true, 3.0, true, false},
		{"eq string", OpEqual, "eu", true, "eu", true, false},
		{"eq nil", OpEqual, nil, true, nil, true, false},
		{"ne", OpNotEqual, "us", true, "eu", true, false},
		{"lt", OpLessThan, 2, true, 5, true, false},
		{"gt", OpGreaterThan, 2.5, true, 5, false, false},
		{"le equal", OpLessEqual, 5, true, 5, true, false},
		{"ge", OpGreaterEqual, int64(7), true, 5, true, false},
		{"gt non-numeric", OpGreaterThan, "x", true, 5, false, true},
		{"contains substring", OpContains, "customer-pii", true, "pii", true, false},
		{"contains list", OpContains, []any{"a", 2}, true, 2.0, true, false},
		{"contains bad type", OpContains, 12, true, "1", false, true},
		{"matches", OpMatches, "EU-WEST-1", true, `^EU-`, true, false},
		{"matches bad pattern", OpMatches, "x", true, "(", false, true},
		{"starts_with", OpStartsWith, "s3://bucket", true, "s3://", true, false},
		{"ends_with", OpEndsWith, "backup.tar", true, ".gz", false, false},
		{"in", OpIn, "gdpr", true, []any{"hipaa", "gdpr"}, true, false},
		{"in numeric", OpIn, 30, true, []any{30.0, 90.0}, true, false},
		{"not_in", OpNotIn, "sox", true, []any{"hipaa", "gdpr"}, true, false},
		{"in bad type", OpIn, "x", true, "x", false, true},
		{"exists present", OpExists, "v", true, nil, true, false},
		{"exists missing", OpExists, nil, false, nil, false, false},
		{"exists false", OpExists, nil, false, false, true, false},
		{"missing field fails", OpEqual, nil, false, "x", false, false},
		{"unknown op", Operator("like"), "a", true, "a", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compare(tt.op, tt.actual, tt.present, tt.expected)
			if (err != nil) != tt.wantErr {
				t.Fatalf("compare() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("compare() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRuleEvaluator(t *testing.T) {
	ev := NewRuleEvaluator()
	ctx := context.Background()
	evalCtx := governance.Metadata{
		"encryption": map[string]any{"at_rest": true, "algorithm": "AES256"},
		"retention":  map[string]any{"days": 400},
		"region":     "eu-west-1",
	}

	t.Run("no rules is compliant", func(t *testing.T) {
		res, err := ev.Evaluate(ctx, &governance.Policy{ID: "p"}, evalCtx)
		if err != nil || !res.Compliant || res.Confidence != 1 {
			t.Errorf("got %+v, %v", res, err)
		}
	})

	t.Run("all conditions hold", func(t *testing.T) {
		p := &governance.Policy{ID: "p", Rules: []governance.Rule{
			cond("r1", "encryption.at_rest", "eq", true),
			cond("r2", "region", "starts_with", "eu-"),
		}}
		res, err := ev.Evaluate(ctx, p, evalCtx)
		if err != nil || !res.Compliant {
			t.Errorf("got %+v, %v", res, err)
		}
	})

	t.Run("weighted failure", func(t *testing.T) {
		p := &governance.Policy{ID: "p", Rules: []governance.Rule{
			cond("r1", "encryption.at_rest", "eq", true),
			cond("r2", "retention.days", "le", 365, "weight", 3, "action", "shorten-retention"),
			cond("r3", "classification", "exists", nil, "action", "classify"),
		}}
		res, err := ev.Evaluate(ctx, p, evalCtx)
		if err != nil {
			t.Fatal(err)
		}
		if res.Compliant {
			t.Fatal("expected non-compliant")
		}
		if math.Abs(res.Confidence-0.8) > 1e-9 {
			t.Errorf("confidence = %v, want 0.8", res.Confidence)
		}
		if strings.Join(res.Actions, ",") != "shorten-retention,classify" {
			t.Errorf("actions = %v", res.Actions)
		}
	})

	t.Run("unknown kind errors", func(t *testing.T) {
		p := &governance.Policy{ID: "p", Rules: []governance.Rule{{ID: "r1", Kind: "opa"}}}
		if _, err := ev.Evaluate(ctx, p, evalCtx); err == nil {
			t.Error("expected error for unsupported kind")
		}
	})

	t.Run("malformed params error", func(t *testing.T) {
		p := &governance.Policy{ID: "p", Rules: []governance.Rule{cond("r1", "", "eq", 1)}}
		if _, err := ev.Evaluate(ctx, p, evalCtx); err == nil {
			t.Error("expected error for missing field")
		}
	})
}

func TestValidateRules(t *testing.T) {
	good := []governance.Rule{cond("r1", "a", "eq", 1), {ID: "r2", Kind: "custom"}}
	if err := ValidateRules(good); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	bad := []governance.Rule{cond("r1", "a", "eq", 1, "weight", -1)}
	if err := ValidateRules(bad); !errors.Is(err, governance.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestWithTimeout(t *testing.T) {
	p := &governance.Policy{ID: "p1"}
	ctx := context.Background()

	t.Run("passes results through", func(t *testing.T) {
		ev := WithTimeout(Func(func(context.Context, *governance.Policy, governance.Metadata) (governance.Result, error) {
			return governance.Result{Compliant: false, Confidence: 0.7}, nil
		}), time.Second)
		res, err := ev.Evaluate(ctx, p, nil)
		if err != nil || res.Confidence != 0.7 {
			t.Errorf("got %+v, %v", res, err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		ev := WithTimeout(Func(func(context.Context, *governance.Policy, governance.Metadata) (governance.Result, error) {
			<-release
			return governance.Result{}, nil
		}), 20*time.Millisecond)
		_, err := ev.Evaluate(ctx, p, nil)
		if !errors.Is(err, governance.ErrEvaluation) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected evaluation timeout, got %v", err)
		}
	})

	t.Run("abandon hook fires when the timed-out call returns", func(t *testing.T) {
		release := make(chan struct{})
		ev := WithTimeout(Func(func(context.Context, *governance.Policy, governance.Metadata) (governance.Result, error) {
			<-release
			return governance.Result{}, nil
		}), 20*time.Millisecond)

		abandoned := false
		settled := make(chan struct{})
		hooked := WithAbandonHook(ctx, func() func() {
			abandoned = true
			return func() { close(settled) }
		})
		if _, err := ev.Evaluate(hooked, p, nil); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected timeout, got %v", err)
		}
		if !abandoned {
			t.Fatal("hook not called before Evaluate returned")
		}
		select {
		case <-settled:
			t.Fatal("settled before the abandoned call returned")
		default:
		}
		close(release)
		select {
		case <-settled:
		case <-time.After(time.Second):
			t.Fatal("settled not called after the abandoned call returned")
		}
	})

	t.Run("abandon hook unused on success", func(t *testing.T) {
		ev := WithTimeout(Func(func(context.Context, *governance.Policy, governance.Metadata) (governance.Result, error) {
			return governance.Result{Compliant: true, Confidence: 1}, nil
		}), time.Second)
		hooked := WithAbandonHook(ctx, func() func() {
			t.Error("hook called for a call that completed")
			return func() {}
		})
		if _, err := ev.Evaluate(hooked, p, nil); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("panic", func(t *testing.T) {
		ev := WithTimeout(Func(func(context.Context, *governance.Policy, governance.Metadata) (governance.Result, error) {
			panic("boom")
		}), time.Second)
		_, err := ev.Evaluate(ctx, p, nil)
		var evalErr *governance.EvaluationError
		if !errors.As(err, &evalErr) || evalErr.PolicyID != "p1" || !strings.Contains(err.Error(), "boom") {
			t.Errorf("expected recovered panic, got %v", err)
		}
	})

	t.Run("error and bad confidence", func(t *testing.T) {
		ev := WithTimeout(Func(func(context.Context, *governance.Policy, governance.Metadata) (governance.Result, error) {
			return governance.Result{}, errors.New("backend down")
		}), time.Second)
		if _, err := ev.Evaluate(ctx, p, nil); !errors.Is(err, governance.ErrEvaluation) {
			t.Errorf("expected evaluation error, got %v", err)
		}
		ev = WithTimeout(Func(func(context.Context, *governance.Policy, governance.Metadata) (governance.Result, error) {
			return governance.Result{Confidence: 1.5}, nil
		}), time.Second)
		if _, err := ev.Evaluate(ctx, p, nil); !errors.Is(err, governance.ErrEvaluation) {
			t.Errorf("expected evaluation error for confidence, got %v", err)
		}
	})
}

func TestProviders(t *testing.T) {
	p := &governance.Policy{Metadata: governance.Metadata{"owner": "privacy"}}

	got, _ := MetadataProvider{}.Context(context.Background(), p)
	got["owner"] = "changed"
	if p.Metadata["owner"] != "privacy" {
		t.Error("metadata provider must copy")
	}

	static := StaticProvider{Base: governance.Metadata{"region": "eu"}}
	sc, _ := static.Context(context.Background(), p)
	if v, ok := sc.Get("policy.owner"); !ok || v != "privacy" {
		t.Errorf("policy.owner = %v, %v", v, ok)
	}
	if sc["region"] != "eu" {
		t.Error("expected base context")
	}
}
