package evaluator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"mercator-hq/helios/pkg/governance"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 10 * time.Second

// Evaluator judges a policy against an evaluation context.
type Evaluator interface {
	Evaluate(ctx context.Context, p *governance.Policy, evalCtx governance.Metadata) (governance.Result, error)
}

// Func adapts a function to the Evaluator interface.
type Func func(ctx context.Context, p *governance.Policy, evalCtx governance.Metadata) (governance.Result, error)

// Evaluate calls f.
func (f Func) Evaluate(ctx context.Context, p *governance.Policy, evalCtx governance.Metadata) (governance.Result, error) {
	return f(ctx, p, evalCtx)
}

// ContextProvider supplies the evaluation context for a policy.
type ContextProvider interface {
	Context(ctx context.Context, p *governance.Policy) (governance.Metadata, error)
}

// MetadataProvider evaluates a policy against its own metadata.
type MetadataProvider struct{}

// Context returns a copy of the policy metadata.
func (MetadataProvider) Context(_ context.Context, p *governance.Policy) (governance.Metadata, error) {
	return p.Metadata.Clone(), nil
}

// StaticProvider evaluates every policy against the same context, overlaid
// with the policy metadata under the "policy" key.
type StaticProvider struct {
	Base governance.Metadata
}

// Context returns the base context plus the policy metadata.
func (s StaticProvider) Context(_ context.Context, p *governance.Policy) (governance.Metadata, error) {
	out := s.Base.Clone()
	if out == nil {
		out = governance.Metadata{}
	}
	out["policy"] = map[string]any(p.Metadata.Clone())
	return out, nil
}

type bounded struct {
	next    Evaluator
	timeout time.Duration
}

// WithTimeout wraps e so that every call returns within timeout. Errors,
// panics and timeouts come back as *governance.EvaluationError.
//
// The underlying call is not aborted on timeout: its context is cancelled
// and its result is discarded when it eventually returns. Callers that must
// know when it has returned attach a hook with WithAbandonHook.
func WithTimeout(e Evaluator, timeout time.Duration) Evaluator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &bounded{next: e, timeout: timeout}
}

type abandonKey struct{}

// WithAbandonHook returns a context that tells WithTimeout what to do with a
// call it gives up on. When a call times out, fn is invoked before Evaluate
// returns; the function fn returns is then invoked once the abandoned call
// finally comes back.
//
// The scheduler uses this to keep a policy's execution token held until the
// evaluator has actually finished, so a timed-out evaluation never overlaps
// the next one for the same policy.
func WithAbandonHook(ctx context.Context, fn func() (settled func())) context.Context {
	return context.WithValue(ctx, abandonKey{}, fn)
}

func abandonHook(ctx context.Context) func() (settled func()) {
	fn, _ := ctx.Value(abandonKey{}).(func() (settled func()))
	return fn
}

type outcome struct {
	result governance.Result
	err    error
}

func (b *bounded) Evaluate(ctx context.Context, p *governance.Policy, evalCtx governance.Metadata) (governance.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("evaluator panic: %v\n%s", r, debug.Stack())}
			}
		}()
		res, err := b.next.Evaluate(ctx, p, evalCtx)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return governance.Result{}, &governance.EvaluationError{PolicyID: p.ID, Cause: o.err}
		}
		if err := validateResult(o.result); err != nil {
			return governance.Result{}, &governance.EvaluationError{PolicyID: p.ID, Cause: err}
		}
		return o.result, nil
	case <-ctx.Done():
		if hook := abandonHook(ctx); hook != nil {
			settled := hook()
			go func() {
				<-done
				settled()
			}()
		}
		return governance.Result{}, &governance.EvaluationError{PolicyID: p.ID, Cause: fmt.Errorf("evaluation timed out after %s: %w", b.timeout, ctx.Err())}
	}
}

func validateResult(r governance.Result) error {
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0, 1]", r.Confidence)
	}
	return nil
}
