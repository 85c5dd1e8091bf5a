package approval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/syncx"
	"mercator-hq/helios/pkg/telemetry/metrics"
)

// Policies is the subset of the policy store the workflow drives.
type Policies interface {
	Get(id string) (*governance.Policy, error)
	Transition(ctx context.Context, id string, target governance.PolicyStatus) (*governance.Policy, error)
}

// Filter selects approvals in List. Zero fields match everything.
type Filter struct {
	PolicyID string                      `json:"policy_id,omitempty"`
	Statuses []governance.ApprovalStatus `json:"statuses,omitempty"`
}

// Outcome is the result of a request or decision: the stored approval and
// the policy state after any transition it caused.
type Outcome struct {
	Approval *governance.Approval
	Policy   *governance.Policy

	// From is the policy status before the transition. It equals
	// Policy.Status when nothing changed.
	From governance.PolicyStatus
}

// Transitioned reports whether the operation changed the policy status.
func (o Outcome) Transitioned() bool {
	return o.Policy != nil && o.From != o.Policy.Status
}

// Workflow owns approval requests and drives the policy transitions they
// imply. At most one PENDING approval exists per policy.
//
// Request, Decide and Cancel for the same policy are serialized by a
// per-policy lock; everything else is safe for concurrent use without
// further coordination. Approvals are held in memory only.
type Workflow struct {
	mu        sync.RWMutex
	approvals map[string]*governance.Approval
	order     []string // insertion order
	pending   map[string]string // policy id -> pending approval id

	policies Policies
	locks    *syncx.KeyedMutex
	now      func() time.Time
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// WithMetrics records decisions on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(w *Workflow) { w.metrics = c }
}

// New creates a workflow driving transitions on policies.
func New(policies Policies, opts ...Option) *Workflow {
	w := &Workflow{
		approvals: make(map[string]*governance.Approval),
		pending:   make(map[string]string),
		policies:  policies,
		locks:     syncx.NewKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default().With("component", "approval.workflow"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Request opens a PENDING approval for policyID. A DRAFT policy is moved to
// PENDING_APPROVAL in the same step; a policy already PENDING_APPROVAL is
// accepted as is. Any other status fails with InvalidStateTransition.
func (w *Workflow) Request(ctx context.Context, policyID, requestedBy string) (Outcome, error) {
	requestedBy = strings.TrimSpace(requestedBy)
	if requestedBy == "" {
		return Outcome{}, governance.NewValidationError("requested_by", "requester is required")
	}

	unlock := w.locks.Lock(policyID)
	defer unlock()

	w.mu.RLock()
	existing, dup := w.pending[policyID]
	w.mu.RUnlock()
	if dup {
		return Outcome{}, &governance.DuplicateRequestError{PolicyID: policyID, ApprovalID: existing}
	}

	p, err := w.policies.Get(policyID)
	if err != nil {
		return Outcome{}, err
	}
	from := p.Status

	switch p.Status {
	case governance.StatusPendingApproval:
	case governance.StatusDraft:
		p, err = w.policies.Transition(ctx, policyID, governance.StatusPendingApproval)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to submit policy for approval: %w", err)
		}
	default:
		return Outcome{}, governance.NewInvalidTransitionError("policy", policyID, p.Status, governance.StatusPendingApproval)
	}

	a := &governance.Approval{
		ID:          uuid.New().String(),
		PolicyID:    policyID,
		RequestedBy: requestedBy,
		Status:      governance.ApprovalPending,
		RequestedAt: w.now(),
	}

	w.mu.Lock()
	w.approvals[a.ID] = a
	w.order = append(w.order, a.ID)
	w.pending[policyID] = a.ID
	w.mu.Unlock()

	w.logger.Info("approval requested", "approval_id", a.ID, "policy_id", policyID, "requested_by", requestedBy)
	return Outcome{Approval: a.Clone(), Policy: p, From: from}, nil
}

// Decide resolves a PENDING approval and applies the matching policy
// transition. If the transition fails the approval stays PENDING.
func (w *Workflow) Decide(ctx context.Context, id string, decision governance.Decision, approver, comments string) (Outcome, error) {
	approver = strings.TrimSpace(approver)
	if approver == "" {
		return Outcome{}, governance.NewValidationError("approver", "approver is required")
	}
	if !decision.Valid() {
		return Outcome{}, governance.NewValidationError("decision", "decision must be APPROVED or REJECTED, got %q", decision)
	}

	w.mu.RLock()
	a, ok := w.approvals[id]
	w.mu.RUnlock()
	if !ok {
		return Outcome{}, governance.NewNotFoundError("approval", id)
	}

	unlock := w.locks.Lock(a.PolicyID)
	defer unlock()

	// Re-read under the policy lock; a concurrent decision may have won.
	w.mu.RLock()
	a = w.approvals[id]
	w.mu.RUnlock()
	if a.Status != governance.ApprovalPending {
		return Outcome{}, governance.NewInvalidTransitionError("approval", id, a.Status, governance.ApprovalStatus(decision))
	}

	target := governance.StatusActive
	if decision == governance.DecisionReject {
		target = governance.StatusDraft
	}
	before, err := w.policies.Get(a.PolicyID)
	if err != nil {
		return Outcome{}, err
	}
	p, err := w.policies.Transition(ctx, a.PolicyID, target)
	if err != nil {
		w.logger.Warn("approval decision rolled back",
			"approval_id", id,
			"policy_id", a.PolicyID,
			"decision", decision,
			"error", err,
		)
		return Outcome{}, err
	}

	decided := a.Clone()
	t := w.now()
	decided.Status = governance.ApprovalStatus(decision)
	decided.Approver = approver
	decided.Comments = comments
	decided.DecidedAt = &t

	w.mu.Lock()
	w.approvals[id] = decided
	delete(w.pending, a.PolicyID)
	w.mu.Unlock()

	w.metrics.RecordApproval(string(decision))
	w.logger.Info("approval decided",
		"approval_id", id,
		"policy_id", a.PolicyID,
		"decision", decision,
		"approver", approver,
	)
	return Outcome{Approval: decided.Clone(), Policy: p, From: before.Status}, nil
}

// Cancel closes the pending approval of policyID, if any, as CANCELLED. It is
// called when the policy leaves PENDING_APPROVAL outside of Decide, after
// which no decision could succeed. The boolean reports whether an approval
// was cancelled.
//
// Cancel takes the same per-policy lock as Request and Decide, so a decision
// racing the cancellation either completes first or finds the approval
// closed.
func (w *Workflow) Cancel(policyID, reason string) (*governance.Approval, bool) {
	unlock := w.locks.Lock(policyID)
	defer unlock()

	w.mu.Lock()
	id, ok := w.pending[policyID]
	if !ok {
		w.mu.Unlock()
		return nil, false
	}
	cancelled := w.approvals[id].Clone()
	t := w.now()
	cancelled.Status = governance.ApprovalCancelled
	cancelled.DecidedAt = &t
	cancelled.Comments = reason
	w.approvals[id] = cancelled
	delete(w.pending, policyID)
	w.mu.Unlock()

	w.logger.Info("approval cancelled", "approval_id", id, "policy_id", policyID, "reason", reason)
	return cancelled.Clone(), true
}

// Get returns approval id.
func (w *Workflow) Get(id string) (*governance.Approval, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.approvals[id]
	if !ok {
		return nil, governance.NewNotFoundError("approval", id)
	}
	return a.Clone(), nil
}

// Pending returns the pending approval for policyID, if any.
func (w *Workflow) Pending(policyID string) (*governance.Approval, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	id, ok := w.pending[policyID]
	if !ok {
		return nil, false
	}
	return w.approvals[id].Clone(), true
}

// List returns matching approvals, newest first.
func (w *Workflow) List(f Filter) []*governance.Approval {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]*governance.Approval, 0, len(w.order))
	for i := len(w.order) - 1; i >= 0; i-- {
		a := w.approvals[w.order[i]]
		if f.PolicyID != "" && a.PolicyID != f.PolicyID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}

// PendingCount returns the number of undecided approvals.
func (w *Workflow) PendingCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.pending)
}
