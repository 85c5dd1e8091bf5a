package engine

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/helios/pkg/evaluator"
	"mercator-hq/helios/pkg/eventbus"
	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/policy/store"
	"mercator-hq/helios/pkg/telemetry/logging"
	"mercator-hq/helios/pkg/telemetry/tracing"
)

// Policy change actions carried in PolicyChanged events.
const (
	ChangeCreate          = "CREATE"
	ChangeUpdate          = "UPDATE"
	ChangeTransition      = "TRANSITION"
	ChangeDelete          = "DELETE"
	ChangeApprovalRequest = "APPROVAL_REQUESTED"
	ChangeApprovalDecided = "APPROVAL_DECIDED"
)

// CreatePolicy stores a new DRAFT policy on behalf of actor.
func (e *Engine) CreatePolicy(ctx context.Context, d store.Draft, actor string) (*governance.Policy, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := evaluator.ValidateRules(d.Rules); err != nil {
		return nil, err
	}

	p, err := e.policies.Create(ctx, d)
	if err != nil {
		return nil, err
	}

	e.ledger.Append(governance.AuditRecord{
		PolicyID: p.ID,
		Action:   governance.AuditCreate,
		Actor:    actor,
		Details:  fmt.Sprintf("created policy %q (%s)", p.Name, p.Type),
		Payload:  governance.Snapshot(p),
	})
	e.policyChanged(p, ChangeCreate, actor, "", p.Status)
	logging.FromContext(logging.WithActor(ctx, actor), e.logger).Info("policy created", "policy_id", p.ID, "name", p.Name)
	return p, nil
}

// UpdatePolicy applies a field-level patch. Status is never changed here.
func (e *Engine) UpdatePolicy(ctx context.Context, id string, patch store.Patch, actor string) (*governance.Policy, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if patch.Rules != nil {
		if err := evaluator.ValidateRules(*patch.Rules); err != nil {
			return nil, err
		}
	}

	p, err := e.policies.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	e.ledger.Append(governance.AuditRecord{
		PolicyID: p.ID,
		Action:   governance.AuditUpdate,
		Actor:    actor,
		Details:  "updated " + strings.Join(patchedFields(patch), ", "),
		Payload:  governance.Snapshot(p),
	})
	e.policyChanged(p, ChangeUpdate, actor, p.Status, p.Status)
	return p, nil
}

// TransitionPolicy moves a policy to SUSPENDED or ARCHIVED, or resumes a
// SUSPENDED policy to ACTIVE. Submission and promotion out of
// PENDING_APPROVAL belong to the approval workflow.
func (e *Engine) TransitionPolicy(ctx context.Context, id string, target governance.PolicyStatus, actor string) (*governance.Policy, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !target.Valid() {
		return nil, governance.NewValidationError("status", "unknown status %q", target)
	}

	cur, err := e.policies.Get(id)
	if err != nil {
		return nil, err
	}
	switch target {
	case governance.StatusSuspended, governance.StatusArchived:
	case governance.StatusActive:
		if cur.Status != governance.StatusSuspended {
			return nil, governance.NewInvalidTransitionError("policy", id, cur.Status, target)
		}
	default:
		return nil, governance.NewValidationError("status", "transition to %s is driven by the approval workflow", target)
	}

	p, err := e.policies.Transition(ctx, id, target)
	if err != nil {
		return nil, err
	}

	e.ledger.Append(governance.AuditRecord{
		PolicyID: p.ID,
		Action:   governance.AuditUpdate,
		Actor:    actor,
		Details:  statusDetails(cur.Status, p.Status),
		Payload:  governance.Snapshot(p),
	})
	e.policyChanged(p, ChangeTransition, actor, cur.Status, p.Status)
	if p.Status == governance.StatusArchived {
		e.cancelApproval(p.ID, actor, "policy archived")
	}
	return p, nil
}

// DeletePolicy removes a DRAFT or ARCHIVED policy.
func (e *Engine) DeletePolicy(ctx context.Context, id, actor string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	p, err := e.policies.Delete(ctx, id)
	if err != nil {
		return err
	}

	e.ledger.Append(governance.AuditRecord{
		PolicyID: id,
		Action:   governance.AuditDelete,
		Actor:    actor,
		Details:  fmt.Sprintf("deleted %s policy %q", p.Status, p.Name),
		Payload:  governance.Snapshot(p),
	})
	e.policyChanged(p, ChangeDelete, actor, p.Status, "")
	e.cancelApproval(id, actor, "policy deleted")
	return nil
}

// RequestApproval opens a PENDING approval for policy id, submitting a DRAFT
// policy for approval in the same step.
func (e *Engine) RequestApproval(ctx context.Context, id, requestedBy string) (*governance.Approval, error) {
	out, err := e.approvals.Request(ctx, id, requestedBy)
	if err != nil {
		return nil, err
	}

	details := "approval requested"
	if out.Transitioned() {
		details = statusDetails(out.From, out.Policy.Status) + " (approval requested)"
	}
	e.ledger.Append(governance.AuditRecord{
		PolicyID: id,
		Action:   governance.AuditUpdate,
		Actor:    requestedBy,
		Details:  details,
		Payload:  governance.Snapshot(out.Approval),
	})
	e.policyChanged(out.Policy, ChangeApprovalRequest, requestedBy, out.From, out.Policy.Status)
	return out.Approval, nil
}

// DecideApproval approves or rejects a PENDING approval. Approval moves the
// policy to ACTIVE and rejection returns it to DRAFT. When the policy
// transition fails the approval stays PENDING and the error is returned.
func (e *Engine) DecideApproval(ctx context.Context, id string, decision governance.Decision, approver, comments string) (*governance.Approval, error) {
	ctx, span := e.tracer.Start(ctx, "engine.decide_approval",
		trace.WithAttributes(
			attribute.String(tracing.AttrApprovalID, id),
			attribute.String(tracing.AttrDecision, string(decision)),
			attribute.String(tracing.AttrActor, approver),
		))
	defer span.End()

	out, err := e.approvals.Decide(ctx, id, decision, approver, comments)
	if err != nil {
		tracing.SetStatus(span, err)
		return nil, err
	}
	a := out.Approval

	action := governance.AuditApprove
	if decision == governance.DecisionReject {
		action = governance.AuditReject
	}
	details := fmt.Sprintf("approval %s %s; %s", a.ID, strings.ToLower(string(a.Status)), statusDetails(out.From, out.Policy.Status))
	if a.Comments != "" {
		details += ": " + a.Comments
	}
	e.ledger.Append(governance.AuditRecord{
		PolicyID: a.PolicyID,
		Action:   action,
		Actor:    approver,
		Details:  details,
		Payload:  governance.Snapshot(a),
	})

	e.rolling.RecordDecision(decision == governance.DecisionApprove)
	e.bus.Publish(eventbus.ApprovalDecided, a.PolicyID, a.Clone())
	e.policyChanged(out.Policy, ChangeApprovalDecided, approver, out.From, out.Policy.Status)
	tracing.SetStatus(span, nil)
	return a, nil
}

// ExecutePolicy evaluates an ACTIVE policy now. A second call while an
// execution for the same policy is in flight fails with a
// ConcurrencyConflictError.
func (e *Engine) ExecutePolicy(ctx context.Context, id, actor string) (*governance.Execution, *governance.Violation, error) {
	return e.sched.Execute(ctx, id, actor)
}

// AssignViolation moves an OPEN violation to IN_PROGRESS.
func (e *Engine) AssignViolation(ctx context.Context, id, assignee string) (*governance.Violation, error) {
	v, err := e.monitor.Assign(id, assignee)
	if err != nil {
		return nil, err
	}
	e.ledger.Append(governance.AuditRecord{
		PolicyID: v.PolicyID,
		Action:   governance.AuditUpdate,
		Actor:    assignee,
		Details:  fmt.Sprintf("violation %s assigned to %s", v.ID, assignee),
		Payload:  governance.Snapshot(v),
	})
	return v, nil
}

// ResolveViolation closes an OPEN or IN_PROGRESS violation.
func (e *Engine) ResolveViolation(ctx context.Context, id, resolution, actor string) (*governance.Violation, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v, err := e.monitor.Resolve(id, resolution)
	if err != nil {
		return nil, err
	}
	e.ledger.Append(governance.AuditRecord{
		PolicyID: v.PolicyID,
		Action:   governance.AuditUpdate,
		Actor:    actor,
		Details:  fmt.Sprintf("violation %s resolved: %s", v.ID, v.Resolution),
		Payload:  governance.Snapshot(v),
	})
	return v, nil
}

func (e *Engine) policyChanged(p *governance.Policy, action, actor string, from, to governance.PolicyStatus) {
	e.refreshPolicyCounts()
	e.bus.Publish(eventbus.PolicyChanged, p.ID, eventbus.PolicyChange{
		Action: action,
		Actor:  actor,
		From:   string(from),
		To:     string(to),
		Policy: p.Clone(),
	})
}

// cancelApproval closes a pending approval left behind by a policy that can
// no longer be decided.
func (e *Engine) cancelApproval(policyID, actor, reason string) {
	a, ok := e.approvals.Cancel(policyID, reason)
	if !ok {
		return
	}
	e.ledger.Append(governance.AuditRecord{
		PolicyID: policyID,
		Action:   governance.AuditUpdate,
		Actor:    actor,
		Details:  fmt.Sprintf("approval %s cancelled: %s", a.ID, reason),
		Payload:  governance.Snapshot(a),
	})
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return governance.NewValidationError("actor", "actor is required")
	}
	return nil
}

func statusDetails(from, to governance.PolicyStatus) string {
	return fmt.Sprintf("status %s -> %s", from, to)
}

func patchedFields(p store.Patch) []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Type != nil {
		fields = append(fields, "policy_type")
	}
	if p.RiskClass != nil {
		fields = append(fields, "risk_class")
	}
	if p.ComplianceFrameworks != nil {
		fields = append(fields, "compliance_frameworks")
	}
	if p.Rules != nil {
		fields = append(fields, "rules")
	}
	if len(p.Metadata) > 0 {
		fields = append(fields, "metadata")
	}
	if p.Owner != nil {
		fields = append(fields, "owner")
	}
	return fields
}
