package engine

import (
	"context"

	"mercator-hq/helios/pkg/approval"
	"mercator-hq/helios/pkg/audit"
	"mercator-hq/helios/pkg/audit/archive"
	"mercator-hq/helios/pkg/compliance"
	"mercator-hq/helios/pkg/eventbus"
	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/policy/store"
	"mercator-hq/helios/pkg/rolling"
	"mercator-hq/helios/pkg/scheduler"
)

// MetricsSnapshot aggregates the rolling windows with entity counts.
type MetricsSnapshot struct {
	rolling.Snapshot

	PoliciesByStatus map[governance.PolicyStatus]int `json:"policies_by_status"`
	OpenViolations   int                             `json:"open_violations"`
	PendingApprovals int                             `json:"pending_approvals"`
	AuditRecords     int                             `json:"audit_records"`
	LastEventSeq     uint64                          `json:"last_event_seq"`
	Orchestration    scheduler.Status                `json:"orchestration"`
}

// ListPolicies returns policies matching f ordered by creation time. With
// no statuses and IncludeInactive unset only ACTIVE policies are returned.
func (e *Engine) ListPolicies(f store.Filter) []*governance.Policy {
	return e.policies.List(f)
}

// GetPolicy returns policy id.
func (e *Engine) GetPolicy(id string) (*governance.Policy, error) {
	return e.policies.Get(id)
}

// GetMetricsSnapshot computes the current aggregate view.
func (e *Engine) GetMetricsSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Snapshot:         e.rolling.Snapshot(),
		PoliciesByStatus: e.policies.CountByStatus(),
		OpenViolations:   e.monitor.OpenCount(),
		PendingApprovals: e.approvals.PendingCount(),
		AuditRecords:     e.ledger.Len(),
		LastEventSeq:     e.bus.LastSeq(),
		Orchestration:    e.sched.Status(),
	}
}

// GetAuditTrail returns in-memory audit records newest first.
func (e *Engine) GetAuditTrail(f audit.Filter, p audit.Page) (audit.Result, error) {
	return e.ledger.Query(f, p)
}

// QueryArchive searches audit records evicted to the archive. It returns
// nil when archiving is disabled.
func (e *Engine) QueryArchive(ctx context.Context, q archive.Query) ([]governance.AuditRecord, error) {
	if e.archive == nil {
		return nil, nil
	}
	return e.archive.Query(ctx, &q)
}

// ListViolations returns recent violations newest first.
func (e *Engine) ListViolations(f compliance.Filter) []*governance.Violation {
	return e.monitor.List(f)
}

// GetViolation returns violation id while it is in the recent view.
func (e *Engine) GetViolation(id string) (*governance.Violation, error) {
	return e.monitor.Get(id)
}

// ListApprovals returns approvals newest first.
func (e *Engine) ListApprovals(f approval.Filter) []*governance.Approval {
	return e.approvals.List(f)
}

// GetApproval returns approval id.
func (e *Engine) GetApproval(id string) (*governance.Approval, error) {
	return e.approvals.Get(id)
}

// ListExecutions returns recent executions newest first.
func (e *Engine) ListExecutions(policyID string, limit int) []*governance.Execution {
	return e.sched.Executions(policyID, limit)
}

// OrchestrationStatus reports the scheduler state.
func (e *Engine) OrchestrationStatus() scheduler.Status {
	return e.sched.Status()
}

// Subscribe registers a bus subscriber. With no kinds every event is
// delivered. The caller must Close the subscription.
func (e *Engine) Subscribe(name string, kinds ...eventbus.Kind) *eventbus.Subscription {
	return e.bus.Subscribe(name, kinds...)
}

