package governance

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"time"
)

// PolicyType classifies what a policy governs.
type PolicyType string

const (
	PolicyTypeDataClassification PolicyType = "DATA_CLASSIFICATION"
	PolicyTypeAccessControl      PolicyType = "ACCESS_CONTROL"
	PolicyTypeRetention          PolicyType = "RETENTION"
	PolicyTypePrivacy            PolicyType = "PRIVACY"
	PolicyTypeCompliance         PolicyType = "COMPLIANCE"
	PolicyTypeSecurity           PolicyType = "SECURITY"
)

// PolicyTypes lists every declared policy type.
var PolicyTypes = []PolicyType{
	PolicyTypeDataClassification,
	PolicyTypeAccessControl,
	PolicyTypeRetention,
	PolicyTypePrivacy,
	PolicyTypeCompliance,
	PolicyTypeSecurity,
}

// Valid reports whether t is a declared policy type.
func (t PolicyType) Valid() bool {
	return slices.Contains(PolicyTypes, t)
}

// RiskClass selects the severity threshold row used by the compliance monitor.
type RiskClass string

const (
	RiskLow      RiskClass = "LOW"
	RiskStandard RiskClass = "STANDARD"
	RiskElevated RiskClass = "ELEVATED"
	RiskCritical RiskClass = "CRITICAL"
)

// RiskClasses lists every declared risk class.
var RiskClasses = []RiskClass{RiskLow, RiskStandard, RiskElevated, RiskCritical}

// Valid reports whether r is a declared risk class.
func (r RiskClass) Valid() bool {
	return slices.Contains(RiskClasses, r)
}

// Rule is an opaque rule descriptor. The engine stores rules in order and
// hands them to the evaluator untouched; only the evaluator interprets Kind
// and Params.
type Rule struct {
	ID     string   `json:"id" yaml:"id"`
	Kind   string   `json:"kind" yaml:"kind"`
	Params Metadata `json:"params,omitempty" yaml:"params,omitempty"`
}

// Policy is a governance rule set with a lifecycle status.
type Policy struct {
	ID                   string       `json:"id" yaml:"id"`
	Name                 string       `json:"name" yaml:"name"`
	Description          string       `json:"description,omitempty" yaml:"description,omitempty"`
	Type                 PolicyType   `json:"policy_type" yaml:"policy_type"`
	Status               PolicyStatus `json:"status" yaml:"status"`
	RiskClass            RiskClass    `json:"risk_class" yaml:"risk_class"`
	ComplianceFrameworks []string     `json:"compliance_frameworks,omitempty" yaml:"compliance_frameworks,omitempty"`
	Rules                []Rule       `json:"rules,omitempty" yaml:"rules,omitempty"`
	Metadata             Metadata     `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Version              int64        `json:"version" yaml:"version"`
	CreatedAt            time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at" yaml:"updated_at"`
	Owner                string       `json:"owner,omitempty" yaml:"owner,omitempty"`
}

// Clone returns a deep copy of the policy.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	c := *p
	c.ComplianceFrameworks = slices.Clone(p.ComplianceFrameworks)
	if p.Rules != nil {
		c.Rules = make([]Rule, len(p.Rules))
		for i, r := range p.Rules {
			c.Rules[i] = Rule{ID: r.ID, Kind: r.Kind, Params: r.Params.Clone()}
		}
	}
	c.Metadata = p.Metadata.Clone()
	return &c
}

// HasFramework reports whether the policy declares the given compliance
// framework. Matching is case-insensitive.
func (p *Policy) HasFramework(framework string) bool {
	for _, f := range p.ComplianceFrameworks {
		if strings.EqualFold(f, framework) {
			return true
		}
	}
	return false
}

// NormalizeFrameworks trims, de-duplicates and sorts a framework set.
func NormalizeFrameworks(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, f := range in {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		key := strings.ToUpper(f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Outcome is the terminal state of a single execution.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// ActorScheduler is the executedBy value for scheduler-driven executions.
const ActorScheduler = "scheduler"

// Result is what a policy evaluator reports for one evaluation.
type Result struct {
	Compliant  bool     `json:"compliant"`
	Confidence float64  `json:"confidence"`
	Actions    []string `json:"actions,omitempty"`
}

// Execution is one evaluation of a policy. Executions are immutable once
// created.
type Execution struct {
	ID            string    `json:"id"`
	PolicyID      string    `json:"policy_id"`
	PolicyVersion int64     `json:"policy_version"`
	Outcome       Outcome   `json:"outcome"`
	DurationMs    float64   `json:"duration_ms"`
	Result        Result    `json:"result"`
	Error         string    `json:"error,omitempty"`
	ExecutedAt    time.Time `json:"executed_at"`
	ExecutedBy    string    `json:"executed_by"`
	Metadata      Metadata  `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the execution.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	c := *e
	c.Result.Actions = slices.Clone(e.Result.Actions)
	c.Metadata = e.Metadata.Clone()
	return &c
}

// NonCompliant reports whether the execution succeeded and found the policy
// violated. Failed executions are never non-compliant.
func (e *Execution) NonCompliant() bool {
	return e.Outcome == OutcomeSuccess && !e.Result.Compliant
}

// Severity ranks a violation.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities from 1 (LOW) to 4 (CRITICAL). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a declared severity.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// ViolationStatus tracks violation handling.
type ViolationStatus string

const (
	ViolationOpen       ViolationStatus = "OPEN"
	ViolationInProgress ViolationStatus = "IN_PROGRESS"
	ViolationResolved   ViolationStatus = "RESOLVED"
)

// Violation is a detected non-compliant execution outcome.
type Violation struct {
	ID          string          `json:"id"`
	PolicyID    string          `json:"policy_id"`
	ExecutionID string          `json:"execution_id"`
	Severity    Severity        `json:"severity"`
	Description string          `json:"description"`
	Confidence  float64         `json:"confidence"`
	DetectedAt  time.Time       `json:"detected_at"`
	Status      ViolationStatus `json:"status"`
	AssignedTo  string          `json:"assigned_to,omitempty"`
	Resolution  string          `json:"resolution,omitempty"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// Clone returns a copy of the violation.
func (v *Violation) Clone() *Violation {
	if v == nil {
		return nil
	}
	c := *v
	if v.ResolvedAt != nil {
		t := *v.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// ApprovalStatus tracks an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"

	// ApprovalCancelled closes a request whose policy left PENDING_APPROVAL
	// without a decision (archived or deleted).
	ApprovalCancelled ApprovalStatus = "CANCELLED"
)

// Decision is the verdict passed to an approval decision.
type Decision string

const (
	DecisionApprove Decision = "APPROVED"
	DecisionReject  Decision = "REJECTED"
)

// Valid reports whether d is a declared decision.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Approval is a gating request that must be decided before a policy becomes
// ACTIVE.
type Approval struct {
	ID          string         `json:"id"`
	PolicyID    string         `json:"policy_id"`
	RequestedBy string         `json:"requested_by"`
	Approver    string         `json:"approver,omitempty"`
	Status      ApprovalStatus `json:"status"`
	RequestedAt time.Time      `json:"requested_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
	Comments    string         `json:"comments,omitempty"`
}

// Clone returns a copy of the approval.
func (a *Approval) Clone() *Approval {
	if a == nil {
		return nil
	}
	c := *a
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}

// AuditAction is the kind of event an audit record describes.
type AuditAction string

const (
	AuditCreate  AuditAction = "CREATE"
	AuditUpdate  AuditAction = "UPDATE"
	AuditDelete  AuditAction = "DELETE"
	AuditExecute AuditAction = "EXECUTE"
	AuditApprove AuditAction = "APPROVE"
	AuditReject  AuditAction = "REJECT"
)

// AuditActions lists every audit action.
var AuditActions = []AuditAction{AuditCreate, AuditUpdate, AuditDelete, AuditExecute, AuditApprove, AuditReject}

// Valid reports whether a is a declared audit action.
func (a AuditAction) Valid() bool {
	return slices.Contains(AuditActions, a)
}

// AuditRecord is an immutable entry in the audit ledger. ID and Timestamp are
// assigned by the ledger on append.
type AuditRecord struct {
	ID        uint64          `json:"id"`
	PolicyID  string          `json:"policy_id,omitempty"`
	Action    AuditAction     `json:"action"`
	Actor     string          `json:"actor"`
	Timestamp time.Time       `json:"timestamp"`
	Details   string          `json:"details,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Clone returns a copy of the record with its own payload buffer.
func (r *AuditRecord) Clone() *AuditRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Payload = slices.Clone(r.Payload)
	return &c
}

// Snapshot encodes v as an audit payload. Encoding failures yield a nil
// payload; the record is still worth keeping without it.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
