package tracing

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys in the helios.* namespace.
const (
	AttrPolicyID      = "helios.policy.id"
	AttrPolicyVersion = "helios.policy.version"
	AttrActor         = "helios.actor"
	AttrOutcome       = "helios.execution.outcome"
	AttrCompliant     = "helios.execution.compliant"
	AttrConfidence    = "helios.execution.confidence"
	AttrApprovalID    = "helios.approval.id"
	AttrDecision      = "helios.approval.decision"
	AttrBatchSize     = "helios.scheduler.batch_size"
	AttrQueueDepth    = "helios.scheduler.queue_depth"
)

// PolicyAttributes returns the attributes identifying a policy execution.
func PolicyAttributes(policyID string, version int, actor string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrPolicyID, policyID),
		attribute.Int(AttrPolicyVersion, version),
		attribute.String(AttrActor, actor),
	}
}
