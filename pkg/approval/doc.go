// Package approval gates policy activation behind an explicit decision.
//
// A Workflow holds approval requests in memory. At most one PENDING request
// exists per policy. Deciding a request drives the matching policy
// transition (APPROVED -> ACTIVE, REJECTED -> DRAFT) through the policy
// store; if that transition fails the request stays PENDING and the error
// is returned.
//
// A policy can also leave PENDING_APPROVAL without a decision, by being
// archived or deleted. Its request could then never be decided, so the
// engine calls Cancel, which closes it as CANCELLED and frees the policy's
// pending slot.
//
// Requests and decisions for one policy are serialized, so a decision can
// never race a new request or a second decision on the same policy.
package approval
