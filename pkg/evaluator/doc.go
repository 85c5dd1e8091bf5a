// Package evaluator defines the policy evaluation contract and ships a rule
// based implementation.
//
// An Evaluator judges one policy against an evaluation context and reports
// whether it is compliant, with what confidence, and which remediation
// actions apply. The scheduler never calls an evaluator directly: it wraps
// it with WithTimeout, which bounds the call, converts panics into errors
// and tags every failure as a governance.EvaluationError.
//
// # Rule Evaluator
//
// RuleEvaluator interprets rules of kind "condition":
//
//	kind: condition
//	params:
//	  field: encryption.at_rest   # dotted path into the context
//	  operator: eq                # see Operator
//	  value: true
//	  weight: 2                   # optional, default 1
//	  action: encrypt-volume      # optional, reported when the rule fails
//
// A policy is compliant when every condition holds. When it is not, the
// confidence is the share of rule weight that failed; when it is, the
// confidence is 1. Unknown rule kinds and malformed params are evaluation
// errors.
//
// # Context
//
// A ContextProvider supplies the evaluation context. MetadataProvider, the
// default, evaluates a policy against its own metadata bag.
package evaluator
