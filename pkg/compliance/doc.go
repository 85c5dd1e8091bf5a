// Package compliance turns non-compliant executions into tracked violations.
//
// Severity is derived from the policy's risk class and the evaluator's
// confidence through a threshold Table. The Monitor keeps a bounded view of
// recent violations (oldest evicted first) and drives their status through
// OPEN -> IN_PROGRESS -> RESOLVED. Full history lives in the audit ledger.
package compliance
