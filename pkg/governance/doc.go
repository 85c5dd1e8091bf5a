// Package governance defines the domain model shared by every Helios component.
//
// The package contains no behavior beyond validation and copying. It declares
// the entities the engine manages (Policy, Execution, Violation, Approval and
// AuditRecord), their enumerations, the policy status transition table and the
// typed error taxonomy returned from the engine's command surface.
//
// # Ownership
//
// Each entity has exactly one owning component:
//
//   - Policy is owned by the policy store (pkg/policy/store)
//   - Violation is owned by the compliance monitor (pkg/compliance)
//   - Approval is owned by the approval workflow (pkg/approval)
//   - AuditRecord is owned by the audit ledger (pkg/audit)
//
// Owners hand out copies produced by the Clone methods in this package, so a
// caller can never mutate an entity behind its owner's back.
//
// # Status Machine
//
// Policy status follows a fixed table:
//
//	DRAFT -> PENDING_APPROVAL -> ACTIVE <-> SUSPENDED
//	PENDING_APPROVAL -> DRAFT (rejection)
//	any non-terminal -> ARCHIVED
//
// ARCHIVED is terminal. Use CanTransition to consult the table.
//
// # Metadata
//
// Policies and executions carry a free-form Metadata bag. Values are
// validated at the boundary (see Metadata.Validate) and passed through
// opaquely by the rest of the engine.
//
// # Errors
//
// Every error type implements Is against a package sentinel so callers can
// match with errors.Is without depending on the concrete struct:
//
//	if errors.Is(err, governance.ErrNotFound) {
//	    // 404
//	}
package governance
