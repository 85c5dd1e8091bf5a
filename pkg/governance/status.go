package governance

import "slices"

// PolicyStatus is the lifecycle state of a policy.
type PolicyStatus string

const (
	StatusDraft           PolicyStatus = "DRAFT"
	StatusPendingApproval PolicyStatus = "PENDING_APPROVAL"
	StatusActive          PolicyStatus = "ACTIVE"
	StatusSuspended       PolicyStatus = "SUSPENDED"
	StatusArchived        PolicyStatus = "ARCHIVED"
)

// Statuses lists every declared policy status.
var Statuses = []PolicyStatus{
	StatusDraft,
	StatusPendingApproval,
	StatusActive,
	StatusSuspended,
	StatusArchived,
}

// Valid reports whether s is a declared status.
func (s PolicyStatus) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Terminal reports whether no transition leaves s.
func (s PolicyStatus) Terminal() bool {
	return s == StatusArchived
}

// CanTransition reports whether the status table permits from -> to.
func CanTransition(from, to PolicyStatus) bool {
	switch from {
	case StatusDraft:
		return to == StatusPendingApproval || to == StatusArchived
	case StatusPendingApproval:
		return to == StatusActive || to == StatusDraft || to == StatusArchived
	case StatusActive:
		return to == StatusSuspended || to == StatusArchived
	case StatusSuspended:
		return to == StatusActive || to == StatusArchived
	default:
		return false
	}
}

// NextStatuses returns the statuses reachable from s in one step.
func NextStatuses(s PolicyStatus) []PolicyStatus {
	var out []PolicyStatus
	for _, to := range Statuses {
		if CanTransition(s, to) {
			out = append(out, to)
		}
	}
	return out
}

// CanViolationTransition reports whether a violation may move from -> to.
func CanViolationTransition(from, to ViolationStatus) bool {
	switch from {
	case ViolationOpen:
		return to == ViolationInProgress || to == ViolationResolved
	case ViolationInProgress:
		return to == ViolationResolved
	default:
		return false
	}
}
