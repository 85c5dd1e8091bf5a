package eventbus

import "time"

// Kind names an event type.
type Kind string

const (
	PolicyExecuted             Kind = "PolicyExecuted"
	ViolationDetected          Kind = "ViolationDetected"
	ApprovalDecided            Kind = "ApprovalDecided"
	ComplianceScoreChanged     Kind = "ComplianceScoreChanged"
	OrchestrationStatusChanged Kind = "OrchestrationStatusChanged"
	PolicyChanged              Kind = "PolicyChanged"
)

// Kinds lists every event kind.
var Kinds = []Kind{
	PolicyExecuted,
	ViolationDetected,
	ApprovalDecided,
	ComplianceScoreChanged,
	OrchestrationStatusChanged,
	PolicyChanged,
}

// Valid reports whether k is a declared kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is one state-change notification. Payload is owned by the event and
// must not be mutated after publishing.
type Event struct {
	Seq       uint64    `json:"seq"`
	Kind      Kind      `json:"kind"`
	PolicyID  string    `json:"policy_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// ScoreChange is the payload of ComplianceScoreChanged.
type ScoreChange struct {
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
}

// PolicyChange is the payload of PolicyChanged.
type PolicyChange struct {
	Action string `json:"action"`
	Actor  string `json:"actor"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Policy any    `json:"policy,omitempty"`
}
