package cli

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"mercator-hq/helios/pkg/governance"
)

// PolicyTable renders policies. It marshals as the underlying slice.
type PolicyTable []*governance.Policy

func (t PolicyTable) Header() []string {
	return []string{"ID", "NAME", "TYPE", "STATUS", "VERSION", "RISK", "FRAMEWORKS", "UPDATED"}
}

func (t PolicyTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, p := range t {
		rows = append(rows, []string{
			p.ID,
			p.Name,
			string(p.Type),
			string(p.Status),
			strconv.FormatInt(p.Version, 10),
			string(p.RiskClass),
			strings.Join(p.ComplianceFrameworks, ","),
			p.UpdatedAt.Format(time.RFC3339),
		})
	}
	return rows
}

func (t PolicyTable) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]*governance.Policy(t))
}

// AuditTable renders audit records.
type AuditTable []governance.AuditRecord

func (t AuditTable) Header() []string {
	return []string{"ID", "TIMESTAMP", "POLICY", "ACTION", "ACTOR", "DETAILS"}
}

func (t AuditTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			strconv.FormatUint(r.ID, 10),
			r.Timestamp.Format(time.RFC3339),
			r.PolicyID,
			string(r.Action),
			r.Actor,
			r.Details,
		})
	}
	return rows
}

func (t AuditTable) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]governance.AuditRecord(t))
}
