package store

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"mercator-hq/helios/pkg/governance"
)

// Filter selects policies in List. Zero-value fields match everything,
// except status: with no Statuses and IncludeInactive unset only ACTIVE
// policies are returned.
type Filter struct {
	// Text matches a substring of name or description.
	Text string `json:"text,omitempty"`

	Statuses []governance.PolicyStatus `json:"statuses,omitempty"`
	Types    []governance.PolicyType   `json:"types,omitempty"`

	// Framework requires membership in the policy's compliance frameworks.
	Framework string `json:"framework,omitempty"`

	Owner string `json:"owner,omitempty"`

	IncludeInactive bool `json:"include_inactive,omitempty"`
}

type matcher struct {
	f        Filter
	text     string
	statuses []governance.PolicyStatus
}

func newMatcher(f Filter) matcher {
	m := matcher{f: f, statuses: f.Statuses}
	if len(m.statuses) == 0 && !f.IncludeInactive {
		m.statuses = []governance.PolicyStatus{governance.StatusActive}
	}
	if t := strings.TrimSpace(f.Text); t != "" {
		m.text = foldText(t)
	}
	return m
}

func (m matcher) match(p *governance.Policy) bool {
	if len(m.statuses) > 0 && !slices.Contains(m.statuses, p.Status) {
		return false
	}
	if len(m.f.Types) > 0 && !slices.Contains(m.f.Types, p.Type) {
		return false
	}
	if m.f.Framework != "" && !p.HasFramework(m.f.Framework) {
		return false
	}
	if m.f.Owner != "" && !strings.EqualFold(m.f.Owner, p.Owner) {
		return false
	}
	if m.text != "" {
		if !strings.Contains(foldText(p.Name), m.text) && !strings.Contains(foldText(p.Description), m.text) {
			return false
		}
	}
	return true
}

// foldText returns the NFC-normalized, case-folded form of s. A Caser holds
// state, so one is built per call.
func foldText(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}
