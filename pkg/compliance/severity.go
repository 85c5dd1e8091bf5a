package compliance

import (
	"strings"

	"mercator-hq/helios/pkg/config"
	"mercator-hq/helios/pkg/governance"
)

// Thresholds maps confidence to severity for one risk class. A confidence at
// or above a threshold yields that severity; anything below Medium is LOW.
type Thresholds struct {
	Critical float64
	High     float64
	Medium   float64
}

// DefaultThresholds is the row used for every risk class without an
// override.
var DefaultThresholds = Thresholds{
	Critical: config.DefaultThresholdCritical,
	High:     config.DefaultThresholdHigh,
	Medium:   config.DefaultThresholdMedium,
}

// Severity classifies confidence against the row.
func (t Thresholds) Severity(confidence float64) governance.Severity {
	switch {
	case confidence >= t.Critical:
		return governance.SeverityCritical
	case confidence >= t.High:
		return governance.SeverityHigh
	case confidence >= t.Medium:
		return governance.SeverityMedium
	default:
		return governance.SeverityLow
	}
}

// Table selects a Thresholds row per risk class. The zero value uses
// DefaultThresholds for every class.
type Table struct {
	Default   Thresholds
	Overrides map[governance.RiskClass]Thresholds
}

// NewTable builds a table from configuration.
func NewTable(cfg config.ComplianceConfig) Table {
	t := Table{Default: fromConfig(cfg.DefaultThresholds)}
	if t.Default == (Thresholds{}) {
		t.Default = DefaultThresholds
	}
	if len(cfg.Thresholds) > 0 {
		t.Overrides = make(map[governance.RiskClass]Thresholds, len(cfg.Thresholds))
		for class, row := range cfg.Thresholds {
			t.Overrides[governance.RiskClass(strings.ToUpper(class))] = fromConfig(row)
		}
	}
	return t
}

// Row returns the thresholds applied to class.
func (t Table) Row(class governance.RiskClass) Thresholds {
	if row, ok := t.Overrides[class]; ok {
		return row
	}
	if t.Default == (Thresholds{}) {
		return DefaultThresholds
	}
	return t.Default
}

// Severity maps (risk class, confidence) to a severity. It is a pure
// function of its inputs.
func (t Table) Severity(class governance.RiskClass, confidence float64) governance.Severity {
	return t.Row(class).Severity(confidence)
}

func fromConfig(c config.ThresholdConfig) Thresholds {
	return Thresholds{Critical: c.Critical, High: c.High, Medium: c.Medium}
}
