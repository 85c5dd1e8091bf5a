package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"mercator-hq/helios/pkg/governance"
)

func samplePolicies() PolicyTable {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return PolicyTable{
		{ID: "p1", Name: "PII-Retention", Type: governance.PolicyTypeRetention, Status: governance.StatusActive, Version: 3, RiskClass: governance.RiskElevated, ComplianceFrameworks: []string{"GDPR", "SOC2"}, UpdatedAt: ts},
		{ID: "p2", Name: "Access Review", Type: governance.PolicyTypeAccessControl, Status: governance.StatusDraft, Version: 1, RiskClass: governance.RiskStandard, UpdatedAt: ts},
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"plain value", "test message", "test message\n"},
		{"table", samplePolicies(), "ID  NAME           TYPE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			if err := (&TextFormatter{}).FormatTo(buf, tt.data); err != nil {
				t.Fatalf("FormatTo() error = %v", err)
			}
			if !strings.HasPrefix(buf.String(), tt.want) {
				t.Errorf("FormatTo() = %q, want prefix %q", buf.String(), tt.want)
			}
		})
	}
}

func TestTextFormatter_TableRows(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&TextFormatter{}).FormatTo(buf, samplePolicies()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "GDPR,SOC2") || !strings.Contains(lines[1], "2026-03-01T12:00:00Z") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestJSONFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&JSONFormatter{Indent: true}).FormatTo(buf, samplePolicies()); err != nil {
		t.Fatal(err)
	}
	var out []governance.Policy
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not a JSON array: %v\n%s", err, buf.String())
	}
	if len(out) != 2 || out[0].ID != "p1" {
		t.Errorf("decoded = %+v", out)
	}

	buf.Reset()
	if err := (&JSONFormatter{}).FormatTo(buf, PolicyTable(nil)); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty table = %q, want []", buf.String())
	}
}

func TestCSVFormatter(t *testing.T) {
	records := AuditTable{{
		ID:        7,
		PolicyID:  "p1",
		Action:    governance.AuditUpdate,
		Actor:     "alice",
		Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Details:   "status ACTIVE -> SUSPENDED, paused",
	}}
	buf := &bytes.Buffer{}
	if err := (&CSVFormatter{}).FormatTo(buf, records); err != nil {
		t.Fatal(err)
	}
	want := "ID,TIMESTAMP,POLICY,ACTION,ACTOR,DETAILS\n" +
		`7,2026-03-01T00:00:00Z,p1,UPDATE,alice,"status ACTIVE -> SUSPENDED, paused"` + "\n"
	if buf.String() != want {
		t.Errorf("csv =\n%s\nwant\n%s", buf.String(), want)
	}

	if err := (&CSVFormatter{}).FormatTo(buf, "not a table"); err == nil {
		t.Error("expected error for non-tabular data")
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  OutputFormat
		want    any
		wantErr bool
	}{
		{"", &TextFormatter{}, false},
		{FormatText, &TextFormatter{}, false},
		{FormatJSON, &JSONFormatter{}, false},
		{FormatCSV, &CSVFormatter{}, false},
		{"junit", nil, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f, err := NewFormatter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFormatter(%q) error = %v", tt.format, err)
			}
			if tt.wantErr {
				return
			}
			switch tt.want.(type) {
			case *TextFormatter:
				_, ok := f.(*TextFormatter)
				if !ok {
					t.Errorf("got %T", f)
				}
			case *JSONFormatter:
				if jf, ok := f.(*JSONFormatter); !ok || !jf.Indent {
					t.Errorf("got %T", f)
				}
			case *CSVFormatter:
				if _, ok := f.(*CSVFormatter); !ok {
					t.Errorf("got %T", f)
				}
			}
		})
	}
}
