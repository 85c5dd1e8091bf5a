package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/helios/pkg/audit/archive"
	"mercator-hq/helios/pkg/cli"
	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/persistence"
)

func testCommand() (*cobra.Command, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetContext(context.Background())
	return cmd, buf
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func withConfig(t *testing.T, path string) {
	t.Helper()
	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })
}

func TestVersionCommand(t *testing.T) {
	cmd, buf := testCommand()
	versionCmd.Run(cmd, nil)
	if !strings.HasPrefix(buf.String(), "Helios "+Version) {
		t.Errorf("output = %q", buf.String())
	}
}

func TestValidateConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		withConfig(t, writeConfig(t, "engine:\n  scheduler:\n    interval: 30s\n"))
		validateFlags.print = false
		cmd, buf := testCommand()
		if err := validateConfig(cmd, nil); err != nil {
			t.Fatalf("validateConfig() error = %v", err)
		}
		if !strings.Contains(buf.String(), "Configuration valid") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("invalid", func(t *testing.T) {
		withConfig(t, writeConfig(t, "engine:\n  scheduler:\n    interval: -5s\npersistence:\n  backend: floppy\n"))
		cmd, buf := testCommand()
		err := validateConfig(cmd, nil)
		var cfgErr *cli.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("error = %v, want ConfigError", err)
		}
		if cli.ExitCode(err) != cli.ExitConfig {
			t.Errorf("ExitCode = %d", cli.ExitCode(err))
		}
		if !strings.Contains(buf.String(), "persistence.backend") {
			t.Errorf("output should list the invalid fields: %q", buf.String())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		withConfig(t, filepath.Join(t.TempDir(), "absent.yaml"))
		cmd, _ := testCommand()
		if err := validateConfig(cmd, nil); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("print masks secrets", func(t *testing.T) {
		withConfig(t, writeConfig(t, "transport:\n  redis:\n    addr: localhost:6379\n    password: hunter2\n"))
		validateFlags.print = true
		defer func() { validateFlags.print = false }()
		cmd, buf := testCommand()
		if err := validateConfig(cmd, nil); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(buf.String(), "hunter2") || !strings.Contains(buf.String(), mask) {
			t.Errorf("password not masked:\n%s", buf.String())
		}
	})
}

func TestPolicyList(t *testing.T) {
	dir := t.TempDir()
	backend, err := persistence.NewYAML(dir)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []*governance.Policy{
		{ID: "p-active", Name: "Active retention", Type: governance.PolicyTypeRetention, Status: governance.StatusActive, RiskClass: governance.RiskStandard, Version: 3, CreatedAt: now, UpdatedAt: now},
		{ID: "p-draft", Name: "Draft privacy", Type: governance.PolicyTypePrivacy, Status: governance.StatusDraft, RiskClass: governance.RiskStandard, Version: 1, CreatedAt: now.Add(time.Hour), UpdatedAt: now},
	} {
		if err := backend.Save(context.Background(), p); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	withConfig(t, writeConfig(t, "persistence:\n  backend: yaml\n  yaml:\n    dir: "+dir+"\n"))

	tests := []struct {
		name    string
		setup   func()
		wantIDs []string
	}{
		{"active only by default", func() {}, []string{"p-active"}},
		{"all", func() { policyFlags.all = true }, []string{"p-active", "p-draft"}},
		{"status filter", func() { policyFlags.statuses = []string{"draft"} }, []string{"p-draft"}},
		{"type filter", func() { policyFlags.all = true; policyFlags.types = []string{"privacy"} }, []string{"p-draft"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policyFlags.statuses, policyFlags.types, policyFlags.all = nil, nil, false
			policyFlags.format = "json"
			tt.setup()

			cmd, buf := testCommand()
			if err := listPolicies(cmd, nil); err != nil {
				t.Fatalf("listPolicies() error = %v", err)
			}
			var got []governance.Policy
			if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("bad json: %v\n%s", err, buf.String())
			}
			var ids []string
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}

	policyFlags.format = "yaml"
	cmd, _ := testCommand()
	if err := listPolicies(cmd, nil); err == nil {
		t.Error("expected error for unknown format")
	}
	policyFlags.format = "text"
}

func TestAuditQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := archive.NewSQLiteStore(archive.SQLiteConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	records := []governance.AuditRecord{
		{ID: 1, PolicyID: "p1", Action: governance.AuditCreate, Actor: "alice", Timestamp: base, Details: "created"},
		{ID: 2, PolicyID: "p1", Action: governance.AuditApprove, Actor: "bob", Timestamp: base.Add(time.Hour), Details: "approved"},
		{ID: 3, PolicyID: "p2", Action: governance.AuditCreate, Actor: "alice", Timestamp: base.Add(2 * time.Hour), Details: "created"},
	}
	for _, rec := range records {
		if err := s.Store(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reset := func() {
		auditFlags.db = path
		auditFlags.policyID, auditFlags.actor, auditFlags.since, auditFlags.until = "", "", "", ""
		auditFlags.actions = nil
		auditFlags.limit, auditFlags.offset = 100, 0
		auditFlags.format = "csv"
	}

	t.Run("filter by policy", func(t *testing.T) {
		reset()
		auditFlags.policyID = "p1"
		cmd, buf := testCommand()
		if err := queryAudit(cmd, nil); err != nil {
			t.Fatalf("queryAudit() error = %v", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 3 || !strings.HasPrefix(lines[1], "2,") || !strings.HasPrefix(lines[2], "1,") {
			t.Errorf("csv =\n%s", buf.String())
		}
	})

	t.Run("filter by action and time", func(t *testing.T) {
		reset()
		auditFlags.actions = []string{"create"}
		auditFlags.since = base.Add(30 * time.Minute).Format(time.RFC3339)
		cmd, buf := testCommand()
		if err := queryAudit(cmd, nil); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 2 || !strings.HasPrefix(lines[1], "3,") {
			t.Errorf("csv =\n%s", buf.String())
		}
	})

	t.Run("invalid flags", func(t *testing.T) {
		for _, mutate := range []func(){
			func() { auditFlags.actions = []string{"explode"} },
			func() { auditFlags.since = "yesterday" },
			func() { auditFlags.limit = -1 },
			func() {
				auditFlags.since = base.Format(time.RFC3339)
				auditFlags.until = base.Add(-time.Hour).Format(time.RFC3339)
			},
		} {
			reset()
			mutate()
			cmd, _ := testCommand()
			if err := queryAudit(cmd, nil); err == nil {
				t.Error("expected error")
			}
		}
	})

	t.Run("missing archive", func(t *testing.T) {
		reset()
		auditFlags.db = filepath.Join(t.TempDir(), "absent.db")
		cmd, _ := testCommand()
		if err := queryAudit(cmd, nil); err == nil {
			t.Error("expected error for missing archive")
		}
	})
}

func TestRunDryRun(t *testing.T) {
	withConfig(t, writeConfig(t, "api:\n  listen_address: 127.0.0.1:0\n"))
	runFlags.dryRun = true
	defer func() { runFlags.dryRun = false }()

	cmd, buf := testCommand()
	if err := runEngine(cmd, nil); err != nil {
		t.Fatalf("runEngine() error = %v", err)
	}
	if !strings.Contains(buf.String(), "engine initialized") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRootCommandTree(t *testing.T) {
	want := map[string]bool{"run": false, "validate": false, "policy": false, "audit": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing %q subcommand", name)
		}
	}
}
