package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/helios/pkg/audit/archive"
	"mercator-hq/helios/pkg/cli"
	"mercator-hq/helios/pkg/governance"
)

var auditFlags struct {
	db       string
	policyID string
	actor    string
	actions  []string
	since    string
	until    string
	limit    int
	offset   int
	format   string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit archive",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search audit records evicted to the SQLite archive",
	Long: `Query the SQLite audit archive. Records are returned newest first.

The archive path defaults to engine.audit.archive.sqlite_path from the
configuration.

Examples:
  # Last 20 records for one policy
  helios audit query --policy p-123 --limit 20

  # Approvals and rejections in January as CSV
  helios audit query --action APPROVE,REJECT \
    --since 2026-01-01T00:00:00Z --until 2026-02-01T00:00:00Z --format csv`,
	RunE: queryAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd)

	auditQueryCmd.Flags().StringVar(&auditFlags.db, "db", "", "archive database path (uses config if not specified)")
	auditQueryCmd.Flags().StringVar(&auditFlags.policyID, "policy", "", "filter by policy id")
	auditQueryCmd.Flags().StringVar(&auditFlags.actor, "actor", "", "filter by actor")
	auditQueryCmd.Flags().StringSliceVar(&auditFlags.actions, "action", nil, "filter by action: CREATE, UPDATE, DELETE, EXECUTE, APPROVE, REJECT")
	auditQueryCmd.Flags().StringVar(&auditFlags.since, "since", "", "earliest timestamp (RFC3339)")
	auditQueryCmd.Flags().StringVar(&auditFlags.until, "until", "", "latest timestamp (RFC3339)")
	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", 100, "maximum records to return")
	auditQueryCmd.Flags().IntVar(&auditFlags.offset, "offset", 0, "records to skip")
	auditQueryCmd.Flags().StringVarP(&auditFlags.format, "format", "o", "text", "output format: text, json, csv")
}

func queryAudit(cmd *cobra.Command, args []string) error {
	path := auditFlags.db
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Engine.Audit.Archive.SQLitePath
	}
	if _, err := os.Stat(path); err != nil {
		return cli.NewCommandError("audit query", fmt.Errorf("audit archive %q: %w", path, err))
	}

	q, err := buildArchiveQuery()
	if err != nil {
		return err
	}

	s, err := archive.NewSQLiteStore(archive.SQLiteConfig{Path: path})
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}
	defer s.Close()

	ctx := context.Background()
	if cmd != nil {
		ctx = cmd.Context()
	}
	records, err := s.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}
	return render(cmd, auditFlags.format, cli.AuditTable(records))
}

func buildArchiveQuery() (*archive.Query, error) {
	if auditFlags.limit < 0 || auditFlags.offset < 0 {
		return nil, fmt.Errorf("--limit and --offset must not be negative")
	}
	q := &archive.Query{
		PolicyID: auditFlags.policyID,
		Actor:    auditFlags.actor,
		Limit:    auditFlags.limit,
		Offset:   auditFlags.offset,
	}
	for _, a := range auditFlags.actions {
		action := governance.AuditAction(strings.ToUpper(strings.TrimSpace(a)))
		if !action.Valid() {
			return nil, fmt.Errorf("unknown audit action %q", a)
		}
		q.Actions = append(q.Actions, action)
	}
	var err error
	if q.Since, err = parseTime("since", auditFlags.since); err != nil {
		return nil, err
	}
	if q.Until, err = parseTime("until", auditFlags.until); err != nil {
		return nil, err
	}
	if q.Since != nil && q.Until != nil && q.Until.Before(*q.Since) {
		return nil, fmt.Errorf("--until must not be before --since")
	}
	return q, nil
}

func parseTime(flag, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return &t, nil
}
