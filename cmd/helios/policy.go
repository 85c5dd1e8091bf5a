package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/helios/pkg/cli"
	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/persistence"
	"mercator-hq/helios/pkg/policy/store"
)

var policyFlags struct {
	statuses  []string
	types     []string
	framework string
	owner     string
	text      string
	all       bool
	format    string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect stored policies",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List policies from the persistence backend",
	Long: `Read policies directly from the configured persistence backend without
starting the engine. Only ACTIVE policies are listed unless --all or
--status is given.

Examples:
  # Active policies as a table
  helios policy list --config config.yaml

  # Every draft retention policy as JSON
  helios policy list --status DRAFT --type RETENTION --format json`,
	RunE: listPolicies,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyListCmd)

	policyListCmd.Flags().StringSliceVar(&policyFlags.statuses, "status", nil, "filter by status (repeatable)")
	policyListCmd.Flags().StringSliceVar(&policyFlags.types, "type", nil, "filter by policy type (repeatable)")
	policyListCmd.Flags().StringVar(&policyFlags.framework, "framework", "", "filter by compliance framework")
	policyListCmd.Flags().StringVar(&policyFlags.owner, "owner", "", "filter by owner")
	policyListCmd.Flags().StringVarP(&policyFlags.text, "query", "q", "", "match name or description")
	policyListCmd.Flags().BoolVar(&policyFlags.all, "all", false, "include inactive policies")
	policyListCmd.Flags().StringVarP(&policyFlags.format, "format", "o", "text", "output format: text, json, csv")
}

func listPolicies(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if cmd != nil {
		ctx = cmd.Context()
	}
	backend, err := persistence.Open(ctx, cfg.Persistence)
	if err != nil {
		return cli.NewCommandError("policy list", err)
	}
	defer backend.Close()

	s := store.New()
	if err := s.Load(ctx, backend); err != nil {
		return cli.NewCommandError("policy list", err)
	}

	f := store.Filter{
		Text:            policyFlags.text,
		Framework:       policyFlags.framework,
		Owner:           policyFlags.owner,
		IncludeInactive: policyFlags.all,
	}
	for _, st := range policyFlags.statuses {
		f.Statuses = append(f.Statuses, governance.PolicyStatus(strings.ToUpper(st)))
	}
	for _, t := range policyFlags.types {
		f.Types = append(f.Types, governance.PolicyType(strings.ToUpper(t)))
	}

	return render(cmd, policyFlags.format, cli.PolicyTable(s.List(f)))
}
