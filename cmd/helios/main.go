// Helios is a policy orchestration and compliance monitoring engine.
//
// It keeps a catalogue of governance policies, drives them through an
// approval workflow, evaluates active policies on a schedule, records
// violations and keeps an audit trail of every change.
//
// Usage:
//
//	# Start the engine and its HTTP API with default configuration
//	helios run
//
//	# Start with a configuration file (hot-reloaded on change)
//	helios run --config /etc/helios/config.yaml
//
//	# Check a configuration file
//	helios validate --config config.yaml
//
//	# List stored policies without starting the engine
//	helios policy list --all --format json
//
//	# Search the audit archive
//	helios audit query --policy p-123 --since 2026-01-01T00:00:00Z
//
//	# Show version information
//	helios version
package main

import (
	"fmt"
	"os"

	"mercator-hq/helios/pkg/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
