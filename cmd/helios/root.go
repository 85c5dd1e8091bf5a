package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/helios/pkg/cli"
	"mercator-hq/helios/pkg/config"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "helios",
	Short: "Helios - policy orchestration and compliance monitoring",
	Long: `Helios manages governance policies from draft through approval to
enforcement. Active policies are evaluated on a schedule; non-compliant
results become tracked violations and every change lands in an audit trail.

Configuration is read from the file given with --config and overridden by
HELIOS_* environment variables. Without --config the built-in defaults apply.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the configuration named by --config with environment
// overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	return cfg, nil
}

func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

func render(cmd *cobra.Command, format string, data any) error {
	f, err := cli.NewFormatter(cli.OutputFormat(format))
	if err != nil {
		return err
	}
	if err := f.FormatTo(stdout(cmd), data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
