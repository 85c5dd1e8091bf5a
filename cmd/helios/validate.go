package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/helios/pkg/cli"
	"mercator-hq/helios/pkg/config"
)

var validateFlags struct {
	print bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration file given with --config, apply defaults and
HELIOS_* environment overrides, and report every invalid field.

Examples:
  # Validate a file
  helios validate --config config.yaml

  # Print the effective configuration with secrets masked
  helios validate --config config.yaml --print`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.print, "print", false, "print the effective configuration as YAML")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			w := stdout(cmd)
			fmt.Fprintf(w, "✗ %d invalid field(s)\n", len(verr.Errors))
			for _, fe := range verr.Errors {
				fmt.Fprintf(w, "  - %s\n", fe.Error())
			}
		}
		return cli.NewConfigError("", err.Error())
	}

	if validateFlags.print {
		out, err := yaml.Marshal(masked(cfg))
		if err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		_, err = stdout(cmd).Write(out)
		return err
	}

	fmt.Fprintln(stdout(cmd), "✓ Configuration valid")
	return nil
}

const mask = "********"

// masked returns a copy of cfg with credentials replaced.
func masked(cfg *config.Config) *config.Config {
	c := *cfg
	if c.Persistence.Postgres.DSN != "" {
		c.Persistence.Postgres.DSN = mask
	}
	if c.Transport.Redis.Password != "" {
		c.Transport.Redis.Password = mask
	}
	if len(c.Notification.Webhook.Headers) > 0 {
		headers := make(map[string]string, len(c.Notification.Webhook.Headers))
		for k := range c.Notification.Webhook.Headers {
			headers[k] = mask
		}
		c.Notification.Webhook.Headers = headers
	}
	return &c
}
