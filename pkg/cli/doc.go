/*
Package cli provides helpers shared by the helios commands: output
formatting, exit codes and signal handling.

Output Formatting:

Commands render results as text tables, JSON or CSV. Values implementing
Table render as aligned columns in text mode and as rows in CSV mode:

	formatter, err := cli.NewFormatter(cli.OutputFormat(flags.format))
	if err != nil {
		return err
	}
	return formatter.FormatTo(os.Stdout, cli.PolicyTable(policies))

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
