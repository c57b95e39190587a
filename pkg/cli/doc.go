/*
Package cli provides helpers shared by the quota command.

Output Formatting:

Results are printed as text or JSON. Types that implement TextWriter
render their own text form:

	format, err := cli.ParseOutputFormat(flagValue)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, report)

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr, "sessions")
	progress.Start(total)
	progress.Add(1)
	progress.Finish()

Errors and Exit Codes:

ConfigError and config.ValidationError map to ExitConfig, every other
error to ExitFailure.

Signal Handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
