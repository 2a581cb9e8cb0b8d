package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:   "immich-takeout [flags] ARCHIVE...",
		Short: "Upload Google Takeout archives to Immich",
		Long: "Reads Google Takeout tar archives, pairs every photo and video with its JSON\n" +
			"sidecar (even across archives), restores capture time and location, and\n" +
			"uploads the result to an Immich server.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runImport(cmd, ctx, args)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	pf.StringVar(&flags.apiKey, "api-key", "", "Immich API key")
	pf.StringVar(&flags.apiURL, "api-url", "", "Immich server URL, e.g. http://immich:2283")
	pf.StringVar(&flags.deviceID, "device-id", "", "Device id reported with every upload")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format (console, json)")

	f := rootCmd.Flags()
	f.BoolVar(&flags.dryRun, "dry-run", false, "Match and patch everything but upload nothing")
	f.StringVar(&flags.reportPath, "report", "", "Write a per-file report to this path")
	f.StringVar(&flags.reportFormat, "report-format", "", "Report format (csv, json, yaml)")
	f.BoolVar(&flags.resume, "resume", false, "Skip entries uploaded by earlier runs")
	f.StringVar(&flags.statePath, "state-path", "", "Resume database path (implies --resume)")
	f.BoolVar(&flags.includeUnmatched, "include-unmatched", false, "Upload media that has no sidecar")
	f.BoolVar(&flags.includePartnerShared, "include-partner-shared", false, "Upload items received through partner sharing")
	f.BoolVar(&flags.failFast, "fail-fast", false, "Stop at the first failed upload")
	f.BoolVar(&flags.noProgress, "no-progress", false, "Disable progress bars")

	rootCmd.AddCommand(newPingCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
