package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"immich-takeout/internal/immich"
)

func newPingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the Immich server and API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireRemote(); err != nil {
				return err
			}
			client, err := immich.NewClient(immichConfig(cfg), immich.WithRetryMaxAttempts(1))
			if err != nil {
				return err
			}
			if err := client.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("ping %s: %w", cfg.Immich.URL, err)
			}
			user, err := client.CurrentUser(cmd.Context())
			if err != nil {
				return fmt.Errorf("check api key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server: %s\n", cfg.Immich.URL)
			fmt.Fprintf(out, "User:   %s <%s>\n", user.Name, user.Email)
			fmt.Fprintln(out, "Immich reachable")
			return nil
		},
	}
}
