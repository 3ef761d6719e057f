package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' subcommand, which exposes the HTTP control
// API until interrupted.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the HTTP control API",
		Long: `Starts the HTTP API for starting, watching, and cancelling crawl runs.
Only one run is active at a time. SIGTERM cancels the active run and drains
the server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, func(appInstance App) error {
				if err := appInstance.Serve(cmd.Context()); err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int("port", 0, "HTTP listen port")
	bindFlag(cmd.Flags(), "port", "server.port")
	return cmd
}
