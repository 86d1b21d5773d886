package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP service",
		Long: `Serves the stage, status, and brief download endpoints and runs the stage
workers until SIGINT or SIGTERM.`,
		RunE: withApp(func(cmd *cobra.Command, app App) error {
			if err := app.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run server: %w", err)
			}
			return nil
		}),
	}
}
