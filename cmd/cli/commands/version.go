package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../commands.Version=..."
var Version = "dev"

var checkServer bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("procurement-cli %s\n", Version)
		if !checkServer {
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := newClient().HealthCheck(ctx); err != nil {
			return fmt.Errorf("API health check failed: %w", err)
		}
		fmt.Println("✅ API server is reachable")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&checkServer, "check", false, "Also check that the API server is healthy")
}
