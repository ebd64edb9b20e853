package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X .../cmd.Version=v1.0.0"
var Version = "dev"

var (
	flagHost string
	flagPort int
	flagHome string
)

var rootCmd = &cobra.Command{
	Use:   "agentworker",
	Short: "agentworker — daemon coordinator for concurrent conversational agents",
	Long:  "agentworker runs a long-lived daemon that hosts concurrent conversational agents behind an HTTP control plane, each with its own turn-loop, wakeup schedule, and shared workflow context.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "bind host (default 127.0.0.1, or $AGENTWORKER_HOST)")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "bind port (default 8787, or $AGENTWORKER_PORT)")
	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "daemon home directory (default ~/.agent-worker, or $AGENTWORKER_HOME)")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(migrateCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("agentworker %s\n", Version)
		},
	}
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
