// Package commands provides the CLI commands for agentd.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agentd-ai/agentd/internal/logging"
)

var (
	// Version information set at build time
	Version   = "1.0.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	prettyLog bool
)

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "agentd - event-driven agent runtime",
	Long: `agentd runs an agent runtime that turns channel input into planned
workflows: each input is claimed by a session actor, planned into steps,
and executed against a remote tool server, with replies routed back to
the channel that asked.

Run 'agentd serve' to start the runtime.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional; real env always wins.
		godotenv.Load()

		cfg := logging.DefaultConfig()
		cfg.Pretty = prettyLog
		cfg.Level = logging.ParseLevel(logLevel)
		logging.Init(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&prettyLog, "pretty", false, "Human-readable log output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("agentd %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(toolsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
