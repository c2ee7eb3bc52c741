package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ivkov/inboxtriage/internal/logging"
)

var (
	configPath string
	debugMode  bool
	jsonLogs   bool
)

// rootCmd represents the base command for the inboxtriage application
var rootCmd = &cobra.Command{
	Use:   "inboxtriage",
	Short: "Triages meeting-related Gmail messages with hosted models",
	Long: `inboxtriage polls your Gmail inbox for unread messages, classifies them
with a fast hosted model and analyzes meeting requests with a deeper one.
Complete requests get a templated confirmation reply, incomplete ones a
request for the missing details, and risky or ambiguous ones are starred
for human review. Every outcome is written to an audit log.

It can run as:
  - A one-shot CLI processing a single batch (process)
  - A long-running service with a REST API and background polling (serve)`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(debugMode, jsonLogs)
	},
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxtriage version %s\n" .Version}}`)

	// If no subcommand is provided, run a single processing cycle
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "process")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")

	rootCmd.AddCommand(newProcessCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
}
