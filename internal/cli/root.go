// Package cli provides the plclog command-line interface.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/plc-visualizer/logparse/internal/cli/commands"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Execute runs the root command against os.Args and returns the exit code.
func Execute() int {
	return Run(os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes plclog with args and returns the exit code: 0 for a clean
// run, 1 when a parse produced line errors, 2 for fatal errors.
func Run(args []string, stdout, stderr io.Writer) int {
	app := commands.NewApp(Version)
	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		// SilenceErrors keeps cobra from printing this itself
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return commands.ExitFatal
	}
	return app.ExitCode()
}

// NewRootCommand creates the root cobra command.
func NewRootCommand(app *commands.App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "plclog",
		Short: "Parse PLC debug logs into signal transitions",
		Long: `plclog parses PLC debug logs into typed signal transitions.

Each line becomes an entry keyed by "<device>::<signal>". Large files are
split into chunks and parsed in parallel; the output keeps file order.

Dialects:
  plc_debug   bracketed debug lines (default)
  plc_tab     tab-separated lines
  csv_signal  timestamp,device,signal,value rows
  auto        detect from the first lines of the file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&app.ConfigPath, "config", "c", "", "YAML config file (created with defaults if missing)")
	flags.StringVar(&app.LogLevel, "log-level", "", "Log level (debug|info|warn|error); overrides the config")
	flags.BoolVar(&app.LogJSON, "log-json", false, "Log as JSON instead of text")

	rootCmd.AddCommand(commands.NewParseCommand(app))
	rootCmd.AddCommand(commands.NewDetectCommand(app))
	rootCmd.AddCommand(commands.NewDialectsCommand(app))
	rootCmd.AddCommand(commands.NewServeCommand(app))
	rootCmd.AddCommand(commands.NewVersionCommand(app))

	return rootCmd
}
