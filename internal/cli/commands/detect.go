package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plc-visualizer/logparse/internal/parser"
)

// DetectOptions holds command-line options for the detect command.
type DetectOptions struct {
	Output string
}

type detectResult struct {
	File    string `json:"file"`
	Dialect string `json:"dialect,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewDetectCommand creates the detect command.
func NewDetectCommand(app *App) *cobra.Command {
	opts := &DetectOptions{}

	cmd := &cobra.Command{
		Use:   "detect <log-file>...",
		Short: "Detect the dialect of log files",
		Long: `Sample the first non-blank lines of each file and report the first
registered dialect that recognises them.

Exit status is 2 if any file matched no dialect.

Example:
  plclog detect plc.log
  plclog detect -o json a.log b.log`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, args, app, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")

	return cmd
}

func runDetect(cmd *cobra.Command, args []string, app *App, opts *DetectOptions) error {
	if opts.Output != "text" && opts.Output != "json" {
		return fmt.Errorf("unknown output %q (want text or json)", opts.Output)
	}

	cfg, logger, err := app.load()
	if err != nil {
		return err
	}
	registry := newRegistry(cfg, logger)

	results := make([]detectResult, 0, len(args))
	for _, path := range args {
		r := detectResult{File: path}
		name, err := registry.Detect(path)
		switch {
		case err == nil:
			r.Dialect = name
		case errors.Is(err, parser.ErrNoDialect):
			r.Error = "no matching dialect"
			app.setExit(ExitFatal)
		default:
			r.Error = err.Error()
			app.setExit(ExitFatal)
		}
		results = append(results, r)
	}

	out := cmd.OutOrStdout()
	if opts.Output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(out, "%s: %s\n", r.File, r.Error)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", r.File, r.Dialect)
	}
	return nil
}
