package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/plc-visualizer/logparse/internal/export"
	"github.com/plc-visualizer/logparse/internal/models"
	"github.com/plc-visualizer/logparse/internal/parser"
	"github.com/plc-visualizer/logparse/internal/store"
)

// ParseOptions holds command-line options for the parse command.
type ParseOptions struct {
	Dialect     string
	Workers     int
	Format      string
	Output      string
	DBPath      string
	Merge       bool
	Indent      bool
	MaxErrors   int
	DedupeDelta time.Duration
}

// NewParseCommand creates the parse command.
func NewParseCommand(app *App) *cobra.Command {
	opts := &ParseOptions{}

	cmd := &cobra.Command{
		Use:   "parse <log-file>...",
		Short: "Parse one or more PLC log files",
		Long: `Parse PLC log files and print the result.

Formats:
  summary   entry, signal and error counts plus the first errors (default)
  json      the full result as JSON
  msgpack   the full result as MessagePack

Several files are parsed one after another. With --merge they are combined
into one result ordered by timestamp.

Exit status is 0 for a clean parse, 1 when lines failed to parse and 2
when a file could not be parsed at all.

Example:
  plclog parse plc.log
  plclog parse -d auto -w 8 --format json plc.log > plc.json
  plclog parse --merge --db plc.duckdb a.log b.log.gz`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, args, app, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "", "Dialect name or \"auto\" (default from config)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "Parallel chunk workers (default from config)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "summary", "Output format (summary|json|msgpack)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Write output to file instead of stdout")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "Also save entries and signals to this DuckDB file")
	cmd.Flags().BoolVar(&opts.Merge, "merge", false, "Merge all files into one result")
	cmd.Flags().BoolVar(&opts.Indent, "indent", false, "Indent JSON output")
	cmd.Flags().IntVar(&opts.MaxErrors, "max-errors", 10, "Errors listed per file in summary output")
	cmd.Flags().DurationVar(&opts.DedupeDelta, "dedupe-window", 0, "With --merge, drop same-value repeats of a signal within this window")

	return cmd
}

func runParse(cmd *cobra.Command, args []string, app *App, opts *ParseOptions) error {
	switch opts.Format {
	case "summary", "json", "msgpack":
	default:
		return fmt.Errorf("unknown format %q (want summary, json or msgpack)", opts.Format)
	}

	cfg, logger, err := app.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dialect := opts.Dialect
	if dialect == "" {
		dialect = cfg.Parsing.DefaultDialect
	}
	workers := opts.Workers
	if workers == 0 {
		workers = cfg.Parsing.Workers
	}
	if workers < 0 {
		return fmt.Errorf("--workers must be positive, got %d", workers)
	}

	registry := newRegistry(cfg, logger)

	results := make([]models.ParseResult, 0, len(args))
	for _, path := range args {
		res := registry.Parse(path, dialect, workers)
		logger.Debug("parsed",
			"path", path,
			"success", res.Success,
			"entries", entryCount(res),
			"errors", len(res.Errors),
		)
		results = append(results, res)
	}
	if opts.Merge && len(results) > 1 {
		results = []models.ParseResult{
			parser.MergeResults(results, parser.MergeConfig{DedupeWindow: opts.DedupeDelta}),
		}
	}

	if opts.DBPath != "" {
		if err := saveResults(ctx, opts.DBPath, results, opts.Merge && len(args) > 1); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	for _, res := range results {
		if err := writeResult(out, res, opts); err != nil {
			return err
		}
		app.setExit(resultExit(res))
	}
	return nil
}

func writeResult(w io.Writer, res models.ParseResult, opts *ParseOptions) error {
	switch opts.Format {
	case "json":
		return export.WriteJSON(w, res, opts.Indent)
	case "msgpack":
		return export.WriteMsgpack(w, res)
	default:
		return writeSummary(w, res, opts.MaxErrors)
	}
}

func writeSummary(w io.Writer, res models.ParseResult, maxErrors int) error {
	var b strings.Builder
	name := res.FilePath
	if name == "" {
		name = "(merged)"
	}
	fmt.Fprintf(&b, "=== %s ===\n", name)
	if res.Dialect != "" {
		fmt.Fprintf(&b, "Dialect:  %s\n", res.Dialect)
	}
	if !res.Success {
		b.WriteString("Status:   failed\n")
	} else {
		d := res.Data
		fmt.Fprintf(&b, "Entries:  %d\n", d.EntryCount)
		fmt.Fprintf(&b, "Signals:  %d\n", d.Signals.Len())
		fmt.Fprintf(&b, "Devices:  %d\n", len(d.Devices))
		if d.TimeRange != nil {
			fmt.Fprintf(&b, "Range:    %s .. %s\n",
				d.TimeRange.Start.Format(time.RFC3339Nano),
				d.TimeRange.End.Format(time.RFC3339Nano))
		}
	}
	fmt.Fprintf(&b, "Errors:   %d\n", len(res.Errors))
	for i, e := range res.Errors {
		if maxErrors >= 0 && i >= maxErrors {
			fmt.Fprintf(&b, "  ... %d more\n", len(res.Errors)-i)
			break
		}
		fmt.Fprintf(&b, "  %s\n", e.String())
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// saveResults stores every successful result. Merged output is saved under
// the "merged" source ID, single files under their path.
func saveResults(ctx context.Context, dbPath string, results []models.ParseResult, merged bool) error {
	ds, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer ds.Close()

	for _, res := range results {
		if !res.Success {
			continue
		}
		sourceID := res.FilePath
		if merged || sourceID == "" {
			sourceID = "merged"
		}
		if err := ds.Save(ctx, sourceID, res.Data); err != nil {
			return fmt.Errorf("failed to save %s: %w", sourceID, err)
		}
	}
	return nil
}

func resultExit(res models.ParseResult) int {
	switch {
	case !res.Success:
		return ExitFatal
	case res.HasErrors():
		return ExitLineErrors
	default:
		return ExitOK
	}
}

func entryCount(res models.ParseResult) int {
	if res.Data == nil {
		return 0
	}
	return res.Data.EntryCount
}
