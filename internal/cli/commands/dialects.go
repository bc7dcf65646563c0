package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewDialectsCommand creates the dialects command.
func NewDialectsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List registered dialects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := app.load()
			if err != nil {
				return err
			}
			registry := newRegistry(cfg, logger)

			out := cmd.OutOrStdout()
			for _, name := range registry.Dialects() {
				marker := ""
				if strings.EqualFold(name, cfg.Parsing.DefaultDialect) {
					marker = " (default)"
				}
				fmt.Fprintf(out, "%s%s\n", name, marker)
			}
			return nil
		},
	}
}
