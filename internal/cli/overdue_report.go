package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entrypoint"
	"github.com/mrlokans/librarian/internal/tasks"
)

// OverdueReportCommand writes the overdue workbook without the server.
type OverdueReportCommand struct {
	AsOf         string
	OutputDir    string
	DatabasePath string

	config *config.Config
}

func NewOverdueReportCommand(cfg *config.Config) *OverdueReportCommand {
	return &OverdueReportCommand{config: cfg}
}

func (cmd *OverdueReportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("overdue-report", flag.ContinueOnError)

	fs.StringVar(&cmd.AsOf, "as-of", "", "Report date as YYYY-MM-DD (default today)")
	fs.StringVar(&cmd.OutputDir, "output", cmd.config.Reports.Dir, "Directory the workbook is written to")
	fs.StringVar(&cmd.DatabasePath, "db", cmd.config.Database.Path, "Path to the SQLite database (ignored for postgres)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s overdue-report [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Write an .xlsx report of every lending overdue on a date.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s overdue-report -as-of 2024-05-01 -output ./reports\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.AsOf != "" {
		if _, err := time.Parse(time.DateOnly, cmd.AsOf); err != nil {
			return fmt.Errorf("invalid -as-of %q: expected YYYY-MM-DD", cmd.AsOf)
		}
	}
	if cmd.OutputDir == "" {
		return fmt.Errorf("required flag -output not provided")
	}
	return nil
}

func (cmd *OverdueReportCommand) Run(ctx context.Context) error {
	var asOf time.Time
	if cmd.AsOf != "" {
		asOf, _ = time.Parse(time.DateOnly, cmd.AsOf)
	}

	cfg := *cmd.config
	if cmd.DatabasePath != "" {
		cfg.Database.Path = cmd.DatabasePath
	}

	core, err := entrypoint.OpenCore(&cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	path, count, err := tasks.GenerateOverdueReport(ctx, core.Lendings, cmd.OutputDir, asOf)
	core.Audit.LogReport(audit.Actor{}, "Overdue report generated from CLI",
		map[string]any{"as_of": cmd.AsOf, "entries": count, "path": path}, err)
	if err != nil {
		return fmt.Errorf("failed to generate overdue report: %w", err)
	}

	fmt.Printf("Wrote %d overdue lendings to %s\n", count, path)
	return nil
}
