package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entrypoint"
	"github.com/mrlokans/librarian/internal/tasks"
)

// PurgeAuditCommand applies the audit retention once, outside the queue.
type PurgeAuditCommand struct {
	Retention    tasks.CleanupAuditEventsTask
	DatabasePath string

	config *config.Config
}

func NewPurgeAuditCommand(cfg *config.Config) *PurgeAuditCommand {
	return &PurgeAuditCommand{config: cfg}
}

func (cmd *PurgeAuditCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("purge-audit", flag.ContinueOnError)

	fs.IntVar(&cmd.Retention.RetentionDays, "retention-days", cmd.config.Audit.RetentionDays,
		"Days to keep audit events other than checkouts and returns")
	fs.IntVar(&cmd.Retention.CirculationRetentionDays, "circulation-retention-days", cmd.config.Audit.CirculationRetentionDays,
		"Days to keep checkout and return events")
	fs.StringVar(&cmd.DatabasePath, "db", cmd.config.Database.Path, "Path to the SQLite database (ignored for postgres)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s purge-audit [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Delete audit events past their retention.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.Retention.RetentionDays < 0 || cmd.Retention.CirculationRetentionDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}
	return nil
}

func (cmd *PurgeAuditCommand) Run() error {
	cfg := *cmd.config
	if cmd.DatabasePath != "" {
		cfg.Database.Path = cmd.DatabasePath
	}

	core, err := entrypoint.OpenCore(&cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	policy := cmd.Retention.Policy()
	res, err := core.Audit.Purge(policy)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d audit events (%d checkouts and returns)\n", res.Total(), res.Circulation)
	return nil
}
