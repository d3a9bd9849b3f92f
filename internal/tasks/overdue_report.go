package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/export"
	"github.com/mrlokans/librarian/internal/lending"
)

const QueueOverdueReport = "overdue_report"

// OverdueSource lists every lending overdue on a date.
type OverdueSource interface {
	ExportOverdue(ctx context.Context, asOf time.Time) ([]lending.OverdueEntry, error)
}

// ReportAuditor records report generation.
type ReportAuditor interface {
	LogReport(actor audit.Actor, description string, metadata map[string]any, err error)
}

// OverdueReportTask writes the overdue workbook for AsOf (YYYY-MM-DD) into
// the reports directory. An empty AsOf means the day the task runs.
type OverdueReportTask struct {
	AsOf      string `json:"as_of,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	StaffID   uint   `json:"staff_id,omitempty"`
}

func (t OverdueReportTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        QueueOverdueReport,
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     5 * time.Minute,
		Retention: &backlite.Retention{
			Duration: 7 * 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// OverdueReportProcessor creates the processor for OverdueReportTask.
// auditor may be nil.
func OverdueReportProcessor(source OverdueSource, dir string, auditor ReportAuditor) backlite.QueueProcessor[OverdueReportTask] {
	return func(ctx context.Context, task OverdueReportTask) error {
		if source == nil {
			return fmt.Errorf("overdue source not configured")
		}

		var asOf time.Time
		if task.AsOf != "" {
			parsed, err := time.Parse(time.DateOnly, task.AsOf)
			if err != nil {
				// retrying cannot fix a malformed date
				log.Printf("[TASK ERROR] Invalid as_of %q for overdue report: %v", task.AsOf, err)
				return nil
			}
			asOf = parsed
		}

		path, count, err := GenerateOverdueReport(ctx, source, dir, asOf)
		if auditor != nil {
			meta := map[string]any{"as_of": task.AsOf, "entries": count, "path": path}
			auditor.LogReport(audit.Actor{StaffID: task.StaffID, RequestID: task.RequestID}, "Overdue report generated", meta, err)
		}
		if err != nil {
			return fmt.Errorf("overdue report: %w", err)
		}

		log.Printf("[TASK] Wrote overdue report with %d entries to %s", count, path)
		return nil
	}
}

// GenerateOverdueReport writes the workbook for asOf (zero means today) and
// returns its path and the number of overdue lendings.
func GenerateOverdueReport(ctx context.Context, source OverdueSource, dir string, asOf time.Time) (string, int, error) {
	entries, err := source.ExportOverdue(ctx, asOf)
	if err != nil {
		return "", 0, err
	}
	if asOf.IsZero() {
		asOf = lending.AsOfDate(time.Now())
	}
	path, err := export.SaveOverdue(dir, entries, asOf)
	if err != nil {
		return "", len(entries), err
	}
	return path, len(entries), nil
}

// NewOverdueReportQueue creates a backlite queue for overdue reports.
func NewOverdueReportQueue(source OverdueSource, dir string, auditor ReportAuditor) backlite.Queue {
	return backlite.NewQueue(OverdueReportProcessor(source, dir, auditor))
}
