package tasks

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/audit"
)

const (
	QueueCleanupAuditEvents = "cleanup_audit_events"

	DefaultAuditRetentionDays       = 90
	DefaultCirculationRetentionDays = 365
)

// AuditEventCleaner purges audit events past their retention.
type AuditEventCleaner interface {
	Purge(policy audit.Retention) (audit.PurgeResult, error)
}

// CleanupAuditEventsTask purges old audit events. Checkout and return events
// follow CirculationRetentionDays, the rest RetentionDays. Zero means the
// default.
type CleanupAuditEventsTask struct {
	RetentionDays            int `json:"retention_days"`
	CirculationRetentionDays int `json:"circulation_retention_days,omitempty"`
}

// Policy resolves the task's retention, filling in defaults.
func (t CleanupAuditEventsTask) Policy() audit.Retention {
	return audit.Retention{
		Default:     days(t.RetentionDays, DefaultAuditRetentionDays),
		Circulation: days(t.CirculationRetentionDays, DefaultCirculationRetentionDays),
	}
}

func days(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * 24 * time.Hour
}

func (t CleanupAuditEventsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        QueueCleanupAuditEvents,
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

var errNoCleaner = errors.New("audit event cleaner not configured")

func CleanupAuditEventsProcessor(cleaner AuditEventCleaner) backlite.QueueProcessor[CleanupAuditEventsTask] {
	return func(ctx context.Context, task CleanupAuditEventsTask) error {
		if cleaner == nil {
			return errNoCleaner
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		policy := task.Policy()
		res, err := cleaner.Purge(policy)
		if err != nil {
			return err
		}

		log.Printf("[TASK] Purged %d audit events (%d circulation); retention %s, circulation %s",
			res.Total(), res.Circulation, policy.Default, max(policy.Circulation, policy.Default))
		return nil
	}
}

func NewCleanupAuditEventsQueue(cleaner AuditEventCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupAuditEventsProcessor(cleaner))
}
