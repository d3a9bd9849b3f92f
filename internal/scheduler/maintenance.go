// Package scheduler enqueues periodic background tasks on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"

	"github.com/mrlokans/librarian/internal/tasks"
)

const (
	DefaultOverdueReportSchedule = "0 6 * * *"
	DefaultAuditCleanupSchedule  = "30 3 * * *"
)

// Enqueuer adds a task to the background queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
}

// Config selects the schedules. An empty schedule disables that job.
type Config struct {
	OverdueReport string
	AuditCleanup  string
	// Cleanup passes these through; zero takes the task defaults.
	AuditRetentionDays       int
	CirculationRetentionDays int
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a standard five-field cron expression.
func ValidateSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// MaintenanceScheduler enqueues the overdue report and the audit cleanup.
// Jobs only enqueue; the task queue does the work.
type MaintenanceScheduler struct {
	queue  Enqueuer
	config Config

	cron      *cron.Cron
	entries   map[string]cron.EntryID
	mu        sync.RWMutex
	isRunning bool
	cancel    context.CancelFunc
}

func NewMaintenanceScheduler(queue Enqueuer, cfg Config) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		queue:   queue,
		config:  cfg,
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers the configured jobs and starts the cron loop. The
// scheduler stops when ctx is cancelled.
func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	jobs := []struct {
		name     string
		schedule string
		task     func() backlite.Task
	}{
		{tasks.QueueOverdueReport, s.config.OverdueReport, func() backlite.Task {
			return tasks.OverdueReportTask{}
		}},
		{tasks.QueueCleanupAuditEvents, s.config.AuditCleanup, func() backlite.Task {
			return tasks.CleanupAuditEventsTask{
				RetentionDays:            s.config.AuditRetentionDays,
				CirculationRetentionDays: s.config.CirculationRetentionDays,
			}
		}},
	}

	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		if err := ValidateSchedule(job.schedule); err != nil {
			return fmt.Errorf("invalid cron schedule '%s' for %s: %w", job.schedule, job.name, err)
		}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	for _, job := range jobs {
		if job.schedule == "" {
			log.Printf("[SCHEDULER] %s: disabled", job.name)
			continue
		}
		name, newTask := job.name, job.task
		id, err := s.cron.AddFunc(job.schedule, func() { s.enqueue(jobCtx, name, newTask()) })
		if err != nil {
			cancel()
			return fmt.Errorf("failed to schedule %s: %w", name, err)
		}
		s.entries[name] = id
	}

	s.cancel = cancel
	s.cron.Start()
	s.isRunning = true

	for name, id := range s.entries {
		log.Printf("[SCHEDULER] %s: next run %v", name, s.cron.Entry(id).Next)
	}

	go func(done <-chan struct{}) {
		<-done
		s.Stop()
	}(jobCtx.Done())

	return nil
}

// Stop waits for running jobs and stops the scheduler.
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	<-s.cron.Stop().Done()
	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	s.cancel()
	s.isRunning = false

	log.Printf("[SCHEDULER] stopped")
}

// IsRunning returns whether the scheduler is active
func (s *MaintenanceScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns when the named job runs next, or nil when it is not scheduled.
func (s *MaintenanceScheduler) NextRun(job string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entries[job]
	if !s.isRunning || !ok {
		return nil
	}
	next := s.cron.Entry(id).Next
	return &next
}

func (s *MaintenanceScheduler) enqueue(ctx context.Context, name string, task backlite.Task) {
	id, err := s.queue.Enqueue(ctx, task)
	if err != nil {
		log.Printf("[SCHEDULER] failed to enqueue %s: %v", name, err)
		return
	}
	log.Printf("[SCHEDULER] enqueued %s as %s", name, id)
}
