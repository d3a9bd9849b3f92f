// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - CatalogStore: Records, copies and categories (internal/http/stores.go)
//   - BorrowerStore: Borrower accounts (internal/http/stores.go)
//   - Ledger: Atomic checkout and return (internal/lending/service.go)
//   - Reports: Joined lending reads (internal/lending/service.go)
//
// ## Service Interfaces
//
//   - LendingService: Lending workflow and classification (internal/http/stores.go)
//   - EventLogger / AuditReader: Audit trail (internal/http/stores.go)
//   - Auditor: Staff login and account events (internal/auth/handlers.go)
//
// ## Background Work
//
//   - TaskQueue / Pinger: backlite queue access (internal/http/tasks.go, internal/http/health.go)
//   - Enqueuer: Scheduled maintenance (internal/scheduler/maintenance.go)
//   - OverdueSource / ReportAuditor / AuditEventCleaner: Task processors (internal/tasks)
//
// # Adding a New Background Task
//
// Define the task and its queue in internal/tasks/:
//
//	type ReminderTask struct {
//		BorrowerID uint `json:"borrower_id"`
//	}
//
//	func (t ReminderTask) Config() backlite.QueueConfig {
//		return backlite.QueueConfig{Name: QueueReminder, MaxAttempts: 3}
//	}
//
//	func NewReminderQueue(...) backlite.Queue {
//		return backlite.NewQueue[ReminderTask](ReminderProcessor(...))
//	}
//
// Register the queue in entrypoint.go, then accept it in TasksController.RunTask
// or add a schedule in internal/scheduler.
//
// # Adding a New Database Domain
//
// Create a sub-package internal/database/<domain>/ with a repository:
//
//	type Repository struct { db *gorm.DB }
//
//	func NewRepository(db *gorm.DB) *Repository
//
// Register its entities in database.Migrate and add a compile-time check in
// checks.go:
//
//	var _ http.SomeStore = (*Repository)(nil)
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the full list.
package interfaces
