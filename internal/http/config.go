package http

import (
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/tasks"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database *database.Database
	Catalog  CatalogStore
	Members  BorrowerStore
	Lendings LendingService

	// Audit trail. Events is written to on every mutation; Audit serves
	// /api/audit. Either may be nil.
	Events EventLogger
	Audit  AuditReader

	// Authentication
	AuthService    *auth.Service
	AuthMiddleware *auth.Middleware
	SessionManager *auth.SessionManager
	RateLimiter    *auth.RateLimiter
	CSRFSecret     []byte
	SecureCookies  bool
	BcryptCost     int

	// Allowed CORS origins; empty disables CORS handling, "*" allows any.
	CORSOrigins []string

	// Task queue (optional)
	TaskQueue  TaskQueue
	TaskPinger Pinger
	// Directory the overdue report task writes to; checked by /health.
	ReportsDir string
	// Retention used by manual audit cleanup runs that do not name one.
	AuditCleanup tasks.CleanupAuditEventsTask

	// List page size, defaulting to 10.
	PageSize int

	// Application info
	Version string
}
