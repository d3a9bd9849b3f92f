package interfaces

// This file contains compile-time interface implementation checks.
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/ledger"
	"github.com/mrlokans/librarian/internal/database/members"
	"github.com/mrlokans/librarian/internal/database/reports"
	"github.com/mrlokans/librarian/internal/http"
	"github.com/mrlokans/librarian/internal/lending"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

var _ http.CatalogStore = (*catalog.Repository)(nil)
var _ http.BorrowerStore = (*members.Repository)(nil)

var _ lending.Ledger = (*ledger.Repository)(nil)
var _ lending.Reports = (*reports.Repository)(nil)

// =============================================================================
// Lending
// =============================================================================

var _ http.LendingService = (*lending.Service)(nil)
var _ tasks.OverdueSource = (*lending.Service)(nil)

// =============================================================================
// Audit Trail
// =============================================================================

var _ http.EventLogger = (*audit.Service)(nil)
var _ http.AuditReader = (*audit.Service)(nil)
var _ auth.Auditor = (*audit.Service)(nil)
var _ tasks.ReportAuditor = (*audit.Service)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)

// =============================================================================
// Background Tasks
// =============================================================================

var _ http.TaskQueue = (*tasks.Client)(nil)
var _ http.Pinger = (*tasks.Client)(nil)
var _ scheduler.Enqueuer = (*tasks.Client)(nil)
