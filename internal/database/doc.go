// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup (sqlite or postgres), migrations, seeding
//	├── catalog/         # Records, copies, authors and categories
//	├── members/         # Borrower accounts
//	├── ledger/          # Checkout and return transactions
//	├── reports/         # Read-side lending queries (goqu + sqlx)
//	└── audit/           # Audit event log
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.NewDatabase(cfg.Database)
//
//	catalogRepo := catalog.NewRepository(db.DB)
//	ledgerRepo := ledger.NewRepository(db.DB)
//	reportsRepo, err := reports.NewRepository(db)
//
// # Transactions
//
// Every write that touches more than one row runs inside db.Transaction.
// SQLite connections are opened with _txlock=immediate so concurrent writers
// queue on the busy timeout instead of failing on lock upgrade. On postgres
// the copy row is locked with SELECT ... FOR UPDATE.
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Implement the required interface
//  5. Add compile-time interface check in internal/interfaces
package database
