package config

const (
	// DefaultDatabasePath is the default SQLite file for the main database
	DefaultDatabasePath = "./librarian.db"

	// DefaultReportsDir is where scheduled overdue reports are written
	DefaultReportsDir = "./reports"

	// DefaultLoanPeriodDays is the loan period applied when checkout has no due date
	DefaultLoanPeriodDays = 14

	// DefaultPageSize is the page size of list endpoints
	DefaultPageSize = 10
)
