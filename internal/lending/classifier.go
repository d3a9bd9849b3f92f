package lending

import (
	"time"

	"github.com/mrlokans/librarian/internal/entities"
)

const day = 24 * time.Hour

// AsOfDate truncates t to its UTC calendar date. Every classification within
// one request uses a single as-of value produced here.
func AsOfDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Classify derives the status of a lending at asOf. A lending due on asOf is
// still ON_LOAN; it becomes OVERDUE the following day.
func Classify(due time.Time, returnedAt *time.Time, asOf time.Time) entities.LendingStatus {
	if returnedAt != nil {
		return entities.LendingStatusReturned
	}
	if AsOfDate(due).Before(AsOfDate(asOf)) {
		return entities.LendingStatusOverdue
	}
	return entities.LendingStatusOnLoan
}

// DaysOverdue returns whole days between due and asOf, or 0 when not past due.
func DaysOverdue(due, asOf time.Time) int {
	diff := AsOfDate(asOf).Sub(AsOfDate(due))
	if diff <= 0 {
		return 0
	}
	return int(diff / day)
}

// DefaultDueDate is the due date applied when checkout does not supply one.
func DefaultDueDate(checkedOutAt time.Time, loanPeriodDays int) time.Time {
	return AsOfDate(checkedOutAt).AddDate(0, 0, loanPeriodDays)
}
