package lending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mrlokans/librarian/internal/entities"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestClassify(t *testing.T) {
	returned := time.Date(2023, 4, 20, 15, 30, 0, 0, time.UTC)
	asOf := date(2023, 5, 1)

	tests := []struct {
		name       string
		due        time.Time
		returnedAt *time.Time
		want       entities.LendingStatus
	}{
		{"returned before due", date(2023, 5, 10), &returned, entities.LendingStatusReturned},
		{"returned after due is still returned", date(2023, 4, 1), &returned, entities.LendingStatusReturned},
		{"open and past due", date(2023, 4, 30), nil, entities.LendingStatusOverdue},
		{"open and due today", date(2023, 5, 1), nil, entities.LendingStatusOnLoan},
		{"open and due later", date(2023, 5, 15), nil, entities.LendingStatusOnLoan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.due, tt.returnedAt, asOf))
		})
	}
}

func TestClassify_IgnoresTimeOfDay(t *testing.T) {
	due := date(2023, 5, 1)
	lateEvening := time.Date(2023, 5, 1, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, entities.LendingStatusOnLoan, Classify(due, nil, lateEvening))
	assert.Equal(t, entities.LendingStatusOverdue, Classify(due, nil, lateEvening.Add(2*time.Minute)))
}

func TestDaysOverdue(t *testing.T) {
	assert.Equal(t, 0, DaysOverdue(date(2023, 5, 1), date(2023, 5, 1)))
	assert.Equal(t, 0, DaysOverdue(date(2023, 5, 3), date(2023, 5, 1)))
	assert.Equal(t, 1, DaysOverdue(date(2023, 4, 30), date(2023, 5, 1)))
	assert.Equal(t, 30, DaysOverdue(date(2023, 4, 1), date(2023, 5, 1)))
}

func TestAsOfDate_ConvertsToUTC(t *testing.T) {
	tz := time.FixedZone("UTC+3", 3*60*60)
	local := time.Date(2023, 5, 2, 1, 0, 0, 0, tz)

	assert.Equal(t, date(2023, 5, 1), AsOfDate(local))
}

func TestDefaultDueDate(t *testing.T) {
	checkout := time.Date(2023, 4, 10, 9, 15, 0, 0, time.UTC)

	assert.Equal(t, date(2023, 4, 24), DefaultDueDate(checkout, 14))
}
