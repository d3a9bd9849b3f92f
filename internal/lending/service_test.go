package lending

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/apperr"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/ledger"
	"github.com/mrlokans/librarian/internal/database/reports"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/paging"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func setupService(t *testing.T, start time.Time) (*Service, *gorm.DB, *clock) {
	t.Helper()
	d, err := database.NewQuietDatabase(config.Database{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "lending.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	reportsRepo, err := reports.NewRepository(d)
	require.NoError(t, err)

	c := &clock{now: start}
	svc := NewService(ledger.NewRepository(d.DB), reportsRepo, WithClock(c.Now), WithLoanPeriod(14))
	return svc, d.DB, c
}

func seed(t *testing.T, db *gorm.DB, copies int) ([]entities.Copy, *entities.Borrower) {
	t.Helper()
	author := entities.Author{Name: "Italo Calvino"}
	require.NoError(t, db.Create(&author).Error)
	var category entities.Category
	require.NoError(t, db.Where("name = ?", entities.UncategorizedName).First(&category).Error)
	record := entities.BibliographicRecord{ISBN: "9780156439619", Title: "Invisible Cities", AuthorID: author.ID, CategoryID: category.ID}
	require.NoError(t, db.Create(&record).Error)

	cs := make([]entities.Copy, copies)
	for i := range cs {
		cs[i] = entities.Copy{RecordID: record.ID, Status: entities.CopyStatusAvailable, Location: "C"}
	}
	require.NoError(t, db.Create(&cs).Error)

	b := &entities.Borrower{Name: "Marco Polo", Email: "marco@example.com", Status: entities.BorrowerStatusActive}
	require.NoError(t, db.Create(b).Error)
	return cs, b
}

func TestService_CheckoutConflictReturnConflict(t *testing.T) {
	svc, db, _ := setupService(t, time.Date(2023, 4, 1, 9, 30, 0, 0, time.UTC))
	copies, b := seed(t, db, 1)
	ctx := context.Background()

	l, err := svc.Checkout(ctx, CheckoutRequest{BorrowerID: b.ID, CopyID: copies[0].ID, StaffID: 1})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 4, 15, 0, 0, 0, 0, time.UTC), l.DueDate)
	assert.Equal(t, uint(1), l.CheckedOutBy)

	_, err = svc.Checkout(ctx, CheckoutRequest{BorrowerID: b.ID, CopyID: copies[0].ID})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	returned, err := svc.Return(ctx, l.ID, 1)
	require.NoError(t, err)
	assert.NotNil(t, returned.ReturnedAt)

	_, err = svc.Return(ctx, l.ID, 1)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestService_Checkout_Validation(t *testing.T) {
	svc, db, _ := setupService(t, time.Date(2023, 4, 1, 9, 30, 0, 0, time.UTC))
	copies, b := seed(t, db, 1)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, CheckoutRequest{CopyID: copies[0].ID})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = svc.Checkout(ctx, CheckoutRequest{BorrowerID: b.ID})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	past := time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)
	_, err = svc.Checkout(ctx, CheckoutRequest{BorrowerID: b.ID, CopyID: copies[0].ID, DueDate: &past})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	due := time.Date(2023, 4, 3, 17, 0, 0, 0, time.UTC)
	l, err := svc.Checkout(ctx, CheckoutRequest{BorrowerID: b.ID, CopyID: copies[0].ID, DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 4, 3, 0, 0, 0, 0, time.UTC), l.DueDate)
}

func TestService_ListOverdue(t *testing.T) {
	svc, db, c := setupService(t, time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC))
	copies, b := seed(t, db, 3)
	ctx := context.Background()

	dueEarly := time.Date(2023, 4, 10, 0, 0, 0, 0, time.UTC)
	dueLate := time.Date(2023, 4, 30, 0, 0, 0, 0, time.UTC)
	dueMay := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	early, err := svc.Checkout(ctx, CheckoutRequest{BorrowerID: b.ID, CopyID: copies[0].ID, DueDate: &dueEarly})
	require.NoError(t, err)
	late, err := svc.Checkout(ctx, CheckoutRequest{BorrowerID: b.ID, CopyID: copies[1].ID, DueDate: &dueLate})
	require.NoError(t, err)
	_, err = svc.Checkout(ctx, CheckoutRequest{BorrowerID: b.ID, CopyID: copies[2].ID, DueDate: &dueMay})
	require.NoError(t, err)

	// returning the early lending removes it from the overdue list
	c.now = time.Date(2023, 4, 20, 10, 0, 0, 0, time.UTC)
	_, err = svc.Return(ctx, early.ID, 0)
	require.NoError(t, err)

	page, err := svc.ListOverdue(ctx, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), paging.New(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, late.ID, page.Items[0].ID)
	assert.Equal(t, 1, page.Items[0].DaysOverdue)
	assert.Equal(t, int64(1), page.Pagination.TotalCount)

	// zero as-of means today
	c.now = time.Date(2023, 5, 11, 8, 0, 0, 0, time.UTC)
	page, err = svc.ListOverdue(ctx, time.Time{}, paging.New(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 11, page.Items[0].DaysOverdue)
	assert.Equal(t, 10, page.Items[1].DaysOverdue)

	exported, err := svc.ExportOverdue(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, exported, 2)
}

func TestService_BorrowerHistory(t *testing.T) {
	svc, db, c := setupService(t, time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC))
	copies, b := seed(t, db, 3)
	ctx := context.Background()

	first, err := svc.Checkout(ctx, CheckoutRequest{BorrowerID: b.ID, CopyID: copies[0].ID})
	require.NoError(t, err)
	c.now = c.now.Add(24 * time.Hour)
	second, err := svc.Checkout(ctx, CheckoutRequest{BorrowerID: b.ID, CopyID: copies[1].ID})
	require.NoError(t, err)
	c.now = c.now.Add(24 * time.Hour)
	third, err := svc.Checkout(ctx, CheckoutRequest{BorrowerID: b.ID, CopyID: copies[2].ID})
	require.NoError(t, err)
	_, err = svc.Return(ctx, third.ID, 0)
	require.NoError(t, err)

	// first is due 2023-04-15, second 2023-04-16
	c.now = time.Date(2023, 4, 16, 12, 0, 0, 0, time.UTC)
	page, err := svc.BorrowerHistory(ctx, b.ID, paging.New(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Items, 3)

	assert.Equal(t, third.ID, page.Items[0].ID)
	assert.Equal(t, entities.LendingStatusReturned, page.Items[0].Status)
	assert.Equal(t, second.ID, page.Items[1].ID)
	assert.Equal(t, entities.LendingStatusOnLoan, page.Items[1].Status)
	assert.Equal(t, first.ID, page.Items[2].ID)
	assert.Equal(t, entities.LendingStatusOverdue, page.Items[2].Status)

	_, err = svc.BorrowerHistory(ctx, 999, paging.New(1, 10))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestService_ListAndGetLendings(t *testing.T) {
	svc, db, _ := setupService(t, time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC))
	copies, b := seed(t, db, 2)
	ctx := context.Background()

	l, err := svc.Checkout(ctx, CheckoutRequest{BorrowerID: b.ID, CopyID: copies[0].ID})
	require.NoError(t, err)

	got, err := svc.GetLending(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.LendingStatusOnLoan, got.Status)
	assert.Equal(t, "Invisible Cities", got.Title)

	_, err = svc.ListLendings(ctx, entities.LendingFilter{State: "lost"}, paging.New(1, 10))
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	open, err := svc.ListLendings(ctx, entities.LendingFilter{State: entities.LendingStateOpen}, paging.New(1, 10))
	require.NoError(t, err)
	assert.Len(t, open.Items, 1)

	recent, err := svc.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestService_SuspendedBorrowerLeavesNoTrace(t *testing.T) {
	svc, db, _ := setupService(t, time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC))
	copies, b := seed(t, db, 1)
	require.NoError(t, db.Model(b).Update("status", entities.BorrowerStatusSuspended).Error)

	_, err := svc.Checkout(context.Background(), CheckoutRequest{BorrowerID: b.ID, CopyID: copies[0].ID})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	var c entities.Copy
	require.NoError(t, db.First(&c, copies[0].ID).Error)
	assert.Equal(t, entities.CopyStatusAvailable, c.Status)

	var lendings int64
	db.Model(&entities.Lending{}).Count(&lendings)
	assert.Zero(t, lendings)
}
