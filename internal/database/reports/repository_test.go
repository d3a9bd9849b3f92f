package reports

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
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/paging"
)

type fixture struct {
	repo     *Repository
	db       *gorm.DB
	borrower *entities.Borrower
	copies   []entities.Copy
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func setupTestDB(t *testing.T) *fixture {
	t.Helper()
	d, err := database.NewQuietDatabase(config.Database{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "reports.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	repo, err := NewRepository(d)
	require.NoError(t, err)

	db := d.DB
	author := entities.Author{Name: "Ursula K. Le Guin"}
	require.NoError(t, db.Create(&author).Error)
	var category entities.Category
	require.NoError(t, db.Where("name = ?", entities.UncategorizedName).First(&category).Error)
	record := entities.BibliographicRecord{ISBN: "9780441478125", Title: "The Left Hand of Darkness", AuthorID: author.ID, CategoryID: category.ID}
	require.NoError(t, db.Omit("Author", "Category").Create(&record).Error)

	copies := make([]entities.Copy, 4)
	for i := range copies {
		copies[i] = entities.Copy{RecordID: record.ID, Status: entities.CopyStatusAvailable, Location: "Shelf L"}
	}
	require.NoError(t, db.Create(&copies).Error)

	borrower := &entities.Borrower{Name: "Genly Ai", Email: "genly@example.com", Status: entities.BorrowerStatusActive}
	require.NoError(t, db.Create(borrower).Error)

	return &fixture{repo: repo, db: db, borrower: borrower, copies: copies}
}

func (f *fixture) lend(t *testing.T, copyIdx int, checkedOut, due time.Time, returned *time.Time) *entities.Lending {
	t.Helper()
	l := &entities.Lending{
		CopyID:       f.copies[copyIdx].ID,
		BorrowerID:   f.borrower.ID,
		CheckedOutAt: checkedOut,
		DueDate:      due,
		ReturnedAt:   returned,
	}
	require.NoError(t, f.db.Create(l).Error)
	return l
}

func TestRepository_Overdue(t *testing.T) {
	f := setupTestDB(t)
	returned := day(2023, 4, 20)

	late := f.lend(t, 0, day(2023, 4, 1), day(2023, 4, 15), nil)
	later := f.lend(t, 1, day(2023, 4, 10), day(2023, 4, 30), nil)
	f.lend(t, 2, day(2023, 4, 1), day(2023, 4, 10), &returned) // returned, never overdue
	f.lend(t, 3, day(2023, 4, 20), day(2023, 5, 1), nil)       // due on the as-of date

	views, total, err := f.repo.Overdue(context.Background(), day(2023, 5, 1), paging.New(1, 10))
	require.NoError(t, err)

	assert.Equal(t, int64(2), total)
	require.Len(t, views, 2)
	assert.Equal(t, late.ID, views[0].ID)
	assert.Equal(t, later.ID, views[1].ID)
	assert.Equal(t, "The Left Hand of Darkness", views[0].Title)
	assert.Equal(t, "Ursula K. Le Guin", views[0].Author)
	assert.Equal(t, "Genly Ai", views[0].BorrowerName)
	assert.True(t, day(2023, 4, 15).Equal(views[0].DueDate))
	assert.Nil(t, views[0].ReturnedAt)
}

func TestRepository_Overdue_Paging(t *testing.T) {
	f := setupTestDB(t)
	for i := 0; i < 3; i++ {
		f.lend(t, i, day(2023, 3, 1), day(2023, 3, 10+i), nil)
	}

	views, total, err := f.repo.Overdue(context.Background(), day(2023, 5, 1), paging.New(2, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, views, 1)
	assert.True(t, day(2023, 3, 12).Equal(views[0].DueDate))

	all, err := f.repo.AllOverdue(context.Background(), day(2023, 5, 1))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRepository_BorrowerHistory(t *testing.T) {
	f := setupTestDB(t)
	returned := day(2023, 2, 10)
	oldest := f.lend(t, 0, day(2023, 2, 1), day(2023, 2, 15), &returned)
	newest := f.lend(t, 1, day(2023, 4, 1), day(2023, 4, 15), nil)
	middle := f.lend(t, 2, day(2023, 3, 1), day(2023, 3, 15), nil)

	views, total, err := f.repo.BorrowerHistory(context.Background(), f.borrower.ID, paging.New(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, views, 3)
	assert.Equal(t, []uint{newest.ID, middle.ID, oldest.ID}, []uint{views[0].ID, views[1].ID, views[2].ID})
	require.NotNil(t, views[2].ReturnedAt)
	assert.True(t, returned.Equal(*views[2].ReturnedAt))
}

func TestRepository_BorrowerHistory_NotFound(t *testing.T) {
	f := setupTestDB(t)

	_, _, err := f.repo.BorrowerHistory(context.Background(), 999, paging.New(1, 10))
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
}

func TestRepository_BorrowerHistory_Empty(t *testing.T) {
	f := setupTestDB(t)

	views, total, err := f.repo.BorrowerHistory(context.Background(), f.borrower.ID, paging.New(1, 10))
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, views)
	assert.Empty(t, views)
}

func TestRepository_History_SurvivesCopyDeletion(t *testing.T) {
	f := setupTestDB(t)
	returned := day(2023, 2, 10)
	l := f.lend(t, 0, day(2023, 2, 1), day(2023, 2, 15), &returned)
	require.NoError(t, f.db.Delete(&f.copies[0]).Error)

	views, _, err := f.repo.BorrowerHistory(context.Background(), f.borrower.ID, paging.New(1, 10))
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, l.ID, views[0].ID)
	assert.Equal(t, "Shelf L", views[0].Location)
}

func TestRepository_ListLendings(t *testing.T) {
	f := setupTestDB(t)
	returned := day(2023, 4, 5)
	closed := f.lend(t, 0, day(2023, 4, 1), day(2023, 4, 15), &returned)
	open := f.lend(t, 1, day(2023, 4, 2), day(2023, 4, 16), nil)

	all, total, err := f.repo.ListLendings(context.Background(), entities.LendingFilter{}, paging.New(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	openOnly, _, err := f.repo.ListLendings(context.Background(), entities.LendingFilter{State: entities.LendingStateOpen}, paging.New(1, 10))
	require.NoError(t, err)
	require.Len(t, openOnly, 1)
	assert.Equal(t, open.ID, openOnly[0].ID)

	returnedOnly, _, err := f.repo.ListLendings(context.Background(), entities.LendingFilter{State: entities.LendingStateReturned}, paging.New(1, 10))
	require.NoError(t, err)
	require.Len(t, returnedOnly, 1)
	assert.Equal(t, closed.ID, returnedOnly[0].ID)

	byCopy, _, err := f.repo.ListLendings(context.Background(), entities.LendingFilter{CopyID: f.copies[1].ID, BorrowerID: f.borrower.ID}, paging.New(1, 10))
	require.NoError(t, err)
	require.Len(t, byCopy, 1)
	assert.Equal(t, open.ID, byCopy[0].ID)
}

func TestRepository_GetLendingAndRecent(t *testing.T) {
	f := setupTestDB(t)
	first := f.lend(t, 0, day(2023, 4, 1), day(2023, 4, 15), nil)
	second := f.lend(t, 1, day(2023, 4, 2), day(2023, 4, 16), nil)

	view, err := f.repo.GetLending(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, f.copies[0].ID, view.CopyID)
	assert.Equal(t, "genly@example.com", view.BorrowerEmail)

	_, err = f.repo.GetLending(context.Background(), 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	recent, err := f.repo.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, second.ID, recent[0].ID)
}

func TestRepository_DeletedBorrowerKeepsHistory(t *testing.T) {
	f := setupTestDB(t)
	returned := day(2023, 4, 5)
	l := f.lend(t, 0, day(2023, 4, 1), day(2023, 4, 15), &returned)
	require.NoError(t, f.db.Delete(f.borrower).Error)

	view, err := f.repo.GetLending(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Empty(t, view.BorrowerName)
}
