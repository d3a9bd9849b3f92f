package catalog

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/apperr"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/dbtest"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/paging"
)

func setupTestDB(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	db, err := database.NewQuietDatabase(config.Database{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "catalog.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.DB), db.DB
}

func newRecord(isbn, title, author, category string) *entities.BibliographicRecord {
	return &entities.BibliographicRecord{
		ISBN:     isbn,
		Title:    title,
		Author:   entities.Author{Name: author},
		Category: entities.Category{Name: category},
	}
}

func openLending(t *testing.T, db *gorm.DB, copyID uint) *entities.Lending {
	t.Helper()
	l := &entities.Lending{CopyID: copyID, BorrowerID: 1, CheckedOutAt: time.Now().UTC(), DueDate: time.Now().UTC()}
	require.NoError(t, db.Create(l).Error)
	require.NoError(t, db.Model(&entities.Copy{}).Where("id = ?", copyID).Update("status", entities.CopyStatusOnLoan).Error)
	return l
}

func TestRepository_CreateRecord(t *testing.T) {
	repo, _ := setupTestDB(t)

	record := newRecord("9780441013593", "Dune", "Frank Herbert", "science fiction")
	require.NoError(t, repo.CreateRecord(record, 3, "Shelf A"))

	assert.NotZero(t, record.ID)
	assert.NotZero(t, record.AuthorID)
	assert.NotZero(t, record.CategoryID)
	require.Len(t, record.Copies, 3)
	for _, c := range record.Copies {
		assert.Equal(t, entities.CopyStatusAvailable, c.Status)
		assert.Equal(t, "Shelf A", c.Location)
	}

	loaded, err := repo.GetRecord(record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Frank Herbert", loaded.Author.Name)
	assert.Equal(t, "science fiction", loaded.Category.Name)
	assert.Len(t, loaded.Copies, 3)
}

func TestRepository_CreateRecord_SharesAuthorAndCategory(t *testing.T) {
	repo, db := setupTestDB(t)

	first := newRecord("9780441013593", "Dune", "Frank Herbert", "sf")
	second := newRecord("9780441172719", "Dune Messiah", "Frank Herbert", "sf")
	require.NoError(t, repo.CreateRecord(first, 1, "A"))
	require.NoError(t, repo.CreateRecord(second, 1, "A"))

	assert.Equal(t, first.AuthorID, second.AuthorID)
	assert.Equal(t, first.CategoryID, second.CategoryID)

	var authors int64
	db.Model(&entities.Author{}).Count(&authors)
	assert.Equal(t, int64(1), authors)
}

func TestRepository_CreateRecord_BlankCategoryFallsBack(t *testing.T) {
	repo, _ := setupTestDB(t)

	record := newRecord("9780000000001", "Untitled", "Anon", "  ")
	require.NoError(t, repo.CreateRecord(record, 0, ""))

	loaded, err := repo.GetRecord(record.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.UncategorizedName, loaded.Category.Name)
	assert.Empty(t, loaded.Copies)
}

func TestRepository_CreateRecord_UncreatableCategoryFallsBack(t *testing.T) {
	repo, db := setupTestDB(t)
	err := db.Callback().Create().Before("gorm:create").Register("test:reject_category", func(tx *gorm.DB) {
		if c, ok := tx.Statement.Dest.(*entities.Category); ok && c.Name == "restricted" {
			_ = tx.AddError(errors.New("category rejected"))
		}
	})
	require.NoError(t, err)

	record := newRecord("9780000000002", "Closed Stacks", "Anon", "restricted")
	require.NoError(t, repo.CreateRecord(record, 1, "B"))

	loaded, err := repo.GetRecord(record.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.UncategorizedName, loaded.Category.Name)
	assert.Len(t, loaded.Copies, 1)

	var rejected, fallback int64
	require.NoError(t, db.Model(&entities.Category{}).Where("name = ?", "restricted").Count(&rejected).Error)
	require.NoError(t, db.Model(&entities.Category{}).Where("name = ?", entities.UncategorizedName).Count(&fallback).Error)
	assert.Zero(t, rejected)
	assert.Equal(t, int64(1), fallback)
}

func TestRepository_CreateRecord_DuplicateISBN(t *testing.T) {
	repo, db := setupTestDB(t)

	require.NoError(t, repo.CreateRecord(newRecord("9780441013593", "Dune", "Frank Herbert", "sf"), 1, "A"))
	err := repo.CreateRecord(newRecord("9780441013593", "Dune (reprint)", "Someone Else", "sf"), 2, "B")

	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)

	// the whole transaction rolled back, including the new author and copies
	var authors, copies int64
	db.Model(&entities.Author{}).Count(&authors)
	db.Model(&entities.Copy{}).Count(&copies)
	assert.Equal(t, int64(1), authors)
	assert.Equal(t, int64(1), copies)
}

func TestRepository_CreateRecord_RequiresAuthor(t *testing.T) {
	repo, _ := setupTestDB(t)

	err := repo.CreateRecord(newRecord("9780000000002", "No Author", "", "sf"), 1, "A")
	assert.True(t, apperr.Is(err, apperr.KindInvalid), "got %v", err)
}

func TestRepository_CreateRecord_ConcurrentSameAuthor(t *testing.T) {
	repo, db := setupTestDB(t)

	const writers = 5
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			isbn := "97800000001" + string(rune('0'+i)) + "0"
			errs[i] = repo.CreateRecord(newRecord(isbn, "Book", "Shared Author", "shared"), 1, "A")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	var authors int64
	db.Model(&entities.Author{}).Where("name = ?", "Shared Author").Count(&authors)
	assert.Equal(t, int64(1), authors)
}

func TestRepository_UpdateRecord(t *testing.T) {
	repo, _ := setupTestDB(t)
	record := newRecord("9780441013593", "Dune", "Frank Herbert", "sf")
	require.NoError(t, repo.CreateRecord(record, 1, "A"))

	changes := newRecord("9780441013593", "Dune (Deluxe)", "", "classics")
	changes.Publisher = "Ace"

	updated, err := repo.UpdateRecord(record.ID, changes)
	require.NoError(t, err)
	assert.Equal(t, "Dune (Deluxe)", updated.Title)
	assert.Equal(t, "Ace", updated.Publisher)
	assert.Equal(t, "Frank Herbert", updated.Author.Name)
	assert.Equal(t, "classics", updated.Category.Name)
}

func TestRepository_UpdateRecord_Errors(t *testing.T) {
	repo, _ := setupTestDB(t)
	first := newRecord("9780441013593", "Dune", "Frank Herbert", "sf")
	second := newRecord("9780441172719", "Dune Messiah", "Frank Herbert", "sf")
	require.NoError(t, repo.CreateRecord(first, 0, ""))
	require.NoError(t, repo.CreateRecord(second, 0, ""))

	_, err := repo.UpdateRecord(999, newRecord("1", "x", "y", "z"))
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)

	_, err = repo.UpdateRecord(second.ID, newRecord(first.ISBN, "Dune Messiah", "", ""))
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
}

func TestRepository_ListRecords(t *testing.T) {
	repo, _ := setupTestDB(t)
	require.NoError(t, repo.CreateRecord(newRecord("1111", "Dune", "Frank Herbert", "sf"), 1, "A"))
	require.NoError(t, repo.CreateRecord(newRecord("2222", "Emma", "Jane Austen", "classics"), 1, "A"))
	require.NoError(t, repo.CreateRecord(newRecord("3333", "Persuasion", "Jane Austen", "classics"), 1, "A"))

	all, total, err := repo.ListRecords(entities.RecordFilter{}, paging.New(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, all, 3)
	assert.Equal(t, "Dune", all[0].Title)
	assert.Equal(t, "Frank Herbert", all[0].Author.Name)

	byAuthor, total, err := repo.ListRecords(entities.RecordFilter{Author: "austen"}, paging.New(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, byAuthor, 2)

	byCategory, _, err := repo.ListRecords(entities.RecordFilter{Category: "sf"}, paging.New(1, 10))
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "1111", byCategory[0].ISBN)

	byTitle, _, err := repo.ListRecords(entities.RecordFilter{Title: "SUAS"}, paging.New(1, 10))
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, "Persuasion", byTitle[0].Title)

	secondPage, total, err := repo.ListRecords(entities.RecordFilter{}, paging.New(2, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, secondPage, 1)
	assert.Equal(t, "Persuasion", secondPage[0].Title)
}

func TestRepository_DeleteRecord(t *testing.T) {
	repo, db := setupTestDB(t)
	record := newRecord("1111", "Dune", "Frank Herbert", "sf")
	require.NoError(t, repo.CreateRecord(record, 2, "A"))
	l := openLending(t, db, record.Copies[0].ID)

	err := repo.DeleteRecord(record.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)

	require.NoError(t, db.Model(l).Update("returned_at", time.Now().UTC()).Error)
	require.NoError(t, db.Model(&entities.Copy{}).Where("id = ?", l.CopyID).Update("status", entities.CopyStatusAvailable).Error)
	require.NoError(t, repo.DeleteRecord(record.ID))

	_, err = repo.GetRecord(record.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// the lending still resolves its copy
	var c entities.Copy
	require.NoError(t, db.Unscoped().First(&c, l.CopyID).Error)
	assert.True(t, c.DeletedAt.Valid)

	// the ISBN is free again after deletion
	require.NoError(t, repo.CreateRecord(newRecord("1111", "Dune", "Frank Herbert", "sf"), 1, "A"))

	assert.True(t, apperr.Is(repo.DeleteRecord(999), apperr.KindNotFound))
}

func TestRepository_AddCopies(t *testing.T) {
	repo, _ := setupTestDB(t)
	record := newRecord("1111", "Dune", "Frank Herbert", "sf")
	require.NoError(t, repo.CreateRecord(record, 1, "A"))

	added, err := repo.AddCopies(record.ID, 2, "B")
	require.NoError(t, err)
	assert.Len(t, added, 2)

	loaded, err := repo.GetRecord(record.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Copies, 3)

	_, err = repo.AddCopies(999, 1, "B")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = repo.AddCopies(record.ID, 0, "B")
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
}

func TestRepository_CopyLifecycle(t *testing.T) {
	repo, db := setupTestDB(t)
	record := newRecord("1111", "Dune", "Frank Herbert", "sf")
	require.NoError(t, repo.CreateRecord(record, 2, "A"))
	onLoan := record.Copies[0]
	idle := record.Copies[1]
	openLending(t, db, onLoan.ID)

	c, err := repo.GetCopy(idle.ID)
	require.NoError(t, err)
	require.NotNil(t, c.Record)
	assert.Equal(t, "Dune", c.Record.Title)

	moved, err := repo.UpdateCopyLocation(idle.ID, "Shelf Z")
	require.NoError(t, err)
	assert.Equal(t, "Shelf Z", moved.Location)

	_, err = repo.UpdateCopyLocation(onLoan.ID, "Shelf Z")
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)

	err = repo.DeleteCopy(onLoan.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)

	require.NoError(t, repo.DeleteCopy(idle.ID))
	_, err = repo.GetCopy(idle.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.True(t, apperr.Is(repo.DeleteCopy(idle.ID), apperr.KindNotFound))
}

func TestRepository_DeleteCopy_ChecksLendingsNotJustStatus(t *testing.T) {
	repo, db := setupTestDB(t)
	record := newRecord("1111", "Dune", "Frank Herbert", "sf")
	require.NoError(t, repo.CreateRecord(record, 1, "A"))
	copyID := record.Copies[0].ID

	l := &entities.Lending{CopyID: copyID, BorrowerID: 1, CheckedOutAt: time.Now().UTC(), DueDate: time.Now().UTC()}
	require.NoError(t, db.Create(l).Error)

	err := repo.DeleteCopy(copyID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
}

func TestRepository_ListCategories(t *testing.T) {
	repo, _ := setupTestDB(t)
	require.NoError(t, repo.CreateRecord(newRecord("1111", "Dune", "Frank Herbert", "sf"), 0, ""))

	categories, err := repo.ListCategories()
	require.NoError(t, err)
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"sf", entities.UncategorizedName}, names)
}

// Dry-run queries load zero values, so only the statements are checked.
func TestRepository_DeletesLockRowsOnPostgres(t *testing.T) {
	t.Run("copy", func(t *testing.T) {
		pg, rec := dbtest.PostgresDryRun(t)
		_ = NewRepository(pg).DeleteCopy(1)
		assert.True(t, rec.Locked("copies"), "%v", rec.Statements())
	})
	t.Run("record", func(t *testing.T) {
		pg, rec := dbtest.PostgresDryRun(t)
		_ = NewRepository(pg).DeleteRecord(1)
		assert.True(t, rec.Locked("bibliographic_records"), "%v", rec.Statements())
		assert.True(t, rec.Locked("copies"), "%v", rec.Statements())
		assert.False(t, rec.Locked("lendings"))
	})
}
