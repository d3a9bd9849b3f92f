// Package catalog provides database operations for bibliographic records,
// their physical copies, authors and categories.
//
// Authors and categories are normalized by name. They are resolved inside
// the record transaction with INSERT ... ON CONFLICT DO NOTHING followed by
// a select, so two writers naming the same new author end up sharing one row.
//
// # Usage
//
//	repo := catalog.NewRepository(db)
//	record := &entities.BibliographicRecord{ISBN: "...", Title: "...", Author: entities.Author{Name: "..."}}
//	err := repo.CreateRecord(record, 2, "Shelf A")
package catalog

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/apperr"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/paging"
)

// MaxCopiesPerRequest bounds how many copies a single request may add.
const MaxCopiesPerRequest = 100

// Repository handles catalog database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new catalog repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateRecord stores record together with copies new copies at location.
// record.Author.Name and record.Category.Name select the author and category.
func (r *Repository) CreateRecord(record *entities.BibliographicRecord, copies int, location string) error {
	if copies < 0 || copies > MaxCopiesPerRequest {
		return apperr.Invalid("copies must be between 0 and %d", MaxCopiesPerRequest)
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := resolveNames(tx, record); err != nil {
			return err
		}
		record.ID = 0
		record.Copies = nil
		if err := tx.Omit(clause.Associations).Create(record).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict("a record with ISBN %s already exists", record.ISBN)
			}
			return apperr.Internal(err, "failed to create record")
		}
		created, err := createCopies(tx, record.ID, copies, location)
		if err != nil {
			return err
		}
		record.Copies = created
		return nil
	})
}

// UpdateRecord replaces the descriptive fields of record id with those of
// changes. Author and category are resolved by name when given.
func (r *Repository) UpdateRecord(id uint, changes *entities.BibliographicRecord) (*entities.BibliographicRecord, error) {
	var record entities.BibliographicRecord
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&record, id).Error; err != nil {
			if database.IsNotFound(err) {
				return apperr.NotFound("record %d not found", id)
			}
			return apperr.Internal(err, "failed to load record")
		}

		if strings.TrimSpace(changes.Author.Name) == "" {
			changes.AuthorID = record.AuthorID
		}
		if strings.TrimSpace(changes.Category.Name) == "" {
			changes.CategoryID = record.CategoryID
		}
		if err := resolveNames(tx, changes); err != nil {
			return err
		}

		record.ISBN = changes.ISBN
		record.Title = changes.Title
		record.AuthorID = changes.AuthorID
		record.CategoryID = changes.CategoryID
		record.Publisher = changes.Publisher
		record.PublishedOn = changes.PublishedOn
		record.Description = changes.Description
		if err := tx.Omit(clause.Associations).Save(&record).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict("a record with ISBN %s already exists", record.ISBN)
			}
			return apperr.Internal(err, "failed to update record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetRecord(id)
}

// GetRecord returns a record with its author, category and live copies.
func (r *Repository) GetRecord(id uint) (*entities.BibliographicRecord, error) {
	var record entities.BibliographicRecord
	err := r.db.Preload("Author").Preload("Category").
		Preload("Copies", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&record, id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("record %d not found", id)
		}
		return nil, apperr.Internal(err, "failed to load record")
	}
	return &record, nil
}

// ListRecords returns one page of records ordered by title.
func (r *Repository) ListRecords(filter entities.RecordFilter, page paging.Request) ([]entities.BibliographicRecord, int64, error) {
	query := r.db.Model(&entities.BibliographicRecord{}).
		Joins("JOIN authors ON authors.id = bibliographic_records.author_id").
		Joins("JOIN categories ON categories.id = bibliographic_records.category_id")

	if filter.ISBN != "" {
		query = query.Where("bibliographic_records.isbn = ?", filter.ISBN)
	}
	if filter.Title != "" {
		query = query.Where(database.LikeClause("bibliographic_records.title"), database.LikePattern(filter.Title))
	}
	if filter.Author != "" {
		query = query.Where(database.LikeClause("authors.name"), database.LikePattern(filter.Author))
	}
	if filter.Category != "" {
		query = query.Where("categories.name = ?", filter.Category)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal(err, "failed to count records")
	}

	var records []entities.BibliographicRecord
	err := query.Preload("Author").Preload("Category").Preload("Copies").
		Order("bibliographic_records.title ASC, bibliographic_records.id ASC").
		Limit(page.Limit()).Offset(page.Offset()).
		Find(&records).Error
	if err != nil {
		return nil, 0, apperr.Internal(err, "failed to list records")
	}
	return records, total, nil
}

// DeleteRecord soft-deletes a record and its copies. It fails with Conflict
// while any copy of the record is on loan.
func (r *Repository) DeleteRecord(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var record entities.BibliographicRecord
		if err := database.LockRow(tx).Select("id").First(&record, id).Error; err != nil {
			if database.IsNotFound(err) {
				return apperr.NotFound("record %d not found", id)
			}
			return apperr.Internal(err, "failed to load record")
		}
		var copies []entities.Copy
		if err := database.LockRow(tx).Select("id").Where("record_id = ?", id).Find(&copies).Error; err != nil {
			return apperr.Internal(err, "failed to load copies")
		}

		var open int64
		err := tx.Model(&entities.Lending{}).
			Joins("JOIN copies ON copies.id = lendings.copy_id").
			Where("copies.record_id = ? AND lendings.returned_at IS NULL", id).
			Count(&open).Error
		if err != nil {
			return apperr.Internal(err, "failed to check open lendings")
		}
		if open > 0 {
			return apperr.Conflict("record %d has %d copies on loan", id, open)
		}

		if err := tx.Where("record_id = ?", id).Delete(&entities.Copy{}).Error; err != nil {
			return apperr.Internal(err, "failed to delete copies")
		}
		if err := tx.Delete(&record).Error; err != nil {
			return apperr.Internal(err, "failed to delete record")
		}
		return nil
	})
}

// AddCopies adds count AVAILABLE copies of record recordID at location.
func (r *Repository) AddCopies(recordID uint, count int, location string) ([]entities.Copy, error) {
	if count < 1 || count > MaxCopiesPerRequest {
		return nil, apperr.Invalid("count must be between 1 and %d", MaxCopiesPerRequest)
	}
	var created []entities.Copy
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var record entities.BibliographicRecord
		if err := tx.Select("id").First(&record, recordID).Error; err != nil {
			if database.IsNotFound(err) {
				return apperr.NotFound("record %d not found", recordID)
			}
			return apperr.Internal(err, "failed to load record")
		}
		var err error
		created, err = createCopies(tx, recordID, count, location)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetCopy returns a copy with its record and the record's author.
func (r *Repository) GetCopy(id uint) (*entities.Copy, error) {
	var c entities.Copy
	err := r.db.Preload("Record").Preload("Record.Author").Preload("Record.Category").First(&c, id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("copy %d not found", id)
		}
		return nil, apperr.Internal(err, "failed to load copy")
	}
	return &c, nil
}

// UpdateCopyLocation moves a copy. Copies on loan cannot be edited.
func (r *Repository) UpdateCopyLocation(id uint, location string) (*entities.Copy, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := checkCopyIdle(tx, id); err != nil {
			return err
		}
		if err := tx.Model(&entities.Copy{}).Where("id = ?", id).Update("location", location).Error; err != nil {
			return apperr.Internal(err, "failed to update copy")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetCopy(id)
}

// DeleteCopy soft-deletes a copy so historical lendings still resolve it.
func (r *Repository) DeleteCopy(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := checkCopyIdle(tx, id); err != nil {
			return err
		}
		if err := tx.Delete(&entities.Copy{}, id).Error; err != nil {
			return apperr.Internal(err, "failed to delete copy")
		}
		return nil
	})
}

// ListCategories returns all categories ordered by name.
func (r *Repository) ListCategories() ([]entities.Category, error) {
	var categories []entities.Category
	if err := r.db.Order("name ASC").Find(&categories).Error; err != nil {
		return nil, apperr.Internal(err, "failed to list categories")
	}
	return categories, nil
}

// checkCopyIdle loads copy id and rejects it when it is on loan, re-reading
// open lendings rather than trusting the status column alone.
func checkCopyIdle(tx *gorm.DB, id uint) error {
	var c entities.Copy
	if err := database.LockRow(tx).First(&c, id).Error; err != nil {
		if database.IsNotFound(err) {
			return apperr.NotFound("copy %d not found", id)
		}
		return apperr.Internal(err, "failed to load copy")
	}
	if c.Status == entities.CopyStatusOnLoan {
		return apperr.Conflict("copy %d is on loan", id)
	}
	var open int64
	if err := tx.Model(&entities.Lending{}).
		Where("copy_id = ? AND returned_at IS NULL", id).
		Count(&open).Error; err != nil {
		return apperr.Internal(err, "failed to check open lendings")
	}
	if open > 0 {
		return apperr.Conflict("copy %d is on loan", id)
	}
	return nil
}

func createCopies(tx *gorm.DB, recordID uint, count int, location string) ([]entities.Copy, error) {
	if count == 0 {
		return []entities.Copy{}, nil
	}
	copies := make([]entities.Copy, count)
	for i := range copies {
		copies[i] = entities.Copy{
			RecordID: recordID,
			Status:   entities.CopyStatusAvailable,
			Location: location,
		}
	}
	if err := tx.Omit(clause.Associations).Create(&copies).Error; err != nil {
		return nil, apperr.Internal(err, "failed to create copies")
	}
	return copies, nil
}

// resolveNames fills AuthorID and CategoryID from the names on record.
// An ID that is already set is kept when its name is blank.
func resolveNames(tx *gorm.DB, record *entities.BibliographicRecord) error {
	if name := strings.TrimSpace(record.Author.Name); name != "" {
		author, err := getOrCreateAuthor(tx, name)
		if err != nil {
			return err
		}
		record.AuthorID = author.ID
		record.Author = *author
	} else if record.AuthorID == 0 {
		return apperr.Invalid("author is required")
	}

	name := strings.TrimSpace(record.Category.Name)
	if name == "" && record.CategoryID != 0 {
		return nil
	}
	category, err := resolveCategory(tx, name)
	if err != nil {
		return err
	}
	record.CategoryID = category.ID
	record.Category = *category
	return nil
}

func getOrCreateAuthor(tx *gorm.DB, name string) (*entities.Author, error) {
	author := entities.Author{Name: name}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&author)
	if res.Error != nil {
		return nil, apperr.Internal(res.Error, "failed to create author")
	}
	if res.RowsAffected == 0 || author.ID == 0 {
		var existing entities.Author
		if err := tx.Where("name = ?", name).First(&existing).Error; err != nil {
			return nil, apperr.Internal(err, "failed to load author")
		}
		return &existing, nil
	}
	return &author, nil
}

// resolveCategory returns the named category, creating it when missing.
// A blank name, or one that cannot be created, falls back to the seeded
// uncategorized category. The fallback is attempted once.
func resolveCategory(tx *gorm.DB, name string) (*entities.Category, error) {
	if name == "" {
		return getOrCreateCategory(tx, entities.UncategorizedName)
	}

	if err := tx.SavePoint("category").Error; err != nil {
		return nil, apperr.Internal(err, "failed to create savepoint")
	}
	category, err := getOrCreateCategory(tx, name)
	if err == nil {
		return category, nil
	}
	if rbErr := tx.RollbackTo("category").Error; rbErr != nil {
		return nil, apperr.Internal(rbErr, "failed to roll back category insert")
	}
	log.Printf("Category %q could not be created, using %s: %v", name, entities.UncategorizedName, err)

	category, err = getOrCreateCategory(tx, entities.UncategorizedName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fallback category: %w", err)
	}
	return category, nil
}

func getOrCreateCategory(tx *gorm.DB, name string) (*entities.Category, error) {
	category := entities.Category{Name: name}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&category)
	if res.Error != nil {
		return nil, apperr.Internal(res.Error, "failed to create category")
	}
	if res.RowsAffected == 0 || category.ID == 0 {
		var existing entities.Category
		if err := tx.Where("name = ?", name).First(&existing).Error; err != nil {
			return nil, apperr.Internal(err, "failed to load category")
		}
		return &existing, nil
	}
	return &category, nil
}
