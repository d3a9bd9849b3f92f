// Package members provides database operations for borrowers.
//
// # Usage
//
//	repo := members.NewRepository(db)
//	borrower, err := repo.GetBorrower(id)
package members

import (
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/apperr"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/paging"
)

// Repository handles all borrower database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new members repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateBorrower stores a new borrower. Emails are unique.
func (r *Repository) CreateBorrower(b *entities.Borrower) error {
	if b.Status == "" {
		b.Status = entities.BorrowerStatusActive
	}
	if b.MemberType == "" {
		b.MemberType = entities.MemberTypeRegular
	}
	if err := r.db.Create(b).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("a borrower with email %s already exists", b.Email)
		}
		return apperr.Internal(err, "failed to create borrower")
	}
	return nil
}

// GetBorrower retrieves a borrower by ID.
func (r *Repository) GetBorrower(id uint) (*entities.Borrower, error) {
	var b entities.Borrower
	if err := r.db.First(&b, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("borrower %d not found", id)
		}
		return nil, apperr.Internal(err, "failed to load borrower")
	}
	return &b, nil
}

// ListBorrowers returns one page of borrowers ordered by name.
func (r *Repository) ListBorrowers(filter entities.BorrowerFilter, page paging.Request) ([]entities.Borrower, int64, error) {
	query := r.db.Model(&entities.Borrower{})
	if filter.ID != 0 {
		query = query.Where("id = ?", filter.ID)
	}
	if filter.Name != "" {
		query = query.Where(database.LikeClause("name"), database.LikePattern(filter.Name))
	}
	if filter.Email != "" {
		query = query.Where(database.LikeClause("email"), database.LikePattern(filter.Email))
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal(err, "failed to count borrowers")
	}

	var borrowers []entities.Borrower
	if err := query.Order("name ASC, id ASC").Limit(page.Limit()).Offset(page.Offset()).Find(&borrowers).Error; err != nil {
		return nil, 0, apperr.Internal(err, "failed to list borrowers")
	}
	return borrowers, total, nil
}

// UpdateBorrower saves every field of b except the password hash.
func (r *Repository) UpdateBorrower(b *entities.Borrower) error {
	res := r.db.Model(b).Select("name", "email", "phone", "address", "birth_date", "member_type", "status", "updated_at").Updates(b)
	if res.Error != nil {
		if database.IsUniqueViolation(res.Error) {
			return apperr.Conflict("a borrower with email %s already exists", b.Email)
		}
		return apperr.Internal(res.Error, "failed to update borrower")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("borrower %d not found", b.ID)
	}
	return nil
}

// SetPasswordHash replaces a borrower's password hash.
func (r *Repository) SetPasswordHash(id uint, hash string) error {
	res := r.db.Model(&entities.Borrower{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return apperr.Internal(res.Error, "failed to update password")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("borrower %d not found", id)
	}
	return nil
}

// DeleteBorrower removes a borrower with no open lendings. Returned lendings
// keep the borrower ID.
func (r *Repository) DeleteBorrower(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var b entities.Borrower
		if err := database.LockRow(tx).Select("id").First(&b, id).Error; err != nil {
			if database.IsNotFound(err) {
				return apperr.NotFound("borrower %d not found", id)
			}
			return apperr.Internal(err, "failed to load borrower")
		}

		var open int64
		if err := tx.Model(&entities.Lending{}).
			Where("borrower_id = ? AND returned_at IS NULL", id).
			Count(&open).Error; err != nil {
			return apperr.Internal(err, "failed to check open lendings")
		}
		if open > 0 {
			return apperr.Conflict("borrower %d has %d copies on loan", id, open)
		}

		if err := tx.Delete(&b).Error; err != nil {
			return apperr.Internal(err, "failed to delete borrower")
		}
		return nil
	})
}
