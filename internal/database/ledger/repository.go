// Package ledger records checkouts and returns. Both transitions run in a
// single transaction that also flips the copy status, so a copy is ON_LOAN
// exactly when an unreturned lending references it.
//
// # Usage
//
//	repo := ledger.NewRepository(db)
//	err := repo.Checkout(ctx, &entities.Lending{CopyID: 1, BorrowerID: 2, DueDate: due})
package ledger

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/apperr"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

// Repository handles lending state transitions.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new ledger repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Checkout validates the borrower and copy, inserts l and marks the copy
// ON_LOAN. CheckedOutAt and DueDate must already be set. The borrower is
// checked before any copy or lending row is read.
func (r *Repository) Checkout(ctx context.Context, l *entities.Lending) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var borrower entities.Borrower
		if err := database.LockRow(tx).Select("id", "status").First(&borrower, l.BorrowerID).Error; err != nil {
			if database.IsNotFound(err) {
				return apperr.NotFound("borrower %d not found", l.BorrowerID)
			}
			return apperr.Internal(err, "failed to load borrower")
		}
		if borrower.Status != entities.BorrowerStatusActive {
			return apperr.Forbidden("borrower %d is %s and cannot borrow", borrower.ID, borrower.Status)
		}

		var cp entities.Copy
		if err := database.LockRow(tx).First(&cp, l.CopyID).Error; err != nil {
			if database.IsNotFound(err) {
				return apperr.NotFound("copy %d not found", l.CopyID)
			}
			return apperr.Internal(err, "failed to load copy")
		}
		if cp.Status != entities.CopyStatusAvailable {
			return apperr.Conflict("copy %d is not available", cp.ID)
		}

		var open int64
		if err := tx.Model(&entities.Lending{}).
			Where("copy_id = ? AND returned_at IS NULL", cp.ID).
			Count(&open).Error; err != nil {
			return apperr.Internal(err, "failed to check open lendings")
		}
		if open > 0 {
			return apperr.Conflict("copy %d is already on loan", cp.ID)
		}

		l.ReturnedAt = nil
		l.ReturnedBy = nil
		if err := tx.Create(l).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict("copy %d is already on loan", cp.ID)
			}
			return apperr.Internal(err, "failed to create lending")
		}

		res := tx.Model(&entities.Copy{}).
			Where("id = ? AND status = ?", cp.ID, entities.CopyStatusAvailable).
			Update("status", entities.CopyStatusOnLoan)
		if res.Error != nil {
			return apperr.Internal(res.Error, "failed to update copy status")
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("copy %d is not available", cp.ID)
		}
		return nil
	})
}

// Return closes an open lending and makes its copy AVAILABLE again.
// staffID 0 leaves the returning staff member unset.
func (r *Repository) Return(ctx context.Context, id uint, returnedAt time.Time, staffID uint) (*entities.Lending, error) {
	var lending entities.Lending
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&lending, id).Error; err != nil {
			if database.IsNotFound(err) {
				return apperr.NotFound("lending %d not found", id)
			}
			return apperr.Internal(err, "failed to load lending")
		}
		if !lending.IsOpen() {
			return apperr.Conflict("lending %d was already returned", id)
		}

		updates := map[string]any{"returned_at": returnedAt}
		if staffID != 0 {
			updates["returned_by"] = staffID
		}
		res := tx.Model(&entities.Lending{}).
			Where("id = ? AND returned_at IS NULL", id).
			Updates(updates)
		if res.Error != nil {
			return apperr.Internal(res.Error, "failed to close lending")
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("lending %d was already returned", id)
		}

		if err := tx.Unscoped().Model(&entities.Copy{}).
			Where("id = ?", lending.CopyID).
			Update("status", entities.CopyStatusAvailable).Error; err != nil {
			return apperr.Internal(err, "failed to update copy status")
		}

		lending.ReturnedAt = &returnedAt
		if staffID != 0 {
			lending.ReturnedBy = &staffID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &lending, nil
}
