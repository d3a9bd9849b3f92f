package entities

import "time"

// LendingStatus is derived from a lending and an as-of date. It is never stored.
type LendingStatus string

const (
	LendingStatusOnLoan   LendingStatus = "ON_LOAN"
	LendingStatusOverdue  LendingStatus = "OVERDUE"
	LendingStatusReturned LendingStatus = "RETURNED"
)

// Lending records one checkout of a copy. ReturnedAt is nil while the lending
// is open. Rows are never deleted.
type Lending struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	CopyID       uint       `gorm:"index;not null" json:"copy_id"`
	BorrowerID   uint       `gorm:"index;not null" json:"user_id"`
	CheckedOutAt time.Time  `gorm:"index;not null" json:"checkout_date"`
	DueDate      time.Time  `gorm:"index;not null" json:"due_date"`
	ReturnedAt   *time.Time `json:"return_date"`
	CheckedOutBy uint       `json:"checked_out_by,omitempty"`
	ReturnedBy   *uint      `json:"returned_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Lending) TableName() string {
	return "lendings"
}

// IsOpen reports whether the lending has not been returned.
func (l *Lending) IsOpen() bool {
	return l.ReturnedAt == nil
}

// LendingView is a lending joined with its borrower, copy and record for listings.
type LendingView struct {
	ID            uint       `db:"id" json:"id"`
	CopyID        uint       `db:"copy_id" json:"copy_id"`
	BorrowerID    uint       `db:"borrower_id" json:"user_id"`
	BorrowerName  string     `db:"borrower_name" json:"user_name"`
	BorrowerEmail string     `db:"borrower_email" json:"user_email"`
	RecordID      uint       `db:"record_id" json:"record_id"`
	Title         string     `db:"title" json:"title"`
	ISBN          string     `db:"isbn" json:"isbn"`
	Author        string     `db:"author" json:"author"`
	Location      string     `db:"location" json:"location"`
	CheckedOutAt  time.Time  `db:"checked_out_at" json:"checkout_date"`
	DueDate       time.Time  `db:"due_date" json:"due_date"`
	ReturnedAt    *time.Time `db:"returned_at" json:"return_date"`
}
