package entities

import (
	"time"

	"gorm.io/gorm"
)

// UncategorizedName is the seeded fallback category.
const UncategorizedName = "uncategorized"

type CopyStatus string

const (
	CopyStatusAvailable CopyStatus = "AVAILABLE"
	CopyStatusOnLoan    CopyStatus = "ON_LOAN"
)

func (s CopyStatus) Valid() bool {
	return s == CopyStatusAvailable || s == CopyStatusOnLoan
}

type Author struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:200;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// BibliographicRecord holds the metadata shared by every copy of a work.
type BibliographicRecord struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ISBN        string         `gorm:"uniqueIndex:idx_records_isbn,where:deleted_at IS NULL;size:20;not null" json:"isbn"`
	Title       string         `gorm:"index;size:512;not null" json:"title"`
	AuthorID    uint           `gorm:"index" json:"author_id"`
	Author      Author         `gorm:"foreignKey:AuthorID" json:"author"`
	CategoryID  uint           `gorm:"index" json:"category_id"`
	Category    Category       `gorm:"foreignKey:CategoryID" json:"category"`
	Publisher   string         `gorm:"size:256" json:"publisher,omitempty"`
	PublishedOn *time.Time     `json:"published_on,omitempty"`
	Description string         `gorm:"type:text" json:"description,omitempty"`
	Copies      []Copy         `gorm:"foreignKey:RecordID" json:"copies,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (BibliographicRecord) TableName() string {
	return "bibliographic_records"
}

// Copy is one physical, independently lendable instance of a record.
// Status changes only through checkout and return.
type Copy struct {
	ID        uint                 `gorm:"primaryKey" json:"id"`
	RecordID  uint                 `gorm:"index;not null" json:"record_id"`
	Record    *BibliographicRecord `gorm:"foreignKey:RecordID" json:"record,omitempty"`
	Status    CopyStatus           `gorm:"index;size:20;not null;default:'AVAILABLE'" json:"status"`
	Location  string               `gorm:"size:100" json:"location"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	DeletedAt gorm.DeletedAt       `gorm:"index" json:"-"`
}

func (Copy) TableName() string {
	return "copies"
}
