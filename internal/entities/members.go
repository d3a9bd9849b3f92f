package entities

import "time"

type BorrowerStatus string

const (
	BorrowerStatusActive    BorrowerStatus = "ACTIVE"
	BorrowerStatusSuspended BorrowerStatus = "SUSPENDED"
	BorrowerStatusDisabled  BorrowerStatus = "DISABLED"
)

func (s BorrowerStatus) Valid() bool {
	switch s {
	case BorrowerStatusActive, BorrowerStatusSuspended, BorrowerStatusDisabled:
		return true
	}
	return false
}

type MemberType string

const (
	MemberTypeRegular MemberType = "regular"
	MemberTypeStudent MemberType = "student"
	MemberTypeSenior  MemberType = "senior"
)

func (m MemberType) Valid() bool {
	switch m {
	case MemberTypeRegular, MemberTypeStudent, MemberTypeSenior:
		return true
	}
	return false
}

// Borrower is a library member who may take copies on loan.
type Borrower struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"index;size:200;not null" json:"name"`
	Email        string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Phone        string         `gorm:"size:40" json:"phone,omitempty"`
	Address      string         `gorm:"size:500" json:"address,omitempty"`
	BirthDate    *time.Time     `json:"birth_date,omitempty"`
	MemberType   MemberType     `gorm:"size:20;not null;default:'regular'" json:"member_type"`
	Status       BorrowerStatus `gorm:"index;size:20;not null;default:'ACTIVE'" json:"status"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Borrower) TableName() string {
	return "borrowers"
}

type StaffRole string

const (
	StaffRoleAdmin     StaffRole = "admin"
	StaffRoleLibrarian StaffRole = "librarian"
)

func (r StaffRole) Valid() bool {
	return r == StaffRoleAdmin || r == StaffRoleLibrarian
}

type StaffStatus string

const (
	StaffStatusActive   StaffStatus = "active"
	StaffStatusDisabled StaffStatus = "disabled"
)

type Staff struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	Email            string      `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name             string      `gorm:"size:200;not null" json:"name"`
	PasswordHash     string      `gorm:"size:255;not null" json:"-"`
	Role             StaffRole   `gorm:"size:20;not null;default:'librarian'" json:"role"`
	Status           StaffStatus `gorm:"size:20;not null;default:'active'" json:"status"`
	FailedLoginCount int         `gorm:"default:0" json:"-"`
	LockedUntil      *time.Time  `json:"-"`
	LastLoginAt      *time.Time  `json:"last_login_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (Staff) TableName() string {
	return "staff"
}
