package http

import (
	"context"
	"time"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/lending"
	"github.com/mrlokans/librarian/internal/paging"
)

// This file consolidates the store and service interfaces used by HTTP
// controllers. Each controller depends only on the interface it needs.

// --- Catalog ---

// RecordStore manages bibliographic records.
type RecordStore interface {
	CreateRecord(record *entities.BibliographicRecord, copies int, location string) error
	UpdateRecord(id uint, changes *entities.BibliographicRecord) (*entities.BibliographicRecord, error)
	GetRecord(id uint) (*entities.BibliographicRecord, error)
	ListRecords(filter entities.RecordFilter, page paging.Request) ([]entities.BibliographicRecord, int64, error)
	DeleteRecord(id uint) error
	ListCategories() ([]entities.Category, error)
}

// CopyStore manages physical copies.
type CopyStore interface {
	AddCopies(recordID uint, count int, location string) ([]entities.Copy, error)
	GetCopy(id uint) (*entities.Copy, error)
	UpdateCopyLocation(id uint, location string) (*entities.Copy, error)
	DeleteCopy(id uint) error
}

// CatalogStore is the full catalog surface.
type CatalogStore interface {
	RecordStore
	CopyStore
}

// --- Membership ---

// BorrowerStore manages borrower records.
type BorrowerStore interface {
	CreateBorrower(b *entities.Borrower) error
	GetBorrower(id uint) (*entities.Borrower, error)
	ListBorrowers(filter entities.BorrowerFilter, page paging.Request) ([]entities.Borrower, int64, error)
	UpdateBorrower(b *entities.Borrower) error
	SetPasswordHash(id uint, hash string) error
	DeleteBorrower(id uint) error
}

// --- Lending ---

// LendingService runs the lending workflow and its reports.
type LendingService interface {
	Checkout(ctx context.Context, req lending.CheckoutRequest) (*entities.Lending, error)
	Return(ctx context.Context, lendingID, staffID uint) (*entities.Lending, error)
	ListOverdue(ctx context.Context, asOf time.Time, page paging.Request) (paging.Page[lending.OverdueEntry], error)
	ExportOverdue(ctx context.Context, asOf time.Time) ([]lending.OverdueEntry, error)
	BorrowerHistory(ctx context.Context, borrowerID uint, page paging.Request) (paging.Page[lending.HistoryEntry], error)
	ListLendings(ctx context.Context, filter entities.LendingFilter, page paging.Request) (paging.Page[lending.HistoryEntry], error)
	GetLending(ctx context.Context, id uint) (*lending.HistoryEntry, error)
	Recent(ctx context.Context, limit int) ([]lending.HistoryEntry, error)
	Today() time.Time
}

// --- Audit ---

// EventLogger records audit events. Implementations must not block the
// request on storage.
type EventLogger interface {
	LogCheckout(actor audit.Actor, l *entities.Lending)
	LogReturn(actor audit.Actor, l *entities.Lending)
	LogDelete(actor audit.Actor, entityType string, entityID uint, entityName string)
	LogCatalog(actor audit.Actor, action, entityType string, entityID uint, description string)
	LogMembership(actor audit.Actor, action, entityType string, entityID uint, description string)
	LogAuth(actor audit.Actor, action string, success bool)
	LogReport(actor audit.Actor, description string, metadata map[string]any, err error)
}

// AuditReader lists recorded audit events.
type AuditReader interface {
	GetEvents(filter entities.AuditFilter, page paging.Request) ([]entities.AuditEvent, int64, error)
}
