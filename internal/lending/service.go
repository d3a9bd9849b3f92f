// Package lending implements the checkout and return workflow and the
// overdue classification applied to lending listings.
//
// The Service resolves due dates and the as-of date, delegates the state
// transitions to a Ledger and decorates read results from Reports with a
// status or days-overdue count. One as-of date is taken per call so every
// row in a page is classified against the same day.
package lending

import (
	"context"
	"time"

	"github.com/mrlokans/librarian/internal/apperr"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/paging"
)

// DefaultLoanPeriodDays is used when no loan period is configured.
const DefaultLoanPeriodDays = 14

// Ledger performs the lending state transitions atomically.
type Ledger interface {
	Checkout(ctx context.Context, l *entities.Lending) error
	Return(ctx context.Context, id uint, returnedAt time.Time, staffID uint) (*entities.Lending, error)
}

// Reports provides read access to lendings joined with their copy, record
// and borrower.
type Reports interface {
	Overdue(ctx context.Context, asOf time.Time, page paging.Request) ([]entities.LendingView, int64, error)
	AllOverdue(ctx context.Context, asOf time.Time) ([]entities.LendingView, error)
	BorrowerHistory(ctx context.Context, borrowerID uint, page paging.Request) ([]entities.LendingView, int64, error)
	ListLendings(ctx context.Context, filter entities.LendingFilter, page paging.Request) ([]entities.LendingView, int64, error)
	GetLending(ctx context.Context, id uint) (*entities.LendingView, error)
	Recent(ctx context.Context, limit int) ([]entities.LendingView, error)
}

// CheckoutRequest describes a checkout. DueDate defaults to the loan period.
type CheckoutRequest struct {
	BorrowerID uint
	CopyID     uint
	DueDate    *time.Time
	StaffID    uint
}

// OverdueEntry is an overdue lending with its lateness on the as-of date.
type OverdueEntry struct {
	entities.LendingView
	DaysOverdue int `json:"days_overdue"`
}

// HistoryEntry is a lending with its status on the as-of date.
type HistoryEntry struct {
	entities.LendingView
	Status entities.LendingStatus `json:"status"`
}

type Service struct {
	ledger         Ledger
	reports        Reports
	now            func() time.Time
	loanPeriodDays int
}

type Option func(*Service)

// WithClock replaces time.Now, for tests and report back-dating.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLoanPeriod sets the default loan period in days.
func WithLoanPeriod(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.loanPeriodDays = days
		}
	}
}

func NewService(ledger Ledger, reports Reports, opts ...Option) *Service {
	s := &Service{
		ledger:         ledger,
		reports:        reports,
		now:            time.Now,
		loanPeriodDays: DefaultLoanPeriodDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the as-of date for a request that does not name one.
func (s *Service) Today() time.Time {
	return AsOfDate(s.now())
}

// Checkout lends a copy to a borrower.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*entities.Lending, error) {
	if req.BorrowerID == 0 {
		return nil, apperr.Invalid("user_id is required")
	}
	if req.CopyID == 0 {
		return nil, apperr.Invalid("copy_id is required")
	}

	now := s.now().UTC()
	due := DefaultDueDate(now, s.loanPeriodDays)
	if req.DueDate != nil {
		due = AsOfDate(*req.DueDate)
		if due.Before(AsOfDate(now)) {
			return nil, apperr.Invalid("due_date must not be before the checkout date")
		}
	}

	l := &entities.Lending{
		CopyID:       req.CopyID,
		BorrowerID:   req.BorrowerID,
		CheckedOutAt: now,
		DueDate:      due,
		CheckedOutBy: req.StaffID,
	}
	if err := s.ledger.Checkout(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Return closes a lending.
func (s *Service) Return(ctx context.Context, lendingID, staffID uint) (*entities.Lending, error) {
	if lendingID == 0 {
		return nil, apperr.Invalid("lending id is required")
	}
	return s.ledger.Return(ctx, lendingID, s.now().UTC(), staffID)
}

// ListOverdue pages open lendings due before asOf. A zero asOf means today.
func (s *Service) ListOverdue(ctx context.Context, asOf time.Time, page paging.Request) (paging.Page[OverdueEntry], error) {
	asOf = s.asOf(asOf)
	views, total, err := s.reports.Overdue(ctx, asOf, page)
	if err != nil {
		return paging.Page[OverdueEntry]{}, err
	}
	return paging.NewPage(toOverdue(views, asOf), page, total), nil
}

// ExportOverdue returns every lending overdue on asOf.
func (s *Service) ExportOverdue(ctx context.Context, asOf time.Time) ([]OverdueEntry, error) {
	asOf = s.asOf(asOf)
	views, err := s.reports.AllOverdue(ctx, asOf)
	if err != nil {
		return nil, err
	}
	return toOverdue(views, asOf), nil
}

// BorrowerHistory pages a borrower's lendings, newest first.
func (s *Service) BorrowerHistory(ctx context.Context, borrowerID uint, page paging.Request) (paging.Page[HistoryEntry], error) {
	asOf := s.Today()
	views, total, err := s.reports.BorrowerHistory(ctx, borrowerID, page)
	if err != nil {
		return paging.Page[HistoryEntry]{}, err
	}
	return paging.NewPage(toHistory(views, asOf), page, total), nil
}

// ListLendings pages lendings matching filter, newest first.
func (s *Service) ListLendings(ctx context.Context, filter entities.LendingFilter, page paging.Request) (paging.Page[HistoryEntry], error) {
	if !filter.State.Valid() {
		return paging.Page[HistoryEntry]{}, apperr.Invalid("status must be open or returned")
	}
	asOf := s.Today()
	views, total, err := s.reports.ListLendings(ctx, filter, page)
	if err != nil {
		return paging.Page[HistoryEntry]{}, err
	}
	return paging.NewPage(toHistory(views, asOf), page, total), nil
}

// GetLending returns one lending with its status.
func (s *Service) GetLending(ctx context.Context, id uint) (*HistoryEntry, error) {
	view, err := s.reports.GetLending(ctx, id)
	if err != nil {
		return nil, err
	}
	return &HistoryEntry{LendingView: *view, Status: Classify(view.DueDate, view.ReturnedAt, s.Today())}, nil
}

// Recent returns the latest checkouts.
func (s *Service) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = paging.DefaultSize
	}
	if limit > paging.MaxSize {
		limit = paging.MaxSize
	}
	asOf := s.Today()
	views, err := s.reports.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return toHistory(views, asOf), nil
}

func (s *Service) asOf(t time.Time) time.Time {
	if t.IsZero() {
		return s.Today()
	}
	return AsOfDate(t)
}

func toOverdue(views []entities.LendingView, asOf time.Time) []OverdueEntry {
	out := make([]OverdueEntry, len(views))
	for i, v := range views {
		out[i] = OverdueEntry{LendingView: v, DaysOverdue: DaysOverdue(v.DueDate, asOf)}
	}
	return out
}

func toHistory(views []entities.LendingView, asOf time.Time) []HistoryEntry {
	out := make([]HistoryEntry, len(views))
	for i, v := range views {
		out[i] = HistoryEntry{LendingView: v, Status: Classify(v.DueDate, v.ReturnedAt, asOf)}
	}
	return out
}
