// Package reports runs the read-side lending queries: overdue lists, borrower
// history and lending listings. Queries are built with goqu for the active
// dialect and scanned with sqlx over the same pool gorm uses.
//
// The queries read lendings joined to their copy, record and author without
// the soft-delete filter, so deleted copies still show up in history.
package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/mrlokans/librarian/internal/apperr"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/paging"
)

const (
	tableLendings  = "lendings"
	tableCopies    = "copies"
	tableRecords   = "bibliographic_records"
	tableAuthors   = "authors"
	tableBorrowers = "borrowers"

	colReturnedAt   = "l.returned_at"
	colDueDate      = "l.due_date"
	colCheckedOutAt = "l.checked_out_at"
	colLendingID    = "l.id"
)

// Repository executes reporting queries.
type Repository struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
}

// NewRepository wraps the gorm connection pool of d.
func NewRepository(d *database.Database) (*Repository, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return &Repository{
		db:      sqlx.NewDb(sqlDB, d.SQLDriverName()),
		dialect: goqu.Dialect(d.Dialect()),
	}, nil
}

// Overdue returns open lendings due before asOf, oldest due date first.
func (r *Repository) Overdue(ctx context.Context, asOf time.Time, page paging.Request) ([]entities.LendingView, int64, error) {
	return r.page(ctx, r.overdueWhere(asOf), overdueOrder(), page)
}

// AllOverdue returns every open lending due before asOf, for exports.
func (r *Repository) AllOverdue(ctx context.Context, asOf time.Time) ([]entities.LendingView, error) {
	ds := r.lendings().Where(r.overdueWhere(asOf)...).Order(overdueOrder()...)
	return r.selectViews(ctx, ds)
}

// BorrowerHistory returns every lending of a borrower, newest checkout first.
func (r *Repository) BorrowerHistory(ctx context.Context, borrowerID uint, page paging.Request) ([]entities.LendingView, int64, error) {
	exists, err := r.borrowerExists(ctx, borrowerID)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, apperr.NotFound("borrower %d not found", borrowerID)
	}
	where := []exp.Expression{goqu.I("l.borrower_id").Eq(borrowerID)}
	return r.page(ctx, where, newestFirst(), page)
}

// ListLendings returns lendings matching filter, newest checkout first.
func (r *Repository) ListLendings(ctx context.Context, filter entities.LendingFilter, page paging.Request) ([]entities.LendingView, int64, error) {
	var where []exp.Expression
	if filter.BorrowerID != 0 {
		where = append(where, goqu.I("l.borrower_id").Eq(filter.BorrowerID))
	}
	if filter.CopyID != 0 {
		where = append(where, goqu.I("l.copy_id").Eq(filter.CopyID))
	}
	switch filter.State {
	case entities.LendingStateOpen:
		where = append(where, goqu.I(colReturnedAt).IsNull())
	case entities.LendingStateReturned:
		where = append(where, goqu.I(colReturnedAt).IsNotNull())
	}
	return r.page(ctx, where, newestFirst(), page)
}

// GetLending returns a single lending.
func (r *Repository) GetLending(ctx context.Context, id uint) (*entities.LendingView, error) {
	query, args, err := r.lendings().Where(goqu.I(colLendingID).Eq(id)).ToSQL()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build lending query")
	}
	var view entities.LendingView
	if err := r.db.GetContext(ctx, &view, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("lending %d not found", id)
		}
		return nil, apperr.Internal(err, "failed to load lending")
	}
	return &view, nil
}

// Recent returns the latest limit checkouts.
func (r *Repository) Recent(ctx context.Context, limit int) ([]entities.LendingView, error) {
	ds := r.lendings().Order(newestFirst()...).Limit(uint(limit))
	return r.selectViews(ctx, ds)
}

func (r *Repository) overdueWhere(asOf time.Time) []exp.Expression {
	return []exp.Expression{
		goqu.I(colReturnedAt).IsNull(),
		goqu.I(colDueDate).Lt(asOf),
	}
}

func overdueOrder() []exp.OrderedExpression {
	return []exp.OrderedExpression{goqu.I(colDueDate).Asc(), goqu.I(colLendingID).Asc()}
}

func newestFirst() []exp.OrderedExpression {
	return []exp.OrderedExpression{goqu.I(colCheckedOutAt).Desc(), goqu.I(colLendingID).Desc()}
}

// lendings selects LendingView rows. Borrowers are left-joined because a
// borrower without open lendings may be deleted while history remains.
func (r *Repository) lendings() *goqu.SelectDataset {
	return r.from().Select(
		goqu.I(colLendingID).As("id"),
		goqu.I("l.copy_id").As("copy_id"),
		goqu.I("l.borrower_id").As("borrower_id"),
		goqu.COALESCE(goqu.I("b.name"), "").As("borrower_name"),
		goqu.COALESCE(goqu.I("b.email"), "").As("borrower_email"),
		goqu.I("r.id").As("record_id"),
		goqu.I("r.title").As("title"),
		goqu.I("r.isbn").As("isbn"),
		goqu.I("a.name").As("author"),
		goqu.I("c.location").As("location"),
		goqu.I(colCheckedOutAt).As("checked_out_at"),
		goqu.I(colDueDate).As("due_date"),
		goqu.I(colReturnedAt).As("returned_at"),
	)
}

func (r *Repository) from() *goqu.SelectDataset {
	return r.dialect.From(goqu.T(tableLendings).As("l")).
		Join(goqu.T(tableCopies).As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("l.copy_id")))).
		Join(goqu.T(tableRecords).As("r"), goqu.On(goqu.I("r.id").Eq(goqu.I("c.record_id")))).
		Join(goqu.T(tableAuthors).As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("r.author_id")))).
		LeftJoin(goqu.T(tableBorrowers).As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.borrower_id")))).
		Prepared(true)
}

func (r *Repository) page(ctx context.Context, where []exp.Expression, order []exp.OrderedExpression, page paging.Request) ([]entities.LendingView, int64, error) {
	countQuery, countArgs, err := r.from().Select(goqu.COUNT(goqu.Star())).Where(where...).ToSQL()
	if err != nil {
		return nil, 0, apperr.Internal(err, "failed to build count query")
	}
	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, apperr.Internal(err, "failed to count lendings")
	}

	ds := r.lendings().Where(where...).Order(order...).
		Limit(uint(page.Limit())).Offset(uint(page.Offset()))
	views, err := r.selectViews(ctx, ds)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

func (r *Repository) selectViews(ctx context.Context, ds *goqu.SelectDataset) ([]entities.LendingView, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build lending query")
	}
	views := []entities.LendingView{}
	if err := r.db.SelectContext(ctx, &views, query, args...); err != nil {
		return nil, apperr.Internal(err, "failed to query lendings")
	}
	return views, nil
}

func (r *Repository) borrowerExists(ctx context.Context, id uint) (bool, error) {
	query, args, err := r.dialect.From(tableBorrowers).Prepared(true).
		Select(goqu.COUNT(goqu.Star())).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return false, apperr.Internal(err, "failed to build borrower query")
	}
	var n int64
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return false, apperr.Internal(err, "failed to check borrower")
	}
	return n > 0, nil
}
