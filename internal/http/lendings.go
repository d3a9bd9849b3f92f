package http

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/export"
	"github.com/mrlokans/librarian/internal/lending"
	"github.com/mrlokans/librarian/internal/paging"
)

// LendingsController serves checkout, return and the lending reports.
type LendingsController struct {
	service  LendingService
	events   EventLogger
	pageSize int
}

func NewLendingsController(service LendingService, events EventLogger, pageSize int) *LendingsController {
	if pageSize <= 0 {
		pageSize = paging.DefaultSize
	}
	return &LendingsController{service: service, events: orNoop(events), pageSize: pageSize}
}

func (lc *LendingsController) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/lendings", lc.ListLendings)
	api.POST("/lendings", lc.Checkout)
	api.GET("/lendings/recent", lc.Recent)
	api.GET("/lendings/overdue", lc.ListOverdue)
	api.GET("/lendings/overdue/export", lc.ExportOverdue)
	api.GET("/lendings/:id", lc.GetLending)
	api.POST("/lendings/:id/return", lc.Return)
}

type checkoutRequest struct {
	BorrowerID uint    `json:"user_id" binding:"required"`
	CopyID     uint    `json:"copy_id" binding:"required"`
	DueDate    *string `json:"due_date"`
}

// Checkout handles POST /api/lendings
func (lc *LendingsController) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "user_id and copy_id are required")
		return
	}
	due, err := parseOptionalDate(req.DueDate, "due_date")
	if err != nil {
		respondAppError(c, err, "checkout")
		return
	}

	l, err := lc.service.Checkout(c.Request.Context(), lending.CheckoutRequest{
		BorrowerID: req.BorrowerID,
		CopyID:     req.CopyID,
		DueDate:    due,
		StaffID:    auth.GetStaffID(c),
	})
	if err != nil {
		respondAppError(c, err, "checkout")
		return
	}

	lc.events.LogCheckout(auth.Actor(c), l)
	respondCreated(c, l)
}

// Return handles POST /api/lendings/:id/return
func (lc *LendingsController) Return(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	l, err := lc.service.Return(c.Request.Context(), id, auth.GetStaffID(c))
	if err != nil {
		respondAppError(c, err, "return")
		return
	}

	lc.events.LogReturn(auth.Actor(c), l)
	c.JSON(http.StatusOK, l)
}

// ListLendings handles GET /api/lendings
// Filters: user_id, copy_id, status (open or returned).
func (lc *LendingsController) ListLendings(c *gin.Context) {
	borrowerID, ok := parseOptionalQueryID(c, "user_id")
	if !ok {
		return
	}
	copyID, ok := parseOptionalQueryID(c, "copy_id")
	if !ok {
		return
	}
	filter := entities.LendingFilter{
		BorrowerID: borrowerID,
		CopyID:     copyID,
		State:      entities.LendingState(c.Query("status")),
	}

	result, err := lc.service.ListLendings(c.Request.Context(), filter, parsePage(c, lc.pageSize))
	if err != nil {
		respondAppError(c, err, "list lendings")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetLending handles GET /api/lendings/:id
func (lc *LendingsController) GetLending(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	entry, err := lc.service.GetLending(c.Request.Context(), id)
	if err != nil {
		respondAppError(c, err, "get lending")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Recent handles GET /api/lendings/recent?limit=
func (lc *LendingsController) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := lc.service.Recent(c.Request.Context(), limit)
	if err != nil {
		respondAppError(c, err, "recent lendings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

// ListOverdue handles GET /api/lendings/overdue?as_of=YYYY-MM-DD
// A missing as_of means today. Oldest due date first.
func (lc *LendingsController) ListOverdue(c *gin.Context) {
	asOf, ok := parseOptionalDateQuery(c, "as_of")
	if !ok {
		return
	}
	result, err := lc.service.ListOverdue(c.Request.Context(), asOf, parsePage(c, lc.pageSize))
	if err != nil {
		respondAppError(c, err, "list overdue")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ExportOverdue handles GET /api/lendings/overdue/export?as_of=YYYY-MM-DD
// Streams every overdue lending as an XLSX workbook.
func (lc *LendingsController) ExportOverdue(c *gin.Context) {
	asOf, ok := parseOptionalDateQuery(c, "as_of")
	if !ok {
		return
	}
	if asOf.IsZero() {
		asOf = lc.service.Today()
	}

	entries, err := lc.service.ExportOverdue(c.Request.Context(), asOf)
	if err == nil {
		var buf bytes.Buffer
		if err = export.WriteOverdue(&buf, entries, asOf); err == nil {
			lc.logExport(c, asOf.Format(dateLayout), len(entries), nil)
			c.Header("Content-Disposition", `attachment; filename="`+export.OverdueFileName(asOf)+`"`)
			c.Data(http.StatusOK, export.ContentType, buf.Bytes())
			return
		}
	}

	lc.logExport(c, asOf.Format(dateLayout), 0, err)
	respondAppError(c, err, "export overdue")
}

func (lc *LendingsController) logExport(c *gin.Context, asOf string, count int, err error) {
	lc.events.LogReport(auth.Actor(c), "Overdue report downloaded", map[string]any{
		"as_of":   asOf,
		"entries": count,
	}, err)
}
