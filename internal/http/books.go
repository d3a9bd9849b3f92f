package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/paging"
)

// BooksController serves the catalog: bibliographic records, their copies
// and the category list.
type BooksController struct {
	records  RecordStore
	copies   CopyStore
	events   EventLogger
	pageSize int
}

func NewBooksController(store CatalogStore, events EventLogger, pageSize int) *BooksController {
	if pageSize <= 0 {
		pageSize = paging.DefaultSize
	}
	return &BooksController{records: store, copies: store, events: orNoop(events), pageSize: pageSize}
}

// RegisterRoutes mounts the catalog routes under api.
func (bc *BooksController) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/books", bc.ListBooks)
	api.POST("/books", bc.CreateBook)
	api.GET("/books/:id", bc.GetBook)
	api.PUT("/books/:id", bc.UpdateBook)
	api.DELETE("/books/:id", bc.DeleteBook)
	api.POST("/books/:id/copies", bc.AddCopies)

	api.GET("/copies/:id", bc.GetCopy)
	api.PUT("/copies/:id", bc.UpdateCopy)
	api.DELETE("/copies/:id", bc.DeleteCopy)

	api.GET("/categories", bc.ListCategories)
}

type bookRequest struct {
	ISBN        string  `json:"isbn" binding:"required"`
	Title       string  `json:"title" binding:"required"`
	Author      string  `json:"author" binding:"required"`
	Category    string  `json:"category"`
	Publisher   string  `json:"publisher"`
	PublishedOn *string `json:"published_on"`
	Description string  `json:"description"`

	// Copies and Location apply to creation only.
	Copies   int    `json:"copies"`
	Location string `json:"location"`
}

func (r *bookRequest) record() (*entities.BibliographicRecord, error) {
	published, err := parseOptionalDate(r.PublishedOn, "published_on")
	if err != nil {
		return nil, err
	}
	return &entities.BibliographicRecord{
		ISBN:        strings.TrimSpace(r.ISBN),
		Title:       strings.TrimSpace(r.Title),
		Author:      entities.Author{Name: r.Author},
		Category:    entities.Category{Name: r.Category},
		Publisher:   r.Publisher,
		PublishedOn: published,
		Description: r.Description,
	}, nil
}

// ListBooks handles GET /api/books
// Filters: isbn, title and author (substring), category (exact name).
func (bc *BooksController) ListBooks(c *gin.Context) {
	page := parsePage(c, bc.pageSize)
	filter := entities.RecordFilter{
		ISBN:     c.Query("isbn"),
		Title:    c.Query("title"),
		Author:   c.Query("author"),
		Category: c.Query("category"),
	}

	records, total, err := bc.records.ListRecords(filter, page)
	if err != nil {
		respondAppError(c, err, "list books")
		return
	}
	c.JSON(http.StatusOK, paging.NewPage(records, page, total))
}

// GetBook handles GET /api/books/:id
func (bc *BooksController) GetBook(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	record, err := bc.records.GetRecord(id)
	if err != nil {
		respondAppError(c, err, "get book")
		return
	}
	c.JSON(http.StatusOK, record)
}

// CreateBook handles POST /api/books
// The record and its initial copies are stored together.
func (bc *BooksController) CreateBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "isbn, title and author are required")
		return
	}
	record, err := req.record()
	if err != nil {
		respondAppError(c, err, "create book")
		return
	}

	if err := bc.records.CreateRecord(record, req.Copies, req.Location); err != nil {
		respondAppError(c, err, "create book")
		return
	}

	bc.events.LogCatalog(auth.Actor(c), "record_create", "record", record.ID, "Created record "+record.Title)
	respondCreated(c, record)
}

// UpdateBook handles PUT /api/books/:id
func (bc *BooksController) UpdateBook(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "isbn, title and author are required")
		return
	}
	changes, err := req.record()
	if err != nil {
		respondAppError(c, err, "update book")
		return
	}

	record, err := bc.records.UpdateRecord(id, changes)
	if err != nil {
		respondAppError(c, err, "update book")
		return
	}

	bc.events.LogCatalog(auth.Actor(c), "record_update", "record", record.ID, "Updated record "+record.Title)
	c.JSON(http.StatusOK, record)
}

// DeleteBook handles DELETE /api/books/:id
// Rejected with 409 while any copy of the record is on loan.
func (bc *BooksController) DeleteBook(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	record, err := bc.records.GetRecord(id)
	if err != nil {
		respondAppError(c, err, "delete book")
		return
	}
	if err := bc.records.DeleteRecord(id); err != nil {
		respondAppError(c, err, "delete book")
		return
	}

	bc.events.LogDelete(auth.Actor(c), "record", id, record.Title)
	respondSuccess(c, "book deleted")
}

type addCopiesRequest struct {
	Count    int    `json:"count"`
	Location string `json:"location"`
}

// AddCopies handles POST /api/books/:id/copies
func (bc *BooksController) AddCopies(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	req := addCopiesRequest{Count: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}

	copies, err := bc.copies.AddCopies(id, req.Count, req.Location)
	if err != nil {
		respondAppError(c, err, "add copies")
		return
	}

	for _, cp := range copies {
		bc.events.LogCatalog(auth.Actor(c), "copy_create", "copy", cp.ID, "Added copy to record")
	}
	respondCreated(c, gin.H{"items": copies})
}

// GetCopy handles GET /api/copies/:id
func (bc *BooksController) GetCopy(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	cp, err := bc.copies.GetCopy(id)
	if err != nil {
		respondAppError(c, err, "get copy")
		return
	}
	c.JSON(http.StatusOK, cp)
}

type updateCopyRequest struct {
	Location string `json:"location" binding:"required"`
}

// UpdateCopy handles PUT /api/copies/:id
// Only the shelf location can change; a copy on loan cannot be moved.
func (bc *BooksController) UpdateCopy(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateCopyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "location is required")
		return
	}

	cp, err := bc.copies.UpdateCopyLocation(id, strings.TrimSpace(req.Location))
	if err != nil {
		respondAppError(c, err, "update copy")
		return
	}

	bc.events.LogCatalog(auth.Actor(c), "copy_update", "copy", cp.ID, "Moved copy to "+cp.Location)
	c.JSON(http.StatusOK, cp)
}

// DeleteCopy handles DELETE /api/copies/:id
func (bc *BooksController) DeleteCopy(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := bc.copies.DeleteCopy(id); err != nil {
		respondAppError(c, err, "delete copy")
		return
	}

	bc.events.LogDelete(auth.Actor(c), "copy", id, "copy")
	respondSuccess(c, "copy deleted")
}

// ListCategories handles GET /api/categories
func (bc *BooksController) ListCategories(c *gin.Context) {
	categories, err := bc.records.ListCategories()
	if err != nil {
		respondAppError(c, err, "list categories")
		return
	}
	names := make([]string, len(categories))
	for i, cat := range categories {
		names[i] = cat.Name
	}
	c.JSON(http.StatusOK, gin.H{"categories": names})
}
