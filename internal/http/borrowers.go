package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/apperr"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/paging"
)

// BorrowersController serves /api/users: borrower records and their
// lending history.
type BorrowersController struct {
	store      BorrowerStore
	lendings   LendingService
	events     EventLogger
	bcryptCost int
	pageSize   int
}

func NewBorrowersController(store BorrowerStore, lendings LendingService, events EventLogger, bcryptCost, pageSize int) *BorrowersController {
	if pageSize <= 0 {
		pageSize = paging.DefaultSize
	}
	return &BorrowersController{
		store:      store,
		lendings:   lendings,
		events:     orNoop(events),
		bcryptCost: bcryptCost,
		pageSize:   pageSize,
	}
}

func (bc *BorrowersController) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/users", bc.ListBorrowers)
	api.POST("/users", bc.CreateBorrower)
	api.GET("/users/:id", bc.GetBorrower)
	api.PUT("/users/:id", bc.UpdateBorrower)
	api.DELETE("/users/:id", bc.DeleteBorrower)
	api.POST("/users/:id/change-password", bc.ChangePassword)
	api.GET("/users/:id/lending-history", bc.LendingHistory)
}

type createBorrowerRequest struct {
	Name       string                  `json:"name" binding:"required"`
	Email      string                  `json:"email" binding:"required,email"`
	Phone      string                  `json:"phone"`
	Address    string                  `json:"address"`
	BirthDate  *string                 `json:"birth_date"`
	MemberType entities.MemberType     `json:"member_type"`
	Status     entities.BorrowerStatus `json:"status"`
	Password   string                  `json:"password"`
}

// updateBorrowerRequest holds optional fields; absent ones are unchanged.
type updateBorrowerRequest struct {
	Name       *string                  `json:"name"`
	Email      *string                  `json:"email" binding:"omitempty,email"`
	Phone      *string                  `json:"phone"`
	Address    *string                  `json:"address"`
	BirthDate  *string                  `json:"birth_date"`
	MemberType *entities.MemberType     `json:"member_type"`
	Status     *entities.BorrowerStatus `json:"status"`
}

func validateBorrower(b *entities.Borrower) error {
	if strings.TrimSpace(b.Name) == "" {
		return apperr.Invalid("name is required")
	}
	if strings.TrimSpace(b.Email) == "" {
		return apperr.Invalid("email is required")
	}
	if b.MemberType != "" && !b.MemberType.Valid() {
		return apperr.Invalid("member_type must be regular, student or senior")
	}
	if b.Status != "" && !b.Status.Valid() {
		return apperr.Invalid("status must be ACTIVE, SUSPENDED or DISABLED")
	}
	return nil
}

// ListBorrowers handles GET /api/users
// Filters: id (exact), name and email (substring).
func (bc *BorrowersController) ListBorrowers(c *gin.Context) {
	id, ok := parseOptionalQueryID(c, "id")
	if !ok {
		return
	}
	page := parsePage(c, bc.pageSize)
	filter := entities.BorrowerFilter{ID: id, Name: c.Query("name"), Email: c.Query("email")}

	borrowers, total, err := bc.store.ListBorrowers(filter, page)
	if err != nil {
		respondAppError(c, err, "list borrowers")
		return
	}
	c.JSON(http.StatusOK, paging.NewPage(borrowers, page, total))
}

// GetBorrower handles GET /api/users/:id
func (bc *BorrowersController) GetBorrower(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	b, err := bc.store.GetBorrower(id)
	if err != nil {
		respondAppError(c, err, "get borrower")
		return
	}
	c.JSON(http.StatusOK, b)
}

// CreateBorrower handles POST /api/users
func (bc *BorrowersController) CreateBorrower(c *gin.Context) {
	var req createBorrowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "name and a valid email are required")
		return
	}
	birth, err := parseOptionalDate(req.BirthDate, "birth_date")
	if err != nil {
		respondAppError(c, err, "create borrower")
		return
	}

	b := &entities.Borrower{
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:      req.Phone,
		Address:    req.Address,
		BirthDate:  birth,
		MemberType: req.MemberType,
		Status:     req.Status,
	}
	if err := validateBorrower(b); err != nil {
		respondAppError(c, err, "create borrower")
		return
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password, bc.bcryptCost)
		if err != nil {
			bc.respondPasswordError(c, err)
			return
		}
		b.PasswordHash = hash
	}

	if err := bc.store.CreateBorrower(b); err != nil {
		respondAppError(c, err, "create borrower")
		return
	}

	bc.events.LogMembership(auth.Actor(c), "borrower_create", "borrower", b.ID, "Registered borrower "+b.Email)
	respondCreated(c, b)
}

// UpdateBorrower handles PUT /api/users/:id
func (bc *BorrowersController) UpdateBorrower(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateBorrowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	b, err := bc.store.GetBorrower(id)
	if err != nil {
		respondAppError(c, err, "update borrower")
		return
	}
	if err := applyBorrowerUpdate(b, &req); err != nil {
		respondAppError(c, err, "update borrower")
		return
	}
	if err := validateBorrower(b); err != nil {
		respondAppError(c, err, "update borrower")
		return
	}

	if err := bc.store.UpdateBorrower(b); err != nil {
		respondAppError(c, err, "update borrower")
		return
	}

	bc.events.LogMembership(auth.Actor(c), "borrower_update", "borrower", b.ID, "Updated borrower "+b.Email)
	c.JSON(http.StatusOK, b)
}

func applyBorrowerUpdate(b *entities.Borrower, req *updateBorrowerRequest) error {
	if req.Name != nil {
		b.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		b.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Phone != nil {
		b.Phone = *req.Phone
	}
	if req.Address != nil {
		b.Address = *req.Address
	}
	if req.BirthDate != nil {
		birth, err := parseOptionalDate(req.BirthDate, "birth_date")
		if err != nil {
			return err
		}
		b.BirthDate = birth
	}
	if req.MemberType != nil {
		b.MemberType = *req.MemberType
	}
	if req.Status != nil {
		b.Status = *req.Status
	}
	return nil
}

// DeleteBorrower handles DELETE /api/users/:id
// Rejected with 409 while the borrower has copies on loan.
func (bc *BorrowersController) DeleteBorrower(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	b, err := bc.store.GetBorrower(id)
	if err != nil {
		respondAppError(c, err, "delete borrower")
		return
	}
	if err := bc.store.DeleteBorrower(id); err != nil {
		respondAppError(c, err, "delete borrower")
		return
	}

	bc.events.LogDelete(auth.Actor(c), "borrower", id, b.Email)
	respondSuccess(c, "borrower deleted")
}

type borrowerPasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePassword handles POST /api/users/:id/change-password
// A borrower that already has a password must present it.
func (bc *BorrowersController) ChangePassword(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req borrowerPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "new_password is required")
		return
	}

	b, err := bc.store.GetBorrower(id)
	if err != nil {
		respondAppError(c, err, "change borrower password")
		return
	}
	if b.PasswordHash != "" {
		if err := auth.CheckPassword(req.CurrentPassword, b.PasswordHash); err != nil {
			if errors.Is(err, auth.ErrInvalidPassword) {
				c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "current password is incorrect", Code: apperr.KindUnauthenticated.String()})
				return
			}
			respondInternalError(c, err, "check borrower password")
			return
		}
	}

	hash, err := auth.HashPassword(req.NewPassword, bc.bcryptCost)
	if err != nil {
		bc.respondPasswordError(c, err)
		return
	}
	if err := bc.store.SetPasswordHash(id, hash); err != nil {
		respondAppError(c, err, "change borrower password")
		return
	}

	bc.events.LogMembership(auth.Actor(c), "borrower_password", "borrower", id, "Changed password of "+b.Email)
	respondSuccess(c, "password updated")
}

func (bc *BorrowersController) respondPasswordError(c *gin.Context, err error) {
	if errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong) {
		respondBadRequest(c, err.Error())
		return
	}
	respondInternalError(c, err, "hash borrower password")
}

// LendingHistory handles GET /api/users/:id/lending-history
// Newest checkout first; each entry carries its status as of today.
func (bc *BorrowersController) LendingHistory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	page := parsePage(c, bc.pageSize)

	history, err := bc.lendings.BorrowerHistory(c.Request.Context(), id, page)
	if err != nil {
		respondAppError(c, err, "borrower history")
		return
	}
	c.JSON(http.StatusOK, history)
}
