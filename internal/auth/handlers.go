package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/entities"
)

// Auditor records authentication and staff management events.
type Auditor interface {
	LogAuth(actor audit.Actor, action string, success bool)
	LogMembership(actor audit.Actor, action, entityType string, entityID uint, description string)
}

// Actor describes the current request for audit events.
func Actor(c *gin.Context) audit.Actor {
	return audit.Actor{
		StaffID:   GetStaffID(c),
		RequestID: c.GetString(audit.ContextKeyRequestID),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// StaffController handles staff login and account endpoints.
type StaffController struct {
	service        *Service
	sessionManager *SessionManager
	rateLimiter    *RateLimiter
	auditor        Auditor
}

// NewStaffController creates a staff controller. sessionManager and auditor may be nil.
func NewStaffController(service *Service, sessionManager *SessionManager, rateLimiter *RateLimiter, auditor Auditor) *StaffController {
	return &StaffController{
		service:        service,
		sessionManager: sessionManager,
		rateLimiter:    rateLimiter,
		auditor:        auditor,
	}
}

// RegisterRoutes mounts the staff routes under api.
func (sc *StaffController) RegisterRoutes(api *gin.RouterGroup, mw *Middleware) {
	staff := api.Group("/staff")
	if sc.rateLimiter != nil {
		staff.POST("/login", sc.rateLimiter.RateLimitMiddleware(), sc.Login)
	} else {
		staff.POST("/login", sc.Login)
	}
	staff.POST("/logout", sc.Logout)
	staff.GET("/profile", sc.Profile)
	staff.POST("/change-password", sc.ChangePassword)

	admin := staff.Group("", mw.RequireRole(entities.StaffRoleAdmin))
	admin.GET("", sc.List)
	admin.POST("", sc.Create)
	admin.PUT("/:id/status", sc.SetStatus)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Staff     *entities.Staff `json:"staff"`
}

// Login verifies credentials and returns a bearer token. A cookie session is
// started as well when sessions are enabled.
func (sc *StaffController) Login(c *gin.Context) {
	var req loginRequest
	// the rate limiter has already read the body
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	clientIP := c.ClientIP()

	staff, err := sc.service.Authenticate(email, req.Password)
	if err != nil {
		sc.logAuth(c, "login_failed", false)
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			if sc.rateLimiter != nil {
				sc.rateLimiter.RecordFailure(clientIP, email)
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, ErrAccountDisabled), errors.Is(err, ErrAccountLocked):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate"})
		}
		return
	}

	if sc.rateLimiter != nil {
		sc.rateLimiter.RecordSuccess(clientIP, email)
	}

	token, expiresAt, err := sc.service.IssueToken(staff)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	if sc.sessionManager != nil {
		if err := sc.sessionManager.CreateSession(c.Request, staff); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}
	}

	c.Set(ContextKeyStaffID, staff.ID)
	sc.logAuth(c, "login", true)
	c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt, Staff: staff})
}

// Logout ends the cookie session. Bearer tokens expire on their own.
func (sc *StaffController) Logout(c *gin.Context) {
	if sc.sessionManager != nil {
		_ = sc.sessionManager.DestroySession(c.Request)
	}
	sc.logAuth(c, "logout", true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Profile returns the authenticated staff member.
func (sc *StaffController) Profile(c *gin.Context) {
	staffID := GetStaffID(c)
	if staffID == AnonymousStaffID {
		c.JSON(http.StatusOK, gin.H{"id": 0, "name": "anonymous", "role": GetStaffRole(c)})
		return
	}
	staff, err := sc.service.GetStaffByID(staffID)
	if err != nil {
		if errors.Is(err, ErrStaffNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, staff)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePassword replaces the caller's password.
func (sc *StaffController) ChangePassword(c *gin.Context) {
	staffID := GetStaffID(c)
	if staffID == AnonymousStaffID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no staff account in this session"})
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current_password and new_password are required"})
		return
	}

	err := sc.service.ChangePassword(staffID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		sc.logAuth(c, "password_change", true)
		c.JSON(http.StatusOK, gin.H{"message": "password updated"})
	case errors.Is(err, ErrInvalidCredentials):
		sc.logAuth(c, "password_change", false)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "current password is incorrect"})
	case errors.Is(err, ErrPasswordTooShort), errors.Is(err, ErrPasswordTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrStaffNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update password"})
	}
}

type createStaffRequest struct {
	Email    string             `json:"email" binding:"required"`
	Name     string             `json:"name" binding:"required"`
	Password string             `json:"password" binding:"required"`
	Role     entities.StaffRole `json:"role"`
}

// Create adds a staff account.
func (sc *StaffController) Create(c *gin.Context) {
	var req createStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, name and password are required"})
		return
	}

	staff, err := sc.service.CreateStaff(req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrStaffExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, ErrEmailRequired), errors.Is(err, ErrEmailInvalid),
			errors.Is(err, ErrNameRequired), errors.Is(err, ErrPasswordRequired),
			errors.Is(err, ErrPasswordTooShort), errors.Is(err, ErrPasswordTooLong),
			errors.Is(err, ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create staff"})
		}
		return
	}

	if sc.auditor != nil {
		sc.auditor.LogMembership(Actor(c), "staff_create", "staff", staff.ID, "Created staff account "+staff.Email)
	}
	c.JSON(http.StatusCreated, staff)
}

// List returns every staff account.
func (sc *StaffController) List(c *gin.Context) {
	staff, err := sc.service.ListStaff()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list staff"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": staff})
}

type setStatusRequest struct {
	Status entities.StaffStatus `json:"status" binding:"required"`
}

// SetStatus enables or disables a staff account.
func (sc *StaffController) SetStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid staff id"})
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	if uint(id) == GetStaffID(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot change your own status"})
		return
	}

	staff, err := sc.service.SetStatus(uint(id), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ErrStaffNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update staff"})
		}
		return
	}

	if sc.auditor != nil {
		sc.auditor.LogMembership(Actor(c), "staff_status", "staff", staff.ID, "Set staff "+staff.Email+" to "+string(staff.Status))
	}
	c.JSON(http.StatusOK, staff)
}

func (sc *StaffController) logAuth(c *gin.Context, action string, success bool) {
	if sc.auditor != nil {
		sc.auditor.LogAuth(Actor(c), action, success)
	}
}
