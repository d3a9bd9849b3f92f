package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

// Context keys for staff data
const (
	ContextKeyStaffID  = "auth_staff_id"
	ContextKeyEmail    = "auth_email"
	ContextKeyRole     = "auth_role"
	ContextKeyAuthType = "auth_type"
)

// AuthType indicates how the request was authenticated.
type AuthType string

const (
	AuthTypeNone    AuthType = "none"
	AuthTypeSession AuthType = "session"
	AuthTypeBearer  AuthType = "bearer"
)

// AnonymousStaffID identifies the implicit admin when authentication is disabled.
const AnonymousStaffID = uint(0)

// Middleware authenticates staff on every non-public request.
type Middleware struct {
	service        *Service
	sessionManager *SessionManager
	config         config.Auth
	publicPaths    map[string]bool
}

// NewMiddleware creates a new authentication middleware. sessionManager may be nil.
func NewMiddleware(service *Service, sessionManager *SessionManager, cfg config.Auth) *Middleware {
	return &Middleware{
		service:        service,
		sessionManager: sessionManager,
		config:         cfg,
		publicPaths: map[string]bool{
			"/health":          true,
			"/ping":            true,
			"/api/staff/login": true,
		},
	}
}

// Handler returns a gin middleware that authenticates requests.
func (m *Middleware) Handler() gin.HandlerFunc {
	if m.config.Mode == config.AuthModeNone {
		return m.noAuthHandler()
	}
	return m.authHandler()
}

// noAuthHandler treats every request as the anonymous admin.
func (m *Middleware) noAuthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyStaffID, AnonymousStaffID)
		c.Set(ContextKeyRole, entities.StaffRoleAdmin)
		c.Set(ContextKeyAuthType, AuthTypeNone)
		c.Next()
	}
}

func (m *Middleware) authHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.publicPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		// bearer tokens take precedence over the session cookie
		if staff := m.tryBearerAuth(c); staff != nil {
			setStaffContext(c, staff, AuthTypeBearer)
			c.Next()
			return
		}

		if staff := m.trySessionAuth(c); staff != nil {
			setStaffContext(c, staff, AuthTypeSession)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "authentication required",
		})
	}
}

func (m *Middleware) tryBearerAuth(c *gin.Context) *entities.Staff {
	token, ok := BearerToken(c.GetHeader("Authorization"))
	if !ok {
		return nil
	}
	staff, err := m.service.ValidateToken(token)
	if err != nil {
		return nil
	}
	return staff
}

func (m *Middleware) trySessionAuth(c *gin.Context) *entities.Staff {
	if m.sessionManager == nil {
		return nil
	}
	staffID := m.sessionManager.GetStaffID(c.Request)
	if staffID == 0 {
		return nil
	}
	staff, err := m.service.GetStaffByID(staffID)
	if err != nil || staff.Status == entities.StaffStatusDisabled {
		return nil
	}
	return staff
}

func setStaffContext(c *gin.Context, staff *entities.Staff, authType AuthType) {
	c.Set(ContextKeyStaffID, staff.ID)
	c.Set(ContextKeyEmail, staff.Email)
	c.Set(ContextKeyRole, staff.Role)
	c.Set(ContextKeyAuthType, authType)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireRole rejects requests whose staff role is not one of roles.
func (m *Middleware) RequireRole(roles ...entities.StaffRole) gin.HandlerFunc {
	allowed := make(map[entities.StaffRole]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		if !allowed[GetStaffRole(c)] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "insufficient permissions",
			})
			return
		}
		c.Next()
	}
}

// GetStaffID returns the authenticated staff ID, or AnonymousStaffID.
func GetStaffID(c *gin.Context) uint {
	if id, exists := c.Get(ContextKeyStaffID); exists {
		if staffID, ok := id.(uint); ok {
			return staffID
		}
	}
	return AnonymousStaffID
}

func GetStaffEmail(c *gin.Context) string {
	return c.GetString(ContextKeyEmail)
}

func GetStaffRole(c *gin.Context) entities.StaffRole {
	if r, exists := c.Get(ContextKeyRole); exists {
		if role, ok := r.(entities.StaffRole); ok {
			return role
		}
	}
	return ""
}

func GetAuthType(c *gin.Context) AuthType {
	if t, exists := c.Get(ContextKeyAuthType); exists {
		if authType, ok := t.(AuthType); ok {
			return authType
		}
	}
	return AuthTypeNone
}
