package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

const hstsMaxAge = 31536000

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.SecureCookies {
		router.Use(auth.StrictTransportSecurityMiddleware(hstsMaxAge))
	}

	if len(cfg.CORSOrigins) > 0 {
		router.Use(CORSMiddleware(cfg.CORSOrigins))
	}

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies, cfg.AuthService))
	}

	// Session runs after CSRF so session context isn't overwritten by CSRF's request replacement
	if cfg.SessionManager != nil {
		router.Use(cfg.SessionManager.LoadAndSaveGin())
	}

	health := NewHealthController(cfg.Version, healthProbes(cfg)...)
	router.GET("/health", health.Status)
	router.GET("/ping", health.Ping)

	mw := cfg.AuthMiddleware
	if mw == nil {
		// no auth configured: every request is the anonymous admin
		mw = auth.NewMiddleware(nil, nil, config.Auth{Mode: config.AuthModeNone})
	}
	api := router.Group("/api", mw.Handler())
	admin := api.Group("", mw.RequireRole(entities.StaffRoleAdmin))

	if cfg.AuthService != nil {
		auth.NewStaffController(cfg.AuthService, cfg.SessionManager, cfg.RateLimiter, orNoop(cfg.Events)).
			RegisterRoutes(api, mw)
	}

	if cfg.Catalog != nil {
		NewBooksController(cfg.Catalog, cfg.Events, cfg.PageSize).RegisterRoutes(api)
	}
	if cfg.Lendings != nil {
		NewLendingsController(cfg.Lendings, cfg.Events, cfg.PageSize).RegisterRoutes(api)
		if cfg.Members != nil {
			NewBorrowersController(cfg.Members, cfg.Lendings, cfg.Events, cfg.BcryptCost, cfg.PageSize).RegisterRoutes(api)
		}
	}

	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit)
		admin.GET("/audit", auditController.GetAuditEvents)
		admin.GET("/audit/types", auditController.ListEventTypes)
	}

	// Task management endpoints
	if cfg.TaskQueue != nil {
		tasksController := NewTasksController(cfg.TaskQueue, cfg.AuditCleanup)
		api.GET("/tasks/types", tasksController.ListTaskTypes)
		api.GET("/tasks/:id", tasksController.GetTaskStatus)
		admin.POST("/tasks/:type/run", tasksController.RunTask)
	}

	return router
}
