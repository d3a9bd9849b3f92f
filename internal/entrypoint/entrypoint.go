package entrypoint

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	auditrepo "github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/ledger"
	"github.com/mrlokans/librarian/internal/database/members"
	"github.com/mrlokans/librarian/internal/database/reports"
	http_controllers "github.com/mrlokans/librarian/internal/http"
	"github.com/mrlokans/librarian/internal/lending"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// kill (no param) sends SIGTERM, kill -2 is SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting requests first so no task is enqueued into a stopped queue
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

// Core holds the storage and lending components shared by the server and
// the CLI commands.
type Core struct {
	DB       *database.Database
	Catalog  *catalog.Repository
	Members  *members.Repository
	Lendings *lending.Service
	Audit    *audit.Service
}

// OpenCore opens the database and builds the repositories on top of it.
func OpenCore(cfg *config.Config) (*Core, error) {
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	reportsRepo, err := reports.NewRepository(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize reports: %w", err)
	}

	return &Core{
		DB:      db,
		Catalog: catalog.NewRepository(db.DB),
		Members: members.NewRepository(db.DB),
		Lendings: lending.NewService(
			ledger.NewRepository(db.DB),
			reportsRepo,
			lending.WithLoanPeriod(cfg.Lending.LoanPeriodDays),
		),
		Audit: audit.NewService(auditrepo.NewRepository(db.DB)),
	}, nil
}

// Close flushes pending audit events and closes the database.
func (c *Core) Close() error {
	c.Audit.Wait()
	return c.DB.Close()
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Librarian v%s", version)

	core, err := OpenCore(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() {
		if err := core.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()
	log.Printf("Database: %s", cfg.Database.Driver)

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.FromSettings(cfg.Tasks))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		if err := os.MkdirAll(cfg.Reports.Dir, 0o755); err != nil {
			log.Fatalf("Failed to create reports directory %s: %v", cfg.Reports.Dir, err)
		}
		taskClient.Register(
			tasks.NewOverdueReportQueue(core.Lendings, cfg.Reports.Dir, core.Audit),
			tasks.NewCleanupAuditEventsQueue(core.Audit),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	} else {
		log.Printf("Task queue disabled")
	}

	var maintenance *scheduler.MaintenanceScheduler
	if taskClient != nil && cfg.Schedule.Enabled {
		maintenance = scheduler.NewMaintenanceScheduler(taskClient, scheduler.Config{
			OverdueReport:            cfg.Schedule.OverdueReport,
			AuditCleanup:             cfg.Schedule.AuditCleanup,
			AuditRetentionDays:       cfg.Audit.RetentionDays,
			CirculationRetentionDays: cfg.Audit.CirculationRetentionDays,
		})
		if err := maintenance.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start maintenance scheduler: %v", err)
		}
	}

	// Initialize authentication if enabled
	var authService *auth.Service
	var authMiddleware *auth.Middleware
	var sessionManager *auth.SessionManager
	var rateLimiter *auth.RateLimiter
	var csrfSecret []byte

	if cfg.Auth.Mode == config.AuthModeLocal {
		log.Printf("Authentication mode: local")

		authService, err = auth.NewService(core.DB.DB, cfg.Auth)
		if err != nil {
			log.Fatalf("Failed to initialize auth service: %v", err)
		}
		if cfg.Auth.JWTSecret == "" {
			log.Printf("Generated JWT secret (set AUTH_JWT_SECRET to keep tokens valid across restarts)")
		}

		sessionManager, err = auth.NewSessionManager(core.DB, cfg.Auth)
		if err != nil {
			log.Fatalf("Failed to initialize session manager: %v", err)
		}

		authMiddleware = auth.NewMiddleware(authService, sessionManager, cfg.Auth)
		rateLimiter = auth.NewRateLimiter(auth.RateLimitConfigFromAuth(cfg.Auth))
		defer rateLimiter.Stop()

		csrfSecret = loadCSRFSecret(cfg.Auth.SessionSecret)

		hasStaff, _ := authService.HasStaff()
		if !hasStaff {
			log.Printf("No staff accounts found. Run 'librarian create-staff -role admin' to create one.")
		}
	} else {
		log.Printf("Authentication mode: none (no authentication required)")
	}

	routerCfg := http_controllers.RouterConfig{
		Database:       core.DB,
		Catalog:        core.Catalog,
		Members:        core.Members,
		Lendings:       core.Lendings,
		Events:         core.Audit,
		Audit:          core.Audit,
		AuthService:    authService,
		AuthMiddleware: authMiddleware,
		SessionManager: sessionManager,
		RateLimiter:    rateLimiter,
		CSRFSecret:     csrfSecret,
		SecureCookies:  cfg.Auth.SecureCookies,
		BcryptCost:     cfg.Auth.BcryptCost,
		CORSOrigins:    cfg.CORS.AllowedOrigins,
		AuditCleanup: tasks.CleanupAuditEventsTask{
			RetentionDays:            cfg.Audit.RetentionDays,
			CirculationRetentionDays: cfg.Audit.CirculationRetentionDays,
		},
		PageSize: cfg.Lending.PageSize,
		Version:  version,
	}
	// a nil *tasks.Client must not end up inside a non-nil interface
	if taskClient != nil {
		routerCfg.TaskQueue = taskClient
		routerCfg.TaskPinger = taskClient
		routerCfg.ReportsDir = cfg.Reports.Dir
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if maintenance != nil {
			maintenance.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}

func loadCSRFSecret(configured string) []byte {
	if configured != "" {
		secret, err := hex.DecodeString(configured)
		if err != nil {
			// Not hex, use as raw bytes
			return []byte(configured)
		}
		return secret
	}
	secret, err := auth.GenerateSessionSecret()
	if err != nil {
		log.Fatalf("Failed to generate CSRF secret: %v", err)
	}
	decoded, _ := hex.DecodeString(secret)
	log.Printf("Generated session secret (set AUTH_SESSION_SECRET to persist)")
	return decoded
}
