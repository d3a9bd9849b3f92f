package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AuthMode string

const (
	AuthModeNone  AuthMode = "none"  // Anonymous admin identity, for local development
	AuthModeLocal AuthMode = "local" // Staff accounts with JWT and sessions (default)
)

type DatabaseDriver string

const (
	DriverSQLite   DatabaseDriver = "sqlite"
	DriverPostgres DatabaseDriver = "postgres"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Auth
		Lending
		Tasks
		Schedule
		Audit
		Reports
		CORS
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Driver          DatabaseDriver
		Path            string // sqlite file
		DSN             string // postgres, overrides the DB_* parts when set
		Host            string
		Port            int
		User            string
		Password        string
		Name            string
		SSLMode         string
		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
		LogSQL          bool
	}
	Auth struct {
		Mode            AuthMode
		JWTSecret       string
		TokenExpiry     time.Duration
		SessionSecret   string
		SessionLifetime time.Duration
		BcryptCost      int
		SecureCookies   bool // false for local dev without HTTPS

		MaxLoginAttempts int           // failed attempts before lockout
		RateLimitWindow  time.Duration // window for counting attempts
		LockoutDuration  time.Duration
	}
	Lending struct {
		LoanPeriodDays int
		PageSize       int
	}
	// Tasks configures the backlite worker pool. Attempts, backoff and
	// timeouts are declared per queue by each task type.
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration // running tasks older than this are retried
		CleanupInterval time.Duration
	}
	Schedule struct {
		Enabled       bool
		OverdueReport string // cron, "0 6 * * *" = daily at 06:00
		AuditCleanup  string
	}
	Audit struct {
		RetentionDays            int
		CirculationRetentionDays int // checkout and return events
	}
	Reports struct {
		Dir string
	}
	CORS struct {
		AllowedOrigins []string
	}
)

// PostgresDSN returns the configured DSN or builds one from the DB_* parts.
func (d Database) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func NewConfig() *Config {
	// .env is optional; the process environment always wins.
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)

	v.SetDefault("database_driver", string(DriverSQLite))
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_dsn", "")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "postgres")
	v.SetDefault("db_name", "librarian")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 10)
	v.SetDefault("db_conn_max_lifetime", "5m")
	v.SetDefault("db_log_sql", false)

	// Auth defaults
	v.SetDefault("auth_mode", string(AuthModeLocal))
	v.SetDefault("auth_jwt_secret", "")           // auto-generated if empty
	v.SetDefault("auth_token_expiry", "12h")      // bearer token lifetime
	v.SetDefault("auth_session_secret", "")       // auto-generated if empty
	v.SetDefault("auth_session_lifetime", "12h")  // cookie session lifetime
	v.SetDefault("auth_bcrypt_cost", 12)          // bcrypt cost factor
	v.SetDefault("auth_secure_cookies", true)     // HTTPS-only cookies
	v.SetDefault("auth_max_login_attempts", 5)    // max failed attempts
	v.SetDefault("auth_rate_limit_window", "15m") // window for counting attempts
	v.SetDefault("auth_lockout_duration", "30m")  // lockout duration

	v.SetDefault("loan_period_days", DefaultLoanPeriodDays)
	v.SetDefault("page_size", DefaultPageSize)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	v.SetDefault("schedule_enabled", true)
	v.SetDefault("schedule_overdue_report", "0 6 * * *")
	v.SetDefault("schedule_audit_cleanup", "30 3 * * *")

	v.SetDefault("audit_retention_days", 90)
	v.SetDefault("audit_circulation_retention_days", 365)
	v.SetDefault("reports_dir", DefaultReportsDir)
	v.SetDefault("cors_allowed_origins", "")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Driver:          DatabaseDriver(strings.ToLower(v.GetString("DATABASE_DRIVER"))),
			Path:            v.GetString("DATABASE_PATH"),
			DSN:             v.GetString("DATABASE_DSN"),
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			LogSQL:          v.GetBool("DB_LOG_SQL"),
		},
		Auth: Auth{
			Mode:             AuthMode(v.GetString("AUTH_MODE")),
			JWTSecret:        v.GetString("AUTH_JWT_SECRET"),
			TokenExpiry:      v.GetDuration("AUTH_TOKEN_EXPIRY"),
			SessionSecret:    v.GetString("AUTH_SESSION_SECRET"),
			SessionLifetime:  v.GetDuration("AUTH_SESSION_LIFETIME"),
			BcryptCost:       v.GetInt("AUTH_BCRYPT_COST"),
			SecureCookies:    v.GetBool("AUTH_SECURE_COOKIES"),
			MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			RateLimitWindow:  v.GetDuration("AUTH_RATE_LIMIT_WINDOW"),
			LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
		},
		Lending: Lending{
			LoanPeriodDays: v.GetInt("LOAN_PERIOD_DAYS"),
			PageSize:       v.GetInt("PAGE_SIZE"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Schedule: Schedule{
			Enabled:       v.GetBool("SCHEDULE_ENABLED"),
			OverdueReport: v.GetString("SCHEDULE_OVERDUE_REPORT"),
			AuditCleanup:  v.GetString("SCHEDULE_AUDIT_CLEANUP"),
		},
		Audit: Audit{
			RetentionDays:            v.GetInt("AUDIT_RETENTION_DAYS"),
			CirculationRetentionDays: v.GetInt("AUDIT_CIRCULATION_RETENTION_DAYS"),
		},
		Reports: Reports{
			Dir: v.GetString("REPORTS_DIR"),
		},
		CORS: CORS{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
