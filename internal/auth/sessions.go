package auth

import (
	"encoding/gob"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

// Session data keys
const (
	SessionKeyStaffID = "staff_id"
	SessionKeyRole    = "role"
	SessionKeyLoginAt = "login_at"
)

const SessionCookieName = "librarian_session"

func init() {
	gob.Register(entities.StaffRole(""))
	gob.Register(time.Time{})
}

// SessionManager wraps scs.SessionManager with staff-specific accessors.
type SessionManager struct {
	*scs.SessionManager
}

// NewSessionManager creates a session manager. SQLite databases keep sessions
// in a sessions table; other drivers keep them in memory.
func NewSessionManager(d *database.Database, cfg config.Auth) (*SessionManager, error) {
	sm := scs.New()

	if d.Driver == config.DriverSQLite {
		sqlDB, err := d.DB.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		_, err = sqlDB.Exec(`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			expiry REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`)
		if err != nil {
			return nil, fmt.Errorf("failed to create sessions table: %w", err)
		}
		sm.Store = sqlite3store.New(sqlDB)
	} else {
		sm.Store = memstore.New()
	}

	lifetime := cfg.SessionLifetime
	if lifetime <= 0 {
		lifetime = 12 * time.Hour
	}
	sm.Lifetime = lifetime
	sm.IdleTimeout = lifetime / 2

	sm.Cookie.Name = SessionCookieName
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = cfg.SecureCookies
	sm.Cookie.SameSite = http.SameSiteStrictMode
	sm.Cookie.Path = "/"

	return &SessionManager{SessionManager: sm}, nil
}

// CreateSession starts a session for staff after their password was verified.
func (sm *SessionManager) CreateSession(r *http.Request, staff *entities.Staff) error {
	// new token on login prevents session fixation
	if err := sm.RenewToken(r.Context()); err != nil {
		return err
	}

	sm.Put(r.Context(), SessionKeyStaffID, int(staff.ID))
	sm.Put(r.Context(), SessionKeyRole, staff.Role)
	sm.Put(r.Context(), SessionKeyLoginAt, time.Now().UTC())
	return nil
}

// DestroySession removes all session data and invalidates the session.
func (sm *SessionManager) DestroySession(r *http.Request) error {
	return sm.Destroy(r.Context())
}

// GetStaffID returns the staff ID stored in the session, or 0.
func (sm *SessionManager) GetStaffID(r *http.Request) uint {
	return uint(sm.GetInt(r.Context(), SessionKeyStaffID))
}

func (sm *SessionManager) GetRole(r *http.Request) entities.StaffRole {
	role, _ := sm.Get(r.Context(), SessionKeyRole).(entities.StaffRole)
	return role
}

func (sm *SessionManager) GetLoginAt(r *http.Request) time.Time {
	loginAt, _ := sm.Get(r.Context(), SessionKeyLoginAt).(time.Time)
	return loginAt
}
