// Package dbtest provides gorm handles for tests that assert on the SQL a
// repository generates for a dialect no test server is available for.
package dbtest

import (
	"database/sql"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Recorder collects the SELECT statements built through a dry-run handle.
type Recorder struct {
	mu    sync.Mutex
	stmts []string
}

func (r *Recorder) add(stmt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = append(r.stmts, stmt)
}

// Statements returns the recorded statements in order.
func (r *Recorder) Statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stmts...)
}

// Locked reports whether a recorded SELECT from table took a row lock.
func (r *Recorder) Locked(table string) bool {
	from := `FROM "` + table + `"`
	for _, stmt := range r.Statements() {
		if strings.Contains(stmt, from) && strings.Contains(stmt, "FOR UPDATE") {
			return true
		}
	}
	return false
}

// PostgresDryRun returns a postgres-dialect handle that builds statements
// without running them. Transactions begin and commit on an in-memory SQLite
// connection, so repository code runs unchanged. Queries find no rows and
// report no errors.
func PostgresDryRun(t testing.TB) (*gorm.DB, *Recorder) {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	rec := &Recorder{}
	err = db.Callback().Query().After("gorm:query").Register("dbtest:record", func(tx *gorm.DB) {
		rec.add(tx.Statement.SQL.String())
	})
	require.NoError(t, err)
	return db, rec
}
