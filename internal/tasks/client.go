// Package tasks runs the overdue report and audit cleanup as backlite
// queues. The queue lives in its own SQLite file next to the main database
// so it works the same whichever driver the catalog uses.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
)

// ErrUnknownQueue is returned when a task is enqueued for a queue that was
// never registered.
var ErrUnknownQueue = errors.New("queue not registered")

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

type Client struct {
	bl  *backlite.Client
	db  *sql.DB
	cfg Config

	mu     sync.RWMutex
	queues map[string]bool

	state atomic.Int32
}

// TasksDBPath maps "data/library.db" to "data/library-tasks.db".
func TasksDBPath(mainDBPath string) string {
	ext := filepath.Ext(mainDBPath)
	return strings.TrimSuffix(mainDBPath, ext) + "-tasks" + ext
}

func queueDSN(path string) string {
	return path + "?_journal=WAL&_busy_timeout=5000&_txlock=immediate"
}

// NewClient opens (creating if needed) the queue database for mainDBPath and
// installs the backlite schema.
func NewClient(mainDBPath string, cfg Config) (*Client, error) {
	path := TasksDBPath(mainDBPath)
	db, err := sql.Open("sqlite3", queueDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open task queue %s: %w", path, err)
	}
	// workers plus the dispatcher and enqueuing requests
	db.SetMaxOpenConns(cfg.Workers + 4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	bl, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          queueLogger{},
	})
	if err == nil {
		err = bl.Install()
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set up task queue %s: %w", path, err)
	}

	return &Client{bl: bl, db: db, cfg: cfg, queues: make(map[string]bool)}, nil
}

// Register adds queues. Queues registered after Start are ignored by
// backlite, so Register panics in that case.
func (c *Client) Register(queues ...backlite.Queue) {
	if c.state.Load() != stateIdle {
		panic("tasks: Register called after Start")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range queues {
		c.bl.Register(q)
		c.queues[q.Config().Name] = true
	}
}

// Registered reports whether a queue with the given name was registered.
func (c *Client) Registered(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queues[name]
}

// Start launches the workers and returns. Only the first call has an effect.
func (c *Client) Start(ctx context.Context) {
	if !c.state.CompareAndSwap(stateIdle, stateRunning) {
		return
	}
	log.Printf("[TASK] Queue started: %d workers, %d queues", c.cfg.Workers, len(c.queues))
	c.bl.Start(ctx)
}

// Stop waits for in-flight tasks until ctx is done and reports whether they
// all finished. Stopping a client that never started is a no-op.
func (c *Client) Stop(ctx context.Context) bool {
	if !c.state.CompareAndSwap(stateRunning, stateStopped) {
		return true
	}
	if !c.bl.Stop(ctx) {
		log.Println("[TASK] Queue stop timed out; unfinished tasks will be released on next start")
		return false
	}
	log.Println("[TASK] Queue stopped")
	return true
}

// Close releases the queue database. Call after Stop.
func (c *Client) Close() error {
	return c.db.Close()
}

// Enqueue saves task and returns its id.
func (c *Client) Enqueue(ctx context.Context, task backlite.Task) (string, error) {
	name := task.Config().Name
	if !c.Registered(name) {
		return "", fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	ids, err := c.bl.Add(task).Ctx(ctx).Save()
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", name, err)
	}
	if len(ids) != 1 {
		return "", fmt.Errorf("enqueue %s: saved %d tasks", name, len(ids))
	}
	return ids[0], nil
}

func (c *Client) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return c.bl.Status(ctx, taskID)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

type queueLogger struct{}

func (queueLogger) Info(message string, params ...any) {
	log.Printf("[TASK] "+message, params...)
}

func (queueLogger) Error(message string, params ...any) {
	log.Printf("[TASK ERROR] "+message, params...)
}
