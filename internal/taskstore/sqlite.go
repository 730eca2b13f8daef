// Package taskstore archives finished update tasks in SQLite so the bounded
// in-memory registry can evict records without losing the audit trail.
package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/gundeck/internal/task"
)

// SQLiteStore implements the archive using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and initializes) the archive database. Use ":memory:" for an
// in-memory database, or a file path for persistent storage.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		rowid_ord INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		step TEXT NOT NULL,
		percent INTEGER NOT NULL,
		canceled INTEGER NOT NULL,
		error TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		logs TEXT NOT NULL,
		result TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_started ON tasks(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Archived is one archived task row.
type Archived struct {
	ID         string    `json:"id"`
	Step       string    `json:"step"`
	Percent    int       `json:"percent"`
	Canceled   bool      `json:"canceled"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Logs       []string  `json:"logs"`
	Result     any       `json:"result,omitempty"`
}

// Archive stores a finished registry record. Re-archiving the same task ID
// replaces the previous row.
func (s *SQLiteStore) Archive(ctx context.Context, rec task.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resultJSON []byte
	if rec.Result != nil {
		var err error
		resultJSON, err = json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	canceled := 0
	if rec.Canceled {
		canceled = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tasks (id, step, percent, canceled, error, started_at, finished_at, logs, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Step, rec.Percent, canceled, rec.Error,
		rec.StartedAt.Unix(), time.Now().Unix(),
		strings.Join(rec.Logs, "\n"), resultJSON,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Recent returns up to limit archived tasks, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Archived, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, step, percent, canceled, error, started_at, finished_at, logs, result
		 FROM tasks ORDER BY started_at DESC, rowid_ord DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	return scanArchived(rows)
}

// Get returns one archived task by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Archived, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, step, percent, canceled, error, started_at, finished_at, logs, result
		 FROM tasks WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	defer rows.Close()

	archived, err := scanArchived(rows)
	if err != nil {
		return nil, err
	}
	if len(archived) == 0 {
		return nil, nil
	}
	return &archived[0], nil
}

// Prune keeps the newest keep rows and deletes the rest, returning how many
// rows were removed.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE rowid_ord NOT IN
		 (SELECT rowid_ord FROM tasks ORDER BY started_at DESC, rowid_ord DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanArchived(rows *sql.Rows) ([]Archived, error) {
	var out []Archived
	for rows.Next() {
		var a Archived
		var canceled int
		var started, finished int64
		var logs string
		var resultJSON []byte
		if err := rows.Scan(&a.ID, &a.Step, &a.Percent, &canceled, &a.Error,
			&started, &finished, &logs, &resultJSON); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		a.Canceled = canceled != 0
		a.StartedAt = time.Unix(started, 0)
		a.FinishedAt = time.Unix(finished, 0)
		if logs != "" {
			a.Logs = strings.Split(logs, "\n")
		}
		if len(resultJSON) > 0 {
			var result any
			if err := json.Unmarshal(resultJSON, &result); err == nil {
				a.Result = result
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
