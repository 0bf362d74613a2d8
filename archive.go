package swarm

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS task_results (
	task_id      TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL,
	description  TEXT NOT NULL,
	status       TEXT NOT NULL,
	success      INTEGER NOT NULL,
	strategy     TEXT NOT NULL DEFAULT '',
	backend      TEXT NOT NULL DEFAULT '',
	quality      REAL NOT NULL DEFAULT 0,
	attempts     INTEGER NOT NULL DEFAULT 0,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	artifact     TEXT NOT NULL DEFAULT '',
	history      TEXT NOT NULL DEFAULT '[]',
	error        TEXT NOT NULL DEFAULT '',
	completed_at DATETIME NOT NULL
);
`

// ArchivedResult is one persisted task outcome.
type ArchivedResult struct {
	TaskID      string          `json:"task_id"`
	SessionID   string          `json:"session_id"`
	Kind        TaskKind        `json:"kind"`
	Description string          `json:"description"`
	Status      TaskStatus      `json:"status"`
	Success     bool            `json:"success"`
	Strategy    StrategyTag     `json:"strategy,omitempty"`
	Backend     string          `json:"backend,omitempty"`
	Quality     float64         `json:"quality"`
	Attempts    int             `json:"attempts"`
	Duration    time.Duration   `json:"duration"`
	Artifact    string          `json:"artifact,omitempty"`
	History     []AttemptResult `json:"history,omitempty"`
	Error       string          `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Archive persists completed task results in a SQLite database so runs
// survive process restarts and can be inspected later.
type Archive struct {
	db        *sql.DB
	sessionID string
}

// OpenArchive opens (or creates) the archive database at path and ensures
// the results table exists. The caller is responsible for calling Close.
func OpenArchive(path, sessionID string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Archive{db: db, sessionID: sessionID}, nil
}

// Close releases the underlying database connection.
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	return a.db.Close()
}

// Save persists one completed task. Re-running the same task ID overwrites
// its previous record.
func (a *Archive) Save(task *Task, result *TaskResult) error {
	if a == nil {
		return nil
	}
	history, _ := json.Marshal(result.History)
	_, err := a.db.Exec(`
		INSERT OR REPLACE INTO task_results
			(task_id, session_id, kind, description, status, success, strategy, backend,
			 quality, attempts, duration_ms, artifact, history, error, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		result.TaskID, a.sessionID, string(task.Kind), task.Description,
		string(result.Status), result.Success,
		string(result.StrategyUsed), result.BackendUsed,
		result.Quality, result.Attempts, result.Duration.Milliseconds(),
		result.Artifact, string(history), result.Error,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Get retrieves one archived result by task ID.
func (a *Archive) Get(taskID string) (*ArchivedResult, error) {
	row := a.db.QueryRow(`SELECT * FROM task_results WHERE task_id = ?`, taskID)
	res, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return res, err
}

// Recent returns the latest archived results, newest first.
func (a *Archive) Recent(limit int) ([]*ArchivedResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.Query(`SELECT * FROM task_results ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []*ArchivedResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// rowScanner abstracts sql.Row and sql.Rows for scanResult.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(s rowScanner) (*ArchivedResult, error) {
	var res ArchivedResult
	var kind, status, strategy, historyJSON string
	var durationMS int64

	err := s.Scan(
		&res.TaskID, &res.SessionID, &kind, &res.Description,
		&status, &res.Success, &strategy, &res.Backend,
		&res.Quality, &res.Attempts, &durationMS,
		&res.Artifact, &historyJSON, &res.Error,
		&res.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	res.Kind = TaskKind(kind)
	res.Status = TaskStatus(status)
	res.Strategy = StrategyTag(strategy)
	res.Duration = time.Duration(durationMS) * time.Millisecond
	_ = json.Unmarshal([]byte(historyJSON), &res.History)
	return &res, nil
}
