package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

// HistoryEntry is one row of the job history
type HistoryEntry struct {
	JobID      string    `json:"job_id"`
	FileName   string    `json:"file_name"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	Model      string    `json:"model"`
	State      string    `json:"state"`
	Message    string    `json:"message,omitempty"`
	ResultURL  string    `json:"result_url,omitempty"`
	LocalPath  string    `json:"local_path,omitempty"`
	GDriveURL  string    `json:"gdrive_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// HistoryDB keeps a SQLite record of every job this client ran
type HistoryDB struct {
	db *sql.DB
}

// NewHistoryDB opens (and if needed creates) the history database
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// the sqlite driver serialises writers anyway
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		model TEXT NOT NULL,
		state TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		result_url TEXT NOT NULL DEFAULT '',
		local_path TEXT NOT NULL DEFAULT '',
		gdrive_url TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &HistoryDB{db: db}, nil
}

// SaveJob inserts or updates the row for job
func (h *HistoryDB) SaveJob(job types.Job) error {
	query := `
	INSERT INTO jobs (job_id, file_name, file_type, file_size, model, state, message, result_url, created_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(job_id) DO UPDATE SET
		state = excluded.state,
		message = excluded.message,
		result_url = excluded.result_url,
		finished_at = excluded.finished_at
	`

	var finishedAt interface{}
	if !job.FinishedAt.IsZero() {
		finishedAt = job.FinishedAt.UTC()
	}

	_, err := h.db.Exec(query, job.ID, job.FileName, job.FileType, job.FileSize, job.Model,
		job.State, job.Message, job.ResultURL, job.CreatedAt.UTC(), finishedAt)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// SetLocalPath records where the result was downloaded
func (h *HistoryDB) SetLocalPath(jobID, localPath string) error {
	return h.setColumn(jobID, "local_path", localPath)
}

// SetDriveURL records where the result was exported
func (h *HistoryDB) SetDriveURL(jobID, driveURL string) error {
	return h.setColumn(jobID, "gdrive_url", driveURL)
}

func (h *HistoryDB) setColumn(jobID, column, value string) error {
	// column is always one of our own literals
	res, err := h.db.Exec(fmt.Sprintf("UPDATE jobs SET %s = ? WHERE job_id = ?", column), value, jobID)
	if err != nil {
		return fmt.Errorf("failed to update %s for job %s: %w", column, jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s not found", jobID)
	}
	return nil
}

// GetJob retrieves one history entry by job ID
func (h *HistoryDB) GetJob(jobID string) (*HistoryEntry, error) {
	row := h.db.QueryRow(selectJobs+` WHERE job_id = ?`, jobID)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return e, nil
}

// ListJobs returns the most recent jobs first
func (h *HistoryDB) ListJobs(limit int) ([]HistoryEntry, error) {
	rows, err := h.db.Query(selectJobs+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Close closes the database connection
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

const selectJobs = `
	SELECT job_id, file_name, file_type, file_size, model, state, message,
		result_url, local_path, gdrive_url, created_at, finished_at
	FROM jobs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*HistoryEntry, error) {
	var (
		e          HistoryEntry
		finishedAt sql.NullTime
	)
	err := s.Scan(&e.JobID, &e.FileName, &e.FileType, &e.FileSize, &e.Model, &e.State, &e.Message,
		&e.ResultURL, &e.LocalPath, &e.GDriveURL, &e.CreatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		e.FinishedAt = finishedAt.Time
	}
	return &e, nil
}
