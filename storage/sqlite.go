package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"realtor_scraper/models"
)

// SQLiteStore is the run ledger: scrape runs, their log lines and the links
// that failed extraction. Listing data itself only goes to flat files.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id TEXT PRIMARY KEY,
		city TEXT,
		kind TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		links_found INTEGER DEFAULT 0,
		records_extracted INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0,
		output_path TEXT
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		city TEXT
	);

	CREATE TABLE IF NOT EXISTS extraction_failures (
		id INTEGER PRIMARY KEY,
		run_id TEXT NOT NULL,
		link TEXT NOT NULL,
		kind TEXT,
		stage TEXT,
		message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES scrape_runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON scrape_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_failures_run ON extraction_failures(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_runs (id, city, kind, started_at, status, links_found, records_extracted, errors_count, output_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.City, run.Kind, run.StartedAt, run.Status,
		run.LinksFound, run.RecordsExtracted, run.ErrorsCount, run.OutputPath)
	return err
}

func (s *SQLiteStore) UpdateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET
			finished_at = ?, status = ?, links_found = ?, records_extracted = ?, errors_count = ?, output_path = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.LinksFound, run.RecordsExtracted, run.ErrorsCount, run.OutputPath,
		run.ID.String())
	return err
}

func (s *SQLiteStore) GetRecentRuns(limit int) ([]models.ScrapeRun, error) {
	rows, err := s.db.Query(`
		SELECT id, city, kind, started_at, finished_at, status, links_found, records_extracted, errors_count,
			COALESCE(output_path, '')
		FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ScrapeRun
	for rows.Next() {
		var run models.ScrapeRun
		var id string
		var finishedAt sql.NullTime
		if err := rows.Scan(&id, &run.City, &run.Kind, &run.StartedAt, &finishedAt, &run.Status,
			&run.LinksFound, &run.RecordsExtracted, &run.ErrorsCount, &run.OutputPath); err != nil {
			return nil, err
		}
		run.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Log(runID *uuid.UUID, level models.LogLevel, message, city string) error {
	var id interface{}
	if runID != nil {
		id = runID.String()
	}
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message, city)
		VALUES (?, ?, ?, ?, ?)`,
		id, time.Now(), level, message, city)
	return err
}

func (s *SQLiteStore) GetLogs(runID uuid.UUID) ([]models.ScrapeLog, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, level, message, city
		FROM scrape_logs WHERE run_id = ? ORDER BY id`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		l := models.ScrapeLog{RunID: &runID}
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.City); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) RecordFailure(runID uuid.UUID, failure models.ExtractionFailure) error {
	_, err := s.db.Exec(`
		INSERT INTO extraction_failures (run_id, link, kind, stage, message)
		VALUES (?, ?, ?, ?, ?)`,
		runID.String(), failure.Link, failure.Kind, failure.Stage, failure.Message)
	return err
}

func (s *SQLiteStore) GetFailures(runID uuid.UUID) ([]models.ExtractionFailure, error) {
	rows, err := s.db.Query(`
		SELECT link, kind, stage, message
		FROM extraction_failures WHERE run_id = ? ORDER BY id`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []models.ExtractionFailure
	for rows.Next() {
		var f models.ExtractionFailure
		if err := rows.Scan(&f.Link, &f.Kind, &f.Stage, &f.Message); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}
