// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store keeps fetched studies in a local SQLite database so they
// can be searched and exported without calling the API again. Each fetch
// is recorded as a run. Page tokens are never stored: a token is only good
// between one response and the next request.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/ctgov/pkg/types"
)

// ErrNotFound is returned by Get for an unknown NCT ID.
var ErrNotFound = errors.New("study not found")

const defaultMaxResults = 20

// dataAPI keeps numbers in stored documents exact.
var dataAPI = sonic.Config{UseNumber: true, SortMapKeys: true}.Froze()

// Store manages the study database.
type Store struct {
	db         *sql.DB
	maxResults int
}

// Open opens or creates the database at cfg.Path and creates the schema if
// it does not exist.
func Open(cfg types.StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	s := &Store{db: db, maxResults: maxResults}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			params TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			pages INTEGER NOT NULL DEFAULT 0,
			studies INTEGER NOT NULL DEFAULT 0,
			error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS studies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			nct_id TEXT NOT NULL UNIQUE,
			brief_title TEXT,
			overall_status TEXT,
			conditions TEXT,
			has_results INTEGER NOT NULL DEFAULT 0,
			last_update TEXT,
			data TEXT NOT NULL,
			run_id TEXT REFERENCES runs(id),
			fetched_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_studies_status ON studies(overall_status)`,
		`CREATE INDEX IF NOT EXISTS idx_studies_run ON studies(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS4 external-content table kept in sync by triggers.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='studies_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE studies_fts USING fts4(content="studies", brief_title, conditions)`,
			`CREATE TRIGGER studies_bu BEFORE UPDATE ON studies BEGIN
				DELETE FROM studies_fts WHERE docid = old.rowid;
			END`,
			`CREATE TRIGGER studies_bd BEFORE DELETE ON studies BEGIN
				DELETE FROM studies_fts WHERE docid = old.rowid;
			END`,
			`CREATE TRIGGER studies_au AFTER UPDATE ON studies BEGIN
				INSERT INTO studies_fts(docid, brief_title, conditions) VALUES (new.rowid, new.brief_title, new.conditions);
			END`,
			`CREATE TRIGGER studies_ai AFTER INSERT ON studies BEGIN
				INSERT INTO studies_fts(docid, brief_title, conditions) VALUES (new.rowid, new.brief_title, new.conditions);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}
	return nil
}

// Run is one recorded fetch.
type Run struct {
	ID         string       `json:"id" yaml:"id"`
	Params     types.Params `json:"params" yaml:"params"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Pages      int          `json:"pages" yaml:"pages"`
	Studies    int          `json:"studies" yaml:"studies"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// BeginRun records the start of a fetch and returns its ID. Any pageToken
// in params is dropped.
func (s *Store) BeginRun(ctx context.Context, params types.Params) (string, error) {
	id := uuid.NewString()
	data, err := dataAPI.Marshal(params.Without("pageToken"))
	if err != nil {
		return "", fmt.Errorf("marshaling run params: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, params, started_at) VALUES (?, ?, ?)`,
		id, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of a fetch.
func (s *Store) FinishRun(ctx context.Context, runID string, pages, studies int, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, pages = ?, studies = ?, error = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), pages, studies, errText, runID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, params, started_at, finished_at, pages, studies, error
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			params   string
			started  string
			finished sql.NullString
			errText  sql.NullString
		)
		if err := rows.Scan(&r.ID, &params, &started, &finished, &r.Pages, &r.Studies, &errText); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if err := dataAPI.UnmarshalFromString(params, &r.Params); err != nil {
			return nil, fmt.Errorf("decoding params of run %s: %w", r.ID, err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			t, _ := time.Parse(time.RFC3339Nano, finished.String)
			r.FinishedAt = &t
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Save upserts records under runID. Records without an NCT ID cannot be
// keyed and are skipped. It returns the number of records written.
func (s *Store) Save(ctx context.Context, runID string, records []types.StudyRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO studies (nct_id, brief_title, overall_status, conditions, has_results, last_update, data, run_id, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(nct_id) DO UPDATE SET
			brief_title=excluded.brief_title, overall_status=excluded.overall_status,
			conditions=excluded.conditions, has_results=excluded.has_results,
			last_update=excluded.last_update, data=excluded.data,
			run_id=excluded.run_id, fetched_at=excluded.fetched_at`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	var run sql.NullString
	if runID != "" {
		run = sql.NullString{String: runID, Valid: true}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	saved := 0
	for _, r := range records {
		if r.NCTID == "" {
			continue
		}
		data, err := dataAPI.Marshal(r.Data)
		if err != nil {
			return 0, fmt.Errorf("marshaling %s: %w", r.NCTID, err)
		}
		_, err = stmt.ExecContext(ctx,
			r.NCTID, r.BriefTitle, r.OverallStatus,
			strings.Join(r.Strings(types.PathConditions), "; "),
			r.HasResults, r.String(types.PathLastUpdate),
			string(data), run, now,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting %s: %w", r.NCTID, err)
		}
		saved++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return saved, nil
}

// Get returns a stored study.
func (s *Store) Get(ctx context.Context, nctID string) (types.StudyRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM studies WHERE nct_id = ?`, nctID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return types.StudyRecord{}, fmt.Errorf("%s: %w", nctID, ErrNotFound)
	}
	if err != nil {
		return types.StudyRecord{}, fmt.Errorf("looking up %s: %w", nctID, err)
	}
	var doc map[string]any
	if err := dataAPI.UnmarshalFromString(data, &doc); err != nil {
		return types.StudyRecord{}, fmt.Errorf("decoding %s: %w", nctID, err)
	}
	rec := types.NewStudyRecord(doc)
	if rec.NCTID == "" {
		rec.NCTID = nctID
	}
	return rec, nil
}

// Count returns the number of stored studies.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM studies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting studies: %w", err)
	}
	return n, nil
}
