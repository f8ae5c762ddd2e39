// Package store records training runs and their merge tables in SQLite so
// earlier vocabularies can be listed, compared and exported again.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/takuphilchan/offgrid-bpe/internal/bpe"
)

// Run is one recorded training run.
type Run struct {
	ID             int64     `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	CorpusPath     string    `json:"corpus_path"`
	LineLimit      int       `json:"line_limit"`
	Pattern        string    `json:"pattern,omitempty"`
	RequestedVocab int       `json:"requested_vocab"`
	AchievedVocab  int       `json:"achieved_vocab"`
	InitialTokens  int       `json:"initial_tokens"`
	FinalTokens    int       `json:"final_tokens"`
	Exhausted      bool      `json:"exhausted"`
	OutputPath     string    `json:"output_path"`
	Checksum       string    `json:"checksum"`
	DurationMs     int64     `json:"duration_ms"`
}

// Registry is a SQLite-backed run history.
type Registry struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open opens (creating if needed) the registry database at dbPath.
func Open(dbPath string) (*Registry, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps PRAGMAs in effect for every statement.
	db.SetMaxOpenConns(1)

	r := &Registry{db: db, dbPath: dbPath}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) initSchema() error {
	if _, err := r.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := r.db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at DATETIME NOT NULL,
			corpus_path TEXT,
			line_limit INTEGER,
			pattern TEXT,
			requested_vocab INTEGER NOT NULL,
			achieved_vocab INTEGER NOT NULL,
			initial_tokens INTEGER,
			final_tokens INTEGER,
			exhausted INTEGER NOT NULL DEFAULT 0,
			output_path TEXT,
			checksum TEXT NOT NULL,
			duration_ms INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS merges (
			run_id INTEGER NOT NULL,
			merge_id INTEGER NOT NULL,
			left_id INTEGER NOT NULL,
			right_id INTEGER NOT NULL,
			PRIMARY KEY (run_id, merge_id),
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);`,
	}
	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute init query: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (r *Registry) Close() error {
	return r.db.Close()
}

// RecordRun stores run and its table in one transaction and returns the
// new run id. Checksum and AchievedVocab are taken from table.
func (r *Registry) RecordRun(run *Run, table *bpe.MergeTable) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.AchievedVocab = table.VocabSize()
	run.Checksum = bpe.Checksum(table)

	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO runs (created_at, corpus_path, line_limit, pattern, requested_vocab, achieved_vocab,
			initial_tokens, final_tokens, exhausted, output_path, checksum, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.CreatedAt, run.CorpusPath, run.LineLimit, run.Pattern, run.RequestedVocab, run.AchievedVocab,
		run.InitialTokens, run.FinalTokens, run.Exhausted, run.OutputPath, run.Checksum, run.DurationMs)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO merges (run_id, merge_id, left_id, right_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, rule := range table.Rules() {
		if _, err := stmt.Exec(id, rule.ID, rule.Pair.Left, rule.Pair.Right); err != nil {
			return 0, fmt.Errorf("failed to insert merge %d: %w", rule.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	run.ID = id
	return id, nil
}

const runColumns = `id, created_at, corpus_path, line_limit, pattern, requested_vocab, achieved_vocab,
	initial_tokens, final_tokens, exhausted, output_path, checksum, duration_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	err := s.Scan(&run.ID, &run.CreatedAt, &run.CorpusPath, &run.LineLimit, &run.Pattern,
		&run.RequestedVocab, &run.AchievedVocab, &run.InitialTokens, &run.FinalTokens,
		&run.Exhausted, &run.OutputPath, &run.Checksum, &run.DurationMs)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun returns a run by id, or nil if there is none.
func (r *Registry) GetRun(id int64) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns all runs, newest first.
func (r *Registry) ListRuns() ([]*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LoadTable rebuilds the merge table recorded for a run. The stored rows
// go through the same validation as a table file, and the result must
// match the recorded checksum.
func (r *Registry) LoadTable(runID int64) (*bpe.MergeTable, error) {
	run, err := r.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %d not found", runID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.Query(`SELECT merge_id, left_id, right_id FROM merges WHERE run_id = ? ORDER BY merge_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := bpe.NewMergeTable()
	for rows.Next() {
		var id int
		var p bpe.Pair
		if err := rows.Scan(&id, &p.Left, &p.Right); err != nil {
			return nil, err
		}
		if err := table.Insert(p, id); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if sum := bpe.Checksum(table); sum != run.Checksum {
		return nil, &bpe.Error{
			Kind:    bpe.KindMalformedTable,
			Message: fmt.Sprintf("run %d: checksum mismatch (stored %s, computed %s)", runID, run.Checksum, sum),
		}
	}
	return table, nil
}

// DeleteRun removes a run and its merges.
func (r *Registry) DeleteRun(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Cascade delete handles merges
	_, err := r.db.Exec("DELETE FROM runs WHERE id = ?", id)
	return err
}

// Stats returns statistics about the registry
func (r *Registry) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var runCount, mergeCount int
	r.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&runCount)
	r.db.QueryRow("SELECT COUNT(*) FROM merges").Scan(&mergeCount)

	return map[string]interface{}{
		"run_count":   runCount,
		"merge_count": mergeCount,
		"backend":     "sqlite",
		"path":        r.dbPath,
	}
}
