package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/scanbook/internal"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; dispatcher workers share this handle.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input_file TEXT NOT NULL,
		output_file TEXT,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		max_tokens_per_chunk INTEGER NOT NULL,
		status TEXT DEFAULT 'running',
		total_chunks INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		total_cost REAL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- chunk_results checkpoints every successfully corrected chunk for resume support
	CREATE TABLE IF NOT EXISTS chunk_results (
		run_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		source_digest TEXT NOT NULL,
		corrected_text TEXT NOT NULL,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		attempts INTEGER DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, chunk_index),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- correction_memory maps normalized source text to a previous correction
	CREATE TABLE IF NOT EXISTS correction_memory (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		model TEXT NOT NULL,
		corrected_text TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_text, model)
	);

	CREATE INDEX IF NOT EXISTS idx_memory_lookup ON correction_memory(source_text, model);
	CREATE INDEX IF NOT EXISTS idx_chunk_results_run ON chunk_results(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- runs ---

// Run is a row from the runs table.
type Run struct {
	ID                string
	InputFile         string
	OutputFile        string
	Provider          string
	Model             string
	MaxTokensPerChunk int
	Status            string
	TotalChunks       int
	Succeeded         int
	Failed            int
	InputTokens       int
	OutputTokens      int
	TotalCost         float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RunTotals is the outcome written when a run finishes.
type RunTotals struct {
	Status       string
	TotalChunks  int
	Succeeded    int
	Failed       int
	InputTokens  int
	OutputTokens int
	TotalCost    float64
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusCancelled = "cancelled"
)

func (s *Store) CreateRun(ctx context.Context, req internal.RunRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input_file, output_file, provider, model, max_tokens_per_chunk, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.InputFile, req.OutputFile, req.Provider, req.Model, req.MaxTokensPerChunk, RunStatusRunning, req.Timestamp, req.Timestamp)
	return err
}

// MarkRunResumed sets a finished run back to running.
func (s *Store) MarkRunResumed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		RunStatusRunning, time.Now(), id)
	return err
}

func (s *Store) FinishRun(ctx context.Context, id string, totals RunTotals) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, total_chunks = ?, succeeded = ?, failed = ?, input_tokens = ?, output_tokens = ?, total_cost = ?, updated_at = ? WHERE id = ?`,
		totals.Status, totals.TotalChunks, totals.Succeeded, totals.Failed, totals.InputTokens, totals.OutputTokens, totals.TotalCost, time.Now(), id)
	return err
}

const runColumns = `id, input_file, COALESCE(output_file, ''), provider, model, max_tokens_per_chunk, status, total_chunks, succeeded, failed, input_tokens, output_tokens, total_cost, created_at, updated_at`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.InputFile, &r.OutputFile, &r.Provider, &r.Model, &r.MaxTokensPerChunk,
		&r.Status, &r.TotalChunks, &r.Succeeded, &r.Failed, &r.InputTokens, &r.OutputTokens, &r.TotalCost,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return r, err
}

// ListRuns returns the most recent runs first. limit ≤ 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// --- chunk checkpoints ---

// ChunkRecord is a checkpointed chunk correction.
type ChunkRecord struct {
	Index         int
	SourceDigest  string
	CorrectedText string
	InputTokens   int
	OutputTokens  int
	Attempts      int
}

// Digest identifies chunk source text so a resumed run can tell whether a
// checkpoint still applies.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (s *Store) SaveChunkResult(ctx context.Context, runID string, rec ChunkRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunk_results (run_id, chunk_index, source_digest, corrected_text, input_tokens, output_tokens, attempts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Index, rec.SourceDigest, rec.CorrectedText, rec.InputTokens, rec.OutputTokens, rec.Attempts)
	return err
}

// GetChunkResults returns all checkpointed chunks of a run keyed by index.
func (s *Store) GetChunkResults(ctx context.Context, runID string) (map[int]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index, source_digest, corrected_text, input_tokens, output_tokens, attempts FROM chunk_results WHERE run_id = ?`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[int]ChunkRecord)
	for rows.Next() {
		var rec ChunkRecord
		if err := rows.Scan(&rec.Index, &rec.SourceDigest, &rec.CorrectedText, &rec.InputTokens, &rec.OutputTokens, &rec.Attempts); err != nil {
			return nil, err
		}
		records[rec.Index] = rec
	}
	return records, rows.Err()
}

// --- correction memory ---

func (s *Store) LookupCorrection(ctx context.Context, sourceText, model string) (string, bool, error) {
	var corrected string
	var invalidated bool

	err := s.db.QueryRowContext(ctx,
		`SELECT corrected_text, invalidated FROM correction_memory WHERE source_text = ? AND model = ?`,
		normalizeText(sourceText), model).Scan(&corrected, &invalidated)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if invalidated {
		return "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE correction_memory SET usage_count = usage_count + 1, last_used = ? WHERE source_text = ? AND model = ?`,
		time.Now(), normalizeText(sourceText), model)

	return corrected, true, err
}

func (s *Store) SaveCorrection(ctx context.Context, sourceText, model, corrected string) error {
	id := "mem_" + uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO correction_memory (id, source_text, model, corrected_text, usage_count, invalidated, last_used, created_at) VALUES (?, ?, ?, ?, 1, FALSE, ?, ?)`,
		id, normalizeText(sourceText), model, corrected, time.Now(), time.Now())
	return err
}

// MemoryEntry is a row from the correction_memory table.
type MemoryEntry struct {
	ID            string
	SourceText    string
	Model         string
	CorrectedText string
	UsageCount    int
	Invalidated   bool
	LastUsed      time.Time
}

// CacheStats summarises correction memory usage.
type CacheStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
}

func (s *Store) InvalidateMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE correction_memory SET invalidated = TRUE WHERE id = ?`, id)
	return err
}

// DeleteMemory permanently removes a correction memory entry by ID.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM correction_memory WHERE id = ?`, id)
	return err
}

// ClearMemory removes all correction memory entries.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM correction_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMemory returns all correction memory entries ordered by most recently used.
func (s *Store) ListMemory(ctx context.Context) ([]MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_text, model, corrected_text, usage_count, invalidated, last_used FROM correction_memory ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.SourceText, &e.Model, &e.CorrectedText, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// Stats returns summary statistics for the correction memory.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM correction_memory`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
