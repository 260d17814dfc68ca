package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Run operations

const runColumns = `
	id, corpus_root, encoder, hidden_size, chunk_size, stride, state,
	total_files, embedded_files, failed_files, started_at, finished_at,
	created_at, updated_at
`

func scanRun(row scanner) (*Run, error) {
	var run Run
	var state string
	var finishedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.CorpusRoot, &run.Encoder, &run.HiddenSize, &run.ChunkSize,
		&run.Stride, &state, &run.TotalFiles, &run.EmbeddedFiles, &run.FailedFiles,
		&run.StartedAt, &finishedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.State = RunState(state)
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// createRunWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createRunWithQuerier(ctx context.Context, q querier, run *Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.State == "" {
		run.State = RunRunning
	}
	now := time.Now()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}

	query := `
		INSERT INTO runs (id, corpus_root, encoder, hidden_size, chunk_size, stride, state,
		                  total_files, embedded_files, failed_files, started_at, finished_at,
		                  created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	result, err := q.ExecContext(ctx, query,
		run.ID, run.CorpusRoot, run.Encoder, run.HiddenSize, run.ChunkSize, run.Stride,
		string(run.State), run.TotalFiles, run.EmbeddedFiles, run.FailedFiles,
		run.StartedAt, nullTime(run.FinishedAt), now, now)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrAlreadyExists)
	}

	run.CreatedAt = now
	run.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateRun(ctx context.Context, run *Run) error {
	return s.createRunWithQuerier(ctx, s.querier(), run)
}

func (s *SQLiteStorage) getRunWithQuerier(ctx context.Context, q querier, runID string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	return scanRun(q.QueryRowContext(ctx, query, runID))
}

func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*Run, error) {
	return s.getRunWithQuerier(ctx, s.querier(), runID)
}

func (s *SQLiteStorage) latestRunWithQuerier(ctx context.Context, q querier) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, created_at DESC LIMIT 1`
	return scanRun(q.QueryRowContext(ctx, query))
}

// LatestRun returns the most recently started run
func (s *SQLiteStorage) LatestRun(ctx context.Context) (*Run, error) {
	return s.latestRunWithQuerier(ctx, s.querier())
}

// updateRunWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) updateRunWithQuerier(ctx context.Context, q querier, run *Run) error {
	query := `
		UPDATE runs
		SET state = ?, total_files = ?, embedded_files = ?, failed_files = ?,
		    finished_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		string(run.State), run.TotalFiles, run.EmbeddedFiles, run.FailedFiles,
		nullTime(run.FinishedAt), now, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	run.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateRun(ctx context.Context, run *Run) error {
	return s.updateRunWithQuerier(ctx, s.querier(), run)
}

// File operations

const fileColumns = `
	id, run_id, file_path, category, language, content_hash, size_bytes,
	token_count, window_count, ordinal, error, created_at, updated_at
`

func scanFile(row scanner) (*File, error) {
	var file File
	var hash []byte
	var language, fileErr sql.NullString
	err := row.Scan(
		&file.ID, &file.RunID, &file.FilePath, &file.Category, &language, &hash,
		&file.SizeBytes, &file.TokenCount, &file.WindowCount, &file.Ordinal,
		&fileErr, &file.CreatedAt, &file.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	copy(file.ContentHash[:], hash)
	file.Language = language.String
	if fileErr.Valid {
		file.Error = &fileErr.String
	}
	return &file, nil
}

// upsertFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	query := `
		INSERT INTO files (run_id, file_path, category, language, content_hash, size_bytes,
		                   token_count, window_count, ordinal, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, file_path) DO UPDATE SET
			category = excluded.category,
			language = excluded.language,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			token_count = excluded.token_count,
			window_count = excluded.window_count,
			ordinal = excluded.ordinal,
			error = excluded.error,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		file.RunID, file.FilePath, file.Category, file.Language, file.ContentHash[:],
		file.SizeBytes, file.TokenCount, file.WindowCount, file.Ordinal, file.Error,
		now, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	file.UpdatedAt = now
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	return nil
}

func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *File) error {
	return s.upsertFileWithQuerier(ctx, s.querier(), file)
}

func (s *SQLiteStorage) getFileWithQuerier(ctx context.Context, q querier, runID, filePath string) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE run_id = ? AND file_path = ?`
	return scanFile(q.QueryRowContext(ctx, query, runID, filePath))
}

func (s *SQLiteStorage) GetFile(ctx context.Context, runID, filePath string) (*File, error) {
	return s.getFileWithQuerier(ctx, s.querier(), runID, filePath)
}

// listFilesWithQuerier returns files in the order they were recorded
func (s *SQLiteStorage) listFilesWithQuerier(ctx context.Context, q querier, runID string) ([]*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE run_id = ? ORDER BY id`
	rows, err := q.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFiles(ctx context.Context, runID string) ([]*File, error) {
	return s.listFilesWithQuerier(ctx, s.querier(), runID)
}

// Embedding operations

// upsertEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	if embedding.Dimension == 0 {
		embedding.Dimension = len(embedding.Vector)
	}
	if embedding.Dimension != len(embedding.Vector) {
		return fmt.Errorf("embedding dimension %d does not match vector length %d", embedding.Dimension, len(embedding.Vector))
	}

	query := `
		INSERT INTO embeddings (file_id, strategy, vector, dimension, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_id, strategy) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		embedding.FileID, embedding.Strategy, serializeVector(embedding.Vector),
		embedding.Dimension, now).Scan(&embedding.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	embedding.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

func scanEmbedding(row scanner) (*Embedding, error) {
	var embedding Embedding
	var blob []byte
	err := row.Scan(
		&embedding.ID, &embedding.FileID, &embedding.Strategy, &blob,
		&embedding.Dimension, &embedding.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	embedding.Vector = deserializeVector(blob)
	return &embedding, nil
}

func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, fileID int64, strategy string) (*Embedding, error) {
	query := `
		SELECT id, file_id, strategy, vector, dimension, created_at
		FROM embeddings
		WHERE file_id = ? AND strategy = ?
	`
	return scanEmbedding(q.QueryRowContext(ctx, query, fileID, strategy))
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, fileID int64, strategy string) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), fileID, strategy)
}

// listEmbeddingsWithQuerier returns a run's embeddings in table order
func (s *SQLiteStorage) listEmbeddingsWithQuerier(ctx context.Context, q querier, runID, strategy string) ([]*Embedding, error) {
	query := `
		SELECT e.id, e.file_id, e.strategy, e.vector, e.dimension, e.created_at
		FROM embeddings e
		INNER JOIN files f ON e.file_id = f.id
		WHERE f.run_id = ? AND e.strategy = ?
		ORDER BY f.ordinal
	`
	rows, err := q.QueryContext(ctx, query, runID, strategy)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	embeddings := make([]*Embedding, 0)
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, e)
	}
	return embeddings, rows.Err()
}

func (s *SQLiteStorage) ListEmbeddings(ctx context.Context, runID, strategy string) ([]*Embedding, error) {
	return s.listEmbeddingsWithQuerier(ctx, s.querier(), runID, strategy)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, runID, strategy string, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), runID, strategy, queryVector, limit, filters)
}

// Status operations

// getStatusWithQuerier reports on runID, or on the latest run when runID is empty
func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, runID string) (*RunStatus, error) {
	var run *Run
	var err error
	if runID == "" {
		run, err = s.latestRunWithQuerier(ctx, q)
	} else {
		run, err = s.getRunWithQuerier(ctx, q, runID)
	}
	if err != nil {
		return nil, err
	}

	status := &RunStatus{
		Run:        run,
		Categories: make(map[string]int),
	}

	// Count files
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM files WHERE run_id = ?
	`, run.ID).Scan(&status.FilesCount, &status.FailedCount)
	if err != nil {
		return nil, err
	}

	// Count embeddings
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM embeddings e
		JOIN files f ON e.file_id = f.id
		WHERE f.run_id = ?
	`, run.ID).Scan(&status.EmbeddingsCount)
	if err != nil {
		return nil, err
	}

	// Embedded files per category
	rows, err := q.QueryContext(ctx, `
		SELECT category, COUNT(*) FROM files
		WHERE run_id = ? AND error IS NULL
		GROUP BY category
	`, run.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		status.Categories[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, runID string) (*RunStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), runID)
}

// Transaction implementations delegate to the storage helpers with the
// transaction as querier

func (t *sqliteTx) CreateRun(ctx context.Context, run *Run) error {
	return t.storage.createRunWithQuerier(ctx, t.querier(), run)
}

func (t *sqliteTx) GetRun(ctx context.Context, runID string) (*Run, error) {
	return t.storage.getRunWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) LatestRun(ctx context.Context) (*Run, error) {
	return t.storage.latestRunWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) UpdateRun(ctx context.Context, run *Run) error {
	return t.storage.updateRunWithQuerier(ctx, t.querier(), run)
}

func (t *sqliteTx) UpsertFile(ctx context.Context, file *File) error {
	return t.storage.upsertFileWithQuerier(ctx, t.querier(), file)
}

func (t *sqliteTx) GetFile(ctx context.Context, runID, filePath string) (*File, error) {
	return t.storage.getFileWithQuerier(ctx, t.querier(), runID, filePath)
}

func (t *sqliteTx) ListFiles(ctx context.Context, runID string) ([]*File, error) {
	return t.storage.listFilesWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, fileID int64, strategy string) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), fileID, strategy)
}

func (t *sqliteTx) ListEmbeddings(ctx context.Context, runID, strategy string) ([]*Embedding, error) {
	return t.storage.listEmbeddingsWithQuerier(ctx, t.querier(), runID, strategy)
}

func (t *sqliteTx) SearchVector(ctx context.Context, runID, strategy string, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), runID, strategy, vector, limit, filters)
}

func (t *sqliteTx) GetStatus(ctx context.Context, runID string) (*RunStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close, they commit or rollback
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}
