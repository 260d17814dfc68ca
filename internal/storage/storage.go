package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting and querying corpus runs
type Storage interface {
	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	LatestRun(ctx context.Context) (*Run, error)
	UpdateRun(ctx context.Context, run *Run) error

	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, runID, filePath string) (*File, error)
	ListFiles(ctx context.Context, runID string) ([]*File, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, fileID int64, strategy string) (*Embedding, error)
	ListEmbeddings(ctx context.Context, runID, strategy string) ([]*Embedding, error)

	// Search operations
	SearchVector(ctx context.Context, runID, strategy string, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)

	// Status operations
	GetStatus(ctx context.Context, runID string) (*RunStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// RunState is the lifecycle state of a corpus run
type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
)

// Run is one pass of the pipeline over a corpus root
type Run struct {
	ID            string // UUID
	CorpusRoot    string
	Encoder       string
	HiddenSize    int
	ChunkSize     int
	Stride        int
	State         RunState
	TotalFiles    int
	EmbeddedFiles int
	FailedFiles   int
	StartedAt     time.Time
	FinishedAt    time.Time // Zero while running
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// File is one source unit seen by a run
type File struct {
	ID          int64
	RunID       string
	FilePath    string
	Category    string
	Language    string
	ContentHash [32]byte
	SizeBytes   int64
	TokenCount  int
	WindowCount int
	Ordinal     int     // Position in the output tables, -1 for failed files
	Error       *string // Nullable, set when the file could not be embedded
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Embedding is one strategy's vector for a file
type Embedding struct {
	ID        int64
	FileID    int64
	Strategy  string
	Vector    []float32
	Dimension int
	CreatedAt time.Time
}

// SearchFilters contains filters for narrowing search results
type SearchFilters struct {
	Category     string  // Only files in this category
	MinRelevance float64 // Minimum cosine similarity
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	FileID          int64
	FilePath        string
	Category        string
	SimilarityScore float64
}

// RunStatus contains statistics about a run
type RunStatus struct {
	Run             *Run
	FilesCount      int
	FailedCount     int
	EmbeddingsCount int
	Categories      map[string]int // embedded files per category
	IndexSizeMB     float64
	Health          HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
}
