package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/patternvec/internal/embedder"
	"github.com/dshills/patternvec/internal/logging"
	"github.com/dshills/patternvec/internal/storage"
	"github.com/dshills/patternvec/internal/table"
	"github.com/dshills/patternvec/internal/walker"
	"github.com/dshills/patternvec/pkg/types"
)

// Defaults for Config
const (
	DefaultExtension = ".py"
	DefaultWorkers   = 1
)

// Embedder is the part of the ChunkedEncoder the indexer needs
type Embedder interface {
	Embed(ctx context.Context, code string) (*types.EmbeddingPair, error)
	HiddenSize() int
	EncoderName() string
	Config() embedder.Config
}

// Finder discovers the files of one category directory
type Finder interface {
	Scan(root, ext string) (*walker.ScanResult, error)
}

// Indexer coordinates the corpus pipeline: walk -> read -> embed -> tables -> store
type Indexer struct {
	embedder Embedder
	storage  storage.Storage // optional
	walker   Finder
	logger   *zap.Logger
}

// Option configures an Indexer
type Option func(*Indexer)

// WithStorage persists runs, files and vectors to store
func WithStorage(store storage.Storage) Option {
	return func(idx *Indexer) {
		idx.storage = store
	}
}

// WithWalker replaces the default extension-only walker
func WithWalker(w Finder) Option {
	return func(idx *Indexer) {
		idx.walker = w
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(idx *Indexer) {
		idx.logger = logging.OrNop(logger)
	}
}

// Config contains configuration for a corpus run
type Config struct {
	Extension    string // File suffix to embed (default: .py)
	Workers      int    // Concurrent Embed calls (default: 1)
	RunID        string // Generated when empty
	OutputDir    string // When set, both tables are saved here
	OutputPrefix string // Table file prefix (default: embeddings)
}

// Failure records a file that could not be embedded, or a path that
// discovery could not read
type Failure struct {
	Path     string
	Category string
	Err      error
}

// Statistics contains statistics about a corpus run
type Statistics struct {
	Categories    int
	FilesFound    int
	FilesEmbedded int
	FilesFailed   int
	// FilesCancelled counts files never embedded because the run was cancelled
	FilesCancelled int
	// PathsSkipped counts directories or entries discovery could not read
	PathsSkipped int
	TotalTokens   int
	TotalWindows  int
	Duration      time.Duration
	Failures      []Failure
}

// Result is the outcome of IndexCorpus
type Result struct {
	RunID       string
	TokenMean   *table.Table
	SummaryMean *table.Table
	OutputFiles []string
	Stats       *Statistics
}

// Table returns the table for a strategy
func (r *Result) Table(s types.Strategy) *table.Table {
	if s == types.StrategySummaryMean {
		return r.SummaryMean
	}
	return r.TokenMean
}

// job is one discovered file; ordinal is its position in discovery order
type job struct {
	path     string
	category string
	ordinal  int
}

// outcome is what embedding a job produced
type outcome struct {
	unit      *types.SourceUnit
	pair      *types.EmbeddingPair
	err       error
	cancelled bool
}

// New creates a new Indexer instance
func New(emb Embedder, opts ...Option) *Indexer {
	idx := &Indexer{
		embedder: emb,
		walker:   walker.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexCorpus embeds every file below each category directory of root.
// A file or directory that cannot be read or embedded is recorded in
// Statistics.Failures and the run continues. Table rows follow discovery
// order regardless of Workers.
//
// When ctx is cancelled mid-run, or storage fails, the rows finished so far
// are still saved and the partial Result is returned with the error.
func (idx *Indexer) IndexCorpus(ctx context.Context, root string, config *Config) (*Result, error) {
	cfg := withDefaults(config)
	startTime := time.Now()
	logger := idx.logger.With(zap.String("run_id", cfg.RunID), zap.String("root", root))

	categories, err := walker.ListCategories(root)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:       cfg.RunID,
		TokenMean:   table.New(types.StrategyTokenMean, idx.embedder.HiddenSize()),
		SummaryMean: table.New(types.StrategySummaryMean, idx.embedder.HiddenSize()),
		Stats:       &Statistics{Categories: len(categories)},
	}

	jobs := idx.discover(root, categories, cfg.Extension, result.Stats, logger)
	result.Stats.FilesFound = len(jobs)
	logger.Info("corpus discovered",
		zap.Int("categories", len(categories)),
		zap.Int("files", len(jobs)),
		zap.Int("skipped", result.Stats.PathsSkipped),
		zap.String("extension", cfg.Extension))

	run, err := idx.startRun(ctx, root, cfg.RunID, len(jobs))
	if err != nil {
		return nil, err
	}

	outcomes, embedErr := idx.embedAll(ctx, jobs, cfg.Workers, logger)
	ordinals := idx.collect(jobs, outcomes, result)

	// Finished rows outlive a cancelled run
	writeCtx := context.WithoutCancel(ctx)
	saveErr := idx.saveTables(cfg, result)
	persistErr := idx.persist(writeCtx, cfg.RunID, root, jobs, outcomes, ordinals)

	result.Stats.Duration = time.Since(startTime)
	if err := errors.Join(embedErr, saveErr, persistErr); err != nil {
		idx.finishRun(writeCtx, run, storage.RunFailed, result.Stats, logger)
		logger.Warn("corpus run incomplete",
			zap.Int("embedded", result.Stats.FilesEmbedded),
			zap.Int("cancelled", result.Stats.FilesCancelled),
			zap.Strings("outputs", result.OutputFiles),
			zap.Error(err))
		return result, err
	}
	idx.finishRun(ctx, run, storage.RunCompleted, result.Stats, logger)

	logger.Info("corpus run complete",
		zap.Int("embedded", result.Stats.FilesEmbedded),
		zap.Int("failed", result.Stats.FilesFailed),
		zap.Int("tokens", result.Stats.TotalTokens),
		zap.Int("windows", result.Stats.TotalWindows),
		zap.Duration("duration", result.Stats.Duration),
		zap.Strings("outputs", result.OutputFiles))

	return result, nil
}

// saveTables writes both tables when an output directory is configured
func (idx *Indexer) saveTables(cfg Config, result *Result) error {
	if cfg.OutputDir == "" {
		return nil
	}
	for _, s := range types.Strategies {
		path := filepath.Join(cfg.OutputDir, table.FileName(cfg.OutputPrefix, s))
		if err := result.Table(s).Save(path); err != nil {
			return fmt.Errorf("failed to save %s table: %w", s, err)
		}
		result.OutputFiles = append(result.OutputFiles, path)
	}
	return nil
}

func withDefaults(config *Config) Config {
	var cfg Config
	if config != nil {
		cfg = *config
	}
	if cfg.Extension == "" {
		cfg.Extension = DefaultExtension
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.OutputPrefix == "" {
		cfg.OutputPrefix = "embeddings"
	}
	return cfg
}

// discover lists files category by category. A category or entry that
// cannot be read is recorded as a failure and skipped.
func (idx *Indexer) discover(root string, categories []string, ext string, stats *Statistics, logger *zap.Logger) []job {
	var jobs []job
	skip := func(path, category string, err error) {
		logger.Warn("skipping unreadable path",
			zap.String("path", path),
			zap.String("category", category),
			zap.Error(err))
		stats.PathsSkipped++
		stats.Failures = append(stats.Failures, Failure{Path: path, Category: category, Err: err})
	}

	for _, category := range categories {
		dir := filepath.Join(root, category)
		scan, err := idx.walker.Scan(dir, ext)
		if err != nil {
			skip(dir, category, err)
			continue
		}
		for _, s := range scan.Skipped {
			skip(s.Path, category, s.Err)
		}
		for _, path := range scan.Files {
			jobs = append(jobs, job{path: path, category: category, ordinal: len(jobs)})
		}
	}
	return jobs
}

// embedAll runs Embed for every job with at most workers calls in flight.
// Per-file errors land in the outcome; only cancellation aborts, and then the
// outcomes finished so far are returned alongside the error with the rest
// marked cancelled.
func (idx *Indexer) embedAll(ctx context.Context, jobs []job, workers int, logger *zap.Logger) ([]outcome, error) {
	outcomes := make([]outcome, len(jobs))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i].cancelled = true
				return err
			}
			o := idx.embedFile(gctx, jobs[i])
			if o.err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					outcomes[i].cancelled = true
					return ctxErr
				}
				logger.Warn("failed to embed file",
					zap.String("path", jobs[i].path),
					zap.String("category", jobs[i].category),
					zap.Error(o.err))
			}
			outcomes[i] = o
			logger.Debug("file processed",
				zap.String("path", jobs[i].path),
				zap.Int32("done", done.Add(1)),
				zap.Int("total", len(jobs)))
			return nil
		})
	}

	err := g.Wait()
	return outcomes, err
}

func (idx *Indexer) embedFile(ctx context.Context, j job) outcome {
	unit, err := walker.ReadSourceUnit(j.path, j.category)
	if err != nil {
		return outcome{err: err}
	}

	pair, err := idx.embedder.Embed(ctx, unit.Content)
	if err != nil {
		return outcome{unit: unit, err: err}
	}
	return outcome{unit: unit, pair: pair}
}

// collect appends successful outcomes to the tables in job order and returns
// each job's table row index, -1 for failures
func (idx *Indexer) collect(jobs []job, outcomes []outcome, result *Result) []int {
	stats := result.Stats
	ordinals := make([]int, len(jobs))

	for i, o := range outcomes {
		ordinals[i] = -1
		if o.cancelled {
			stats.FilesCancelled++
			continue
		}
		err := o.err
		if err == nil {
			err = appendRows(result, jobs[i], o.pair)
		}
		if err != nil {
			outcomes[i].err = err
			stats.FilesFailed++
			stats.Failures = append(stats.Failures, Failure{Path: jobs[i].path, Category: jobs[i].category, Err: err})
			continue
		}

		ordinals[i] = result.TokenMean.Len() - 1
		stats.FilesEmbedded++
		stats.TotalTokens += o.pair.TokenCount
		stats.TotalWindows += o.pair.WindowCount
	}
	return ordinals
}

func appendRows(result *Result, j job, pair *types.EmbeddingPair) error {
	if len(pair.TokenMean) != result.TokenMean.Dimension || len(pair.SummaryMean) != result.SummaryMean.Dimension {
		return fmt.Errorf("%w: token mean %d, summary mean %d, want %d", table.ErrDimensionMismatch,
			len(pair.TokenMean), len(pair.SummaryMean), result.TokenMean.Dimension)
	}
	if err := result.TokenMean.Append(table.Row{Label: j.category, Path: j.path, Vector: pair.TokenMean}); err != nil {
		return err
	}
	return result.SummaryMean.Append(table.Row{Label: j.category, Path: j.path, Vector: pair.SummaryMean})
}

func (idx *Indexer) startRun(ctx context.Context, root, runID string, total int) (*storage.Run, error) {
	if idx.storage == nil {
		return nil, nil
	}

	window := idx.embedder.Config()
	run := &storage.Run{
		ID:         runID,
		CorpusRoot: root,
		Encoder:    idx.embedder.EncoderName(),
		HiddenSize: idx.embedder.HiddenSize(),
		ChunkSize:  window.ChunkSize,
		Stride:     window.Stride,
		State:      storage.RunRunning,
		TotalFiles: total,
	}
	if err := idx.storage.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

func (idx *Indexer) finishRun(ctx context.Context, run *storage.Run, state storage.RunState, stats *Statistics, logger *zap.Logger) {
	if run == nil {
		return
	}
	run.State = state
	run.FinishedAt = time.Now()
	if stats != nil {
		run.EmbeddedFiles = stats.FilesEmbedded
		run.FailedFiles = stats.FilesFailed
	}
	if err := idx.storage.UpdateRun(ctx, run); err != nil {
		logger.Error("failed to update run", zap.Error(err))
	}
}

// persist records every file, failed or not, and its vectors in one transaction
func (idx *Indexer) persist(ctx context.Context, runID, root string, jobs []job, outcomes []outcome, ordinals []int) error {
	if idx.storage == nil {
		return nil
	}

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, j := range jobs {
		if outcomes[i].cancelled {
			continue
		}
		if err := persistFile(ctx, tx, runID, root, j, outcomes[i], ordinals[i]); err != nil {
			return fmt.Errorf("failed to store %s: %w", j.path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func persistFile(ctx context.Context, tx storage.Tx, runID, root string, j job, o outcome, ordinal int) error {
	relPath, err := filepath.Rel(root, j.path)
	if err != nil {
		relPath = j.path
	}

	file := &storage.File{
		RunID:    runID,
		FilePath: filepath.ToSlash(relPath),
		Category: j.category,
		Ordinal:  ordinal,
	}
	if o.unit != nil {
		file.Language = o.unit.Language
		file.ContentHash = o.unit.ContentHash
		file.SizeBytes = o.unit.SizeBytes
	}
	if o.pair != nil {
		file.TokenCount = o.pair.TokenCount
		file.WindowCount = o.pair.WindowCount
	}
	if o.err != nil {
		msg := o.err.Error()
		file.Error = &msg
	}

	if err := tx.UpsertFile(ctx, file); err != nil {
		return err
	}
	if o.err != nil {
		return nil
	}

	for _, s := range types.Strategies {
		emb := &storage.Embedding{FileID: file.ID, Strategy: string(s), Vector: o.pair.Vector(s)}
		if err := tx.UpsertEmbedding(ctx, emb); err != nil {
			return err
		}
	}
	return nil
}
