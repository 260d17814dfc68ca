package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/patternvec/internal/indexer"
	"github.com/dshills/patternvec/internal/searcher"
	"github.com/dshills/patternvec/internal/storage"
	"github.com/dshills/patternvec/internal/walker"
	"github.com/dshills/patternvec/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeCorpusNotFound     = -32001 // Path is not a labeled corpus
	ErrorCodeIndexingInProgress = -32002 // Another corpus run is already in progress
	ErrorCodeNotIndexed         = -32003 // No corpus run stored
	ErrorCodeEmptyQuery         = -32004 // Code parameter is empty
)

// maxReportedFailures caps the failure list returned by embed_corpus
const maxReportedFailures = 5

// handleEmbedCode handles the embed_code tool invocation
func (s *Server) handleEmbedCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	code, ok := args["code"].(string)
	if !ok || code == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "code parameter is required and cannot be empty", map[string]interface{}{
			"param":  "code",
			"reason": "missing or empty",
		})
	}

	pair, err := s.embedder.Embed(ctx, code)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "embedding failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"encoder":      s.embedder.EncoderName(),
		"dimension":    pair.Dimension(),
		"token_count":  pair.TokenCount,
		"window_count": pair.WindowCount,
	}
	if getBoolDefault(args, "include_vectors", true) {
		response[string(types.StrategyTokenMean)] = pair.TokenMean
		response[string(types.StrategySummaryMean)] = pair.SummaryMean
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleEmbedCorpus handles the embed_corpus tool invocation
func (s *Server) handleEmbedCorpus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validateCorpusPath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrNoCategories) {
			code = ErrorCodeCorpusNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	workers := getIntDefault(args, "workers", s.corpus.Workers)
	if workers < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "workers must be at least 1", map[string]interface{}{
			"param": "workers",
			"value": workers,
		})
	}

	if !s.lock.TryAcquire() {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "a corpus run is already in progress", nil)
	}
	defer s.lock.Release()

	result, err := s.indexer.IndexCorpus(ctx, path, &indexer.Config{
		Extension:    getStringDefault(args, "extension", s.corpus.Extension),
		Workers:      workers,
		OutputDir:    getStringDefault(args, "output_dir", ""),
		OutputPrefix: s.corpus.OutputPrefix,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "corpus run failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Results of earlier runs are stale once a new run lands
	s.searcher.InvalidateCache()

	stats := result.Stats
	response := map[string]interface{}{
		"run_id":         result.RunID,
		"categories":     stats.Categories,
		"files_found":    stats.FilesFound,
		"files_embedded": stats.FilesEmbedded,
		"files_failed":   stats.FilesFailed,
		"total_tokens":   stats.TotalTokens,
		"total_windows":  stats.TotalWindows,
		"dimension":      result.TokenMean.Dimension,
		"duration_ms":    stats.Duration.Milliseconds(),
	}
	if len(result.OutputFiles) > 0 {
		response["output_files"] = result.OutputFiles
	}

	if len(stats.Failures) > 0 {
		failures := make([]string, 0, maxReportedFailures)
		for i, f := range stats.Failures {
			if i == maxReportedFailures {
				break
			}
			failures = append(failures, fmt.Sprintf("%s: %v", f.Path, f.Err))
		}
		response["errors"] = failures
		if len(stats.Failures) > maxReportedFailures {
			response["error_count"] = len(stats.Failures)
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchSimilar handles the search_similar tool invocation
func (s *Server) handleSearchSimilar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	code, ok := args["code"].(string)
	if !ok || code == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "code parameter is required and cannot be empty", map[string]interface{}{
			"param":  "code",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	strategy, err := types.ParseStrategy(getStringDefault(args, "strategy", string(types.StrategyTokenMean)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid strategy", map[string]interface{}{
			"param":   "strategy",
			"allowed": strategyEnum,
		})
	}

	minRelevance, _ := args["min_relevance"].(float64)

	resp, err := s.searcher.Search(ctx, searcher.Request{
		Code:         code,
		Strategy:     strategy,
		Limit:        limit,
		RunID:        getStringDefault(args, "run_id", ""),
		Category:     getStringDefault(args, "category", ""),
		MinRelevance: minRelevance,
		UseCache:     true,
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotIndexed, "no corpus run stored; use embed_corpus first", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]interface{}{
			"rank":     r.Rank,
			"score":    r.Score,
			"path":     r.Path,
			"category": r.Category,
		}
	}
	votes := make([]map[string]interface{}, len(resp.Votes))
	for i, v := range resp.Votes {
		votes[i] = map[string]interface{}{
			"category":   v.Category,
			"count":      v.Count,
			"mean_score": v.MeanScore,
		}
	}

	response := map[string]interface{}{
		"run_id":      resp.RunID,
		"strategy":    string(resp.Strategy),
		"predicted":   resp.Predicted(),
		"results":     results,
		"votes":       votes,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	}

	s.logger.Debug("search served",
		zap.String("run_id", resp.RunID),
		zap.Int("results", len(results)),
		zap.Bool("cache_hit", resp.CacheHit))

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	runID := getStringDefault(args, "run_id", "")

	status, err := s.storage.GetStatus(ctx, runID)
	if errors.Is(err, storage.ErrNotFound) {
		response := map[string]interface{}{
			"indexed":     false,
			"in_progress": s.lock.Held(),
			"message":     "No corpus run stored. Use embed_corpus tool to embed a corpus.",
		}
		if runID != "" {
			response["run_id"] = runID
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	run := status.Run
	runInfo := map[string]interface{}{
		"id":          run.ID,
		"corpus_root": run.CorpusRoot,
		"encoder":     run.Encoder,
		"hidden_size": run.HiddenSize,
		"chunk_size":  run.ChunkSize,
		"stride":      run.Stride,
		"state":       string(run.State),
		"started_at":  run.StartedAt.Format(time.RFC3339),
	}
	if !run.FinishedAt.IsZero() {
		runInfo["finished_at"] = run.FinishedAt.Format(time.RFC3339)
	}

	response := map[string]interface{}{
		"indexed":     true,
		"in_progress": s.lock.Held(),
		"run":         runInfo,
		"statistics": map[string]interface{}{
			"files_count":      status.FilesCount,
			"failed_count":     status.FailedCount,
			"embeddings_count": status.EmbeddingsCount,
			"categories":       status.Categories,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validateCorpusPath checks that path is a readable directory with at least
// one category subdirectory
func validateCorpusPath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	categories, err := walker.ListCategories(path)
	if err != nil {
		return ErrPathNotReadable
	}
	if len(categories) == 0 {
		return ErrNoCategories
	}

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNoCategories    = errors.New("directory has no category subdirectories")
)
