package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/patternvec/internal/config"
	"github.com/dshills/patternvec/internal/embedder"
	"github.com/dshills/patternvec/internal/indexer"
	"github.com/dshills/patternvec/internal/logging"
	"github.com/dshills/patternvec/internal/searcher"
	"github.com/dshills/patternvec/internal/storage"
	"github.com/dshills/patternvec/internal/walker"
)

const (
	// ServerName is the MCP server name
	ServerName = "patternvec"
	// ServerVersion is the current server version
	ServerVersion = "0.1.0"
	// DefaultDBPath is used when the configuration names no database
	DefaultDBPath = "~/.patternvec/patternvec.db"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	embedder *embedder.ChunkedEncoder
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	lock     indexer.IndexLock
	corpus   config.CorpusConfig
	logger   *zap.Logger
}

// NewServer creates a new MCP server instance from cfg
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	dbPath, err := resolveDBPath(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// One encoder shared by indexer and searcher so both embed identically
	emb, err := embedder.NewFromConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	w := walker.New(walker.WithIgnoreFile(cfg.Corpus.IgnoreFile))
	return newServer(store, emb, w, cfg.Corpus, logger), nil
}

func newServer(store storage.Storage, emb *embedder.ChunkedEncoder, w *walker.Walker, corpus config.CorpusConfig, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger).Named("mcp")

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		storage:  store,
		embedder: emb,
		indexer: indexer.New(emb,
			indexer.WithStorage(store),
			indexer.WithWalker(w),
			indexer.WithLogger(logger)),
		searcher: searcher.NewSearcher(store, emb),
		corpus:   corpus,
		logger:   logger,
	}
	s.registerTools()
	return s
}

// resolveDBPath expands a leading ~ and applies DefaultDBPath
func resolveDBPath(path string) (string, error) {
	if path == "" {
		path = DefaultDBPath
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown.
// Stdout carries the protocol; transport errors go to the zap logger.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	s.logger.Info("serving on stdio",
		zap.String("encoder", s.embedder.EncoderName()),
		zap.Int("hidden_size", s.embedder.HiddenSize()))

	return server.ServeStdio(s.mcp, server.WithErrorLogger(zap.NewStdLog(s.logger)))
}

// Close releases the store and the encoder
func (s *Server) Close() error {
	err := s.storage.Close()
	if cerr := s.embedder.Close(); err == nil {
		err = cerr
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(embedCodeTool(), s.handleEmbedCode)
	s.mcp.AddTool(embedCorpusTool(), s.handleEmbedCorpus)
	s.mcp.AddTool(searchSimilarTool(), s.handleSearchSimilar)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
