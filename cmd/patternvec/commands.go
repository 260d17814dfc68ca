package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/dshills/patternvec/internal/cloner"
	"github.com/dshills/patternvec/internal/config"
	"github.com/dshills/patternvec/internal/embedder"
	"github.com/dshills/patternvec/internal/indexer"
	"github.com/dshills/patternvec/internal/logging"
	"github.com/dshills/patternvec/internal/mcp"
	"github.com/dshills/patternvec/internal/searcher"
	"github.com/dshills/patternvec/internal/storage"
	"github.com/dshills/patternvec/internal/walker"
	"github.com/dshills/patternvec/pkg/types"
)

// errNoDatabase is returned by commands that need a stored run
var errNoDatabase = errors.New("no database configured; pass --db or set PATTERNVEC_DB_PATH")

// appContext holds what every command needs
type appContext struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

// newAppContext loads configuration and builds the logger. Command line flags
// override the file and environment settings.
func newAppContext(cmd *cli.Command) (*appContext, error) {
	cfg, err := config.Load(cmd.String("env"), cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if v := cmd.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := cmd.String("log-format"); v != "" {
		cfg.Log.Format = v
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	return &appContext{cfg: cfg, logger: logger, out: out}, nil
}

func (a *appContext) close() {
	_ = a.logger.Sync()
}

func stringFlag(cmd *cli.Command, name string, target *string) {
	if cmd.IsSet(name) {
		*target = cmd.String(name)
	}
}

func intFlag(cmd *cli.Command, name string, target *int) {
	if cmd.IsSet(name) {
		*target = int(cmd.Int(name))
	}
}

func cloneAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	clone := app.cfg.Clone
	stringFlag(cmd, "repos", &clone.ReposFile)
	stringFlag(cmd, "dest", &clone.DestDir)
	intFlag(cmd, "depth", &clone.Depth)
	if cmd.IsSet("exec-git") {
		clone.UseExec = cmd.Bool("exec-git")
	}

	repos, err := cloner.LoadRepoList(clone.ReposFile)
	if err != nil {
		return err
	}

	var client cloner.Client = &cloner.GoGitClient{Depth: clone.Depth}
	if clone.UseExec {
		client = &cloner.ExecClient{Depth: clone.Depth}
	}

	app.logger.Info("cloning repositories",
		zap.Int("repos", len(repos)),
		zap.String("dest", clone.DestDir),
		zap.Bool("exec_git", clone.UseExec))

	result, err := cloner.New(client, app.logger).CloneAll(ctx, repos, clone.DestDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "cloned %d, skipped %d, failed %d\n",
		len(result.Cloned), len(result.Skipped), len(result.Failed))
	for _, f := range result.Failed {
		fmt.Fprintf(app.out, "  %s: %v\n", f.URL, f.Err)
	}
	return nil
}

func embedAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	corpus := app.cfg.Corpus
	stringFlag(cmd, "root", &corpus.Root)
	stringFlag(cmd, "out", &corpus.OutputDir)
	stringFlag(cmd, "ext", &corpus.Extension)
	stringFlag(cmd, "prefix", &corpus.OutputPrefix)
	stringFlag(cmd, "ignore-file", &corpus.IgnoreFile)
	intFlag(cmd, "workers", &corpus.Workers)
	stringFlag(cmd, "db", &app.cfg.Storage.DBPath)
	app.cfg.Corpus = corpus

	if err := app.cfg.Validate(); err != nil {
		return err
	}

	// Device resolution happens once here, not per file
	emb, err := embedder.NewFromConfig(app.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = emb.Close() }()

	opts := []indexer.Option{
		indexer.WithLogger(app.logger),
		indexer.WithWalker(walker.New(walker.WithIgnoreFile(corpus.IgnoreFile))),
	}
	if app.cfg.Storage.DBPath != "" {
		store, err := storage.NewSQLiteStorage(app.cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer func() { _ = store.Close() }()
		opts = append(opts, indexer.WithStorage(store))
	}

	result, err := indexer.New(emb, opts...).IndexCorpus(ctx, corpus.Root, &indexer.Config{
		Extension:    corpus.Extension,
		Workers:      corpus.Workers,
		OutputDir:    corpus.OutputDir,
		OutputPrefix: corpus.OutputPrefix,
	})
	if result == nil {
		return err
	}

	stats := result.Stats
	fmt.Fprintf(app.out, "run %s: %d categories, %d files, %d embedded, %d failed (%s)\n",
		result.RunID, stats.Categories, stats.FilesFound, stats.FilesEmbedded, stats.FilesFailed,
		stats.Duration.Round(time.Millisecond))
	for _, f := range stats.Failures {
		fmt.Fprintf(app.out, "  failed %s: %v\n", f.Path, f.Err)
	}
	for _, path := range result.OutputFiles {
		fmt.Fprintf(app.out, "wrote %s\n", path)
	}
	return err
}

func searchAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	stringFlag(cmd, "db", &app.cfg.Storage.DBPath)
	if app.cfg.Storage.DBPath == "" {
		return errNoDatabase
	}

	strategy, err := types.ParseStrategy(cmd.String("strategy"))
	if err != nil {
		return err
	}

	code, err := os.ReadFile(cmd.String("code-file"))
	if err != nil {
		return fmt.Errorf("failed to read code file: %w", err)
	}

	store, err := storage.NewSQLiteStorage(app.cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	emb, err := embedder.NewFromConfig(app.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = emb.Close() }()

	resp, err := searcher.NewSearcher(store, emb).Search(ctx, searcher.Request{
		Code:     string(code),
		Strategy: strategy,
		Limit:    int(cmd.Int("limit")),
		RunID:    cmd.String("run"),
		Category: cmd.String("category"),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "run %s, strategy %s, predicted category: %s\n", resp.RunID, resp.Strategy, resp.Predicted())
	tbl := tablewriter.NewTable(app.out, tablewriter.WithRowAutoWrap(tw.WrapNone))
	tbl.Header("Rank", "Score", "Category", "Path")
	for _, r := range resp.Results {
		if err := tbl.Append([]string{strconv.Itoa(r.Rank), fmt.Sprintf("%.4f", r.Score), r.Category, r.Path}); err != nil {
			return fmt.Errorf("failed to render results: %w", err)
		}
	}
	return tbl.Render()
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	stringFlag(cmd, "db", &app.cfg.Storage.DBPath)

	app.logger.Info("patternvec MCP server starting",
		zap.String("version", version),
		zap.String("build_mode", storage.BuildMode),
		zap.String("driver", storage.DriverName))

	server, err := mcp.NewServer(app.cfg, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ctx) }()

	select {
	case <-ctx.Done():
		app.logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func versionAction(_ context.Context, cmd *cli.Command) error {
	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "patternvec %s\n", version)
	fmt.Fprintf(out, "Build Time: %s\n", buildTime)
	fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
	fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
	fmt.Fprintf(out, "Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}
