package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/patternvec/internal/config"
	"github.com/dshills/patternvec/internal/embedder"
	"github.com/dshills/patternvec/internal/storage"
	"github.com/dshills/patternvec/internal/walker"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)

	enc, err := embedder.NewEncoder(config.EncoderConfig{Provider: "local", Device: "cpu", HiddenSize: 16})
	require.NoError(t, err)
	emb, err := embedder.New(enc, embedder.Config{ChunkSize: 32, Stride: 16, CacheSize: 64})
	require.NoError(t, err)

	s := newServer(store, emb, walker.New(), config.Default().Corpus, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"singleton/a.py": "class Only:\n    _instance = None\n",
		"singleton/b.py": "class Config:\n    _inst = None\n    def get(cls): return cls._inst\n",
		"observer/c.py":  "def notify(listeners):\n    for l in listeners:\n        l.update()\n",
		"observer/d.txt": "not embedded",
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func callTool(name string, args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func TestServer_Initialization(t *testing.T) {
	t.Run("from config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Encoder.Provider = "local"
		cfg.Encoder.HiddenSize = 8
		cfg.Storage.DBPath = filepath.Join(t.TempDir(), "nested", "patternvec.db")

		server, err := NewServer(cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer server.Close()

		assert.NotNil(t, server.mcp, "MCP server should be initialized")
		assert.NotNil(t, server.storage, "Storage should be initialized")
		assert.NotNil(t, server.indexer, "Indexer should be initialized")
		assert.NotNil(t, server.searcher, "Searcher should be initialized")
		assert.Equal(t, 8, server.embedder.HiddenSize())
		assert.FileExists(t, cfg.Storage.DBPath)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := config.Default()
		cfg.Encoder.Provider = "gpu-cluster"
		cfg.Storage.DBPath = filepath.Join(t.TempDir(), "patternvec.db")

		_, err := NewServer(cfg, nil)
		assert.Error(t, err)
	})
}

func TestResolveDBPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path, err := resolveDBPath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".patternvec", "patternvec.db"), path)

	path, err = resolveDBPath("/tmp/x.db")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", path)
}

func TestHandleEmbedCode(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleEmbedCode(ctx, callTool("embed_code", map[string]interface{}{
		"code": "def f(x):\n    return x * 2\n",
	}))
	require.NoError(t, err)

	out := decodeResult(t, result)
	assert.Equal(t, float64(16), out["dimension"])
	assert.Equal(t, "local", out["encoder"])
	assert.Len(t, out["token_mean"], 16)
	assert.Len(t, out["summary_mean"], 16)

	result, err = s.handleEmbedCode(ctx, callTool("embed_code", map[string]interface{}{
		"code":            "x = 1",
		"include_vectors": false,
	}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	assert.NotContains(t, out, "token_mean")
	assert.Equal(t, float64(1), out["window_count"])

	_, err = s.handleEmbedCode(ctx, callTool("embed_code", map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeEmptyQuery)
}

func TestHandleEmbedCorpus(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	root := writeCorpus(t)
	outDir := t.TempDir()

	result, err := s.handleEmbedCorpus(ctx, callTool("embed_corpus", map[string]interface{}{
		"path":       root,
		"workers":    float64(2),
		"output_dir": outDir,
	}))
	require.NoError(t, err)

	out := decodeResult(t, result)
	assert.Equal(t, float64(2), out["categories"])
	assert.Equal(t, float64(3), out["files_found"])
	assert.Equal(t, float64(3), out["files_embedded"])
	assert.Equal(t, float64(0), out["files_failed"])
	assert.Len(t, out["output_files"], 2)
	assert.FileExists(t, filepath.Join(outDir, "embeddings_token_mean.csv"))
	assert.False(t, s.lock.Held(), "lock must be released after the run")
}

func TestHandleEmbedCorpus_Validation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing path", map[string]interface{}{}, ErrorCodeInvalidParams},
		{"relative path", map[string]interface{}{"path": "corpus"}, ErrorCodeInvalidParams},
		{"missing dir", map[string]interface{}{"path": filepath.Join(t.TempDir(), "nope")}, ErrorCodeInvalidParams},
		{"no categories", map[string]interface{}{"path": t.TempDir()}, ErrorCodeCorpusNotFound},
		{"bad workers", map[string]interface{}{"path": writeCorpus(t), "workers": float64(0)}, ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleEmbedCorpus(ctx, callTool("embed_corpus", tt.args))
			requireMCPError(t, err, tt.code)
		})
	}
}

func TestHandleEmbedCorpus_InProgress(t *testing.T) {
	s := newTestServer(t)
	root := writeCorpus(t)

	require.True(t, s.lock.TryAcquire())
	defer s.lock.Release()

	_, err := s.handleEmbedCorpus(context.Background(), callTool("embed_corpus", map[string]interface{}{
		"path": root,
	}))
	requireMCPError(t, err, ErrorCodeIndexingInProgress)
}

func TestHandleSearchSimilar(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	query := map[string]interface{}{
		"code":  "def notify(listeners):\n    for l in listeners:\n        l.update()\n",
		"limit": float64(2),
	}

	_, err := s.handleSearchSimilar(ctx, callTool("search_similar", query))
	requireMCPError(t, err, ErrorCodeNotIndexed)

	_, err = s.handleEmbedCorpus(ctx, callTool("embed_corpus", map[string]interface{}{"path": writeCorpus(t)}))
	require.NoError(t, err)

	result, err := s.handleSearchSimilar(ctx, callTool("search_similar", query))
	require.NoError(t, err)

	out := decodeResult(t, result)
	assert.Equal(t, "observer", out["predicted"])
	results, ok := out["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 2)
	top := results[0].(map[string]interface{})
	assert.Equal(t, "observer/c.py", top["path"])
	assert.InDelta(t, 1.0, top["score"], 1e-5)
	assert.Equal(t, false, out["cache_hit"])

	result, err = s.handleSearchSimilar(ctx, callTool("search_similar", query))
	require.NoError(t, err)
	assert.Equal(t, true, decodeResult(t, result)["cache_hit"])
}

func TestHandleSearchSimilar_Validation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleSearchSimilar(ctx, callTool("search_similar", map[string]interface{}{"code": ""}))
	requireMCPError(t, err, ErrorCodeEmptyQuery)

	_, err = s.handleSearchSimilar(ctx, callTool("search_similar", map[string]interface{}{"code": "x", "limit": float64(500)}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleSearchSimilar(ctx, callTool("search_similar", map[string]interface{}{"code": "x", "strategy": "max"}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleGetStatus(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleGetStatus(ctx, callTool("get_status", nil))
	require.NoError(t, err)
	assert.Equal(t, false, decodeResult(t, result)["indexed"])

	_, err = s.handleEmbedCorpus(ctx, callTool("embed_corpus", map[string]interface{}{"path": writeCorpus(t)}))
	require.NoError(t, err)

	result, err = s.handleGetStatus(ctx, callTool("get_status", map[string]interface{}{}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.Equal(t, true, out["indexed"])

	run := out["run"].(map[string]interface{})
	assert.Equal(t, "completed", run["state"])
	assert.Equal(t, float64(16), run["hidden_size"])

	stats := out["statistics"].(map[string]interface{})
	assert.Equal(t, float64(3), stats["files_count"])
	assert.Equal(t, float64(6), stats["embeddings_count"])
	assert.Equal(t, map[string]interface{}{"singleton": float64(2), "observer": float64(1)}, stats["categories"])

	result, err = s.handleGetStatus(ctx, callTool("get_status", map[string]interface{}{"run_id": "missing"}))
	require.NoError(t, err)
	assert.Equal(t, false, decodeResult(t, result)["indexed"])
}
