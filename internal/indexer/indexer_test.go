package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/patternvec/internal/embedder"
	"github.com/dshills/patternvec/internal/encoder"
	"github.com/dshills/patternvec/internal/storage"
	"github.com/dshills/patternvec/internal/walker"
	"github.com/dshills/patternvec/pkg/types"
)

var errBoom = errors.New("boom")

// mockEmbedder maps content to a vector filled with its length. Content
// containing "boom" fails. Shorter content sleeps longer so concurrent
// completion order differs from input order.
type mockEmbedder struct {
	dimension int
	mu        sync.Mutex
	callCount int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dimension: 4}
}

func (m *mockEmbedder) Embed(ctx context.Context, code string) (*types.EmbeddingPair, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if strings.Contains(code, "boom") {
		return nil, errBoom
	}

	select {
	case <-time.After(time.Duration(50-len(code)%50) * time.Millisecond / 10):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	vec := make([]float32, m.dimension)
	for i := range vec {
		vec[i] = float32(len(code))
	}
	return &types.EmbeddingPair{
		TokenMean:   vec,
		SummaryMean: append([]float32(nil), vec...),
		TokenCount:  len(code),
		WindowCount: 1,
	}, nil
}

func (m *mockEmbedder) HiddenSize() int         { return m.dimension }
func (m *mockEmbedder) EncoderName() string     { return "mock" }
func (m *mockEmbedder) Config() embedder.Config { return embedder.DefaultConfig() }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// createCorpus lays out root/{A/x.py, A/sub/y.py, A/notes.txt, B/z.py, skip.py}
func createCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A", "x.py"), "x = 1\n")
	writeFile(t, filepath.Join(root, "A", "sub", "y.py"), "y = [i for i in range(3)]\n")
	writeFile(t, filepath.Join(root, "A", "notes.txt"), "not code")
	writeFile(t, filepath.Join(root, "B", "z.py"), "class Z:\n    pass\n")
	writeFile(t, filepath.Join(root, "skip.py"), "ignored = True\n")
	return root
}

func labels(result *Result, s types.Strategy) []string {
	var out []string
	for _, row := range result.Table(s).Rows {
		out = append(out, row.Label)
	}
	return out
}

func TestIndexCorpus_Success(t *testing.T) {
	root := createCorpus(t)
	idx := New(newMockEmbedder(), WithLogger(zaptest.NewLogger(t)))

	result, err := idx.IndexCorpus(context.Background(), root, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.Stats.Categories)
	assert.Equal(t, 3, result.Stats.FilesFound)
	assert.Equal(t, 3, result.Stats.FilesEmbedded)
	assert.Zero(t, result.Stats.FilesFailed)

	assert.Equal(t, []string{"A", "A", "B"}, labels(result, types.StrategyTokenMean))
	assert.Equal(t, []string{"A", "A", "B"}, labels(result, types.StrategySummaryMean))

	rows := result.TokenMean.Rows
	assert.Equal(t, filepath.Join(root, "A", "sub", "y.py"), rows[0].Path)
	assert.Equal(t, filepath.Join(root, "A", "x.py"), rows[1].Path)
	assert.Equal(t, float32(len("x = 1\n")), rows[1].Vector[0])
	for _, row := range rows {
		assert.NotEqual(t, filepath.Join(root, "skip.py"), row.Path)
	}
}

func TestIndexCorpus_EmptyCorpus(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "loose.py"), "x = 1\n")

	result, err := New(newMockEmbedder()).IndexCorpus(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Zero(t, result.TokenMean.Len())
	assert.Zero(t, result.Stats.Categories)
}

func TestIndexCorpus_MissingRoot(t *testing.T) {
	_, err := New(newMockEmbedder()).IndexCorpus(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}

func TestIndexCorpus_PerFileFailureContinues(t *testing.T) {
	root := createCorpus(t)
	writeFile(t, filepath.Join(root, "A", "bad.py"), "boom()\n")

	result, err := New(newMockEmbedder()).IndexCorpus(context.Background(), root, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Stats.FilesFound)
	assert.Equal(t, 3, result.Stats.FilesEmbedded)
	assert.Equal(t, 1, result.Stats.FilesFailed)
	require.Len(t, result.Stats.Failures, 1)
	assert.Equal(t, filepath.Join(root, "A", "bad.py"), result.Stats.Failures[0].Path)
	assert.Equal(t, "A", result.Stats.Failures[0].Category)
	assert.ErrorIs(t, result.Stats.Failures[0].Err, errBoom)
	assert.Equal(t, []string{"A", "A", "B"}, labels(result, types.StrategyTokenMean))
}

func TestIndexCorpus_WorkersPreserveOrder(t *testing.T) {
	root := t.TempDir()
	for i, content := range []string{"a", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "cc", "ddddddddddddddddddd", "e"} {
		writeFile(t, filepath.Join(root, "cat", string(rune('a'+i))+".py"), content)
	}
	writeFile(t, filepath.Join(root, "dog", "z.py"), "zzzz")

	serial, err := New(newMockEmbedder()).IndexCorpus(context.Background(), root, &Config{Workers: 1})
	require.NoError(t, err)
	parallel, err := New(newMockEmbedder()).IndexCorpus(context.Background(), root, &Config{Workers: 4})
	require.NoError(t, err)

	require.Equal(t, serial.TokenMean.Len(), parallel.TokenMean.Len())
	for i := range serial.TokenMean.Rows {
		assert.Equal(t, serial.TokenMean.Rows[i].Path, parallel.TokenMean.Rows[i].Path)
		assert.Equal(t, serial.TokenMean.Rows[i].Vector, parallel.TokenMean.Rows[i].Vector)
	}
}

func TestIndexCorpus_CustomExtensionAndWalker(t *testing.T) {
	root := createCorpus(t)
	writeFile(t, filepath.Join(root, "A", ".hidden", "h.txt"), "hidden")

	idx := New(newMockEmbedder(), WithWalker(walker.New(walker.WithHidden(true))))
	result, err := idx.IndexCorpus(context.Background(), root, &Config{Extension: ".txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, labels(result, types.StrategyTokenMean))
}

func TestIndexCorpus_ContextCancellation(t *testing.T) {
	root := createCorpus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(newMockEmbedder()).IndexCorpus(ctx, root, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// cancelingEmbedder cancels the run once more than after files were embedded
type cancelingEmbedder struct {
	*mockEmbedder
	cancel context.CancelFunc
	after  int32
	calls  atomic.Int32
}

func (c *cancelingEmbedder) Embed(ctx context.Context, code string) (*types.EmbeddingPair, error) {
	if c.calls.Add(1) > c.after {
		c.cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return c.mockEmbedder.Embed(ctx, code)
}

func TestIndexCorpus_CancelKeepsFinishedRows(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	root := createCorpus(t)
	out := filepath.Join(t.TempDir(), "out")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	emb := &cancelingEmbedder{mockEmbedder: newMockEmbedder(), cancel: cancel, after: 2}

	result, err := New(emb, WithStorage(store), WithLogger(zaptest.NewLogger(t))).IndexCorpus(ctx, root, &Config{
		RunID:     "run-1",
		Workers:   1,
		OutputDir: out,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	assert.Equal(t, 3, result.Stats.FilesFound)
	assert.Equal(t, 2, result.Stats.FilesEmbedded)
	assert.Equal(t, 1, result.Stats.FilesCancelled)
	assert.Zero(t, result.Stats.FilesFailed)
	assert.Equal(t, []string{"A", "A"}, labels(result, types.StrategyTokenMean))

	require.Len(t, result.OutputFiles, 2)
	for _, path := range result.OutputFiles {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[1], "A,"))
		assert.True(t, strings.HasPrefix(lines[2], "A,"))
	}

	bg := context.Background()
	run, err := store.GetRun(bg, "run-1")
	require.NoError(t, err)
	assert.Equal(t, storage.RunFailed, run.State)
	assert.Equal(t, 2, run.EmbeddedFiles)

	_, err = store.GetFile(bg, "run-1", "A/x.py")
	assert.NoError(t, err)
	_, err = store.GetFile(bg, "run-1", "B/z.py")
	assert.Error(t, err)
}

// failingFinder fails to scan one category and defers to a real walker otherwise
type failingFinder struct {
	Finder
	category string
}

func (f failingFinder) Scan(root, ext string) (*walker.ScanResult, error) {
	if filepath.Base(root) == f.category {
		return nil, errBoom
	}
	return f.Finder.Scan(root, ext)
}

func TestIndexCorpus_UnreadableCategoryContinues(t *testing.T) {
	root := createCorpus(t)

	idx := New(newMockEmbedder(), WithWalker(failingFinder{Finder: walker.New(), category: "A"}))
	result, err := idx.IndexCorpus(context.Background(), root, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.Categories)
	assert.Equal(t, 1, result.Stats.FilesFound)
	assert.Equal(t, 1, result.Stats.PathsSkipped)
	assert.Zero(t, result.Stats.FilesFailed)
	require.Len(t, result.Stats.Failures, 1)
	assert.Equal(t, filepath.Join(root, "A"), result.Stats.Failures[0].Path)
	assert.Equal(t, "A", result.Stats.Failures[0].Category)
	assert.ErrorIs(t, result.Stats.Failures[0].Err, errBoom)
	assert.Equal(t, []string{"B"}, labels(result, types.StrategyTokenMean))
}

func TestIndexCorpus_SymlinkedCategory(t *testing.T) {
	target := t.TempDir()
	writeFile(t, filepath.Join(target, "a.py"), "a = 1\n")
	writeFile(t, filepath.Join(target, "b.py"), "b = 22\n")

	root := t.TempDir()
	require.NoError(t, os.Symlink(target, filepath.Join(root, "Linked")))

	result, err := New(newMockEmbedder()).IndexCorpus(context.Background(), root, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.Categories)
	assert.Equal(t, 2, result.Stats.FilesFound)
	assert.Equal(t, 2, result.Stats.FilesEmbedded)
	assert.Equal(t, []string{"Linked", "Linked"}, labels(result, types.StrategyTokenMean))
	assert.Equal(t, filepath.Join(root, "Linked", "a.py"), result.TokenMean.Rows[0].Path)
}

func TestIndexCorpus_WritesTables(t *testing.T) {
	root := createCorpus(t)
	out := filepath.Join(t.TempDir(), "out")

	result, err := New(newMockEmbedder()).IndexCorpus(context.Background(), root, &Config{
		OutputDir:    out,
		OutputPrefix: "run",
	})
	require.NoError(t, err)

	require.Equal(t, []string{
		filepath.Join(out, "run_token_mean.csv"),
		filepath.Join(out, "run_summary_mean.csv"),
	}, result.OutputFiles)

	data, err := os.ReadFile(result.OutputFiles[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "category_label,dim_0,dim_1,dim_2,dim_3", lines[0])
	assert.True(t, strings.HasPrefix(lines[3], "B,"))
}

func TestIndexCorpus_PersistsRun(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	root := createCorpus(t)
	writeFile(t, filepath.Join(root, "B", "bad.py"), "boom\n")

	ctx := context.Background()
	result, err := New(newMockEmbedder(), WithStorage(store)).IndexCorpus(ctx, root, &Config{RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, storage.RunCompleted, run.State)
	assert.Equal(t, "mock", run.Encoder)
	assert.Equal(t, 4, run.TotalFiles)
	assert.Equal(t, 3, run.EmbeddedFiles)
	assert.Equal(t, 1, run.FailedFiles)
	assert.Equal(t, embedder.DefaultChunkSize, run.ChunkSize)

	bad, err := store.GetFile(ctx, "run-1", "B/bad.py")
	require.NoError(t, err)
	require.NotNil(t, bad.Error)
	assert.Contains(t, *bad.Error, "boom")
	assert.Equal(t, -1, bad.Ordinal)

	good, err := store.GetFile(ctx, "run-1", "B/z.py")
	require.NoError(t, err)
	assert.Nil(t, good.Error)
	assert.Equal(t, 2, good.Ordinal)
	assert.Equal(t, "Python", good.Language)

	embeddings, err := store.ListEmbeddings(ctx, "run-1", string(types.StrategyTokenMean))
	require.NoError(t, err)
	require.Len(t, embeddings, 3)
	for i, e := range embeddings {
		assert.Equal(t, result.TokenMean.Rows[i].Vector, e.Vector)
	}

	// Same run id twice is rejected
	_, err = New(newMockEmbedder(), WithStorage(store)).IndexCorpus(ctx, root, &Config{RunID: "run-1"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestIndexCorpus_RealEncoder(t *testing.T) {
	model, err := encoder.NewLocalModel(8)
	require.NoError(t, err)
	ce, err := embedder.New(encoder.NewPair("local", encoder.ByteTokenizer{}, model), embedder.Config{ChunkSize: 16, Stride: 8})
	require.NoError(t, err)

	root := createCorpus(t)
	result, err := New(ce).IndexCorpus(context.Background(), root, &Config{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TokenMean.Len())
	assert.Equal(t, 8, result.TokenMean.Dimension)
	assert.Greater(t, result.Stats.TotalWindows, 3)
}

func TestIndexLock_ConcurrentAcquisition(t *testing.T) {
	var lock IndexLock
	require.True(t, lock.TryAcquire())
	assert.True(t, lock.Held())
	assert.False(t, lock.TryAcquire(), "second TryAcquire should fail while held")
	lock.Release()
	assert.False(t, lock.Held())

	const goroutines = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if lock.TryAcquire() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 1, acquired, "exactly one goroutine should win")
}
