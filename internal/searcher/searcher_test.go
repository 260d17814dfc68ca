package searcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/patternvec/internal/storage"
	"github.com/dshills/patternvec/pkg/types"
)

// mockEmbedder returns a fixed vector per query string
type mockEmbedder struct {
	vectors map[string][]float32
	mu      sync.Mutex
	calls   int
}

func (m *mockEmbedder) Embed(ctx context.Context, code string) (*types.EmbeddingPair, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	vec, ok := m.vectors[code]
	if !ok {
		return nil, errors.New("unknown query")
	}
	return &types.EmbeddingPair{TokenMean: vec, SummaryMean: vec}, nil
}

func setupStore(t *testing.T) (*storage.SQLiteStorage, string) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	run := &storage.Run{ID: "run-1", CorpusRoot: "/corpus", Encoder: "mock", HiddenSize: 2}
	require.NoError(t, store.CreateRun(ctx, run))

	files := []struct {
		path, category string
		vec            []float32
	}{
		{"singleton/a.py", "singleton", []float32{1, 0}},
		{"singleton/b.py", "singleton", []float32{0.9, 0.1}},
		{"observer/c.py", "observer", []float32{0, 1}},
		{"observer/d.py", "observer", []float32{0.6, 0.4}},
	}
	for i, f := range files {
		file := &storage.File{RunID: run.ID, FilePath: f.path, Category: f.category, Ordinal: i}
		require.NoError(t, store.UpsertFile(ctx, file))
		for _, s := range types.Strategies {
			require.NoError(t, store.UpsertEmbedding(ctx, &storage.Embedding{FileID: file.ID, Strategy: string(s), Vector: f.vec}))
		}
	}
	return store, run.ID
}

func newTestSearcher(t *testing.T) (*Searcher, *mockEmbedder) {
	store, _ := setupStore(t)
	emb := &mockEmbedder{vectors: map[string][]float32{
		"class Only:": {1, 0},
		"def notify(": {0, 1},
	}}
	return NewSearcher(store, emb), emb
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	s, _ := newTestSearcher(t)

	resp, err := s.Search(context.Background(), Request{Code: "class Only:", Limit: 3})
	require.NoError(t, err)

	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, types.StrategyTokenMean, resp.Strategy)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "singleton/a.py", resp.Results[0].Path)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-6)
	assert.Equal(t, "singleton/b.py", resp.Results[1].Path)
	assert.Equal(t, "observer/d.py", resp.Results[2].Path)
	for _, r := range resp.Results {
		assert.NoError(t, r.Validate())
	}

	assert.Equal(t, "singleton", resp.Predicted())
	require.Len(t, resp.Votes, 2)
	assert.Equal(t, 2, resp.Votes[0].Count)
}

func TestSearch_CategoryFilter(t *testing.T) {
	s, _ := newTestSearcher(t)

	resp, err := s.Search(context.Background(), Request{Code: "class Only:", Category: "observer", Strategy: types.StrategySummaryMean})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.Equal(t, "observer", r.Category)
		assert.Equal(t, types.StrategySummaryMean, r.Strategy)
	}
	assert.Equal(t, "observer/d.py", resp.Results[0].Path)
}

func TestSearch_Validation(t *testing.T) {
	s, _ := newTestSearcher(t)
	ctx := context.Background()

	_, err := s.Search(ctx, Request{Code: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = s.Search(ctx, Request{Code: "class Only:", Strategy: "max_pool"})
	assert.ErrorIs(t, err, types.ErrUnknownStrategy)

	_, err = s.Search(ctx, Request{Code: "unknown"})
	assert.Error(t, err)

	_, err = s.Search(ctx, Request{Code: "class Only:", RunID: "other"})
	require.NoError(t, err, "unknown run yields no results rather than an error")
}

func TestSearch_NoRuns(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	s := NewSearcher(store, &mockEmbedder{})
	_, err = s.Search(context.Background(), Request{Code: "x"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSearch_Cache(t *testing.T) {
	s, emb := newTestSearcher(t)
	ctx := context.Background()
	req := Request{Code: "def notify(", UseCache: true}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	first.Results[0].Path = "mutated"

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, "observer/c.py", second.Results[0].Path)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, 1, s.CacheLen())

	s.InvalidateCache()
	assert.Zero(t, s.CacheLen())
}

func TestSearch_CacheExpiry(t *testing.T) {
	s, emb := newTestSearcher(t)
	ctx := context.Background()
	req := Request{Code: "def notify(", UseCache: true, CacheTTL: time.Nanosecond}

	_, err := s.Search(ctx, req)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	resp, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Equal(t, 2, emb.calls)
}

func TestValidateRequest_Limits(t *testing.T) {
	req := Request{Code: "x", Limit: 1000}
	require.NoError(t, validateRequest(&req))
	assert.Equal(t, MaxLimit, req.Limit)

	req = Request{Code: "x"}
	require.NoError(t, validateRequest(&req))
	assert.Equal(t, DefaultLimit, req.Limit)
	assert.Equal(t, DefaultCacheTTL, req.CacheTTL)
}

func TestComputeQueryHash(t *testing.T) {
	a := Request{Code: "x", Strategy: types.StrategyTokenMean, RunID: "r", Limit: 10}
	b := a
	assert.Equal(t, computeQueryHash(a), computeQueryHash(b))

	b.Category = "singleton"
	assert.NotEqual(t, computeQueryHash(a), computeQueryHash(b))

	b = a
	b.Strategy = types.StrategySummaryMean
	assert.NotEqual(t, computeQueryHash(a), computeQueryHash(b))
}
