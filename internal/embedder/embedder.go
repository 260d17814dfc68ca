package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/patternvec/internal/chunker"
	"github.com/dshills/patternvec/internal/encoder"
	"github.com/dshills/patternvec/pkg/types"
)

// Common errors
var (
	ErrInvalidConfig = errors.New("invalid chunked encoder configuration")
	ErrTokenization  = errors.New("tokenization failed")
	ErrInference     = errors.New("inference failed")
)

// Defaults sized for a 512-position encoder with two boundary markers
const (
	DefaultChunkSize = 510
	DefaultStride    = 256
)

// Config controls windowing and inference
type Config struct {
	ChunkSize    int           // Maximum tokens per window before boundary markers
	Stride       int           // Window advance, in [1, ChunkSize]
	InferTimeout time.Duration // Per-call inference timeout, 0 = none
	CacheSize    int           // LRU entries keyed by content hash, 0 = disabled
}

// DefaultConfig returns the default window configuration
func DefaultConfig() Config {
	return Config{
		ChunkSize: DefaultChunkSize,
		Stride:    DefaultStride,
	}
}

// ChunkedEncoder turns source text of any length into an EmbeddingPair by
// encoding overlapping token windows and pooling the results.
// It holds no mutable state besides the optional cache and is safe for
// concurrent use when the underlying encoder is.
type ChunkedEncoder struct {
	enc    encoder.Encoder
	window chunker.Config
	cfg    Config
	cache  *Cache
}

// New creates a ChunkedEncoder. Configuration errors are reported here rather
// than on the first Embed call.
func New(enc encoder.Encoder, cfg Config) (*ChunkedEncoder, error) {
	if enc == nil {
		return nil, fmt.Errorf("%w: encoder is required", ErrInvalidConfig)
	}
	window := chunker.Config{ChunkSize: cfg.ChunkSize, Stride: cfg.Stride}
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if enc.HiddenSize() <= 0 {
		return nil, fmt.Errorf("%w: encoder hidden size %d", ErrInvalidConfig, enc.HiddenSize())
	}
	if cfg.InferTimeout < 0 {
		return nil, fmt.Errorf("%w: negative inference timeout", ErrInvalidConfig)
	}

	c := &ChunkedEncoder{
		enc:    enc,
		window: window,
		cfg:    cfg,
	}
	if cfg.CacheSize > 0 {
		c.cache = NewCache(cfg.CacheSize)
	}
	return c, nil
}

// Embed produces the token-mean and summary-mean vectors for code.
// Empty code is encoded as a single window holding only boundary markers.
func (c *ChunkedEncoder) Embed(ctx context.Context, code string) (*types.EmbeddingPair, error) {
	var hash string
	if c.cache != nil {
		hash = ComputeHash(code)
		if pair, ok := c.cache.Get(hash); ok {
			return pair, nil
		}
	}

	tokens, err := c.enc.Tokenize(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenization, err)
	}

	batch := c.buildBatch(tokens)

	out, err := c.infer(ctx, batch)
	if err != nil {
		return nil, err
	}

	hidden := c.enc.HiddenSize()
	windowVecs := make([][]float32, batch.Len())
	for i := range out.HiddenStates {
		windowVecs[i] = MaskedMean(out.HiddenStates[i], batch.AttentionMask[i], hidden)
	}

	pair := &types.EmbeddingPair{
		TokenMean:   MeanVectors(windowVecs, hidden),
		SummaryMean: MeanVectors(out.Pooled, hidden),
		TokenCount:  len(tokens),
		WindowCount: batch.Len(),
	}

	if c.cache != nil {
		c.cache.Set(hash, pair)
	}
	return pair, nil
}

// buildBatch takes the single-sequence path when the tokens fit in one window
func (c *ChunkedEncoder) buildBatch(tokens []int) *encoder.Batch {
	if len(tokens) <= c.window.ChunkSize {
		row := c.enc.WithBoundaries(tokens)
		return chunker.Pad([][]int{row}, len(row), c.enc.PadID())
	}
	return chunker.BuildBatch(c.window.Split(tokens), c.enc)
}

func (c *ChunkedEncoder) infer(ctx context.Context, batch *encoder.Batch) (*encoder.Output, error) {
	if c.cfg.InferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.InferTimeout)
		defer cancel()
	}

	out, err := c.enc.Infer(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if err := out.Validate(batch, c.enc.HiddenSize()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return out, nil
}

// HiddenSize returns the dimensionality of both output vectors
func (c *ChunkedEncoder) HiddenSize() int {
	return c.enc.HiddenSize()
}

// EncoderName identifies the underlying encoder
func (c *ChunkedEncoder) EncoderName() string {
	return c.enc.Name()
}

// Config returns the configuration the encoder was built with
func (c *ChunkedEncoder) Config() Config {
	return c.cfg
}

// CacheSize returns the number of cached pairs, 0 when caching is disabled
func (c *ChunkedEncoder) CacheSize() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Size()
}

// Close releases the underlying encoder
func (c *ChunkedEncoder) Close() error {
	return c.enc.Close()
}

// Cache provides in-memory LRU caching of embedding pairs by content hash
type Cache struct {
	cache *lru.Cache[string, *types.EmbeddingPair]
}

// NewCache creates a new cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, *types.EmbeddingPair](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *types.EmbeddingPair](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a deep copy so callers cannot mutate cached vectors
func (c *Cache) Get(hash string) (*types.EmbeddingPair, bool) {
	pair, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	return pair.Clone(), true
}

// Set stores a copy of pair
func (c *Cache) Set(hash string, pair *types.EmbeddingPair) {
	c.cache.Add(hash, pair.Clone())
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes the SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
