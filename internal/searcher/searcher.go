package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/patternvec/internal/storage"
	"github.com/dshills/patternvec/pkg/types"
)

// Request limits
const (
	DefaultLimit    = 10
	MaxLimit        = 100
	DefaultCacheTTL = time.Hour
)

// ErrEmptyQuery is returned for a request without code
var ErrEmptyQuery = errors.New("query code cannot be empty")

// Embedder turns query code into the same vectors the corpus was embedded with
type Embedder interface {
	Embed(ctx context.Context, code string) (*types.EmbeddingPair, error)
}

// Request contains parameters for a search operation
type Request struct {
	Code         string
	Strategy     types.Strategy // default token_mean
	Limit        int
	RunID        string // empty = latest run
	Category     string // optional filter
	MinRelevance float64
	UseCache     bool
	CacheTTL     time.Duration
}

// CategoryVote summarizes how often a category appears among the results
type CategoryVote struct {
	Category  string
	Count     int
	MeanScore float64
}

// Response contains search results and metadata
type Response struct {
	Results      []types.SearchResult
	Votes        []CategoryVote // by count, then mean score
	TotalResults int
	RunID        string
	Strategy     types.Strategy
	Duration     time.Duration
	CacheHit     bool
}

// Predicted returns the category with the most votes, or "" with no results
func (r *Response) Predicted() string {
	if len(r.Votes) == 0 {
		return ""
	}
	return r.Votes[0].Category
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher ranks stored files by similarity to a code snippet
type Searcher struct {
	storage  storage.Storage
	embedder Embedder
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage, emb Embedder) *Searcher {
	// Cache will automatically evict least recently used entries
	cache, err := lru.New[[32]byte, *cacheEntry](1000)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		storage:  store,
		embedder: emb,
		cache:    cache,
	}
}

// Search embeds req.Code and returns the nearest stored files
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	if s.embedder == nil || s.storage == nil {
		return nil, fmt.Errorf("searcher not initialized")
	}

	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.RunID == "" {
		run, err := s.storage.LatestRun(ctx)
		if err != nil {
			return nil, fmt.Errorf("no run to search: %w", err)
		}
		req.RunID = run.ID
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	pair, err := s.embedder.Embed(ctx, req.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.storage.SearchVector(ctx, req.RunID, string(req.Strategy), pair.Vector(req.Strategy), req.Limit,
		&storage.SearchFilters{Category: req.Category, MinRelevance: req.MinRelevance})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	response := &Response{
		Results:      make([]types.SearchResult, len(hits)),
		TotalResults: len(hits),
		RunID:        req.RunID,
		Strategy:     req.Strategy,
	}
	for i, h := range hits {
		response.Results[i] = types.SearchResult{
			FileID:   h.FileID,
			Rank:     i + 1,
			Score:    h.SimilarityScore,
			Path:     h.FilePath,
			Category: h.Category,
			Strategy: req.Strategy,
		}
	}
	response.Votes = tallyVotes(response.Results)
	response.Duration = time.Since(startTime)

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

// validateRequest fills defaults and rejects unusable requests
func validateRequest(req *Request) error {
	if strings.TrimSpace(req.Code) == "" {
		return ErrEmptyQuery
	}

	if req.Strategy == "" {
		req.Strategy = types.StrategyTokenMean
	}
	if _, err := types.ParseStrategy(string(req.Strategy)); err != nil {
		return err
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}

	return nil
}

func tallyVotes(results []types.SearchResult) []CategoryVote {
	index := make(map[string]int)
	var votes []CategoryVote
	for _, r := range results {
		i, ok := index[r.Category]
		if !ok {
			i = len(votes)
			index[r.Category] = i
			votes = append(votes, CategoryVote{Category: r.Category})
		}
		votes[i].Count++
		votes[i].MeanScore += r.Score
	}
	for i := range votes {
		votes[i].MeanScore /= float64(votes[i].Count)
	}

	sort.SliceStable(votes, func(i, j int) bool {
		if votes[i].Count != votes[j].Count {
			return votes[i].Count > votes[j].Count
		}
		return votes[i].MeanScore > votes[j].MeanScore
	})
	return votes
}

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(req Request) *Response {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()

	return response
}

// storeInCache saves a copy of response
func (s *Searcher) storeInCache(req Request, response *Response) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// copyResponse creates a deep copy of a Response
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = append([]types.SearchResult(nil), src.Results...)
	dst.Votes = append([]CategoryVote(nil), src.Votes...)
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req Request) [32]byte {
	var data strings.Builder
	data.WriteString(req.Code)
	data.WriteString("|")
	data.WriteString(string(req.Strategy))
	data.WriteString("|")
	data.WriteString(req.RunID)
	data.WriteString("|")
	data.WriteString(req.Category)
	data.WriteString(fmt.Sprintf("|%d|%.4f", req.Limit, req.MinRelevance))

	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached response, typically after a new run
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
