// Package searcher finds the stored files most similar to a code snippet.
//
// The query is embedded with the same ChunkedEncoder used for the corpus, and
// stored vectors of the chosen strategy are ranked by cosine similarity. The
// categories of the top results are tallied, which turns the search into a
// nearest-neighbour classifier for design patterns.
//
// # Usage
//
//	s := searcher.NewSearcher(store, chunkedEncoder)
//	resp, err := s.Search(ctx, searcher.Request{
//	    Code:     snippet,
//	    Strategy: types.StrategySummaryMean,
//	    Limit:    5,
//	})
//	fmt.Println(resp.Predicted())
//
// An empty RunID searches the most recent run. With UseCache set, responses
// are kept in an LRU cache keyed by the full request for CacheTTL.
package searcher
