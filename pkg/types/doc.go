// Package types provides shared type definitions for patternvec.
//
// This package defines the values that flow between the walker, the chunked
// encoder, the output tables and the store.
//
// # Core Types
//
// SourceUnit is one source file read from the corpus, labelled with the
// category (immediate subdirectory of the corpus root) it was found under:
//
//	unit := &types.SourceUnit{
//	    Path:     "corpus/factory/shape_factory.py",
//	    Category: "factory",
//	    Content:  src,
//	}
//
// EmbeddingPair is the terminal artifact of the chunked encoder. Both vectors
// have the encoder's hidden size regardless of the file length:
//
//	pair.TokenMean   // masked mean over positions, then mean over windows
//	pair.SummaryMean // mean of per-window pooled vectors
//
// # Strategies
//
// Each pooling strategy is written to its own output table and stored under
// its own name:
//
//	types.StrategyTokenMean   // "token_mean"
//	types.StrategySummaryMean // "summary_mean"
//
// # Search Results
//
// SearchResult ranks stored files by cosine similarity to a query vector.
// Scores are in [-1, 1], higher is closer.
package types
