// Package indexer drives a corpus run end to end.
//
// A corpus root contains one directory per category. The indexer lists the
// categories, finds every file with the configured extension below each one,
// embeds each file with a ChunkedEncoder and collects the vectors into two
// tables, one per pooling strategy.
//
// # Basic Usage
//
//	ce, _ := embedder.NewFromConfig(cfg)
//	idx := indexer.New(ce, indexer.WithStorage(store), indexer.WithLogger(logger))
//
//	result, err := idx.IndexCorpus(ctx, "corpus", &indexer.Config{
//	    Extension: ".py",
//	    Workers:   4,
//	    OutputDir: "out",
//	})
//
//	fmt.Printf("Embedded %d files in %v\n", result.Stats.FilesEmbedded, result.Stats.Duration)
//
// # Ordering
//
// Rows appear in discovery order: categories in directory listing order, and
// files within a category in lexical walk order. With Workers > 1 files are
// embedded concurrently but the tables are still assembled in that order.
// All workers share the one encoder, so it must be safe for concurrent use.
//
// # Error Handling
//
// Per-file failures do not stop the run:
//
//	result, err := idx.IndexCorpus(ctx, root, cfg)
//	// err only returned for fatal errors (unreadable root, storage failure, cancellation)
//
//	for _, f := range result.Stats.Failures {
//	    log.Printf("failed to embed %s: %v", f.Path, f.Err)
//	}
//
// When storage is configured, failed files are recorded with their error text
// and no vectors, and the run row is marked completed or failed.
package indexer
