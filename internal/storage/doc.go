// Package storage provides SQLite-based persistence for corpus runs.
//
// The storage layer manages:
//   - Run metadata (corpus root, encoder, window settings, outcome)
//   - Per-file records, including failures and their error text
//   - Token-mean and summary-mean vectors per file
//
// # Database Schema
//
// Tables:
//   - runs: one row per pipeline run, keyed by UUID
//   - files: source units seen by a run, with category, hash and table position
//   - embeddings: one vector per (file, strategy), little-endian float32 blobs
//   - schema_version: applied migrations
//
// # Drivers
//
// With cgo available the mattn/go-sqlite3 driver is used; otherwise, or with
// the purego build tag, modernc.org/sqlite. BuildMode reports which.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("patternvec.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	run := &storage.Run{ID: uuid.NewString(), CorpusRoot: "corpus", Encoder: "local", HiddenSize: 384}
//	err = store.CreateRun(ctx, run)
//
// # Transactions
//
// Use transactions to record a run's files atomically:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	file := &storage.File{RunID: run.ID, FilePath: path, Category: "singleton"}
//	_ = tx.UpsertFile(ctx, file)
//	_ = tx.UpsertEmbedding(ctx, &storage.Embedding{FileID: file.ID, Strategy: "token_mean", Vector: vec})
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Vector Search
//
// SearchVector loads the candidate vectors for a run and strategy (optionally
// restricted to one category), scores them by cosine similarity in Go, and
// returns the top results:
//
//	results, err := store.SearchVector(ctx, run.ID, "token_mean", query, 10, &storage.SearchFilters{
//	    Category: "observer",
//	})
package storage
