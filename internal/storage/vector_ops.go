package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// searchVector ranks a run's stored vectors for one strategy by cosine
// similarity to queryVector. Scoring happens in Go; SQLite only filters.
func searchVector(ctx context.Context, q querier, runID, strategy string, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	query := `
		SELECT f.id, f.file_path, f.category, e.vector
		FROM embeddings e
		INNER JOIN files f ON e.file_id = f.id
		WHERE f.run_id = ? AND e.strategy = ?
	`
	args := []interface{}{runID, strategy}

	if filters != nil && filters.Category != "" {
		query += " AND f.category = ?"
		args = append(args, filters.Category)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]VectorResult, 0, 256)
	for rows.Next() {
		var r VectorResult
		var blob []byte
		if err := rows.Scan(&r.FileID, &r.FilePath, &r.Category, &blob); err != nil {
			return nil, err
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		r.SimilarityScore = cosineSimilarity(queryVector, vector)
		if filters != nil && filters.MinRelevance > 0 && r.SimilarityScore < filters.MinRelevance {
			continue
		}
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)

	// Negative or zero limit returns all candidates
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortCandidates orders by score descending, breaking ties by file id so
// results are stable
func sortCandidates(candidates []VectorResult) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SimilarityScore != candidates[j].SimilarityScore {
			return candidates[i].SimilarityScore > candidates[j].SimilarityScore
		}
		return candidates[i].FileID < candidates[j].FileID
	})
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
