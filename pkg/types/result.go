package types

// SearchResult represents a stored file ranked against a query vector
type SearchResult struct {
	// Identification
	FileID int64
	Rank   int // Position in result set (1-based)

	// Scoring
	Score float64 // Cosine similarity

	// Metadata
	Path     string
	Category string
	Strategy Strategy
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.FileID == 0 {
		return ErrInvalidFileID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.Score < -1 || sr.Score > 1 {
		return ErrInvalidScore
	}

	if sr.Path == "" {
		return ErrMissingFileInfo
	}

	return nil
}
