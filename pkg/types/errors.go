package types

import "errors"

// Domain errors for type validation
var (
	ErrMissingCategory = errors.New("category label is required")
	ErrUnknownStrategy = errors.New("unknown pooling strategy")

	// Search result errors
	ErrInvalidFileID   = errors.New("invalid file ID")
	ErrInvalidRank     = errors.New("rank must be >= 1")
	ErrInvalidScore    = errors.New("score must be between -1 and 1")
	ErrMissingFileInfo = errors.New("file path is required")
)
