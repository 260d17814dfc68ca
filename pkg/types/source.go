package types

import (
	"crypto/sha256"
	"errors"
)

// SourceUnit is a single source file's content plus its identifying path.
// It is immutable once read.
type SourceUnit struct {
	Path     string
	Category string // Enclosing subdirectory of the corpus root
	Content  string
	Language string // Detected language, empty when unknown

	ContentHash [32]byte
	SizeBytes   int64
}

// NewSourceUnit builds a SourceUnit and computes its content hash
func NewSourceUnit(path, category, content string) *SourceUnit {
	return &SourceUnit{
		Path:        path,
		Category:    category,
		Content:     content,
		ContentHash: sha256.Sum256([]byte(content)),
		SizeBytes:   int64(len(content)),
	}
}

// Validate checks that the unit can be labelled in the output table
func (u *SourceUnit) Validate() error {
	if u.Path == "" {
		return errors.New("source unit path cannot be empty")
	}
	if u.Category == "" {
		return ErrMissingCategory
	}
	return nil
}
