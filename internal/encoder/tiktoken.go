package encoder

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultEncoding is the BPE vocabulary used for code
	DefaultEncoding = "cl100k_base"

	// EndOfTextID is <|endoftext|> in cl100k_base
	EndOfTextID = 100257
)

// TiktokenTokenizer implements Tokenizer with a tiktoken BPE vocabulary
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
	startID  int
	endID    int
	padID    int
}

// TiktokenOption configures a TiktokenTokenizer
type TiktokenOption func(*TiktokenTokenizer)

// WithBoundaryIDs overrides the start and end marker ids
func WithBoundaryIDs(start, end int) TiktokenOption {
	return func(t *TiktokenTokenizer) {
		t.startID = start
		t.endID = end
	}
}

// WithPadID overrides the padding id
func WithPadID(id int) TiktokenOption {
	return func(t *TiktokenTokenizer) {
		t.padID = id
	}
}

// NewTiktokenTokenizer loads the named encoding.
// Boundary and padding ids default to <|endoftext|>.
func NewTiktokenTokenizer(encoding string, opts ...TiktokenOption) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}

	t := &TiktokenTokenizer{
		encoding: enc,
		startID:  EndOfTextID,
		endID:    EndOfTextID,
		padID:    EndOfTextID,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Tokenize encodes text with special tokens treated as plain text
func (t *TiktokenTokenizer) Tokenize(text string) ([]int, error) {
	if !utf8.ValidString(text) {
		return nil, ErrInvalidText
	}
	return t.encoding.Encode(text, nil, nil), nil
}

func (t *TiktokenTokenizer) WithBoundaries(ids []int) []int {
	return addBoundaries(ids, t.startID, t.endID)
}

func (t *TiktokenTokenizer) PadID() int {
	return t.padID
}

func addBoundaries(ids []int, start, end int) []int {
	out := make([]int, 0, len(ids)+2)
	out = append(out, start)
	out = append(out, ids...)
	return append(out, end)
}
