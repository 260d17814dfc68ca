package chunker

import (
	"errors"
	"fmt"

	"github.com/dshills/patternvec/internal/encoder"
)

// Configuration errors
var (
	ErrInvalidChunkSize = errors.New("chunk size must be >= 1")
	ErrInvalidStride    = errors.New("stride must be in [1, chunk size]")
)

// Config controls window size and overlap
type Config struct {
	ChunkSize int // Maximum tokens per window, before boundary markers
	Stride    int // Offset between consecutive window starts
}

// Validate rejects configurations that cannot produce a covering set of windows
func (c Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.Stride < 1 || c.Stride > c.ChunkSize {
		return fmt.Errorf("%w: got stride %d with chunk size %d", ErrInvalidStride, c.Stride, c.ChunkSize)
	}
	return nil
}

// Overlap returns the number of tokens shared by consecutive windows
func (c Config) Overlap() int {
	return c.ChunkSize - c.Stride
}

// Window is a contiguous slice of a token sequence
type Window struct {
	Offset int
	Tokens []int
}

// Split partitions tokens into windows. The config must be valid.
// Returned windows share memory with tokens.
func (c Config) Split(tokens []int) []Window {
	n := len(tokens)
	if n <= c.ChunkSize {
		return []Window{{Offset: 0, Tokens: tokens}}
	}

	windows := make([]Window, 0, WindowCount(n, c.ChunkSize, c.Stride))
	for offset := 0; offset < n; offset += c.Stride {
		end := offset + c.ChunkSize
		if end > n {
			end = n
		}
		windows = append(windows, Window{Offset: offset, Tokens: tokens[offset:end]})
	}
	return windows
}

// WindowCount returns len(Split(tokens)) for a sequence of n tokens.
// Windows start at every multiple of stride below n, so the count is
// ceil(n/stride), not ceil((n-chunkSize)/stride)+1: seven tokens with
// chunk 4 and stride 2 give four windows, the last holding only token 7.
func WindowCount(n, chunkSize, stride int) int {
	if n <= chunkSize {
		return 1
	}
	return (n + stride - 1) / stride
}

// BuildBatch adds boundary markers to each window and pads the rows to a
// common length
func BuildBatch(windows []Window, tok encoder.Tokenizer) *encoder.Batch {
	rows := make([][]int, len(windows))
	maxLen := 0
	for i, w := range windows {
		rows[i] = tok.WithBoundaries(w.Tokens)
		if len(rows[i]) > maxLen {
			maxLen = len(rows[i])
		}
	}

	return Pad(rows, maxLen, tok.PadID())
}

// Pad right-pads rows to maxLen and builds the attention mask
func Pad(rows [][]int, maxLen, padID int) *encoder.Batch {
	batch := &encoder.Batch{
		InputIDs:      make([][]int, len(rows)),
		AttentionMask: make([][]int, len(rows)),
	}
	for i, row := range rows {
		ids := make([]int, maxLen)
		mask := make([]int, maxLen)
		copy(ids, row)
		for j := range ids {
			if j < len(row) {
				mask[j] = 1
			} else {
				ids[j] = padID
			}
		}
		batch.InputIDs[i] = ids
		batch.AttentionMask[i] = mask
	}
	return batch
}
