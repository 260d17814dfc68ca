package encoder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

const (
	// LocalHiddenSize is the default dimensionality of LocalModel
	LocalHiddenSize = 384

	// Byte tokenizer special ids sit just above the byte range
	ByteStartID = 256
	ByteEndID   = 257
	BytePadID   = 258
)

// ByteTokenizer maps UTF-8 bytes to ids 0-255. It needs no vocabulary file.
type ByteTokenizer struct{}

func (ByteTokenizer) Tokenize(text string) ([]int, error) {
	if !utf8.ValidString(text) {
		return nil, ErrInvalidText
	}
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i])
	}
	return ids, nil
}

func (ByteTokenizer) WithBoundaries(ids []int) []int {
	return addBoundaries(ids, ByteStartID, ByteEndID)
}

func (ByteTokenizer) PadID() int {
	return BytePadID
}

// LocalModel is an offline, deterministic stand-in for a pretrained encoder.
// The hidden state at a position is a hash of (token id, position) mapped to
// [-1, 1); the pooled vector is tanh of the first position, like a BERT pooler.
// It is safe for concurrent use.
type LocalModel struct {
	hiddenSize int
}

// NewLocalModel creates a local model with the given hidden size
func NewLocalModel(hiddenSize int) (*LocalModel, error) {
	if hiddenSize <= 0 {
		return nil, fmt.Errorf("hidden size must be positive, got %d", hiddenSize)
	}
	return &LocalModel{hiddenSize: hiddenSize}, nil
}

func (l *LocalModel) Infer(ctx context.Context, batch *Batch) (*Output, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	out := &Output{
		HiddenStates: make([][][]float32, batch.Len()),
		Pooled:       make([][]float32, batch.Len()),
	}
	for i, row := range batch.InputIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		states := make([][]float32, len(row))
		for j, id := range row {
			states[j] = l.stateFor(id, j)
		}
		out.HiddenStates[i] = states

		pooled := make([]float32, l.hiddenSize)
		for d, v := range states[0] {
			pooled[d] = float32(math.Tanh(float64(v)))
		}
		out.Pooled[i] = pooled
	}
	return out, nil
}

func (l *LocalModel) HiddenSize() int {
	return l.hiddenSize
}

func (l *LocalModel) Close() error {
	return nil
}

// stateFor derives one hidden vector from 32-byte hash blocks
func (l *LocalModel) stateFor(id, pos int) []float32 {
	vec := make([]float32, l.hiddenSize)
	var seed [24]byte
	binary.LittleEndian.PutUint64(seed[0:], uint64(id))
	binary.LittleEndian.PutUint64(seed[8:], uint64(pos))

	for block := 0; block*8 < l.hiddenSize; block++ {
		binary.LittleEndian.PutUint64(seed[16:], uint64(block))
		sum := sha256.Sum256(seed[:])
		for k := 0; k < 8; k++ {
			d := block*8 + k
			if d >= l.hiddenSize {
				break
			}
			u := binary.LittleEndian.Uint32(sum[k*4:])
			vec[d] = float32(float64(u)/float64(1<<31) - 1)
		}
	}
	return vec
}
