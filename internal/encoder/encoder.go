package encoder

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidText    = errors.New("text is not valid UTF-8")
	ErrInvalidBatch   = errors.New("invalid batch")
	ErrShapeMismatch  = errors.New("encoder output shape mismatch")
	ErrInferFailed    = errors.New("inference failed")
	ErrUnknownEncoder = errors.New("unknown encoder provider")
)

// Provider names
const (
	ProviderLocal  = "local"
	ProviderRemote = "remote"
)

// Tokenizer converts text into token ids
type Tokenizer interface {
	// Tokenize returns the token ids of text without boundary markers
	Tokenize(text string) ([]int, error)

	// WithBoundaries returns a copy of ids with the start and end markers inserted
	WithBoundaries(ids []int) []int

	// PadID returns the id used to right-pad batch rows
	PadID() int
}

// Model runs a pretrained sequence encoder in inference mode
type Model interface {
	// Infer returns per-position hidden states and one pooled vector per row
	Infer(ctx context.Context, batch *Batch) (*Output, error)

	// HiddenSize returns the dimensionality of every output vector
	HiddenSize() int
}

// Encoder is a tokenizer/model pair loaded together.
// Implementations are read-only after construction.
type Encoder interface {
	Tokenizer
	Model

	// Name identifies the encoder in logs and stored runs
	Name() string

	// Close releases any resources held by the encoder
	Close() error
}

// Batch is a rectangular batch of token id rows with its attention mask
type Batch struct {
	InputIDs      [][]int
	AttentionMask [][]int // 1 = real token, 0 = padding
}

// Len returns the number of rows
func (b *Batch) Len() int {
	return len(b.InputIDs)
}

// SeqLen returns the padded row length
func (b *Batch) SeqLen() int {
	if len(b.InputIDs) == 0 {
		return 0
	}
	return len(b.InputIDs[0])
}

// Validate checks that the batch is rectangular and the mask matches it
func (b *Batch) Validate() error {
	if len(b.InputIDs) == 0 {
		return fmt.Errorf("%w: no rows", ErrInvalidBatch)
	}
	if len(b.AttentionMask) != len(b.InputIDs) {
		return fmt.Errorf("%w: %d mask rows for %d id rows", ErrInvalidBatch, len(b.AttentionMask), len(b.InputIDs))
	}

	seqLen := b.SeqLen()
	for i, row := range b.InputIDs {
		if len(row) != seqLen {
			return fmt.Errorf("%w: row %d has length %d, want %d", ErrInvalidBatch, i, len(row), seqLen)
		}
		if len(b.AttentionMask[i]) != seqLen {
			return fmt.Errorf("%w: mask row %d has length %d, want %d", ErrInvalidBatch, i, len(b.AttentionMask[i]), seqLen)
		}
		for j, m := range b.AttentionMask[i] {
			if m != 0 && m != 1 {
				return fmt.Errorf("%w: mask[%d][%d] = %d", ErrInvalidBatch, i, j, m)
			}
		}
	}
	return nil
}

// Output holds the raw encoder outputs for a batch
type Output struct {
	// HiddenStates are [batch][seq_len][hidden_size]
	HiddenStates [][][]float32

	// Pooled holds one summary vector per row, [batch][hidden_size]
	Pooled [][]float32
}

// Validate checks the output against the batch it was produced from
func (o *Output) Validate(batch *Batch, hiddenSize int) error {
	if len(o.HiddenStates) != batch.Len() {
		return fmt.Errorf("%w: %d hidden state rows for %d inputs", ErrShapeMismatch, len(o.HiddenStates), batch.Len())
	}
	if len(o.Pooled) != batch.Len() {
		return fmt.Errorf("%w: %d pooled vectors for %d inputs", ErrShapeMismatch, len(o.Pooled), batch.Len())
	}

	seqLen := batch.SeqLen()
	for i, row := range o.HiddenStates {
		if len(row) != seqLen {
			return fmt.Errorf("%w: row %d has %d positions, want %d", ErrShapeMismatch, i, len(row), seqLen)
		}
		for j, vec := range row {
			if len(vec) != hiddenSize {
				return fmt.Errorf("%w: hidden[%d][%d] has size %d, want %d", ErrShapeMismatch, i, j, len(vec), hiddenSize)
			}
		}
		if len(o.Pooled[i]) != hiddenSize {
			return fmt.Errorf("%w: pooled[%d] has size %d, want %d", ErrShapeMismatch, i, len(o.Pooled[i]), hiddenSize)
		}
	}
	return nil
}

// Pair composes a Tokenizer and a Model into an Encoder
type Pair struct {
	Tokenizer
	Model

	name string
}

// NewPair creates an Encoder from separately loaded parts
func NewPair(name string, tok Tokenizer, model Model) *Pair {
	return &Pair{Tokenizer: tok, Model: model, name: name}
}

func (p *Pair) Name() string {
	return p.name
}

func (p *Pair) Close() error {
	if c, ok := p.Model.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
