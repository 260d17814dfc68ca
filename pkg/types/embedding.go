package types

import "fmt"

// Strategy names a pooling strategy
type Strategy string

const (
	// StrategyTokenMean averages per-position hidden states (mask weighted)
	// within each window, then averages the window vectors.
	StrategyTokenMean Strategy = "token_mean"

	// StrategySummaryMean averages the encoder's pooled summary vector of
	// each window.
	StrategySummaryMean Strategy = "summary_mean"
)

// Strategies lists every pooling strategy in output order
var Strategies = []Strategy{StrategyTokenMean, StrategySummaryMean}

// ParseStrategy converts a name into a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyTokenMean, StrategySummaryMean:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// EmbeddingPair holds the two pooled vectors for one SourceUnit
type EmbeddingPair struct {
	TokenMean   []float32
	SummaryMean []float32

	// Diagnostics
	TokenCount  int // Tokens before boundary markers
	WindowCount int
}

// Vector returns the vector for the given strategy
func (p *EmbeddingPair) Vector(s Strategy) []float32 {
	switch s {
	case StrategyTokenMean:
		return p.TokenMean
	case StrategySummaryMean:
		return p.SummaryMean
	default:
		return nil
	}
}

// Dimension returns the vector length
func (p *EmbeddingPair) Dimension() int {
	return len(p.TokenMean)
}

// Clone returns a deep copy
func (p *EmbeddingPair) Clone() *EmbeddingPair {
	tm := make([]float32, len(p.TokenMean))
	copy(tm, p.TokenMean)
	sm := make([]float32, len(p.SummaryMean))
	copy(sm, p.SummaryMean)
	return &EmbeddingPair{
		TokenMean:   tm,
		SummaryMean: sm,
		TokenCount:  p.TokenCount,
		WindowCount: p.WindowCount,
	}
}
