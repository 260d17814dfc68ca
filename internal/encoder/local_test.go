package encoder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalModelRejectsBadHiddenSize(t *testing.T) {
	_, err := NewLocalModel(0)
	assert.Error(t, err)
}

func TestLocalModelInferShape(t *testing.T) {
	model, err := NewLocalModel(16)
	require.NoError(t, err)

	batch := &Batch{
		InputIDs:      [][]int{{256, 1, 2, 257}, {256, 3, 257, 258}},
		AttentionMask: [][]int{{1, 1, 1, 1}, {1, 1, 1, 0}},
	}

	out, err := model.Infer(context.Background(), batch)
	require.NoError(t, err)
	require.NoError(t, out.Validate(batch, 16))

	for _, row := range out.HiddenStates {
		for _, vec := range row {
			for _, v := range vec {
				assert.GreaterOrEqual(t, v, float32(-1))
				assert.Less(t, v, float32(1))
			}
		}
	}

	// Pooled is tanh of the first position
	for i := range out.Pooled {
		for d, v := range out.Pooled[i] {
			want := float32(math.Tanh(float64(out.HiddenStates[i][0][d])))
			assert.InDelta(t, want, v, 1e-6)
		}
	}
}

func TestLocalModelDeterministic(t *testing.T) {
	model, err := NewLocalModel(24)
	require.NoError(t, err)

	batch := &Batch{
		InputIDs:      [][]int{{256, 10, 20, 30, 257}},
		AttentionMask: [][]int{{1, 1, 1, 1, 1}},
	}

	a, err := model.Infer(context.Background(), batch)
	require.NoError(t, err)
	b, err := model.Infer(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestLocalModelPositionSensitive(t *testing.T) {
	model, err := NewLocalModel(8)
	require.NoError(t, err)

	assert.NotEqual(t, model.stateFor(5, 0), model.stateFor(5, 1))
	assert.NotEqual(t, model.stateFor(5, 0), model.stateFor(6, 0))
}

func TestLocalModelCancelled(t *testing.T) {
	model, err := NewLocalModel(8)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = model.Infer(ctx, &Batch{
		InputIDs:      [][]int{{1}},
		AttentionMask: [][]int{{1}},
	})
	assert.ErrorIs(t, err, context.Canceled)
}
