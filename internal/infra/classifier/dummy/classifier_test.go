package dummy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
	"github.com/pneumax/pneumax-api/internal/infra/classifier/dummy"
)

func tensor(h, w int, v float32) diagnosis.Tensor {
	data := make([]float32, h*w*3)
	for i := range data {
		data[i] = v
	}
	return diagnosis.Tensor{Shape: []int{1, h, w, 3}, Data: data}
}

func TestClassifier_ReturnsDistribution(t *testing.T) {
	c := dummy.New()

	probs, err := c.Classify(context.Background(), tensor(4, 4, 0.5))
	require.NoError(t, err)
	require.Len(t, probs, len(diagnosis.Classes))

	var sum float64
	for _, p := range probs {
		assert.True(t, p > 0 && p < 1)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.False(t, c.Loaded())
}

func TestClassifier_Deterministic(t *testing.T) {
	a, err := dummy.New().Classify(context.Background(), tensor(2, 2, 0.3))
	require.NoError(t, err)
	b, err := dummy.New().Classify(context.Background(), tensor(2, 2, 0.3))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestClassifier_RejectsBadShape(t *testing.T) {
	_, err := dummy.New().Classify(context.Background(), diagnosis.Tensor{Shape: []int{1, 2, 2, 3}, Data: []float32{1}})
	assert.Error(t, err)

	_, err = dummy.New().Classify(context.Background(), diagnosis.Tensor{Shape: []int{2, 2, 1}})
	assert.Error(t, err)
}

func TestClassifier_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dummy.New().Classify(ctx, tensor(1, 1, 0))
	assert.ErrorIs(t, err, context.Canceled)
}
