// Package dummy provides a deterministic stand-in classifier used when no
// trained model is configured: global average pooling over the image
// followed by a fixed dense layer and softmax.
package dummy

import (
	"context"
	"fmt"
	"math"

	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
)

// weights[class][channel]
var (
	weights = [3][3]float64{
		{0.42, -0.31, 0.18},
		{-0.27, 0.55, -0.12},
		{0.09, -0.22, 0.47},
	}
	bias = [3]float64{0.05, 0, -0.05}
)

type Classifier struct{}

func New() *Classifier { return &Classifier{} }

// Loaded is false: this is not a trained model.
func (*Classifier) Loaded() bool { return false }

func (*Classifier) Classify(ctx context.Context, in diagnosis.Tensor) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in.Shape) != 4 || in.Shape[3] != 3 {
		return nil, fmt.Errorf("unexpected input shape %v", in.Shape)
	}
	n := in.Shape[0] * in.Shape[1] * in.Shape[2]
	if n == 0 || len(in.Data) != n*3 {
		return nil, fmt.Errorf("tensor data length %d does not match shape %v", len(in.Data), in.Shape)
	}

	var pooled [3]float64
	for i := 0; i < len(in.Data); i += 3 {
		pooled[0] += float64(in.Data[i])
		pooled[1] += float64(in.Data[i+1])
		pooled[2] += float64(in.Data[i+2])
	}
	for c := range pooled {
		pooled[c] /= float64(n)
	}

	logits := make([]float64, len(weights))
	for k := range weights {
		logits[k] = bias[k]
		for c := range pooled {
			logits[k] += weights[k][c] * pooled[c]
		}
	}
	return softmax(logits), nil
}

func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, l)
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
