package diagnosis

import "context"

// Classifier maps a [1,H,W,3] tensor to one score per entry of Classes.
type Classifier interface {
	Classify(ctx context.Context, input Tensor) ([]float64, error)
}
