// Package tfserving classifies images through a TensorFlow Serving REST endpoint.
package tfserving

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
)

type Client struct {
	http  *resty.Client
	model string
}

type predictRequest struct {
	Instances [][][][]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

// New builds a client for baseURL (e.g. http://localhost:8501) and model name.
func New(baseURL, model string, timeout time.Duration) *Client {
	cli := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		cli.SetTimeout(timeout)
	}
	return &Client{http: cli, model: model}
}

func (*Client) Loaded() bool { return true }

// Classify posts the tensor to /v1/models/{model}:predict.
func (c *Client) Classify(ctx context.Context, in diagnosis.Tensor) ([]float64, error) {
	instances, err := nest(in)
	if err != nil {
		return nil, err
	}

	var out predictResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(predictRequest{Instances: instances}).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/v1/models/%s:predict", c.model))
	if err != nil {
		return nil, fmt.Errorf("tfserving request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tfserving status %d: %s", resp.StatusCode(), out.Error)
	}
	if len(out.Predictions) != 1 {
		return nil, fmt.Errorf("tfserving returned %d predictions for 1 instance", len(out.Predictions))
	}
	return out.Predictions[0], nil
}

// nest converts a flat NHWC tensor into the nested [N][H][W][C] form TF Serving expects.
func nest(in diagnosis.Tensor) ([][][][]float32, error) {
	if len(in.Shape) != 4 {
		return nil, fmt.Errorf("expected rank 4 tensor, got shape %v", in.Shape)
	}
	n, h, w, ch := in.Shape[0], in.Shape[1], in.Shape[2], in.Shape[3]
	if len(in.Data) != n*h*w*ch {
		return nil, fmt.Errorf("tensor data length %d does not match shape %v", len(in.Data), in.Shape)
	}

	out := make([][][][]float32, n)
	i := 0
	for b := range out {
		out[b] = make([][][]float32, h)
		for y := range out[b] {
			out[b][y] = make([][]float32, w)
			for x := range out[b][y] {
				out[b][y][x] = in.Data[i : i+ch : i+ch]
				i += ch
			}
		}
	}
	return out, nil
}
