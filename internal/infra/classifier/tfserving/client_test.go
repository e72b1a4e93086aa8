package tfserving_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
	"github.com/pneumax/pneumax-api/internal/infra/classifier/tfserving"
)

func smallTensor() diagnosis.Tensor {
	return diagnosis.Tensor{
		Shape: []int{1, 2, 2, 3},
		Data:  []float32{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1, 0.5},
	}
}

func TestClient_Classify(t *testing.T) {
	var gotPath string
	var gotBody struct {
		Instances [][][][]float32 `json:"instances"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictions": [[0.1, 0.85, 0.05]]}`))
	}))
	defer srv.Close()

	c := tfserving.New(srv.URL, "lunet", time.Second)
	probs, err := c.Classify(context.Background(), smallTensor())

	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.85, 0.05}, probs)
	assert.Equal(t, "/v1/models/lunet:predict", gotPath)
	require.Len(t, gotBody.Instances, 1)
	require.Len(t, gotBody.Instances[0], 2)
	require.Len(t, gotBody.Instances[0][1], 2)
	assert.Equal(t, []float32{0.9, 1, 0.5}, gotBody.Instances[0][1][1])
	assert.True(t, c.Loaded())
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "input shape mismatch"}`))
	}))
	defer srv.Close()

	_, err := tfserving.New(srv.URL, "lunet", time.Second).Classify(context.Background(), smallTensor())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "input shape mismatch")
}

func TestClient_UnexpectedPredictionCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictions": []}`))
	}))
	defer srv.Close()

	_, err := tfserving.New(srv.URL, "lunet", time.Second).Classify(context.Background(), smallTensor())
	assert.Error(t, err)
}

func TestClient_BadTensor(t *testing.T) {
	_, err := tfserving.New("http://127.0.0.1:1", "lunet", time.Second).
		Classify(context.Background(), diagnosis.Tensor{Shape: []int{1, 2}, Data: []float32{1, 2}})
	assert.Error(t, err)
}
