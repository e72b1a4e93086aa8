package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
	"github.com/pneumax/pneumax-api/internal/infra/ai/prompt"
)

const maxTokens = 256

// Client classifies images with a hosted vision model.
type Client struct {
	*openai.Client
	Model string
}

// NewClient builds a client. baseURL overrides the API endpoint when set.
func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (*Client) Loaded() bool { return true }

func (c *Client) Classify(ctx context.Context, in diagnosis.Tensor) ([]float64, error) {
	dataURL, err := encodeTensor(in)
	if err != nil {
		return nil, err
	}

	model := c.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	labels := make([]string, len(diagnosis.Classes))
	for i, cl := range diagnosis.Classes {
		labels[i] = string(cl)
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.ClassifierSystemPrompt(labels)},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt.ClassifierUserPrompt()},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: openai.ImageURLDetailLow,
				}},
			}},
		},
	}
	// Reasoning models reject MaxTokens.
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		if quotaExceeded(err) {
			return nil, fmt.Errorf("%w: %v", diagnosis.ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}
	return parseProbabilities(resp.Choices[0].Message.Content, labels)
}

func quotaExceeded(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests
}

func parseProbabilities(content string, labels []string) ([]float64, error) {
	var out struct {
		Probabilities map[string]float64 `json:"probabilities"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}

	probs := make([]float64, len(labels))
	var sum float64
	for i, l := range labels {
		p, ok := out.Probabilities[l]
		if !ok {
			return nil, fmt.Errorf("model output missing label %q", l)
		}
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("invalid probability %v for %q", p, l)
		}
		probs[i] = p
		sum += p
	}
	if sum == 0 {
		return nil, errors.New("model output probabilities sum to zero")
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

// encodeTensor turns a [1,H,W,3] tensor in [0,1] back into a PNG data URL.
func encodeTensor(in diagnosis.Tensor) (string, error) {
	if len(in.Shape) != 4 || in.Shape[0] != 1 || in.Shape[3] != 3 {
		return "", fmt.Errorf("unexpected input shape %v", in.Shape)
	}
	h, w := in.Shape[1], in.Shape[2]
	if len(in.Data) != h*w*3 {
		return "", fmt.Errorf("tensor data length %d does not match shape %v", len(in.Data), in.Shape)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < len(in.Data); i, j = i+3, j+4 {
		img.Pix[j] = toByte(in.Data[i])
		img.Pix[j+1] = toByte(in.Data[i+1])
		img.Pix[j+2] = toByte(in.Data[i+2])
		img.Pix[j+3] = 0xff
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func toByte(v float32) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, float64(v))) * 255))
}
