package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pneumax/pneumax-api/internal/application"
	"github.com/pneumax/pneumax-api/internal/application/accounts"
	"github.com/pneumax/pneumax-api/internal/application/auth"
	"github.com/pneumax/pneumax-api/internal/application/enrich"
	"github.com/pneumax/pneumax-api/internal/application/pipeline"
	"github.com/pneumax/pneumax-api/internal/application/quality"
	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
	"github.com/pneumax/pneumax-api/internal/infra/db/memory"
	"github.com/pneumax/pneumax-api/internal/infra/httpserver"
	"github.com/pneumax/pneumax-api/internal/middleware"
)

type stubClassifier struct {
	mu    sync.Mutex
	probs []float64
	err   error
}

func (s *stubClassifier) Classify(context.Context, diagnosis.Tensor) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probs, s.err
}

func (s *stubClassifier) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type server struct {
	*httptest.Server
	classifier *stubClassifier
}

func newServer(t *testing.T, opts httpserver.Options) *server {
	t.Helper()
	logger, _ := test.NewNullLogger()
	tokens, err := auth.NewTokenService([]byte("router-secret"), time.Hour, application.SystemClock{})
	require.NoError(t, err)

	classifier := &stubClassifier{probs: []float64{0.1, 0.85, 0.05}}
	scanRepo := memory.NewScanRepository()
	pipe := &pipeline.Service{
		Gate:            quality.DefaultGate(),
		Classifier:      classifier,
		Enricher:        enrich.New(enrich.NewRand(1)),
		Tokens:          tokens,
		Scans:           scanRepo,
		Log:             logger,
		ModelVersion:    "router-test",
		ClassifyTimeout: time.Second,
		StorageTimeout:  time.Second,
	}
	acc := &accounts.Service{
		Users:    memory.NewUserRepository(),
		Tokens:   tokens,
		Log:      logger,
		HashCost: bcrypt.MinCost,
	}
	opts.Model = middleware.ModelInfo{Loaded: pipe.ModelLoaded, Type: "stub", Classes: []string{"Normal", "Pneumonia", "Tuberculosis"}}
	opts.Database = middleware.DatabaseInfo{Driver: "memory", Checker: middleware.PingChecker{Target: scanRepo}}

	h, closeFn := httpserver.NewRouter(pipe, acc, logger, opts)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		closeFn()
	})
	return &server{Server: srv, classifier: classifier}
}

func (s *server) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (s *server) upload(t *testing.T, field, filename string, data []byte) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(s.URL+"/predict", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			v := uint8(40)
			if (x/4+y/4)%2 == 0 {
				v = 220
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func register(t *testing.T, s *server, email string) string {
	t.Helper()
	resp, _ := s.do(t, http.MethodPost, "/register", "", map[string]string{
		"email": email, "password": "pw-123456", "firstName": "Ada", "lastName": "Lovelace",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/login", "", map[string]string{"email": email, "password": "pw-123456"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["token"].(string)
}

func TestAccountsFlow(t *testing.T) {
	s := newServer(t, httpserver.Options{})

	token := register(t, s, "ada@example.com")

	resp, body := s.do(t, http.MethodPost, "/register", "", map[string]string{
		"email": "ada@example.com", "password": "x", "firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "User already exists", body["error"])

	resp, body = s.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", body["error"])

	// raw token, as the original frontend sends it
	resp, body = s.do(t, http.MethodGet, "/profile", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ada@example.com", body["email"])
	assert.Equal(t, "Ada", body["firstName"])
	assert.Equal(t, true, body["isActive"])
	assert.NotContains(t, body, "password")

	resp, _ = s.do(t, http.MethodGet, "/profile", "Bearer "+token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/logout", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Logged out successfully", body["message"])
}

func TestAuthErrors(t *testing.T) {
	s := newServer(t, httpserver.Options{})

	resp, body := s.do(t, http.MethodGet, "/scan/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Token is missing", body["error"])

	resp, body = s.do(t, http.MethodGet, "/scan/history", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Token is invalid", body["error"])

	resp, body = s.do(t, http.MethodPost, "/register", "", map[string]string{"email": "a@b.co"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "missing required fields")
}

func TestPredictAndHistory(t *testing.T) {
	s := newServer(t, httpserver.Options{})
	token := register(t, s, "grace@example.com")

	resp, report := s.upload(t, "file", "chest.png", pngBytes(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Pneumonia", report["prediction"])
	assert.Equal(t, 0.85, report["confidence"])
	assert.Equal(t, "High", report["confidence_level"])
	for _, key := range []string{"all_probabilities", "explanation", "heatmap_regions", "disease_info", "quality_check", "analysis_metadata"} {
		assert.Contains(t, report, key)
	}

	scan := map[string]any{
		"prediction":        report["prediction"],
		"confidence":        report["confidence"],
		"disease":           report["prediction"],
		"status":            "Abnormal",
		"precaution":        "Rest",
		"image_url":         "blob:chest.png",
		"all_probabilities": report["all_probabilities"],
	}
	resp, body := s.do(t, http.MethodPost, "/scan/save", token, scan)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["scanId"])

	resp, body = s.do(t, http.MethodGet, "/scan/history?limit=abc", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])
	list := body["scans"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "grace@example.com", list[0].(map[string]any)["user_email"])

	other := register(t, s, "linus@example.com")
	resp, body = s.do(t, http.MethodGet, "/scan/history", other, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["total"])
	assert.Equal(t, []any{}, body["scans"])
}

func TestSaveScan_Validation(t *testing.T) {
	s := newServer(t, httpserver.Options{})
	token := register(t, s, "val@example.com")

	resp, body := s.do(t, http.MethodPost, "/scan/save", token, map[string]any{"prediction": "Normal", "confidence": 2, "status": "x", "image_url": "u"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "confidence must be between 0 and 1", body["error"])

	req, err := http.NewRequest(http.MethodPost, s.URL+"/scan/save", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", token)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestPredict_Errors(t *testing.T) {
	s := newServer(t, httpserver.Options{})

	resp, body := s.upload(t, "", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No file provided", body["error"])

	resp, body = s.upload(t, "file", "..", pngBytes(t))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No file selected", body["error"])

	resp, body = s.upload(t, "file", "chest.png", []byte{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "zero-byte file")
	assert.Equal(t, "No file selected", body["error"])

	resp, body = s.upload(t, "file", "notes.txt", []byte("definitely not an image"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", body["error"])

	s.classifier.fail(fmt.Errorf("openai: %w", diagnosis.ErrQuotaExceeded))
	resp, body = s.upload(t, "file", "chest.png", pngBytes(t))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "ai quota exceeded", body["error"])

	s.classifier.fail(fmt.Errorf("connection reset by peer 10.0.0.7"))
	resp, body = s.upload(t, "file", "chest.png", pngBytes(t))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, body["error"], "10.0.0.7")
}

func TestPredict_UploadLimit(t *testing.T) {
	s := newServer(t, httpserver.Options{MaxUploadBytes: 512})

	resp, _ := s.upload(t, "file", "big.png", bytes.Repeat([]byte{1}, 4096))
	assert.GreaterOrEqual(t, resp.StatusCode, 400)
	assert.Less(t, resp.StatusCode, 500)
}

func TestRateLimit(t *testing.T) {
	opts := httpserver.Options{}
	opts.RateLimit.Capacity = 1
	s := newServer(t, opts)

	creds := map[string]string{"email": "x@example.com", "password": "pw"}
	resp, _ := s.do(t, http.MethodPost, "/login", "", creds)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPost, "/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newServer(t, httpserver.Options{})

	resp, body := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["model_loaded"])
	assert.Equal(t, []any{"Normal", "Pneumonia", "Tuberculosis"}, body["supported_diseases"])

	resp, _ = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "analyses_total")

	r, err := http.Get(s.URL + "/live")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t, httpserver.Options{AllowedOrigins: []string{"http://localhost:3000"}})

	req, err := http.NewRequest(http.MethodOptions, s.URL+"/scan/save", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
