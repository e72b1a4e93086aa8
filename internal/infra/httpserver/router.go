package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/pneumax/pneumax-api/internal/application"
	"github.com/pneumax/pneumax-api/internal/application/accounts"
	"github.com/pneumax/pneumax-api/internal/application/pipeline"
	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
	"github.com/pneumax/pneumax-api/internal/middleware"
)

const defaultMaxUpload = 10 << 20

// statusClientClosedRequest is nginx's code for a client that went away.
const statusClientClosedRequest = 499

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	// RateLimit applies per client IP to /login, /register and /predict.
	// A zero Capacity disables limiting.
	RateLimit struct {
		Capacity   int
		RefillRate int
	}
	Model    middleware.ModelInfo
	Database middleware.DatabaseInfo
	Checks   map[string]middleware.HealthChecker
}

type Router struct {
	pipeline  *pipeline.Service
	accounts  *accounts.Service
	log       logrus.FieldLogger
	maxUpload int64
}

// NewRouter wires every route. The returned closer stops background workers.
func NewRouter(pipe *pipeline.Service, acc *accounts.Service, log logrus.FieldLogger, opts Options) (http.Handler, func()) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Router{pipeline: pipe, accounts: acc, log: log, maxUpload: opts.MaxUploadBytes}
	if r.maxUpload <= 0 {
		r.maxUpload = defaultMaxUpload
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.Logging(log))
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(opts.Model, opts.Database, opts.Checks))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/ready", middleware.ReadinessHandler(opts.Database.Checker))
	mux.Get("/metrics", middleware.MetricsHandler)

	closer := func() {}
	mux.Group(func(rt chi.Router) {
		if opts.RateLimit.Capacity > 0 {
			limiter := middleware.NewRateLimiter(opts.RateLimit.Capacity, opts.RateLimit.RefillRate)
			closer = limiter.Close
			rt.Use(limiter.Middleware)
		}
		rt.Post("/register", r.wrap(r.handleRegister))
		rt.Post("/login", r.wrap(r.handleLogin))
		rt.Post("/predict", r.wrap(r.handlePredict))
	})
	mux.Post("/logout", r.wrap(r.handleLogout))

	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.RequireToken)
		rt.Get("/profile", r.wrap(r.handleProfile))
		rt.Post("/scan/save", r.wrap(r.handleSaveScan))
		rt.Get("/scan/history", r.wrap(r.handleHistory))
	})

	return mux, closer
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest is a transport-level input problem with a client-safe message.
type badRequest struct {
	status int
	msg    string
}

func (e *badRequest) Error() string { return e.msg }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var br *badRequest
		if errors.As(err, &br) {
			middleware.WriteError(w, br.status, br.msg)
			return
		}

		status, msg := statusFor(err)
		entry := r.log.WithError(err).WithFields(logrus.Fields{
			"path":       req.URL.Path,
			"status":     status,
			"request_id": chimw.GetReqID(req.Context()),
		})
		if status >= http.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Debug("request rejected")
		}
		middleware.WriteError(w, status, msg)
	}
}

// statusFor maps error kinds to a status and a client-safe message.
// Internal causes never reach the response.
func statusFor(err error) (int, string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, diagnosis.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "ai quota exceeded"
	case errors.Is(err, application.ErrCanceled):
		return statusClientClosedRequest, "client closed request"
	case errors.Is(err, application.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, application.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, application.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, application.ErrConflict):
		status = http.StatusConflict
	}
	if msg := application.PublicMessage(err); msg != "" {
		return status, msg
	}
	if status == http.StatusInternalServerError {
		return status, "internal server error"
	}
	return status, http.StatusText(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func decodeBody(req *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(req.Body, 1<<20)).Decode(v); err != nil {
		return &badRequest{status: http.StatusBadRequest, msg: "invalid JSON body"}
	}
	return nil
}

// POST /register
func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) error {
	var body accounts.RegisterCommand
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	body.FirstName = middleware.SanitizeString(body.FirstName)
	body.LastName = middleware.SanitizeString(body.LastName)

	id, err := r.accounts.Register(req.Context(), body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User created successfully",
		"userId":  id,
	})
}

// POST /login
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(req, &body); err != nil {
		return err
	}

	res, err := r.accounts.Login(req.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, application.ErrUnauthorized) {
			middleware.IncrementLoginsFailed()
		}
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"token": res.Token,
		"user": map[string]string{
			"email":     res.User.Email,
			"firstName": res.User.FirstName,
			"lastName":  res.User.LastName,
		},
	})
}

// POST /logout
// Tokens are stateless; the client drops its copy.
func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// GET /profile
func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) error {
	u, err := r.accounts.Profile(req.Context(), middleware.GetTokenFromContext(req.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"email":     u.Email,
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"createdAt": u.CreatedAt.Format(time.RFC3339),
		"isActive":  u.IsActive,
	})
}

// POST /scan/save
func (r *Router) handleSaveScan(w http.ResponseWriter, req *http.Request) error {
	var body pipeline.ScanInput
	if err := decodeBody(req, &body); err != nil {
		return err
	}

	id, err := r.pipeline.SaveScan(req.Context(), middleware.GetTokenFromContext(req.Context()), body)
	if err != nil {
		return err
	}
	middleware.IncrementScansSaved()
	return writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Scan saved successfully",
		"scanId":  id,
	})
}

// GET /scan/history?limit=10
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	limit := middleware.ParseLimit(req.URL.Query().Get("limit"))

	list, err := r.pipeline.ListScans(req.Context(), middleware.GetTokenFromContext(req.Context()), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"scans": list,
		"total": len(list),
	})
}

// POST /predict (multipart, field "file")
func (r *Router) handlePredict(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUpload)
	file, header, err := req.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return &badRequest{status: http.StatusRequestEntityTooLarge, msg: "file too large"}
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return &badRequest{status: http.StatusBadRequest, msg: "No file provided"}
		default:
			return &badRequest{status: http.StatusBadRequest, msg: "invalid multipart body"}
		}
	}
	defer file.Close()

	name := middleware.SanitizeFilename(header.Filename)
	if name == "" {
		return &badRequest{status: http.StatusBadRequest, msg: "No file selected"}
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return &badRequest{status: http.StatusBadRequest, msg: "could not read upload"}
	}
	if len(data) == 0 {
		return &badRequest{status: http.StatusBadRequest, msg: "No file selected"}
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	middleware.IncrementAnalyses()
	report, err := r.pipeline.Analyze(req.Context(), pipeline.Upload{
		Filename:    name,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		middleware.IncrementAnalysesFailed()
		return err
	}
	return writeJSON(w, http.StatusOK, report)
}
