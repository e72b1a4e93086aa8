package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Check(ctx context.Context) error
}

// Pinger is implemented by the repositories and the image store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker adapts a Pinger with a per-check timeout.
type PingChecker struct {
	Target  Pinger
	Timeout time.Duration
}

func (p PingChecker) Check(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Target.Ping(ctx)
}

// ModelInfo describes the classifier for the health report.
type ModelInfo struct {
	Loaded  func() bool
	Type    string
	Classes []string
}

// DatabaseInfo names the configured store and how to check it.
type DatabaseInfo struct {
	Driver  string
	Name    string
	Checker HealthChecker
}

// HealthStatus represents the health status
type HealthStatus struct {
	Status            string                 `json:"status"`
	ModelLoaded       bool                   `json:"model_loaded"`
	ModelType         string                 `json:"model_type"`
	SupportedDiseases []string               `json:"supported_diseases"`
	Database          DatabaseStatus         `json:"database"`
	Checks            map[string]CheckStatus `json:"checks,omitempty"`
	Timestamp         time.Time              `json:"timestamp"`
}

type DatabaseStatus struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Driver    string `json:"driver"`
	Database  string `json:"database,omitempty"`
}

// CheckStatus represents individual check status
type CheckStatus struct {
	Status string `json:"status"`
}

// HealthHandler reports model, database and auxiliary checks. Any failing
// check turns the response into a 503. Error details are not exposed.
func HealthHandler(model ModelInfo, db DatabaseInfo, checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := HealthStatus{
			Status:            "healthy",
			ModelType:         model.Type,
			SupportedDiseases: model.Classes,
			Database:          DatabaseStatus{Status: "healthy", Connected: true, Driver: db.Driver, Database: db.Name},
			Timestamp:         time.Now().UTC(),
		}
		if model.Loaded != nil {
			health.ModelLoaded = model.Loaded()
		}

		if db.Checker != nil {
			if err := db.Checker.Check(ctx); err != nil {
				health.Status = "unhealthy"
				health.Database.Status = "unhealthy"
				health.Database.Connected = false
			}
		}

		if len(checkers) > 0 {
			health.Checks = make(map[string]CheckStatus, len(checkers))
		}
		for name, checker := range checkers {
			if err := checker.Check(ctx); err != nil {
				health.Status = "unhealthy"
				health.Checks[name] = CheckStatus{Status: "unhealthy"}
			} else {
				health.Checks[name] = CheckStatus{Status: "healthy"}
			}
		}

		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	}
}

// ReadinessHandler reports ready once the checker (usually the database) answers.
func ReadinessHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ready", http.StatusOK
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Check(ctx); err != nil {
				status, code = "not ready", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().UTC(),
		})
	}
}

// LivenessHandler creates a liveness check handler (simplest check)
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
