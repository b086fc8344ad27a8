package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ebsalem/portal/app"
	"github.com/ebsalem/portal/storage"
	"github.com/ebsalem/portal/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck returns a simple liveness handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessCheck probes the LMS backend and the local storage backend
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string)
		ready := true

		if deps.Client == nil {
			checks["backend"] = "not_initialized"
			ready = false
		} else if err := deps.Client.Health(ctx); err != nil {
			deps.Logger.Warn("backend health check failed", zap.Error(err))
			checks["backend"] = "unhealthy"
			ready = false
		} else {
			checks["backend"] = "healthy"
		}

		if err := checkStorage(ctx, deps.Local); err != nil {
			deps.Logger.Warn("storage health check failed", zap.Error(err))
			checks["storage"] = "unhealthy"
			ready = false
		} else {
			checks["storage"] = "healthy"
		}

		status, httpStatus := "ready", http.StatusOK
		if !ready {
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		}
		if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
			deps.Logger.Error("failed to write readiness response", zap.Error(err))
		}
	}
}

// checkStorage reads a key that is never written; only ErrNotFound is healthy
func checkStorage(ctx context.Context, s storage.Storage) error {
	if s == nil {
		return errors.New("storage not initialized")
	}
	if _, err := s.Get(ctx, "__readiness_probe"); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}
