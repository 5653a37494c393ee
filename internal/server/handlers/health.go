package handlers

import (
	"context"

	"github.com/maruel/chardb/internal/server/dto"
)

// HealthHandler handles the root and health check endpoints.
type HealthHandler struct {
	version string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version}
}

// Home answers the root endpoint.
func (h *HealthHandler) Home(ctx context.Context, req *dto.HomeRequest) (*dto.HomeResponse, error) {
	return &dto.HomeResponse{Home: "It works, ready to check endpoints"}, nil
}

// Health handles health check requests.
func (h *HealthHandler) Health(ctx context.Context, req *dto.HealthRequest) (*dto.HealthResponse, error) {
	return &dto.HealthResponse{Status: "ok", Version: h.version}, nil
}
