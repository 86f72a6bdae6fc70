package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/refaxia/storefront-api/internal/domain"
	"github.com/refaxia/storefront-api/internal/repositories"
)

var errSystemHealthRequired = errors.New("system service: health repository is required")

// ErrSystemUnavailable indicates the health probes themselves failed.
var ErrSystemUnavailable = errors.New("system service: unavailable")

// SystemServiceDeps wires the dependency health repository.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
	Logger func(context.Context, string, map[string]any)
}

type systemService struct {
	health repositories.HealthRepository
	logger func(context.Context, string, map[string]any)
}

// NewSystemService constructs the readiness probe service.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errSystemHealthRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &systemService{health: deps.Health, logger: logger}, nil
}

// CheckHealth collects dependency probes into an aggregate report.
func (s *systemService) CheckHealth(ctx context.Context) (domain.SystemHealthReport, error) {
	if s == nil || s.health == nil {
		return domain.SystemHealthReport{}, ErrSystemUnavailable
	}

	report, err := s.health.Collect(ctx)
	if err != nil {
		return domain.SystemHealthReport{}, fmt.Errorf("%w: %v", ErrSystemUnavailable, err)
	}
	if report.Status != domain.HealthStatusOK {
		s.logger(ctx, "system.health_degraded", map[string]any{
			"status": string(report.Status),
		})
	}
	return report, nil
}
