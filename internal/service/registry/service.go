package registry

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/softtouch/api/internal/domain"
	"github.com/softtouch/api/internal/repository"
)

// Service exposes the endpoint registry. The admin panel owns the rows; the
// telemetry core reads the visibility flags and the public docs site reads
// the enabled entries.
type Service struct {
	repo   repository.EndpointRegistryRepository
	logger *slog.Logger
}

// New constructs the registry service.
func New(repo repository.EndpointRegistryRepository, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "registry")
	} else {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Upsert validates and stores a registry entry, assigning an ID when absent.
func (s *Service) Upsert(ctx context.Context, endpoint *domain.Endpoint) error {
	if endpoint == nil {
		return errors.New("endpoint required")
	}
	endpoint.Route = strings.TrimSpace(endpoint.Route)
	if endpoint.Route == "" {
		return errors.New("route required")
	}
	endpoint.Name = strings.TrimSpace(endpoint.Name)
	if endpoint.Name == "" {
		endpoint.Name = endpoint.Route
	}
	endpoint.Method = strings.ToUpper(strings.TrimSpace(endpoint.Method))
	if endpoint.Method == "" {
		endpoint.Method = "POST"
	}
	if strings.TrimSpace(endpoint.ID) == "" {
		endpoint.ID = uuid.NewString()
	}
	return s.repo.UpsertEndpoint(ctx, endpoint)
}

// ListEnabled returns the registry entries exposed on the public docs route.
func (s *Service) ListEnabled(ctx context.Context) ([]domain.Endpoint, error) {
	return s.repo.ListEndpoints(ctx, true)
}
