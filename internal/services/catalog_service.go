package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/autox/api/internal/domain"
	"github.com/autox/api/internal/platform/pagination"
	"github.com/autox/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates malformed catalog queries.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the catalog item does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogUnavailable indicates the catalog store is temporarily unreachable.
	ErrCatalogUnavailable = errors.New("catalog: repository unavailable")
)

// CatalogServiceDeps bundles collaborators required to construct a CatalogService.
type CatalogServiceDeps struct {
	Materials repositories.MaterialRepository
	Vehicles  repositories.VehicleRepository
}

type catalogService struct {
	materials repositories.MaterialRepository
	vehicles  repositories.VehicleRepository
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs a read-only catalog service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Materials == nil {
		return nil, errors.New("catalog service: material repository is required")
	}
	if deps.Vehicles == nil {
		return nil, errors.New("catalog service: vehicle repository is required")
	}
	return &catalogService{materials: deps.Materials, vehicles: deps.Vehicles}, nil
}

func (s *catalogService) GetMaterial(ctx context.Context, materialID string) (Material, error) {
	materialID = strings.TrimSpace(materialID)
	if materialID == "" {
		return Material{}, fmt.Errorf("%w: material id is required", ErrCatalogInvalidInput)
	}
	material, err := s.materials.FindByID(ctx, materialID)
	if err != nil {
		return Material{}, mapCatalogRepositoryError(err)
	}
	return material, nil
}

func (s *catalogService) ListMaterials(ctx context.Context, filter CatalogFilter) (domain.CursorPage[Material], error) {
	page, err := s.materials.List(ctx, repositories.CatalogListFilter{
		Category:      strings.TrimSpace(filter.Category),
		AvailableOnly: filter.AvailableOnly,
		Pagination:    filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Material]{}, mapCatalogRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) GetVehicle(ctx context.Context, vehicleID string) (Vehicle, error) {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return Vehicle{}, fmt.Errorf("%w: vehicle id is required", ErrCatalogInvalidInput)
	}
	vehicle, err := s.vehicles.FindByID(ctx, vehicleID)
	if err != nil {
		return Vehicle{}, mapCatalogRepositoryError(err)
	}
	return vehicle, nil
}

func (s *catalogService) ListVehicles(ctx context.Context, filter CatalogFilter) (domain.CursorPage[Vehicle], error) {
	page, err := s.vehicles.List(ctx, repositories.CatalogListFilter{
		Category:      strings.TrimSpace(filter.Category),
		AvailableOnly: filter.AvailableOnly,
		Pagination:    filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Vehicle]{}, mapCatalogRepositoryError(err)
	}
	return page, nil
}

func mapCatalogRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return fmt.Errorf("%w: invalid page token", ErrCatalogInvalidInput)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCatalogNotFound
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return err
}
