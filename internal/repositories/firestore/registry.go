package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/autox/api/internal/platform/firestore"
	"github.com/autox/api/internal/repositories"
)

// Registry wires the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider  *pfirestore.Provider
	requests  *ServiceRequestRepository
	events    *ServiceRequestEventRepository
	materials *MaterialRepository
	vehicles  *VehicleRepository
	partners  *PartnerRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on top of the shared provider. health may be nil when health
// checks are not served.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	requests, err := NewServiceRequestRepository(provider)
	if err != nil {
		return nil, err
	}
	events, err := NewServiceRequestEventRepository(provider)
	if err != nil {
		return nil, err
	}
	materials, err := NewMaterialRepository(provider)
	if err != nil {
		return nil, err
	}
	vehicles, err := NewVehicleRepository(provider)
	if err != nil {
		return nil, err
	}
	partners, err := NewPartnerRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:  provider,
		requests:  requests,
		events:    events,
		materials: materials,
		vehicles:  vehicles,
		partners:  partners,
		health:    health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) ServiceRequests() repositories.ServiceRequestRepository {
	return r.requests
}

func (r *Registry) ServiceRequestEvents() repositories.ServiceRequestEventRepository {
	return r.events
}

func (r *Registry) Materials() repositories.MaterialRepository {
	return r.materials
}

func (r *Registry) Vehicles() repositories.VehicleRepository {
	return r.vehicles
}

func (r *Registry) Partners() repositories.PartnerRepository {
	return r.partners
}

func (r *Registry) Health() repositories.HealthRepository {
	return r.health
}
