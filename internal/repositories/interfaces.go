package repositories

import (
	"context"

	domain "github.com/autox/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	ServiceRequests() ServiceRequestRepository
	ServiceRequestEvents() ServiceRequestEventRepository
	Materials() MaterialRepository
	Vehicles() VehicleRepository
	Partners() PartnerRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ServiceRequestRepository persists service requests. Every mutation is a single atomic unit over one
// request document plus its order-number index, material stock and history entry.
type ServiceRequestRepository interface {
	// Create stores a new request, claims its order number and, for material requests, decrements
	// the material's available quantity. Returns a *ServiceRequestError with code
	// ServiceRequestErrorOrderNumberTaken, ServiceRequestErrorInsufficientStock or
	// ServiceRequestErrorItemUnavailable when the write cannot proceed.
	Create(ctx context.Context, request domain.ServiceRequest, event domain.ServiceRequestEvent) error
	// Update replaces the stored request when every precondition still holds, otherwise it returns
	// a *ServiceRequestError with code ServiceRequestErrorPreconditionFailed.
	Update(ctx context.Context, update ServiceRequestUpdate) error
	FindByID(ctx context.Context, requestID string) (domain.ServiceRequest, error)
	List(ctx context.Context, filter ServiceRequestListFilter) (domain.CursorPage[domain.ServiceRequest], error)
}

// ServiceRequestUpdate describes a guarded replace of a service request.
type ServiceRequestUpdate struct {
	Request domain.ServiceRequest
	// ExpectedVersion, when positive, must equal the stored version so a write based on a stale read fails.
	ExpectedVersion int
	// ExpectedStatus must equal the stored status.
	ExpectedStatus domain.ServiceRequestStatus
	// RequireUnassigned rejects the write when a partner is already assigned.
	RequireUnassigned bool
	// RequireNoFeedback rejects the write when feedback already exists.
	RequireNoFeedback bool
	// Restock returns this many units to the referenced material.
	Restock int
	Event   domain.ServiceRequestEvent
}

// ServiceRequestListFilter scopes list queries. Empty RequesterID and PartnerID mean no restriction.
type ServiceRequestListFilter struct {
	RequesterID string
	PartnerID   string
	Status      domain.ServiceRequestStatus
	Pagination  domain.Pagination
}

// ServiceRequestEventRepository reads the history written alongside request mutations.
type ServiceRequestEventRepository interface {
	List(ctx context.Context, requestID string, pager domain.Pagination) (domain.CursorPage[domain.ServiceRequestEvent], error)
}

// MaterialRepository reads the material catalog.
type MaterialRepository interface {
	FindByID(ctx context.Context, materialID string) (domain.Material, error)
	List(ctx context.Context, filter CatalogListFilter) (domain.CursorPage[domain.Material], error)
}

// VehicleRepository reads the vehicle catalog.
type VehicleRepository interface {
	FindByID(ctx context.Context, vehicleID string) (domain.Vehicle, error)
	List(ctx context.Context, filter CatalogListFilter) (domain.CursorPage[domain.Vehicle], error)
}

// PartnerRepository reads partner profiles.
type PartnerRepository interface {
	FindByID(ctx context.Context, partnerID string) (domain.Partner, error)
}

// CatalogListFilter narrows catalog listings.
type CatalogListFilter struct {
	Category      string
	AvailableOnly bool
	Pagination    domain.Pagination
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
