package services

import (
	"context"
	"time"

	domain "github.com/autox/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination          = domain.Pagination
	Actor               = domain.Actor
	Contact             = domain.Contact
	ServiceRequest      = domain.ServiceRequest
	ServiceRequestEvent = domain.ServiceRequestEvent
	Material            = domain.Material
	Vehicle             = domain.Vehicle
	Partner             = domain.Partner
	SystemHealthReport  = domain.SystemHealthReport
)

// ServiceRequestService drives the service request lifecycle: creation with catalog checks, partner
// assignment, status transitions and feedback.
type ServiceRequestService interface {
	Create(ctx context.Context, cmd CreateServiceRequestCommand) (ServiceRequest, error)
	Get(ctx context.Context, cmd GetServiceRequestCommand) (ServiceRequest, error)
	List(ctx context.Context, cmd ListServiceRequestsCommand) (domain.CursorPage[ServiceRequest], error)
	ListEvents(ctx context.Context, cmd ListServiceRequestEventsCommand) (domain.CursorPage[ServiceRequestEvent], error)
	TransitionStatus(ctx context.Context, cmd TransitionServiceRequestCommand) (ServiceRequest, error)
	AddFeedback(ctx context.Context, cmd AddFeedbackCommand) (ServiceRequest, error)
	Accept(ctx context.Context, cmd AcceptServiceRequestCommand) (ServiceRequest, error)
	Assign(ctx context.Context, cmd AssignServiceRequestCommand) (ServiceRequest, error)
}

// CatalogService exposes read access to materials and vehicles.
type CatalogService interface {
	GetMaterial(ctx context.Context, materialID string) (Material, error)
	ListMaterials(ctx context.Context, filter CatalogFilter) (domain.CursorPage[Material], error)
	GetVehicle(ctx context.Context, vehicleID string) (Vehicle, error)
	ListVehicles(ctx context.Context, filter CatalogFilter) (domain.CursorPage[Vehicle], error)
}

// SystemService reports runtime health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// NotificationPublisher delivers lifecycle notifications to the outbound transport.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, notification Notification) error
}

// Notifier accepts lifecycle notifications without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, notification Notification)
}

// Notification is the message handed to the outbound transport for every lifecycle change.
type Notification struct {
	Type             string         `json:"type"`
	RequestID        string         `json:"requestId"`
	RecipientContact Contact        `json:"-"`
	Payload          map[string]any `json:"payload,omitempty"`
	OccurredAt       time.Time      `json:"occurredAt"`
}

// CreateServiceRequestCommand carries raw client input for a new request. Pointer fields distinguish
// absent values from zero values so the kind-specific field rules can be enforced.
type CreateServiceRequestCommand struct {
	Actor          Actor
	Kind           string
	MaterialRef    string
	VehicleRef     string
	Quantity       *int
	Duration       *int
	DurationUnit   string
	RequiredByDate string
	Address        string
	Contact        Contact
	Notes          string
	PaymentMethod  string
	// TotalPrice is accepted from older clients but never trusted.
	TotalPrice *int64
}

type GetServiceRequestCommand struct {
	Actor     Actor
	RequestID string
}

type ListServiceRequestsCommand struct {
	Actor      Actor
	Status     string
	Pagination Pagination
}

type ListServiceRequestEventsCommand struct {
	Actor      Actor
	RequestID  string
	Pagination Pagination
}

// TransitionServiceRequestCommand moves a request to TargetStatus. Notes, when set, replace the stored notes.
type TransitionServiceRequestCommand struct {
	Actor        Actor
	RequestID    string
	TargetStatus string
	Notes        *string
}

type AddFeedbackCommand struct {
	Actor     Actor
	RequestID string
	Rating    int
	Comment   string
}

// AcceptServiceRequestCommand lets a partner take an open request for itself.
type AcceptServiceRequestCommand struct {
	Actor     Actor
	RequestID string
}

// AssignServiceRequestCommand assigns a partner on behalf of an internal dispatcher.
type AssignServiceRequestCommand struct {
	Actor     Actor
	RequestID string
	PartnerID string
}

type CatalogFilter struct {
	Category      string
	AvailableOnly bool
	Pagination    Pagination
}
