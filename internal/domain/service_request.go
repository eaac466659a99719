package domain

import "time"

// ServiceRequestKind distinguishes material purchases from vehicle rentals.
type ServiceRequestKind string

const (
	ServiceRequestKindMaterial ServiceRequestKind = "material"
	ServiceRequestKindVehicle  ServiceRequestKind = "vehicle"
)

// ServiceRequestStatus enumerates the lifecycle states of a service request.
type ServiceRequestStatus string

const (
	ServiceRequestStatusPending    ServiceRequestStatus = "pending"
	ServiceRequestStatusConfirmed  ServiceRequestStatus = "confirmed"
	ServiceRequestStatusInProgress ServiceRequestStatus = "in_progress"
	ServiceRequestStatusCompleted  ServiceRequestStatus = "completed"
	ServiceRequestStatusCancelled  ServiceRequestStatus = "cancelled"
	ServiceRequestStatusRejected   ServiceRequestStatus = "rejected"
)

// IsTerminal reports whether no further transition may leave the status.
func (s ServiceRequestStatus) IsTerminal() bool {
	switch s {
	case ServiceRequestStatusCompleted, ServiceRequestStatusCancelled, ServiceRequestStatusRejected:
		return true
	default:
		return false
	}
}

// DurationUnit is the billing unit of a vehicle rental.
type DurationUnit string

const (
	DurationUnitHours DurationUnit = "hours"
	DurationUnitDays  DurationUnit = "days"
)

// Tracking holds delivery progress. OrderNumber is assigned once at creation.
type Tracking struct {
	OrderNumber       string
	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time
	DeliveryStatus    string
}

// Payment is a record of how the request was or will be paid.
type Payment struct {
	Method        string
	Status        string
	TransactionID string
	PaidAmount    int64
	PaidDate      *time.Time
}

// Feedback is the single rating a requester leaves on a completed request.
type Feedback struct {
	Rating  int
	Comment string
	Date    time.Time
}

// Cancellation is present only on cancelled requests.
type Cancellation struct {
	Reason        string
	CancelledBy   string
	CancelledDate time.Time
}

// ServiceRequest is a consumer's order for either a material purchase or a vehicle rental.
// Exactly one of MaterialRef and VehicleRef is set, matching Kind.
type ServiceRequest struct {
	ID                string
	RequesterID       string
	Kind              ServiceRequestKind
	MaterialRef       string
	VehicleRef        string
	Quantity          *int
	Duration          *int
	DurationUnit      DurationUnit
	TotalPrice        int64
	Currency          string
	Status            ServiceRequestStatus
	RequiredByDate    time.Time
	Address           string
	Contact           Contact
	AssignedPartnerID string
	Tracking          Tracking
	Payment           Payment
	Feedback          *Feedback
	Cancellation      *Cancellation
	CompletedDate     *time.Time
	Notes             string
	RequestDate       time.Time
	UpdatedAt         time.Time
	// Version increments on every stored mutation, starting at 1.
	Version int
}

// HasFeedback reports whether a rating has already been recorded.
func (r ServiceRequest) HasFeedback() bool {
	return r.Feedback != nil && r.Feedback.Rating > 0
}

// ServiceRequestEvent is an append-only history entry for a service request.
type ServiceRequestEvent struct {
	ID         string
	RequestID  string
	Type       string
	FromStatus ServiceRequestStatus
	ToStatus   ServiceRequestStatus
	ActorID    string
	Note       string
	CreatedAt  time.Time
}
