package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/autox/api/internal/domain"
	"github.com/autox/api/internal/platform/pagination"
	"github.com/autox/api/internal/platform/textutil"
	"github.com/autox/api/internal/repositories"
)

const (
	serviceRequestIDPrefix      = "sr_"
	serviceRequestEventIDPrefix = "evt_"

	defaultServiceRequestCurrency = "LKR"
	defaultOrderNumberAttempts    = 5
	minAddressLength              = 5
	maxFeedbackCommentLength      = 500
	maxNotesLength                = 2000
	defaultCancellationReason     = "Cancelled by user"
	cancelledByUser               = "user"
	paymentStatusPending          = "pending"
	requiredByDateLayout          = "2006-01-02"
	maxRentalHours                = 24 * 365
	maxRentalDays                 = 365
)

// Notification and history event types.
const (
	NotificationServiceRequestCreated       = "service_request.created"
	NotificationServiceRequestStatusChanged = "service_request.status_changed"
	NotificationServiceRequestAssigned      = "service_request.assigned"
	NotificationServiceRequestFeedbackAdded = "service_request.feedback_added"
)

var serviceRequestTransitions = map[domain.ServiceRequestStatus][]domain.ServiceRequestStatus{
	domain.ServiceRequestStatusPending: {
		domain.ServiceRequestStatusConfirmed,
		domain.ServiceRequestStatusCancelled,
		domain.ServiceRequestStatusRejected,
	},
	domain.ServiceRequestStatusConfirmed: {
		domain.ServiceRequestStatusInProgress,
		domain.ServiceRequestStatusCancelled,
	},
	domain.ServiceRequestStatusInProgress: {
		domain.ServiceRequestStatusCompleted,
		domain.ServiceRequestStatusCancelled,
	},
}

var knownServiceRequestStatuses = []domain.ServiceRequestStatus{
	domain.ServiceRequestStatusPending,
	domain.ServiceRequestStatusConfirmed,
	domain.ServiceRequestStatusInProgress,
	domain.ServiceRequestStatusCompleted,
	domain.ServiceRequestStatusCancelled,
	domain.ServiceRequestStatusRejected,
}

// phonePattern admits an optional leading plus followed by digits, spaces, dashes and parentheses.
var phonePattern = regexp.MustCompile(`^\+?[0-9\s\-()]+$`)

// ServiceRequestServiceDeps bundles collaborators required to construct a ServiceRequestService.
type ServiceRequestServiceDeps struct {
	Requests  repositories.ServiceRequestRepository
	Events    repositories.ServiceRequestEventRepository
	Materials repositories.MaterialRepository
	Vehicles  repositories.VehicleRepository
	Partners  repositories.PartnerRepository
	Notifier  Notifier

	Clock            func() time.Time
	IDGenerator      func() string
	EventIDGenerator func() string
	OrderNumbers     OrderNumberGenerator

	Currency            string
	OrderNumberAttempts int
	Logger              func(ctx context.Context, event string, fields map[string]any)
}

type serviceRequestService struct {
	requests  repositories.ServiceRequestRepository
	events    repositories.ServiceRequestEventRepository
	materials repositories.MaterialRepository
	vehicles  repositories.VehicleRepository
	partners  repositories.PartnerRepository
	notifier  Notifier

	clock        func() time.Time
	newID        func() string
	newEventID   func() string
	orderNumbers OrderNumberGenerator
	currency     string
	attempts     int
	logger       func(context.Context, string, map[string]any)
}

var _ ServiceRequestService = (*serviceRequestService)(nil)

// NewServiceRequestService wires dependencies into a concrete ServiceRequestService implementation.
func NewServiceRequestService(deps ServiceRequestServiceDeps) (ServiceRequestService, error) {
	if deps.Requests == nil {
		return nil, errors.New("service request service: request repository is required")
	}
	if deps.Events == nil {
		return nil, errors.New("service request service: event repository is required")
	}
	if deps.Materials == nil {
		return nil, errors.New("service request service: material repository is required")
	}
	if deps.Vehicles == nil {
		return nil, errors.New("service request service: vehicle repository is required")
	}
	if deps.Partners == nil {
		return nil, errors.New("service request service: partner repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return serviceRequestIDPrefix + ulid.Make().String()
		}
	}
	eventIDGen := deps.EventIDGenerator
	if eventIDGen == nil {
		eventIDGen = func() string {
			return serviceRequestEventIDPrefix + ulid.Make().String()
		}
	}
	orderNumbers := deps.OrderNumbers
	if orderNumbers == nil {
		orderNumbers = NewOrderNumber
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultServiceRequestCurrency
	}
	attempts := deps.OrderNumberAttempts
	if attempts <= 0 {
		attempts = defaultOrderNumberAttempts
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &serviceRequestService{
		requests:  deps.Requests,
		events:    deps.Events,
		materials: deps.Materials,
		vehicles:  deps.Vehicles,
		partners:  deps.Partners,
		notifier:  deps.Notifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:        idGen,
		newEventID:   eventIDGen,
		orderNumbers: orderNumbers,
		currency:     currency,
		attempts:     attempts,
		logger:       logger,
	}, nil
}

func (s *serviceRequestService) Create(ctx context.Context, cmd CreateServiceRequestCommand) (ServiceRequest, error) {
	if strings.TrimSpace(cmd.Actor.ID) == "" {
		return ServiceRequest{}, fmt.Errorf("%w: actor is required", ErrServiceRequestForbidden)
	}
	now := s.now()
	draft, err := s.validateCreateCommand(cmd, now)
	if err != nil {
		return ServiceRequest{}, err
	}

	price, err := s.quote(ctx, draft)
	if err != nil {
		return ServiceRequest{}, err
	}

	request := draft
	request.ID = s.newID()
	request.RequesterID = strings.TrimSpace(cmd.Actor.ID)
	request.TotalPrice = price
	request.Currency = s.currency
	request.Status = domain.ServiceRequestStatusPending
	request.Payment = domain.Payment{Method: strings.TrimSpace(cmd.PaymentMethod), Status: paymentStatusPending}
	request.RequestDate = now
	request.UpdatedAt = now
	request.Version = 1

	event := s.newEvent(request.ID, NotificationServiceRequestCreated, "", domain.ServiceRequestStatusPending, request.RequesterID, "", now)

	for attempt := 1; attempt <= s.attempts; attempt++ {
		request.Tracking = domain.Tracking{OrderNumber: s.orderNumbers(request.Kind, s.now())}
		err = s.requests.Create(ctx, request, event)
		if err == nil {
			s.notify(ctx, NotificationServiceRequestCreated, request, map[string]any{
				"orderNumber": request.Tracking.OrderNumber,
				"kind":        string(request.Kind),
				"status":      string(request.Status),
				"totalPrice":  request.TotalPrice,
				"currency":    request.Currency,
			})
			return request, nil
		}
		var reqErr *repositories.ServiceRequestError
		if errors.As(err, &reqErr) && reqErr.Code == repositories.ServiceRequestErrorOrderNumberTaken {
			s.logger(ctx, "service_request.order_number.collision", map[string]any{
				"requestId":   request.ID,
				"orderNumber": request.Tracking.OrderNumber,
				"attempt":     attempt,
			})
			continue
		}
		return ServiceRequest{}, s.mapRepositoryError(err)
	}
	return ServiceRequest{}, fmt.Errorf("%w: could not allocate a unique order number", ErrServiceRequestConflict)
}

func (s *serviceRequestService) Get(ctx context.Context, cmd GetServiceRequestCommand) (ServiceRequest, error) {
	request, err := s.load(ctx, cmd.RequestID)
	if err != nil {
		return ServiceRequest{}, err
	}
	if !canView(cmd.Actor, request) {
		return ServiceRequest{}, ErrServiceRequestForbidden
	}
	return request, nil
}

func (s *serviceRequestService) List(ctx context.Context, cmd ListServiceRequestsCommand) (domain.CursorPage[ServiceRequest], error) {
	actor := cmd.Actor
	if strings.TrimSpace(actor.ID) == "" {
		return domain.CursorPage[ServiceRequest]{}, fmt.Errorf("%w: actor is required", ErrServiceRequestForbidden)
	}

	filter := repositories.ServiceRequestListFilter{Pagination: cmd.Pagination}
	if raw := strings.TrimSpace(cmd.Status); raw != "" {
		status, ok := parseServiceRequestStatus(raw)
		if !ok {
			return domain.CursorPage[ServiceRequest]{}, invalidField("status", "unknown status")
		}
		filter.Status = status
	}
	switch {
	case actor.Role == domain.RoleAdmin:
	case actor.IsPartner():
		filter.PartnerID = actor.PartnerID
	default:
		filter.RequesterID = actor.ID
	}

	page, err := s.requests.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[ServiceRequest]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *serviceRequestService) ListEvents(ctx context.Context, cmd ListServiceRequestEventsCommand) (domain.CursorPage[ServiceRequestEvent], error) {
	if _, err := s.Get(ctx, GetServiceRequestCommand{Actor: cmd.Actor, RequestID: cmd.RequestID}); err != nil {
		return domain.CursorPage[ServiceRequestEvent]{}, err
	}
	page, err := s.events.List(ctx, strings.TrimSpace(cmd.RequestID), cmd.Pagination)
	if err != nil {
		return domain.CursorPage[ServiceRequestEvent]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *serviceRequestService) TransitionStatus(ctx context.Context, cmd TransitionServiceRequestCommand) (ServiceRequest, error) {
	target, ok := parseServiceRequestStatus(cmd.TargetStatus)
	if !ok {
		return ServiceRequest{}, invalidField("status", "unknown status")
	}
	var notes *string
	if cmd.Notes != nil {
		cleaned := textutil.PlainText(*cmd.Notes)
		if textutil.RuneCount(cleaned) > maxNotesLength {
			return ServiceRequest{}, invalidField("notes", fmt.Sprintf("must be at most %d characters", maxNotesLength))
		}
		notes = &cleaned
	}

	request, err := s.load(ctx, cmd.RequestID)
	if err != nil {
		return ServiceRequest{}, err
	}

	if err := authorizeTransition(cmd.Actor, request, target); err != nil {
		return ServiceRequest{}, err
	}

	current := request.Status
	if current.IsTerminal() {
		return ServiceRequest{}, fmt.Errorf("%w: %s is a terminal status", ErrServiceRequestInvalidTransition, current)
	}
	if !slices.Contains(serviceRequestTransitions[current], target) {
		return ServiceRequest{}, fmt.Errorf("%w: %s -> %s", ErrServiceRequestInvalidTransition, current, target)
	}

	now := s.now()
	updated := request
	updated.Version = request.Version + 1
	updated.Status = target
	updated.UpdatedAt = now
	if notes != nil {
		updated.Notes = *notes
	}
	switch target {
	case domain.ServiceRequestStatusCompleted:
		completed := now
		updated.CompletedDate = &completed
	case domain.ServiceRequestStatusCancelled:
		reason := defaultCancellationReason
		if notes != nil && *notes != "" {
			reason = *notes
		}
		updated.Cancellation = &domain.Cancellation{
			Reason:        reason,
			CancelledBy:   cancelledByUser,
			CancelledDate: now,
		}
	}

	restock := 0
	if request.Kind == domain.ServiceRequestKindMaterial &&
		(target == domain.ServiceRequestStatusCancelled || target == domain.ServiceRequestStatusRejected) {
		restock = derefQuantity(request.Quantity)
	}

	note := ""
	if notes != nil {
		note = *notes
	}
	err = s.requests.Update(ctx, repositories.ServiceRequestUpdate{
		Request:         updated,
		ExpectedVersion: request.Version,
		ExpectedStatus:  current,
		Restock:        restock,
		Event:          s.newEvent(request.ID, NotificationServiceRequestStatusChanged, current, target, cmd.Actor.ID, note, now),
	})
	if err != nil {
		return ServiceRequest{}, s.mapRepositoryError(err)
	}

	s.notify(ctx, NotificationServiceRequestStatusChanged, updated, map[string]any{
		"orderNumber": updated.Tracking.OrderNumber,
		"fromStatus":  string(current),
		"toStatus":    string(target),
		"notes":       updated.Notes,
	})
	return updated, nil
}

func (s *serviceRequestService) AddFeedback(ctx context.Context, cmd AddFeedbackCommand) (ServiceRequest, error) {
	verr := &ValidationError{}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		verr.add("rating", "must be an integer between 1 and 5")
	}
	comment := textutil.PlainText(cmd.Comment)
	if textutil.RuneCount(comment) > maxFeedbackCommentLength {
		verr.add("comment", fmt.Sprintf("must be at most %d characters", maxFeedbackCommentLength))
	}
	if err := verr.errOrNil(); err != nil {
		return ServiceRequest{}, err
	}

	request, err := s.load(ctx, cmd.RequestID)
	if err != nil {
		return ServiceRequest{}, err
	}
	if strings.TrimSpace(cmd.Actor.ID) == "" || cmd.Actor.ID != request.RequesterID {
		return ServiceRequest{}, ErrServiceRequestForbidden
	}
	if request.Status != domain.ServiceRequestStatusCompleted {
		return ServiceRequest{}, fmt.Errorf("%w: only completed requests accept feedback", ErrServiceRequestInvalidState)
	}
	if request.HasFeedback() {
		return ServiceRequest{}, fmt.Errorf("%w: feedback already provided", ErrServiceRequestConflict)
	}

	now := s.now()
	updated := request
	updated.Version = request.Version + 1
	updated.Feedback = &domain.Feedback{Rating: cmd.Rating, Comment: comment, Date: now}
	updated.UpdatedAt = now

	err = s.requests.Update(ctx, repositories.ServiceRequestUpdate{
		Request:           updated,
		ExpectedVersion:   request.Version,
		ExpectedStatus:    domain.ServiceRequestStatusCompleted,
		RequireNoFeedback: true,
		Event:             s.newEvent(request.ID, NotificationServiceRequestFeedbackAdded, "", "", cmd.Actor.ID, "", now),
	})
	if err != nil {
		mapped := s.mapRepositoryError(err)
		if errors.Is(mapped, ErrServiceRequestConflict) {
			return ServiceRequest{}, fmt.Errorf("%w: feedback already provided", ErrServiceRequestConflict)
		}
		return ServiceRequest{}, mapped
	}

	s.notify(ctx, NotificationServiceRequestFeedbackAdded, updated, map[string]any{
		"orderNumber": updated.Tracking.OrderNumber,
		"rating":      cmd.Rating,
	})
	return updated, nil
}

func (s *serviceRequestService) Accept(ctx context.Context, cmd AcceptServiceRequestCommand) (ServiceRequest, error) {
	if !cmd.Actor.IsPartner() {
		return ServiceRequest{}, fmt.Errorf("%w: only partners can accept requests", ErrServiceRequestForbidden)
	}
	request, err := s.load(ctx, cmd.RequestID)
	if err != nil {
		return ServiceRequest{}, err
	}
	partner, err := s.loadPartner(ctx, cmd.Actor.PartnerID)
	if err != nil {
		return ServiceRequest{}, err
	}
	if !partner.CanFulfil(request.Kind) {
		return ServiceRequest{}, fmt.Errorf("%w: partner cannot fulfil %s requests", ErrServiceRequestForbidden, request.Kind)
	}
	return s.assign(ctx, request, partner, cmd.Actor.ID)
}

func (s *serviceRequestService) Assign(ctx context.Context, cmd AssignServiceRequestCommand) (ServiceRequest, error) {
	partnerID := strings.TrimSpace(cmd.PartnerID)
	if partnerID == "" {
		return ServiceRequest{}, invalidField("partnerId", "is required")
	}
	if cmd.Actor.Role != domain.RoleService && cmd.Actor.Role != domain.RoleAdmin {
		return ServiceRequest{}, ErrServiceRequestForbidden
	}
	request, err := s.load(ctx, cmd.RequestID)
	if err != nil {
		return ServiceRequest{}, err
	}
	partner, err := s.loadPartner(ctx, partnerID)
	if err != nil {
		return ServiceRequest{}, err
	}
	if partner.VerificationStatus != domain.PartnerVerificationApproved {
		return ServiceRequest{}, invalidField("partnerId", "partner is not approved")
	}
	if !partner.CanFulfil(request.Kind) {
		return ServiceRequest{}, invalidField("partnerId", fmt.Sprintf("partner cannot fulfil %s requests", request.Kind))
	}
	return s.assign(ctx, request, partner, cmd.Actor.ID)
}

func (s *serviceRequestService) assign(ctx context.Context, request ServiceRequest, partner Partner, actorID string) (ServiceRequest, error) {
	if request.Status != domain.ServiceRequestStatusPending || strings.TrimSpace(request.AssignedPartnerID) != "" {
		return ServiceRequest{}, fmt.Errorf("%w: request is no longer open for assignment", ErrServiceRequestConflict)
	}

	now := s.now()
	updated := request
	updated.Version = request.Version + 1
	updated.AssignedPartnerID = partner.ID
	updated.UpdatedAt = now

	err := s.requests.Update(ctx, repositories.ServiceRequestUpdate{
		Request:           updated,
		ExpectedVersion:   request.Version,
		ExpectedStatus:    domain.ServiceRequestStatusPending,
		RequireUnassigned: true,
		Event:             s.newEvent(request.ID, NotificationServiceRequestAssigned, "", "", actorID, partner.ID, now),
	})
	if err != nil {
		return ServiceRequest{}, s.mapRepositoryError(err)
	}

	s.notify(ctx, NotificationServiceRequestAssigned, updated, map[string]any{
		"orderNumber":  updated.Tracking.OrderNumber,
		"partnerId":    partner.ID,
		"businessName": partner.BusinessName,
	})
	return updated, nil
}

// validateCreateCommand checks every input field and returns a draft request holding the normalised values.
func (s *serviceRequestService) validateCreateCommand(cmd CreateServiceRequestCommand, now time.Time) (ServiceRequest, error) {
	verr := &ValidationError{}
	draft := ServiceRequest{}

	kind := domain.ServiceRequestKind(strings.ToLower(strings.TrimSpace(cmd.Kind)))
	switch kind {
	case domain.ServiceRequestKindMaterial:
		draft.MaterialRef = strings.TrimSpace(cmd.MaterialRef)
		if draft.MaterialRef == "" {
			verr.add("materialRef", "is required for material requests")
		}
		if cmd.Quantity == nil || *cmd.Quantity < 1 {
			verr.add("quantity", "must be at least 1")
		} else {
			qty := *cmd.Quantity
			draft.Quantity = &qty
		}
		if strings.TrimSpace(cmd.VehicleRef) != "" {
			verr.add("vehicleRef", "must be absent for material requests")
		}
		if cmd.Duration != nil {
			verr.add("duration", "must be absent for material requests")
		}
		if strings.TrimSpace(cmd.DurationUnit) != "" {
			verr.add("durationUnit", "must be absent for material requests")
		}
	case domain.ServiceRequestKindVehicle:
		draft.VehicleRef = strings.TrimSpace(cmd.VehicleRef)
		if draft.VehicleRef == "" {
			verr.add("vehicleRef", "is required for vehicle requests")
		}
		unit := domain.DurationUnit(strings.ToLower(strings.TrimSpace(cmd.DurationUnit)))
		if unit != domain.DurationUnitHours && unit != domain.DurationUnitDays {
			verr.add("durationUnit", "must be hours or days")
		} else {
			draft.DurationUnit = unit
		}
		limit := maxRentalDays
		if unit == domain.DurationUnitHours {
			limit = maxRentalHours
		}
		switch {
		case cmd.Duration == nil || *cmd.Duration < 1:
			verr.add("duration", "must be at least 1")
		case *cmd.Duration > limit:
			verr.add("duration", fmt.Sprintf("must be at most %d", limit))
		default:
			duration := *cmd.Duration
			draft.Duration = &duration
		}
		if strings.TrimSpace(cmd.MaterialRef) != "" {
			verr.add("materialRef", "must be absent for vehicle requests")
		}
		if cmd.Quantity != nil {
			verr.add("quantity", "must be absent for vehicle requests")
		}
	default:
		verr.add("kind", "must be material or vehicle")
	}
	draft.Kind = kind

	if cmd.TotalPrice != nil && *cmd.TotalPrice < 0 {
		verr.add("totalPrice", "must not be negative")
	}

	if requiredBy, err := parseRequiredByDate(cmd.RequiredByDate); err != nil {
		verr.add("requiredByDate", err.Error())
	} else if requiredBy.Before(startOfDay(now)) {
		verr.add("requiredByDate", "must not be in the past")
	} else {
		draft.RequiredByDate = requiredBy
	}

	address := strings.TrimSpace(cmd.Address)
	if len([]rune(address)) < minAddressLength {
		verr.add("address", fmt.Sprintf("must be at least %d characters", minAddressLength))
	}
	draft.Address = address

	contact := Contact{
		Name:  strings.TrimSpace(cmd.Contact.Name),
		Phone: strings.TrimSpace(cmd.Contact.Phone),
		Email: strings.TrimSpace(cmd.Contact.Email),
	}
	if contact.Name == "" {
		verr.add("contact.name", "is required")
	}
	if !validPhone(contact.Phone) {
		verr.add("contact.phone", "must be a valid phone number")
	}
	if !validEmail(contact.Email) {
		verr.add("contact.email", "must be a valid email address")
	}
	draft.Contact = contact

	notes := textutil.PlainText(cmd.Notes)
	if textutil.RuneCount(notes) > maxNotesLength {
		verr.add("notes", fmt.Sprintf("must be at most %d characters", maxNotesLength))
	}
	draft.Notes = notes

	if err := verr.errOrNil(); err != nil {
		return ServiceRequest{}, err
	}
	return draft, nil
}

// quote checks the referenced catalog item can be ordered and returns the price in minor units.
func (s *serviceRequestService) quote(ctx context.Context, draft ServiceRequest) (int64, error) {
	switch draft.Kind {
	case domain.ServiceRequestKindMaterial:
		material, err := s.materials.FindByID(ctx, draft.MaterialRef)
		if err != nil {
			return 0, s.mapCatalogError(err, "material")
		}
		if !material.IsAvailable || material.PricePerUnit <= 0 {
			return 0, fmt.Errorf("%w: material %s is not available", ErrServiceRequestUnavailable, material.ID)
		}
		qty := derefQuantity(draft.Quantity)
		if qty > material.AvailableQuantity {
			return 0, &InsufficientStockError{Available: material.AvailableQuantity}
		}
		total, ok := multiplyPrice(material.PricePerUnit, qty)
		if !ok {
			return 0, invalidField("quantity", "order total exceeds the supported amount")
		}
		return total, nil
	case domain.ServiceRequestKindVehicle:
		vehicle, err := s.vehicles.FindByID(ctx, draft.VehicleRef)
		if err != nil {
			return 0, s.mapCatalogError(err, "vehicle")
		}
		if !vehicle.Availability.IsAvailable || vehicle.Status != domain.VehicleStatusActive {
			return 0, fmt.Errorf("%w: vehicle %s is not available", ErrServiceRequestUnavailable, vehicle.ID)
		}
		rate := vehicle.DailyRate
		if draft.DurationUnit == domain.DurationUnitHours {
			rate = vehicle.HourlyRate
		}
		if rate <= 0 {
			return 0, fmt.Errorf("%w: vehicle %s has no %s rate", ErrServiceRequestUnavailable, vehicle.ID, draft.DurationUnit)
		}
		total, ok := multiplyPrice(rate, derefQuantity(draft.Duration))
		if !ok {
			return 0, invalidField("duration", "order total exceeds the supported amount")
		}
		return total, nil
	default:
		return 0, invalidField("kind", "must be material or vehicle")
	}
}

// multiplyPrice returns unit * n in minor units, reporting false when the product would overflow.
func multiplyPrice(unit int64, n int) (int64, bool) {
	if unit < 0 || n < 0 {
		return 0, false
	}
	if unit == 0 || n == 0 {
		return 0, true
	}
	if int64(n) > math.MaxInt64/unit {
		return 0, false
	}
	return unit * int64(n), true
}

func (s *serviceRequestService) load(ctx context.Context, requestID string) (ServiceRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ServiceRequest{}, invalidField("id", "is required")
	}
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return ServiceRequest{}, s.mapRepositoryError(err)
	}
	return request, nil
}

func (s *serviceRequestService) loadPartner(ctx context.Context, partnerID string) (Partner, error) {
	partner, err := s.partners.FindByID(ctx, partnerID)
	if err != nil {
		return Partner{}, s.mapCatalogError(err, "partner")
	}
	return partner, nil
}

func (s *serviceRequestService) newEvent(requestID, eventType string, from, to domain.ServiceRequestStatus, actorID, note string, at time.Time) ServiceRequestEvent {
	return ServiceRequestEvent{
		ID:         s.newEventID(),
		RequestID:  requestID,
		Type:       eventType,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
		Note:       note,
		CreatedAt:  at,
	}
}

func (s *serviceRequestService) notify(ctx context.Context, eventType string, request ServiceRequest, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, Notification{
		Type:             eventType,
		RequestID:        request.ID,
		RecipientContact: request.Contact,
		Payload:          payload,
		OccurredAt:       request.UpdatedAt,
	})
}

func (s *serviceRequestService) now() time.Time {
	return s.clock()
}

func (s *serviceRequestService) mapCatalogError(err error, item string) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s not found", ErrServiceRequestNotFound, item)
	}
	return s.mapRepositoryError(err)
}

func (s *serviceRequestService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var reqErr *repositories.ServiceRequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Code {
		case repositories.ServiceRequestErrorInsufficientStock:
			return &InsufficientStockError{Available: reqErr.Available}
		case repositories.ServiceRequestErrorItemUnavailable:
			return fmt.Errorf("%w: %s", ErrServiceRequestUnavailable, reqErr.Message)
		case repositories.ServiceRequestErrorOrderNumberTaken, repositories.ServiceRequestErrorPreconditionFailed:
			return fmt.Errorf("%w: %s", ErrServiceRequestConflict, reqErr.Message)
		}
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return invalidField("pageToken", "is invalid")
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrServiceRequestNotFound
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrServiceRequestConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrServiceRequestRepositoryUnavailable, err)
		}
	}
	return err
}

// authorizeTransition applies the actor rules before any state check: only the requester may cancel and
// only the assigned partner may drive every other transition.
func authorizeTransition(actor Actor, request ServiceRequest, target domain.ServiceRequestStatus) error {
	if target == domain.ServiceRequestStatusCancelled {
		if actor.ID == "" || actor.ID != request.RequesterID {
			return fmt.Errorf("%w: only the requester can cancel", ErrServiceRequestForbidden)
		}
		return nil
	}
	if request.AssignedPartnerID == "" {
		return fmt.Errorf("%w: request has no assigned partner", ErrServiceRequestForbidden)
	}
	if actor.PartnerID == "" || actor.PartnerID != request.AssignedPartnerID {
		return fmt.Errorf("%w: only the assigned partner can update status", ErrServiceRequestForbidden)
	}
	return nil
}

func canView(actor Actor, request ServiceRequest) bool {
	switch {
	case actor.ID == "":
		return false
	case actor.Role == domain.RoleAdmin:
		return true
	case actor.ID == request.RequesterID:
		return true
	default:
		return actor.PartnerID != "" && actor.PartnerID == request.AssignedPartnerID
	}
}

func parseServiceRequestStatus(raw string) (domain.ServiceRequestStatus, bool) {
	status := domain.ServiceRequestStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, slices.Contains(knownServiceRequestStatuses, status)
}

func parseRequiredByDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("is required")
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(requiredByDateLayout, raw); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, errors.New("must be an RFC3339 timestamp or YYYY-MM-DD date")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validPhone(phone string) bool {
	if !phonePattern.MatchString(phone) {
		return false
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7 && digits <= 15
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func derefQuantity(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
