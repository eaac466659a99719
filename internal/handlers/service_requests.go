package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/autox/api/internal/domain"
	"github.com/autox/api/internal/platform/auth"
	"github.com/autox/api/internal/platform/httpx"
	"github.com/autox/api/internal/platform/observability"
	"github.com/autox/api/internal/services"
)

const (
	defaultServiceRequestPageSize = 20
	defaultCreatePerMinute        = 10
)

// ServiceRequestHandlers exposes the service request lifecycle to authenticated marketplace users.
type ServiceRequestHandlers struct {
	authn       *auth.Authenticator
	requests    services.ServiceRequestService
	quota       createQuota
	idempotency func(http.Handler) http.Handler
	maxBody     int64
}

// ServiceRequestOption customises ServiceRequestHandlers.
type ServiceRequestOption func(*ServiceRequestHandlers)

// WithCreateRateLimit bounds how many requests one actor may create per window. A non-positive limit
// disables throttling.
func WithCreateRateLimit(limit int, window time.Duration, clock func() time.Time) ServiceRequestOption {
	return func(h *ServiceRequestHandlers) {
		h.quota = newWindowQuota(limit, window, clock)
	}
}

// WithIdempotency guards the mutating POST routes with the supplied middleware.
func WithIdempotency(mw func(http.Handler) http.Handler) ServiceRequestOption {
	return func(h *ServiceRequestHandlers) {
		h.idempotency = mw
	}
}

// WithMaxBodyBytes caps request body size.
func WithMaxBodyBytes(n int64) ServiceRequestOption {
	return func(h *ServiceRequestHandlers) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// NewServiceRequestHandlers constructs the /service-requests handlers.
func NewServiceRequestHandlers(authn *auth.Authenticator, requests services.ServiceRequestService, opts ...ServiceRequestOption) *ServiceRequestHandlers {
	h := &ServiceRequestHandlers{
		authn:    authn,
		requests: requests,
		quota:    newWindowQuota(defaultCreatePerMinute, time.Minute, nil),
		maxBody:  defaultMaxBodySize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /service-requests endpoints.
func (h *ServiceRequestHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Use(observability.ActorCaptureMiddleware)
	guarded := func(fn http.HandlerFunc) http.Handler {
		if h.idempotency == nil {
			return fn
		}
		return h.idempotency(fn)
	}

	r.Get("/", h.listRequests)
	r.Method(http.MethodPost, "/", guarded(h.createRequest))
	r.Get("/{requestID}", h.getRequest)
	r.Get("/{requestID}/events", h.listEvents)
	r.Put("/{requestID}/status", h.updateStatus)
	r.Method(http.MethodPost, "/{requestID}/feedback", guarded(h.addFeedback))
	r.Method(http.MethodPost, "/{requestID}/accept", guarded(h.acceptRequest))
}

type contactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type createServiceRequestRequest struct {
	Kind           string         `json:"kind"`
	MaterialRef    string         `json:"materialRef"`
	VehicleRef     string         `json:"vehicleRef"`
	Quantity       *int           `json:"quantity"`
	Duration       *int           `json:"duration"`
	DurationUnit   string         `json:"durationUnit"`
	RequiredByDate string         `json:"requiredByDate"`
	Address        string         `json:"address"`
	Contact        contactRequest `json:"contact"`
	Notes          string         `json:"notes"`
	PaymentMethod  string         `json:"paymentMethod"`
	TotalPrice     *int64         `json:"totalPrice"`
}

type updateStatusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes"`
}

type feedbackRequest struct {
	Rating  *int   `json:"rating"`
	Comment string `json:"comment"`
}

func (h *ServiceRequestHandlers) createRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if h.quota != nil {
		if ok, wait := h.quota.Take(actor); !ok {
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeRateLimited, "service request quota exhausted; retry later", http.StatusTooManyRequests).
				WithRetryAfter(wait))
			return
		}
	}

	var req createServiceRequestRequest
	if !decodeJSONBody(w, r, h.maxBody, &req) {
		return
	}

	created, err := h.requests.Create(ctx, services.CreateServiceRequestCommand{
		Actor:          actor,
		Kind:           req.Kind,
		MaterialRef:    req.MaterialRef,
		VehicleRef:     req.VehicleRef,
		Quantity:       req.Quantity,
		Duration:       req.Duration,
		DurationUnit:   req.DurationUnit,
		RequiredByDate: req.RequiredByDate,
		Address:        req.Address,
		Contact: services.Contact{
			Name:  req.Contact.Name,
			Phone: req.Contact.Phone,
			Email: req.Contact.Email,
		},
		Notes:         req.Notes,
		PaymentMethod: req.PaymentMethod,
		TotalPrice:    req.TotalPrice,
	})
	if err != nil {
		writeServiceRequestError(ctx, w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/service-requests/%s", defaultAPIPrefix, created.ID))
	writeJSONResponse(w, http.StatusCreated, serviceRequestResponse{ServiceRequest: buildServiceRequestPayload(created)})
}

func (h *ServiceRequestHandlers) listRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	pager, ok := parsePagination(w, r, defaultServiceRequestPageSize)
	if !ok {
		return
	}

	page, err := h.requests.List(ctx, services.ListServiceRequestsCommand{
		Actor:      actor,
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		Pagination: pager,
	})
	if err != nil {
		writeServiceRequestError(ctx, w, err)
		return
	}

	items := make([]serviceRequestPayload, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, buildServiceRequestPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, serviceRequestListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *ServiceRequestHandlers) getRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}

	request, err := h.requests.Get(ctx, services.GetServiceRequestCommand{Actor: actor, RequestID: requestID})
	if err != nil {
		writeServiceRequestError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, serviceRequestResponse{ServiceRequest: buildServiceRequestPayload(request)})
}

func (h *ServiceRequestHandlers) listEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	pager, ok := parsePagination(w, r, defaultServiceRequestPageSize)
	if !ok {
		return
	}

	page, err := h.requests.ListEvents(ctx, services.ListServiceRequestEventsCommand{
		Actor:      actor,
		RequestID:  requestID,
		Pagination: pager,
	})
	if err != nil {
		writeServiceRequestError(ctx, w, err)
		return
	}

	items := make([]serviceRequestEventPayload, 0, len(page.Items))
	for _, event := range page.Items {
		items = append(items, buildServiceRequestEventPayload(event))
	}
	writeJSONResponse(w, http.StatusOK, serviceRequestEventListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *ServiceRequestHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeJSONBody(w, r, h.maxBody, &req) {
		return
	}

	updated, err := h.requests.TransitionStatus(ctx, services.TransitionServiceRequestCommand{
		Actor:        actor,
		RequestID:    requestID,
		TargetStatus: req.Status,
		Notes:        req.Notes,
	})
	if err != nil {
		writeServiceRequestError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, serviceRequestResponse{ServiceRequest: buildServiceRequestPayload(updated)})
}

func (h *ServiceRequestHandlers) addFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}

	var req feedbackRequest
	if !decodeJSONBody(w, r, h.maxBody, &req) {
		return
	}
	if req.Rating == nil {
		writeServiceRequestError(ctx, w, &services.ValidationError{Fields: []services.FieldError{{Field: "rating", Message: "rating is required"}}})
		return
	}

	updated, err := h.requests.AddFeedback(ctx, services.AddFeedbackCommand{
		Actor:     actor,
		RequestID: requestID,
		Rating:    *req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		writeServiceRequestError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, serviceRequestResponse{ServiceRequest: buildServiceRequestPayload(updated)})
}

func (h *ServiceRequestHandlers) acceptRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}

	updated, err := h.requests.Accept(ctx, services.AcceptServiceRequestCommand{Actor: actor, RequestID: requestID})
	if err != nil {
		writeServiceRequestError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, serviceRequestResponse{ServiceRequest: buildServiceRequestPayload(updated)})
}

func requestIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	requestID := strings.TrimSpace(chi.URLParam(r, "requestID"))
	if requestID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError(httpx.CodeInvalidRequest, "service request id is required", http.StatusBadRequest))
		return "", false
	}
	return requestID, true
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeServiceUnavailable, "service request service unavailable", http.StatusServiceUnavailable))
}

func writeServiceRequestError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) && len(validationErr.Fields) > 0 {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, "request validation failed", http.StatusBadRequest).
			WithDetails(map[string]any{"fields": validationErr.Fields}))
		return
	}
	var stockErr *services.InsufficientStockError
	if errors.As(err, &stockErr) {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInsufficientStock, "requested quantity exceeds available stock", http.StatusBadRequest).
			WithDetails(map[string]any{"available": stockErr.Available}))
		return
	}

	switch {
	case errors.Is(err, services.ErrServiceRequestInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrServiceRequestNotFound):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeNotFound, err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrServiceRequestInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInsufficientStock, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrServiceRequestUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeItemUnavailable, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrServiceRequestForbidden):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeForbidden, err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrServiceRequestInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidTransition, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrServiceRequestInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidState, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrServiceRequestConflict):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeConflict, err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrServiceRequestRepositoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeServiceUnavailable, "service request storage unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInternal, "unexpected error", http.StatusInternalServerError))
	}
}

type serviceRequestResponse struct {
	ServiceRequest serviceRequestPayload `json:"serviceRequest"`
}

type serviceRequestListResponse struct {
	Items         []serviceRequestPayload `json:"items"`
	NextPageToken string                  `json:"nextPageToken,omitempty"`
}

type serviceRequestEventListResponse struct {
	Items         []serviceRequestEventPayload `json:"items"`
	NextPageToken string                       `json:"nextPageToken,omitempty"`
}

type contactPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type trackingPayload struct {
	OrderNumber       string `json:"orderNumber"`
	EstimatedDelivery string `json:"estimatedDelivery,omitempty"`
	ActualDelivery    string `json:"actualDelivery,omitempty"`
	DeliveryStatus    string `json:"deliveryStatus,omitempty"`
}

type paymentPayload struct {
	Method        string `json:"method,omitempty"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	PaidAmount    int64  `json:"paidAmount,omitempty"`
	PaidDate      string `json:"paidDate,omitempty"`
}

type feedbackPayload struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
	Date    string `json:"date"`
}

type cancellationPayload struct {
	Reason        string `json:"reason"`
	CancelledBy   string `json:"cancelledBy"`
	CancelledDate string `json:"cancelledDate"`
}

type serviceRequestPayload struct {
	ID                string               `json:"id"`
	RequesterID       string               `json:"requesterId"`
	Kind              string               `json:"kind"`
	MaterialRef       string               `json:"materialRef,omitempty"`
	VehicleRef        string               `json:"vehicleRef,omitempty"`
	Quantity          *int                 `json:"quantity,omitempty"`
	Duration          *int                 `json:"duration,omitempty"`
	DurationUnit      string               `json:"durationUnit,omitempty"`
	TotalPrice        int64                `json:"totalPrice"`
	Currency          string               `json:"currency"`
	Status            string               `json:"status"`
	RequiredByDate    string               `json:"requiredByDate"`
	Address           string               `json:"address"`
	Contact           contactPayload       `json:"contact"`
	AssignedPartnerID string               `json:"assignedPartnerId,omitempty"`
	Tracking          trackingPayload      `json:"tracking"`
	Payment           paymentPayload       `json:"payment"`
	Feedback          *feedbackPayload     `json:"feedback,omitempty"`
	Cancellation      *cancellationPayload `json:"cancellation,omitempty"`
	CompletedDate     string               `json:"completedDate,omitempty"`
	Notes             string               `json:"notes,omitempty"`
	RequestDate       string               `json:"requestDate"`
	UpdatedAt         string               `json:"updatedAt"`
}

type serviceRequestEventPayload struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	FromStatus string `json:"fromStatus,omitempty"`
	ToStatus   string `json:"toStatus,omitempty"`
	ActorID    string `json:"actorId"`
	Note       string `json:"note,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

func buildServiceRequestPayload(request domain.ServiceRequest) serviceRequestPayload {
	payload := serviceRequestPayload{
		ID:                request.ID,
		RequesterID:       request.RequesterID,
		Kind:              string(request.Kind),
		MaterialRef:       request.MaterialRef,
		VehicleRef:        request.VehicleRef,
		Quantity:          request.Quantity,
		Duration:          request.Duration,
		DurationUnit:      string(request.DurationUnit),
		TotalPrice:        request.TotalPrice,
		Currency:          strings.ToUpper(request.Currency),
		Status:            string(request.Status),
		RequiredByDate:    formatRequiredBy(request.RequiredByDate),
		Address:           request.Address,
		Contact:           contactPayload(request.Contact),
		AssignedPartnerID: request.AssignedPartnerID,
		Tracking: trackingPayload{
			OrderNumber:       request.Tracking.OrderNumber,
			EstimatedDelivery: formatTimePtr(request.Tracking.EstimatedDelivery),
			ActualDelivery:    formatTimePtr(request.Tracking.ActualDelivery),
			DeliveryStatus:    request.Tracking.DeliveryStatus,
		},
		Payment: paymentPayload{
			Method:        request.Payment.Method,
			Status:        request.Payment.Status,
			TransactionID: request.Payment.TransactionID,
			PaidAmount:    request.Payment.PaidAmount,
			PaidDate:      formatTimePtr(request.Payment.PaidDate),
		},
		CompletedDate: formatTimePtr(request.CompletedDate),
		Notes:         request.Notes,
		RequestDate:   formatTime(request.RequestDate),
		UpdatedAt:     formatTime(request.UpdatedAt),
	}
	if request.RequiredByDate.IsZero() {
		payload.RequiredByDate = ""
	}
	if request.Feedback != nil {
		payload.Feedback = &feedbackPayload{
			Rating:  request.Feedback.Rating,
			Comment: request.Feedback.Comment,
			Date:    formatTime(request.Feedback.Date),
		}
	}
	if request.Cancellation != nil {
		payload.Cancellation = &cancellationPayload{
			Reason:        request.Cancellation.Reason,
			CancelledBy:   request.Cancellation.CancelledBy,
			CancelledDate: formatTime(request.Cancellation.CancelledDate),
		}
	}
	return payload
}

func buildServiceRequestEventPayload(event domain.ServiceRequestEvent) serviceRequestEventPayload {
	return serviceRequestEventPayload{
		ID:         event.ID,
		Type:       event.Type,
		FromStatus: string(event.FromStatus),
		ToStatus:   string(event.ToStatus),
		ActorID:    event.ActorID,
		Note:       event.Note,
		CreatedAt:  formatTime(event.CreatedAt),
	}
}
