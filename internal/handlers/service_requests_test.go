package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/autox/api/internal/domain"
	"github.com/autox/api/internal/platform/auth"
	"github.com/autox/api/internal/platform/idempotency"
	"github.com/autox/api/internal/services"
)

type stubServiceRequestService struct {
	createFn     func(context.Context, services.CreateServiceRequestCommand) (services.ServiceRequest, error)
	getFn        func(context.Context, services.GetServiceRequestCommand) (services.ServiceRequest, error)
	listFn       func(context.Context, services.ListServiceRequestsCommand) (domain.CursorPage[services.ServiceRequest], error)
	eventsFn     func(context.Context, services.ListServiceRequestEventsCommand) (domain.CursorPage[services.ServiceRequestEvent], error)
	transitionFn func(context.Context, services.TransitionServiceRequestCommand) (services.ServiceRequest, error)
	feedbackFn   func(context.Context, services.AddFeedbackCommand) (services.ServiceRequest, error)
	acceptFn     func(context.Context, services.AcceptServiceRequestCommand) (services.ServiceRequest, error)
	assignFn     func(context.Context, services.AssignServiceRequestCommand) (services.ServiceRequest, error)
}

var errStubNotImplemented = errors.New("not implemented")

func (s *stubServiceRequestService) Create(ctx context.Context, cmd services.CreateServiceRequestCommand) (services.ServiceRequest, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.ServiceRequest{}, errStubNotImplemented
}

func (s *stubServiceRequestService) Get(ctx context.Context, cmd services.GetServiceRequestCommand) (services.ServiceRequest, error) {
	if s.getFn != nil {
		return s.getFn(ctx, cmd)
	}
	return services.ServiceRequest{}, errStubNotImplemented
}

func (s *stubServiceRequestService) List(ctx context.Context, cmd services.ListServiceRequestsCommand) (domain.CursorPage[services.ServiceRequest], error) {
	if s.listFn != nil {
		return s.listFn(ctx, cmd)
	}
	return domain.CursorPage[services.ServiceRequest]{}, nil
}

func (s *stubServiceRequestService) ListEvents(ctx context.Context, cmd services.ListServiceRequestEventsCommand) (domain.CursorPage[services.ServiceRequestEvent], error) {
	if s.eventsFn != nil {
		return s.eventsFn(ctx, cmd)
	}
	return domain.CursorPage[services.ServiceRequestEvent]{}, nil
}

func (s *stubServiceRequestService) TransitionStatus(ctx context.Context, cmd services.TransitionServiceRequestCommand) (services.ServiceRequest, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.ServiceRequest{}, errStubNotImplemented
}

func (s *stubServiceRequestService) AddFeedback(ctx context.Context, cmd services.AddFeedbackCommand) (services.ServiceRequest, error) {
	if s.feedbackFn != nil {
		return s.feedbackFn(ctx, cmd)
	}
	return services.ServiceRequest{}, errStubNotImplemented
}

func (s *stubServiceRequestService) Accept(ctx context.Context, cmd services.AcceptServiceRequestCommand) (services.ServiceRequest, error) {
	if s.acceptFn != nil {
		return s.acceptFn(ctx, cmd)
	}
	return services.ServiceRequest{}, errStubNotImplemented
}

func (s *stubServiceRequestService) Assign(ctx context.Context, cmd services.AssignServiceRequestCommand) (services.ServiceRequest, error) {
	if s.assignFn != nil {
		return s.assignFn(ctx, cmd)
	}
	return services.ServiceRequest{}, errStubNotImplemented
}

var _ services.ServiceRequestService = (*stubServiceRequestService)(nil)

var handlerTestNow = time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)

func sampleMaterialRequest() services.ServiceRequest {
	qty := 4
	return services.ServiceRequest{
		ID:             "sr_01",
		RequesterID:    "user-1",
		Kind:           domain.ServiceRequestKindMaterial,
		MaterialRef:    "mat_cement",
		Quantity:       &qty,
		TotalPrice:     10000,
		Currency:       "lkr",
		Status:         domain.ServiceRequestStatusPending,
		RequiredByDate: time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC),
		Address:        "12 Galle Road, Colombo",
		Contact:        domain.Contact{Name: "Nimal", Phone: "+94 77 123 4567", Email: "nimal@example.com"},
		Tracking:       domain.Tracking{OrderNumber: "MAT-123456-042"},
		Payment:        domain.Payment{Status: "pending"},
		RequestDate:    handlerTestNow,
		UpdatedAt:      handlerTestNow,
	}
}

func newServiceRequestRouter(h *ServiceRequestHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/service-requests", h.Routes)
	return router
}

func withIdentity(req *http.Request, identity *auth.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func consumerIdentity() *auth.Identity {
	return &auth.Identity{UID: "user-1", Roles: []string{auth.RoleConsumer}}
}

func decodeErrorBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v (%s)", err, rr.Body.String())
	}
	return body
}

const createBody = `{
	"kind": "material",
	"materialRef": "mat_cement",
	"quantity": 4,
	"requiredByDate": "2025-06-20",
	"address": "12 Galle Road, Colombo",
	"contact": {"name": "Nimal", "phone": "+94 77 123 4567", "email": "nimal@example.com"},
	"totalPrice": 1
}`

func TestServiceRequestHandlersCreateSuccess(t *testing.T) {
	var captured services.CreateServiceRequestCommand
	svc := &stubServiceRequestService{
		createFn: func(_ context.Context, cmd services.CreateServiceRequestCommand) (services.ServiceRequest, error) {
			captured = cmd
			return sampleMaterialRequest(), nil
		},
	}
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc))

	req := httptest.NewRequest(http.MethodPost, "/service-requests", bytes.NewBufferString(createBody))
	req = withIdentity(req, consumerIdentity())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/service-requests/sr_01" {
		t.Fatalf("unexpected location %q", loc)
	}
	if captured.Actor != (domain.Actor{ID: "user-1", Role: domain.RoleConsumer}) {
		t.Fatalf("unexpected actor %+v", captured.Actor)
	}
	if captured.Kind != "material" || captured.MaterialRef != "mat_cement" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.Quantity == nil || *captured.Quantity != 4 || captured.Duration != nil {
		t.Fatalf("expected quantity 4 and no duration, got %+v / %+v", captured.Quantity, captured.Duration)
	}
	if captured.TotalPrice == nil || *captured.TotalPrice != 1 {
		t.Fatalf("expected client total price to be forwarded for the service to ignore")
	}
	if captured.Contact.Email != "nimal@example.com" {
		t.Fatalf("unexpected contact %+v", captured.Contact)
	}

	var resp serviceRequestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	got := resp.ServiceRequest
	if got.Tracking.OrderNumber != "MAT-123456-042" || got.TotalPrice != 10000 {
		t.Fatalf("unexpected payload %+v", got)
	}
	if got.Currency != "LKR" {
		t.Fatalf("expected upper-case currency, got %s", got.Currency)
	}
	if got.RequiredByDate != "2025-06-20" {
		t.Fatalf("expected date-only requiredByDate, got %s", got.RequiredByDate)
	}
	if got.VehicleRef != "" || got.Duration != nil {
		t.Fatalf("vehicle fields must be absent on material requests: %+v", got)
	}
	if got.Feedback != nil || got.Cancellation != nil {
		t.Fatalf("unexpected feedback or cancellation on new request")
	}
}

func TestServiceRequestHandlersCreateRequiresIdentity(t *testing.T) {
	svc := &stubServiceRequestService{
		createFn: func(context.Context, services.CreateServiceRequestCommand) (services.ServiceRequest, error) {
			t.Fatal("service must not be called without identity")
			return services.ServiceRequest{}, nil
		},
	}
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/service-requests", bytes.NewBufferString(createBody)))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestServiceRequestHandlersCreateRejectsMalformedBody(t *testing.T) {
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, &stubServiceRequestService{}, WithMaxBodyBytes(64)))

	cases := []struct {
		name string
		body string
		code int
		err  string
	}{
		{name: "empty", body: "  ", code: http.StatusBadRequest, err: "invalid_request"},
		{name: "not json", body: "kind=material", code: http.StatusBadRequest, err: "invalid_request"},
		{name: "too large", body: createBody, code: http.StatusRequestEntityTooLarge, err: "payload_too_large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := withIdentity(httptest.NewRequest(http.MethodPost, "/service-requests", bytes.NewBufferString(tc.body)), consumerIdentity())
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rr.Code)
			}
			if body := decodeErrorBody(t, rr); body["error"] != tc.err {
				t.Fatalf("expected error %s, got %v", tc.err, body["error"])
			}
		})
	}
}

func TestServiceRequestHandlersCreateValidationDetails(t *testing.T) {
	svc := &stubServiceRequestService{
		createFn: func(context.Context, services.CreateServiceRequestCommand) (services.ServiceRequest, error) {
			return services.ServiceRequest{}, &services.ValidationError{Fields: []services.FieldError{
				{Field: "address", Message: "must be at least 5 characters"},
				{Field: "contact.email", Message: "must be a valid email address"},
			}}
		},
	}
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc))

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/service-requests", bytes.NewBufferString(createBody)), consumerIdentity())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var body struct {
		Error   string `json:"error"`
		Details struct {
			Fields []services.FieldError `json:"fields"`
		} `json:"details"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Error != "invalid_request" {
		t.Fatalf("expected invalid_request, got %s", body.Error)
	}
	if len(body.Details.Fields) != 2 || body.Details.Fields[1].Field != "contact.email" {
		t.Fatalf("unexpected field details %+v", body.Details.Fields)
	}
}

func TestServiceRequestHandlersCreateInsufficientStock(t *testing.T) {
	svc := &stubServiceRequestService{
		createFn: func(context.Context, services.CreateServiceRequestCommand) (services.ServiceRequest, error) {
			return services.ServiceRequest{}, &services.InsufficientStockError{Available: 3}
		},
	}
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc))

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/service-requests", bytes.NewBufferString(createBody)), consumerIdentity())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	body := decodeErrorBody(t, rr)
	if body["error"] != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock, got %v", body["error"])
	}
	details, _ := body["details"].(map[string]any)
	if details["available"] != float64(3) {
		t.Fatalf("expected available 3 in details, got %v", body["details"])
	}
}

func TestServiceRequestHandlersCreateRateLimited(t *testing.T) {
	calls := 0
	svc := &stubServiceRequestService{
		createFn: func(context.Context, services.CreateServiceRequestCommand) (services.ServiceRequest, error) {
			calls++
			return sampleMaterialRequest(), nil
		},
	}
	clock := func() time.Time { return handlerTestNow }
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc, WithCreateRateLimit(1, time.Minute, clock)))

	send := func(uid string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/service-requests", bytes.NewBufferString(createBody))
		req = withIdentity(req, &auth.Identity{UID: uid, Roles: []string{auth.RoleConsumer}})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	if rr := send("user-1"); rr.Code != http.StatusCreated {
		t.Fatalf("expected first create to succeed, got %d", rr.Code)
	}
	rr := send("user-1")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if body := decodeErrorBody(t, rr); body["error"] != "rate_limited" {
		t.Fatalf("expected rate_limited, got %v", body["error"])
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}
	if rr := send("user-2"); rr.Code != http.StatusCreated {
		t.Fatalf("expected other actor to be unaffected, got %d", rr.Code)
	}
	if calls != 2 {
		t.Fatalf("expected 2 service calls, got %d", calls)
	}
}

func TestServiceRequestHandlersCreateIdempotentReplay(t *testing.T) {
	calls := 0
	svc := &stubServiceRequestService{
		createFn: func(context.Context, services.CreateServiceRequestCommand) (services.ServiceRequest, error) {
			calls++
			return sampleMaterialRequest(), nil
		},
	}
	mw := idempotency.Middleware(idempotency.NewMemoryStore(), idempotency.WithClock(func() time.Time { return handlerTestNow }))
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc, WithIdempotency(mw)))

	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/service-requests", bytes.NewBufferString(createBody))
		req.Header.Set("Idempotency-Key", "create-1")
		req = withIdentity(req, consumerIdentity())
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201, got %d", i, rr.Code)
		}
		if i == 1 && rr.Header().Get("X-Idempotent-Replay") != "true" {
			t.Fatalf("expected replay header on second attempt")
		}
		bodies = append(bodies, rr.Body.String())
	}
	if calls != 1 {
		t.Fatalf("expected a single create, got %d", calls)
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("expected identical replayed body")
	}
}

func TestServiceRequestHandlersListScopesAndPaginates(t *testing.T) {
	var captured services.ListServiceRequestsCommand
	svc := &stubServiceRequestService{
		listFn: func(_ context.Context, cmd services.ListServiceRequestsCommand) (domain.CursorPage[services.ServiceRequest], error) {
			captured = cmd
			return domain.CursorPage[services.ServiceRequest]{
				Items:         []services.ServiceRequest{sampleMaterialRequest()},
				NextPageToken: "next-token",
			}, nil
		},
	}
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc))

	req := httptest.NewRequest(http.MethodGet, "/service-requests?status=pending&pageSize=5", nil)
	req = withIdentity(req, &auth.Identity{UID: "owner-1", Roles: []string{auth.RoleVehicleOwner}, PartnerID: "partner_own"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.Status != "pending" || captured.Pagination.PageSize != 5 {
		t.Fatalf("unexpected list command %+v", captured)
	}
	if captured.Actor.PartnerID != "partner_own" || captured.Actor.Role != domain.RoleVehicleOwner {
		t.Fatalf("expected partner actor, got %+v", captured.Actor)
	}

	var resp serviceRequestListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.NextPageToken != "next-token" {
		t.Fatalf("unexpected list response %+v", resp)
	}
}

func TestServiceRequestHandlersListRejectsBadPageSize(t *testing.T) {
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, &stubServiceRequestService{}))

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/service-requests?pageSize=abc", nil), consumerIdentity())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestServiceRequestHandlersEchoRequiredByTimeOfDay(t *testing.T) {
	svc := &stubServiceRequestService{
		getFn: func(context.Context, services.GetServiceRequestCommand) (services.ServiceRequest, error) {
			request := sampleMaterialRequest()
			request.RequiredByDate = time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
			return request, nil
		},
	}
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/service-requests/sr_01", nil), consumerIdentity()))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp serviceRequestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got := resp.ServiceRequest.RequiredByDate; got != "2025-06-10T15:00:00Z" {
		t.Fatalf("expected time of day to be kept, got %s", got)
	}
}

func TestServiceRequestHandlersGetAndEvents(t *testing.T) {
	svc := &stubServiceRequestService{
		getFn: func(_ context.Context, cmd services.GetServiceRequestCommand) (services.ServiceRequest, error) {
			if cmd.RequestID != "sr_01" {
				return services.ServiceRequest{}, services.ErrServiceRequestNotFound
			}
			return sampleMaterialRequest(), nil
		},
		eventsFn: func(_ context.Context, cmd services.ListServiceRequestEventsCommand) (domain.CursorPage[services.ServiceRequestEvent], error) {
			return domain.CursorPage[services.ServiceRequestEvent]{Items: []services.ServiceRequestEvent{
				{ID: "ev_1", RequestID: cmd.RequestID, Type: "service_request.created", ToStatus: domain.ServiceRequestStatusPending, ActorID: "user-1", CreatedAt: handlerTestNow},
			}}, nil
		},
	}
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/service-requests/sr_01", nil), consumerIdentity()))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/service-requests/sr_missing", nil), consumerIdentity()))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/service-requests/sr_01/events", nil), consumerIdentity()))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp serviceRequestEventListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ToStatus != "pending" || resp.Items[0].FromStatus != "" {
		t.Fatalf("unexpected events %+v", resp.Items)
	}
}

func TestServiceRequestHandlersUpdateStatusForwardsNotes(t *testing.T) {
	var captured services.TransitionServiceRequestCommand
	svc := &stubServiceRequestService{
		transitionFn: func(_ context.Context, cmd services.TransitionServiceRequestCommand) (services.ServiceRequest, error) {
			captured = cmd
			updated := sampleMaterialRequest()
			updated.Status = domain.ServiceRequestStatusCancelled
			updated.Cancellation = &domain.Cancellation{Reason: "plans changed", CancelledBy: "user", CancelledDate: handlerTestNow}
			return updated, nil
		},
	}
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc))

	req := httptest.NewRequest(http.MethodPut, "/service-requests/sr_01/status", bytes.NewBufferString(`{"status":"cancelled","notes":"plans changed"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, consumerIdentity()))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.TargetStatus != "cancelled" || captured.RequestID != "sr_01" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.Notes == nil || *captured.Notes != "plans changed" {
		t.Fatalf("expected notes to be forwarded, got %v", captured.Notes)
	}
	var resp serviceRequestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.ServiceRequest.Cancellation == nil || resp.ServiceRequest.Cancellation.CancelledBy != "user" {
		t.Fatalf("expected cancellation in payload, got %+v", resp.ServiceRequest.Cancellation)
	}
}

func TestServiceRequestHandlersUpdateStatusWithoutNotes(t *testing.T) {
	var captured services.TransitionServiceRequestCommand
	svc := &stubServiceRequestService{
		transitionFn: func(_ context.Context, cmd services.TransitionServiceRequestCommand) (services.ServiceRequest, error) {
			captured = cmd
			return sampleMaterialRequest(), nil
		},
	}
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc))

	req := httptest.NewRequest(http.MethodPut, "/service-requests/sr_01/status", bytes.NewBufferString(`{"status":"confirmed"}`))
	router.ServeHTTP(httptest.NewRecorder(), withIdentity(req, consumerIdentity()))

	if captured.Notes != nil {
		t.Fatalf("expected absent notes to stay nil, got %q", *captured.Notes)
	}
}

func TestServiceRequestHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: unknown status", services.ErrServiceRequestInvalidInput), http.StatusBadRequest, "invalid_request"},
		{services.ErrServiceRequestNotFound, http.StatusNotFound, "not_found"},
		{services.ErrServiceRequestUnavailable, http.StatusBadRequest, "item_unavailable"},
		{services.ErrServiceRequestForbidden, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("%w: completed -> pending", services.ErrServiceRequestInvalidTransition), http.StatusBadRequest, "invalid_transition"},
		{services.ErrServiceRequestInvalidState, http.StatusBadRequest, "invalid_state"},
		{services.ErrServiceRequestConflict, http.StatusConflict, "conflict"},
		{services.ErrServiceRequestRepositoryUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc := &stubServiceRequestService{
				transitionFn: func(context.Context, services.TransitionServiceRequestCommand) (services.ServiceRequest, error) {
					return services.ServiceRequest{}, tc.err
				},
			}
			router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc))
			req := httptest.NewRequest(http.MethodPut, "/service-requests/sr_01/status", bytes.NewBufferString(`{"status":"confirmed"}`))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, withIdentity(req, consumerIdentity()))

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if body := decodeErrorBody(t, rr); body["error"] != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestServiceRequestHandlersFeedback(t *testing.T) {
	var captured services.AddFeedbackCommand
	svc := &stubServiceRequestService{
		feedbackFn: func(_ context.Context, cmd services.AddFeedbackCommand) (services.ServiceRequest, error) {
			captured = cmd
			updated := sampleMaterialRequest()
			updated.Status = domain.ServiceRequestStatusCompleted
			updated.Feedback = &domain.Feedback{Rating: cmd.Rating, Comment: cmd.Comment, Date: handlerTestNow}
			return updated, nil
		},
	}
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc))

	req := httptest.NewRequest(http.MethodPost, "/service-requests/sr_01/feedback", bytes.NewBufferString(`{"rating":5,"comment":"on time"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, consumerIdentity()))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.Rating != 5 || captured.Comment != "on time" {
		t.Fatalf("unexpected feedback command %+v", captured)
	}
	var resp serviceRequestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.ServiceRequest.Feedback == nil || resp.ServiceRequest.Feedback.Rating != 5 {
		t.Fatalf("expected feedback in payload, got %+v", resp.ServiceRequest.Feedback)
	}

	req = httptest.NewRequest(http.MethodPost, "/service-requests/sr_01/feedback", bytes.NewBufferString(`{"comment":"no rating"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, consumerIdentity()))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing rating, got %d", rr.Code)
	}
}

func TestServiceRequestHandlersAccept(t *testing.T) {
	var captured services.AcceptServiceRequestCommand
	svc := &stubServiceRequestService{
		acceptFn: func(_ context.Context, cmd services.AcceptServiceRequestCommand) (services.ServiceRequest, error) {
			captured = cmd
			updated := sampleMaterialRequest()
			updated.AssignedPartnerID = cmd.Actor.PartnerID
			return updated, nil
		},
	}
	router := newServiceRequestRouter(NewServiceRequestHandlers(nil, svc))

	req := httptest.NewRequest(http.MethodPost, "/service-requests/sr_01/accept", nil)
	req = withIdentity(req, &auth.Identity{UID: "sup-1", Roles: []string{auth.RoleMaterialSupplier}, PartnerID: "partner_sup"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.Actor.PartnerID != "partner_sup" || captured.RequestID != "sr_01" {
		t.Fatalf("unexpected accept command %+v", captured)
	}
	var resp serviceRequestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.ServiceRequest.AssignedPartnerID != "partner_sup" {
		t.Fatalf("expected assigned partner, got %q", resp.ServiceRequest.AssignedPartnerID)
	}
}
