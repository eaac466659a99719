package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/autox/api/internal/platform/auth"
	"github.com/autox/api/internal/platform/httpx"
	"github.com/autox/api/internal/platform/observability"
	"github.com/autox/api/internal/services"
)

// InternalHandlers serves dispatcher endpoints authenticated with service-to-service OIDC tokens.
type InternalHandlers struct {
	requests services.ServiceRequestService
	maxBody  int64
}

// NewInternalHandlers constructs internal handlers.
func NewInternalHandlers(requests services.ServiceRequestService) *InternalHandlers {
	return &InternalHandlers{requests: requests, maxBody: defaultMaxBodySize}
}

// Routes registers routes under /internal. OIDC verification is applied by the router group.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(observability.ActorCaptureMiddleware)
	r.Post("/service-requests/{requestID}/assign", h.assign)
}

type assignRequest struct {
	PartnerID string `json:"partnerId"`
}

func (h *InternalHandlers) assign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	caller, ok := auth.ServiceIdentityFromContext(ctx)
	if !ok || caller == nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnauthenticated, "service authentication required", http.StatusUnauthorized))
		return
	}
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if !decodeJSONBody(w, r, h.maxBody, &req) {
		return
	}
	partnerID := strings.TrimSpace(req.PartnerID)
	if partnerID == "" {
		writeServiceRequestError(ctx, w, &services.ValidationError{Fields: []services.FieldError{{Field: "partnerId", Message: "partnerId is required"}}})
		return
	}

	updated, err := h.requests.Assign(ctx, services.AssignServiceRequestCommand{
		Actor:     caller.Actor(),
		RequestID: requestID,
		PartnerID: partnerID,
	})
	if err != nil {
		writeServiceRequestError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, serviceRequestResponse{ServiceRequest: buildServiceRequestPayload(updated)})
}
