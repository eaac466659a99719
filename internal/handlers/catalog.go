package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/autox/api/internal/domain"
	"github.com/autox/api/internal/platform/httpx"
	"github.com/autox/api/internal/services"
)

const defaultCatalogPageSize = 50

// CatalogHandlers exposes the public material and vehicle catalog.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog read handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers /materials and /vehicles on the API root.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/materials", h.listMaterials)
	r.Get("/materials/{materialID}", h.getMaterial)
	r.Get("/vehicles", h.listVehicles)
	r.Get("/vehicles/{vehicleID}", h.getVehicle)
}

type materialPayload struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Category          string `json:"category"`
	Unit              string `json:"unit"`
	PricePerUnit      int64  `json:"pricePerUnit"`
	AvailableQuantity int    `json:"availableQuantity"`
	IsAvailable       bool   `json:"isAvailable"`
	SupplierID        string `json:"supplierId"`
}

type vehicleAvailabilityPayload struct {
	IsAvailable bool `json:"isAvailable"`
}

type vehiclePayload struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Category     string                     `json:"category"`
	HourlyRate   int64                      `json:"hourlyRate"`
	DailyRate    int64                      `json:"dailyRate"`
	Availability vehicleAvailabilityPayload `json:"availability"`
	Status       string                     `json:"status"`
	OwnerID      string                     `json:"ownerId"`
}

type materialListResponse struct {
	Items         []materialPayload `json:"items"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

type vehicleListResponse struct {
	Items         []vehiclePayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

func (h *CatalogHandlers) listMaterials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	filter, ok := parseCatalogFilter(w, r)
	if !ok {
		return
	}
	page, err := h.catalog.ListMaterials(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	items := make([]materialPayload, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, buildMaterialPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, materialListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *CatalogHandlers) getMaterial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	material, err := h.catalog.GetMaterial(ctx, chi.URLParam(r, "materialID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildMaterialPayload(material))
}

func (h *CatalogHandlers) listVehicles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	filter, ok := parseCatalogFilter(w, r)
	if !ok {
		return
	}
	page, err := h.catalog.ListVehicles(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	items := make([]vehiclePayload, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, buildVehiclePayload(item))
	}
	writeJSONResponse(w, http.StatusOK, vehicleListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *CatalogHandlers) getVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	vehicle, err := h.catalog.GetVehicle(ctx, chi.URLParam(r, "vehicleID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildVehiclePayload(vehicle))
}

func parseCatalogFilter(w http.ResponseWriter, r *http.Request) (services.CatalogFilter, bool) {
	pager, ok := parsePagination(w, r, defaultCatalogPageSize)
	if !ok {
		return services.CatalogFilter{}, false
	}
	query := r.URL.Query()
	filter := services.CatalogFilter{
		Category:   strings.TrimSpace(query.Get("category")),
		Pagination: pager,
	}
	if raw := strings.TrimSpace(query.Get("available")); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError(httpx.CodeInvalidRequest, "available must be true or false", http.StatusBadRequest))
			return services.CatalogFilter{}, false
		}
		filter.AvailableOnly = available
	}
	return filter, true
}

func writeCatalogUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeServiceUnavailable, "catalog service unavailable", http.StatusServiceUnavailable))
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeNotFound, "catalog item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeServiceUnavailable, "catalog storage unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInternal, "unexpected error", http.StatusInternalServerError))
	}
}

func buildMaterialPayload(m domain.Material) materialPayload {
	return materialPayload{
		ID:                m.ID,
		Name:              m.Name,
		Category:          m.Category,
		Unit:              m.Unit,
		PricePerUnit:      m.PricePerUnit,
		AvailableQuantity: m.AvailableQuantity,
		IsAvailable:       m.IsAvailable,
		SupplierID:        m.SupplierID,
	}
}

func buildVehiclePayload(v domain.Vehicle) vehiclePayload {
	return vehiclePayload{
		ID:           v.ID,
		Name:         v.Name,
		Category:     v.Category,
		HourlyRate:   v.HourlyRate,
		DailyRate:    v.DailyRate,
		Availability: vehicleAvailabilityPayload{IsAvailable: v.Availability.IsAvailable},
		Status:       string(v.Status),
		OwnerID:      v.OwnerID,
	}
}
