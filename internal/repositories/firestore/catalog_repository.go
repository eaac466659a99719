package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/autox/api/internal/domain"
	pfirestore "github.com/autox/api/internal/platform/firestore"
	"github.com/autox/api/internal/platform/pagination"
	"github.com/autox/api/internal/repositories"
)

const (
	materialsCollection = "materials"
	vehiclesCollection  = "vehicles"
	partnersCollection  = "partners"
)

// MaterialRepository reads materials from Firestore.
type MaterialRepository struct {
	materials *pfirestore.Collection[materialDocument]
}

var _ repositories.MaterialRepository = (*MaterialRepository)(nil)

func NewMaterialRepository(provider *pfirestore.Provider) (*MaterialRepository, error) {
	if provider == nil {
		return nil, errors.New("material repository requires firestore provider")
	}
	return &MaterialRepository{materials: pfirestore.NewCollection[materialDocument](provider, materialsCollection)}, nil
}

func (r *MaterialRepository) FindByID(ctx context.Context, materialID string) (domain.Material, error) {
	doc, err := r.materials.Get(ctx, strings.TrimSpace(materialID))
	if err != nil {
		return domain.Material{}, err
	}
	return doc.toDomain(materialID), nil
}

func (r *MaterialRepository) List(ctx context.Context, filter repositories.CatalogListFilter) (domain.CursorPage[domain.Material], error) {
	docs, next, err := listCatalog(ctx, r.materials, filter, "isAvailable")
	if err != nil {
		return domain.CursorPage[domain.Material]{}, err
	}
	items := make([]domain.Material, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Material]{Items: items, NextPageToken: next}, nil
}

// VehicleRepository reads vehicles from Firestore.
type VehicleRepository struct {
	vehicles *pfirestore.Collection[vehicleDocument]
}

var _ repositories.VehicleRepository = (*VehicleRepository)(nil)

func NewVehicleRepository(provider *pfirestore.Provider) (*VehicleRepository, error) {
	if provider == nil {
		return nil, errors.New("vehicle repository requires firestore provider")
	}
	return &VehicleRepository{vehicles: pfirestore.NewCollection[vehicleDocument](provider, vehiclesCollection)}, nil
}

func (r *VehicleRepository) FindByID(ctx context.Context, vehicleID string) (domain.Vehicle, error) {
	doc, err := r.vehicles.Get(ctx, strings.TrimSpace(vehicleID))
	if err != nil {
		return domain.Vehicle{}, err
	}
	return doc.toDomain(vehicleID), nil
}

func (r *VehicleRepository) List(ctx context.Context, filter repositories.CatalogListFilter) (domain.CursorPage[domain.Vehicle], error) {
	docs, next, err := listCatalog(ctx, r.vehicles, filter, "availability.isAvailable")
	if err != nil {
		return domain.CursorPage[domain.Vehicle]{}, err
	}
	items := make([]domain.Vehicle, 0, len(docs))
	for _, doc := range docs {
		// Vehicles under maintenance keep isAvailable but cannot be booked.
		if filter.AvailableOnly && doc.Data.Status != string(domain.VehicleStatusActive) {
			continue
		}
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Vehicle]{Items: items, NextPageToken: next}, nil
}

// PartnerRepository reads partner profiles from Firestore.
type PartnerRepository struct {
	partners *pfirestore.Collection[partnerDocument]
}

var _ repositories.PartnerRepository = (*PartnerRepository)(nil)

func NewPartnerRepository(provider *pfirestore.Provider) (*PartnerRepository, error) {
	if provider == nil {
		return nil, errors.New("partner repository requires firestore provider")
	}
	return &PartnerRepository{partners: pfirestore.NewCollection[partnerDocument](provider, partnersCollection)}, nil
}

func (r *PartnerRepository) FindByID(ctx context.Context, partnerID string) (domain.Partner, error) {
	doc, err := r.partners.Get(ctx, strings.TrimSpace(partnerID))
	if err != nil {
		return domain.Partner{}, err
	}
	return domain.Partner{
		ID:                 partnerID,
		Type:               domain.PartnerType(doc.Type),
		BusinessName:       doc.BusinessName,
		VerificationStatus: domain.PartnerVerificationStatus(doc.VerificationStatus),
		Contact:            doc.Contact.toDomain(),
	}, nil
}

func listCatalog[T any](ctx context.Context, coll *pfirestore.Collection[T], filter repositories.CatalogListFilter, availableField string) ([]pfirestore.Document[T], string, error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return nil, "", err
	}
	build := func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		if filter.AvailableOnly {
			q = q.Where(availableField, "==", true)
		}
		return q.OrderBy(firestore.DocumentID, firestore.Asc)
	}
	docs, lastID, err := coll.Page(ctx, build, cursor.After, pageSize(filter.Pagination))
	if err != nil {
		return nil, "", err
	}
	next, err := pagination.EncodeToken(pagination.Cursor{After: lastID})
	if err != nil {
		return nil, "", err
	}
	return docs, next, nil
}

type materialDocument struct {
	Name              string    `firestore:"name"`
	Category          string    `firestore:"category"`
	Unit              string    `firestore:"unit"`
	PricePerUnit      int64     `firestore:"pricePerUnit"`
	AvailableQuantity int       `firestore:"availableQuantity"`
	IsAvailable       bool      `firestore:"isAvailable"`
	SupplierID        string    `firestore:"supplierId"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func (d materialDocument) toDomain(id string) domain.Material {
	return domain.Material{
		ID:                id,
		Name:              d.Name,
		Category:          d.Category,
		Unit:              d.Unit,
		PricePerUnit:      d.PricePerUnit,
		AvailableQuantity: d.AvailableQuantity,
		IsAvailable:       d.IsAvailable,
		SupplierID:        d.SupplierID,
	}
}

type vehicleAvailabilityDocument struct {
	IsAvailable bool `firestore:"isAvailable"`
}

type vehicleDocument struct {
	Name         string                      `firestore:"name"`
	Category     string                      `firestore:"category"`
	HourlyRate   int64                       `firestore:"hourlyRate"`
	DailyRate    int64                       `firestore:"dailyRate"`
	Availability vehicleAvailabilityDocument `firestore:"availability"`
	Status       string                      `firestore:"status"`
	OwnerID      string                      `firestore:"ownerId"`
}

func (d vehicleDocument) toDomain(id string) domain.Vehicle {
	return domain.Vehicle{
		ID:           id,
		Name:         d.Name,
		Category:     d.Category,
		HourlyRate:   d.HourlyRate,
		DailyRate:    d.DailyRate,
		Availability: domain.VehicleAvailability{IsAvailable: d.Availability.IsAvailable},
		Status:       domain.VehicleStatus(d.Status),
		OwnerID:      d.OwnerID,
	}
}

type partnerDocument struct {
	Type               string          `firestore:"type"`
	BusinessName       string          `firestore:"businessName"`
	VerificationStatus string          `firestore:"verificationStatus"`
	Contact            contactDocument `firestore:"contact"`
}
