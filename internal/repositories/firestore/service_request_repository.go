package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/autox/api/internal/domain"
	pfirestore "github.com/autox/api/internal/platform/firestore"
	"github.com/autox/api/internal/platform/pagination"
	"github.com/autox/api/internal/repositories"
)

const (
	serviceRequestsCollection       = "serviceRequests"
	serviceRequestNumbersCollection = "serviceRequestNumbers"
	serviceRequestEventsCollection  = "events"

	defaultPageSize = 20
	maxPageSize     = 100
)

// ServiceRequestRepository persists service requests, their order-number index and history in Firestore.
type ServiceRequestRepository struct {
	provider  *pfirestore.Provider
	requests  *pfirestore.Collection[serviceRequestDocument]
	numbers   *pfirestore.Collection[orderNumberDocument]
	materials *pfirestore.Collection[materialDocument]
}

var _ repositories.ServiceRequestRepository = (*ServiceRequestRepository)(nil)

// NewServiceRequestRepository constructs a Firestore-backed service request repository.
func NewServiceRequestRepository(provider *pfirestore.Provider) (*ServiceRequestRepository, error) {
	if provider == nil {
		return nil, errors.New("service request repository requires firestore provider")
	}
	return &ServiceRequestRepository{
		provider:  provider,
		requests:  pfirestore.NewCollection[serviceRequestDocument](provider, serviceRequestsCollection),
		numbers:   pfirestore.NewCollection[orderNumberDocument](provider, serviceRequestNumbersCollection),
		materials: pfirestore.NewCollection[materialDocument](provider, materialsCollection),
	}, nil
}

// Create claims the order number, decrements material stock and writes the request with its first
// history entry in one transaction.
func (r *ServiceRequestRepository) Create(ctx context.Context, request domain.ServiceRequest, event domain.ServiceRequestEvent) error {
	if r == nil || r.provider == nil {
		return errors.New("service request repository not initialised")
	}
	requestID := strings.TrimSpace(request.ID)
	orderNumber := strings.TrimSpace(request.Tracking.OrderNumber)
	if requestID == "" || orderNumber == "" {
		return errors.New("service request repository: request id and order number are required")
	}

	requestRef, err := r.requests.Doc(ctx, requestID)
	if err != nil {
		return err
	}
	numberRef, err := r.numbers.Doc(ctx, orderNumber)
	if err != nil {
		return err
	}
	eventRef := requestRef.Collection(serviceRequestEventsCollection).Doc(event.ID)

	var materialRef *firestore.DocumentRef
	if request.Kind == domain.ServiceRequestKindMaterial {
		materialRef, err = r.materials.Doc(ctx, request.MaterialRef)
		if err != nil {
			return err
		}
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var (
			material    materialDocument
			hasMaterial bool
		)
		if materialRef != nil {
			snap, err := tx.Get(materialRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewServiceRequestError(repositories.ServiceRequestErrorItemUnavailable, "material no longer exists", err)
				}
				return err
			}
			material, err = r.materials.Decode(snap)
			if err != nil {
				return err
			}
			if !material.IsAvailable {
				return repositories.NewServiceRequestError(repositories.ServiceRequestErrorItemUnavailable, "material is not available", nil)
			}
			qty := derefInt(request.Quantity)
			if material.AvailableQuantity < qty {
				stockErr := repositories.NewServiceRequestError(repositories.ServiceRequestErrorInsufficientStock, "insufficient stock", nil)
				stockErr.Available = material.AvailableQuantity
				return stockErr
			}
			hasMaterial = true
		}

		if _, err := tx.Get(numberRef); err == nil {
			return repositories.NewServiceRequestError(repositories.ServiceRequestErrorOrderNumberTaken, "order number already issued", nil)
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		if hasMaterial {
			remaining := material.AvailableQuantity - derefInt(request.Quantity)
			if err := tx.Update(materialRef, []firestore.Update{
				{Path: "availableQuantity", Value: remaining},
				{Path: "updatedAt", Value: request.RequestDate},
			}); err != nil {
				return err
			}
		}
		if err := tx.Create(numberRef, orderNumberDocument{RequestID: requestID, CreatedAt: request.RequestDate}); err != nil {
			return err
		}
		if err := tx.Create(requestRef, newServiceRequestDocument(request)); err != nil {
			return err
		}
		return tx.Create(eventRef, newServiceRequestEventDocument(event))
	})
	if err != nil {
		return wrapServiceRequestError("serviceRequests.create", err)
	}
	return nil
}

// Update re-reads the request inside a transaction and replaces it when every precondition still holds.
func (r *ServiceRequestRepository) Update(ctx context.Context, update repositories.ServiceRequestUpdate) error {
	if r == nil || r.provider == nil {
		return errors.New("service request repository not initialised")
	}
	requestRef, err := r.requests.Doc(ctx, strings.TrimSpace(update.Request.ID))
	if err != nil {
		return err
	}
	eventRef := requestRef.Collection(serviceRequestEventsCollection).Doc(update.Event.ID)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(requestRef)
		if err != nil {
			return err
		}
		stored, err := r.requests.Decode(snap)
		if err != nil {
			return err
		}
		if update.ExpectedVersion > 0 && stored.Version != update.ExpectedVersion {
			return preconditionFailed(fmt.Sprintf("request modified concurrently (version %d)", stored.Version))
		}
		if update.ExpectedStatus != "" && domain.ServiceRequestStatus(stored.Status) != update.ExpectedStatus {
			return preconditionFailed(fmt.Sprintf("status changed to %s", stored.Status))
		}
		if update.RequireUnassigned && strings.TrimSpace(stored.AssignedPartnerID) != "" {
			return preconditionFailed("partner already assigned")
		}
		if update.RequireNoFeedback && stored.Feedback != nil {
			return preconditionFailed("feedback already provided")
		}

		var (
			materialRef *firestore.DocumentRef
			material    materialDocument
		)
		if update.Restock > 0 && stored.Kind == string(domain.ServiceRequestKindMaterial) {
			ref, err := r.materials.Doc(ctx, stored.MaterialRef)
			if err != nil {
				return err
			}
			msnap, err := tx.Get(ref)
			switch {
			case err == nil:
				material, err = r.materials.Decode(msnap)
				if err != nil {
					return err
				}
				materialRef = ref
			case status.Code(err) == codes.NotFound:
				// Removed materials have nothing to restock.
			default:
				return err
			}
		}

		if materialRef != nil {
			if err := tx.Update(materialRef, []firestore.Update{
				{Path: "availableQuantity", Value: material.AvailableQuantity + update.Restock},
				{Path: "updatedAt", Value: update.Request.UpdatedAt},
			}); err != nil {
				return err
			}
		}
		if err := tx.Set(requestRef, mergeImmutable(stored, newServiceRequestDocument(update.Request))); err != nil {
			return err
		}
		return tx.Create(eventRef, newServiceRequestEventDocument(update.Event))
	})
	if err != nil {
		return wrapServiceRequestError("serviceRequests.update", err)
	}
	return nil
}

// FindByID loads a request by id.
func (r *ServiceRequestRepository) FindByID(ctx context.Context, requestID string) (domain.ServiceRequest, error) {
	requestID = strings.TrimSpace(requestID)
	doc, err := r.requests.Get(ctx, requestID)
	if err != nil {
		return domain.ServiceRequest{}, err
	}
	return doc.toDomain(requestID), nil
}

// List returns requests newest first, scoped by requester or assigned partner.
func (r *ServiceRequestRepository) List(ctx context.Context, filter repositories.ServiceRequestListFilter) (domain.CursorPage[domain.ServiceRequest], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.ServiceRequest]{}, err
	}
	build := func(q firestore.Query) firestore.Query {
		if requester := strings.TrimSpace(filter.RequesterID); requester != "" {
			q = q.Where("requesterId", "==", requester)
		}
		if partner := strings.TrimSpace(filter.PartnerID); partner != "" {
			q = q.Where("assignedPartnerId", "==", partner)
		}
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		return q.OrderBy("requestDate", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	}
	docs, lastID, err := r.requests.Page(ctx, build, cursor.After, pageSize(filter.Pagination))
	if err != nil {
		return domain.CursorPage[domain.ServiceRequest]{}, err
	}
	items := make([]domain.ServiceRequest, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	next, err := pagination.EncodeToken(pagination.Cursor{After: lastID})
	if err != nil {
		return domain.CursorPage[domain.ServiceRequest]{}, err
	}
	return domain.CursorPage[domain.ServiceRequest]{Items: items, NextPageToken: next}, nil
}

// ServiceRequestEventRepository reads the events subcollection of a request.
type ServiceRequestEventRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.ServiceRequestEventRepository = (*ServiceRequestEventRepository)(nil)

func NewServiceRequestEventRepository(provider *pfirestore.Provider) (*ServiceRequestEventRepository, error) {
	if provider == nil {
		return nil, errors.New("service request event repository requires firestore provider")
	}
	return &ServiceRequestEventRepository{provider: provider}, nil
}

// List returns history entries oldest first.
func (r *ServiceRequestEventRepository) List(ctx context.Context, requestID string, pager domain.Pagination) (domain.CursorPage[domain.ServiceRequestEvent], error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return domain.CursorPage[domain.ServiceRequestEvent]{}, errors.New("service request event repository: request id is required")
	}
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.ServiceRequestEvent]{}, err
	}
	events := pfirestore.NewCollection[serviceRequestEventDocument](r.provider,
		serviceRequestsCollection+"/"+requestID+"/"+serviceRequestEventsCollection)
	build := func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	}
	docs, lastID, err := events.Page(ctx, build, cursor.After, pageSize(pager))
	if err != nil {
		return domain.CursorPage[domain.ServiceRequestEvent]{}, err
	}
	items := make([]domain.ServiceRequestEvent, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID, requestID))
	}
	next, err := pagination.EncodeToken(pagination.Cursor{After: lastID})
	if err != nil {
		return domain.CursorPage[domain.ServiceRequestEvent]{}, err
	}
	return domain.CursorPage[domain.ServiceRequestEvent]{Items: items, NextPageToken: next}, nil
}

func preconditionFailed(message string) error {
	return repositories.NewServiceRequestError(repositories.ServiceRequestErrorPreconditionFailed, message, nil)
}

func wrapServiceRequestError(op string, err error) error {
	if err == nil {
		return nil
	}
	var reqErr *repositories.ServiceRequestError
	if errors.As(err, &reqErr) {
		if reqErr.Op == "" {
			reqErr.Op = op
		}
		return reqErr
	}
	return pfirestore.WrapError(op, err)
}

func pageSize(p domain.Pagination) int {
	switch {
	case p.PageSize <= 0:
		return defaultPageSize
	case p.PageSize > maxPageSize:
		return maxPageSize
	default:
		return p.PageSize
	}
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// mergeImmutable keeps fields fixed at creation from the stored document. A stored partner assignment
// or feedback entry is never cleared by a later write.
func mergeImmutable(stored, next serviceRequestDocument) serviceRequestDocument {
	next.RequesterID = stored.RequesterID
	next.Kind = stored.Kind
	next.MaterialRef = stored.MaterialRef
	next.VehicleRef = stored.VehicleRef
	next.Quantity = stored.Quantity
	next.Duration = stored.Duration
	next.DurationUnit = stored.DurationUnit
	next.TotalPrice = stored.TotalPrice
	next.Currency = stored.Currency
	next.RequestDate = stored.RequestDate
	next.Tracking.OrderNumber = stored.Tracking.OrderNumber
	if strings.TrimSpace(stored.AssignedPartnerID) != "" {
		next.AssignedPartnerID = stored.AssignedPartnerID
	}
	if stored.Feedback != nil {
		next.Feedback = stored.Feedback
	}
	if next.Version <= stored.Version {
		next.Version = stored.Version + 1
	}
	return next
}

type orderNumberDocument struct {
	RequestID string    `firestore:"requestId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type contactDocument struct {
	Name  string `firestore:"name"`
	Phone string `firestore:"phone"`
	Email string `firestore:"email,omitempty"`
}

func (d contactDocument) toDomain() domain.Contact {
	return domain.Contact{Name: d.Name, Phone: d.Phone, Email: d.Email}
}

type trackingDocument struct {
	OrderNumber       string     `firestore:"orderNumber"`
	EstimatedDelivery *time.Time `firestore:"estimatedDelivery,omitempty"`
	ActualDelivery    *time.Time `firestore:"actualDelivery,omitempty"`
	DeliveryStatus    string     `firestore:"deliveryStatus,omitempty"`
}

type paymentDocument struct {
	Method        string     `firestore:"method,omitempty"`
	Status        string     `firestore:"status,omitempty"`
	TransactionID string     `firestore:"transactionId,omitempty"`
	PaidAmount    int64      `firestore:"paidAmount,omitempty"`
	PaidDate      *time.Time `firestore:"paidDate,omitempty"`
}

type feedbackDocument struct {
	Rating  int       `firestore:"rating"`
	Comment string    `firestore:"comment,omitempty"`
	Date    time.Time `firestore:"date"`
}

type cancellationDocument struct {
	Reason        string    `firestore:"reason"`
	CancelledBy   string    `firestore:"cancelledBy"`
	CancelledDate time.Time `firestore:"cancelledDate"`
}

type serviceRequestDocument struct {
	RequesterID       string                `firestore:"requesterId"`
	Kind              string                `firestore:"kind"`
	MaterialRef       string                `firestore:"materialRef,omitempty"`
	VehicleRef        string                `firestore:"vehicleRef,omitempty"`
	Quantity          *int                  `firestore:"quantity,omitempty"`
	Duration          *int                  `firestore:"duration,omitempty"`
	DurationUnit      string                `firestore:"durationUnit,omitempty"`
	TotalPrice        int64                 `firestore:"totalPrice"`
	Currency          string                `firestore:"currency"`
	Status            string                `firestore:"status"`
	RequiredByDate    time.Time             `firestore:"requiredByDate"`
	Address           string                `firestore:"address"`
	Contact           contactDocument       `firestore:"contact"`
	AssignedPartnerID string                `firestore:"assignedPartnerId"`
	Tracking          trackingDocument      `firestore:"tracking"`
	Payment           paymentDocument       `firestore:"payment"`
	Feedback          *feedbackDocument     `firestore:"feedback,omitempty"`
	Cancellation      *cancellationDocument `firestore:"cancellation,omitempty"`
	CompletedDate     *time.Time            `firestore:"completedDate,omitempty"`
	Notes             string                `firestore:"notes,omitempty"`
	RequestDate       time.Time             `firestore:"requestDate"`
	UpdatedAt         time.Time             `firestore:"updatedAt"`
	Version           int                   `firestore:"version"`
}

func newServiceRequestDocument(r domain.ServiceRequest) serviceRequestDocument {
	doc := serviceRequestDocument{
		RequesterID:       r.RequesterID,
		Kind:              string(r.Kind),
		MaterialRef:       r.MaterialRef,
		VehicleRef:        r.VehicleRef,
		Quantity:          r.Quantity,
		Duration:          r.Duration,
		DurationUnit:      string(r.DurationUnit),
		TotalPrice:        r.TotalPrice,
		Currency:          r.Currency,
		Status:            string(r.Status),
		RequiredByDate:    r.RequiredByDate.UTC(),
		Address:           r.Address,
		Contact:           contactDocument{Name: r.Contact.Name, Phone: r.Contact.Phone, Email: r.Contact.Email},
		AssignedPartnerID: r.AssignedPartnerID,
		Tracking: trackingDocument{
			OrderNumber:       r.Tracking.OrderNumber,
			EstimatedDelivery: r.Tracking.EstimatedDelivery,
			ActualDelivery:    r.Tracking.ActualDelivery,
			DeliveryStatus:    r.Tracking.DeliveryStatus,
		},
		Payment: paymentDocument{
			Method:        r.Payment.Method,
			Status:        r.Payment.Status,
			TransactionID: r.Payment.TransactionID,
			PaidAmount:    r.Payment.PaidAmount,
			PaidDate:      r.Payment.PaidDate,
		},
		CompletedDate: r.CompletedDate,
		Notes:         r.Notes,
		RequestDate:   r.RequestDate.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
		Version:       r.Version,
	}
	if r.Feedback != nil {
		doc.Feedback = &feedbackDocument{Rating: r.Feedback.Rating, Comment: r.Feedback.Comment, Date: r.Feedback.Date.UTC()}
	}
	if r.Cancellation != nil {
		doc.Cancellation = &cancellationDocument{
			Reason:        r.Cancellation.Reason,
			CancelledBy:   r.Cancellation.CancelledBy,
			CancelledDate: r.Cancellation.CancelledDate.UTC(),
		}
	}
	return doc
}

func (d serviceRequestDocument) toDomain(id string) domain.ServiceRequest {
	req := domain.ServiceRequest{
		ID:                id,
		RequesterID:       d.RequesterID,
		Kind:              domain.ServiceRequestKind(d.Kind),
		MaterialRef:       d.MaterialRef,
		VehicleRef:        d.VehicleRef,
		Quantity:          d.Quantity,
		Duration:          d.Duration,
		DurationUnit:      domain.DurationUnit(d.DurationUnit),
		TotalPrice:        d.TotalPrice,
		Currency:          d.Currency,
		Status:            domain.ServiceRequestStatus(d.Status),
		RequiredByDate:    d.RequiredByDate.UTC(),
		Address:           d.Address,
		Contact:           d.Contact.toDomain(),
		AssignedPartnerID: d.AssignedPartnerID,
		Tracking: domain.Tracking{
			OrderNumber:       d.Tracking.OrderNumber,
			EstimatedDelivery: d.Tracking.EstimatedDelivery,
			ActualDelivery:    d.Tracking.ActualDelivery,
			DeliveryStatus:    d.Tracking.DeliveryStatus,
		},
		Payment: domain.Payment{
			Method:        d.Payment.Method,
			Status:        d.Payment.Status,
			TransactionID: d.Payment.TransactionID,
			PaidAmount:    d.Payment.PaidAmount,
			PaidDate:      d.Payment.PaidDate,
		},
		CompletedDate: d.CompletedDate,
		Notes:         d.Notes,
		RequestDate:   d.RequestDate.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
		Version:       d.Version,
	}
	if d.Feedback != nil {
		req.Feedback = &domain.Feedback{Rating: d.Feedback.Rating, Comment: d.Feedback.Comment, Date: d.Feedback.Date.UTC()}
	}
	if d.Cancellation != nil {
		req.Cancellation = &domain.Cancellation{
			Reason:        d.Cancellation.Reason,
			CancelledBy:   d.Cancellation.CancelledBy,
			CancelledDate: d.Cancellation.CancelledDate.UTC(),
		}
	}
	return req
}

type serviceRequestEventDocument struct {
	Type       string    `firestore:"type"`
	FromStatus string    `firestore:"fromStatus,omitempty"`
	ToStatus   string    `firestore:"toStatus,omitempty"`
	ActorID    string    `firestore:"actorId"`
	Note       string    `firestore:"note,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

func newServiceRequestEventDocument(e domain.ServiceRequestEvent) serviceRequestEventDocument {
	return serviceRequestEventDocument{
		Type:       e.Type,
		FromStatus: string(e.FromStatus),
		ToStatus:   string(e.ToStatus),
		ActorID:    e.ActorID,
		Note:       e.Note,
		CreatedAt:  e.CreatedAt.UTC(),
	}
}

func (d serviceRequestEventDocument) toDomain(id, requestID string) domain.ServiceRequestEvent {
	return domain.ServiceRequestEvent{
		ID:         id,
		RequestID:  requestID,
		Type:       d.Type,
		FromStatus: domain.ServiceRequestStatus(d.FromStatus),
		ToStatus:   domain.ServiceRequestStatus(d.ToStatus),
		ActorID:    d.ActorID,
		Note:       d.Note,
		CreatedAt:  d.CreatedAt.UTC(),
	}
}
