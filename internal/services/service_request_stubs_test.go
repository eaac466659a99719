package services

import (
	"context"
	"sync"

	domain "github.com/autox/api/internal/domain"
	"github.com/autox/api/internal/repositories"
)

type testRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e testRepoError) Error() string { return "repository error" }

func (e testRepoError) IsNotFound() bool { return e.notFound }

func (e testRepoError) IsConflict() bool { return e.conflict }

func (e testRepoError) IsUnavailable() bool { return e.unavailable }

var errTestNotFound = testRepoError{notFound: true}

type stubMaterialRepository struct {
	mu    sync.Mutex
	items map[string]domain.Material
	err   error
}

func (s *stubMaterialRepository) FindByID(_ context.Context, id string) (domain.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Material{}, s.err
	}
	item, ok := s.items[id]
	if !ok {
		return domain.Material{}, errTestNotFound
	}
	return item, nil
}

func (s *stubMaterialRepository) List(context.Context, repositories.CatalogListFilter) (domain.CursorPage[domain.Material], error) {
	return domain.CursorPage[domain.Material]{}, nil
}

func (s *stubMaterialRepository) adjust(id string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return
	}
	item.AvailableQuantity += delta
	s.items[id] = item
}

func (s *stubMaterialRepository) stock(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id].AvailableQuantity
}

type stubVehicleRepository struct {
	items map[string]domain.Vehicle
}

func (s *stubVehicleRepository) FindByID(_ context.Context, id string) (domain.Vehicle, error) {
	item, ok := s.items[id]
	if !ok {
		return domain.Vehicle{}, errTestNotFound
	}
	return item, nil
}

func (s *stubVehicleRepository) List(context.Context, repositories.CatalogListFilter) (domain.CursorPage[domain.Vehicle], error) {
	return domain.CursorPage[domain.Vehicle]{}, nil
}

type stubPartnerRepository struct {
	items map[string]domain.Partner
}

func (s *stubPartnerRepository) FindByID(_ context.Context, id string) (domain.Partner, error) {
	item, ok := s.items[id]
	if !ok {
		return domain.Partner{}, errTestNotFound
	}
	return item, nil
}

// memoryServiceRequestRepository mimics the transactional guarantees of the Firestore repository.
type memoryServiceRequestRepository struct {
	mu        sync.Mutex
	requests  map[string]domain.ServiceRequest
	numbers   map[string]string
	events    map[string][]domain.ServiceRequestEvent
	materials *stubMaterialRepository

	createCalls int
	updateErr   error
	listFilter  repositories.ServiceRequestListFilter
	// interleave runs once at the start of the next Update, after the caller has read the request
	// and before its write is applied.
	interleave func()
}

func newMemoryServiceRequestRepository(materials *stubMaterialRepository) *memoryServiceRequestRepository {
	return &memoryServiceRequestRepository{
		requests:  make(map[string]domain.ServiceRequest),
		numbers:   make(map[string]string),
		events:    make(map[string][]domain.ServiceRequestEvent),
		materials: materials,
	}
}

func (m *memoryServiceRequestRepository) Create(_ context.Context, request domain.ServiceRequest, event domain.ServiceRequestEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++

	if _, taken := m.numbers[request.Tracking.OrderNumber]; taken {
		return repositories.NewServiceRequestError(repositories.ServiceRequestErrorOrderNumberTaken, "taken", nil)
	}
	if request.Kind == domain.ServiceRequestKindMaterial && m.materials != nil {
		qty := *request.Quantity
		if available := m.materials.stock(request.MaterialRef); available < qty {
			stockErr := repositories.NewServiceRequestError(repositories.ServiceRequestErrorInsufficientStock, "insufficient", nil)
			stockErr.Available = available
			return stockErr
		}
		m.materials.adjust(request.MaterialRef, -qty)
	}
	m.numbers[request.Tracking.OrderNumber] = request.ID
	m.requests[request.ID] = request
	m.events[request.ID] = append(m.events[request.ID], event)
	return nil
}

func (m *memoryServiceRequestRepository) Update(_ context.Context, update repositories.ServiceRequestUpdate) error {
	m.mu.Lock()
	hook := m.interleave
	m.interleave = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.requests[update.Request.ID]
	if !ok {
		return errTestNotFound
	}
	if update.ExpectedVersion > 0 && stored.Version != update.ExpectedVersion {
		return repositories.NewServiceRequestError(repositories.ServiceRequestErrorPreconditionFailed, "version changed", nil)
	}
	if update.ExpectedStatus != "" && stored.Status != update.ExpectedStatus {
		return repositories.NewServiceRequestError(repositories.ServiceRequestErrorPreconditionFailed, "status changed", nil)
	}
	if update.RequireUnassigned && stored.AssignedPartnerID != "" {
		return repositories.NewServiceRequestError(repositories.ServiceRequestErrorPreconditionFailed, "assigned", nil)
	}
	if update.RequireNoFeedback && stored.Feedback != nil {
		return repositories.NewServiceRequestError(repositories.ServiceRequestErrorPreconditionFailed, "feedback", nil)
	}
	if update.Restock > 0 && m.materials != nil {
		m.materials.adjust(stored.MaterialRef, update.Restock)
	}
	next := update.Request
	next.Tracking.OrderNumber = stored.Tracking.OrderNumber
	if stored.AssignedPartnerID != "" {
		next.AssignedPartnerID = stored.AssignedPartnerID
	}
	if stored.Feedback != nil {
		next.Feedback = stored.Feedback
	}
	if next.Version <= stored.Version {
		next.Version = stored.Version + 1
	}
	m.requests[next.ID] = next
	m.events[next.ID] = append(m.events[next.ID], update.Event)
	return nil
}

func (m *memoryServiceRequestRepository) FindByID(_ context.Context, id string) (domain.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[id]
	if !ok {
		return domain.ServiceRequest{}, errTestNotFound
	}
	return request, nil
}

func (m *memoryServiceRequestRepository) List(_ context.Context, filter repositories.ServiceRequestListFilter) (domain.CursorPage[domain.ServiceRequest], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listFilter = filter
	var items []domain.ServiceRequest
	for _, request := range m.requests {
		if filter.RequesterID != "" && request.RequesterID != filter.RequesterID {
			continue
		}
		if filter.PartnerID != "" && request.AssignedPartnerID != filter.PartnerID {
			continue
		}
		if filter.Status != "" && request.Status != filter.Status {
			continue
		}
		items = append(items, request)
	}
	return domain.CursorPage[domain.ServiceRequest]{Items: items}, nil
}

func (m *memoryServiceRequestRepository) eventRepository() repositories.ServiceRequestEventRepository {
	return memoryEventRepository{repo: m}
}

func (m *memoryServiceRequestRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type memoryEventRepository struct {
	repo *memoryServiceRequestRepository
}

func (r memoryEventRepository) List(_ context.Context, requestID string, _ domain.Pagination) (domain.CursorPage[domain.ServiceRequestEvent], error) {
	r.repo.mu.Lock()
	defer r.repo.mu.Unlock()
	events := append([]domain.ServiceRequestEvent(nil), r.repo.events[requestID]...)
	return domain.CursorPage[domain.ServiceRequestEvent]{Items: events}, nil
}

type captureNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (c *captureNotifier) Notify(_ context.Context, n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append(c.notifications, n)
}

func (c *captureNotifier) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.notifications))
	for _, n := range c.notifications {
		out = append(out, n.Type)
	}
	return out
}
