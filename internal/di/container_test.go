package di

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/autox/api/internal/domain"
	"github.com/autox/api/internal/platform/config"
	"github.com/autox/api/internal/repositories"
	"github.com/autox/api/internal/services"
)

type fakeServiceRequests struct{ repositories.ServiceRequestRepository }
type fakeEvents struct{ repositories.ServiceRequestEventRepository }
type fakeMaterials struct{ repositories.MaterialRepository }
type fakeVehicles struct{ repositories.VehicleRepository }
type fakePartners struct{ repositories.PartnerRepository }

type fakeHealth struct{}

func (fakeHealth) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}

type fakeRegistry struct {
	health   repositories.HealthRepository
	closeErr error
	closed   bool
}

func (r *fakeRegistry) Close(context.Context) error {
	r.closed = true
	return r.closeErr
}

func (r *fakeRegistry) ServiceRequests() repositories.ServiceRequestRepository {
	return fakeServiceRequests{}
}

func (r *fakeRegistry) ServiceRequestEvents() repositories.ServiceRequestEventRepository {
	return fakeEvents{}
}

func (r *fakeRegistry) Materials() repositories.MaterialRepository { return fakeMaterials{} }
func (r *fakeRegistry) Vehicles() repositories.VehicleRepository   { return fakeVehicles{} }
func (r *fakeRegistry) Partners() repositories.PartnerRepository   { return fakePartners{} }
func (r *fakeRegistry) Health() repositories.HealthRepository      { return r.health }

type recordingPublisher struct {
	mu    sync.Mutex
	calls int
}

func (p *recordingPublisher) PublishNotification(context.Context, services.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Notifications: config.NotificationConfig{DispatchTimeout: time.Second},
		Requests:      config.RequestConfig{Currency: "LKR", OrderNumberAttempts: 3},
		Secrets:       config.SecretsConfig{Environment: "test"},
		Build:         config.BuildConfig{Version: "1.0.0", CommitSHA: "abc123"},
	}
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), testConfig(), nil); err == nil {
		t.Fatalf("expected error for nil registry")
	}
}

func TestNewContainerWiresServices(t *testing.T) {
	reg := &fakeRegistry{health: fakeHealth{}}
	publisher := &recordingPublisher{}

	container, err := NewContainer(context.Background(), testConfig(), reg, WithNotificationPublisher(publisher))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	if container.Services.ServiceRequests == nil || container.Services.Catalog == nil {
		t.Fatalf("expected request and catalog services to be wired")
	}
	if container.Services.System == nil {
		t.Fatalf("expected system service when a health repository exists")
	}
	if container.Dispatcher == nil {
		t.Fatalf("expected dispatcher when a publisher is configured")
	}

	report, err := container.Services.System.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Version != "1.0.0" || report.CommitSHA != "abc123" || report.Environment != "test" {
		t.Fatalf("expected build info from config, got %+v", report)
	}
}

func TestNewContainerWithoutHealthOrPublisher(t *testing.T) {
	container, err := NewContainer(context.Background(), testConfig(), &fakeRegistry{})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	if container.Services.System != nil {
		t.Fatalf("expected no system service without health repository")
	}
	if container.Dispatcher != nil {
		t.Fatalf("expected no dispatcher without publisher")
	}
}

func TestContainerCloseDrainsAndCloses(t *testing.T) {
	reg := &fakeRegistry{closeErr: errors.New("close failed")}
	publisher := &recordingPublisher{}
	container, err := NewContainer(context.Background(), testConfig(), reg, WithNotificationPublisher(publisher))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}

	container.Dispatcher.Notify(context.Background(), services.Notification{Type: "service_request.created", RequestID: "sr_1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = container.Close(ctx)
	if !errors.Is(err, reg.closeErr) {
		t.Fatalf("expected registry close error, got %v", err)
	}
	if !reg.closed {
		t.Fatalf("expected registry to be closed")
	}
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if publisher.calls != 1 {
		t.Fatalf("expected in-flight notification to finish before close, got %d", publisher.calls)
	}
}
