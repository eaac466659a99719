package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/autox/api/internal/domain"
	"github.com/autox/api/internal/platform/requestctx"
)

type capturedSpan struct {
	trace.Span
	name  string
	attrs map[attribute.Key]string
}

func (s *capturedSpan) SetName(name string) { s.name = name }

func (s *capturedSpan) SetAttributes(kv ...attribute.KeyValue) {
	if s.attrs == nil {
		s.attrs = make(map[attribute.Key]string)
	}
	for _, attr := range kv {
		s.attrs[attr.Key] = attr.Value.Emit()
	}
}

func TestTraceMiddlewareContinuesCloudTrace(t *testing.T) {
	var info requestctx.TraceInfo
	router := chi.NewRouter()
	router.Use(TraceMiddleware("autox-prod"))
	router.Get("/service-requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		info, _ = requestctx.Trace(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/service-requests/sr_1", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if info.TraceID != "105445aa7843bc8bf206b12000100000" || info.ProjectID != "autox-prod" {
		t.Fatalf("expected trace info from header, got %+v", info)
	}
	if got := rr.Header().Get(cloudTraceHeader); !strings.HasPrefix(got, "105445aa7843bc8bf206b12000100000/") {
		t.Fatalf("expected trace header echoed, got %q", got)
	}
}

func TestAnnotateRoutedSpanUsesRoutePattern(t *testing.T) {
	span := &capturedSpan{}
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.WithContext(requestctx.WithActorSlot(r.Context()))
			next.ServeHTTP(w, r)
			annotateRoutedSpan(span, r)
		})
	})
	router.Route("/api/v1/service-requests", func(r chi.Router) {
		r.Put("/{id}/status", func(w http.ResponseWriter, r *http.Request) {
			requestctx.SetActor(r.Context(), domain.Actor{ID: "owner-1", Role: domain.RoleVehicleOwner, PartnerID: "partner_own"})
			w.WriteHeader(http.StatusOK)
		})
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/v1/service-requests/sr_42/status", nil))

	if span.name != "PUT /api/v1/service-requests/{id}/status" {
		t.Fatalf("expected span named after route, got %q", span.name)
	}
	if span.attrs[attrServiceRequestID] != "sr_42" {
		t.Fatalf("expected service request id attribute, got %v", span.attrs)
	}
	if span.attrs[attrActorRole] != "vehicle_owner" || span.attrs[attrPartnerID] != "partner_own" {
		t.Fatalf("expected actor attributes, got %v", span.attrs)
	}
}

func TestSanitizeIdentifierStripsInjection(t *testing.T) {
	if got := SanitizeIdentifier(" user_1\n{\"admin\":true}"); got != `user_1{"admin":true}` {
		t.Fatalf("unexpected identifier %q", got)
	}
	long := strings.Repeat("é", 100)
	if got := SanitizeIdentifier(long); len([]rune(got)) != identifierLimit {
		t.Fatalf("expected %d runes, got %d", identifierLimit, len([]rune(got)))
	}
	if got := SanitizeMethod("get\r"); got != "GET" {
		t.Fatalf("unexpected method %q", got)
	}
}
