package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubNotificationPublisher struct {
	mu        sync.Mutex
	published []Notification
	fn        func(ctx context.Context, n Notification) error
}

func (s *stubNotificationPublisher) PublishNotification(ctx context.Context, n Notification) error {
	s.mu.Lock()
	s.published = append(s.published, n)
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, n)
	}
	return nil
}

func (s *stubNotificationPublisher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

type recordedLog struct {
	event  string
	fields map[string]any
}

type logRecorder struct {
	mu      sync.Mutex
	entries []recordedLog
}

func (l *logRecorder) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, recordedLog{event: event, fields: fields})
}

func (l *logRecorder) snapshot() []recordedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedLog(nil), l.entries...)
}

func TestNotificationDispatcherPublishesAfterCallerCancels(t *testing.T) {
	release := make(chan struct{})
	publisher := &stubNotificationPublisher{fn: func(ctx context.Context, _ Notification) error {
		<-release
		return ctx.Err()
	}}
	logs := &logRecorder{}
	dispatcher, err := NewNotificationDispatcher(NotificationDispatcherDeps{Publisher: publisher, Logger: logs.log})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Notify(ctx, Notification{Type: NotificationServiceRequestCreated, RequestID: "sr_1"})
	cancel()
	close(release)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if err := dispatcher.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if publisher.count() != 1 {
		t.Fatalf("expected one publish, got %d", publisher.count())
	}
	if entries := logs.snapshot(); len(entries) != 0 {
		t.Fatalf("expected publish to succeed on detached context, got logs %+v", entries)
	}
}

func TestNotificationDispatcherLogsFailures(t *testing.T) {
	publisher := &stubNotificationPublisher{fn: func(context.Context, Notification) error {
		return errors.New("topic not found")
	}}
	logs := &logRecorder{}
	dispatcher, err := NewNotificationDispatcher(NotificationDispatcherDeps{Publisher: publisher, Logger: logs.log})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	dispatcher.Notify(context.Background(), Notification{Type: NotificationServiceRequestAssigned, RequestID: "sr_9"})
	if err := dispatcher.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	entries := logs.snapshot()
	if len(entries) != 1 || entries[0].event != "service_request.notify.failed" {
		t.Fatalf("expected failure log, got %+v", entries)
	}
	if entries[0].fields["requestId"] != "sr_9" || entries[0].fields["error"] != "topic not found" {
		t.Fatalf("unexpected log fields %+v", entries[0].fields)
	}
}

func TestNotificationDispatcherRecoversPanics(t *testing.T) {
	publisher := &stubNotificationPublisher{fn: func(context.Context, Notification) error {
		panic("boom")
	}}
	logs := &logRecorder{}
	dispatcher, err := NewNotificationDispatcher(NotificationDispatcherDeps{Publisher: publisher, Logger: logs.log})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	dispatcher.Notify(context.Background(), Notification{Type: NotificationServiceRequestCreated, RequestID: "sr_2"})
	if err := dispatcher.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	entries := logs.snapshot()
	if len(entries) != 1 || entries[0].event != "service_request.notify.panic" {
		t.Fatalf("expected panic log, got %+v", entries)
	}
}

func TestNotificationDispatcherAppliesTimeout(t *testing.T) {
	publisher := &stubNotificationPublisher{fn: func(ctx context.Context, _ Notification) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	logs := &logRecorder{}
	dispatcher, err := NewNotificationDispatcher(NotificationDispatcherDeps{Publisher: publisher, Timeout: 10 * time.Millisecond, Logger: logs.log})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	dispatcher.Notify(context.Background(), Notification{Type: NotificationServiceRequestStatusChanged, RequestID: "sr_3"})
	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := dispatcher.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	entries := logs.snapshot()
	if len(entries) != 1 || entries[0].fields["error"] != context.DeadlineExceeded.Error() {
		t.Fatalf("expected deadline failure log, got %+v", entries)
	}
}

func TestNotificationDispatcherWaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	publisher := &stubNotificationPublisher{fn: func(context.Context, Notification) error {
		<-block
		return nil
	}}
	dispatcher, err := NewNotificationDispatcher(NotificationDispatcherDeps{Publisher: publisher})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	dispatcher.Notify(context.Background(), Notification{Type: NotificationServiceRequestCreated})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := dispatcher.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewNotificationDispatcherRequiresPublisher(t *testing.T) {
	if _, err := NewNotificationDispatcher(NotificationDispatcherDeps{}); err == nil {
		t.Fatalf("expected error without publisher")
	}
}
