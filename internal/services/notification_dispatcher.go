package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const defaultNotificationTimeout = 10 * time.Second

// NotificationDispatcherDeps bundles collaborators for the asynchronous notification dispatcher.
type NotificationDispatcherDeps struct {
	Publisher NotificationPublisher
	Timeout   time.Duration
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// NotificationDispatcher publishes notifications on background goroutines. Failures are logged and never
// reach the caller.
type NotificationDispatcher struct {
	publisher NotificationPublisher
	timeout   time.Duration
	logger    func(context.Context, string, map[string]any)

	wg sync.WaitGroup
}

var _ Notifier = (*NotificationDispatcher)(nil)

// NewNotificationDispatcher constructs a dispatcher around the publisher.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (*NotificationDispatcher, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification dispatcher: publisher is required")
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &NotificationDispatcher{
		publisher: deps.Publisher,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Notify returns immediately. The publish runs on a context detached from the caller's cancellation so a
// finished HTTP request does not abort delivery.
func (d *NotificationDispatcher) Notify(ctx context.Context, notification Notification) {
	if d == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger(detached, "service_request.notify.panic", map[string]any{
					"type":      notification.Type,
					"requestId": notification.RequestID,
					"panic":     fmt.Sprint(r),
				})
			}
		}()

		publishCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		if err := d.publisher.PublishNotification(publishCtx, notification); err != nil {
			d.logger(detached, "service_request.notify.failed", map[string]any{
				"type":      notification.Type,
				"requestId": notification.RequestID,
				"error":     err.Error(),
			})
		}
	}()
}

// Wait blocks until in-flight notifications finish or ctx is done.
func (d *NotificationDispatcher) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
