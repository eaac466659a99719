package jobs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/autox/api/internal/services"
)

const (
	attrEventType = "event_type"
	attrRequestID = "request_id"
	attrSignature = "signature"
)

// NotificationMessage is the JSON body published for every service request notification.
type NotificationMessage struct {
	Type       string               `json:"type"`
	RequestID  string               `json:"requestId"`
	Recipient  *NotificationContact `json:"recipient,omitempty"`
	Payload    map[string]any       `json:"payload,omitempty"`
	OccurredAt time.Time            `json:"occurredAt"`
}

// NotificationContact is the requester contact the downstream sender delivers to.
type NotificationContact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// PubSubNotificationPublisher publishes service request notifications to a Pub/Sub topic. When a signing key
// is configured each message carries an HMAC-SHA256 signature of its body.
type PubSubNotificationPublisher struct {
	topic      *pubsub.Topic
	signingKey []byte
	marshal    func(any) ([]byte, error)
}

// NewPubSubNotificationPublisher constructs a Pub/Sub backed notification publisher.
func NewPubSubNotificationPublisher(topic *pubsub.Topic, signingKey []byte) (*PubSubNotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	return &PubSubNotificationPublisher{
		topic:      topic,
		signingKey: append([]byte(nil), signingKey...),
		marshal:    json.Marshal,
	}, nil
}

var _ services.NotificationPublisher = (*PubSubNotificationPublisher)(nil)

// PublishNotification sends the notification and blocks until the server acknowledges it.
func (p *PubSubNotificationPublisher) PublishNotification(ctx context.Context, notification services.Notification) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notification publisher: not initialised")
	}

	message := NotificationMessage{
		Type:       notification.Type,
		RequestID:  notification.RequestID,
		Payload:    notification.Payload,
		OccurredAt: notification.OccurredAt.UTC(),
	}
	contact := notification.RecipientContact
	if strings.TrimSpace(contact.Email) != "" || strings.TrimSpace(contact.Phone) != "" {
		message.Recipient = &NotificationContact{Name: contact.Name, Phone: contact.Phone, Email: contact.Email}
	}

	data, err := p.marshal(message)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, attrEventType, notification.Type)
	setAttr(attrs, attrRequestID, notification.RequestID)
	if len(p.signingKey) > 0 {
		attrs[attrSignature] = Sign(p.signingKey, data)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Sign returns the hex encoded HMAC-SHA256 of data.
func Sign(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the HMAC-SHA256 of data under key.
func VerifySignature(key, data []byte, signature string) bool {
	decoded, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hmac.Equal(decoded, mac.Sum(nil))
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
