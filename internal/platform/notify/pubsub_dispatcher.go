package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/stampforge/orders-api/internal/services"
)

// StatusChangeMessage is the JSON payload published for a committed transition.
type StatusChangeMessage struct {
	OrderID        string    `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	UserID         string    `json:"userId,omitempty"`
	ContactName    string    `json:"contactName,omitempty"`
	ContactEmail   string    `json:"contactEmail,omitempty"`
	PreviousStatus string    `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	Reason         string    `json:"reason,omitempty"`
	ActorID        string    `json:"actorId,omitempty"`
	Automatic      bool      `json:"automatic"`
	Problematic    bool      `json:"problematic"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// PubSubDispatcher publishes status change notifications to Pub/Sub. The
// customer topic feeds downstream customer messaging; the alert topic feeds
// internal operations tooling and only receives problematic transitions.
type PubSubDispatcher struct {
	customerTopic *pubsub.Topic
	alertTopic    *pubsub.Topic
	marshal       func(any) ([]byte, error)
}

// NewPubSubDispatcher constructs a dispatcher over the provided topics. Either
// topic may be nil, which disables that channel.
func NewPubSubDispatcher(customerTopic, alertTopic *pubsub.Topic) *PubSubDispatcher {
	return &PubSubDispatcher{
		customerTopic: customerTopic,
		alertTopic:    alertTopic,
		marshal:       json.Marshal,
	}
}

// DispatchStatusChange attempts each applicable channel independently and
// folds failures into the outcome.
func (d *PubSubDispatcher) DispatchStatusChange(ctx context.Context, n services.StatusChangeNotification) services.NotificationOutcome {
	var outcome services.NotificationOutcome

	if d == nil {
		return outcome
	}

	if d.customerTopic != nil && n.NotifyCustomer && n.ContactEmail != "" {
		if err := d.publish(ctx, d.customerTopic, n, "customer"); err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("customer: %v", err))
		} else {
			outcome.CustomerSent = true
		}
	}

	if d.alertTopic != nil && n.Problematic {
		if err := d.publish(ctx, d.alertTopic, n, "internal-alert"); err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("internal-alert: %v", err))
		} else {
			outcome.InternalAlertSent = true
		}
	}

	return outcome
}

func (d *PubSubDispatcher) publish(ctx context.Context, topic *pubsub.Topic, n services.StatusChangeNotification, channel string) error {
	payload := StatusChangeMessage{
		OrderID:        n.OrderID,
		OrderNumber:    n.OrderNumber,
		UserID:         n.UserID,
		ContactName:    n.ContactName,
		ContactEmail:   n.ContactEmail,
		PreviousStatus: string(n.PreviousStatus),
		NewStatus:      string(n.NewStatus),
		Reason:         n.Reason,
		ActorID:        n.ActorID,
		Automatic:      n.Automatic,
		Problematic:    n.Problematic,
		OccurredAt:     n.OccurredAt,
	}
	// The alert payload omits customer contact details.
	if channel == "internal-alert" {
		payload.ContactName = ""
		payload.ContactEmail = ""
	}

	data, err := d.marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal status change message: %w", err)
	}

	attrs := map[string]string{
		"channel":        channel,
		"orderId":        n.OrderID,
		"orderNumber":    n.OrderNumber,
		"previousStatus": string(n.PreviousStatus),
		"newStatus":      string(n.NewStatus),
	}
	if n.Problematic {
		attrs["problematic"] = "true"
	}
	if n.Automatic {
		attrs["automatic"] = "true"
	}

	result := topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", topic.ID(), err)
	}
	return nil
}

var _ services.NotificationDispatcher = (*PubSubDispatcher)(nil)
