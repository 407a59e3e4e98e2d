// Package events carries domain events from the services to Kafka and to
// connected websocket clients.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Type names a domain event.
type Type string

const (
	OrderCreated        Type = "order.created"
	OrderStatusChanged  Type = "order.status_changed"
	RefundSubmitted     Type = "refund.submitted"
	RefundSellerReplied Type = "refund.seller_replied"
	RefundDecided       Type = "refund.decided"
	RefundEscalated     Type = "refund.escalated"
	RefundMessagePosted Type = "refund.message_posted"
	WithdrawalRequested Type = "seller.withdrawal_requested"
)

// AdminChannel reaches every connected admin.
const AdminChannel = "admins"

// UserChannel is the realtime channel of one user.
func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// Event is one domain fact. Key orders events of the same aggregate on a
// Kafka partition; Channels lists the realtime audiences.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	Key        string    `json:"key"`
	Channels   []string  `json:"-"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

// New builds an event stamped with the current time.
func New(eventType Type, key string, data any, channels ...string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		Key:        key,
		Channels:   channels,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Fanout publishes every event to all of its publishers and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var err error
	for _, p := range f {
		if p == nil {
			continue
		}
		err = multierr.Append(err, p.Publish(ctx, event))
	}
	return err
}
