package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/vickym250/jnschool/internal/amqp"
	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/metrics"
)

// EventPublisher delivers ledger events to downstream consumers.
// *amqp.Client implements it.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// Options carries the optional collaborators shared by the services.
type Options struct {
	Events  EventPublisher
	Metrics *metrics.Metrics
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (o Options) now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now()
}

// publish never fails the caller: the ledger write has already succeeded
// and the register can be rebuilt from the store.
func (o Options) publish(ctx context.Context, t amqp.EventType, studentID, session, month string) {
	if o.Events == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping ledger event",
			log.NewFields().WithEvent(string(t), studentID, session, month).ToSlice()...)
		return
	}
	err := o.Events.PublishLedgerEvent(ctx, amqp.NewLedgerEvent(t, studentID, session, month))
	o.Metrics.EventPublished(string(t), err)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event", log.NewFields().
			WithComponent(log.ComponentAMQP).
			WithEvent(string(t), studentID, session, month).
			WithError(err).
			ToSlice()...)
	}
}
