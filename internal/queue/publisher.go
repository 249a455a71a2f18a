package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/iliyamo/apartment-board/internal/model"
)

// Publisher sends listing notifications to a durable queue. It satisfies
// the service Notifier interface, so the lifecycle service can hand off
// delivery without knowing about the broker.
type Publisher struct {
	url   string
	queue string
	log   *zap.Logger
	now   func() time.Time
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, queue: queue, log: log.Named("publisher"), now: time.Now}
}

// Notify publishes an event for l. Errors are logged and returned so the
// caller can report them without failing the request.
func (p *Publisher) Notify(ctx context.Context, l *model.Listing, kind model.NotificationKind) error {
	return p.Publish(ctx, p.newEvent(l, kind))
}

func (p *Publisher) newEvent(l *model.Listing, kind model.NotificationKind) ListingNotificationEvent {
	return ListingNotificationEvent{
		MessageID:  ksuid.New().String(),
		Kind:       kind,
		Listing:    snapshotOf(l),
		OccurredAt: p.now().UTC().Format(time.RFC3339),
	}
}

// Publish dials the broker, declares the queue and publishes ev as a
// persistent JSON message. A connection is opened per call.
func (p *Publisher) Publish(ctx context.Context, ev ListingNotificationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn("dial failed", zap.Error(err))
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("channel open failed", zap.Error(err))
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch, p.queue); err != nil {
		p.log.Warn("queue declare failed", zap.String("queue", p.queue), zap.Error(err))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.MessageID,
		Timestamp:    p.now().UTC(),
		Type:         string(ev.Kind),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.log.Warn("publish failed", zap.String("message_id", ev.MessageID), zap.Error(err))
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	p.log.Debug("event published",
		zap.String("message_id", ev.MessageID),
		zap.String("kind", string(ev.Kind)),
		zap.Uint64("listing_id", ev.Listing.ID))
	return nil
}

// declare is idempotent; durable so messages survive broker restarts.
func declare(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return q, fmt.Errorf("queue declare: %w", err)
	}
	return q, nil
}
