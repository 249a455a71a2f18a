package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/apartment-board/internal/model"
)

// Deliverer sends a notification; the notify.Dispatcher satisfies it.
type Deliverer interface {
	Notify(ctx context.Context, l *model.Listing, kind model.NotificationKind) error
}

// Consumer reads notification events and passes them to a Deliverer.
type Consumer struct {
	url        string
	queue      string
	deliverer  Deliverer
	log        *zap.Logger
	maxBackoff time.Duration
}

// NewConsumer returns a Consumer for the broker at url.
func NewConsumer(url, queue string, d Deliverer, log *zap.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueueName
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{url: url, queue: queue, deliverer: d, log: log.Named("consumer"), maxBackoff: 30 * time.Second}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled. It always returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < c.maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := declare(ch, c.queue); err != nil {
		return err
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(ctx, d.Body); err != nil {
				c.log.Error("handle message failed", zap.String("message_id", d.MessageId), zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, body []byte) error {
	var ev ListingNotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	l, err := ev.Listing.Listing()
	if err != nil {
		return fmt.Errorf("decode listing: %w", err)
	}
	if err := c.deliverer.Notify(ctx, l, ev.Kind); err != nil {
		return err
	}
	c.log.Debug("notification delivered", zap.String("message_id", ev.MessageID), zap.Uint64("listing_id", l.ID))
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
