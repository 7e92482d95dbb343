package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/adapters/cache"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
)

// SnapshotSource loads the current state of an auction
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, auctionID uuid.UUID) (*auctions.Snapshot, error)
}

// FeedConsumer consumes auction events and refreshes the live feed: it drops
// the stale cached snapshot, loads a fresh one, and broadcasts it to watchers.
type FeedConsumer struct {
	conn      *amqp.Connection
	source    SnapshotSource
	snapshots *cache.SnapshotCache
	hub       *FeedHub
	logger    *slog.Logger
}

// NewFeedConsumer creates a new feed consumer
func NewFeedConsumer(
	conn *amqp.Connection,
	source SnapshotSource,
	snapshots *cache.SnapshotCache,
	hub *FeedHub,
	logger *slog.Logger,
) *FeedConsumer {
	return &FeedConsumer{
		conn:      conn,
		source:    source,
		snapshots: snapshots,
		hub:       hub,
		logger:    logger,
	}
}

// Run starts the consumer loop
func (c *FeedConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if setupErr := c.setupRabbitMQ(ch); setupErr != nil {
		return fmt.Errorf("failed to setup rabbitmq: %w", setupErr)
	}

	msgs, err := ch.Consume(
		"auction_feed", // queue
		"",             // consumer tag
		false,          // auto-ack
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Waiting for auction events...")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("channel closed")
			}

			payload, err := auctions.UnmarshalEventPayload(d.Body)
			if err != nil {
				c.logger.Error("Failed to unmarshal event", "error", err)
				// Unparseable now means unparseable forever; drop it.
				if nackErr := d.Nack(false, false); nackErr != nil {
					c.logger.Error("Failed to Nack message", "error", nackErr)
				}
				continue
			}

			if err := c.refresh(ctx, payload.AuctionID); err != nil {
				c.logger.Error("Failed to refresh feed", "auction_id", payload.AuctionID, "error", err)
				// Nack(requeue) so the refresh is retried
				if nackErr := d.Nack(false, true); nackErr != nil {
					c.logger.Error("Failed to Nack message (requeue)", "error", nackErr)
				}
			} else {
				if ackErr := d.Ack(false); ackErr != nil {
					c.logger.Error("Failed to Ack message", "error", ackErr)
				}
			}
		}
	}
}

// refresh reloads the auction snapshot and pushes it to cache and watchers
func (c *FeedConsumer) refresh(ctx context.Context, auctionID uuid.UUID) error {
	if err := c.snapshots.Invalidate(ctx, auctionID); err != nil {
		c.logger.Warn("Failed to invalidate cached snapshot", "auction_id", auctionID, "error", err)
	}

	snapshot, err := c.source.GetSnapshot(ctx, auctionID)
	if err != nil {
		// The auction may have been deleted between the event and this read;
		// the cache is already invalidated, nothing left to broadcast.
		if errors.Is(err, auctions.ErrAuctionNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if err := c.snapshots.Set(ctx, snapshot); err != nil {
		c.logger.Warn("Failed to cache snapshot", "auction_id", auctionID, "error", err)
	}

	c.hub.Broadcast(snapshot)
	return nil
}

func (c *FeedConsumer) setupRabbitMQ(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		"auction.events", // name
		"topic",          // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // args
	)
	if err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		"auction_feed", // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return err
	}

	// Every auction event changes what watchers should see
	return ch.QueueBind(
		q.Name,           // queue name
		"#",              // routing key
		"auction.events", // exchange
		false,
		nil,
	)
}
