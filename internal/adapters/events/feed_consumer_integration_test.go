//go:build integration

package events_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/adapters/cache"
	infradb "github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/adapters/database"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/adapters/events"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/testhelpers"
)

// countingSource wraps a snapshot source and records how often each auction
// is loaded, so the test can tell a single delivery from a redelivery loop.
type countingSource struct {
	inner events.SnapshotSource
	mu    sync.Mutex
	calls map[uuid.UUID]int
}

func newCountingSource(inner events.SnapshotSource) *countingSource {
	return &countingSource{inner: inner, calls: make(map[uuid.UUID]int)}
}

func (s *countingSource) GetSnapshot(ctx context.Context, auctionID uuid.UUID) (*auctions.Snapshot, error) {
	s.mu.Lock()
	s.calls[auctionID]++
	s.mu.Unlock()
	return s.inner.GetSnapshot(ctx, auctionID)
}

func (s *countingSource) count(auctionID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[auctionID]
}

func seedOpenAuction(t *testing.T, pool *pgxpool.Pool, highestBid int64) uuid.UUID {
	t.Helper()
	auctionID := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO auctions (id, farmer_id, farmer_name, crop_name, location, total_quantity,
			sellable_quantity, starting_price_per_unit, total_price, duration_minutes,
			status, highest_bid, ends_at)
		VALUES ($1, $2, 'Akbar', 'Wheat', 'Okara', 100, 10, 700, 7000, 5, 'open', $3, NOW() + INTERVAL '5 minutes')
	`, auctionID, uuid.New(), highestBid)
	require.NoError(t, err, "failed to seed test auction")
	return auctionID
}

func publishEvent(t *testing.T, ch *amqp.Channel, auctionID uuid.UUID) {
	t.Helper()
	body, err := auctions.MarshalEventPayload(auctions.EventPayload{
		AuctionID:  auctionID,
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)

	err = ch.PublishWithContext(context.Background(),
		"auction.events", // exchange
		"bid.placed",     // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	require.NoError(t, err)
}

func TestFeedConsumerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// 1. Start RabbitMQ and Redis containers
	rabbitmqContainer, err := rabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
		rabbitmq.WithAdminPassword("password"),
	)
	require.NoError(t, err)
	defer func() {
		if termErr := rabbitmqContainer.Terminate(ctx); termErr != nil {
			t.Fatalf("failed to terminate container: %s", termErr)
		}
	}()

	amqpURL, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	defer func() {
		if termErr := redisContainer.Terminate(ctx); termErr != nil {
			t.Fatalf("failed to terminate container: %s", termErr)
		}
	}()

	redisURL, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	// 2. Setup Postgres
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()
	pool := testDB.Pool

	// 3. Setup Dependencies
	auctionRepo := infradb.NewPostgresAuctionRepository(pool)
	source := newCountingSource(auctionRepo)
	snapshots := cache.NewSnapshotCache(redisClient, time.Minute)
	hub := events.NewFeedHub()

	// 4. Setup Consumer
	conn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	defer conn.Close()

	consumer := events.NewFeedConsumer(conn, source, snapshots, hub, logger)

	// 5. Run Consumer in Background
	ctxConsumer, cancelConsumer := context.WithCancel(ctx)
	errChan := make(chan error, 1)
	go func() {
		errChan <- consumer.Run(ctxConsumer)
	}()
	defer cancelConsumer()

	// Wait for consumer to declare its queue and start consuming
	time.Sleep(1 * time.Second)

	publishConn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	defer publishConn.Close()

	ch, err := publishConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	// 6. Seed an auction and a stale cached snapshot for it
	auctionID := seedOpenAuction(t, pool, 7500)
	staleSnapshot := &auctions.Snapshot{
		Auction: auctions.Auction{ID: auctionID, HighestBid: 1},
		Bids:    []auctions.Bid{},
	}
	require.NoError(t, snapshots.Set(ctx, staleSnapshot))

	updates, cancelSub := hub.Subscribe(ctx, auctionID)
	defer cancelSub()

	// 7. Publish an event; the consumer must drop the stale entry, reload
	// from the database, recache and broadcast
	publishEvent(t, ch, auctionID)

	select {
	case snapshot := <-updates:
		assert.Equal(t, int64(7500), snapshot.Auction.HighestBid)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a broadcast snapshot")
	}

	require.Eventually(t, func() bool {
		cached, getErr := snapshots.Get(ctx, auctionID)
		return getErr == nil && cached.Auction.HighestBid == 7500
	}, 5*time.Second, 100*time.Millisecond, "cache should hold the fresh snapshot")

	// 8. An event for an auction that no longer exists is terminal: it is
	// acked after one load attempt instead of being requeued forever
	goneID := uuid.New()
	publishEvent(t, ch, goneID)

	require.Eventually(t, func() bool {
		return source.count(goneID) == 1
	}, 5*time.Second, 100*time.Millisecond)

	time.Sleep(1 * time.Second) // Give a redelivery loop time to show, if there were one
	assert.Equal(t, 1, source.count(goneID))

	_, err = snapshots.Get(ctx, goneID)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	// 9. The consumer is still healthy after the terminal event
	_, err = pool.Exec(ctx, `UPDATE auctions SET highest_bid = 8000 WHERE id = $1`, auctionID)
	require.NoError(t, err)
	publishEvent(t, ch, auctionID)

	select {
	case snapshot := <-updates:
		assert.Equal(t, int64(8000), snapshot.Auction.HighestBid)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a broadcast snapshot after the terminal event")
	}
}
