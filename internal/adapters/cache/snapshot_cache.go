package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
)

// ErrCacheMiss is returned when no snapshot is cached for the auction
var ErrCacheMiss = errors.New("snapshot not in cache")

const snapshotKeyPrefix = "auction:snapshot:"

// SnapshotCache keeps serialized auction snapshots in Redis. Entries are
// invalidated by the event consumer whenever an auction changes, so stale
// reads are bounded by event delivery latency.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache creates a snapshot cache with the given entry TTL
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

// Get retrieves a cached snapshot, or ErrCacheMiss
func (c *SnapshotCache) Get(ctx context.Context, auctionID uuid.UUID) (*auctions.Snapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey(auctionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read snapshot from cache: %w", err)
	}

	var snapshot auctions.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode cached snapshot: %w", err)
	}
	return &snapshot, nil
}

// Set stores a snapshot with the configured TTL
func (c *SnapshotCache) Set(ctx context.Context, snapshot *auctions.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey(snapshot.Auction.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot to cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached snapshot for an auction
func (c *SnapshotCache) Invalidate(ctx context.Context, auctionID uuid.UUID) error {
	if err := c.client.Del(ctx, snapshotKey(auctionID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate snapshot: %w", err)
	}
	return nil
}

func snapshotKey(auctionID uuid.UUID) string {
	return snapshotKeyPrefix + auctionID.String()
}
