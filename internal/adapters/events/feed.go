package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
)

// FeedHub fans auction snapshots out to in-process subscribers. Each watcher
// of an auction holds a buffered channel; slow readers miss intermediate
// snapshots but always receive a later, complete one.
type FeedHub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan *auctions.Snapshot]struct{}
}

// NewFeedHub creates an empty hub
func NewFeedHub() *FeedHub {
	return &FeedHub{
		subs: make(map[uuid.UUID]map[chan *auctions.Snapshot]struct{}),
	}
}

// Subscribe registers a watcher for one auction. The returned channel closes
// when cancel is called or the context ends.
func (h *FeedHub) Subscribe(ctx context.Context, auctionID uuid.UUID) (<-chan *auctions.Snapshot, func()) {
	ch := make(chan *auctions.Snapshot, 1)
	done := make(chan struct{})

	h.mu.Lock()
	if h.subs[auctionID] == nil {
		h.subs[auctionID] = make(map[chan *auctions.Snapshot]struct{})
	}
	h.subs[auctionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			h.mu.Lock()
			if set, ok := h.subs[auctionID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, auctionID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel
}

// Broadcast delivers a snapshot to every watcher of its auction. A watcher
// whose buffer is full has its stale snapshot replaced by this one.
func (h *FeedHub) Broadcast(snapshot *auctions.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[snapshot.Auction.ID] {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
