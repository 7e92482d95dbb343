package auctions

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAuction_Reserve(t *testing.T) {
	auction := &Auction{
		StartingPricePerUnit: 700,
		SellableQuantity:     10,
	}
	assert.Equal(t, int64(7000), auction.Reserve())
}

func TestAuction_CurrentThreshold(t *testing.T) {
	tests := []struct {
		name       string
		highestBid int64
		want       int64
	}{
		{
			name:       "no bids yet: threshold is the reserve",
			highestBid: 0,
			want:       7000,
		},
		{
			name:       "highest bid below reserve never lowers the threshold",
			highestBid: 5000,
			want:       7000,
		},
		{
			name:       "highest bid above reserve wins",
			highestBid: 9000,
			want:       9000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auction := &Auction{
				StartingPricePerUnit: 700,
				SellableQuantity:     10,
				HighestBid:           tt.highestBid,
			}
			assert.Equal(t, tt.want, auction.CurrentThreshold())
		})
	}
}

func TestAuction_HasEnded(t *testing.T) {
	now := time.Now()
	auction := &Auction{EndsAt: now}

	assert.False(t, auction.HasEnded(now.Add(-time.Second)))
	assert.False(t, auction.HasEnded(now))
	assert.True(t, auction.HasEnded(now.Add(time.Second)))
}

func TestAuction_IsOwnedBy(t *testing.T) {
	farmerID := uuid.New()
	auction := &Auction{FarmerID: farmerID}

	assert.True(t, auction.IsOwnedBy(farmerID))
	assert.False(t, auction.IsOwnedBy(uuid.New()))
}

func TestEventType_IsValid(t *testing.T) {
	valid := []EventType{
		EventTypeAuctionCreated,
		EventTypeBidPlaced,
		EventTypeBidRejected,
		EventTypeAuctionClosed,
		EventTypeAuctionCancelled,
		EventTypeAuctionSettled,
	}
	for _, et := range valid {
		assert.True(t, et.IsValid(), "expected %s to be valid", et)
	}

	assert.False(t, EventType("auction.exploded").IsValid())
	assert.False(t, EventType("").IsValid())
}

func TestEventPayloadRoundTrip(t *testing.T) {
	payload := EventPayload{
		AuctionID:  uuid.New(),
		BidID:      uuid.New(),
		Amount:     8200,
		OccurredAt: time.Now().UTC().Truncate(time.Second),
	}

	body, err := MarshalEventPayload(payload)
	assert.NoError(t, err)

	decoded, err := UnmarshalEventPayload(body)
	assert.NoError(t, err)
	assert.Equal(t, payload.AuctionID, decoded.AuctionID)
	assert.Equal(t, payload.BidID, decoded.BidID)
	assert.Equal(t, payload.Amount, decoded.Amount)
}
