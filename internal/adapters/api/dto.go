package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/settlement"
)

// CreateAuctionRequest is the payload for POST /auctions
type CreateAuctionRequest struct {
	CropName             string `json:"crop_name" binding:"required"`
	Location             string `json:"location" binding:"required"`
	TotalQuantity        int64  `json:"total_quantity" binding:"required"`
	SellableQuantity     int64  `json:"sellable_quantity" binding:"required"`
	PredictedYield       int64  `json:"predicted_yield" binding:"required"`
	StartingPricePerUnit int64  `json:"starting_price_per_unit" binding:"required"`
	DurationMinutes      int    `json:"duration_minutes" binding:"required"`
}

// SubmitBidRequest is the payload for POST /auctions/:id/bids
type SubmitBidRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// TopUpRequest is the payload for POST /wallet/topup
type TopUpRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// AuctionResponse is the wire shape of one auction
type AuctionResponse struct {
	ID                   uuid.UUID  `json:"id"`
	FarmerID             uuid.UUID  `json:"farmer_id"`
	FarmerName           string     `json:"farmer_name"`
	CropName             string     `json:"crop_name"`
	Location             string     `json:"location"`
	TotalQuantity        int64      `json:"total_quantity"`
	SellableQuantity     int64      `json:"sellable_quantity"`
	StartingPricePerUnit int64      `json:"starting_price_per_unit"`
	TotalPrice           int64      `json:"total_price"`
	DurationMinutes      int        `json:"duration_minutes"`
	Status               string     `json:"status"`
	HighestBid           int64      `json:"highest_bid"`
	WinningBidID         *uuid.UUID `json:"winning_bid_id,omitempty"`
	PaymentStatus        string     `json:"payment_status"`
	PaymentAt            *time.Time `json:"payment_at,omitempty"`
	EndsAt               time.Time  `json:"ends_at"`
	CreatedAt            time.Time  `json:"created_at"`
}

// BidResponse is the wire shape of one bid
type BidResponse struct {
	ID         uuid.UUID `json:"id"`
	AuctionID  uuid.UUID `json:"auction_id"`
	BidderID   uuid.UUID `json:"bidder_id"`
	BidderName string    `json:"bidder_name"`
	Amount     int64     `json:"amount"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// SnapshotResponse is the wire shape of a full auction snapshot
type SnapshotResponse struct {
	Auction AuctionResponse `json:"auction"`
	Bids    []BidResponse   `json:"bids"`
}

// WalletResponse is the wire shape of a wallet balance
type WalletResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	Role    string    `json:"role"`
	Balance int64     `json:"balance"`
}

// ReceiptResponse is the wire shape of a settlement receipt
type ReceiptResponse struct {
	AuctionID uuid.UUID `json:"auction_id"`
	BidID     uuid.UUID `json:"bid_id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	FarmerID  uuid.UUID `json:"farmer_id"`
	Amount    int64     `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
}

func toAuctionResponse(a *auctions.Auction) AuctionResponse {
	return AuctionResponse{
		ID:                   a.ID,
		FarmerID:             a.FarmerID,
		FarmerName:           a.FarmerName,
		CropName:             a.CropName,
		Location:             a.Location,
		TotalQuantity:        a.TotalQuantity,
		SellableQuantity:     a.SellableQuantity,
		StartingPricePerUnit: a.StartingPricePerUnit,
		TotalPrice:           a.TotalPrice,
		DurationMinutes:      a.DurationMinutes,
		Status:               string(a.Status),
		HighestBid:           a.HighestBid,
		WinningBidID:         a.WinningBidID,
		PaymentStatus:        string(a.PaymentStatus),
		PaymentAt:            a.PaymentAt,
		EndsAt:               a.EndsAt,
		CreatedAt:            a.CreatedAt,
	}
}

func toBidResponse(b *auctions.Bid) BidResponse {
	return BidResponse{
		ID:         b.ID,
		AuctionID:  b.AuctionID,
		BidderID:   b.BidderID,
		BidderName: b.BidderName,
		Amount:     b.Amount,
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt,
	}
}

func toSnapshotResponse(s *auctions.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		Auction: toAuctionResponse(&s.Auction),
		Bids:    make([]BidResponse, 0, len(s.Bids)),
	}
	for i := range s.Bids {
		resp.Bids = append(resp.Bids, toBidResponse(&s.Bids[i]))
	}
	return resp
}

func toReceiptResponse(r *settlement.Receipt) ReceiptResponse {
	return ReceiptResponse{
		AuctionID: r.AuctionID,
		BidID:     r.BidID,
		BuyerID:   r.BuyerID,
		FarmerID:  r.FarmerID,
		Amount:    r.Amount,
		PaidAt:    r.PaidAt,
	}
}
