package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/adapters/cache"
	adapterevents "github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/adapters/events"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/bids"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/settlement"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/wallets"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/auth"
)

const defaultPageSize = 20

// Handler exposes the marketplace over HTTP
type Handler struct {
	auctionService *auctions.Service
	bidLedger      *bids.Ledger
	walletLedger   *wallets.Ledger
	settlements    *settlement.Engine
	snapshots      *cache.SnapshotCache
	hub            *adapterevents.FeedHub
	logger         *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	auctionService *auctions.Service,
	bidLedger *bids.Ledger,
	walletLedger *wallets.Ledger,
	settlements *settlement.Engine,
	snapshots *cache.SnapshotCache,
	hub *adapterevents.FeedHub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		auctionService: auctionService,
		bidLedger:      bidLedger,
		walletLedger:   walletLedger,
		settlements:    settlements,
		snapshots:      snapshots,
		hub:            hub,
		logger:         logger,
	}
}

// CreateAuction handles POST /auctions
func (h *Handler) CreateAuction(c *gin.Context) {
	callerID, role, ok := h.caller(c)
	if !ok {
		return
	}
	if !h.requireRole(c, role, auth.RoleFarmer) {
		return
	}

	var req CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	auction, err := h.auctionService.CreateAuction(c.Request.Context(), auctions.CreateAuctionCommand{
		FarmerID:             callerID,
		FarmerName:           auth.CallerName(c),
		CropName:             req.CropName,
		Location:             req.Location,
		TotalQuantity:        req.TotalQuantity,
		SellableQuantity:     req.SellableQuantity,
		PredictedYield:       req.PredictedYield,
		StartingPricePerUnit: req.StartingPricePerUnit,
		DurationMinutes:      req.DurationMinutes,
	})
	if err != nil {
		h.respondError(c, "create auction", err)
		return
	}

	c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

// ListAuctions handles GET /auctions
func (h *Handler) ListAuctions(c *gin.Context) {
	limit := queryInt(c, "limit", defaultPageSize)
	offset := queryInt(c, "offset", 0)

	list, err := h.auctionService.ListOpen(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, "list auctions", err)
		return
	}

	resp := make([]AuctionResponse, 0, len(list))
	for _, a := range list {
		resp = append(resp, toAuctionResponse(a))
	}
	c.JSON(http.StatusOK, resp)
}

// ListMyAuctions handles GET /auctions/mine
func (h *Handler) ListMyAuctions(c *gin.Context) {
	callerID, role, ok := h.caller(c)
	if !ok {
		return
	}
	if !h.requireRole(c, role, auth.RoleFarmer) {
		return
	}

	list, err := h.auctionService.ListByFarmer(c.Request.Context(), callerID)
	if err != nil {
		h.respondError(c, "list own auctions", err)
		return
	}

	resp := make([]AuctionResponse, 0, len(list))
	for _, a := range list {
		resp = append(resp, toAuctionResponse(a))
	}
	c.JSON(http.StatusOK, resp)
}

// GetAuction handles GET /auctions/:id. Snapshot reads go through the cache;
// a miss falls back to the database and repopulates it.
func (h *Handler) GetAuction(c *gin.Context) {
	auctionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	snapshot, err := h.loadSnapshot(c.Request.Context(), auctionID)
	if err != nil {
		h.respondError(c, "get auction", err)
		return
	}
	c.JSON(http.StatusOK, toSnapshotResponse(snapshot))
}

// DeleteAuction handles DELETE /auctions/:id
func (h *Handler) DeleteAuction(c *gin.Context) {
	callerID, role, ok := h.caller(c)
	if !ok {
		return
	}
	if !h.requireRole(c, role, auth.RoleFarmer) {
		return
	}
	auctionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	err := h.auctionService.DeleteAuction(c.Request.Context(), auctions.DeleteAuctionCommand{
		AuctionID: auctionID,
		CallerID:  callerID,
	})
	if err != nil {
		h.respondError(c, "delete auction", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CancelAuction handles POST /auctions/:id/cancel
func (h *Handler) CancelAuction(c *gin.Context) {
	callerID, role, ok := h.caller(c)
	if !ok {
		return
	}
	if !h.requireRole(c, role, auth.RoleFarmer) {
		return
	}
	auctionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	err := h.auctionService.CancelAuction(c.Request.Context(), auctions.CancelAuctionCommand{
		AuctionID: auctionID,
		CallerID:  callerID,
	})
	if err != nil {
		h.respondError(c, "cancel auction", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitBid handles POST /auctions/:id/bids
func (h *Handler) SubmitBid(c *gin.Context) {
	callerID, role, ok := h.caller(c)
	if !ok {
		return
	}
	if !h.requireRole(c, role, auth.RoleBuyer) {
		return
	}
	auctionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	bid, err := h.bidLedger.SubmitBid(c.Request.Context(), bids.SubmitBidCommand{
		AuctionID:  auctionID,
		BidderID:   callerID,
		BidderName: auth.CallerName(c),
		Amount:     req.Amount,
	})
	if err != nil {
		h.respondError(c, "submit bid", err)
		return
	}
	c.JSON(http.StatusCreated, toBidResponse(bid))
}

// ListBids handles GET /auctions/:id/bids
func (h *Handler) ListBids(c *gin.Context) {
	auctionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	list, err := h.bidLedger.ListBids(c.Request.Context(), auctionID)
	if err != nil {
		h.respondError(c, "list bids", err)
		return
	}

	resp := make([]BidResponse, 0, len(list))
	for _, b := range list {
		resp = append(resp, toBidResponse(b))
	}
	c.JSON(http.StatusOK, resp)
}

// AcceptBid handles POST /auctions/:id/bids/:bidID/accept
func (h *Handler) AcceptBid(c *gin.Context) {
	callerID, role, ok := h.caller(c)
	if !ok {
		return
	}
	if !h.requireRole(c, role, auth.RoleFarmer) {
		return
	}
	auctionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	bidID, ok := pathUUID(c, "bidID")
	if !ok {
		return
	}

	auction, err := h.auctionService.AcceptBid(c.Request.Context(), auctions.AcceptBidCommand{
		AuctionID: auctionID,
		BidID:     bidID,
		CallerID:  callerID,
	})
	if err != nil {
		h.respondError(c, "accept bid", err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(auction))
}

// RejectBid handles POST /auctions/:id/bids/:bidID/reject
func (h *Handler) RejectBid(c *gin.Context) {
	callerID, role, ok := h.caller(c)
	if !ok {
		return
	}
	if !h.requireRole(c, role, auth.RoleFarmer) {
		return
	}
	auctionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	bidID, ok := pathUUID(c, "bidID")
	if !ok {
		return
	}

	err := h.auctionService.RejectBid(c.Request.Context(), auctions.RejectBidCommand{
		AuctionID: auctionID,
		BidID:     bidID,
		CallerID:  callerID,
	})
	if err != nil {
		h.respondError(c, "reject bid", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Settle handles POST /auctions/:id/settle. Only the winning bidder can pay,
// and paying twice returns a conflict without moving any coins.
func (h *Handler) Settle(c *gin.Context) {
	callerID, role, ok := h.caller(c)
	if !ok {
		return
	}
	if !h.requireRole(c, role, auth.RoleBuyer) {
		return
	}
	auctionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	receipt, err := h.settlements.Settle(c.Request.Context(), settlement.SettleCommand{
		AuctionID: auctionID,
		CallerID:  callerID,
	})
	if err != nil {
		h.respondError(c, "settle auction", err)
		return
	}
	c.JSON(http.StatusOK, toReceiptResponse(receipt))
}

// Watch handles GET /auctions/:id/watch. It streams full snapshots over SSE:
// the current state first, then one event per change. A client that
// reconnects resumes from the initial snapshot, so no update is ever lost
// to a dropped connection.
func (h *Handler) Watch(c *gin.Context) {
	auctionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	updates, cancel := h.hub.Subscribe(ctx, auctionID)
	defer cancel()

	// Initial snapshot after subscribing, so nothing between the read and the
	// subscription can be missed.
	snapshot, err := h.loadSnapshot(ctx, auctionID)
	if err != nil {
		h.respondError(c, "watch auction", err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent("snapshot", toSnapshotResponse(snapshot))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case update, open := <-updates:
			if !open {
				return false
			}
			c.SSEvent("snapshot", toSnapshotResponse(update))
			return true
		}
	})
}

// GetWallet handles GET /wallet
func (h *Handler) GetWallet(c *gin.Context) {
	callerID, role, ok := h.caller(c)
	if !ok {
		return
	}

	account := wallets.Account{UserID: callerID, Role: wallets.Role(role)}
	balance, err := h.walletLedger.GetBalance(c.Request.Context(), account)
	if err != nil {
		h.respondError(c, "get wallet", err)
		return
	}
	c.JSON(http.StatusOK, WalletResponse{
		UserID:  callerID,
		Role:    string(role),
		Balance: balance,
	})
}

// TopUpWallet handles POST /wallet/topup
func (h *Handler) TopUpWallet(c *gin.Context) {
	callerID, role, ok := h.caller(c)
	if !ok {
		return
	}

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	account := wallets.Account{UserID: callerID, Role: wallets.Role(role)}
	if err := h.walletLedger.Credit(c.Request.Context(), account, req.Amount); err != nil {
		h.respondError(c, "top up wallet", err)
		return
	}

	balance, err := h.walletLedger.GetBalance(c.Request.Context(), account)
	if err != nil {
		h.respondError(c, "top up wallet", err)
		return
	}
	c.JSON(http.StatusOK, WalletResponse{
		UserID:  callerID,
		Role:    string(role),
		Balance: balance,
	})
}

// loadSnapshot reads through the snapshot cache
func (h *Handler) loadSnapshot(ctx context.Context, auctionID uuid.UUID) (*auctions.Snapshot, error) {
	snapshot, err := h.snapshots.Get(ctx, auctionID)
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		h.logger.Warn("Snapshot cache read failed", "auction_id", auctionID, "error", err)
	}

	snapshot, err = h.auctionService.GetSnapshot(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if cacheErr := h.snapshots.Set(ctx, snapshot); cacheErr != nil {
		h.logger.Warn("Snapshot cache write failed", "auction_id", auctionID, "error", cacheErr)
	}
	return snapshot, nil
}

func (h *Handler) caller(c *gin.Context) (uuid.UUID, auth.Role, bool) {
	callerID, ok := auth.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return uuid.Nil, "", false
	}
	role, ok := auth.CallerRole(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller role"})
		return uuid.Nil, "", false
	}
	return callerID, role, true
}

func (h *Handler) requireRole(c *gin.Context, got, want auth.Role) bool {
	if got != want {
		c.JSON(http.StatusForbidden, gin.H{"error": "operation not permitted for role " + string(got)})
		return false
	}
	return true
}

func (h *Handler) respondError(c *gin.Context, op string, err error) {
	status, message := mapError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "error", err)
	}
	c.JSON(status, gin.H{"error": message})
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
