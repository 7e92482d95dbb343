package api

import (
	"errors"
	"net/http"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/bids"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/settlement"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/wallets"
)

// mapError translates domain errors into HTTP status codes. Unknown errors
// are reported as 500 without leaking internals to the client.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, auctions.ErrAuctionNotFound),
		errors.Is(err, auctions.ErrBidNotFound),
		errors.Is(err, wallets.ErrWalletNotFound):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, auctions.ErrNotAuctionOwner),
		errors.Is(err, settlement.ErrNotWinningBidder):
		return http.StatusForbidden, err.Error()

	case errors.Is(err, auctions.ErrStateConflict),
		errors.Is(err, auctions.ErrBidNotPending),
		errors.Is(err, auctions.ErrAuctionHasBids),
		errors.Is(err, auctions.ErrActiveAuctionExists),
		errors.Is(err, settlement.ErrAuctionNotClosed),
		errors.Is(err, settlement.ErrAlreadySettled),
		errors.Is(err, settlement.ErrNoWinningBid),
		errors.Is(err, bids.ErrAuctionNotOpen),
		errors.Is(err, bids.ErrAuctionEnded):
		return http.StatusConflict, err.Error()

	case errors.Is(err, wallets.ErrInsufficientFunds):
		return http.StatusPaymentRequired, err.Error()

	case errors.Is(err, auctions.ErrQuantityOverCap),
		errors.Is(err, auctions.ErrInvalidQuantity),
		errors.Is(err, auctions.ErrInvalidPrice),
		errors.Is(err, auctions.ErrInvalidDuration),
		errors.Is(err, auctions.ErrMissingField),
		errors.Is(err, bids.ErrBidTooLow),
		errors.Is(err, bids.ErrInvalidBidAmount),
		errors.Is(err, bids.ErrSelfBidNotAllowed),
		errors.Is(err, wallets.ErrInvalidAmount),
		errors.Is(err, wallets.ErrSameAccount),
		errors.Is(err, wallets.ErrInvalidRole):
		return http.StatusBadRequest, err.Error()

	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
