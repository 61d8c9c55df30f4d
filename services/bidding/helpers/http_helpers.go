package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"bidding-engine/internal/biddingerrors"
	"bidding-engine/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrBidNotFound):
		return http.StatusNotFound, "bid not found"
	case errors.Is(err, biddingerrors.ErrAuctionExists):
		return http.StatusConflict, "auction already exists"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "invalid auction details"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrSelfOutbid):
		return http.StatusConflict, "bidder already holds the high bid"
	case errors.Is(err, biddingerrors.ErrAuctionNotOpen):
		return http.StatusConflict, "auction not open"
	case errors.Is(err, biddingerrors.ErrTooLate):
		return http.StatusConflict, "too late to cancel bid"
	case errors.Is(err, biddingerrors.ErrNotBidOwner):
		return http.StatusForbidden, "bid belongs to another bidder"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusOK, "no bids found for auction"
	case errors.Is(err, biddingerrors.ErrUserNoBids):
		return http.StatusOK, "no auctions found for user"
	case errors.Is(err, biddingerrors.ErrRegistryFull):
		return http.StatusServiceUnavailable, "auction capacity reached"
	case errors.Is(err, biddingerrors.ErrReplayTruncated):
		return http.StatusGone, "requested events are no longer available"
	case errors.Is(err, biddingerrors.ErrIntegrity):
		return http.StatusInternalServerError, "auction integrity failure"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
