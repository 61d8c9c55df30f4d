package handler

//go:generate mockgen -source=bidding_handler.go -destination=mock_handler.go -package=handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bidding-engine/internal/biddingerrors"
	bidding "bidding-engine/internal/biddingService"
	"bidding-engine/internal/broadcast"
	"bidding-engine/internal/models"
	"bidding-engine/services/bidding/helpers"
	"bidding-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BiddingServiceInterface interface {
	CreateAuction(ctx context.Context, in bidding.AuctionInput) (models.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
	OpenAuction(ctx context.Context, auctionID string) (models.Auction, error)
	CloseAuction(ctx context.Context, auctionID, reason string) (models.Auction, error)
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (models.BidOutcome, error)
	CancelBid(ctx context.Context, auctionID string, bidID uint64, requesterID string) (models.BidOutcome, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error)
	GetAuctionsByUser(ctx context.Context, userID string) ([]models.Auction, error)
	Subscribe(ctx context.Context, auctionID string, fromSequence *uint64) (*broadcast.Subscription, error)
	Unsubscribe(sub *broadcast.Subscription)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

func failRequest(c *gin.Context, handlerName string, err error, ctx map[string]any) {
	status, message := helpers.MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
	ctx["handler"] = handlerName
	ctx["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", ctx)
		return
	}
	utils.Warn(handlerName+": request failed", ctx)
}

// CreateAuctionHandler handles POST /v1/auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	in := bidding.AuctionInput{
		ID:           req.AuctionID,
		Title:        req.Title,
		ReservePrice: req.ReservePrice,
		MinIncrement: req.MinIncrement,
		EndsAt:       req.EndsAt,
	}
	if req.StartsAt != nil {
		in.StartsAt = *req.StartsAt
	}

	auction, err := h.service.CreateAuction(c.Request.Context(), in)
	if err != nil {
		failRequest(c, "CreateAuctionHandler", err, map[string]any{"auction_id": req.AuctionID, "title": req.Title})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToAuctionResponse(auction), "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": auction.ID,
		"status":     auction.Status,
		"ends_at":    auction.EndsAt.UTC().Format(time.RFC3339),
	})
}

// GetAuctionHandler handles GET /v1/auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		failRequest(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(auction), "auction retrieved successfully")
}

// GetWinningBidHandler handles GET /v1/auctions/:auction_id/winner
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		failRequest(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	if !auction.HasBid() {
		utils.JSONError(c, http.StatusNotFound, biddingerrors.ErrNoBids, "no winning bid found")
		utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
		return
	}

	top := auction.Standing[len(auction.Standing)-1]
	message := "leading bid retrieved successfully"
	if auction.Status == models.StatusClosed {
		message = "winning bid retrieved successfully"
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(top), message)
}

// OpenAuctionHandler handles POST /v1/auctions/:auction_id/open
func (h *BiddingHandler) OpenAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.OpenAuction(c.Request.Context(), auctionID)
	if err != nil {
		failRequest(c, "OpenAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(auction), "auction opened successfully")
	helpers.LogSuccess("OpenAuctionHandler", "auction opened successfully", map[string]any{"auction_id": auctionID})
}

// CloseAuctionHandler handles POST /v1/auctions/:auction_id/close
func (h *BiddingHandler) CloseAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.CloseAuctionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.HandleBindError(c, "CloseAuctionHandler", err)
			return
		}
	}

	auction, err := h.service.CloseAuction(c.Request.Context(), auctionID, req.Reason)
	if err != nil {
		failRequest(c, "CloseAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(auction), "auction closed successfully")
	helpers.LogSuccess("CloseAuctionHandler", "auction closed successfully", map[string]any{
		"auction_id": auctionID,
		"reason":     auction.ClosedReason,
	})
}

// PlaceBidHandler handles POST /v1/auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	outcome, err := h.service.PlaceBid(c.Request.Context(), auctionID, req.BidderID, req.Amount)
	if err != nil {
		failRequest(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"bidder_id":  req.BidderID,
		})
		return
	}

	resp := helpers.ToBidOutcomeResponse(outcome)
	if !outcome.Accepted {
		status, message := helpers.MapErrorToHTTP(bidding.RejectionError(outcome))
		utils.JSONResponse(c, status, resp, message)
		utils.Info("PlaceBidHandler: bid rejected", map[string]any{
			"auction_id": auctionID,
			"bidder_id":  req.BidderID,
			"amount":     req.Amount.String(),
			"reason":     outcome.Reason,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid accepted")
	helpers.LogSuccess("PlaceBidHandler", "bid accepted", map[string]any{
		"bid_id":     outcome.Bid.ID,
		"auction_id": auctionID,
		"bidder_id":  req.BidderID,
		"amount":     req.Amount.String(),
	})
}

// CancelBidHandler handles DELETE /v1/auctions/:auction_id/bids/:bid_id?bidder_id=
func (h *BiddingHandler) CancelBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bidID, err := strconv.ParseUint(c.Param("bid_id"), 10, 64)
	if err != nil {
		helpers.HandleBindError(c, "CancelBidHandler", err)
		return
	}
	requester := c.Query("bidder_id")
	if requester == "" {
		helpers.HandleBindError(c, "CancelBidHandler", errors.New("bidder_id query parameter is required"))
		return
	}

	outcome, err := h.service.CancelBid(c.Request.Context(), auctionID, bidID, requester)
	if err != nil {
		failRequest(c, "CancelBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"bid_id":     bidID,
		})
		return
	}

	resp := helpers.ToBidOutcomeResponse(outcome)
	if !outcome.Accepted {
		status, message := helpers.MapErrorToHTTP(bidding.RejectionError(outcome))
		utils.JSONResponse(c, status, resp, message)
		utils.Info("CancelBidHandler: cancellation rejected", map[string]any{
			"auction_id": auctionID,
			"bid_id":     bidID,
			"reason":     outcome.Reason,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bid cancelled")
	helpers.LogSuccess("CancelBidHandler", "bid cancelled", map[string]any{
		"auction_id": auctionID,
		"bid_id":     bidID,
		"bidder_id":  requester,
	})
}

// GetBidsByAuctionHandler handles GET /v1/auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID)
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		failRequest(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	resp := helpers.ToBidResponses(bids)
	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(resp),
	})
}

// GetAuctionsByUserHandler handles GET /v1/users/:user_id/auctions
func (h *BiddingHandler) GetAuctionsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	auctions, err := h.service.GetAuctionsByUser(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNoBids) {
		failRequest(c, "GetAuctionsByUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	resp := helpers.ToAuctionResponses(auctions)
	utils.JSONResponse(c, http.StatusOK, resp, "auctions retrieved successfully")
	helpers.LogSuccess("GetAuctionsByUserHandler", "auctions retrieved successfully", map[string]any{
		"user_id":        userID,
		"auctions_count": len(resp),
	})
}
