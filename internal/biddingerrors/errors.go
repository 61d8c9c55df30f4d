package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionExists   = errors.New("auction already exists")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrUserNoBids      = errors.New("user has not placed any bids")
	ErrVersionConflict = errors.New("auction version conflict")
)

// business logic errors
var (
	ErrInvalidBid     = errors.New("invalid bid")
	ErrInvalidAuction = errors.New("invalid auction")
	ErrBidTooLow      = errors.New("bid amount too low")
	ErrAuctionNotOpen = errors.New("auction not open")
	ErrSelfOutbid     = errors.New("bidder already holds the high bid")
	ErrTooLate        = errors.New("too late to cancel bid")
	ErrNotBidOwner    = errors.New("bid belongs to another bidder")
	ErrBidNotFound    = errors.New("bid not found")
)

// engine errors
var (
	ErrIntegrity          = errors.New("auction integrity violated")
	ErrActorStopped       = errors.New("auction actor stopped")
	ErrRegistryFull       = errors.New("auction registry at capacity")
	ErrResyncRequired     = errors.New("subscriber must resynchronize")
	ErrReplayTruncated    = errors.New("replay buffer no longer holds requested sequence")
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrSubscriptionBroken = errors.New("subscription broken")
	ErrChannelClosed      = errors.New("channel closed")
)
