package shared

import "errors"

// Domain-specific errors
var (
	// Bid rejection taxonomy, returned synchronously to the caller
	ErrAuctionNotFound       = errors.New("auction not found")
	ErrAuctionNotActive      = errors.New("auction is not accepting bids")
	ErrBidTooLow             = errors.New("bid amount below required minimum")
	ErrBidTooHigh            = errors.New("bid amount above required maximum")
	ErrDuplicateBid          = errors.New("duplicate bid submission")
	ErrAuctionAlreadySettled = errors.New("auction already settled")

	// Lifecycle errors
	ErrInvalidTransition = errors.New("invalid auction status transition")
	ErrUnknownKind       = errors.New("unknown auction kind")
	ErrInvalidWindow     = errors.New("end time must be after start time")
	ErrInvalidMinBid     = errors.New("minimum bid must be greater than 0")
	ErrInvalidIncrement  = errors.New("bid increment must be greater than 0")
	ErrBidAmountInvalid  = errors.New("bid amount must be greater than 0")

	// Collaborator lookup errors
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrBidderNotFound  = errors.New("bidder not found")

	// Transient storage failure; the in-flight mutation was aborted and the
	// caller may safely retry (duplicate submissions are idempotent)
	ErrStorageUnavailable = errors.New("storage temporarily unavailable")

	// Validation errors
	ErrInvalidTimeFormat = errors.New("invalid time format")

	// WebSocket message validation errors
	ErrMessageTypeRequired        = errors.New("message type is required")
	ErrAuctionIDRequired          = errors.New("auction_id is required")
	ErrInvalidAmount              = errors.New("valid amount is required")
	ErrVehicleRefRequired         = errors.New("vehicle_ref is required")
	ErrKindRequired               = errors.New("kind is required")
	ErrStartTimeRequired          = errors.New("start_time is required")
	ErrEndTimeRequired            = errors.New("end_time is required")
	ErrMinBidRequired             = errors.New("min_bid is required")
	ErrUnknownMessageType         = errors.New("unknown message type")
	ErrClientEventChannelNotFound = errors.New("client event channel not found")
)

// Reason is the wire-level rejection code carried in a bid response
type Reason string

const (
	ReasonAuctionNotFound  Reason = "auction_not_found"
	ReasonAuctionNotActive Reason = "auction_not_active"
	ReasonBidTooLow        Reason = "bid_too_low"
	ReasonBidTooHigh       Reason = "bid_too_high"
	ReasonDuplicateBid     Reason = "duplicate_bid"
	ReasonAlreadySettled   Reason = "auction_already_settled"
)

var rejectionReasons = map[error]Reason{
	ErrAuctionNotFound:       ReasonAuctionNotFound,
	ErrAuctionNotActive:      ReasonAuctionNotActive,
	ErrBidTooLow:             ReasonBidTooLow,
	ErrBidTooHigh:            ReasonBidTooHigh,
	ErrDuplicateBid:          ReasonDuplicateBid,
	ErrAuctionAlreadySettled: ReasonAlreadySettled,
}

// ReasonFor maps a caller-visible rejection to its wire reason. The second
// return value is false for errors outside the rejection taxonomy, e.g.
// transient storage failures.
func ReasonFor(err error) (Reason, bool) {
	for sentinel, reason := range rejectionReasons {
		if errors.Is(err, sentinel) {
			return reason, true
		}
	}
	return "", false
}
