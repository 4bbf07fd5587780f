package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the normalized snapshot of an order returned by the storefront
// order-lookup endpoint
type Order struct {
	ID            int64
	State         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Total         decimal.Decimal
	PaymentMethod string
	ShipMethod    string
	TrackingCode  string
}

// LookupResultCode is the business outcome of one order lookup. Each code
// carries a distinct meaning for the conversational layer: a mismatch is not
// a throttle and must never be worded as one.
type LookupResultCode string

const (
	LookupSuccess            LookupResultCode = "success"
	LookupNotFoundOrMismatch LookupResultCode = "not_found_or_mismatch"
	LookupInvalidPayload     LookupResultCode = "invalid_payload"
	LookupUnauthorized       LookupResultCode = "unauthorized"
	LookupThrottled          LookupResultCode = "throttled"
)

// LookupResult is the outcome of one lookup call including its retries
type LookupResult struct {
	Code       LookupResultCode
	HTTPStatus int
	Order      *Order
	Attempts   int
}

// LookupClient issues the signed order-verification call against the
// storefront backend. Transport failures, timeouts and unmapped status codes
// are returned as errors wrapping shared.ErrExternalService; every
// business-meaningful outcome is a typed LookupResult instead.
type LookupClient interface {
	LookupOrder(ctx context.Context, requestID string, orderID int64, factors IdentityFactors) (*LookupResult, error)
}

// RateLimitScope identifies which limiter scope blocked a request
type RateLimitScope string

const (
	ScopeIP    RateLimitScope = "ip"
	ScopeUser  RateLimitScope = "user"
	ScopeOrder RateLimitScope = "order"
)

// Decision is the outcome of consulting the rate limiter before a lookup
type Decision struct {
	Allowed   bool
	Degraded  bool
	BlockedBy RateLimitScope
}

// RateLimiter gates signed lookup calls by IP, user and order id. It is
// consulted before any lookup attempt so abuse never burns the storefront's
// own rate budget. A limiter whose backing store is unavailable fails open
// and reports Degraded.
type RateLimiter interface {
	Consume(ctx context.Context, ip, userID string, orderID int64) Decision
}
