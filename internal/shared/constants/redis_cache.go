package constants

import (
	"time"
)

// Redis key layout
// Pattern: refundsaga:{module}:{operation}:{identifier}

// ================== TTL DURATIONS ==================

const (
	TTL_REFUND_STATUS = 30 * time.Second // refund lookups while a saga is in flight
)

// ================== REDIS KEY PREFIXES ==================

const (
	CACHE_PREFIX = "refundsaga"
)

// ================== LOCKS ==================

const (
	LOCK_KEY_REFUND = CACHE_PREFIX + ":lock:refund:" // + refund-id
)

// ================== CACHE KEYS ==================

const (
	CACHE_KEY_REFUND_DETAIL = CACHE_PREFIX + ":refunds:detail:uuid:" // + refund-id
)

// ================== RATE LIMIT KEYS ==================

const (
	RATE_LIMIT_PREFIX = CACHE_PREFIX + ":ratelimit:" // + type:client
)

// ================== KEY BUILDERS ==================

func BuildRefundLockKey(refundID string) string {
	return LOCK_KEY_REFUND + refundID
}

func BuildRefundDetailKey(refundID string) string {
	return CACHE_KEY_REFUND_DETAIL + refundID
}

/*
INVALIDATION:

When a refund attempt is saved (still PENDING, SUCCEEDED or FAILED):
   - Invalidate: refundsaga:refunds:detail:uuid:refundID

Bookings are not cached; ops reads go to the store.
*/
