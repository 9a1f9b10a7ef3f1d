package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adel/dropmarket/internal/models"
)

// Coupon rejection reasons. Each failed validation names exactly one.
var (
	ErrCouponInactive          = errors.New("coupon is not active")
	ErrCouponExpired           = errors.New("coupon has expired")
	ErrCouponBelowMinimum      = errors.New("order subtotal below coupon minimum")
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
)

var hundred = decimal.NewFromInt(100)

// ValidateCoupon checks a coupon against an order subtotal at a given
// instant and returns the discount it grants. It does not record the
// redemption; callers that apply the discount must follow up with the
// store's RecordRedemption, which enforces the usage limit atomically.
func ValidateCoupon(coupon models.Coupon, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !coupon.IsActive {
		return decimal.Zero, ErrCouponInactive
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(now) {
		return decimal.Zero, ErrCouponExpired
	}
	if subtotal.LessThan(coupon.MinOrderAmount) {
		return decimal.Zero, ErrCouponBelowMinimum
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return decimal.Zero, ErrCouponUsageLimitReached
	}

	switch coupon.Type {
	case models.CouponTypeFixed:
		return coupon.Value, nil
	case models.CouponTypePercentage:
		return subtotal.Mul(coupon.Value).Div(hundred).Round(0), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown coupon type %q", coupon.Type)
	}
}
