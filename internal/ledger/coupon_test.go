package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adel/dropmarket/internal/models"
)

func TestValidateCoupon(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)

	active := models.Coupon{
		Code:           "SAVE10",
		Type:           models.CouponTypePercentage,
		Value:          d(10),
		MinOrderAmount: d(100000),
		IsActive:       true,
	}

	tests := []struct {
		name     string
		coupon   func() models.Coupon
		subtotal int64
		want     int64
		wantErr  error
	}{
		{
			name:     "percentage discount on worked example",
			coupon:   func() models.Coupon { return active },
			subtotal: 500000,
			want:     50000,
		},
		{
			name: "fixed discount",
			coupon: func() models.Coupon {
				c := active
				c.Type = models.CouponTypeFixed
				c.Value = d(15000)
				return c
			},
			subtotal: 200000,
			want:     15000,
		},
		{
			name: "percentage rounds to a whole unit",
			coupon: func() models.Coupon {
				c := active
				c.Value = d(3)
				return c
			},
			subtotal: 100050, // 3% = 3001.5
			want:     3002,
		},
		{
			name: "inactive",
			coupon: func() models.Coupon {
				c := active
				c.IsActive = false
				return c
			},
			subtotal: 500000,
			wantErr:  ErrCouponInactive,
		},
		{
			name: "expired",
			coupon: func() models.Coupon {
				c := active
				c.ExpiresAt = &past
				return c
			},
			subtotal: 500000,
			wantErr:  ErrCouponExpired,
		},
		{
			name: "not yet expired",
			coupon: func() models.Coupon {
				c := active
				c.ExpiresAt = &future
				return c
			},
			subtotal: 500000,
			want:     50000,
		},
		{
			name:     "below minimum order amount",
			coupon:   func() models.Coupon { return active },
			subtotal: 99999,
			wantErr:  ErrCouponBelowMinimum,
		},
		{
			name: "usage limit reached",
			coupon: func() models.Coupon {
				c := active
				c.UsageLimit = 5
				c.UsedCount = 5
				return c
			},
			subtotal: 500000,
			wantErr:  ErrCouponUsageLimitReached,
		},
		{
			name: "zero usage limit means unlimited",
			coupon: func() models.Coupon {
				c := active
				c.UsageLimit = 0
				c.UsedCount = 10000
				return c
			},
			subtotal: 500000,
			want:     50000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateCoupon(tt.coupon(), d(tt.subtotal), now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, got.IsZero())
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "expected %d, got %s", tt.want, got)
		})
	}
}

func TestValidateCouponUnknownType(t *testing.T) {
	c := models.Coupon{Code: "BROKEN", Type: "bogo", IsActive: true}
	_, err := ValidateCoupon(c, d(100000), time.Now())
	require.Error(t, err)
}
