package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adel/dropmarket/internal/database"
	"github.com/adel/dropmarket/internal/ledger"
	"github.com/adel/dropmarket/internal/models"
)

type CouponDraft struct {
	Code           string
	Type           string
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	ExpiresAt      *time.Time
	UsageLimit     int
	IsActive       bool
}

const couponColumns = `id, code, type, value, min_order_amount, expires_at, usage_limit, used_count, is_active, created_at, updated_at`

func CreateCoupon(ctx context.Context, db *sql.DB, draft CouponDraft) (*models.Coupon, error) {
	if draft.Type != models.CouponTypeFixed && draft.Type != models.CouponTypePercentage {
		return nil, fmt.Errorf("unknown coupon type %q", draft.Type)
	}
	if draft.Value.IsNegative() || draft.MinOrderAmount.IsNegative() || draft.UsageLimit < 0 {
		return nil, database.ErrInvalidAmount
	}

	row := db.QueryRowContext(ctx,
		`INSERT INTO coupons (code, type, value, min_order_amount, expires_at, usage_limit, used_count, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NOW(), NOW())
		 RETURNING `+couponColumns,
		draft.Code, draft.Type, draft.Value, draft.MinOrderAmount,
		draft.ExpiresAt, draft.UsageLimit, draft.IsActive)

	coupon, err := scanCoupon(row)
	if err != nil {
		if database.IsUniqueViolation(err, "coupons_code_lower_idx") {
			return nil, database.ErrCouponCodeExists
		}
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	return coupon, nil
}

// GetCouponByCode matches codes case-insensitively.
func GetCouponByCode(ctx context.Context, db *sql.DB, code string) (*models.Coupon, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE lower(code) = lower($1)`,
		code)

	coupon, err := scanCoupon(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	return coupon, nil
}

type CouponUpdate struct {
	Value          *decimal.Decimal
	MinOrderAmount *decimal.Decimal
	ExpiresAt      *time.Time
	UsageLimit     *int
	IsActive       *bool
}

// UpdateCoupon edits administrative fields. used_count is deliberately
// not editable here; it only moves through RecordRedemption.
func UpdateCoupon(ctx context.Context, db *sql.DB, code string, update CouponUpdate) (*models.Coupon, error) {
	var coupon *models.Coupon

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+couponColumns+` FROM coupons WHERE lower(code) = lower($1) FOR UPDATE`,
			code)

		current, err := scanCoupon(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrCouponNotFound
			}
			return fmt.Errorf("lock coupon: %w", err)
		}

		if update.Value != nil {
			current.Value = *update.Value
		}
		if update.MinOrderAmount != nil {
			current.MinOrderAmount = *update.MinOrderAmount
		}
		if update.ExpiresAt != nil {
			current.ExpiresAt = update.ExpiresAt
		}
		if update.UsageLimit != nil {
			current.UsageLimit = *update.UsageLimit
		}
		if update.IsActive != nil {
			current.IsActive = *update.IsActive
		}

		if current.Value.IsNegative() || current.MinOrderAmount.IsNegative() || current.UsageLimit < 0 {
			return database.ErrInvalidAmount
		}

		row = tx.QueryRowContext(ctx,
			`UPDATE coupons
			 SET value = $1, min_order_amount = $2, expires_at = $3, usage_limit = $4, is_active = $5, updated_at = NOW()
			 WHERE id = $6
			 RETURNING `+couponColumns,
			current.Value, current.MinOrderAmount, current.ExpiresAt,
			current.UsageLimit, current.IsActive, current.ID)

		coupon, err = scanCoupon(row)
		if err != nil {
			return fmt.Errorf("update coupon: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return coupon, nil
}

func DeleteCoupon(ctx context.Context, db *sql.DB, code string) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM coupons WHERE lower(code) = lower($1)`, code)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrCouponNotFound
	}

	return nil
}

func ListCoupons(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM coupons`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count coupons: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := db.QueryContext(ctx,
		`SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []models.Coupon
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *coupon)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return NewOffsetPage(coupons, total, page, pageSize), nil
}

// ValidateCoupon resolves a code and checks it against an order
// subtotal. An unknown code is a distinct not-found error; the pure
// validation reasons come from the ledger package. The returned
// discount is not yet redeemed — callers apply it and then call
// RecordRedemption.
func ValidateCoupon(ctx context.Context, db *sql.DB, code string, subtotal decimal.Decimal) (decimal.Decimal, *models.Coupon, error) {
	coupon, err := GetCouponByCode(ctx, db, code)
	if err != nil {
		return decimal.Zero, nil, err
	}

	discount, err := ledger.ValidateCoupon(*coupon, subtotal, time.Now())
	if err != nil {
		return decimal.Zero, nil, err
	}

	return discount, coupon, nil
}

// RecordRedemption increments used_count, but only while it is still
// under the usage limit: the test and the increment are one UPDATE, so
// concurrent redemptions of a scarce coupon cannot push used_count past
// the limit.
func RecordRedemption(ctx context.Context, db *sql.DB, code string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE coupons
		 SET used_count = used_count + 1, updated_at = NOW()
		 WHERE lower(code) = lower($1)
		   AND is_active
		   AND (usage_limit = 0 OR used_count < usage_limit)`,
		code)
	if err != nil {
		return fmt.Errorf("record redemption: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Nothing matched: report why.
	coupon, err := GetCouponByCode(ctx, db, code)
	if err != nil {
		return err
	}
	if !coupon.IsActive {
		return ledger.ErrCouponInactive
	}
	return ledger.ErrCouponUsageLimitReached
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	coupon := &models.Coupon{}
	var expires sql.NullTime

	err := row.Scan(
		&coupon.ID, &coupon.Code, &coupon.Type, &coupon.Value,
		&coupon.MinOrderAmount, &expires, &coupon.UsageLimit,
		&coupon.UsedCount, &coupon.IsActive,
		&coupon.CreatedAt, &coupon.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		coupon.ExpiresAt = &expires.Time
	}

	return coupon, nil
}
