// Package ledger holds the pure accounting rules of the marketplace:
// the profit formula, balance aggregation, supplier commission
// recognition and coupon validation. Nothing in this package touches
// the database; the store layer loads rows and calls in here, so every
// balance is re-derived from source records on read instead of being
// maintained as a running total.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/adel/dropmarket/internal/models"
)

// WholesaleCost sums the frozen wholesale price of every line item.
// Snapshots, not the live catalog, so later price edits never change
// the cost basis of a historical order.
func WholesaleCost(items []models.OrderItem) decimal.Decimal {
	cost := decimal.Zero
	for _, item := range items {
		cost = cost.Add(item.WholesalePrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return cost
}

// Profit computes the marketer's margin:
//
//	profit = (total_cost - delivery_fee + discount) - wholesale_cost
//
// total_cost - delivery_fee + discount is the price the customer agreed
// to pay for the goods themselves. The discount is absorbed by the
// platform: changing it without changing total_cost leaves the
// marketer's margin untouched. A negative result is a loss, not an
// error.
func Profit(totalCost, deliveryFee, discount decimal.Decimal, items []models.OrderItem) decimal.Decimal {
	agreed := totalCost.Sub(deliveryFee).Add(discount)
	return agreed.Sub(WholesaleCost(items))
}

// Subtotal is the agreed line-item revenue of an order, used as the
// base for coupon validation.
func Subtotal(items []models.OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.AgreedUnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}
