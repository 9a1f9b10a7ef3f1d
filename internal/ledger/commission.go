package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/adel/dropmarket/internal/models"
)

// ComputeSupplierBalance derives a supplier's commission balance.
// Commission is recognized only on completed orders, using the
// per-unit commission frozen into each line item. Orders cannot leave
// the completed status, so recognized commission never regresses.
func ComputeSupplierBalance(orders []models.Order, withdrawals []models.SupplierWithdrawal, supplierID int64) models.SupplierBalance {
	earned := decimal.Zero
	for _, order := range orders {
		if order.Status != models.OrderStatusCompleted {
			continue
		}
		for _, item := range order.Items {
			if item.SupplierID == nil || *item.SupplierID != supplierID {
				continue
			}
			earned = earned.Add(item.SupplierCommission.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	withdrawn := decimal.Zero
	for _, w := range withdrawals {
		if w.SupplierID == supplierID {
			withdrawn = withdrawn.Add(w.Amount)
		}
	}

	return models.SupplierBalance{
		Earned:    earned,
		Withdrawn: withdrawn,
		Remaining: earned.Sub(withdrawn),
	}
}
