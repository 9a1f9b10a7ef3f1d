package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/adel/dropmarket/internal/models"
)

// Profit in these statuses counts as earned; in transit it is pending;
// cancelled and rejected orders are reported separately and never
// withdrawable.
var (
	earningStatuses = map[string]bool{
		models.OrderStatusCompleted:          true,
		models.OrderStatusPartiallyDelivered: true,
	}
	pendingStatuses = map[string]bool{
		models.OrderStatusUnderImplementation: true,
		models.OrderStatusShipped:             true,
	}
	returnStatuses = map[string]bool{
		models.OrderStatusCancelled: true,
		models.OrderStatusRejected:  true,
	}
)

// ComputeMarketerBalance derives a marketer's balances from their
// orders and withdrawal requests. It is total: an empty input yields
// all zeros. Callers must pass only records belonging to one marketer.
func ComputeMarketerBalance(orders []models.Order, withdrawals []models.WithdrawalRequest) models.MarketerBalance {
	b := models.MarketerBalance{
		TotalEarnings:     decimal.Zero,
		PendingProfit:     decimal.Zero,
		TotalReturns:      decimal.Zero,
		TotalWithdrawn:    decimal.Zero,
		PendingWithdrawal: decimal.Zero,
	}

	for _, order := range orders {
		switch {
		case earningStatuses[order.Status]:
			b.TotalEarnings = b.TotalEarnings.Add(order.Profit)
		case pendingStatuses[order.Status]:
			b.PendingProfit = b.PendingProfit.Add(order.Profit)
		case returnStatuses[order.Status]:
			b.TotalReturns = b.TotalReturns.Add(order.Profit)
		}
	}

	for _, w := range withdrawals {
		switch w.Status {
		case models.WithdrawalStatusCompleted:
			b.TotalWithdrawn = b.TotalWithdrawn.Add(w.Amount)
		case models.WithdrawalStatusPending:
			b.PendingWithdrawal = b.PendingWithdrawal.Add(w.Amount)
		}
	}

	b.RealizedBalance = b.TotalEarnings.Sub(b.TotalWithdrawn).Sub(b.PendingWithdrawal)

	return b
}
