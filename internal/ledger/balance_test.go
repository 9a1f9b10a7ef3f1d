package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adel/dropmarket/internal/models"
)

func TestComputeMarketerBalanceEmpty(t *testing.T) {
	b := ComputeMarketerBalance(nil, nil)

	assert.True(t, b.TotalEarnings.IsZero())
	assert.True(t, b.PendingProfit.IsZero())
	assert.True(t, b.TotalReturns.IsZero())
	assert.True(t, b.TotalWithdrawn.IsZero())
	assert.True(t, b.PendingWithdrawal.IsZero())
	assert.True(t, b.RealizedBalance.IsZero())
}

func TestComputeMarketerBalance(t *testing.T) {
	orders := []models.Order{
		{Status: models.OrderStatusCompleted, Profit: d(245000)},
		{Status: models.OrderStatusPartiallyDelivered, Profit: d(30000)},
		{Status: models.OrderStatusUnderImplementation, Profit: d(15000)},
		{Status: models.OrderStatusShipped, Profit: d(25000)},
		{Status: models.OrderStatusCancelled, Profit: d(40000)},
		{Status: models.OrderStatusRejected, Profit: d(10000)},
		// prepared and postponed orders count toward nothing
		{Status: models.OrderStatusPrepared, Profit: d(99999)},
		{Status: models.OrderStatusPostponed, Profit: d(88888)},
	}
	withdrawals := []models.WithdrawalRequest{
		{Status: models.WithdrawalStatusCompleted, Amount: d(100000)},
		{Status: models.WithdrawalStatusCompleted, Amount: d(50000)},
		{Status: models.WithdrawalStatusPending, Amount: d(25000)},
	}

	b := ComputeMarketerBalance(orders, withdrawals)

	assert.True(t, b.TotalEarnings.Equal(d(275000)), "earnings: %s", b.TotalEarnings)
	assert.True(t, b.PendingProfit.Equal(d(40000)), "pending: %s", b.PendingProfit)
	assert.True(t, b.TotalReturns.Equal(d(50000)), "returns: %s", b.TotalReturns)
	assert.True(t, b.TotalWithdrawn.Equal(d(150000)), "withdrawn: %s", b.TotalWithdrawn)
	assert.True(t, b.PendingWithdrawal.Equal(d(25000)), "pending withdrawal: %s", b.PendingWithdrawal)
	assert.True(t, b.RealizedBalance.Equal(d(100000)), "realized: %s", b.RealizedBalance)
}

func TestComputeMarketerBalanceIsIdempotent(t *testing.T) {
	orders := []models.Order{
		{Status: models.OrderStatusCompleted, Profit: d(245000)},
	}
	withdrawals := []models.WithdrawalRequest{
		{Status: models.WithdrawalStatusPending, Amount: d(45000)},
	}

	first := ComputeMarketerBalance(orders, withdrawals)
	second := ComputeMarketerBalance(orders, withdrawals)

	require.True(t, first.RealizedBalance.Equal(second.RealizedBalance))
	require.True(t, first.RealizedBalance.Equal(d(200000)))
}

func TestComputeMarketerBalanceWorkedExample(t *testing.T) {
	// A marketer with 245,000 earned and no withdrawals can withdraw
	// exactly that amount.
	orders := []models.Order{
		{Status: models.OrderStatusCompleted, Profit: d(245000)},
	}

	b := ComputeMarketerBalance(orders, nil)
	require.True(t, b.RealizedBalance.Equal(d(245000)))

	// Once a pending request snapshots the balance, nothing is left to
	// request.
	pending := []models.WithdrawalRequest{
		{Status: models.WithdrawalStatusPending, Amount: d(245000)},
	}
	b = ComputeMarketerBalance(orders, pending)
	require.True(t, b.RealizedBalance.IsZero())
}
