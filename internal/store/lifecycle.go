package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/adel/dropmarket/internal/database"
	"github.com/adel/dropmarket/internal/ledger"
	"github.com/adel/dropmarket/internal/models"
)

// terminalStatuses are the states in which marketer profit and supplier
// commission have been recognized. Once recognized, an order may not
// regress: balances derived from it must stay stable even though a
// supplier may already have withdrawn against its commission.
var terminalStatuses = map[string]bool{
	models.OrderStatusCompleted:          true,
	models.OrderStatusPartiallyDelivered: true,
}

var validStatuses = map[string]bool{
	models.OrderStatusUnderImplementation: true,
	models.OrderStatusPrepared:            true,
	models.OrderStatusShipped:             true,
	models.OrderStatusCompleted:           true,
	models.OrderStatusPartiallyDelivered:  true,
	models.OrderStatusPostponed:           true,
	models.OrderStatusCancelled:           true,
	models.OrderStatusRejected:            true,
}

// CanTransition reports whether an order may move from one status to
// another. Setting the current status again is a permitted no-op.
func CanTransition(from, to string) bool {
	if !validStatuses[from] || !validStatuses[to] {
		return false
	}
	if from == to {
		return true
	}
	return !terminalStatuses[from]
}

// SetStatus applies a status transition. It never touches profit: the
// profit recorded on the order keeps its value whether the order
// completes or is cancelled, and the balance aggregation decides which
// bucket it lands in.
func SetStatus(ctx context.Context, db *sql.DB, orderID int64, newStatus string) (*models.Order, error) {
	if !validStatuses[newStatus] {
		return nil, fmt.Errorf("%w: unknown status %q", database.ErrInvalidTransition, newStatus)
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM orders WHERE id = $1 FOR UPDATE`,
			orderID).Scan(&current)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("load order status: %w", err)
		}

		if !CanTransition(current, newStatus) {
			return fmt.Errorf("%w: %s -> %s", database.ErrInvalidTransition, current, newStatus)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
			newStatus, orderID)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}

		order, err = fetchOrder(ctx, tx, orderID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

// FinancialEdit carries the editable financial fields of an order. Nil
// fields are left unchanged.
type FinancialEdit struct {
	Customer  *models.CustomerInfo
	TotalCost *decimal.Decimal
	AdminNote *string
}

// ApplyFinancialEdit updates an order's financial fields and recomputes
// profit from the frozen item snapshots in the same transaction, so the
// profit formula invariant holds after every edit. A non-empty admin
// note is stored on the order and surfaced to the marketer on next
// read.
func ApplyFinancialEdit(ctx context.Context, db *sql.DB, orderID int64, edit FinancialEdit) (*models.Order, error) {
	if edit.TotalCost != nil && edit.TotalCost.IsNegative() {
		return nil, database.ErrInvalidAmount
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		customer := current.Customer
		if edit.Customer != nil {
			customer = *edit.Customer
		}
		totalCost := current.TotalCost
		if edit.TotalCost != nil {
			totalCost = *edit.TotalCost
		}
		adminNote := current.AdminNote
		if edit.AdminNote != nil {
			adminNote = *edit.AdminNote
		}

		items, err := fetchOrderItems(ctx, tx, orderID)
		if err != nil {
			return err
		}

		profit := ledger.Profit(totalCost, current.DeliveryFee, current.Discount, items)

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET customer_name = $1, customer_phone = $2, customer_address = $3,
			     total_cost = $4, profit = $5, admin_note = $6, updated_at = NOW()
			 WHERE id = $7`,
			customer.Name, customer.Phone, customer.Address,
			totalCost, profit, adminNote, orderID)
		if err != nil {
			return fmt.Errorf("apply financial edit: %w", err)
		}

		order, err = fetchOrder(ctx, tx, orderID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

func lockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := tx.QueryRowContext(ctx,
		`SELECT id, order_number, marketer_id, customer_name, customer_phone, customer_address,
		        status, delivery_fee, discount, total_cost, profit, admin_note, created_at, updated_at
		 FROM orders
		 WHERE id = $1
		 FOR UPDATE`,
		id).Scan(
		&order.ID, &order.OrderNumber, &order.MarketerID,
		&order.Customer.Name, &order.Customer.Phone, &order.Customer.Address,
		&order.Status, &order.DeliveryFee, &order.Discount,
		&order.TotalCost, &order.Profit, &order.AdminNote,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return order, nil
}
