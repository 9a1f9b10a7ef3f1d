package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/adel/dropmarket/internal/database"
	"github.com/adel/dropmarket/internal/ledger"
	"github.com/adel/dropmarket/internal/models"
)

func CreateSupplier(ctx context.Context, db *sql.DB, name, phone string) (*models.Supplier, error) {
	supplier := &models.Supplier{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO suppliers (name, phone, created_at)
		 VALUES ($1, $2, NOW())
		 RETURNING id, name, phone, created_at`,
		name, phone).Scan(
		&supplier.ID, &supplier.Name, &supplier.Phone, &supplier.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create supplier: %w", err)
	}

	return supplier, nil
}

func GetSupplier(ctx context.Context, db *sql.DB, id int64) (*models.Supplier, error) {
	supplier := &models.Supplier{}

	err := db.QueryRowContext(ctx,
		`SELECT id, name, phone, created_at FROM suppliers WHERE id = $1`,
		id).Scan(
		&supplier.ID, &supplier.Name, &supplier.Phone, &supplier.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrSupplierNotFound
		}
		return nil, fmt.Errorf("get supplier: %w", err)
	}

	return supplier, nil
}

// SupplierBalance derives a supplier's commission balance from the
// frozen line-item snapshots of completed orders and the supplier's
// withdrawal history, inside one consistent snapshot.
func SupplierBalance(ctx context.Context, db *sql.DB, supplierID int64) (*models.SupplierBalance, error) {
	var balance models.SupplierBalance

	err := database.WithReadOnlyTx(ctx, db, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1)",
			supplierID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check supplier exists: %w", err)
		}
		if !exists {
			return database.ErrSupplierNotFound
		}

		orders, err := supplierOrders(ctx, tx, supplierID)
		if err != nil {
			return err
		}
		withdrawals, err := supplierWithdrawals(ctx, tx, supplierID)
		if err != nil {
			return err
		}

		balance = ledger.ComputeSupplierBalance(orders, withdrawals, supplierID)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return &balance, nil
}

// SupplierWithdraw appends an irreversible withdrawal after verifying
// it fits within the remaining commission. The supplier row is locked
// for the duration of the check-and-append so two concurrent
// withdrawals cannot both pass the remaining-commission check.
func SupplierWithdraw(ctx context.Context, db *sql.DB, supplierID int64, amount decimal.Decimal, note string) (*models.SupplierWithdrawal, error) {
	if !amount.IsPositive() {
		return nil, database.ErrInvalidAmount
	}

	var withdrawal *models.SupplierWithdrawal

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var lockedID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM suppliers WHERE id = $1 FOR UPDATE NOWAIT`,
			supplierID).Scan(&lockedID)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "55P03" {
				return database.ErrLockTimeout
			}
			if err == sql.ErrNoRows {
				return database.ErrSupplierNotFound
			}
			return fmt.Errorf("lock supplier: %w", err)
		}

		orders, err := supplierOrders(ctx, tx, supplierID)
		if err != nil {
			return err
		}
		withdrawals, err := supplierWithdrawals(ctx, tx, supplierID)
		if err != nil {
			return err
		}

		balance := ledger.ComputeSupplierBalance(orders, withdrawals, supplierID)
		if amount.GreaterThan(balance.Remaining) {
			return database.ErrInsufficientCommission
		}

		withdrawal = &models.SupplierWithdrawal{}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO supplier_withdrawals (supplier_id, amount, note, created_at)
			 VALUES ($1, $2, $3, NOW())
			 RETURNING id, supplier_id, amount, note, created_at`,
			supplierID, amount, note).Scan(
			&withdrawal.ID, &withdrawal.SupplierID, &withdrawal.Amount,
			&withdrawal.Note, &withdrawal.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("create supplier withdrawal: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return withdrawal, nil
}

func ListSupplierWithdrawals(ctx context.Context, db *sql.DB, supplierID int64) ([]models.SupplierWithdrawal, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, supplier_id, amount, note, created_at
		 FROM supplier_withdrawals
		 WHERE supplier_id = $1
		 ORDER BY created_at DESC, id DESC`,
		supplierID)
	if err != nil {
		return nil, fmt.Errorf("list supplier withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []models.SupplierWithdrawal
	for rows.Next() {
		var w models.SupplierWithdrawal
		if err := rows.Scan(&w.ID, &w.SupplierID, &w.Amount, &w.Note, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan supplier withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return withdrawals, nil
}

// supplierOrders reconstructs the orders holding line items frozen
// against a supplier, with just enough shape for commission
// aggregation.
func supplierOrders(ctx context.Context, tx *sql.Tx, supplierID int64) ([]models.Order, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT o.id, o.status, i.quantity, i.supplier_commission
		 FROM orders o
		 JOIN order_items i ON i.order_id = o.id
		 WHERE i.supplier_id = $1
		 ORDER BY o.id`,
		supplierID)
	if err != nil {
		return nil, fmt.Errorf("load supplier orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var orderID int64
		var status string
		var item models.OrderItem

		if err := rows.Scan(&orderID, &status, &item.Quantity, &item.SupplierCommission); err != nil {
			return nil, fmt.Errorf("scan supplier order item: %w", err)
		}
		item.SupplierID = &supplierID

		if n := len(orders); n > 0 && orders[n-1].ID == orderID {
			orders[n-1].Items = append(orders[n-1].Items, item)
			continue
		}
		orders = append(orders, models.Order{
			ID:     orderID,
			Status: status,
			Items:  []models.OrderItem{item},
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

func supplierWithdrawals(ctx context.Context, tx *sql.Tx, supplierID int64) ([]models.SupplierWithdrawal, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, supplier_id, amount, note, created_at
		 FROM supplier_withdrawals
		 WHERE supplier_id = $1`,
		supplierID)
	if err != nil {
		return nil, fmt.Errorf("load supplier withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []models.SupplierWithdrawal
	for rows.Next() {
		var w models.SupplierWithdrawal
		if err := rows.Scan(&w.ID, &w.SupplierID, &w.Amount, &w.Note, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan supplier withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return withdrawals, nil
}
