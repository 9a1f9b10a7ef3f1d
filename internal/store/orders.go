package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adel/dropmarket/internal/database"
	"github.com/adel/dropmarket/internal/ledger"
	"github.com/adel/dropmarket/internal/models"
)

type CreateOrderRequest struct {
	MarketerID  int64
	Customer    models.CustomerInfo
	Items       []OrderItemRequest
	DeliveryFee decimal.Decimal
	Discount    decimal.Decimal
	TotalCost   decimal.Decimal
}

type OrderItemRequest struct {
	ProductID       int64
	Quantity        int
	SizeLabel       string
	AgreedUnitPrice decimal.Decimal
}

// CreateOrder validates the draft, freezes product and customer data
// into snapshots and stores the order with its initial status. The
// order number is a UUID so concurrent creations cannot collide.
func CreateOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}
	if req.DeliveryFee.IsNegative() || req.Discount.IsNegative() || req.TotalCost.IsNegative() {
		return nil, database.ErrInvalidAmount
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, database.ErrInvalidAmount
		}
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM marketers WHERE id = $1)",
			req.MarketerID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check marketer exists: %w", err)
		}
		if !exists {
			return database.ErrMarketerNotFound
		}

		items := make([]models.OrderItem, 0, len(req.Items))
		for _, ir := range req.Items {
			var p models.Product
			var supplierID sql.NullInt64

			err := tx.QueryRowContext(ctx,
				`SELECT id, name, price, min_sell_price, max_sell_price, supplier_id, supplier_commission
				 FROM products
				 WHERE id = $1`,
				ir.ProductID).Scan(
				&p.ID, &p.Name, &p.Price, &p.MinSellPrice, &p.MaxSellPrice,
				&supplierID, &p.SupplierCommission)
			if err != nil {
				if err == sql.ErrNoRows {
					return database.ErrProductNotFound
				}
				return fmt.Errorf("load product %d: %w", ir.ProductID, err)
			}

			if ir.AgreedUnitPrice.LessThan(p.MinSellPrice) || ir.AgreedUnitPrice.GreaterThan(p.MaxSellPrice) {
				return database.ErrPriceOutOfRange
			}

			item := models.OrderItem{
				ProductID:          p.ID,
				ProductName:        p.Name,
				SizeLabel:          ir.SizeLabel,
				Quantity:           ir.Quantity,
				AgreedUnitPrice:    ir.AgreedUnitPrice,
				WholesalePrice:     p.Price,
				SupplierCommission: p.SupplierCommission,
			}
			if supplierID.Valid {
				id := supplierID.Int64
				item.SupplierID = &id
			}
			items = append(items, item)
		}

		profit := ledger.Profit(req.TotalCost, req.DeliveryFee, req.Discount, items)

		orderNumber := uuid.NewString()
		var orderID int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (order_number, marketer_id, customer_name, customer_phone, customer_address,
			                     status, delivery_fee, discount, total_cost, profit, admin_note, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '', NOW(), NOW())
			 RETURNING id`,
			orderNumber, req.MarketerID,
			req.Customer.Name, req.Customer.Phone, req.Customer.Address,
			models.OrderStatusUnderImplementation,
			req.DeliveryFee, req.Discount, req.TotalCost, profit).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range items {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, size_label, quantity,
				                          agreed_unit_price, wholesale_price, supplier_id, supplier_commission, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`,
				orderID, item.ProductID, item.ProductName, item.SizeLabel, item.Quantity,
				item.AgreedUnitPrice, item.WholesalePrice, nullableID(item.SupplierID), item.SupplierCommission)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		order, err = fetchOrder(ctx, tx, orderID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func fetchOrder(ctx context.Context, q rowQuerier, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := q.QueryRowContext(ctx,
		`SELECT id, order_number, marketer_id, customer_name, customer_phone, customer_address,
		        status, delivery_fee, discount, total_cost, profit, admin_note, created_at, updated_at
		 FROM orders
		 WHERE id = $1`,
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
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := fetchOrderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func fetchOrderItems(ctx context.Context, q rowQuerier, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, size_label, quantity,
		        agreed_unit_price, wholesale_price, supplier_id, supplier_commission, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var supplierID sql.NullInt64
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.SizeLabel, &item.Quantity, &item.AgreedUnitPrice,
			&item.WholesalePrice, &supplierID, &item.SupplierCommission,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if supplierID.Valid {
			id := supplierID.Int64
			item.SupplierID = &id
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	return fetchOrder(ctx, db, id)
}

func GetOrderByNumber(ctx context.Context, db *sql.DB, number string) (*models.Order, error) {
	var id int64
	err := db.QueryRowContext(ctx,
		`SELECT id FROM orders WHERE order_number = $1`, number).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by number: %w", err)
	}
	return fetchOrder(ctx, db, id)
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, marketerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT id, order_number, marketer_id, customer_name, customer_phone, customer_address,
		       status, delivery_fee, discount, total_cost, profit, admin_note, created_at, updated_at
		FROM orders
		WHERE marketer_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, marketerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID, &order.OrderNumber, &order.MarketerID,
			&order.Customer.Name, &order.Customer.Phone, &order.Customer.Address,
			&order.Status, &order.DeliveryFee, &order.Discount,
			&order.TotalCost, &order.Profit, &order.AdminNote,
			&order.CreatedAt, &order.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// marketerOrders loads the status and profit of every order owned by a
// marketer, the read side of balance aggregation.
func marketerOrders(ctx context.Context, tx *sql.Tx, marketerID int64) ([]models.Order, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, status, profit
		 FROM orders
		 WHERE marketer_id = $1`,
		marketerID)
	if err != nil {
		return nil, fmt.Errorf("load marketer orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.Status, &order.Profit); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}
