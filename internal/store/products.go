package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/adel/dropmarket/internal/database"
	"github.com/adel/dropmarket/internal/models"
)

type ProductDraft struct {
	SKU                string
	Name               string
	Description        string
	Price              decimal.Decimal
	MinSellPrice       decimal.Decimal
	MaxSellPrice       decimal.Decimal
	SupplierID         *int64
	SupplierCommission decimal.Decimal
}

const productColumns = `id, sku, name, description, price, min_sell_price, max_sell_price, supplier_id, supplier_commission, created_at, updated_at, version`

func CreateProduct(ctx context.Context, db *sql.DB, draft ProductDraft) (*models.Product, error) {
	if draft.Price.IsNegative() || draft.SupplierCommission.IsNegative() {
		return nil, database.ErrInvalidAmount
	}
	if draft.MinSellPrice.GreaterThan(draft.MaxSellPrice) {
		return nil, fmt.Errorf("min sell price exceeds max sell price")
	}

	row := db.QueryRowContext(ctx,
		`INSERT INTO products (sku, name, description, price, min_sell_price, max_sell_price,
		                       supplier_id, supplier_commission, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
		 RETURNING `+productColumns,
		draft.SKU, draft.Name, draft.Description, draft.Price,
		draft.MinSellPrice, draft.MaxSellPrice,
		nullableID(draft.SupplierID), draft.SupplierCommission)

	product, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	product, err := scanProduct(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// UpdateProductPricing changes the catalog prices of a product under an
// optimistic version check. Existing orders are untouched: their items
// carry frozen copies of the old prices.
func UpdateProductPricing(ctx context.Context, db *sql.DB, productID int64, price, minSell, maxSell, commission decimal.Decimal, version int) error {
	if price.IsNegative() || commission.IsNegative() {
		return database.ErrInvalidAmount
	}
	if minSell.GreaterThan(maxSell) {
		return fmt.Errorf("min sell price exceeds max sell price")
	}

	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET price = $1, min_sell_price = $2, max_sell_price = $3, supplier_commission = $4,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $5 AND version = $6`,
		price, minSell, maxSell, commission, productID, version)
	if err != nil {
		return fmt.Errorf("update product pricing: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOptimisticLockFailed
	}

	return nil
}

func ListProducts(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return NewOffsetPage(products, total, page, pageSize), nil
}

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{}
	var supplierID sql.NullInt64

	err := row.Scan(
		&product.ID, &product.SKU, &product.Name, &product.Description,
		&product.Price, &product.MinSellPrice, &product.MaxSellPrice,
		&supplierID, &product.SupplierCommission,
		&product.CreatedAt, &product.UpdatedAt, &product.Version,
	)
	if err != nil {
		return nil, err
	}
	if supplierID.Valid {
		id := supplierID.Int64
		product.SupplierID = &id
	}

	return product, nil
}
