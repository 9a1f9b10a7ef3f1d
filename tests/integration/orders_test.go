package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/adel/dropmarket/internal/database"
	"github.com/adel/dropmarket/internal/models"
	"github.com/adel/dropmarket/internal/store"
)

func TestCreateOrderFreezesSnapshots(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	marketer := seedMarketer(t, db, "orders@example.com")
	supplier := seedSupplier(t, db, "Snapshot Supplier")
	product := seedProduct(t, db, "ORD-001", 250000, &supplier.ID, 2000)

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		MarketerID: marketer.ID,
		Customer: models.CustomerInfo{
			Name:    "Final Customer",
			Phone:   "+300000000",
			Address: "5 Palm Rd",
		},
		Items: []store.OrderItemRequest{
			{ProductID: product.ID, Quantity: 1, SizeLabel: "L", AgreedUnitPrice: decimal.NewFromInt(495000)},
		},
		DeliveryFee: decimal.NewFromInt(5000),
		Discount:    decimal.Zero,
		TotalCost:   decimal.NewFromInt(500000),
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if order.OrderNumber == "" {
		t.Error("Order number should be assigned")
	}
	if order.Status != models.OrderStatusUnderImplementation {
		t.Errorf("Expected initial status %q, got %q", models.OrderStatusUnderImplementation, order.Status)
	}

	// Worked example: (500,000 - 5,000 + 0) - 250,000 = 245,000
	if !order.Profit.Equal(decimal.NewFromInt(245000)) {
		t.Errorf("Expected profit 245000, got %s", order.Profit)
	}

	if len(order.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(order.Items))
	}
	item := order.Items[0]
	if !item.WholesalePrice.Equal(decimal.NewFromInt(250000)) {
		t.Errorf("Expected frozen wholesale price 250000, got %s", item.WholesalePrice)
	}
	if !item.SupplierCommission.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected frozen commission 2000, got %s", item.SupplierCommission)
	}

	// A later catalog price change must not touch the order.
	err = store.UpdateProductPricing(ctx, db, product.ID,
		decimal.NewFromInt(300000), decimal.NewFromInt(300000),
		decimal.NewFromInt(900000), decimal.NewFromInt(9000), product.Version)
	if err != nil {
		t.Fatalf("Update product pricing: %v", err)
	}

	reloaded, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if !reloaded.Items[0].WholesalePrice.Equal(decimal.NewFromInt(250000)) {
		t.Errorf("Snapshot changed after catalog edit: %s", reloaded.Items[0].WholesalePrice)
	}
	if !reloaded.Profit.Equal(decimal.NewFromInt(245000)) {
		t.Errorf("Profit changed after catalog edit: %s", reloaded.Profit)
	}
}

func TestCreateOrderPriceOutOfRange(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	marketer := seedMarketer(t, db, "range@example.com")
	product := seedProduct(t, db, "ORD-002", 100000, nil, 0)

	_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		MarketerID: marketer.ID,
		Customer:   models.CustomerInfo{Name: "C"},
		Items: []store.OrderItemRequest{
			// max sell price is wholesale*4 = 400000
			{ProductID: product.ID, Quantity: 1, AgreedUnitPrice: decimal.NewFromInt(500000)},
		},
		TotalCost: decimal.NewFromInt(500000),
	})
	if !errors.Is(err, database.ErrPriceOutOfRange) {
		t.Errorf("Expected price out of range error, got: %v", err)
	}
}

func TestApplyFinancialEditRecomputesProfit(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	marketer := seedMarketer(t, db, "edit@example.com")
	product := seedProduct(t, db, "ORD-003", 250000, nil, 0)
	order := seedOrder(t, db, marketer.ID, product, 495000, 500000, 5000)

	newTotal := decimal.NewFromInt(450000)
	note := "customer negotiated the price down"
	edited, err := store.ApplyFinancialEdit(ctx, db, order.ID, store.FinancialEdit{
		TotalCost: &newTotal,
		AdminNote: &note,
	})
	if err != nil {
		t.Fatalf("Apply financial edit: %v", err)
	}

	// (450,000 - 5,000 + 0) - 250,000 = 195,000
	if !edited.Profit.Equal(decimal.NewFromInt(195000)) {
		t.Errorf("Expected recomputed profit 195000, got %s", edited.Profit)
	}
	if edited.AdminNote != note {
		t.Errorf("Expected admin note to be stored, got %q", edited.AdminNote)
	}

	// A loss-making edit is accepted and recorded as negative profit.
	lossTotal := decimal.NewFromInt(200000)
	edited, err = store.ApplyFinancialEdit(ctx, db, order.ID, store.FinancialEdit{TotalCost: &lossTotal})
	if err != nil {
		t.Fatalf("Apply loss edit: %v", err)
	}
	if !edited.Profit.Equal(decimal.NewFromInt(-55000)) {
		t.Errorf("Expected profit -55000, got %s", edited.Profit)
	}

	negative := decimal.NewFromInt(-1)
	_, err = store.ApplyFinancialEdit(ctx, db, order.ID, store.FinancialEdit{TotalCost: &negative})
	if !errors.Is(err, database.ErrInvalidAmount) {
		t.Errorf("Expected invalid amount error, got: %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	marketer := seedMarketer(t, db, "status@example.com")
	product := seedProduct(t, db, "ORD-004", 100000, nil, 0)
	order := seedOrder(t, db, marketer.ID, product, 150000, 150000, 0)

	for _, status := range []string{
		models.OrderStatusPrepared,
		models.OrderStatusShipped,
		models.OrderStatusCompleted,
	} {
		if _, err := store.SetStatus(ctx, db, order.ID, status); err != nil {
			t.Fatalf("Set status %s: %v", status, err)
		}
	}

	// Completed orders are terminal: profit and commission have been
	// recognized and may not regress.
	_, err := store.SetStatus(ctx, db, order.ID, models.OrderStatusUnderImplementation)
	if !errors.Is(err, database.ErrInvalidTransition) {
		t.Errorf("Expected invalid transition error, got: %v", err)
	}

	// Re-setting the same status is a no-op, not an error.
	if _, err := store.SetStatus(ctx, db, order.ID, models.OrderStatusCompleted); err != nil {
		t.Errorf("Setting current status should succeed: %v", err)
	}

	// Status changes never touch profit.
	reloaded, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if !reloaded.Profit.Equal(order.Profit) {
		t.Errorf("Profit changed across transitions: %s != %s", reloaded.Profit, order.Profit)
	}
}

func TestListOrdersCursor(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	marketer := seedMarketer(t, db, "list@example.com")
	product := seedProduct(t, db, "ORD-005", 10000, nil, 0)

	for i := 0; i < 15; i++ {
		seedOrder(t, db, marketer.ID, product, 20000, 20000, 0)
	}

	page1, err := store.ListOrdersCursor(ctx, db, marketer.ID, "", 10)
	if err != nil {
		t.Fatalf("List orders page 1: %v", err)
	}

	if !page1.HasMore {
		t.Error("Page 1 should have more results")
	}
	if page1.NextCursor == "" {
		t.Error("Page 1 should have a next cursor")
	}

	page2, err := store.ListOrdersCursor(ctx, db, marketer.ID, page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("List orders page 2: %v", err)
	}

	if page2.HasMore {
		t.Error("Page 2 should not have more results")
	}
}

func TestConcurrentOrderNumbersDoNotCollide(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	marketer := seedMarketer(t, db, "collide@example.com")
	product := seedProduct(t, db, "ORD-006", 10000, nil, 0)

	concurrency := 10
	results := make(chan error, concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
				MarketerID: marketer.ID,
				Customer:   models.CustomerInfo{Name: "C"},
				Items: []store.OrderItemRequest{
					{ProductID: product.ID, Quantity: 1, AgreedUnitPrice: decimal.NewFromInt(20000)},
				},
				TotalCost: decimal.NewFromInt(20000),
			})
			results <- err
		}()
	}

	for i := 0; i < concurrency; i++ {
		if err := <-results; err != nil {
			t.Errorf("Concurrent create failed: %v", err)
		}
	}

	var distinct int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT order_number) FROM orders WHERE marketer_id = $1`,
		marketer.ID).Scan(&distinct)
	if err != nil {
		t.Fatalf("Count order numbers: %v", err)
	}
	if distinct != concurrency {
		t.Errorf("Expected %d distinct order numbers, got %d", concurrency, distinct)
	}
}
