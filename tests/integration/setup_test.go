package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/adel/dropmarket/internal/models"
	"github.com/adel/dropmarket/internal/store"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "dropmarket_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/dropmarket_test?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func runMigrations(db *sql.DB) error {
	migrationDir := "../../migrations"
	files, err := os.ReadDir(migrationDir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".up.sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		content, err := os.ReadFile(filepath.Join(migrationDir, filename))
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", filename, err)
		}
	}

	return nil
}

// Seed helpers shared by the ledger tests.

func seedMarketer(t *testing.T, db *sql.DB, email string) *models.Marketer {
	t.Helper()
	marketer, err := store.CreateMarketer(context.Background(), db, email, "Test Marketer")
	if err != nil {
		t.Fatalf("Create marketer: %v", err)
	}
	return marketer
}

func seedSupplier(t *testing.T, db *sql.DB, name string) *models.Supplier {
	t.Helper()
	supplier, err := store.CreateSupplier(context.Background(), db, name, "+100000000")
	if err != nil {
		t.Fatalf("Create supplier: %v", err)
	}
	return supplier
}

func seedProduct(t *testing.T, db *sql.DB, sku string, wholesale int64, supplierID *int64, commission int64) *models.Product {
	t.Helper()
	product, err := store.CreateProduct(context.Background(), db, store.ProductDraft{
		SKU:                sku,
		Name:               "Product " + sku,
		Price:              decimal.NewFromInt(wholesale),
		MinSellPrice:       decimal.NewFromInt(wholesale),
		MaxSellPrice:       decimal.NewFromInt(wholesale * 4),
		SupplierID:         supplierID,
		SupplierCommission: decimal.NewFromInt(commission),
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	return product
}

// seedOrder creates a one-item order for the marketer: quantity 1 at
// the given agreed price, with the given total cost and delivery fee.
func seedOrder(t *testing.T, db *sql.DB, marketerID int64, product *models.Product, agreedPrice, totalCost, deliveryFee int64) *models.Order {
	t.Helper()
	order, err := store.CreateOrder(context.Background(), db, store.CreateOrderRequest{
		MarketerID: marketerID,
		Customer: models.CustomerInfo{
			Name:    "End Customer",
			Phone:   "+200000000",
			Address: "12 Harbor St",
		},
		Items: []store.OrderItemRequest{
			{ProductID: product.ID, Quantity: 1, AgreedUnitPrice: decimal.NewFromInt(agreedPrice)},
		},
		DeliveryFee: decimal.NewFromInt(deliveryFee),
		Discount:    decimal.Zero,
		TotalCost:   decimal.NewFromInt(totalCost),
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}
	return order
}

func completeOrder(t *testing.T, db *sql.DB, orderID int64) {
	t.Helper()
	if _, err := store.SetStatus(context.Background(), db, orderID, models.OrderStatusCompleted); err != nil {
		t.Fatalf("Complete order: %v", err)
	}
}
