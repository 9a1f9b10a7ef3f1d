package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Marketer struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID                 int64           `json:"id"`
	SKU                string          `json:"sku"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	Price              decimal.Decimal `json:"price"`
	MinSellPrice       decimal.Decimal `json:"min_sell_price"`
	MaxSellPrice       decimal.Decimal `json:"max_sell_price"`
	SupplierID         *int64          `json:"supplier_id,omitempty"`
	SupplierCommission decimal.Decimal `json:"supplier_commission"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Version            int             `json:"version"`
}

// CustomerInfo is copied into the order at creation time. Orders never
// reference a live customer record, so later edits to a customer cannot
// alter historical orders.
type CustomerInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type Order struct {
	ID          int64           `json:"id"`
	OrderNumber string          `json:"order_number"`
	MarketerID  int64           `json:"marketer_id"`
	Customer    CustomerInfo    `json:"customer"`
	Status      string          `json:"status"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Discount    decimal.Decimal `json:"discount"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Profit      decimal.Decimal `json:"profit"`
	AdminNote   string          `json:"admin_note,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Items       []OrderItem     `json:"items,omitempty"`
}

// OrderItem freezes the product's wholesale price and supplier
// commission at order time. ProductID is kept for provenance only;
// the snapshot columns are the source of truth for all accounting.
type OrderItem struct {
	ID                 int64           `json:"id"`
	OrderID            int64           `json:"order_id"`
	ProductID          int64           `json:"product_id"`
	ProductName        string          `json:"product_name"`
	SizeLabel          string          `json:"size_label,omitempty"`
	Quantity           int             `json:"quantity"`
	AgreedUnitPrice    decimal.Decimal `json:"agreed_unit_price"`
	WholesalePrice     decimal.Decimal `json:"wholesale_price"`
	SupplierID         *int64          `json:"supplier_id,omitempty"`
	SupplierCommission decimal.Decimal `json:"supplier_commission"`
	CreatedAt          time.Time       `json:"created_at"`
}

const (
	OrderStatusUnderImplementation = "under_implementation"
	OrderStatusPrepared            = "prepared"
	OrderStatusShipped             = "shipped"
	OrderStatusCompleted           = "completed"
	OrderStatusPartiallyDelivered  = "partially_delivered"
	OrderStatusPostponed           = "postponed"
	OrderStatusCancelled           = "cancelled"
	OrderStatusRejected            = "rejected"
)

type WithdrawalRequest struct {
	ID            int64           `json:"id"`
	MarketerID    int64           `json:"marketer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	RequestDate   time.Time       `json:"request_date"`
	ProcessedDate *time.Time      `json:"processed_date,omitempty"`
}

const (
	WithdrawalStatusPending   = "pending"
	WithdrawalStatusCompleted = "completed"
)

// SupplierWithdrawal rows are append-only; every entry is final.
type SupplierWithdrawal struct {
	ID         int64           `json:"id"`
	SupplierID int64           `json:"supplier_id"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Coupon struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Type           string          `json:"type"`
	Value          decimal.Decimal `json:"value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	UsageLimit     int             `json:"usage_limit"`
	UsedCount      int             `json:"used_count"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

const (
	CouponTypeFixed      = "fixed"
	CouponTypePercentage = "percentage"
)

// MarketerBalance is derived from orders and withdrawal requests on
// every read; no running total is stored anywhere.
type MarketerBalance struct {
	TotalEarnings     decimal.Decimal `json:"total_earnings"`
	PendingProfit     decimal.Decimal `json:"pending_profit"`
	TotalReturns      decimal.Decimal `json:"total_returns"`
	TotalWithdrawn    decimal.Decimal `json:"total_withdrawn"`
	PendingWithdrawal decimal.Decimal `json:"pending_withdrawal"`
	RealizedBalance   decimal.Decimal `json:"realized_balance"`
}

type SupplierBalance struct {
	Earned    decimal.Decimal `json:"earned"`
	Withdrawn decimal.Decimal `json:"withdrawn"`
	Remaining decimal.Decimal `json:"remaining"`
}
