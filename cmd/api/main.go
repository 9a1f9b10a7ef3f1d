package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/adel/dropmarket/internal/config"
	"github.com/adel/dropmarket/internal/database"
	"github.com/adel/dropmarket/internal/ledger"
	"github.com/adel/dropmarket/internal/logger"
	"github.com/adel/dropmarket/internal/models"
	"github.com/adel/dropmarket/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	zaplog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Create logger: %v", err)
	}
	defer zaplog.Sync()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		zaplog.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	zaplog.Info("connected to database")

	mux := http.NewServeMux()

	mux.HandleFunc("/marketers", handleMarketers(db))
	mux.HandleFunc("/marketers/", handleMarketerByID(db))
	mux.HandleFunc("/suppliers", handleSuppliers(db))
	mux.HandleFunc("/suppliers/", handleSupplierByID(db))
	mux.HandleFunc("/products", handleProducts(db))
	mux.HandleFunc("/products/", handleProductByID(db))
	mux.HandleFunc("/orders", handleOrders(db))
	mux.HandleFunc("/orders/", handleOrderByID(db))
	mux.HandleFunc("/withdrawals/", handleWithdrawalByID(db))
	mux.HandleFunc("/coupons", handleCoupons(db))
	mux.HandleFunc("/coupons/", handleCouponByCode(db))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      logger.RequestLogging(mux, zaplog),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	zaplog.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := server.ListenAndServe(); err != nil {
		zaplog.Fatal("server error", zap.Error(err))
	}
}

func handleMarketers(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Email string `json:"email"`
				Name  string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			marketer, err := store.CreateMarketer(ctx, db, req.Email, req.Name)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, marketer)

		case http.MethodGet:
			page, pageSize := pageParams(r)
			result, err := store.ListMarketers(ctx, db, page, pageSize)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleMarketerByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, rest, ok := parseIDPath(r.URL.Path, "/marketers/")
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid marketer ID")
			return
		}

		switch rest {
		case "":
			if r.Method != http.MethodGet {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			marketer, err := store.GetMarketer(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, marketer)

		case "balance":
			if r.Method != http.MethodGet {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			balance, err := store.MarketerBalance(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, balance)

		case "withdrawals":
			switch r.Method {
			case http.MethodPost:
				request, err := store.RequestWithdrawal(ctx, db, id)
				if err != nil {
					respondStoreError(w, err)
					return
				}
				respondJSON(w, http.StatusCreated, request)
			case http.MethodGet:
				withdrawals, err := store.ListWithdrawals(ctx, db, id)
				if err != nil {
					respondStoreError(w, err)
					return
				}
				respondJSON(w, http.StatusOK, withdrawals)
			default:
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}

		default:
			respondError(w, http.StatusNotFound, "Not found")
		}
	}
}

func handleSuppliers(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		supplier, err := store.CreateSupplier(ctx, db, req.Name, req.Phone)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, supplier)
	}
}

func handleSupplierByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, rest, ok := parseIDPath(r.URL.Path, "/suppliers/")
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid supplier ID")
			return
		}

		switch rest {
		case "":
			if r.Method != http.MethodGet {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			supplier, err := store.GetSupplier(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, supplier)

		case "balance":
			if r.Method != http.MethodGet {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			balance, err := store.SupplierBalance(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, balance)

		case "withdrawals":
			switch r.Method {
			case http.MethodPost:
				var req struct {
					Amount float64 `json:"amount"`
					Note   string  `json:"note"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					respondError(w, http.StatusBadRequest, "Invalid request body")
					return
				}
				withdrawal, err := store.SupplierWithdraw(ctx, db, id, decimal.NewFromFloat(req.Amount), req.Note)
				if err != nil {
					respondStoreError(w, err)
					return
				}
				respondJSON(w, http.StatusCreated, withdrawal)
			case http.MethodGet:
				withdrawals, err := store.ListSupplierWithdrawals(ctx, db, id)
				if err != nil {
					respondStoreError(w, err)
					return
				}
				respondJSON(w, http.StatusOK, withdrawals)
			default:
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}

		default:
			respondError(w, http.StatusNotFound, "Not found")
		}
	}
}

func handleProducts(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				SKU                string  `json:"sku"`
				Name               string  `json:"name"`
				Description        string  `json:"description"`
				Price              float64 `json:"price"`
				MinSellPrice       float64 `json:"min_sell_price"`
				MaxSellPrice       float64 `json:"max_sell_price"`
				SupplierID         *int64  `json:"supplier_id"`
				SupplierCommission float64 `json:"supplier_commission"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			product, err := store.CreateProduct(ctx, db, store.ProductDraft{
				SKU:                req.SKU,
				Name:               req.Name,
				Description:        req.Description,
				Price:              decimal.NewFromFloat(req.Price),
				MinSellPrice:       decimal.NewFromFloat(req.MinSellPrice),
				MaxSellPrice:       decimal.NewFromFloat(req.MaxSellPrice),
				SupplierID:         req.SupplierID,
				SupplierCommission: decimal.NewFromFloat(req.SupplierCommission),
			})
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, product)

		case http.MethodGet:
			page, pageSize := pageParams(r)
			result, err := store.ListProducts(ctx, db, page, pageSize)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProductByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, rest, ok := parseIDPath(r.URL.Path, "/products/")
		if !ok || rest != "" {
			respondError(w, http.StatusBadRequest, "Invalid product ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			product, err := store.GetProduct(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, product)

		case http.MethodPut:
			var req struct {
				Price              float64 `json:"price"`
				MinSellPrice       float64 `json:"min_sell_price"`
				MaxSellPrice       float64 `json:"max_sell_price"`
				SupplierCommission float64 `json:"supplier_commission"`
				Version            int     `json:"version"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			err := store.UpdateProductPricing(ctx, db, id,
				decimal.NewFromFloat(req.Price),
				decimal.NewFromFloat(req.MinSellPrice),
				decimal.NewFromFloat(req.MaxSellPrice),
				decimal.NewFromFloat(req.SupplierCommission),
				req.Version)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			product, err := store.GetProduct(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, product)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

type orderItemPayload struct {
	ProductID       int64   `json:"product_id"`
	Quantity        int     `json:"quantity"`
	SizeLabel       string  `json:"size_label"`
	AgreedUnitPrice float64 `json:"agreed_unit_price"`
}

func handleOrders(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				MarketerID  int64               `json:"marketer_id"`
				Customer    models.CustomerInfo `json:"customer"`
				Items       []orderItemPayload  `json:"items"`
				DeliveryFee float64             `json:"delivery_fee"`
				Discount    float64             `json:"discount"`
				TotalCost   float64             `json:"total_cost"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			var items []store.OrderItemRequest
			for _, item := range req.Items {
				items = append(items, store.OrderItemRequest{
					ProductID:       item.ProductID,
					Quantity:        item.Quantity,
					SizeLabel:       item.SizeLabel,
					AgreedUnitPrice: decimal.NewFromFloat(item.AgreedUnitPrice),
				})
			}

			order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
				MarketerID:  req.MarketerID,
				Customer:    req.Customer,
				Items:       items,
				DeliveryFee: decimal.NewFromFloat(req.DeliveryFee),
				Discount:    decimal.NewFromFloat(req.Discount),
				TotalCost:   decimal.NewFromFloat(req.TotalCost),
			})
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, order)

		case http.MethodGet:
			marketerID, err := strconv.ParseInt(r.URL.Query().Get("marketer_id"), 10, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid marketer_id")
				return
			}
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			if limit < 1 || limit > 100 {
				limit = 20
			}

			result, err := store.ListOrdersCursor(ctx, db, marketerID, r.URL.Query().Get("cursor"), limit)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleOrderByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, rest, ok := parseIDPath(r.URL.Path, "/orders/")
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		switch rest {
		case "":
			if r.Method != http.MethodGet {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			order, err := store.GetOrder(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, order)

		case "status":
			if r.Method != http.MethodPut {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			var req struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}
			order, err := store.SetStatus(ctx, db, id, req.Status)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, order)

		case "financial-edit":
			if r.Method != http.MethodPut {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			var req struct {
				Customer  *models.CustomerInfo `json:"customer"`
				TotalCost *float64             `json:"total_cost"`
				AdminNote *string              `json:"admin_note"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			edit := store.FinancialEdit{
				Customer:  req.Customer,
				AdminNote: req.AdminNote,
			}
			if req.TotalCost != nil {
				total := decimal.NewFromFloat(*req.TotalCost)
				edit.TotalCost = &total
			}

			order, err := store.ApplyFinancialEdit(ctx, db, id, edit)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, order)

		default:
			respondError(w, http.StatusNotFound, "Not found")
		}
	}
}

func handleWithdrawalByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, rest, ok := parseIDPath(r.URL.Path, "/withdrawals/")
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid withdrawal ID")
			return
		}

		switch rest {
		case "":
			if r.Method != http.MethodGet {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			request, err := store.GetWithdrawal(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, request)

		case "process":
			if r.Method != http.MethodPost {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			request, err := store.ProcessWithdrawal(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, request)

		default:
			respondError(w, http.StatusNotFound, "Not found")
		}
	}
}

func handleCoupons(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Code           string     `json:"code"`
				Type           string     `json:"type"`
				Value          float64    `json:"value"`
				MinOrderAmount float64    `json:"min_order_amount"`
				ExpiresAt      *time.Time `json:"expires_at"`
				UsageLimit     int        `json:"usage_limit"`
				IsActive       bool       `json:"is_active"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			coupon, err := store.CreateCoupon(ctx, db, store.CouponDraft{
				Code:           req.Code,
				Type:           req.Type,
				Value:          decimal.NewFromFloat(req.Value),
				MinOrderAmount: decimal.NewFromFloat(req.MinOrderAmount),
				ExpiresAt:      req.ExpiresAt,
				UsageLimit:     req.UsageLimit,
				IsActive:       req.IsActive,
			})
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, coupon)

		case http.MethodGet:
			page, pageSize := pageParams(r)
			result, err := store.ListCoupons(ctx, db, page, pageSize)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleCouponByCode(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		path := strings.TrimPrefix(r.URL.Path, "/coupons/")
		code, rest, _ := strings.Cut(path, "/")
		if code == "" {
			respondError(w, http.StatusBadRequest, "Invalid coupon code")
			return
		}

		switch rest {
		case "":
			switch r.Method {
			case http.MethodGet:
				coupon, err := store.GetCouponByCode(ctx, db, code)
				if err != nil {
					respondStoreError(w, err)
					return
				}
				respondJSON(w, http.StatusOK, coupon)

			case http.MethodPut:
				var req struct {
					Value          *float64   `json:"value"`
					MinOrderAmount *float64   `json:"min_order_amount"`
					ExpiresAt      *time.Time `json:"expires_at"`
					UsageLimit     *int       `json:"usage_limit"`
					IsActive       *bool      `json:"is_active"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					respondError(w, http.StatusBadRequest, "Invalid request body")
					return
				}

				update := store.CouponUpdate{
					ExpiresAt:  req.ExpiresAt,
					UsageLimit: req.UsageLimit,
					IsActive:   req.IsActive,
				}
				if req.Value != nil {
					v := decimal.NewFromFloat(*req.Value)
					update.Value = &v
				}
				if req.MinOrderAmount != nil {
					m := decimal.NewFromFloat(*req.MinOrderAmount)
					update.MinOrderAmount = &m
				}

				coupon, err := store.UpdateCoupon(ctx, db, code, update)
				if err != nil {
					respondStoreError(w, err)
					return
				}
				respondJSON(w, http.StatusOK, coupon)

			case http.MethodDelete:
				if err := store.DeleteCoupon(ctx, db, code); err != nil {
					respondStoreError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)

			default:
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}

		case "validate":
			if r.Method != http.MethodGet {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			subtotal, err := decimal.NewFromString(r.URL.Query().Get("subtotal"))
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid subtotal")
				return
			}

			discount, coupon, err := store.ValidateCoupon(ctx, db, code, subtotal)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"discount": discount,
				"coupon":   coupon,
			})

		case "redeem":
			if r.Method != http.MethodPost {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			if err := store.RecordRedemption(ctx, db, code); err != nil {
				respondStoreError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusNotFound, "Not found")
		}
	}
}

func parseIDPath(path, prefix string) (int64, string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	idStr, sub, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, sub, true
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrMarketerNotFound),
		errors.Is(err, database.ErrSupplierNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrWithdrawalNotFound),
		errors.Is(err, database.ErrCouponNotFound):
		respondError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, database.ErrPendingWithdrawalExists),
		errors.Is(err, database.ErrWithdrawalAlreadyProcessed),
		errors.Is(err, database.ErrCouponCodeExists),
		errors.Is(err, database.ErrOptimisticLockFailed),
		errors.Is(err, database.ErrLockTimeout),
		errors.Is(err, database.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())

	case errors.Is(err, database.ErrInsufficientBalance),
		errors.Is(err, database.ErrInsufficientCommission),
		errors.Is(err, database.ErrInvalidAmount),
		errors.Is(err, database.ErrPriceOutOfRange),
		errors.Is(err, ledger.ErrCouponInactive),
		errors.Is(err, ledger.ErrCouponExpired),
		errors.Is(err, ledger.ErrCouponBelowMinimum),
		errors.Is(err, ledger.ErrCouponUsageLimitReached):
		respondError(w, http.StatusUnprocessableEntity, err.Error())

	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
