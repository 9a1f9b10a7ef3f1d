package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adel/dropmarket/internal/database"
	"github.com/adel/dropmarket/internal/ledger"
	"github.com/adel/dropmarket/internal/models"
)

// MarketerBalance derives the marketer's balances from their orders and
// withdrawal requests inside one consistent snapshot. Nothing is
// cached: every call recomputes from the source records.
func MarketerBalance(ctx context.Context, db *sql.DB, marketerID int64) (*models.MarketerBalance, error) {
	var balance models.MarketerBalance

	err := database.WithReadOnlyTx(ctx, db, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM marketers WHERE id = $1)",
			marketerID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check marketer exists: %w", err)
		}
		if !exists {
			return database.ErrMarketerNotFound
		}

		orders, err := marketerOrders(ctx, tx, marketerID)
		if err != nil {
			return err
		}
		withdrawals, err := marketerWithdrawals(ctx, tx, marketerID)
		if err != nil {
			return err
		}

		balance = ledger.ComputeMarketerBalance(orders, withdrawals)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return &balance, nil
}

// RequestWithdrawal freezes the marketer's current realized balance
// into a new pending request. The amount is a commitment to pay and is
// never adjusted afterwards, even if order profits change while the
// request is outstanding. A partial unique index on
// (marketer_id) WHERE status = 'pending' makes the single-pending
// invariant hold under concurrent requests: one insert wins, the rest
// fail cleanly.
func RequestWithdrawal(ctx context.Context, db *sql.DB, marketerID int64) (*models.WithdrawalRequest, error) {
	var request *models.WithdrawalRequest

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM marketers WHERE id = $1)",
			marketerID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check marketer exists: %w", err)
		}
		if !exists {
			return database.ErrMarketerNotFound
		}

		// Advisory check for a friendly error; the partial unique
		// index is what actually closes the race.
		var pendingExists bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM withdrawal_requests WHERE marketer_id = $1 AND status = $2)`,
			marketerID, models.WithdrawalStatusPending).Scan(&pendingExists)
		if err != nil {
			return fmt.Errorf("check pending withdrawal: %w", err)
		}
		if pendingExists {
			return database.ErrPendingWithdrawalExists
		}

		orders, err := marketerOrders(ctx, tx, marketerID)
		if err != nil {
			return err
		}
		withdrawals, err := marketerWithdrawals(ctx, tx, marketerID)
		if err != nil {
			return err
		}

		balance := ledger.ComputeMarketerBalance(orders, withdrawals)
		if !balance.RealizedBalance.IsPositive() {
			return database.ErrInsufficientBalance
		}

		request = &models.WithdrawalRequest{}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO withdrawal_requests (marketer_id, amount, status, request_date)
			 VALUES ($1, $2, $3, NOW())
			 RETURNING id, marketer_id, amount, status, request_date`,
			marketerID, balance.RealizedBalance, models.WithdrawalStatusPending).Scan(
			&request.ID, &request.MarketerID, &request.Amount,
			&request.Status, &request.RequestDate,
		)
		if err != nil {
			if database.IsUniqueViolation(err, "withdrawal_requests_one_pending_idx") {
				return database.ErrPendingWithdrawalExists
			}
			return fmt.Errorf("create withdrawal request: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return request, nil
}

// ProcessWithdrawal transitions a request from pending to completed and
// stamps the processing time. The guarded UPDATE makes it safe to
// retry: a second invocation finds no pending row and reports the
// request as already processed instead of crediting twice.
func ProcessWithdrawal(ctx context.Context, db *sql.DB, requestID int64) (*models.WithdrawalRequest, error) {
	request := &models.WithdrawalRequest{}
	var processed sql.NullTime

	err := db.QueryRowContext(ctx,
		`UPDATE withdrawal_requests
		 SET status = $1, processed_date = NOW()
		 WHERE id = $2 AND status = $3
		 RETURNING id, marketer_id, amount, status, request_date, processed_date`,
		models.WithdrawalStatusCompleted, requestID, models.WithdrawalStatusPending).Scan(
		&request.ID, &request.MarketerID, &request.Amount,
		&request.Status, &request.RequestDate, &processed,
	)
	if err == nil {
		if processed.Valid {
			request.ProcessedDate = &processed.Time
		}
		return request, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("process withdrawal: %w", err)
	}

	// No pending row matched: distinguish a stale id from a repeat call.
	var status string
	err = db.QueryRowContext(ctx,
		`SELECT status FROM withdrawal_requests WHERE id = $1`,
		requestID).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("check withdrawal status: %w", err)
	}

	return nil, database.ErrWithdrawalAlreadyProcessed
}

func GetWithdrawal(ctx context.Context, db *sql.DB, id int64) (*models.WithdrawalRequest, error) {
	request := &models.WithdrawalRequest{}
	var processed sql.NullTime

	err := db.QueryRowContext(ctx,
		`SELECT id, marketer_id, amount, status, request_date, processed_date
		 FROM withdrawal_requests
		 WHERE id = $1`,
		id).Scan(
		&request.ID, &request.MarketerID, &request.Amount,
		&request.Status, &request.RequestDate, &processed,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	if processed.Valid {
		request.ProcessedDate = &processed.Time
	}

	return request, nil
}

func ListWithdrawals(ctx context.Context, db *sql.DB, marketerID int64) ([]models.WithdrawalRequest, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, marketer_id, amount, status, request_date, processed_date
		 FROM withdrawal_requests
		 WHERE marketer_id = $1
		 ORDER BY request_date DESC, id DESC`,
		marketerID)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	return scanWithdrawals(rows)
}

// NextPendingWithdrawal picks one pending request for administrative
// processing, skipping rows another processor already holds.
func NextPendingWithdrawal(ctx context.Context, tx *sql.Tx) (*models.WithdrawalRequest, error) {
	request := &models.WithdrawalRequest{}

	err := tx.QueryRowContext(ctx,
		`SELECT id, marketer_id, amount, status, request_date
		 FROM withdrawal_requests
		 WHERE status = $1
		 ORDER BY request_date
		 FOR UPDATE SKIP LOCKED
		 LIMIT 1`,
		models.WithdrawalStatusPending).Scan(
		&request.ID, &request.MarketerID, &request.Amount,
		&request.Status, &request.RequestDate,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("get next pending withdrawal: %w", err)
	}

	return request, nil
}

func marketerWithdrawals(ctx context.Context, tx *sql.Tx, marketerID int64) ([]models.WithdrawalRequest, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, marketer_id, amount, status, request_date, processed_date
		 FROM withdrawal_requests
		 WHERE marketer_id = $1`,
		marketerID)
	if err != nil {
		return nil, fmt.Errorf("load marketer withdrawals: %w", err)
	}
	defer rows.Close()

	return scanWithdrawals(rows)
}

func scanWithdrawals(rows *sql.Rows) ([]models.WithdrawalRequest, error) {
	var withdrawals []models.WithdrawalRequest
	for rows.Next() {
		var w models.WithdrawalRequest
		var processed sql.NullTime
		err := rows.Scan(&w.ID, &w.MarketerID, &w.Amount, &w.Status, &w.RequestDate, &processed)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		if processed.Valid {
			w.ProcessedDate = &processed.Time
		}
		withdrawals = append(withdrawals, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return withdrawals, nil
}
