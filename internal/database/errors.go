package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation, optionally on a specific constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// Not-found errors: stale references, reported distinctly from
// validation failures.
var (
	ErrMarketerNotFound   = errors.New("marketer not found")
	ErrSupplierNotFound   = errors.New("supplier not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	ErrCouponNotFound     = errors.New("coupon not found")
)

// Validation and invariant errors. Every rejected operation leaves
// state exactly as it was before the attempt.
var (
	ErrInsufficientBalance        = errors.New("realized balance is not positive")
	ErrPendingWithdrawalExists    = errors.New("a pending withdrawal request already exists")
	ErrWithdrawalAlreadyProcessed = errors.New("withdrawal request already processed")
	ErrInsufficientCommission     = errors.New("withdrawal exceeds remaining commission")
	ErrInvalidTransition          = errors.New("status transition not permitted")
	ErrInvalidAmount              = errors.New("amount must be positive")
	ErrPriceOutOfRange            = errors.New("agreed price outside allowed selling range")
	ErrCouponCodeExists           = errors.New("coupon code already exists")
	ErrOptimisticLockFailed       = errors.New("optimistic lock failed")
	ErrLockTimeout                = errors.New("lock timeout")
)
