package repository

import (
	"errors"
	"fmt"

	repo "ordercore/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation   = "23505"
	pgLockNotAvailable  = "55P03"
	pgDeadlockDetected  = "40P01"
	constraintOrderCode = "ux_orders_order_code"
	constraintIdemKey   = "ux_orders_user_idempotency"
)

// gorm/pgxのエラーを repository の番兵エラーに寄せる
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgLockNotAvailable, pgDeadlockDetected:
		return fmt.Errorf("%w: %s", repo.ErrLockTimeout, pgErr.Message)
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintOrderCode:
			return fmt.Errorf("%w: %s", repo.ErrOrderCodeConflict, pgErr.Detail)
		case constraintIdemKey:
			return fmt.Errorf("%w: %s", repo.ErrIdempotencyConflict, pgErr.Detail)
		}
	}
	return err
}
