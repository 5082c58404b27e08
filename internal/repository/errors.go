package repository

import "errors"

var (
	// 対象の行が無い
	ErrNotFound = errors.New("not found")

	// 行ロックが時間内に取れなかった（デッドロック検出も含む）。やり直し可能。
	ErrLockTimeout = errors.New("lock timeout")

	// order_code の一意制約に当たった。やり直し可能。
	ErrOrderCodeConflict = errors.New("order code conflict")

	// 同じ冪等キーの注文が同時に作られた。やり直すと既存注文が見える。
	ErrIdempotencyConflict = errors.New("idempotency key conflict")

	// 条件付き更新で現在のステータスが想定と違った
	ErrStatusConflict = errors.New("order status conflict")
)

// 呼び出し側がトランザクションごとやり直してよいエラーか
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrOrderCodeConflict) ||
		errors.Is(err, ErrIdempotencyConflict)
}
