package repository

import (
	"context"
	"time"
)

// 日別の注文番号シーケンス。
type OrderCodeRepository interface {
	// day(YYYYMMDD)の次の番号を返す。カウンタ行はトランザクション終了までロックされる。
	// その日の初回は [dayStart, dayEnd) の注文件数+1 から始める。
	NextSequence(ctx context.Context, day string, dayStart, dayEnd time.Time) (int64, error)
}
