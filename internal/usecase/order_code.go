package usecase

import (
	"fmt"
	"time"
)

const orderCodeDayLayout = "20060102"

// ORD-YYYYMMDD-NNNN。9999を超えたら桁がそのまま伸びる。
func FormatOrderCode(day time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%s-%04d", day.Format(orderCodeDayLayout), seq)
}

// locでの暦日と、その日の [start, end)
func orderCodeDay(now time.Time, loc *time.Location) (string, time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return local.Format(orderCodeDayLayout), start, start.AddDate(0, 0, 1)
}
