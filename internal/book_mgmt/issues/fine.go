package issues

import (
	"math"
	"time"
)

// 延滞日数は切り上げ。期限を1分でも過ぎたら1日分の罰金になる。
// 期限当日の返却は0。

// ComputeFine returns the fine amount for a return, never negative.
// A zero due date means the loan had no deadline and never fines.
func ComputeFine(due, returned time.Time, ratePerDay float64) float64 {
	if due.IsZero() {
		return 0
	}
	late := returned.Sub(due)
	if late <= 0 {
		return 0
	}
	days := math.Ceil(late.Hours() / 24)
	return days * ratePerDay
}
