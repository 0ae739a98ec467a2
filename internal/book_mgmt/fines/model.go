package fines

import (
	"database/sql"
	"time"
)

const (
	StatusUnpaid = "Unpaid"
	StatusPaid   = "Paid"
)

type Fine struct {
	FineID         int64
	FineULID       string
	IssueID        int64
	Amount         float64
	Status         string
	DateCalculated time.Time
	DatePaid       sql.NullTime
}

func (f *Fine) IsPaid() bool { return f.Status == StatusPaid }

// 未納罰金候補。延滞中（または延滞返却済み）で罰金未作成の貸出。
type OverdueCandidate struct {
	IssueID    int64
	IssueULID  string
	BookID     int64
	StudentID  string
	DueDate    time.Time
	ReturnDate sql.NullTime
	// asOf（返却済みなら返却日）時点で計算した金額
	Amount float64
}

type FineFilter struct {
	Status    string // "Unpaid" / "Paid" / ""（全件）
	StudentID string
	IssueID   int64
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
