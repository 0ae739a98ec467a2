package issues

import (
	"database/sql"
	"time"
)

// Issue は issues テーブルの1行を表す。
// return_date が NULL の間は貸出中（active）。
type Issue struct {
	IssueID      int64
	IssueULID    string
	BookID       int64
	StudentID    string
	LibrarianID  sql.NullInt64
	IssueDate    time.Time
	DueDate      sql.NullTime
	ReturnDate   sql.NullTime
	RenewalCount int
}

// IsActive reports whether the book has not been returned yet.
func (m *Issue) IsActive() bool { return !m.ReturnDate.Valid }

// IsOverdue: 貸出中で期限切れ
func (m *Issue) IsOverdue(asOf time.Time) bool {
	return m.IsActive() && m.DueDate.Valid && m.DueDate.Time.Before(asOf)
}

// FineRecord は返却トランザクションが作成した fines 行。
// 罰金のCRUD自体は fines パッケージが持つ。
type FineRecord struct {
	FineID         int64
	FineULID       string
	IssueID        int64
	Amount         float64
	Status         string // "Unpaid" | "Paid"
	DateCalculated time.Time
}

// 貸出一覧の検索条件
type IssueFilter struct {
	StudentID   string
	BookID      *int64
	Active      *bool
	OverdueAsOf *time.Time // 指定時: active かつ due_date < asOf に絞る
}

type Page struct {
	Limit  int
	Offset int
	Order  string // issue_date の並び。"asc" | "desc"
}
