package issues

import "time"

// 貸出登録リクエスト
type CreateIssueRequest struct {
	BookID    int64  `json:"book_id" binding:"required"`
	StudentID string `json:"student_id" binding:"required"`
	// 未指定ならログイン中の司書を使う
	LibrarianID *int64 `json:"librarian_id,omitempty"`
	// "2006-01-02" 形式。未指定なら当日
	IssueDate *string `json:"issue_date,omitempty"`
	// 未指定なら issue_date + 貸出期間（ポリシー、既定14日）
	DueDate *string `json:"due_date,omitempty"`
}

// 返却登録リクエスト
type ReturnRequest struct {
	// "2006-01-02" または RFC3339。未指定なら現在時刻
	ReturnDate *string `json:"return_date,omitempty"`
}

// 貸出レスポンス
type IssueResponse struct {
	IssueID      int64      `json:"issue_id"`
	IssueULID    string     `json:"issue_ulid"`
	BookID       int64      `json:"book_id"`
	BookTitle    *string    `json:"book_title,omitempty"`
	StudentID    string     `json:"student_id"`
	StudentName  *string    `json:"student_name,omitempty"`
	LibrarianID  *int64     `json:"librarian_id,omitempty"`
	IssueDate    time.Time  `json:"issue_date"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ReturnDate   *time.Time `json:"return_date,omitempty"`
	RenewalCount int        `json:"renewal_count"`
	Overdue      bool       `json:"overdue"`
}

// 返却レスポンス。延滞していた場合は作成された罰金も返す。
type ReturnResponse struct {
	Issue IssueResponse `json:"issue"`
	Fine  *FineDTO      `json:"fine,omitempty"`
}

type FineDTO struct {
	FineID         int64     `json:"fine_id"`
	FineULID       string    `json:"fine_ulid"`
	IssueID        int64     `json:"issue_id"`
	Amount         float64   `json:"amount"`
	Status         string    `json:"status"`
	DateCalculated time.Time `json:"date_calculated"`
}
