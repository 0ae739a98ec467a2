package fines

import "time"

// 手動登録リクエスト（返却時の自動計上とは別口）
type CreateFineRequest struct {
	IssueID int64   `json:"issue_id" binding:"required"`
	Amount  float64 `json:"amount" binding:"required"`
}

// 納付リクエスト。未指定なら現在時刻
type PayFineRequest struct {
	PaidAt *string `json:"paid_at,omitempty"`
}

type FineResponse struct {
	FineID         int64      `json:"fine_id"`
	FineULID       string     `json:"fine_ulid"`
	IssueID        int64      `json:"issue_id"`
	Amount         float64    `json:"amount"`
	Status         string     `json:"status"`
	DateCalculated time.Time  `json:"date_calculated"`
	DatePaid       *time.Time `json:"date_paid,omitempty"`
	StudentID      *string    `json:"student_id,omitempty"`
	StudentName    *string    `json:"student_name,omitempty"`
	BookTitle      *string    `json:"book_title,omitempty"`
}

type OverdueCandidateResponse struct {
	IssueID    int64      `json:"issue_id"`
	IssueULID  string     `json:"issue_ulid"`
	BookID     int64      `json:"book_id"`
	StudentID  string     `json:"student_id"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	Amount     float64    `json:"amount"`
}
