package reports

// 貸出1件ぶんの書籍参照。issue_id 昇順で並んでいる前提。
type IssueBookRef struct {
	BookID int64
	Title  string
}

type PopularBook struct {
	BookID     int64  `json:"book_id"`
	Title      string `json:"title"`
	IssueCount int    `json:"issue_count"`
}

type DeptRef struct {
	DeptID   string
	DeptName string
}

type DepartmentCount struct {
	DeptID       string `json:"dept_id"`
	DeptName     string `json:"dept_name"`
	StudentCount int    `json:"student_count"`
}

type OverdueSummary struct {
	OverdueCount     int64   `json:"overdue_count"`
	TotalUnpaidFines float64 `json:"total_unpaid_fines"`
}
