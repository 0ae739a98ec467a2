package students

import (
	"database/sql"
	"time"
)

// Student の主キーは正規化済みUSN（例 "1cd23is001"）。
type Student struct {
	StudentID string
	Name      string
	Email     string
	Contact   sql.NullString
	Year      sql.NullInt64
	DeptID    sql.NullString
	CreatedAt time.Time
}

type Department struct {
	DeptID   string
	DeptName string
}

type StudentFilter struct {
	Name   string // 部分一致
	DeptID string
	Year   *int64
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
