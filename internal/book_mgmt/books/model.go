package books

import "database/sql"

// Book は books テーブルの1行を表す
type Book struct {
	BookID            int64
	Title             string
	AuthorID          sql.NullInt64
	Publisher         sql.NullString
	YearOfPublication sql.NullInt64
	AvailableCopies   int
}

// Author は authors テーブルの1行を表す
type Author struct {
	AuthorID   int64
	AuthorName string
}

// 蔵書一覧の検索条件
type BookFilter struct {
	Title    string // 部分一致（大文字小文字を区別しない）
	AuthorID *int64
}

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" | "desc" (book_id)
}
