package books

// ===== Requests =====

type CreateBookRequest struct {
	Title             string  `json:"title" binding:"required"`
	AuthorID          *int64  `json:"author_id,omitempty"`
	Publisher         *string `json:"publisher,omitempty"`
	YearOfPublication *int    `json:"year_of_publication,omitempty"`
	AvailableCopies   int     `json:"available_copies"`
}

type UpdateBookRequest struct {
	Title             *string `json:"title,omitempty"`
	AuthorID          *int64  `json:"author_id,omitempty"`
	Publisher         *string `json:"publisher,omitempty"`
	YearOfPublication *int    `json:"year_of_publication,omitempty"`
	AvailableCopies   *int    `json:"available_copies,omitempty"`
}

type CreateAuthorRequest struct {
	AuthorName string `json:"author_name" binding:"required"`
}

type UpdateAuthorRequest struct {
	AuthorName string `json:"author_name" binding:"required"`
}

// ===== Responses =====

type BookResponse struct {
	BookID            int64   `json:"book_id"`
	Title             string  `json:"title"`
	AuthorID          *int64  `json:"author_id,omitempty"`
	AuthorName        *string `json:"author_name,omitempty"` // 一覧表示用にJOINで埋める
	Publisher         *string `json:"publisher,omitempty"`
	YearOfPublication *int    `json:"year_of_publication,omitempty"`
	AvailableCopies   int     `json:"available_copies"`
}

type AuthorResponse struct {
	AuthorID   int64  `json:"author_id"`
	AuthorName string `json:"author_name"`
}

// CSVインポート結果（1行単位の成否を返す）
type ImportBooksResponse struct {
	Total   int               `json:"total"`
	OkCount int               `json:"ok_count"`
	NgCount int               `json:"ng_count"`
	Results []ImportRowResult `json:"results"`
}

type ImportRowResult struct {
	Row    int     `json:"row"` // 1-based、ヘッダ行を除いたデータ行番号
	BookID int64   `json:"book_id,omitempty"`
	Ok     bool    `json:"ok"`
	Error  *string `json:"error,omitempty"`
}
