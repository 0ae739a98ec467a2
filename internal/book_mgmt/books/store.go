package books

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysql "github.com/go-sql-driver/mysql"

	"LIBRA-backend/internal/platform/db"
)

// issues 側のトランザクションから使う在庫エラー
var ErrNoAvailableCopies = errors.New("no available copies")

type Store struct {
	db *sql.DB
}

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

type bookRow struct {
	Book
	AuthorName sql.NullString
}

// ===== copy-count primitives =====
// 貸出・返却トランザクションの中からだけ呼ぶこと。
// 行ロックを取らずに呼ぶと在庫カウントが壊れる。

// LockAvailableTx locks the book row and returns current available_copies.
func LockAvailableTx(ctx context.Context, tx db.DBTX, bookID int64) (int, error) {
	const q = `SELECT available_copies FROM books WHERE book_id = ? FOR UPDATE`
	var copies int
	if err := tx.QueryRowContext(ctx, q, bookID).Scan(&copies); err != nil {
		return 0, err
	}
	return copies, nil
}

// AddAvailableTx applies delta to available_copies for a row already locked
// in this transaction. delta = -1 on issue, +1 on return.
func AddAvailableTx(ctx context.Context, tx db.DBTX, bookID int64, delta int) error {
	const q = `UPDATE books SET available_copies = available_copies + ? WHERE book_id = ? AND available_copies + ? >= 0`
	res, err := tx.ExecContext(ctx, q, delta, bookID, delta)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff != 1 {
		return ErrNoAvailableCopies
	}
	return nil
}

// ===== books =====

func (s *Store) GetBookByID(ctx context.Context, id int64) (*bookRow, error) {
	const q = `
	SELECT b.book_id, b.title, b.author_id, b.publisher, b.year_of_publication, b.available_copies,
	       a.author_name
	FROM books b
	LEFT JOIN authors a ON a.author_id = b.author_id
	WHERE b.book_id = ?`
	var r bookRow
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&r.BookID, &r.Title, &r.AuthorID, &r.Publisher, &r.YearOfPublication, &r.AvailableCopies,
		&r.AuthorName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("book not found")
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListBooks(ctx context.Context, f BookFilter, p Page) ([]bookRow, int64, error) {
	sb := strings.Builder{}
	sb.WriteString(`
	SELECT b.book_id, b.title, b.author_id, b.publisher, b.year_of_publication, b.available_copies,
	       a.author_name
	FROM books b
	LEFT JOIN authors a ON a.author_id = b.author_id
	WHERE 1=1
`)

	args := []any{}
	if f.Title != "" {
		sb.WriteString(` AND b.title LIKE CONCAT('%', ?, '%')`)
		args = append(args, f.Title)
	}
	if f.AuthorID != nil {
		sb.WriteString(` AND b.author_id = ?`)
		args = append(args, *f.AuthorID)
	}
	order := "ASC"
	if strings.ToLower(p.Order) == "desc" {
		order = "DESC"
	}
	sb.WriteString(fmt.Sprintf(` ORDER BY b.book_id %s`, order))
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []bookRow
	for rows.Next() {
		var r bookRow
		if err := rows.Scan(
			&r.BookID, &r.Title, &r.AuthorID, &r.Publisher, &r.YearOfPublication, &r.AvailableCopies,
			&r.AuthorName,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cb := strings.Builder{}
	cb.WriteString(`SELECT COUNT(*) FROM books b WHERE 1=1`)
	argsCnt := []any{}
	if f.Title != "" {
		cb.WriteString(` AND b.title LIKE CONCAT('%', ?, '%')`)
		argsCnt = append(argsCnt, f.Title)
	}
	if f.AuthorID != nil {
		cb.WriteString(` AND b.author_id = ?`)
		argsCnt = append(argsCnt, *f.AuthorID)
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, cb.String(), argsCnt...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

func (s *Store) InsertBook(ctx context.Context, m *Book) error {
	const q = `
	INSERT INTO books (title, author_id, publisher, year_of_publication, available_copies)
	VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		m.Title,
		nullInt64OrNil(m.AuthorID),
		nullStrOrNil(m.Publisher),
		nullInt64OrNil(m.YearOfPublication),
		m.AvailableCopies,
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1452 {
			return ErrInvalid("invalid author_id")
		}
		return err
	}
	id, _ := res.LastInsertId()
	m.BookID = id
	return nil
}

func (s *Store) UpdateBookByID(ctx context.Context, id int64, in UpdateBookRequest) (*bookRow, error) {
	sets := []string{}
	args := []any{}
	if in.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *in.Title)
	}
	if in.AuthorID != nil {
		sets = append(sets, "author_id = ?")
		args = append(args, *in.AuthorID)
	}
	if in.Publisher != nil {
		sets = append(sets, "publisher = ?")
		args = append(args, *in.Publisher)
	}
	if in.YearOfPublication != nil {
		sets = append(sets, "year_of_publication = ?")
		args = append(args, *in.YearOfPublication)
	}
	if in.AvailableCopies != nil {
		sets = append(sets, "available_copies = ?")
		args = append(args, *in.AvailableCopies)
	}
	if len(sets) == 0 {
		return s.GetBookByID(ctx, id)
	}

	q := fmt.Sprintf(`UPDATE books SET %s WHERE book_id = ?`, strings.Join(sets, ", "))
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1452 {
			return nil, ErrInvalid("invalid author_id")
		}
		return nil, err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		// 変更なし更新も0になるため、存在確認で確定させる
		return s.GetBookByID(ctx, id)
	}
	return s.GetBookByID(ctx, id)
}

// DeleteBook fails with CONFLICT while issue rows (active or historical)
// still reference the book. The message carries up to 5 conflicting issue IDs.
func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	refs, err := s.sampleIssueRefs(ctx, `SELECT issue_id FROM issues WHERE book_id = ? LIMIT 5`, id)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return ErrConflict(fmt.Sprintf("book is referenced by issues: %s", strings.Join(refs, ", ")))
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE book_id = ?`, id)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1451 {
			// FK側でも弾かれる（サンプル取得との間に割り込まれた場合）
			return ErrConflict("book is referenced by issues")
		}
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound("book not found")
	}
	return nil
}

// ===== authors =====

func (s *Store) GetAuthorByID(ctx context.Context, id int64) (*Author, error) {
	const q = `SELECT author_id, author_name FROM authors WHERE author_id = ?`
	var a Author
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&a.AuthorID, &a.AuthorName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("author not found")
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListAuthors(ctx context.Context) ([]Author, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT author_id, author_name FROM authors ORDER BY author_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Author
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.AuthorID, &a.AuthorName); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) InsertAuthor(ctx context.Context, a *Author) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO authors (author_name) VALUES (?)`, a.AuthorName)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	a.AuthorID = id
	return nil
}

// ResolveOrCreateAuthor returns the author_id for name, creating the row when
// missing. Used by the CSV import.
func (s *Store) ResolveOrCreateAuthor(ctx context.Context, name string) (int64, error) {
	const q = `SELECT author_id FROM authors WHERE author_name = ? LIMIT 1`
	var id int64
	err := s.db.QueryRowContext(ctx, q, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	a := Author{AuthorName: name}
	if err := s.InsertAuthor(ctx, &a); err != nil {
		return 0, err
	}
	return a.AuthorID, nil
}

func (s *Store) UpdateAuthorByID(ctx context.Context, id int64, name string) (*Author, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE authors SET author_name = ? WHERE author_id = ?`, name, id)
	if err != nil {
		return nil, err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		// 同名更新の可能性があるので存在確認
		return s.GetAuthorByID(ctx, id)
	}
	return s.GetAuthorByID(ctx, id)
}

func (s *Store) DeleteAuthor(ctx context.Context, id int64) error {
	refs, err := s.sampleIssueRefs(ctx, `SELECT book_id FROM books WHERE author_id = ? LIMIT 5`, id)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return ErrConflict(fmt.Sprintf("author is referenced by books: %s", strings.Join(refs, ", ")))
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM authors WHERE author_id = ?`, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound("author not found")
	}
	return nil
}

// ---------- helpers ----------

func (s *Store) sampleIssueRefs(ctx context.Context, q string, arg any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		refs = append(refs, fmt.Sprintf("%d", id))
	}
	return refs, rows.Err()
}

func nullStrOrNil(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}

func nullInt64OrNil(ni sql.NullInt64) any {
	if ni.Valid {
		return ni.Int64
	}
	return nil
}
