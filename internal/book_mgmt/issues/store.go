package issues

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"

	"LIBRA-backend/internal/book_mgmt/books"
)

type issueRow struct {
	Issue
	BookTitle   sql.NullString
	StudentName sql.NullString
}

// Store is what the lifecycle service needs from persistence. The SQL
// implementation below is the real one; tests run against an in-memory
// implementation with the same transition rules.
type Store interface {
	ExecCreateIssue(ctx context.Context, m *Issue) error
	ExecReturn(ctx context.Context, issueID int64, returnedAt time.Time, ratePerDay float64, fineULID string) (*issueRow, *FineRecord, error)
	ExecRenew(ctx context.Context, issueID int64, extendDays int) (*issueRow, error)
	GetIssueByID(ctx context.Context, id int64) (*issueRow, error)
	GetIssueByULID(ctx context.Context, ulid string) (*issueRow, error)
	ListIssues(ctx context.Context, f IssueFilter, p Page) ([]issueRow, int64, error)
	DeleteIssue(ctx context.Context, id int64) error
	CountActive(ctx context.Context) (int64, error)
}

type SQLStore struct {
	db *sql.DB
}

func NewStore(d *sql.DB) *SQLStore { return &SQLStore{db: d} }

const issueCols = `i.issue_id, i.issue_ulid, i.book_id, i.student_id, i.librarian_id,
	i.issue_date, i.due_date, i.return_date, i.renewal_count`

// ExecCreateIssue runs the whole issue flow in one transaction:
// lock the book row, check stock, decrement, insert the issue.
// 在庫カウントと貸出行がズレる余地を残さないこと。
func (s *SQLStore) ExecCreateIssue(ctx context.Context, m *Issue) error {
	var err error
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// 1. Lock book row & stock check
	copies, err := books.LockAvailableTx(ctx, tx, m.BookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound("book not found")
		}
		return err
	}
	if copies <= 0 {
		err = ErrConflict("no available copies")
		return err
	}

	// 2. Decrement stock
	if err = books.AddAvailableTx(ctx, tx, m.BookID, -1); err != nil {
		if errors.Is(err, books.ErrNoAvailableCopies) {
			err = ErrConflict("no available copies")
		}
		return err
	}

	// 3. Insert issue
	const q = `
	INSERT INTO issues
	(issue_ulid, book_id, student_id, librarian_id, issue_date, due_date, renewal_count)
	VALUES
	(?, ?, ?, ?, ?, ?, 0)`
	res, err := tx.ExecContext(ctx, q,
		m.IssueULID,
		m.BookID,
		m.StudentID,
		nullInt64OrNil(m.LibrarianID),
		m.IssueDate,
		nullTimeOrNil(m.DueDate),
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1452 {
			err = ErrInvalid("unknown student_id or librarian_id")
		}
		return err
	}
	id, _ := res.LastInsertId()
	m.IssueID = id

	return tx.Commit()
}

// ExecReturn runs the whole return flow in one transaction: lock the issue
// row, reject double returns, set return_date, increment stock, and file the
// overdue fine (at most one per issue) when the return is late.
func (s *SQLStore) ExecReturn(ctx context.Context, issueID int64, returnedAt time.Time, ratePerDay float64, fineULID string) (*issueRow, *FineRecord, error) {
	var err error
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// 1. Lock issue row
	const lockQ = `
	SELECT issue_id, issue_ulid, book_id, student_id, librarian_id,
	       issue_date, due_date, return_date, renewal_count
	FROM issues WHERE issue_id = ? FOR UPDATE`
	var m Issue
	err = tx.QueryRowContext(ctx, lockQ, issueID).Scan(
		&m.IssueID, &m.IssueULID, &m.BookID, &m.StudentID, &m.LibrarianID,
		&m.IssueDate, &m.DueDate, &m.ReturnDate, &m.RenewalCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound("issue not found")
		}
		return nil, nil, err
	}
	if m.ReturnDate.Valid {
		err = ErrConflict("issue already returned")
		return nil, nil, err
	}

	// 2. Record the return
	if _, err = tx.ExecContext(ctx, `UPDATE issues SET return_date = ? WHERE issue_id = ?`, returnedAt, m.IssueID); err != nil {
		return nil, nil, err
	}
	m.ReturnDate = sql.NullTime{Time: returnedAt, Valid: true}

	// 3. Put the copy back
	if err = books.AddAvailableTx(ctx, tx, m.BookID, 1); err != nil {
		return nil, nil, err
	}

	// 4. Overdue fine (one per issue; skipped when one already exists)
	var fine *FineRecord
	var due time.Time
	if m.DueDate.Valid {
		due = m.DueDate.Time
	}
	amount := ComputeFine(due, returnedAt, ratePerDay)
	if amount > 0 {
		var existing int64
		err = tx.QueryRowContext(ctx, `SELECT fine_id FROM fines WHERE issue_id = ? LIMIT 1`, m.IssueID).Scan(&existing)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, err
		}
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			const fineQ = `
			INSERT INTO fines (fine_ulid, issue_id, amount, status, date_calculated)
			VALUES (?, ?, ?, 'Unpaid', ?)`
			var res sql.Result
			res, err = tx.ExecContext(ctx, fineQ, fineULID, m.IssueID, amount, returnedAt)
			if err != nil {
				return nil, nil, err
			}
			fid, _ := res.LastInsertId()
			fine = &FineRecord{
				FineID:         fid,
				FineULID:       fineULID,
				IssueID:        m.IssueID,
				Amount:         amount,
				Status:         "Unpaid",
				DateCalculated: returnedAt,
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, err
	}

	row := &issueRow{Issue: m}
	return row, fine, nil
}

// ExecRenew extends the due date and bumps renewal_count, only while active.
func (s *SQLStore) ExecRenew(ctx context.Context, issueID int64, extendDays int) (*issueRow, error) {
	var err error
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lockQ = `SELECT issue_id, due_date, return_date FROM issues WHERE issue_id = ? FOR UPDATE`
	var id int64
	var dueDate, returnDate sql.NullTime
	err = tx.QueryRowContext(ctx, lockQ, issueID).Scan(&id, &dueDate, &returnDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound("issue not found")
		}
		return nil, err
	}
	if returnDate.Valid {
		err = ErrConflict("issue already returned")
		return nil, err
	}
	if !dueDate.Valid {
		err = ErrConflict("issue has no due date to extend")
		return nil, err
	}

	newDue := dueDate.Time.AddDate(0, 0, extendDays)
	const q = `UPDATE issues SET due_date = ?, renewal_count = renewal_count + 1 WHERE issue_id = ?`
	if _, err = tx.ExecContext(ctx, q, newDue, issueID); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetIssueByID(ctx, issueID)
}

// ---- Queries ----

func (s *SQLStore) GetIssueByID(ctx context.Context, id int64) (*issueRow, error) {
	return s.getIssueWhere(ctx, `i.issue_id = ?`, id)
}

func (s *SQLStore) GetIssueByULID(ctx context.Context, ulid string) (*issueRow, error) {
	return s.getIssueWhere(ctx, `i.issue_ulid = ?`, ulid)
}

func (s *SQLStore) getIssueWhere(ctx context.Context, cond string, arg any) (*issueRow, error) {
	q := fmt.Sprintf(`
	SELECT %s, b.title, st.name
	FROM issues i
	JOIN books b ON b.book_id = i.book_id
	JOIN students st ON st.student_id = i.student_id
	WHERE %s`, issueCols, cond)

	var r issueRow
	err := s.db.QueryRowContext(ctx, q, arg).Scan(
		&r.IssueID, &r.IssueULID, &r.BookID, &r.StudentID, &r.LibrarianID,
		&r.IssueDate, &r.DueDate, &r.ReturnDate, &r.RenewalCount,
		&r.BookTitle, &r.StudentName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("issue not found")
		}
		return nil, err
	}
	return &r, nil
}

func (s *SQLStore) ListIssues(ctx context.Context, f IssueFilter, p Page) ([]issueRow, int64, error) {
	where, args := buildIssueWhere(f)

	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf(`
	SELECT %s, b.title, st.name
	FROM issues i
	JOIN books b ON b.book_id = i.book_id
	JOIN students st ON st.student_id = i.student_id
	WHERE 1=1%s`, issueCols, where))

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	sb.WriteString(fmt.Sprintf(` ORDER BY i.issue_date %s`, order))
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

	var out []issueRow
	for rows.Next() {
		var r issueRow
		if err := rows.Scan(
			&r.IssueID, &r.IssueULID, &r.BookID, &r.StudentID, &r.LibrarianID,
			&r.IssueDate, &r.DueDate, &r.ReturnDate, &r.RenewalCount,
			&r.BookTitle, &r.StudentName,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	whereCnt, argsCnt := buildIssueWhere(f)
	cntQ := `SELECT COUNT(*) FROM issues i WHERE 1=1` + whereCnt
	var total int64
	if err := s.db.QueryRowContext(ctx, cntQ, argsCnt...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

func buildIssueWhere(f IssueFilter) (string, []any) {
	sb := strings.Builder{}
	args := []any{}
	if f.StudentID != "" {
		sb.WriteString(` AND i.student_id = ?`)
		args = append(args, f.StudentID)
	}
	if f.BookID != nil {
		sb.WriteString(` AND i.book_id = ?`)
		args = append(args, *f.BookID)
	}
	if f.Active != nil {
		if *f.Active {
			sb.WriteString(` AND i.return_date IS NULL`)
		} else {
			sb.WriteString(` AND i.return_date IS NOT NULL`)
		}
	}
	if f.OverdueAsOf != nil {
		sb.WriteString(` AND i.return_date IS NULL AND i.due_date IS NOT NULL AND i.due_date < ?`)
		args = append(args, *f.OverdueAsOf)
	}
	return sb.String(), args
}

// DeleteIssue is administrative cleanup; it does not adjust copy counts.
func (s *SQLStore) DeleteIssue(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM issues WHERE issue_id = ?`, id)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1451 {
			return ErrConflict("issue is referenced by fines")
		}
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound("issue not found")
	}
	return nil
}

func (s *SQLStore) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE return_date IS NULL`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ---------- helpers ----------

func nullInt64OrNil(ni sql.NullInt64) any {
	if ni.Valid {
		return ni.Int64
	}
	return nil
}

func nullTimeOrNil(nt sql.NullTime) any {
	if nt.Valid {
		return nt.Time
	}
	return nil
}
