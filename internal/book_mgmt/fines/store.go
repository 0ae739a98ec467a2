package fines

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	pdb "LIBRA-backend/internal/platform/db"
)

type fineRow struct {
	Fine
	StudentID   sql.NullString
	StudentName sql.NullString
	BookTitle   sql.NullString
}

// Store is implemented by the MySQL store and the in-memory test store.
type Store interface {
	GetFineByID(ctx context.Context, id int64) (*fineRow, error)
	GetFineByULID(ctx context.Context, ulid string) (*fineRow, error)
	ListFines(ctx context.Context, f FineFilter, p Page) ([]fineRow, int64, error)
	CreateManual(ctx context.Context, m *Fine) error
	PayFine(ctx context.Context, id int64, paidAt time.Time) (*fineRow, error)
	ListUnfinedOverdue(ctx context.Context, asOf time.Time) ([]OverdueCandidate, error)
	DeleteFine(ctx context.Context, id int64) error
}

type SQLStore struct {
	db *sql.DB
}

func NewStore(d *sql.DB) *SQLStore {
	return &SQLStore{db: d}
}

const fineSelect = `
SELECT f.fine_id, f.fine_ulid, f.issue_id, f.amount, f.status, f.date_calculated, f.date_paid,
       i.student_id, s.name, b.title
FROM fines f
JOIN issues i   ON i.issue_id  = f.issue_id
LEFT JOIN students s ON s.student_id = i.student_id
LEFT JOIN books b    ON b.book_id    = i.book_id`

func scanFineRow(sc interface{ Scan(dest ...any) error }) (*fineRow, error) {
	var r fineRow
	err := sc.Scan(
		&r.FineID, &r.FineULID, &r.IssueID, &r.Amount, &r.Status, &r.DateCalculated, &r.DatePaid,
		&r.StudentID, &r.StudentName, &r.BookTitle,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLStore) GetFineByID(ctx context.Context, id int64) (*fineRow, error) {
	r, err := scanFineRow(s.db.QueryRowContext(ctx, fineSelect+` WHERE f.fine_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("fine not found")
	}
	return r, err
}

func (s *SQLStore) GetFineByULID(ctx context.Context, ulid string) (*fineRow, error) {
	r, err := scanFineRow(s.db.QueryRowContext(ctx, fineSelect+` WHERE f.fine_ulid = ?`, ulid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("fine not found")
	}
	return r, err
}

func (s *SQLStore) ListFines(ctx context.Context, f FineFilter, p Page) ([]fineRow, int64, error) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "f.status = ?")
		args = append(args, f.Status)
	}
	if f.StudentID != "" {
		conds = append(conds, "i.student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.IssueID > 0 {
		conds = append(conds, "f.issue_id = ?")
		args = append(args, f.IssueID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	order := "DESC"
	if strings.EqualFold(p.Order, "asc") {
		order = "ASC"
	}
	limit := p.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	var total int64
	countQ := `SELECT COUNT(*) FROM fines f JOIN issues i ON i.issue_id = f.issue_id` + where
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("%s%s ORDER BY f.fine_id %s LIMIT ? OFFSET ?", fineSelect, where, order)
	rows, err := s.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []fineRow
	for rows.Next() {
		r, err := scanFineRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// CreateManual files a fine by hand. One fine per issue; a second attempt
// conflicts no matter who filed the first.
func (s *SQLStore) CreateManual(ctx context.Context, m *Fine) error {
	return pdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx pdb.DBTX) error {
		var issueID int64
		err := tx.QueryRowContext(ctx, `SELECT issue_id FROM issues WHERE issue_id = ? FOR UPDATE`, m.IssueID).Scan(&issueID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound("issue not found")
		}
		if err != nil {
			return err
		}

		var existing int64
		err = tx.QueryRowContext(ctx, `SELECT fine_id FROM fines WHERE issue_id = ? LIMIT 1`, m.IssueID).Scan(&existing)
		if err == nil {
			return ErrConflict(fmt.Sprintf("fine already exists for issue (fine_id=%d)", existing))
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		const q = `
		INSERT INTO fines (fine_ulid, issue_id, amount, status, date_calculated)
		VALUES (?, ?, ?, 'Unpaid', ?)`
		res, err := tx.ExecContext(ctx, q, m.FineULID, m.IssueID, m.Amount, m.DateCalculated)
		if err != nil {
			var me *mysql.MySQLError
			if errors.As(err, &me) {
				switch me.Number {
				case 1062:
					return ErrConflict("fine already exists for issue")
				case 1452:
					return ErrInvalid("unknown issue_id")
				}
			}
			return err
		}
		m.FineID, _ = res.LastInsertId()
		m.Status = StatusUnpaid
		return nil
	})
}

// PayFine marks a fine as paid. Paying an already-paid fine is a no-op and
// returns the current record unchanged.
func (s *SQLStore) PayFine(ctx context.Context, id int64, paidAt time.Time) (*fineRow, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE fines SET status = 'Paid', date_paid = ? WHERE fine_id = ? AND status = 'Unpaid'`,
		paidAt, id)
	if err != nil {
		return nil, err
	}
	_, _ = res.RowsAffected() // 0件でも既納なら正常（冪等）

	r, err := s.GetFineByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListUnfinedOverdue lists issues past due (still out, or returned late) that
// have no fine on file yet. Amounts are filled in by the service.
func (s *SQLStore) ListUnfinedOverdue(ctx context.Context, asOf time.Time) ([]OverdueCandidate, error) {
	const q = `
	SELECT i.issue_id, i.issue_ulid, i.book_id, i.student_id, i.due_date, i.return_date
	FROM issues i
	LEFT JOIN fines f ON f.issue_id = i.issue_id
	WHERE f.fine_id IS NULL
	  AND i.due_date IS NOT NULL
	  AND ((i.return_date IS NULL AND i.due_date < ?)
	    OR (i.return_date IS NOT NULL AND i.return_date > i.due_date))
	ORDER BY i.due_date ASC`

	rows, err := s.db.QueryContext(ctx, q, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OverdueCandidate
	for rows.Next() {
		var c OverdueCandidate
		var due sql.NullTime
		if err := rows.Scan(&c.IssueID, &c.IssueULID, &c.BookID, &c.StudentID, &due, &c.ReturnDate); err != nil {
			return nil, err
		}
		if due.Valid {
			c.DueDate = due.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteFine(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fines WHERE fine_id = ?`, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound("fine not found")
	}
	return nil
}
