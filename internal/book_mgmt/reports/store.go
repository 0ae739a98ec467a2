package reports

import (
	"context"
	"database/sql"
	"time"

	pdb "LIBRA-backend/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(d *sql.DB) *Store {
	return &Store{db: d}
}

// 貸出履歴の書籍参照を issue_id 昇順で全件取る。集計はメモリ側で行う。
func (s *Store) ListIssueBookRefs(ctx context.Context) ([]IssueBookRef, error) {
	const q = `
	SELECT i.book_id, COALESCE(b.title, '')
	FROM issues i
	LEFT JOIN books b ON b.book_id = i.book_id
	ORDER BY i.issue_id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IssueBookRef
	for rows.Next() {
		var r IssueBookRef
		if err := rows.Scan(&r.BookID, &r.Title); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListStudentDeptRefs(ctx context.Context) ([]DeptRef, error) {
	const q = `
	SELECT COALESCE(s.dept_id, ''), COALESCE(d.dept_name, '')
	FROM students s
	LEFT JOIN departments d ON d.dept_id = s.dept_id
	ORDER BY s.student_id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeptRef
	for rows.Next() {
		var r DeptRef
		if err := rows.Scan(&r.DeptID, &r.DeptName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// 延滞件数と未納総額は読み取り専用Txでまとめて取る（集計のズレ防止）。
func (s *Store) FetchOverdueSummary(ctx context.Context, asOf time.Time) (*OverdueSummary, error) {
	var sum OverdueSummary
	err := pdb.ReadOnly(ctx, s.db, func(ctx context.Context, tx pdb.DBTX) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM issues WHERE return_date IS NULL AND due_date IS NOT NULL AND due_date < ?`,
			asOf).Scan(&sum.OverdueCount); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(amount), 0) FROM fines WHERE status = 'Unpaid'`).Scan(&sum.TotalUnpaidFines)
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}
