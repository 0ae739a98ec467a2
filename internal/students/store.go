package students

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	pdb "LIBRA-backend/internal/platform/db"
)

type studentRow struct {
	Student
	DeptName sql.NullString
}

type Store struct {
	db *sql.DB
}

func NewStore(d *sql.DB) *Store {
	return &Store{db: d}
}

const studentSelect = `
SELECT s.student_id, s.name, s.email, s.contact, s.year, s.dept_id, s.created_at, d.dept_name
FROM students s
LEFT JOIN departments d ON d.dept_id = s.dept_id`

func scanStudentRow(sc interface{ Scan(dest ...any) error }) (*studentRow, error) {
	var r studentRow
	err := sc.Scan(&r.StudentID, &r.Name, &r.Email, &r.Contact, &r.Year, &r.DeptID, &r.CreatedAt, &r.DeptName)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetStudentByID(ctx context.Context, id string) (*studentRow, error) {
	r, err := scanStudentRow(s.db.QueryRowContext(ctx, studentSelect+` WHERE s.student_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("student not found")
	}
	return r, err
}

func (s *Store) ListStudents(ctx context.Context, f StudentFilter, p Page) ([]studentRow, int64, error) {
	var conds []string
	var args []any
	if f.Name != "" {
		conds = append(conds, "s.name LIKE CONCAT('%', ?, '%')")
		args = append(args, f.Name)
	}
	if f.DeptID != "" {
		conds = append(conds, "s.dept_id = ?")
		args = append(args, f.DeptID)
	}
	if f.Year != nil {
		conds = append(conds, "s.year = ?")
		args = append(args, *f.Year)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	order := "ASC"
	if strings.EqualFold(p.Order, "desc") {
		order = "DESC"
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
	countQ := `SELECT COUNT(*) FROM students s` + where
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("%s%s ORDER BY s.student_id %s LIMIT ? OFFSET ?", studentSelect, where, order)
	rows, err := s.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []studentRow
	for rows.Next() {
		r, err := scanStudentRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

func (s *Store) InsertStudent(ctx context.Context, m *Student) error {
	return s.InsertStudentTx(ctx, s.db, m)
}

// InsertStudentTx はサインアップ時にアカウント作成と同じトランザクションで呼ばれる。
func (s *Store) InsertStudentTx(ctx context.Context, tx pdb.DBTX, m *Student) error {
	const q = `
	INSERT INTO students (student_id, name, email, contact, year, dept_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, NOW(6))`
	_, err := tx.ExecContext(ctx, q, m.StudentID, m.Name, m.Email, m.Contact, m.Year, m.DeptID)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) {
			switch me.Number {
			case 1062:
				return ErrConflict("student already exists")
			case 1452:
				return ErrInvalid("unknown dept_id")
			}
		}
		return err
	}
	return nil
}

func (s *Store) UpdateStudentByID(ctx context.Context, m *Student) error {
	const q = `
	UPDATE students SET name = ?, email = ?, contact = ?, year = ?, dept_id = ?
	WHERE student_id = ?`
	res, err := s.db.ExecContext(ctx, q, m.Name, m.Email, m.Contact, m.Year, m.DeptID, m.StudentID)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) {
			switch me.Number {
			case 1062:
				return ErrConflict("email already in use")
			case 1452:
				return ErrInvalid("unknown dept_id")
			}
		}
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound("student not found")
	}
	return nil
}

// DeleteStudent rejects deletion while issues reference the student,
// naming a few of them in the error.
func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	refs, err := s.sampleIssueRefs(ctx, id, 5)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return ErrConflict(fmt.Sprintf("student is referenced by issues (e.g. %s)", strings.Join(refs, ", ")))
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM students WHERE student_id = ?`, id)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1451 {
			return ErrConflict("student is referenced by issues")
		}
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound("student not found")
	}
	return nil
}

func (s *Store) sampleIssueRefs(ctx context.Context, studentID string, max int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT issue_id FROM issues WHERE student_id = ? ORDER BY issue_id LIMIT ?`, studentID, max)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("issue_id=%d", id))
	}
	return out, rows.Err()
}

func (s *Store) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dept_id, dept_name FROM departments ORDER BY dept_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.DeptID, &d.DeptName); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
