// Package librarians manages the librarian directory. Accounts themselves
// live in platform/auth; this package owns only the profile rows.
package librarians

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	pdb "LIBRA-backend/internal/platform/db"
)

type Librarian struct {
	LibrarianID int64     `json:"librarian_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateLibrarianRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
}

type Service struct {
	db *sql.DB
}

func NewService(d *sql.DB) *Service {
	return &Service{db: d}
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Librarian, error) {
	var m Librarian
	err := s.db.QueryRowContext(ctx,
		`SELECT librarian_id, name, email, created_at FROM librarians WHERE librarian_id = ?`, id).
		Scan(&m.LibrarianID, &m.Name, &m.Email, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("librarian not found")
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) List(ctx context.Context) ([]Librarian, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT librarian_id, name, email, created_at FROM librarians ORDER BY librarian_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Librarian
	for rows.Next() {
		var m Librarian
		if err := rows.Scan(&m.LibrarianID, &m.Name, &m.Email, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Service) Create(ctx context.Context, req CreateLibrarianRequest) (*Librarian, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalid("name and a valid email are required")
	}

	id, err := s.insert(ctx, s.db, name, email)
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// CreateFromSignup は auth.LibrarianDirectory の実装。
// アカウント作成と同じトランザクション上で行を作る。
func (s *Service) CreateFromSignup(ctx context.Context, tx pdb.DBTX, email, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		name = email
	}
	return s.insert(ctx, tx, strings.TrimSpace(name), strings.ToLower(strings.TrimSpace(email)))
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM librarians WHERE librarian_id = ?`, id)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1451 {
			return ErrConflict("librarian is referenced by issues")
		}
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound("librarian not found")
	}
	return nil
}

func (s *Service) insert(ctx context.Context, tx pdb.DBTX, name, email string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO librarians (name, email, created_at) VALUES (?, ?, NOW(6))`, name, email)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return 0, ErrConflict("librarian already exists")
		}
		return 0, err
	}
	return res.LastInsertId()
}
