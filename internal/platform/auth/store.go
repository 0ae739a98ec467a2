package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	pdb "LIBRA-backend/internal/platform/db"
)

// Account は auth_accounts テーブルの1行。メールアドレスがキー。
// RefID はロールに応じて students.student_id または librarians.librarian_id を指す。
type Account struct {
	Email        string
	PasswordHash string
	Role         string // "librarian" | "student"
	RefID        string
	IsDisabled   bool
	CreatedAt    time.Time
}

type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, tx pdb.DBTX, a *Account) error
	Delete(ctx context.Context, email string) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) AccountStore {
	return &Store{db: db}
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	const q = `
SELECT email, password_hash, role, ref_id, is_disabled, created_at
FROM auth_accounts
WHERE email = ?
LIMIT 1
`
	var a Account
	var isDisabledInt int
	err := s.db.QueryRowContext(ctx, q, strings.ToLower(email)).Scan(
		&a.Email,
		&a.PasswordHash,
		&a.Role,
		&a.RefID,
		&isDisabledInt,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.IsDisabled = isDisabledInt != 0
	return &a, nil
}

// Create は登録トランザクションの中から呼ばれる。
// 同時登録で主キーが競合したら ErrAlreadyExists（呼び出し側で409）。
func (s *Store) Create(ctx context.Context, tx pdb.DBTX, a *Account) error {
	const q = `
INSERT INTO auth_accounts (email, password_hash, role, ref_id, is_disabled, created_at)
VALUES (?, ?, ?, ?, 0, NOW(6))
`
	_, err := tx.ExecContext(ctx, q, strings.ToLower(a.Email), a.PasswordHash, a.Role, a.RefID)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, email string) (int64, error) {
	const q = `DELETE FROM auth_accounts WHERE email = ?`
	res, err := s.db.ExecContext(ctx, q, strings.ToLower(email))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
