package auth

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	pdb "LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/studentid"
)

const (
	RoleLibrarian = "librarian"
	RoleStudent   = "student"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrInvalidSignup = errors.New("invalid signup")
)

// StudentSignup は学生登録時のプロフィール
type StudentSignup struct {
	StudentID string
	Name      string
	Email     string
	Contact   string
	Year      int
	DeptID    string
}

// StudentDirectory / LibrarianDirectory は members 側が実装する。
// auth から members への依存をインターフェースで切る。
// プロフィール行とアカウント行を1トランザクションで作るため tx を受け取る。
type StudentDirectory interface {
	CreateFromSignup(ctx context.Context, tx pdb.DBTX, in StudentSignup) error
}

type LibrarianDirectory interface {
	CreateFromSignup(ctx context.Context, tx pdb.DBTX, email, name string) (int64, error)
}

type Config struct {
	JWTSecret   []byte
	TokenTTL    time.Duration
	EmailDomain string // 学生メールの必須ドメイン
}

type Service struct {
	store      AccountStore
	students   StudentDirectory
	librarians LibrarianDirectory
	cfg        Config
	runTx      func(ctx context.Context, fn func(ctx context.Context, tx pdb.DBTX) error) error
}

func NewService(d *sql.DB, store AccountStore, students StudentDirectory, librarians LibrarianDirectory, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Service{
		store:      store,
		students:   students,
		librarians: librarians,
		cfg:        cfg,
		runTx: func(ctx context.Context, fn func(ctx context.Context, tx pdb.DBTX) error) error {
			return pdb.RunInTx(ctx, d, nil, fn)
		},
	}
}

func (s *Service) Login(ctx context.Context, email, password string) (string, *Session, error) {
	acct, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if acct == nil {
		return "", nil, errors.New("authentication failed")
	}
	if acct.IsDisabled {
		return "", nil, errors.New("account disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", nil, errors.New("authentication failed")
	}

	exp := time.Now().Add(s.cfg.TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  acct.Email,
		"role": acct.Role,
		"uid":  acct.RefID,
		"exp":  exp.Unix(),
	})

	tokenString, err := token.SignedString(s.cfg.JWTSecret)
	if err != nil {
		return "", nil, err
	}

	sess := &Session{Email: acct.Email, Role: acct.Role, UserID: acct.RefID, ExpiresAt: exp}
	return tokenString, sess, nil
}

// RegisterLibrarian は librarians 行とアカウントを1トランザクションで作成する。
// アカウント側の INSERT が失敗したらプロフィール行ごとロールバックする。
func (s *Service) RegisterLibrarian(ctx context.Context, email, password, name string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return ErrInvalidSignup
	}

	exists, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if exists != nil {
		return ErrAlreadyExists
	}

	return s.runTx(ctx, func(ctx context.Context, tx pdb.DBTX) error {
		id, err := s.librarians.CreateFromSignup(ctx, tx, email, name)
		if err != nil {
			return err
		}
		return s.createAccount(ctx, tx, email, password, RoleLibrarian, strconv.FormatInt(id, 10))
	})
}

// RegisterStudent はUSNを正規化・検証し、students 行とアカウントを1トランザクションで作成する。
func (s *Service) RegisterStudent(ctx context.Context, password string, in StudentSignup) error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || password == "" {
		return ErrInvalidSignup
	}
	if s.cfg.EmailDomain != "" && !strings.HasSuffix(in.Email, "@"+s.cfg.EmailDomain) {
		return ErrInvalidSignup
	}
	if !studentid.Validate(in.StudentID) {
		return ErrInvalidSignup
	}
	in.StudentID = studentid.Normalize(in.StudentID)

	exists, err := s.store.GetByEmail(ctx, in.Email)
	if err != nil {
		return err
	}
	if exists != nil {
		return ErrAlreadyExists
	}

	return s.runTx(ctx, func(ctx context.Context, tx pdb.DBTX) error {
		if err := s.students.CreateFromSignup(ctx, tx, in); err != nil {
			return err
		}
		return s.createAccount(ctx, tx, in.Email, password, RoleStudent, in.StudentID)
	})
}

func (s *Service) DeleteAccount(ctx context.Context, email string) error {
	n, err := s.store.Delete(ctx, email)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) createAccount(ctx context.Context, tx pdb.DBTX, email, password, role, refID string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.Create(ctx, tx, &Account{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		RefID:        refID,
	})
}
