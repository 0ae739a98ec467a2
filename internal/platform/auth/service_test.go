package auth

import (
	"context"
	"errors"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdb "LIBRA-backend/internal/platform/db"
)

// ===== test doubles =====

type memAccountStore struct {
	accounts  map[string]*Account
	createErr error // 次の Create を失敗させる
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{accounts: map[string]*Account{}}
}

func (s *memAccountStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	a, ok := s.accounts[email]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *memAccountStore) Create(_ context.Context, _ pdb.DBTX, a *Account) error {
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.accounts[a.Email]; ok {
		return ErrAlreadyExists
	}
	cp := *a
	s.accounts[a.Email] = &cp
	return nil
}

func (s *memAccountStore) Delete(_ context.Context, email string) (int64, error) {
	if _, ok := s.accounts[email]; !ok {
		return 0, nil
	}
	delete(s.accounts, email)
	return 1, nil
}

type memStudentDir struct {
	created []StudentSignup
}

func (d *memStudentDir) CreateFromSignup(_ context.Context, _ pdb.DBTX, in StudentSignup) error {
	d.created = append(d.created, in)
	return nil
}

type memLibrarianDir struct {
	nextID int64
}

func (d *memLibrarianDir) CreateFromSignup(_ context.Context, _ pdb.DBTX, _, _ string) (int64, error) {
	d.nextID++
	return d.nextID, nil
}

// newTestService はDB無しのトランザクションを模す：
// 失敗したらダブルの状態をスナップショットに巻き戻す。
func newTestService() (*Service, *memAccountStore, *memStudentDir) {
	store := newMemAccountStore()
	students := &memStudentDir{}
	libs := &memLibrarianDir{}
	svc := &Service{
		store:      store,
		students:   students,
		librarians: libs,
		cfg: Config{
			JWTSecret:   []byte("test-secret"),
			TokenTTL:    time.Hour,
			EmailDomain: "cambridge.edu.in",
		},
		runTx: func(ctx context.Context, fn func(ctx context.Context, tx pdb.DBTX) error) error {
			accounts := maps.Clone(store.accounts)
			created := slices.Clone(students.created)
			nextID := libs.nextID
			if err := fn(ctx, nil); err != nil {
				store.accounts = accounts
				students.created = created
				libs.nextID = nextID
				return err
			}
			return nil
		},
	}
	return svc, store, students
}

// ===== tests =====

func TestRegisterStudentAndLogin(t *testing.T) {
	svc, store, students := newTestService()
	ctx := context.Background()

	err := svc.RegisterStudent(ctx, "s3cret", StudentSignup{
		StudentID: "1CD23IS001",
		Name:      "Asha Rao",
		Email:     "asha@cambridge.edu.in",
	})
	require.NoError(t, err)

	// プロフィール行は正規化済みUSNで作られる
	require.Len(t, students.created, 1)
	assert.Equal(t, "1cd23is001", students.created[0].StudentID)

	acct := store.accounts["asha@cambridge.edu.in"]
	require.NotNil(t, acct)
	assert.Equal(t, RoleStudent, acct.Role)
	assert.Equal(t, "1cd23is001", acct.RefID)
	assert.NotEqual(t, "s3cret", acct.PasswordHash)

	token, sess, err := svc.Login(ctx, "asha@cambridge.edu.in", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, RoleStudent, sess.Role)
	assert.Equal(t, "1cd23is001", sess.UserID)

	// 発行したトークンはミドルウェアの検証と往復できる
	parsed, err := ParseSession(token, []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, "asha@cambridge.edu.in", parsed.Email)
	assert.Equal(t, RoleStudent, parsed.Role)
	assert.Equal(t, "1cd23is001", parsed.UserID)
	assert.False(t, parsed.IsLibrarian())
}

func TestRegisterStudent_Rejections(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// ドメイン違い
	err := svc.RegisterStudent(ctx, "pw", StudentSignup{
		StudentID: "1cd23is001", Email: "x@gmail.com",
	})
	assert.ErrorIs(t, err, ErrInvalidSignup)

	// USN不正
	err = svc.RegisterStudent(ctx, "pw", StudentSignup{
		StudentID: "23xx145", Email: "x@cambridge.edu.in",
	})
	assert.ErrorIs(t, err, ErrInvalidSignup)

	// パスワード空
	err = svc.RegisterStudent(ctx, "", StudentSignup{
		StudentID: "1cd23is001", Email: "x@cambridge.edu.in",
	})
	assert.ErrorIs(t, err, ErrInvalidSignup)
}

func TestRegisterStudent_Duplicate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	in := StudentSignup{StudentID: "1cd23is001", Email: "asha@cambridge.edu.in"}
	require.NoError(t, svc.RegisterStudent(ctx, "pw", in))
	assert.ErrorIs(t, svc.RegisterStudent(ctx, "pw", in), ErrAlreadyExists)
}

func TestRegisterStudent_AccountFailureLeavesNoProfile(t *testing.T) {
	svc, store, students := newTestService()
	ctx := context.Background()

	in := StudentSignup{
		StudentID: "1cd23is001",
		Name:      "Asha Rao",
		Email:     "asha@cambridge.edu.in",
	}

	// アカウント側の INSERT が失敗したら students 行も残らない
	store.createErr = errors.New("duplicate key")
	err := svc.RegisterStudent(ctx, "pw", in)
	require.Error(t, err)
	assert.Empty(t, students.created)
	assert.Empty(t, store.accounts)

	// 巻き戻っているので同じUSN・メールで再試行できる
	store.createErr = nil
	require.NoError(t, svc.RegisterStudent(ctx, "pw", in))
	require.Len(t, students.created, 1)
	require.NotNil(t, store.accounts["asha@cambridge.edu.in"])
}

func TestRegisterLibrarian_AccountFailureRollsBack(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	store.createErr = errors.New("insert failed")
	err := svc.RegisterLibrarian(ctx, "admin@cambridge.edu.in", "pw", "Admin")
	require.Error(t, err)
	assert.Empty(t, store.accounts)

	// librarian_id の採番も巻き戻り、再試行は id=1 から
	store.createErr = nil
	require.NoError(t, svc.RegisterLibrarian(ctx, "admin@cambridge.edu.in", "pw", "Admin"))
	assert.Equal(t, "1", store.accounts["admin@cambridge.edu.in"].RefID)
}

func TestRegisterLibrarianAndLogin(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	err := svc.RegisterLibrarian(ctx, "Admin@Cambridge.edu.in", "pw", "Admin")
	require.NoError(t, err)

	acct := store.accounts["admin@cambridge.edu.in"]
	require.NotNil(t, acct)
	assert.Equal(t, RoleLibrarian, acct.Role)
	assert.Equal(t, "1", acct.RefID)

	token, sess, err := svc.Login(ctx, "admin@cambridge.edu.in", "pw")
	require.NoError(t, err)
	assert.True(t, sess.IsLibrarian())

	parsed, err := ParseSession(token, []byte("test-secret"))
	require.NoError(t, err)
	assert.True(t, parsed.IsLibrarian())
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.RegisterLibrarian(ctx, "admin@cambridge.edu.in", "pw", "Admin"))

	_, _, err := svc.Login(ctx, "admin@cambridge.edu.in", "wrong")
	assert.Error(t, err)

	_, _, err = svc.Login(ctx, "ghost@cambridge.edu.in", "pw")
	assert.Error(t, err)
}

func TestDeleteAccount(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.RegisterLibrarian(ctx, "admin@cambridge.edu.in", "pw", "Admin"))

	require.NoError(t, svc.DeleteAccount(ctx, "admin@cambridge.edu.in"))
	assert.Nil(t, store.accounts["admin@cambridge.edu.in"])

	// 2回目は対象なし
	assert.ErrorIs(t, svc.DeleteAccount(ctx, "admin@cambridge.edu.in"), ErrNotFound)
}

func TestParseSession_RejectsTampering(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.RegisterLibrarian(ctx, "admin@cambridge.edu.in", "pw", "Admin"))
	token, _, err := svc.Login(ctx, "admin@cambridge.edu.in", "pw")
	require.NoError(t, err)

	// 別の鍵では検証に失敗する
	_, err = ParseSession(token, []byte("other-secret"))
	assert.Error(t, err)

	_, err = ParseSession(token+"x", []byte("test-secret"))
	assert.Error(t, err)
}
