package fines

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdb "LIBRA-backend/internal/platform/db"
)

// ===== in-memory store =====

type memStore struct {
	fines      map[int64]*Fine
	byIssue    map[int64]int64 // issue_id → fine_id
	issues     map[int64]bool
	candidates []OverdueCandidate
	nextID     int64
}

func newMemStore() *memStore {
	return &memStore{
		fines:   map[int64]*Fine{},
		byIssue: map[int64]int64{},
		issues:  map[int64]bool{},
	}
}

func (s *memStore) GetFineByID(_ context.Context, id int64) (*fineRow, error) {
	f, ok := s.fines[id]
	if !ok {
		return nil, ErrNotFound("fine not found")
	}
	cp := *f
	return &fineRow{Fine: cp}, nil
}

func (s *memStore) GetFineByULID(_ context.Context, ulid string) (*fineRow, error) {
	for _, f := range s.fines {
		if f.FineULID == ulid {
			cp := *f
			return &fineRow{Fine: cp}, nil
		}
	}
	return nil, ErrNotFound("fine not found")
}

func (s *memStore) ListFines(_ context.Context, f FineFilter, _ Page) ([]fineRow, int64, error) {
	var out []fineRow
	for id := int64(1); id <= s.nextID; id++ {
		m, ok := s.fines[id]
		if !ok {
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.IssueID > 0 && m.IssueID != f.IssueID {
			continue
		}
		cp := *m
		out = append(out, fineRow{Fine: cp})
	}
	return out, int64(len(out)), nil
}

func (s *memStore) CreateManual(_ context.Context, m *Fine) error {
	if !s.issues[m.IssueID] {
		return ErrNotFound("issue not found")
	}
	if _, exists := s.byIssue[m.IssueID]; exists {
		return ErrConflict("fine already exists for issue")
	}
	s.nextID++
	m.FineID = s.nextID
	m.Status = StatusUnpaid
	cp := *m
	s.fines[m.FineID] = &cp
	s.byIssue[m.IssueID] = m.FineID
	return nil
}

func (s *memStore) PayFine(_ context.Context, id int64, paidAt time.Time) (*fineRow, error) {
	f, ok := s.fines[id]
	if !ok {
		return nil, ErrNotFound("fine not found")
	}
	if f.Status == StatusUnpaid {
		f.Status = StatusPaid
		f.DatePaid = sql.NullTime{Time: paidAt, Valid: true}
	}
	cp := *f
	return &fineRow{Fine: cp}, nil
}

func (s *memStore) ListUnfinedOverdue(_ context.Context, _ time.Time) ([]OverdueCandidate, error) {
	return s.candidates, nil
}

func (s *memStore) DeleteFine(_ context.Context, id int64) error {
	f, ok := s.fines[id]
	if !ok {
		return ErrNotFound("fine not found")
	}
	delete(s.byIssue, f.IssueID)
	delete(s.fines, id)
	return nil
}

// ===== test doubles =====

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestService(ms *memStore, now time.Time) *Service {
	return &Service{
		store:  ms,
		policy: pdb.CirculationPolicy{LoanPeriodDays: 14, FineRatePerDay: 5, RenewExtensionDays: 14},
		clock:  fixedClock{t: now},
	}
}

func assertCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	api, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T: %v", err, err)
	assert.Equal(t, code, api.Code)
}

// ===== tests =====

func TestCreateManualFine(t *testing.T) {
	ms := newMemStore()
	ms.issues[10] = true
	svc := newTestService(ms, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	res, err := svc.CreateManualFine(context.Background(), CreateFineRequest{IssueID: 10, Amount: 40})
	require.NoError(t, err)
	assert.Equal(t, StatusUnpaid, res.Status)
	assert.Equal(t, float64(40), res.Amount)

	// 同じ貸出への二重計上は弾く
	_, err = svc.CreateManualFine(context.Background(), CreateFineRequest{IssueID: 10, Amount: 15})
	assertCode(t, err, CodeConflict)
}

func TestCreateManualFine_Validation(t *testing.T) {
	svc := newTestService(newMemStore(), time.Now())

	_, err := svc.CreateManualFine(context.Background(), CreateFineRequest{IssueID: 0, Amount: 10})
	assertCode(t, err, CodeInvalidArgument)

	_, err = svc.CreateManualFine(context.Background(), CreateFineRequest{IssueID: 1, Amount: 0})
	assertCode(t, err, CodeInvalidArgument)

	_, err = svc.CreateManualFine(context.Background(), CreateFineRequest{IssueID: 1, Amount: -5})
	assertCode(t, err, CodeInvalidArgument)

	// 存在しない貸出
	_, err = svc.CreateManualFine(context.Background(), CreateFineRequest{IssueID: 99, Amount: 10})
	assertCode(t, err, CodeNotFound)
}

func TestPayFine_Idempotent(t *testing.T) {
	ms := newMemStore()
	ms.issues[10] = true
	svc := newTestService(ms, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	created, err := svc.CreateManualFine(context.Background(), CreateFineRequest{IssueID: 10, Amount: 25})
	require.NoError(t, err)

	paid, err := svc.PayFine(context.Background(), created.FineID, PayFineRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.DatePaid)
	firstPaidAt := *paid.DatePaid

	// 二度目の納付は何も変えない
	again, err := svc.PayFine(context.Background(), created.FineID, PayFineRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, again.Status)
	require.NotNil(t, again.DatePaid)
	assert.Equal(t, firstPaidAt, *again.DatePaid)
}

func TestPayFine_NotFound(t *testing.T) {
	svc := newTestService(newMemStore(), time.Now())
	_, err := svc.PayFine(context.Background(), 404, PayFineRequest{})
	assertCode(t, err, CodeNotFound)
}

func TestListUnfinedOverdue_Amounts(t *testing.T) {
	ms := newMemStore()
	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	ms.candidates = []OverdueCandidate{
		// 貸出中の延滞: asOf 基準で計算
		{IssueID: 1, BookID: 1, StudentID: "1cd23is001", DueDate: due},
		// 延滞返却済み: 返却日基準で計算
		{IssueID: 2, BookID: 2, StudentID: "1cd23cs002", DueDate: due,
			ReturnDate: sql.NullTime{Time: due.AddDate(0, 0, 3), Valid: true}},
	}
	svc := newTestService(ms, time.Now())

	asOf := due.AddDate(0, 0, 5)
	out, err := svc.ListUnfinedOverdue(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, float64(25), out[0].Amount) // 5日 × 5
	assert.Equal(t, float64(15), out[1].Amount) // 3日 × 5
}

func TestListFines_StatusValidation(t *testing.T) {
	svc := newTestService(newMemStore(), time.Now())
	_, _, err := svc.ListFines(context.Background(), FineFilter{Status: "Pending"}, Page{})
	assertCode(t, err, CodeInvalidArgument)
}
