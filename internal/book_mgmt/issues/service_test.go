package issues

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdb "LIBRA-backend/internal/platform/db"
)

// ===== in-memory store =====

type memBook struct {
	title  string
	copies int
}

// memStore mirrors the SQL store's transition rules so the lifecycle
// service can be exercised without MySQL.
type memStore struct {
	books     map[int64]*memBook
	issues    map[int64]*Issue
	fines     map[int64]*FineRecord // issue_id で引く（1貸出1件）
	nextIssue int64
	nextFine  int64
}

func newMemStore() *memStore {
	return &memStore{
		books:  map[int64]*memBook{},
		issues: map[int64]*Issue{},
		fines:  map[int64]*FineRecord{},
	}
}

func (s *memStore) addBook(id int64, title string, copies int) {
	s.books[id] = &memBook{title: title, copies: copies}
}

func (s *memStore) ExecCreateIssue(_ context.Context, m *Issue) error {
	b, ok := s.books[m.BookID]
	if !ok {
		return ErrNotFound("book not found")
	}
	if b.copies <= 0 {
		return ErrConflict("no available copies")
	}
	b.copies--

	s.nextIssue++
	m.IssueID = s.nextIssue
	cp := *m
	s.issues[m.IssueID] = &cp
	return nil
}

func (s *memStore) ExecReturn(_ context.Context, issueID int64, returnedAt time.Time, ratePerDay float64, fineULID string) (*issueRow, *FineRecord, error) {
	m, ok := s.issues[issueID]
	if !ok {
		return nil, nil, ErrNotFound("issue not found")
	}
	if m.ReturnDate.Valid {
		return nil, nil, ErrConflict("issue already returned")
	}
	m.ReturnDate = sql.NullTime{Time: returnedAt, Valid: true}
	s.books[m.BookID].copies++

	var fine *FineRecord
	var due time.Time
	if m.DueDate.Valid {
		due = m.DueDate.Time
	}
	amount := ComputeFine(due, returnedAt, ratePerDay)
	if amount > 0 {
		if _, exists := s.fines[m.IssueID]; !exists {
			s.nextFine++
			fine = &FineRecord{
				FineID:         s.nextFine,
				FineULID:       fineULID,
				IssueID:        m.IssueID,
				Amount:         amount,
				Status:         "Unpaid",
				DateCalculated: returnedAt,
			}
			s.fines[m.IssueID] = fine
		}
	}

	cp := *m
	return &issueRow{Issue: cp}, fine, nil
}

func (s *memStore) ExecRenew(_ context.Context, issueID int64, extendDays int) (*issueRow, error) {
	m, ok := s.issues[issueID]
	if !ok {
		return nil, ErrNotFound("issue not found")
	}
	if m.ReturnDate.Valid {
		return nil, ErrConflict("issue already returned")
	}
	if !m.DueDate.Valid {
		return nil, ErrConflict("issue has no due date to extend")
	}
	m.DueDate = sql.NullTime{Time: m.DueDate.Time.AddDate(0, 0, extendDays), Valid: true}
	m.RenewalCount++

	cp := *m
	return &issueRow{Issue: cp}, nil
}

func (s *memStore) GetIssueByID(_ context.Context, id int64) (*issueRow, error) {
	m, ok := s.issues[id]
	if !ok {
		return nil, ErrNotFound("issue not found")
	}
	cp := *m
	return &issueRow{Issue: cp}, nil
}

func (s *memStore) GetIssueByULID(_ context.Context, ulid string) (*issueRow, error) {
	for _, m := range s.issues {
		if m.IssueULID == ulid {
			cp := *m
			return &issueRow{Issue: cp}, nil
		}
	}
	return nil, ErrNotFound("issue not found")
}

func (s *memStore) ListIssues(_ context.Context, f IssueFilter, _ Page) ([]issueRow, int64, error) {
	var out []issueRow
	for id := int64(1); id <= s.nextIssue; id++ {
		m, ok := s.issues[id]
		if !ok {
			continue
		}
		if f.StudentID != "" && m.StudentID != f.StudentID {
			continue
		}
		if f.BookID != nil && m.BookID != *f.BookID {
			continue
		}
		if f.Active != nil && m.IsActive() != *f.Active {
			continue
		}
		if f.OverdueAsOf != nil && !m.IsOverdue(*f.OverdueAsOf) {
			continue
		}
		cp := *m
		out = append(out, issueRow{Issue: cp})
	}
	return out, int64(len(out)), nil
}

func (s *memStore) DeleteIssue(_ context.Context, id int64) error {
	if _, ok := s.issues[id]; !ok {
		return ErrNotFound("issue not found")
	}
	delete(s.issues, id)
	return nil
}

func (s *memStore) CountActive(_ context.Context) (int64, error) {
	var n int64
	for _, m := range s.issues {
		if m.IsActive() {
			n++
		}
	}
	return n, nil
}

// ===== test doubles =====

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDGen struct{ n int }

func (g *seqIDGen) New() (string, error) {
	g.n++
	return fmt.Sprintf("01TESTULID%016d", g.n), nil
}

func newTestService(ms *memStore, now time.Time) *Service {
	return &Service{
		store:  ms,
		policy: pdb.CirculationPolicy{LoanPeriodDays: 14, FineRatePerDay: 5, RenewExtensionDays: 14},
		clock:  fixedClock{t: now},
		id:     &seqIDGen{},
	}
}

func assertCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	api, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T: %v", err, err)
	assert.Equal(t, code, api.Code)
}

func strptr(s string) *string { return &s }

// ===== tests =====

func TestCreateIssue_DefaultDueDate(t *testing.T) {
	ms := newMemStore()
	ms.addBook(1, "Clean Architecture", 3)
	svc := newTestService(ms, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))

	res, err := svc.CreateIssue(context.Background(), CreateIssueRequest{
		BookID:    1,
		StudentID: "1cd23is001",
		IssueDate: strptr("2024-01-01"),
	}, nil)
	require.NoError(t, err)

	require.NotNil(t, res.DueDate)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *res.DueDate)
	assert.Equal(t, 2, ms.books[1].copies)
	assert.Equal(t, 0, res.RenewalCount)
	assert.NotEmpty(t, res.IssueULID)
}

func TestCreateIssue_Validation(t *testing.T) {
	svc := newTestService(newMemStore(), time.Now())

	_, err := svc.CreateIssue(context.Background(), CreateIssueRequest{StudentID: "1cd23is001"}, nil)
	assertCode(t, err, CodeInvalidArgument)

	_, err = svc.CreateIssue(context.Background(), CreateIssueRequest{BookID: 1}, nil)
	assertCode(t, err, CodeInvalidArgument)
}

func TestCreateIssue_NoCopies(t *testing.T) {
	ms := newMemStore()
	ms.addBook(1, "Sold Out", 0)
	svc := newTestService(ms, time.Now())

	_, err := svc.CreateIssue(context.Background(), CreateIssueRequest{BookID: 1, StudentID: "1cd23is001"}, nil)
	assertCode(t, err, CodeConflict)
}

func TestReturnIssue_DoubleReturn(t *testing.T) {
	ms := newMemStore()
	ms.addBook(1, "Some Book", 1)
	svc := newTestService(ms, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	res, err := svc.CreateIssue(context.Background(), CreateIssueRequest{
		BookID: 1, StudentID: "1cd23is001", IssueDate: strptr("2024-01-01"),
	}, nil)
	require.NoError(t, err)

	_, err = svc.ReturnIssue(context.Background(), res.IssueID, ReturnRequest{ReturnDate: strptr("2024-01-10")})
	require.NoError(t, err)

	_, err = svc.ReturnIssue(context.Background(), res.IssueID, ReturnRequest{ReturnDate: strptr("2024-01-11")})
	assertCode(t, err, CodeConflict)
	assert.Equal(t, 1, ms.books[1].copies)
}

// 在庫1冊を貸し切り、延滞返却で罰金が1件だけ積まれる一連の流れ。
func TestLoanLifecycle_LateReturn(t *testing.T) {
	ms := newMemStore()
	ms.addBook(1, "Popular Book", 1)
	svc := newTestService(ms, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	res, err := svc.CreateIssue(context.Background(), CreateIssueRequest{
		BookID: 1, StudentID: "1cd23is001", IssueDate: strptr("2024-01-01"),
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.DueDate)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *res.DueDate)
	assert.Equal(t, 0, ms.books[1].copies)

	// 在庫が尽きているので次の貸出は弾かれる
	_, err = svc.CreateIssue(context.Background(), CreateIssueRequest{
		BookID: 1, StudentID: "1cd23cs002",
	}, nil)
	assertCode(t, err, CodeConflict)

	// 5日延滞で返却 → 5日 × 5 = 25
	ret, err := svc.ReturnIssue(context.Background(), res.IssueID, ReturnRequest{ReturnDate: strptr("2024-01-20")})
	require.NoError(t, err)
	assert.Equal(t, 1, ms.books[1].copies)
	require.NotNil(t, ret.Fine)
	assert.Equal(t, float64(25), ret.Fine.Amount)
	assert.Equal(t, "Unpaid", ret.Fine.Status)
	assert.Len(t, ms.fines, 1)
}

func TestReturnIssue_OnTimeNoFine(t *testing.T) {
	ms := newMemStore()
	ms.addBook(1, "Some Book", 2)
	svc := newTestService(ms, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	res, err := svc.CreateIssue(context.Background(), CreateIssueRequest{
		BookID: 1, StudentID: "1cd23is001", IssueDate: strptr("2024-03-01"),
	}, nil)
	require.NoError(t, err)

	ret, err := svc.ReturnIssue(context.Background(), res.IssueID, ReturnRequest{ReturnDate: strptr("2024-03-10")})
	require.NoError(t, err)
	assert.Nil(t, ret.Fine)
	assert.Empty(t, ms.fines)
}

func TestRenewIssue(t *testing.T) {
	ms := newMemStore()
	ms.addBook(1, "Some Book", 1)
	svc := newTestService(ms, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	res, err := svc.CreateIssue(context.Background(), CreateIssueRequest{
		BookID: 1, StudentID: "1cd23is001", IssueDate: strptr("2024-01-01"),
	}, nil)
	require.NoError(t, err)

	renewed, err := svc.RenewIssue(context.Background(), res.IssueID)
	require.NoError(t, err)
	require.NotNil(t, renewed.DueDate)
	assert.Equal(t, time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC), *renewed.DueDate)
	assert.Equal(t, 1, renewed.RenewalCount)

	// 返却後の延長は不可
	_, err = svc.ReturnIssue(context.Background(), res.IssueID, ReturnRequest{ReturnDate: strptr("2024-01-20")})
	require.NoError(t, err)
	_, err = svc.RenewIssue(context.Background(), res.IssueID)
	assertCode(t, err, CodeConflict)
}

func TestGetIssueByKey(t *testing.T) {
	ms := newMemStore()
	ms.addBook(1, "Some Book", 1)
	svc := newTestService(ms, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	res, err := svc.CreateIssue(context.Background(), CreateIssueRequest{
		BookID: 1, StudentID: "1cd23is001",
	}, nil)
	require.NoError(t, err)

	byID, err := svc.GetIssueByKey(context.Background(), fmt.Sprintf("%d", res.IssueID))
	require.NoError(t, err)
	assert.Equal(t, res.IssueID, byID.IssueID)

	byULID, err := svc.GetIssueByKey(context.Background(), res.IssueULID)
	require.NoError(t, err)
	assert.Equal(t, res.IssueID, byULID.IssueID)

	_, err = svc.GetIssueByKey(context.Background(), "01NOSUCHULID0000000000000")
	assertCode(t, err, CodeNotFound)
}

func TestListOverdue(t *testing.T) {
	ms := newMemStore()
	ms.addBook(1, "Book A", 5)
	svc := newTestService(ms, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))

	// due 2024-01-15
	_, err := svc.CreateIssue(context.Background(), CreateIssueRequest{
		BookID: 1, StudentID: "1cd23is001", IssueDate: strptr("2024-01-01"),
	}, nil)
	require.NoError(t, err)

	// due 2024-02-14
	_, err = svc.CreateIssue(context.Background(), CreateIssueRequest{
		BookID: 1, StudentID: "1cd23cs002", IssueDate: strptr("2024-01-31"),
	}, nil)
	require.NoError(t, err)

	items, total, err := svc.ListOverdue(context.Background(), time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "1cd23is001", items[0].StudentID)
	assert.True(t, items[0].Overdue)
}
