package issues

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	pdb "LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/metrics"
	"LIBRA-backend/internal/platform/notify"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ===== Service本体 =====

type Service struct {
	store    Store
	policy   pdb.CirculationPolicy
	notifier notify.Notifier
	metrics  *metrics.Metrics
	clock    Clock
	id       IDGen
}

func NewService(d *sql.DB, policy pdb.CirculationPolicy, notifier notify.Notifier, m *metrics.Metrics) *Service {
	return &Service{
		store:    NewStore(d),
		policy:   policy,
		notifier: notifier,
		metrics:  m,
		clock:    realClock{},
		id:       ulidGen{},
	}
}

// 貸出登録。librarianID はログインセッション由来（リクエストで上書き可能）。
func (s *Service) CreateIssue(ctx context.Context, req CreateIssueRequest, sessionLibrarianID *int64) (*IssueResponse, error) {
	if req.BookID <= 0 {
		return nil, ErrInvalid("book_id must be > 0")
	}
	if req.StudentID == "" {
		return nil, ErrInvalid("student_id is required")
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	issueDate := now
	if req.IssueDate != nil && *req.IssueDate != "" {
		parsed, err := time.Parse("2006-01-02", *req.IssueDate)
		if err != nil {
			return nil, ErrInvalid("invalid issue_date format, expected YYYY-MM-DD")
		}
		issueDate = parsed
	}

	// 期限はポリシー既定（14日）。呼び出し側が明示すればそちらを使う。
	dueDate := issueDate.AddDate(0, 0, s.policy.LoanPeriodDays)
	if req.DueDate != nil && *req.DueDate != "" {
		parsed, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			return nil, ErrInvalid("invalid due_date format, expected YYYY-MM-DD")
		}
		dueDate = parsed
	}

	m := &Issue{
		IssueULID: idStr,
		BookID:    req.BookID,
		StudentID: req.StudentID,
		IssueDate: issueDate,
		DueDate:   sql.NullTime{Time: dueDate, Valid: true},
	}

	librarianID := req.LibrarianID
	if librarianID == nil {
		librarianID = sessionLibrarianID
	}
	if librarianID != nil {
		m.LibrarianID = sql.NullInt64{Int64: *librarianID, Valid: true}
	}

	if err := s.store.ExecCreateIssue(ctx, m); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IssueCreated()
	}
	s.publish("issues", "INSERT", strconv.FormatInt(m.IssueID, 10))
	s.publish("books", "UPDATE", strconv.FormatInt(m.BookID, 10))
	s.refreshActiveGauge(ctx)

	resp := buildIssueResponse(&issueRow{Issue: *m}, s.clock.Now())
	return &resp, nil
}

// 返却登録。延滞していれば罰金を1件作成する（既にあれば作らない）。
func (s *Service) ReturnIssue(ctx context.Context, issueID int64, req ReturnRequest) (*ReturnResponse, error) {
	if issueID <= 0 {
		return nil, ErrInvalid("issue_id must be > 0")
	}

	returnedAt := s.clock.Now()
	if req.ReturnDate != nil && *req.ReturnDate != "" {
		parsed, err := parseDateTime(*req.ReturnDate)
		if err != nil {
			return nil, ErrInvalid("invalid return_date format, expected YYYY-MM-DD or RFC3339")
		}
		returnedAt = parsed
	}

	fineULID, err := s.id.New()
	if err != nil {
		return nil, err
	}

	row, fine, err := s.store.ExecReturn(ctx, issueID, returnedAt, s.policy.FineRatePerDay, fineULID)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ReturnProcessed()
	}
	s.publish("issues", "UPDATE", strconv.FormatInt(issueID, 10))
	s.publish("books", "UPDATE", strconv.FormatInt(row.BookID, 10))
	s.refreshActiveGauge(ctx)

	resp := &ReturnResponse{Issue: buildIssueResponse(row, s.clock.Now())}
	if fine != nil {
		if s.metrics != nil {
			s.metrics.FineCreated(fine.Amount)
		}
		s.publish("fines", "INSERT", strconv.FormatInt(fine.FineID, 10))
		resp.Fine = &FineDTO{
			FineID:         fine.FineID,
			FineULID:       fine.FineULID,
			IssueID:        fine.IssueID,
			Amount:         fine.Amount,
			Status:         fine.Status,
			DateCalculated: fine.DateCalculated,
		}
	}
	return resp, nil
}

// 延長。貸出中のみ。renewal_count を進めて期限をポリシー分延ばす。
func (s *Service) RenewIssue(ctx context.Context, issueID int64) (*IssueResponse, error) {
	if issueID <= 0 {
		return nil, ErrInvalid("issue_id must be > 0")
	}
	row, err := s.store.ExecRenew(ctx, issueID, s.policy.RenewExtensionDays)
	if err != nil {
		return nil, err
	}
	s.publish("issues", "UPDATE", strconv.FormatInt(issueID, 10))
	resp := buildIssueResponse(row, s.clock.Now())
	return &resp, nil
}

// 貸出単一取得（ID or ULID）
func (s *Service) GetIssueByKey(ctx context.Context, key string) (*IssueResponse, error) {
	if key == "" {
		return nil, ErrInvalid("id or ulid is required")
	}

	// 数値として解釈できればID検索
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		row, err := s.store.GetIssueByID(ctx, id)
		if err != nil {
			return nil, err
		}
		resp := buildIssueResponse(row, s.clock.Now())
		return &resp, nil
	}

	row, err := s.store.GetIssueByULID(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := buildIssueResponse(row, s.clock.Now())
	return &resp, nil
}

// 貸出一覧
func (s *Service) ListIssues(ctx context.Context, f IssueFilter, p Page) ([]IssueResponse, int64, error) {
	rows, total, err := s.store.ListIssues(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	now := s.clock.Now()
	out := make([]IssueResponse, 0, len(rows))
	for i := range rows {
		out = append(out, buildIssueResponse(&rows[i], now))
	}
	return out, total, nil
}

// 貸出中一覧
func (s *Service) ListActive(ctx context.Context, studentID string, p Page) ([]IssueResponse, int64, error) {
	active := true
	return s.ListIssues(ctx, IssueFilter{StudentID: studentID, Active: &active}, p)
}

// 延滞一覧（asOf 時点）
func (s *Service) ListOverdue(ctx context.Context, asOf time.Time, p Page) ([]IssueResponse, int64, error) {
	return s.ListIssues(ctx, IssueFilter{OverdueAsOf: &asOf}, p)
}

// 管理用削除。在庫カウントは触らない。
func (s *Service) DeleteIssue(ctx context.Context, issueID int64) error {
	if err := s.store.DeleteIssue(ctx, issueID); err != nil {
		return err
	}
	s.publish("issues", "DELETE", strconv.FormatInt(issueID, 10))
	s.refreshActiveGauge(ctx)
	return nil
}

// ---------- helpers ----------

func (s *Service) publish(table, action, key string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(context.Background(), notify.ChangeEvent{Table: table, Action: action, Key: key})
}

func (s *Service) refreshActiveGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if n, err := s.store.CountActive(ctx); err == nil {
		s.metrics.SetActiveIssues(n)
	}
}

func parseDateTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func buildIssueResponse(r *issueRow, now time.Time) IssueResponse {
	resp := IssueResponse{
		IssueID:      r.IssueID,
		IssueULID:    r.IssueULID,
		BookID:       r.BookID,
		StudentID:    r.StudentID,
		IssueDate:    r.IssueDate,
		RenewalCount: r.RenewalCount,
		Overdue:      r.IsOverdue(now),
	}
	if r.LibrarianID.Valid {
		v := r.LibrarianID.Int64
		resp.LibrarianID = &v
	}
	if r.DueDate.Valid {
		v := r.DueDate.Time
		resp.DueDate = &v
	}
	if r.ReturnDate.Valid {
		v := r.ReturnDate.Time
		resp.ReturnDate = &v
	}
	if r.BookTitle.Valid {
		v := r.BookTitle.String
		resp.BookTitle = &v
	}
	if r.StudentName.Valid {
		v := r.StudentName.String
		resp.StudentName = &v
	}
	return resp
}
