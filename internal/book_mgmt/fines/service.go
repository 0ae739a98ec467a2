package fines

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"LIBRA-backend/internal/book_mgmt/issues"
	pdb "LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/metrics"
	"LIBRA-backend/internal/platform/notify"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Service struct {
	store    Store
	policy   pdb.CirculationPolicy
	notifier notify.Notifier
	metrics  *metrics.Metrics
	clock    Clock
}

func NewService(d *sql.DB, policy pdb.CirculationPolicy, notifier notify.Notifier, m *metrics.Metrics) *Service {
	return &Service{
		store:    NewStore(d),
		policy:   policy,
		notifier: notifier,
		metrics:  m,
		clock:    realClock{},
	}
}

func (s *Service) GetFineByKey(ctx context.Context, key string) (*FineResponse, error) {
	if key == "" {
		return nil, ErrInvalid("id or ulid is required")
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		r, err := s.store.GetFineByID(ctx, id)
		if err != nil {
			return nil, err
		}
		resp := buildFineResponse(r)
		return &resp, nil
	}
	r, err := s.store.GetFineByULID(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := buildFineResponse(r)
	return &resp, nil
}

func (s *Service) ListFines(ctx context.Context, f FineFilter, p Page) ([]FineResponse, int64, error) {
	if f.Status != "" && f.Status != StatusUnpaid && f.Status != StatusPaid {
		return nil, 0, ErrInvalid("status must be Unpaid or Paid")
	}
	rows, total, err := s.store.ListFines(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]FineResponse, 0, len(rows))
	for i := range rows {
		out = append(out, buildFineResponse(&rows[i]))
	}
	return out, total, nil
}

// 手動計上。返却時の自動計上と同じく1貸出1件まで。
func (s *Service) CreateManualFine(ctx context.Context, req CreateFineRequest) (*FineResponse, error) {
	if req.IssueID <= 0 {
		return nil, ErrInvalid("issue_id must be > 0")
	}
	if req.Amount <= 0 {
		return nil, ErrInvalid("amount must be > 0")
	}

	id, err := newULID()
	if err != nil {
		return nil, err
	}
	m := &Fine{
		FineULID:       id,
		IssueID:        req.IssueID,
		Amount:         req.Amount,
		DateCalculated: s.clock.Now(),
	}
	if err := s.store.CreateManual(ctx, m); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.FineCreated(m.Amount)
	}
	s.publish("fines", "INSERT", strconv.FormatInt(m.FineID, 10))

	r, err := s.store.GetFineByID(ctx, m.FineID)
	if err != nil {
		return nil, err
	}
	resp := buildFineResponse(r)
	return &resp, nil
}

// 納付。既納なら何もせず現状を返す（冪等）。
func (s *Service) PayFine(ctx context.Context, fineID int64, req PayFineRequest) (*FineResponse, error) {
	if fineID <= 0 {
		return nil, ErrInvalid("fine_id must be > 0")
	}

	cur, err := s.store.GetFineByID(ctx, fineID)
	if err != nil {
		return nil, err
	}
	if cur.IsPaid() {
		resp := buildFineResponse(cur)
		return &resp, nil
	}

	paidAt := s.clock.Now()
	if req.PaidAt != nil && *req.PaidAt != "" {
		parsed, err := parseDateTime(*req.PaidAt)
		if err != nil {
			return nil, ErrInvalid("invalid paid_at format, expected YYYY-MM-DD or RFC3339")
		}
		paidAt = parsed
	}

	r, err := s.store.PayFine(ctx, fineID, paidAt)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.FinePaid()
	}
	s.publish("fines", "UPDATE", strconv.FormatInt(fineID, 10))

	resp := buildFineResponse(r)
	return &resp, nil
}

// 延滞中かつ罰金未作成の貸出を金額付きで列挙する（計上のプレビュー用）。
func (s *Service) ListUnfinedOverdue(ctx context.Context, asOf time.Time) ([]OverdueCandidateResponse, error) {
	cands, err := s.store.ListUnfinedOverdue(ctx, asOf)
	if err != nil {
		return nil, err
	}
	out := make([]OverdueCandidateResponse, 0, len(cands))
	for _, c := range cands {
		ref := asOf
		if c.ReturnDate.Valid {
			ref = c.ReturnDate.Time
		}
		r := OverdueCandidateResponse{
			IssueID:   c.IssueID,
			IssueULID: c.IssueULID,
			BookID:    c.BookID,
			StudentID: c.StudentID,
			DueDate:   c.DueDate,
			Amount:    issues.ComputeFine(c.DueDate, ref, s.policy.FineRatePerDay),
		}
		if c.ReturnDate.Valid {
			v := c.ReturnDate.Time
			r.ReturnDate = &v
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) DeleteFine(ctx context.Context, fineID int64) error {
	if err := s.store.DeleteFine(ctx, fineID); err != nil {
		return err
	}
	s.publish("fines", "DELETE", strconv.FormatInt(fineID, 10))
	return nil
}

// ---------- helpers ----------

func (s *Service) publish(table, action, key string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(context.Background(), notify.ChangeEvent{Table: table, Action: action, Key: key})
}

func newULID() (string, error) {
	t := time.Now().UTC()
	id, err := ulid.New(ulid.Timestamp(t), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func parseDateTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func buildFineResponse(r *fineRow) FineResponse {
	resp := FineResponse{
		FineID:         r.FineID,
		FineULID:       r.FineULID,
		IssueID:        r.IssueID,
		Amount:         r.Amount,
		Status:         r.Status,
		DateCalculated: r.DateCalculated,
	}
	if r.DatePaid.Valid {
		v := r.DatePaid.Time
		resp.DatePaid = &v
	}
	if r.StudentID.Valid {
		v := r.StudentID.String
		resp.StudentID = &v
	}
	if r.StudentName.Valid {
		v := r.StudentName.String
		resp.StudentName = &v
	}
	if r.BookTitle.Valid {
		v := r.BookTitle.String
		resp.BookTitle = &v
	}
	return resp
}
