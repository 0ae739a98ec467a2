package students

import (
	"context"
	"database/sql"
	"strings"

	"LIBRA-backend/internal/platform/auth"
	pdb "LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/notify"
	"LIBRA-backend/internal/studentid"
)

type Service struct {
	store       *Store
	emailDomain string
	notifier    notify.Notifier
}

func NewService(d *sql.DB, emailDomain string, notifier notify.Notifier) *Service {
	return &Service{
		store:       NewStore(d),
		emailDomain: strings.ToLower(strings.TrimSpace(emailDomain)),
		notifier:    notifier,
	}
}

func (s *Service) GetStudent(ctx context.Context, key string) (*StudentResponse, error) {
	usn := studentid.Normalize(key)
	if !studentid.Validate(usn) {
		return nil, ErrInvalid("invalid student_id")
	}
	r, err := s.store.GetStudentByID(ctx, usn)
	if err != nil {
		return nil, err
	}
	resp := buildStudentResponse(r)
	return &resp, nil
}

func (s *Service) ListStudents(ctx context.Context, f StudentFilter, p Page) ([]StudentResponse, int64, error) {
	if f.DeptID != "" && !studentid.IsDeptCode(f.DeptID) {
		return nil, 0, ErrInvalid("unknown dept_id")
	}
	rows, total, err := s.store.ListStudents(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]StudentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, buildStudentResponse(&rows[i]))
	}
	return out, total, nil
}

func (s *Service) CreateStudent(ctx context.Context, req CreateStudentRequest) (*StudentResponse, error) {
	m, err := s.validateNew(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertStudent(ctx, m); err != nil {
		return nil, err
	}
	s.publish("students", "INSERT", m.StudentID)

	r, err := s.store.GetStudentByID(ctx, m.StudentID)
	if err != nil {
		return nil, err
	}
	resp := buildStudentResponse(r)
	return &resp, nil
}

func (s *Service) UpdateStudent(ctx context.Context, key string, req UpdateStudentRequest) (*StudentResponse, error) {
	usn := studentid.Normalize(key)
	if !studentid.Validate(usn) {
		return nil, ErrInvalid("invalid student_id")
	}
	cur, err := s.store.GetStudentByID(ctx, usn)
	if err != nil {
		return nil, err
	}

	m := cur.Student
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, ErrInvalid("name must not be empty")
		}
		m.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		email, err := s.normalizeEmail(*req.Email)
		if err != nil {
			return nil, err
		}
		m.Email = email
	}
	if req.Contact != nil {
		m.Contact = nullStrOrNil(*req.Contact)
	}
	if req.Year != nil {
		if *req.Year < 1 || *req.Year > 8 {
			return nil, ErrInvalid("year must be between 1 and 8")
		}
		m.Year = sql.NullInt64{Int64: *req.Year, Valid: true}
	}
	if req.DeptID != nil {
		dept := strings.ToLower(strings.TrimSpace(*req.DeptID))
		if !studentid.IsDeptCode(dept) {
			return nil, ErrInvalid("unknown dept_id")
		}
		m.DeptID = sql.NullString{String: dept, Valid: true}
	}

	if err := s.store.UpdateStudentByID(ctx, &m); err != nil {
		return nil, err
	}
	s.publish("students", "UPDATE", m.StudentID)

	r, err := s.store.GetStudentByID(ctx, m.StudentID)
	if err != nil {
		return nil, err
	}
	resp := buildStudentResponse(r)
	return &resp, nil
}

func (s *Service) DeleteStudent(ctx context.Context, key string) error {
	usn := studentid.Normalize(key)
	if !studentid.Validate(usn) {
		return ErrInvalid("invalid student_id")
	}
	if err := s.store.DeleteStudent(ctx, usn); err != nil {
		return err
	}
	s.publish("students", "DELETE", usn)
	return nil
}

func (s *Service) ListDepartments(ctx context.Context) ([]DepartmentResponse, error) {
	deps, err := s.store.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DepartmentResponse, 0, len(deps))
	for _, d := range deps {
		out = append(out, DepartmentResponse{DeptID: d.DeptID, DeptName: d.DeptName})
	}
	return out, nil
}

// CreateFromSignup は auth.StudentDirectory の実装。
// 呼び出し側（auth）のトランザクション内で students 行を作る。
// コミット前なので変更通知はここでは出さない。
func (s *Service) CreateFromSignup(ctx context.Context, tx pdb.DBTX, in auth.StudentSignup) error {
	req := CreateStudentRequest{
		StudentID: in.StudentID,
		Name:      in.Name,
		Email:     in.Email,
		Contact:   in.Contact,
		DeptID:    in.DeptID,
	}
	if in.Year > 0 {
		y := int64(in.Year)
		req.Year = &y
	}
	m, err := s.validateNew(req)
	if err != nil {
		return err
	}
	return s.store.InsertStudentTx(ctx, tx, m)
}

// ---------- helpers ----------

func (s *Service) validateNew(req CreateStudentRequest) (*Student, error) {
	usn := studentid.Normalize(req.StudentID)
	if !studentid.Validate(usn) {
		return nil, ErrInvalid("invalid student_id")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalid("name is required")
	}
	email, err := s.normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	// 学科はリクエスト優先、未指定ならUSN中央2文字から導出
	dept := strings.ToLower(strings.TrimSpace(req.DeptID))
	if dept == "" {
		dept = usn[5:7]
	}
	if !studentid.IsDeptCode(dept) {
		return nil, ErrInvalid("unknown dept_id")
	}

	m := &Student{
		StudentID: usn,
		Name:      name,
		Email:     email,
		Contact:   nullStrOrNil(req.Contact),
		DeptID:    sql.NullString{String: dept, Valid: true},
	}
	if req.Year != nil {
		if *req.Year < 1 || *req.Year > 8 {
			return nil, ErrInvalid("year must be between 1 and 8")
		}
		m.Year = sql.NullInt64{Int64: *req.Year, Valid: true}
	}
	return m, nil
}

func (s *Service) normalizeEmail(v string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(v))
	if email == "" || !strings.Contains(email, "@") {
		return "", ErrInvalid("invalid email")
	}
	if s.emailDomain != "" && !strings.HasSuffix(email, "@"+s.emailDomain) {
		return "", ErrInvalid("email must belong to @" + s.emailDomain)
	}
	return email, nil
}

func (s *Service) publish(table, action, key string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(context.Background(), notify.ChangeEvent{Table: table, Action: action, Key: key})
}

func nullStrOrNil(v string) sql.NullString {
	v = strings.TrimSpace(v)
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func buildStudentResponse(r *studentRow) StudentResponse {
	resp := StudentResponse{
		StudentID: r.StudentID,
		Name:      r.Name,
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
	}
	if r.Contact.Valid {
		v := r.Contact.String
		resp.Contact = &v
	}
	if r.Year.Valid {
		v := r.Year.Int64
		resp.Year = &v
	}
	if r.DeptID.Valid {
		v := r.DeptID.String
		resp.DeptID = &v
		// JOIN が空振りしても学科名は定義済みテーブルから補う
		name := r.DeptName.String
		if !r.DeptName.Valid {
			name = studentid.DeptName(v)
		}
		if name != "" {
			resp.DeptName = &name
		}
	}
	return resp
}
