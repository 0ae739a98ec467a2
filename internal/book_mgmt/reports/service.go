package reports

import (
	"context"
	"database/sql"
	"time"
)

type Service struct {
	store *Store
}

func NewService(d *sql.DB) *Service {
	return &Service{store: NewStore(d)}
}

func (s *Service) PopularBooks(ctx context.Context, limit int) ([]PopularBook, error) {
	if limit < 0 || limit > 100 {
		return nil, ErrInvalid("limit must be between 0 and 100")
	}
	refs, err := s.store.ListIssueBookRefs(ctx)
	if err != nil {
		return nil, err
	}
	return PopularBooks(refs, limit), nil
}

func (s *Service) DepartmentStudentCounts(ctx context.Context) ([]DepartmentCount, error) {
	refs, err := s.store.ListStudentDeptRefs(ctx)
	if err != nil {
		return nil, err
	}
	return CountByDepartment(refs), nil
}

func (s *Service) Overdue(ctx context.Context, asOf time.Time) (*OverdueSummary, error) {
	return s.store.FetchOverdueSummary(ctx, asOf)
}
