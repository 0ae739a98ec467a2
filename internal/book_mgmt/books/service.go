package books

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"LIBRA-backend/internal/platform/notify"
)

type Service struct {
	store    *Store
	notifier notify.Notifier
}

func NewService(d *sql.DB, notifier notify.Notifier) *Service {
	return &Service{store: NewStore(d), notifier: notifier}
}

// ===== books =====

func (s *Service) CreateBook(ctx context.Context, in CreateBookRequest) (BookResponse, error) {
	if strings.TrimSpace(in.Title) == "" {
		return BookResponse{}, ErrInvalid("title is required")
	}
	if in.AvailableCopies < 0 {
		return BookResponse{}, ErrInvalid("available_copies must be >= 0")
	}

	m := &Book{
		Title:           strings.TrimSpace(in.Title),
		AvailableCopies: in.AvailableCopies,
	}
	if in.AuthorID != nil {
		m.AuthorID = sql.NullInt64{Int64: *in.AuthorID, Valid: true}
	}
	if in.Publisher != nil && *in.Publisher != "" {
		m.Publisher = sql.NullString{String: *in.Publisher, Valid: true}
	}
	if in.YearOfPublication != nil {
		m.YearOfPublication = sql.NullInt64{Int64: int64(*in.YearOfPublication), Valid: true}
	}

	if err := s.store.InsertBook(ctx, m); err != nil {
		return BookResponse{}, err
	}

	s.notifier.Publish(ctx, notify.ChangeEvent{Table: "books", Action: "INSERT", Key: strconv.FormatInt(m.BookID, 10)})

	out, err := s.store.GetBookByID(ctx, m.BookID)
	if err != nil {
		return BookResponse{}, err
	}
	return buildBookResponse(out), nil
}

func (s *Service) GetBook(ctx context.Context, id int64) (BookResponse, error) {
	out, err := s.store.GetBookByID(ctx, id)
	if err != nil {
		return BookResponse{}, err
	}
	return buildBookResponse(out), nil
}

func (s *Service) ListBooks(ctx context.Context, f BookFilter, p Page) ([]BookResponse, int64, error) {
	items, total, err := s.store.ListBooks(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]BookResponse, 0, len(items))
	for i := range items {
		out = append(out, buildBookResponse(&items[i]))
	}
	return out, total, nil
}

func (s *Service) UpdateBook(ctx context.Context, id int64, in UpdateBookRequest) (BookResponse, error) {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return BookResponse{}, ErrInvalid("title must not be empty")
	}
	if in.AvailableCopies != nil && *in.AvailableCopies < 0 {
		return BookResponse{}, ErrInvalid("available_copies must be >= 0")
	}

	out, err := s.store.UpdateBookByID(ctx, id, in)
	if err != nil {
		return BookResponse{}, err
	}

	s.notifier.Publish(ctx, notify.ChangeEvent{Table: "books", Action: "UPDATE", Key: strconv.FormatInt(id, 10)})
	return buildBookResponse(out), nil
}

func (s *Service) DeleteBook(ctx context.Context, id int64) error {
	if err := s.store.DeleteBook(ctx, id); err != nil {
		return err
	}
	s.notifier.Publish(ctx, notify.ChangeEvent{Table: "books", Action: "DELETE", Key: strconv.FormatInt(id, 10)})
	return nil
}

// ===== authors =====

func (s *Service) CreateAuthor(ctx context.Context, in CreateAuthorRequest) (AuthorResponse, error) {
	name := strings.TrimSpace(in.AuthorName)
	if name == "" {
		return AuthorResponse{}, ErrInvalid("author_name is required")
	}
	a := Author{AuthorName: name}
	if err := s.store.InsertAuthor(ctx, &a); err != nil {
		return AuthorResponse{}, err
	}
	s.notifier.Publish(ctx, notify.ChangeEvent{Table: "authors", Action: "INSERT", Key: strconv.FormatInt(a.AuthorID, 10)})
	return AuthorResponse{AuthorID: a.AuthorID, AuthorName: a.AuthorName}, nil
}

func (s *Service) ListAuthors(ctx context.Context) ([]AuthorResponse, error) {
	items, err := s.store.ListAuthors(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AuthorResponse, 0, len(items))
	for _, a := range items {
		out = append(out, AuthorResponse{AuthorID: a.AuthorID, AuthorName: a.AuthorName})
	}
	return out, nil
}

func (s *Service) UpdateAuthor(ctx context.Context, id int64, in UpdateAuthorRequest) (AuthorResponse, error) {
	name := strings.TrimSpace(in.AuthorName)
	if name == "" {
		return AuthorResponse{}, ErrInvalid("author_name is required")
	}
	a, err := s.store.UpdateAuthorByID(ctx, id, name)
	if err != nil {
		return AuthorResponse{}, err
	}
	s.notifier.Publish(ctx, notify.ChangeEvent{Table: "authors", Action: "UPDATE", Key: strconv.FormatInt(id, 10)})
	return AuthorResponse{AuthorID: a.AuthorID, AuthorName: a.AuthorName}, nil
}

func (s *Service) DeleteAuthor(ctx context.Context, id int64) error {
	if err := s.store.DeleteAuthor(ctx, id); err != nil {
		return err
	}
	s.notifier.Publish(ctx, notify.ChangeEvent{Table: "authors", Action: "DELETE", Key: strconv.FormatInt(id, 10)})
	return nil
}

// ---------- helpers ----------

func buildBookResponse(r *bookRow) BookResponse {
	resp := BookResponse{
		BookID:          r.BookID,
		Title:           r.Title,
		AvailableCopies: r.AvailableCopies,
	}
	if r.AuthorID.Valid {
		v := r.AuthorID.Int64
		resp.AuthorID = &v
	}
	if r.AuthorName.Valid {
		v := r.AuthorName.String
		resp.AuthorName = &v
	}
	if r.Publisher.Valid {
		v := r.Publisher.String
		resp.Publisher = &v
	}
	if r.YearOfPublication.Valid {
		v := int(r.YearOfPublication.Int64)
		resp.YearOfPublication = &v
	}
	return resp
}
