package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bookmate/internal/domain"
	"bookmate/internal/repo"
)

// BookService is the thin catalog surface: admin-created books, public reads.
type BookService struct {
	books repo.BookRepo
}

func NewBookService(books repo.BookRepo) *BookService {
	return &BookService{books: books}
}

func (s *BookService) Create(ctx context.Context, book domain.Book) (*domain.Book, error) {
	if book.Title == "" || book.Author == "" || !book.Price.IsPositive() || book.Stock < 0 {
		return nil, ErrInvalidInput
	}
	cp := book
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now().UTC()
	if err := s.books.Create(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *BookService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	return s.books.FindByID(ctx, id)
}

func (s *BookService) List(ctx context.Context) ([]domain.Book, error) {
	return s.books.List(ctx)
}
