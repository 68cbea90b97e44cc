package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bookmate/internal/domain"
)

type BookRepo interface {
	Create(ctx context.Context, book *domain.Book) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	// FindByIDs returns the books that exist; callers compare lengths to
	// detect unresolved ids.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Book, error)
	List(ctx context.Context) ([]domain.Book, error)
	// DecrementStock is a compare-and-decrement: it fails with
	// ErrInsufficientStock instead of ever driving stock negative.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) error
	RestoreStock(ctx context.Context, id uuid.UUID, qty int) error
}

type bookRepo struct {
	db *sql.DB
}

func NewBookRepo(db *sql.DB) BookRepo {
	return &bookRepo{db: db}
}

const bookColumns = "id, title, author, category, price, stock, created_at"

func scanBook(row interface{ Scan(dest ...any) error }, b *domain.Book) error {
	return row.Scan(&b.ID, &b.Title, &b.Author, &b.Category, &b.Price, &b.Stock, &b.CreatedAt)
}

func (r *bookRepo) Create(ctx context.Context, book *domain.Book) error {
	_, err := runner(ctx, r.db).ExecContext(ctx,
		`INSERT INTO books (id, title, author, category, price, stock, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		book.ID, book.Title, book.Author, book.Category, book.Price, book.Stock, book.CreatedAt,
	)
	return err
}

func (r *bookRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	row := runner(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+bookColumns+" FROM books WHERE id = $1", id)
	var b domain.Book
	if err := scanBook(row, &b); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *bookRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := "SELECT " + bookColumns + " FROM books WHERE id IN (" + strings.Join(placeholders, ", ") + ")"

	rows, err := runner(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		var b domain.Book
		if err := scanBook(rows, &b); err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (r *bookRepo) List(ctx context.Context) ([]domain.Book, error) {
	rows, err := runner(ctx, r.db).QueryContext(ctx,
		"SELECT "+bookColumns+" FROM books ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		var b domain.Book
		if err := scanBook(rows, &b); err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (r *bookRepo) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	q := runner(ctx, r.db)
	res, err := q.ExecContext(ctx,
		"UPDATE books SET stock = stock - $2 WHERE id = $1 AND stock >= $2", id, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	// distinguish a missing book from a stock shortfall
	var one int
	err = q.QueryRowContext(ctx, "SELECT 1 FROM books WHERE id = $1", id).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrInsufficientStock
}

func (r *bookRepo) RestoreStock(ctx context.Context, id uuid.UUID, qty int) error {
	res, err := runner(ctx, r.db).ExecContext(ctx,
		"UPDATE books SET stock = stock + $2 WHERE id = $1", id, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
