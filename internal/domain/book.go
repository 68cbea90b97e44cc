package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookCategory string

const (
	CategoryTextbook  BookCategory = "Textbook"
	CategoryManual    BookCategory = "Manual"
	CategoryGuide     BookCategory = "Guide"
	CategoryPastPaper BookCategory = "Past Paper"
)

// Book is a catalog entry. Stock is never negative; it is decremented only by
// a successful reservation and restored on order cancellation.
type Book struct {
	ID        uuid.UUID
	Title     string
	Author    string
	Category  BookCategory
	Price     decimal.Decimal
	Stock     int
	CreatedAt time.Time
}
