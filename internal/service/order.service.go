package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookmate/internal/domain"
	"bookmate/internal/repo"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
)

// OrderItemInput is one requested line of a new order.
type OrderItemInput struct {
	BookID   uuid.UUID
	Quantity int
}

// OrderService owns the order and order-item lifecycle: creation with stock
// validation and price snapshots, lookups, status transitions, guarded stock
// decrement, and cancellation with stock restoration.
type OrderService struct {
	books       repo.BookRepo
	orders      repo.OrderRepo
	tx          repo.TxManager
	deliveryFee decimal.Decimal
}

func NewOrderService(books repo.BookRepo, orders repo.OrderRepo, tx repo.TxManager, deliveryFee decimal.Decimal) *OrderService {
	return &OrderService{books: books, orders: orders, tx: tx, deliveryFee: deliveryFee}
}

// CreateOrder validates stock against the current catalog snapshot, snapshots
// unit prices, computes the total, and persists the order and its items as
// one unit of work. Stock is not decremented here; that happens when the
// payment settles.
func (s *OrderService) CreateOrder(
	ctx context.Context,
	userID uuid.UUID,
	items []OrderItemInput,
	deliveryAddress string,
	deliveryMethod domain.DeliveryMethod,
) (*domain.Order, error) {
	if userID == uuid.Nil || len(items) == 0 || deliveryAddress == "" {
		return nil, ErrInvalidInput
	}
	if deliveryMethod != domain.DeliveryPickup && deliveryMethod != domain.DeliveryDelivery {
		return nil, ErrInvalidInput
	}
	for _, it := range items {
		if it.BookID == uuid.Nil || it.Quantity <= 0 {
			return nil, ErrInvalidInput
		}
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.BookID)
	}
	books, err := s.books.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	booksByID := make(map[uuid.UUID]domain.Book, len(books))
	for _, b := range books {
		booksByID[b.ID] = b
	}

	total := decimal.Zero
	orderID := uuid.New()
	orderItems := make([]domain.OrderItem, 0, len(items))
	for _, it := range items {
		book, ok := booksByID[it.BookID]
		if !ok {
			return nil, fmt.Errorf("book %s: %w", it.BookID, repo.ErrNotFound)
		}
		if book.Stock < it.Quantity {
			return nil, fmt.Errorf("book %q: %w", book.Title, repo.ErrInsufficientStock)
		}
		total = total.Add(book.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		orderItems = append(orderItems, domain.OrderItem{
			ID:        uuid.New(),
			OrderID:   orderID,
			BookID:    book.ID,
			BookTitle: book.Title,
			Quantity:  it.Quantity,
			UnitPrice: book.Price,
		})
	}

	fee := decimal.Zero
	if deliveryMethod == domain.DeliveryDelivery {
		fee = s.deliveryFee
	}
	total = total.Add(fee)

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              orderID,
		UserID:          userID,
		Items:           orderItems,
		TotalAmount:     total,
		DeliveryFee:     fee,
		PaymentStatus:   domain.PaymentPending,
		OrderStatus:     domain.OrderProcessing,
		DeliveryMethod:  deliveryMethod,
		DeliveryAddress: deliveryAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}
		return s.orders.CreateItems(ctx, orderItems)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.orders.FindByID(ctx, id)
}

func (s *OrderService) GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	return s.orders.FindByUser(ctx, userID)
}

func (s *OrderService) GetAllOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.FindAll(ctx)
}

func (s *OrderService) GetOrderByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	return s.orders.FindByPaymentReference(ctx, reference)
}

// UpdateOrderStatus applies an administrator-driven fulfillment transition.
// No transition table is enforced here; callers own the validity of the move.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	if !status.Valid() {
		return ErrInvalidInput
	}
	return s.orders.UpdateOrderStatus(ctx, id, status)
}

func (s *OrderService) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) error {
	return s.orders.UpdatePaymentStatus(ctx, id, status)
}

// FindStuckPending lists orders whose payment attempt never settled, for the
// reconciliation sweep.
func (s *OrderService) FindStuckPending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	return s.orders.FindStuckPending(ctx, olderThan, limit)
}

// RecordPaymentAttempt stores the gateway's correlation ids for the current
// payment attempt, replacing any previous reference.
func (s *OrderService) RecordPaymentAttempt(ctx context.Context, id uuid.UUID, reference, externalOrderNo string) error {
	return s.orders.SetPaymentReference(ctx, id, reference, externalOrderNo)
}

// RecordExternalOrderNo backfills the gateway order number if absent.
func (s *OrderService) RecordExternalOrderNo(ctx context.Context, id uuid.UUID, externalOrderNo string) error {
	return s.orders.SetExternalOrderNo(ctx, id, externalOrderNo)
}

// DecrementStockForOrder applies the compare-and-decrement reservation for
// every item of the order in one unit of work. Callers must invoke it at most
// once per order; a second invocation double-deducts or fails with
// ErrInsufficientStock, never drives stock negative.
func (s *OrderService) DecrementStockForOrder(ctx context.Context, orderID uuid.UUID) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		return s.decrementItems(ctx, order.Items)
	})
}

func (s *OrderService) decrementItems(ctx context.Context, items []domain.OrderItem) error {
	for _, it := range items {
		if err := s.books.DecrementStock(ctx, it.BookID, it.Quantity); err != nil {
			return fmt.Errorf("decrement stock for book %s: %w", it.BookID, err)
		}
	}
	return nil
}

// SettlePayment performs the pending-to-paid transition and, only when this
// call actually performed it, reserves stock for the order's items. The
// transition and the decrements commit together; repeated settlement signals
// for the same order are no-ops.
func (s *OrderService) SettlePayment(ctx context.Context, orderID uuid.UUID) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		transitioned, err := s.orders.MarkPaid(ctx, orderID)
		if err != nil {
			return err
		}
		if !transitioned {
			return nil
		}
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		return s.decrementItems(ctx, order.Items)
	})
}

// FailPayment marks the order's payment failed. A paid order is never
// downgraded; the stale signal is reported to the caller via the bool.
func (s *OrderService) FailPayment(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return s.orders.MarkFailed(ctx, orderID)
}

// CancelOrder deletes the order after verifying ownership and state, and
// restores stock for orders still in processing or purchased. The pre-deletion
// snapshot is returned for confirmation messaging.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, requesterID uuid.UUID) (*domain.Order, error) {
	var snapshot *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != requesterID {
			return ErrUnauthorized
		}
		if order.OrderStatus == domain.OrderDelivered {
			return fmt.Errorf("cannot cancel a delivered order: %w", ErrInvalidState)
		}
		if order.PaymentStatus == domain.PaymentPaid && order.OrderStatus != domain.OrderProcessing {
			return fmt.Errorf("cannot cancel a paid order in fulfillment: %w", ErrInvalidState)
		}

		if order.OrderStatus == domain.OrderProcessing || order.OrderStatus == domain.OrderPurchased {
			for _, it := range order.Items {
				if err := s.books.RestoreStock(ctx, it.BookID, it.Quantity); err != nil {
					return err
				}
			}
		}
		if err := s.orders.Delete(ctx, orderID); err != nil {
			return err
		}
		snapshot = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
