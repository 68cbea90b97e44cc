package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"bookmate/internal/domain"
)

type OrderRepo interface {
	Create(ctx context.Context, order *domain.Order) error
	CreateItems(ctx context.Context, items []domain.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)
	FindAll(ctx context.Context) ([]domain.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) error
	// SetPaymentReference stores the correlation ids returned by the gateway
	// for the current payment attempt.
	SetPaymentReference(ctx context.Context, id uuid.UUID, reference, externalOrderNo string) error
	// SetExternalOrderNo backfills the gateway order number, only if absent.
	SetExternalOrderNo(ctx context.Context, id uuid.UUID, externalOrderNo string) error
	// MarkPaid transitions to paid/purchased unless the order is already paid.
	// It reports whether this call performed the transition, so settlement
	// side effects run at most once per order.
	MarkPaid(ctx context.Context, id uuid.UUID) (bool, error)
	// MarkFailed transitions to failed unless the order is already paid; a
	// paid order is never downgraded.
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// FindStuckPending returns orders still pending with a live payment
	// reference that have not been touched for olderThan.
	FindStuckPending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, user_id, total_amount, delivery_fee, payment_status, order_status,
	delivery_method, delivery_address, payment_reference, external_order_no, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }, o *domain.Order) error {
	var reference, orderNo sql.NullString
	err := row.Scan(
		&o.ID, &o.UserID, &o.TotalAmount, &o.DeliveryFee, &o.PaymentStatus, &o.OrderStatus,
		&o.DeliveryMethod, &o.DeliveryAddress, &reference, &orderNo, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	o.PaymentReference = reference.String
	o.ExternalOrderNo = orderNo.String
	return nil
}

func (r *orderRepo) Create(ctx context.Context, order *domain.Order) error {
	_, err := runner(ctx, r.db).ExecContext(ctx,
		`INSERT INTO orders (id, user_id, total_amount, delivery_fee, payment_status, order_status,
			delivery_method, delivery_address, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		order.ID, order.UserID, order.TotalAmount, order.DeliveryFee, order.PaymentStatus,
		order.OrderStatus, order.DeliveryMethod, order.DeliveryAddress, order.CreatedAt, order.UpdatedAt,
	)
	return err
}

func (r *orderRepo) CreateItems(ctx context.Context, items []domain.OrderItem) error {
	q := runner(ctx, r.db)
	for _, item := range items {
		_, err := q.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, book_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.OrderID, item.BookID, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *orderRepo) loadItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := runner(ctx, r.db).QueryContext(ctx,
		`SELECT oi.id, oi.order_id, oi.book_id, b.title, oi.quantity, oi.unit_price
		 FROM order_items oi
		 JOIN books b ON b.id = oi.book_id
		 WHERE oi.order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.BookID, &it.BookTitle, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *orderRepo) findOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	row := runner(ctx, r.db).QueryRowContext(ctx, query, arg)
	var o domain.Order
	if err := scanOrder(row, &o); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	items, err := r.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

func (r *orderRepo) FindByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	return r.findOne(ctx, "SELECT "+orderColumns+" FROM orders WHERE payment_reference = $1", reference)
}

func (r *orderRepo) findMany(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := runner(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r *orderRepo) FindByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	return r.findMany(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
}

func (r *orderRepo) FindAll(ctx context.Context) ([]domain.Order, error) {
	return r.findMany(ctx, "SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC")
}

func (r *orderRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := runner(ctx, r.db).ExecContext(ctx, query, args...)
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

func (r *orderRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	return r.exec(ctx,
		"UPDATE orders SET order_status = $2, updated_at = now() WHERE id = $1", id, status)
}

func (r *orderRepo) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) error {
	return r.exec(ctx,
		"UPDATE orders SET payment_status = $2, updated_at = now() WHERE id = $1", id, status)
}

func (r *orderRepo) SetPaymentReference(ctx context.Context, id uuid.UUID, reference, externalOrderNo string) error {
	return r.exec(ctx,
		`UPDATE orders SET payment_reference = $2, external_order_no = NULLIF($3, ''), updated_at = now()
		 WHERE id = $1`, id, reference, externalOrderNo)
}

func (r *orderRepo) SetExternalOrderNo(ctx context.Context, id uuid.UUID, externalOrderNo string) error {
	_, err := runner(ctx, r.db).ExecContext(ctx,
		"UPDATE orders SET external_order_no = $2, updated_at = now() WHERE id = $1 AND external_order_no IS NULL",
		id, externalOrderNo)
	return err
}

func (r *orderRepo) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := runner(ctx, r.db).ExecContext(ctx,
		`UPDATE orders SET payment_status = $2, order_status = $3, updated_at = now()
		 WHERE id = $1 AND payment_status <> $2`,
		id, domain.PaymentPaid, domain.OrderPurchased)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *orderRepo) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := runner(ctx, r.db).ExecContext(ctx,
		`UPDATE orders SET payment_status = $2, updated_at = now()
		 WHERE id = $1 AND payment_status <> $3`,
		id, domain.PaymentFailed, domain.PaymentPaid)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *orderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	// order_items cascade
	return r.exec(ctx, "DELETE FROM orders WHERE id = $1", id)
}

func (r *orderRepo) FindStuckPending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	return r.findMany(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE payment_status = $1 AND payment_reference IS NOT NULL AND updated_at < $2
		 ORDER BY updated_at ASC LIMIT $3`,
		domain.PaymentPending, time.Now().Add(-olderThan), limit)
}
