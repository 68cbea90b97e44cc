package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookmate/internal/domain"
)

// MemoryStore is an in-memory implementation of BookRepo and OrderRepo used by
// unit tests. It mirrors the semantics of the SQL repositories, including the
// compare-and-decrement stock guard and the paid-is-sticky transitions.
type MemoryStore struct {
	mu           sync.RWMutex
	booksByID    map[uuid.UUID]domain.Book
	ordersByID   map[uuid.UUID]domain.Order
	itemsByOrder map[uuid.UUID][]domain.OrderItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		booksByID:    make(map[uuid.UUID]domain.Book),
		ordersByID:   make(map[uuid.UUID]domain.Order),
		itemsByOrder: make(map[uuid.UUID][]domain.OrderItem),
	}
}

var (
	_ BookRepo  = (*MemoryStore)(nil)
	_ TxManager = (*memoryTx)(nil)
)

// transaction marker so repositories skip their own locks inside WithTransaction
type memTxKey struct{}

func inTx(ctx context.Context) bool {
	v, ok := ctx.Value(memTxKey{}).(bool)
	return ok && v
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.Unlock()
	}
}

// BookRepo

func (m *MemoryStore) Create(ctx context.Context, book *domain.Book) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	m.booksByID[book.ID] = *book
	return nil
}

func (m *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	b, ok := m.booksByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := b
	return &cp, nil
}

func (m *MemoryStore) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Book, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	var books []domain.Book
	seen := make(map[uuid.UUID]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if b, ok := m.booksByID[id]; ok {
			books = append(books, b)
		}
	}
	return books, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]domain.Book, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]domain.Book, 0, len(m.booksByID))
	for _, b := range m.booksByID {
		out = append(out, b)
	}
	return out, nil
}

func (m *MemoryStore) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	b, ok := m.booksByID[id]
	if !ok {
		return ErrNotFound
	}
	if b.Stock < qty {
		return ErrInsufficientStock
	}
	b.Stock -= qty
	m.booksByID[id] = b
	return nil
}

func (m *MemoryStore) RestoreStock(ctx context.Context, id uuid.UUID, qty int) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	b, ok := m.booksByID[id]
	if !ok {
		return ErrNotFound
	}
	b.Stock += qty
	m.booksByID[id] = b
	return nil
}

// OrderRepo

type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepo = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, order *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	mo.store.ordersByID[order.ID] = *order
	return nil
}

func (mo *MemoryOrders) CreateItems(ctx context.Context, items []domain.OrderItem) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	for _, it := range items {
		mo.store.itemsByOrder[it.OrderID] = append(mo.store.itemsByOrder[it.OrderID], it)
	}
	return nil
}

func (mo *MemoryOrders) get(id uuid.UUID) (*domain.Order, error) {
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := o
	cp.Items = append([]domain.OrderItem(nil), mo.store.itemsByOrder[id]...)
	for i := range cp.Items {
		if b, ok := mo.store.booksByID[cp.Items[i].BookID]; ok {
			cp.Items[i].BookTitle = b.Title
		}
	}
	return &cp, nil
}

func (mo *MemoryOrders) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	return mo.get(id)
}

func (mo *MemoryOrders) FindByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	var out []domain.Order
	for id, o := range mo.store.ordersByID {
		if o.UserID == userID {
			cp, _ := mo.get(id)
			out = append(out, *cp)
		}
	}
	return out, nil
}

func (mo *MemoryOrders) FindAll(ctx context.Context) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	var out []domain.Order
	for id := range mo.store.ordersByID {
		cp, _ := mo.get(id)
		out = append(out, *cp)
	}
	return out, nil
}

func (mo *MemoryOrders) FindByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	if reference == "" {
		return nil, ErrNotFound
	}
	for id, o := range mo.store.ordersByID {
		if o.PaymentReference == reference {
			return mo.get(id)
		}
	}
	return nil, ErrNotFound
}

func (mo *MemoryOrders) update(ctx context.Context, id uuid.UUID, fn func(o *domain.Order)) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&o)
	o.UpdatedAt = time.Now().UTC()
	mo.store.ordersByID[id] = o
	return nil
}

func (mo *MemoryOrders) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	return mo.update(ctx, id, func(o *domain.Order) { o.OrderStatus = status })
}

func (mo *MemoryOrders) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) error {
	return mo.update(ctx, id, func(o *domain.Order) { o.PaymentStatus = status })
}

func (mo *MemoryOrders) SetPaymentReference(ctx context.Context, id uuid.UUID, reference, externalOrderNo string) error {
	return mo.update(ctx, id, func(o *domain.Order) {
		o.PaymentReference = reference
		o.ExternalOrderNo = externalOrderNo
	})
}

func (mo *MemoryOrders) SetExternalOrderNo(ctx context.Context, id uuid.UUID, externalOrderNo string) error {
	return mo.update(ctx, id, func(o *domain.Order) {
		if o.ExternalOrderNo == "" {
			o.ExternalOrderNo = externalOrderNo
		}
	})
}

func (mo *MemoryOrders) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return false, nil
	}
	if o.PaymentStatus == domain.PaymentPaid {
		return false, nil
	}
	o.PaymentStatus = domain.PaymentPaid
	o.OrderStatus = domain.OrderPurchased
	o.UpdatedAt = time.Now().UTC()
	mo.store.ordersByID[id] = o
	return true, nil
}

func (mo *MemoryOrders) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return false, nil
	}
	if o.PaymentStatus == domain.PaymentPaid {
		return false, nil
	}
	o.PaymentStatus = domain.PaymentFailed
	o.UpdatedAt = time.Now().UTC()
	mo.store.ordersByID[id] = o
	return true, nil
}

func (mo *MemoryOrders) Delete(ctx context.Context, id uuid.UUID) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	if _, ok := mo.store.ordersByID[id]; !ok {
		return ErrNotFound
	}
	delete(mo.store.ordersByID, id)
	delete(mo.store.itemsByOrder, id)
	return nil
}

func (mo *MemoryOrders) FindStuckPending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	cutoff := time.Now().Add(-olderThan)
	var out []domain.Order
	for id, o := range mo.store.ordersByID {
		if len(out) >= limit {
			break
		}
		if o.PaymentStatus == domain.PaymentPending && o.PaymentReference != "" && o.UpdatedAt.Before(cutoff) {
			cp, _ := mo.get(id)
			out = append(out, *cp)
		}
	}
	return out, nil
}

// memoryTx emulates a transaction with the store write lock. State is
// snapshotted up front and restored when fn fails, so a failed unit of work
// rolls back like its SQL counterpart.
type memoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) TxManager { return &memoryTx{store: store} }

func (tx *memoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	books := make(map[uuid.UUID]domain.Book, len(tx.store.booksByID))
	for k, v := range tx.store.booksByID {
		books[k] = v
	}
	orders := make(map[uuid.UUID]domain.Order, len(tx.store.ordersByID))
	for k, v := range tx.store.ordersByID {
		orders[k] = v
	}
	items := make(map[uuid.UUID][]domain.OrderItem, len(tx.store.itemsByOrder))
	for k, v := range tx.store.itemsByOrder {
		items[k] = append([]domain.OrderItem(nil), v...)
	}

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		tx.store.booksByID = books
		tx.store.ordersByID = orders
		tx.store.itemsByOrder = items
		return err
	}
	return nil
}
