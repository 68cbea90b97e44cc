package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookmate/internal/domain"
	"bookmate/internal/repo"
)

func setupOrders(t *testing.T) (*repo.MemoryStore, *OrderService) {
	t.Helper()
	store := repo.NewMemoryStore()
	orders := repo.NewMemoryOrders(store)
	tx := repo.NewMemoryTx(store)
	fee := decimal.RequireFromString("500")
	return store, NewOrderService(store, orders, tx, fee)
}

func addBook(t *testing.T, store *repo.MemoryStore, price string, stock int) domain.Book {
	t.Helper()
	b := domain.Book{
		ID:        uuid.New(),
		Title:     "Algebra Basics",
		Author:    "A. Author",
		Category:  domain.CategoryTextbook,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Create(context.Background(), &b); err != nil {
		t.Fatalf("create book: %v", err)
	}
	return b
}

func TestCreateOrderComputesTotalWithDeliveryFee(t *testing.T) {
	ctx := context.Background()
	store, svc := setupOrders(t)
	book := addBook(t, store, "2500", 10)

	order, err := svc.CreateOrder(ctx, uuid.New(),
		[]OrderItemInput{{BookID: book.ID, Quantity: 2}},
		"12 Eziobodo Rd", domain.DeliveryDelivery)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if !order.TotalAmount.Equal(decimal.RequireFromString("5500")) {
		t.Fatalf("total: want 5500, got %s", order.TotalAmount)
	}
	if !order.DeliveryFee.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("delivery fee: got %s", order.DeliveryFee)
	}
	if order.OrderStatus != domain.OrderProcessing || order.PaymentStatus != domain.PaymentPending {
		t.Fatalf("initial state: %s/%s", order.OrderStatus, order.PaymentStatus)
	}

	// stock untouched at creation
	fresh, _ := store.FindByID(ctx, book.ID)
	if fresh.Stock != 10 {
		t.Fatalf("stock changed at creation: %d", fresh.Stock)
	}
}

func TestCreateOrderPickupHasNoFee(t *testing.T) {
	ctx := context.Background()
	store, svc := setupOrders(t)
	book := addBook(t, store, "1000", 5)

	order, err := svc.CreateOrder(ctx, uuid.New(),
		[]OrderItemInput{{BookID: book.ID, Quantity: 1}},
		"campus pickup point", domain.DeliveryPickup)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("total: got %s", order.TotalAmount)
	}
	if !order.DeliveryFee.IsZero() {
		t.Fatalf("fee: got %s", order.DeliveryFee)
	}
}

func TestCreateOrderSnapshotsUnitPrice(t *testing.T) {
	ctx := context.Background()
	store, svc := setupOrders(t)
	book := addBook(t, store, "2500", 10)

	order, err := svc.CreateOrder(ctx, uuid.New(),
		[]OrderItemInput{{BookID: book.ID, Quantity: 1}},
		"addr", domain.DeliveryPickup)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// catalog price change must not affect the captured snapshot
	book.Price = decimal.RequireFromString("9999")
	if err := store.Create(ctx, &book); err != nil {
		t.Fatalf("update book: %v", err)
	}

	fresh, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !fresh.Items[0].UnitPrice.Equal(decimal.RequireFromString("2500")) {
		t.Fatalf("snapshot price: got %s", fresh.Items[0].UnitPrice)
	}
	if !fresh.TotalAmount.Equal(decimal.RequireFromString("2500")) {
		t.Fatalf("total drifted: got %s", fresh.TotalAmount)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	ctx := context.Background()
	store, svc := setupOrders(t)
	book := addBook(t, store, "2500", 1)

	_, err := svc.CreateOrder(ctx, uuid.New(),
		[]OrderItemInput{{BookID: book.ID, Quantity: 2}},
		"addr", domain.DeliveryPickup)
	if !errors.Is(err, repo.ErrInsufficientStock) {
		t.Fatalf("want insufficient stock, got %v", err)
	}

	// nothing persisted
	orders, _ := svc.GetAllOrders(ctx)
	if len(orders) != 0 {
		t.Fatalf("order persisted after failed create: %d", len(orders))
	}
}

func TestCreateOrderUnknownBook(t *testing.T) {
	ctx := context.Background()
	_, svc := setupOrders(t)

	_, err := svc.CreateOrder(ctx, uuid.New(),
		[]OrderItemInput{{BookID: uuid.New(), Quantity: 1}},
		"addr", domain.DeliveryPickup)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestSettlePaymentDecrementsOnce(t *testing.T) {
	ctx := context.Background()
	store, svc := setupOrders(t)
	book := addBook(t, store, "2500", 10)

	order, err := svc.CreateOrder(ctx, uuid.New(),
		[]OrderItemInput{{BookID: book.ID, Quantity: 2}},
		"addr", domain.DeliveryPickup)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := svc.SettlePayment(ctx, order.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	// second settlement signal must be a no-op
	if err := svc.SettlePayment(ctx, order.ID); err != nil {
		t.Fatalf("second settle: %v", err)
	}

	fresh, _ := svc.GetOrder(ctx, order.ID)
	if fresh.PaymentStatus != domain.PaymentPaid || fresh.OrderStatus != domain.OrderPurchased {
		t.Fatalf("state after settle: %s/%s", fresh.PaymentStatus, fresh.OrderStatus)
	}
	b, _ := store.FindByID(ctx, book.ID)
	if b.Stock != 8 {
		t.Fatalf("stock after double settle: want 8, got %d", b.Stock)
	}
}

func TestDecrementStockForOrderGuarded(t *testing.T) {
	ctx := context.Background()
	store, svc := setupOrders(t)
	book := addBook(t, store, "100", 3)

	order, err := svc.CreateOrder(ctx, uuid.New(),
		[]OrderItemInput{{BookID: book.ID, Quantity: 2}},
		"addr", domain.DeliveryPickup)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := svc.DecrementStockForOrder(ctx, order.ID); err != nil {
		t.Fatalf("first decrement: %v", err)
	}
	// a second invocation would need 2 more units but only 1 remains
	err = svc.DecrementStockForOrder(ctx, order.ID)
	if !errors.Is(err, repo.ErrInsufficientStock) {
		t.Fatalf("want insufficient stock on second decrement, got %v", err)
	}
	b, _ := store.FindByID(ctx, book.ID)
	if b.Stock != 1 {
		t.Fatalf("stock went negative or rolled forward: %d", b.Stock)
	}
}

func TestSettleRacingOrdersNeverOversell(t *testing.T) {
	ctx := context.Background()
	store, svc := setupOrders(t)
	book := addBook(t, store, "100", 1)
	user := uuid.New()

	// both orders pass creation-time validation against the same last unit
	first, err := svc.CreateOrder(ctx, user,
		[]OrderItemInput{{BookID: book.ID, Quantity: 1}}, "addr", domain.DeliveryPickup)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.CreateOrder(ctx, user,
		[]OrderItemInput{{BookID: book.ID, Quantity: 1}}, "addr", domain.DeliveryPickup)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	if err := svc.SettlePayment(ctx, first.ID); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	err = svc.SettlePayment(ctx, second.ID)
	if !errors.Is(err, repo.ErrInsufficientStock) {
		t.Fatalf("want insufficient stock on losing order, got %v", err)
	}

	b, _ := store.FindByID(ctx, book.ID)
	if b.Stock != 0 {
		t.Fatalf("stock: want 0, got %d", b.Stock)
	}
	// losing order stays pending, its settle rolled back
	fresh, _ := svc.GetOrder(ctx, second.ID)
	if fresh.PaymentStatus != domain.PaymentPending {
		t.Fatalf("losing order state: %s", fresh.PaymentStatus)
	}
}

func TestCancelOrderRestoresStockAndDeletes(t *testing.T) {
	ctx := context.Background()
	store, svc := setupOrders(t)
	book := addBook(t, store, "2500", 10)
	user := uuid.New()

	order, err := svc.CreateOrder(ctx, user,
		[]OrderItemInput{{BookID: book.ID, Quantity: 3}}, "addr", domain.DeliveryPickup)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	snapshot, err := svc.CancelOrder(ctx, order.ID, user)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if snapshot.ID != order.ID {
		t.Fatalf("snapshot id mismatch")
	}

	b, _ := store.FindByID(ctx, book.ID)
	if b.Stock != 13 {
		t.Fatalf("stock after cancel: want 13, got %d", b.Stock)
	}
	_, err = svc.GetOrder(ctx, order.ID)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("order still present: %v", err)
	}
}

func TestCancelOrderOwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	store, svc := setupOrders(t)
	book := addBook(t, store, "100", 5)

	order, err := svc.CreateOrder(ctx, uuid.New(),
		[]OrderItemInput{{BookID: book.ID, Quantity: 1}}, "addr", domain.DeliveryPickup)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	_, err = svc.CancelOrder(ctx, order.ID, uuid.New())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want unauthorized, got %v", err)
	}
}

func TestCancelDeliveredOrderAlwaysInvalid(t *testing.T) {
	ctx := context.Background()
	store, svc := setupOrders(t)
	book := addBook(t, store, "100", 5)
	user := uuid.New()

	for _, paid := range []bool{false, true} {
		order, err := svc.CreateOrder(ctx, user,
			[]OrderItemInput{{BookID: book.ID, Quantity: 1}}, "addr", domain.DeliveryPickup)
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		if paid {
			if err := svc.SettlePayment(ctx, order.ID); err != nil {
				t.Fatalf("settle: %v", err)
			}
		}
		if err := svc.UpdateOrderStatus(ctx, order.ID, domain.OrderDelivered); err != nil {
			t.Fatalf("mark delivered: %v", err)
		}
		_, err = svc.CancelOrder(ctx, order.ID, user)
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("paid=%v: want invalid state, got %v", paid, err)
		}
	}
}

func TestCancelPaidOrderInFulfillmentInvalid(t *testing.T) {
	ctx := context.Background()
	store, svc := setupOrders(t)
	book := addBook(t, store, "100", 5)
	user := uuid.New()

	order, err := svc.CreateOrder(ctx, user,
		[]OrderItemInput{{BookID: book.ID, Quantity: 1}}, "addr", domain.DeliveryPickup)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := svc.SettlePayment(ctx, order.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := svc.UpdateOrderStatus(ctx, order.ID, domain.OrderDelivering); err != nil {
		t.Fatalf("mark delivering: %v", err)
	}
	_, err = svc.CancelOrder(ctx, order.ID, user)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("want invalid state, got %v", err)
	}
}

func TestUpdateOrderStatusUnknownOrder(t *testing.T) {
	ctx := context.Background()
	_, svc := setupOrders(t)
	err := svc.UpdateOrderStatus(ctx, uuid.New(), domain.OrderDelivering)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}
