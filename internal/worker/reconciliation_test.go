package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookmate/internal/domain"
	"bookmate/internal/infrastructure/payment"
	"bookmate/internal/repo"
	"bookmate/internal/service"
)

// statusGateway answers status queries from a per-reference table; everything
// else succeeds with an empty payload.
type statusGateway struct {
	statuses map[string]string
	queried  []string
}

func (g *statusGateway) QueryStatus(_ context.Context, reference string) (*payment.Response, error) {
	g.queried = append(g.queried, reference)
	status, ok := g.statuses[reference]
	if !ok {
		return &payment.Response{Code: "02000", Message: "payment not found"}, nil
	}
	return &payment.Response{
		Code: payment.SuccessCode,
		Data: &payment.ResponseData{Reference: reference, Status: status},
	}, nil
}

func (g *statusGateway) CreatePayment(_ context.Context, req payment.CreateRequest) (*payment.Response, error) {
	return &payment.Response{Code: payment.SuccessCode, Data: &payment.ResponseData{Reference: req.Reference}}, nil
}

func (g *statusGateway) CreateCashierPayment(_ context.Context, req payment.CashierRequest) (*payment.Response, error) {
	return &payment.Response{Code: payment.SuccessCode, Data: &payment.ResponseData{Reference: req.Reference}}, nil
}

func (g *statusGateway) Cancel(_ context.Context, reference string) (*payment.Response, error) {
	return &payment.Response{Code: payment.SuccessCode, Data: &payment.ResponseData{Reference: reference}}, nil
}

func (g *statusGateway) CreateRefund(_ context.Context, req payment.RefundRequest) (*payment.Response, error) {
	return &payment.Response{Code: payment.SuccessCode, Data: &payment.ResponseData{Reference: req.Reference}}, nil
}

func (g *statusGateway) QueryRefundStatus(_ context.Context, reference string) (*payment.Response, error) {
	return &payment.Response{Code: payment.SuccessCode, Data: &payment.ResponseData{Reference: reference}}, nil
}

var _ payment.Gateway = (*statusGateway)(nil)

func pendingOrder(t *testing.T, store *repo.MemoryStore, orders *service.OrderService, reference string) *domain.Order {
	t.Helper()
	ctx := context.Background()
	book := domain.Book{
		ID:        uuid.New(),
		Title:     "Statics and Dynamics",
		Author:    "R. C. Hibbeler",
		Category:  domain.CategoryTextbook,
		Price:     decimal.RequireFromString("3000"),
		Stock:     5,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Create(ctx, &book); err != nil {
		t.Fatalf("create book: %v", err)
	}
	order, err := orders.CreateOrder(ctx, uuid.New(),
		[]service.OrderItemInput{{BookID: book.ID, Quantity: 1}},
		"hostel B", domain.DeliveryPickup)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := orders.RecordPaymentAttempt(ctx, order.ID, reference, ""); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	return order
}

func TestSweepSettlesAndFailsStuckOrders(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	orderRepo := repo.NewMemoryOrders(store)
	orders := service.NewOrderService(store, orderRepo, repo.NewMemoryTx(store), decimal.Zero)

	settled := pendingOrder(t, store, orders, "BOOKMATE-1-settled")
	closed := pendingOrder(t, store, orders, "BOOKMATE-2-closed")
	inflight := pendingOrder(t, store, orders, "BOOKMATE-3-inflight")

	gw := &statusGateway{statuses: map[string]string{
		"BOOKMATE-1-settled":  payment.StatusSuccess,
		"BOOKMATE-2-closed":   payment.StatusClose,
		"BOOKMATE-3-inflight": payment.StatusPending,
	}}
	// negative cutoff makes freshly touched orders eligible immediately
	rw := NewReconciliationWorker(orders, gw, time.Minute, -time.Minute)

	if err := rw.process(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ := orders.GetOrder(ctx, settled.ID)
	if got.PaymentStatus != domain.PaymentPaid || got.OrderStatus != domain.OrderPurchased {
		t.Fatalf("settled order: %s/%s", got.PaymentStatus, got.OrderStatus)
	}
	got, _ = orders.GetOrder(ctx, closed.ID)
	if got.PaymentStatus != domain.PaymentFailed {
		t.Fatalf("closed order: %s", got.PaymentStatus)
	}
	got, _ = orders.GetOrder(ctx, inflight.ID)
	if got.PaymentStatus != domain.PaymentPending {
		t.Fatalf("in-flight order must stay pending: %s", got.PaymentStatus)
	}
	if len(gw.queried) != 3 {
		t.Fatalf("queries: %d", len(gw.queried))
	}
}

func TestSweepSkipsSettledOrders(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	orderRepo := repo.NewMemoryOrders(store)
	orders := service.NewOrderService(store, orderRepo, repo.NewMemoryTx(store), decimal.Zero)

	order := pendingOrder(t, store, orders, "BOOKMATE-4-done")
	if err := orders.SettlePayment(ctx, order.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	gw := &statusGateway{statuses: map[string]string{}}
	rw := NewReconciliationWorker(orders, gw, time.Minute, -time.Minute)

	if err := rw.process(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(gw.queried) != 0 {
		t.Fatalf("paid order queried: %v", gw.queried)
	}
}

func TestSweepToleratesGatewayErrors(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	orderRepo := repo.NewMemoryOrders(store)
	orders := service.NewOrderService(store, orderRepo, repo.NewMemoryTx(store), decimal.Zero)

	order := pendingOrder(t, store, orders, "BOOKMATE-5-unknown")

	// reference missing from the table: gateway answers with an error code
	gw := &statusGateway{statuses: map[string]string{}}
	rw := NewReconciliationWorker(orders, gw, time.Minute, -time.Minute)

	if err := rw.process(ctx); err != nil {
		t.Fatalf("sweep must not fail on per-order errors: %v", err)
	}
	got, _ := orders.GetOrder(ctx, order.ID)
	if got.PaymentStatus != domain.PaymentPending {
		t.Fatalf("order mutated on query error: %s", got.PaymentStatus)
	}
}
