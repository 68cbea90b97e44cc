package worker

import (
	"context"
	"log"
	"time"

	"bookmate/internal/infrastructure/payment"
	"bookmate/internal/service"
)

const sweepBatchSize = 50

// ReconciliationWorker periodically sweeps orders that initiated a payment
// but never received a settlement signal, asks the gateway for the truth, and
// drives them through the same idempotent settle/fail transitions the webhook
// uses. A callback arriving mid-sweep is harmless for the same reason.
type ReconciliationWorker struct {
	orders    *service.OrderService
	gateway   payment.Gateway
	interval  time.Duration
	olderThan time.Duration
}

func NewReconciliationWorker(
	orders *service.OrderService,
	gateway payment.Gateway,
	interval time.Duration,
	olderThan time.Duration,
) *ReconciliationWorker {
	return &ReconciliationWorker{
		orders:    orders,
		gateway:   gateway,
		interval:  interval,
		olderThan: olderThan,
	}
}

func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	log.Println("reconciliation worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rw.process(ctx); err != nil {
				log.Printf("reconciliation sweep failed: %v", err)
			}
		}
	}
}

func (rw *ReconciliationWorker) process(ctx context.Context) error {
	stuck, err := rw.orders.FindStuckPending(ctx, rw.olderThan, sweepBatchSize)
	if err != nil {
		return err
	}
	if len(stuck) == 0 {
		return nil
	}

	log.Printf("reconciliation: found %d stuck orders", len(stuck))

	for _, order := range stuck {
		resp, err := rw.gateway.QueryStatus(ctx, order.PaymentReference)
		if err != nil {
			log.Printf("reconciliation: query %s: %v", order.PaymentReference, err)
			continue // retried on the next sweep
		}
		if !resp.OK() || resp.Data == nil {
			log.Printf("reconciliation: query %s: code=%s message=%s", order.PaymentReference, resp.Code, resp.Message)
			continue
		}

		switch resp.Data.Status {
		case payment.StatusSuccess:
			log.Printf("reconciliation: order %s settled at gateway, marking paid", order.ID)
			if err := rw.orders.SettlePayment(ctx, order.ID); err != nil {
				log.Printf("reconciliation: settle %s: %v", order.ID, err)
			}
		case payment.StatusFail, payment.StatusClose:
			log.Printf("reconciliation: order %s %s at gateway, marking failed", order.ID, resp.Data.Status)
			if _, err := rw.orders.FailPayment(ctx, order.ID); err != nil {
				log.Printf("reconciliation: fail %s: %v", order.ID, err)
			}
		default:
			// still in flight, leave it for the next sweep
		}
	}
	return nil
}
