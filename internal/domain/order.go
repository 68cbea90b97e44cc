package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type OrderStatus string

const (
	OrderProcessing OrderStatus = "processing"
	OrderPurchased  OrderStatus = "purchased"
	OrderDelivering OrderStatus = "delivering"
	OrderDelivered  OrderStatus = "delivered"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderProcessing, OrderPurchased, OrderDelivering, OrderDelivered:
		return true
	}
	return false
}

type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryDelivery DeliveryMethod = "delivery"
)

// OrderItem snapshots the unit price at order creation; later catalog price
// changes never affect an existing order. Items are created with their order
// and removed only by cascade when the order is deleted.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	BookID    uuid.UUID
	BookTitle string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Order tracks two independent status axes: PaymentStatus driven by the
// gateway settlement, OrderStatus driven by fulfillment. Purchased is entered
// only as a consequence of the payment becoming paid.
type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Items           []OrderItem
	TotalAmount     decimal.Decimal
	DeliveryFee     decimal.Decimal
	PaymentStatus   PaymentStatus
	OrderStatus     OrderStatus
	DeliveryMethod  DeliveryMethod
	DeliveryAddress string
	// PaymentReference is this system's correlation id for the current payment
	// attempt, empty until the first initiation succeeds.
	PaymentReference string
	// ExternalOrderNo is the gateway's own correlation id, empty until the
	// gateway reports it.
	ExternalOrderNo string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
