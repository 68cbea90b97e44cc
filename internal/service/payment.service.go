package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookmate/internal/config"
	"bookmate/internal/domain"
	"bookmate/internal/infrastructure/payment"
	"bookmate/internal/repo"
)

const (
	merchantName = "BOOKMATE"
	// paymentExpiryMinutes is the validity window handed to the gateway.
	paymentExpiryMinutes = 30
)

// Customer is the identity-supplied requester data attached to a payment
// attempt. The core trusts it unconditionally; authentication happens
// upstream.
type Customer struct {
	ID    uuid.UUID
	Name  string
	Email string
	Phone string
}

type TransferAccount struct {
	AccountNumber    string `json:"accountNumber"`
	BankName         string `json:"bankName"`
	ExpiredTimestamp int64  `json:"expiredTimestamp"`
}

// InitiationResult is the normalized next-action payload returned to the
// client after a successful payment initiation.
type InitiationResult struct {
	PaymentReference string           `json:"paymentReference"`
	ExternalOrderNo  string           `json:"externalOrderNo,omitempty"`
	RedirectURL      string           `json:"redirectUrl,omitempty"`
	TransferAccount  *TransferAccount `json:"transferAccount,omitempty"`
	USSD             string           `json:"ussd,omitempty"`
	QRCode           string           `json:"qrCode,omitempty"`
	ReferenceCode    string           `json:"referenceCode,omitempty"`
}

type CashierResult struct {
	PaymentReference string `json:"paymentReference"`
	ExternalOrderNo  string `json:"externalOrderNo,omitempty"`
	CashierURL       string `json:"cashierUrl"`
}

type PaymentStatusResult struct {
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type RefundResult struct {
	RefundReference string `json:"refundReference"`
	Status          string `json:"status"`
}

// PaymentService coordinates the order/payment state machine: it validates
// preconditions, dispatches to the gateway, persists correlation identifiers,
// and reconciles asynchronous outcomes. All settlement paths (callback,
// manual verify, reconciliation sweep) funnel through OrderService's
// idempotent settle.
type PaymentService struct {
	orders  *OrderService
	gateway payment.Gateway
	cfg     config.Gateway
}

func NewPaymentService(orders *OrderService, gateway payment.Gateway, cfg config.Gateway) *PaymentService {
	return &PaymentService{orders: orders, gateway: gateway, cfg: cfg}
}

// newPaymentReference issues a per-attempt correlation id. Only uniqueness
// matters; the format is a monotonic timestamp plus an order id slice.
func newPaymentReference(orderID uuid.UUID) string {
	return fmt.Sprintf("%s-%d-%.8s", merchantName, time.Now().UnixMilli(), orderID.String())
}

func productName(order *domain.Order) string {
	parts := make([]string, 0, len(order.Items))
	for _, it := range order.Items {
		parts = append(parts, fmt.Sprintf("%dx %s", it.Quantity, it.BookTitle))
	}
	return strings.Join(parts, ", ")
}

func orderDescription(order *domain.Order) string {
	return fmt.Sprintf("Book order #%.8s", order.ID.String())
}

func (s *PaymentService) userInfo(customer Customer) *payment.UserInfo {
	if customer == (Customer{}) {
		return nil
	}
	info := &payment.UserInfo{
		UserName:   customer.Name,
		UserEmail:  customer.Email,
		UserMobile: customer.Phone,
	}
	if customer.ID != uuid.Nil {
		info.UserID = customer.ID.String()
	}
	return info
}

// fillDetails defaults the method-specific identity fields from the trusted
// customer data when the client did not supply them.
func fillDetails(details payment.MethodDetails, customer Customer) payment.MethodDetails {
	switch d := details.(type) {
	case payment.BankTransferDetails:
		if d.CustomerName == "" {
			d.CustomerName = customer.Name
		}
		if d.UserPhone == "" {
			d.UserPhone = customer.Phone
		}
		return d
	case payment.BankUSSDDetails:
		if d.CustomerName == "" {
			d.CustomerName = customer.Name
		}
		if d.UserPhone == "" {
			d.UserPhone = customer.Phone
		}
		return d
	case payment.BankAccountDetails:
		if d.CustomerName == "" {
			d.CustomerName = customer.Name
		}
		if d.UserPhone == "" {
			d.UserPhone = customer.Phone
		}
		return d
	case payment.ReferenceCodeDetails:
		if d.MerchantName == "" {
			d.MerchantName = merchantName
		}
		if d.Notify == (payment.Notify{}) {
			d.Notify = payment.Notify{
				NotifyUserName:   customer.Name,
				NotifyLanguage:   "English",
				NotifyMethod:     "BOTH",
				NotifyUserEmail:  customer.Email,
				NotifyUserMobile: customer.Phone,
			}
		}
		return d
	default:
		return details
	}
}

// loadPayable fetches the order and rejects initiation on an already-paid
// order. A stale reference from an earlier attempt is voided at the gateway
// before a new one is issued, so the provider is not left holding an orphaned
// live payment.
func (s *PaymentService) loadPayable(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == domain.PaymentPaid {
		return nil, fmt.Errorf("order already paid: %w", ErrInvalidState)
	}
	if order.PaymentReference != "" {
		resp, err := s.gateway.Cancel(ctx, order.PaymentReference)
		if err != nil {
			log.Printf("payment: voiding stale reference %s: %v", order.PaymentReference, err)
		} else if !resp.OK() {
			log.Printf("payment: voiding stale reference %s: code=%s message=%s",
				order.PaymentReference, resp.Code, resp.Message)
		}
	}
	return order, nil
}

// InitiatePayment dispatches a server-to-server payment creation for the
// chosen method. The order is only mutated after the gateway accepts the
// request; a failed initiation leaves it untouched.
func (s *PaymentService) InitiatePayment(
	ctx context.Context,
	orderID uuid.UUID,
	details payment.MethodDetails,
	customer Customer,
) (*InitiationResult, error) {
	if details == nil {
		return nil, ErrInvalidInput
	}
	order, err := s.loadPayable(ctx, orderID)
	if err != nil {
		return nil, err
	}

	req := payment.CreateRequest{
		Reference:   newPaymentReference(order.ID),
		Amount:      order.TotalAmount,
		Product:     payment.Product{Name: productName(order), Description: orderDescription(order)},
		CallbackURL: s.cfg.CallbackURL,
		ReturnURL:   s.cfg.ReturnURL,
		ExpireAt:    paymentExpiryMinutes,
		UserInfo:    s.userInfo(customer),
		Details:     fillDetails(details, customer),
	}

	resp, err := s.gateway.CreatePayment(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &payment.APIError{Op: "create payment", Code: resp.Code, Message: resp.Message}
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("gateway create payment: response missing data")
	}

	if err := s.orders.RecordPaymentAttempt(ctx, order.ID, resp.Data.Reference, resp.Data.OrderNo); err != nil {
		return nil, err
	}

	result := &InitiationResult{
		PaymentReference: resp.Data.Reference,
		ExternalOrderNo:  resp.Data.OrderNo,
		ReferenceCode:    resp.Data.ReferenceCode,
	}
	if na := resp.Data.NextAction; na != nil {
		switch na.ActionType {
		case payment.ActionRedirect3DS:
			result.RedirectURL = na.RedirectURL
		case payment.ActionTransferAccount:
			result.TransferAccount = &TransferAccount{
				AccountNumber:    na.TransferAccountNumber,
				BankName:         na.TransferBankName,
				ExpiredTimestamp: na.ExpiredTimestamp,
			}
		case payment.ActionShowUSSD:
			result.USSD = na.USSD
		case payment.ActionScanQRCode:
			result.QRCode = na.QRCode
		}
	}
	return result, nil
}

// InitiateCashierPayment starts an express checkout: the gateway hosts the
// payment page and the client is redirected to the returned cashier URL.
func (s *PaymentService) InitiateCashierPayment(ctx context.Context, orderID uuid.UUID, customer Customer) (*CashierResult, error) {
	order, err := s.loadPayable(ctx, orderID)
	if err != nil {
		return nil, err
	}

	req := payment.CashierRequest{
		Reference:    newPaymentReference(order.ID),
		Amount:       order.TotalAmount,
		Product:      payment.Product{Name: productName(order), Description: orderDescription(order)},
		CallbackURL:  s.cfg.CallbackURL,
		ReturnURL:    s.cfg.ReturnURL,
		ExpireAt:     paymentExpiryMinutes,
		CustomerName: customer.Name,
		UserPhone:    customer.Phone,
		UserInfo:     s.userInfo(customer),
	}

	resp, err := s.gateway.CreateCashierPayment(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &payment.APIError{Op: "create cashier payment", Code: resp.Code, Message: resp.Message}
	}
	if resp.Data == nil || resp.Data.CashierURL == "" {
		return nil, fmt.Errorf("gateway cashier payment: response missing cashier url")
	}

	if err := s.orders.RecordPaymentAttempt(ctx, order.ID, resp.Data.Reference, resp.Data.OrderNo); err != nil {
		return nil, err
	}

	return &CashierResult{
		PaymentReference: resp.Data.Reference,
		ExternalOrderNo:  resp.Data.OrderNo,
		CashierURL:       resp.Data.CashierURL,
	}, nil
}

// HandleCallback reconciles a webhook notification. Delivery is at-least-once
// and may race the return-URL poll and manual verification; every path is
// idempotent and a paid order is never downgraded by a late FAIL or CLOSE.
func (s *PaymentService) HandleCallback(ctx context.Context, reference, externalOrderNo, status string) error {
	order, err := s.orders.GetOrderByPaymentReference(ctx, reference)
	if err != nil {
		return err
	}

	switch status {
	case payment.StatusSuccess:
		if err := s.orders.SettlePayment(ctx, order.ID); err != nil {
			return err
		}
	case payment.StatusFail, payment.StatusClose:
		applied, err := s.orders.FailPayment(ctx, order.ID)
		if err != nil {
			return err
		}
		if !applied {
			log.Printf("payment: ignoring %s callback for settled order %s", status, order.ID)
		}
	default:
		// INITIAL/PENDING and anything unrecognized change nothing
	}

	if order.ExternalOrderNo == "" && externalOrderNo != "" {
		if err := s.orders.RecordExternalOrderNo(ctx, order.ID, externalOrderNo); err != nil {
			return err
		}
	}
	return nil
}

// QueryPaymentStatus asks the gateway for the attempt's current state. It is
// a read-only reconciliation aid and never mutates the order.
func (s *PaymentService) QueryPaymentStatus(ctx context.Context, reference string) (*PaymentStatusResult, error) {
	resp, err := s.gateway.QueryStatus(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &payment.APIError{Op: "query status", Code: resp.Code, Message: resp.Message}
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("gateway status query: response missing data")
	}
	return &PaymentStatusResult{
		Status:   resp.Data.Status,
		Amount:   payment.MajorUnits(resp.Data.Amount.Total),
		Currency: resp.Data.Amount.Currency,
	}, nil
}

// CancelPayment closes the attempt at the gateway and marks the matching
// order failed. An unknown reference after a successful close is only logged.
func (s *PaymentService) CancelPayment(ctx context.Context, reference string) error {
	resp, err := s.gateway.Cancel(ctx, reference)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &payment.APIError{Op: "cancel payment", Code: resp.Code, Message: resp.Message}
	}

	order, err := s.orders.GetOrderByPaymentReference(ctx, reference)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Printf("payment: cancelled reference %s has no matching order", reference)
			return nil
		}
		return err
	}
	_, err = s.orders.FailPayment(ctx, order.ID)
	return err
}

// VerifyPayment is the manual settlement path, kept for clients that cannot
// receive webhooks. It funnels into the same idempotent transitions.
func (s *PaymentService) VerifyPayment(ctx context.Context, orderID uuid.UUID, reference, status string) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if reference != "" && order.PaymentReference != "" && order.PaymentReference != reference {
		return fmt.Errorf("reference mismatch for order %s: %w", orderID, ErrInvalidInput)
	}

	switch status {
	case "success":
		return s.orders.SettlePayment(ctx, order.ID)
	case "failed":
		applied, err := s.orders.FailPayment(ctx, order.ID)
		if err != nil {
			return err
		}
		if !applied {
			log.Printf("payment: ignoring manual failure for settled order %s", order.ID)
		}
		return nil
	default:
		return ErrInvalidInput
	}
}

// RefundPayment issues a refund against a settled reference.
func (s *PaymentService) RefundPayment(ctx context.Context, reference string, amount decimal.Decimal) (*RefundResult, error) {
	if amount.IsNegative() || amount.IsZero() {
		return nil, ErrInvalidInput
	}
	order, err := s.orders.GetOrderByPaymentReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != domain.PaymentPaid {
		return nil, fmt.Errorf("refund requires a paid order: %w", ErrInvalidState)
	}

	req := payment.RefundRequest{
		Reference:         fmt.Sprintf("%s-RF-%d", merchantName, time.Now().UnixMilli()),
		OriginalReference: reference,
		Amount:            amount,
		CallbackURL:       s.cfg.CallbackURL,
	}
	resp, err := s.gateway.CreateRefund(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &payment.APIError{Op: "create refund", Code: resp.Code, Message: resp.Message}
	}
	result := &RefundResult{RefundReference: req.Reference}
	if resp.Data != nil {
		result.RefundReference = resp.Data.Reference
		result.Status = resp.Data.Status
	}
	return result, nil
}

// QueryRefundStatus is a read-only passthrough for refund reconciliation.
func (s *PaymentService) QueryRefundStatus(ctx context.Context, reference string) (*PaymentStatusResult, error) {
	resp, err := s.gateway.QueryRefundStatus(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &payment.APIError{Op: "query refund status", Code: resp.Code, Message: resp.Message}
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("gateway refund query: response missing data")
	}
	return &PaymentStatusResult{
		Status:   resp.Data.Status,
		Amount:   payment.MajorUnits(resp.Data.Amount.Total),
		Currency: resp.Data.Amount.Currency,
	}, nil
}
