package httpapi

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookmate/internal/domain"
	"bookmate/internal/infrastructure/payment"
	"bookmate/internal/service"
)

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, s.health.Health(c.Request.Context()))
}

// books

type createBookReq struct {
	Title    string          `json:"title" binding:"required"`
	Author   string          `json:"author" binding:"required"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
}

func (s *Server) createBook(c *gin.Context) {
	var req createBookReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	book, err := s.books.Create(c.Request.Context(), domain.Book{
		Title:    req.Title,
		Author:   req.Author,
		Category: domain.BookCategory(req.Category),
		Price:    req.Price,
		Stock:    req.Stock,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bookJSON(*book))
}

func (s *Server) listBooks(c *gin.Context) {
	books, err := s.books.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(books))
	for _, b := range books {
		out = append(out, bookJSON(b))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getBook(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	book, err := s.books.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookJSON(*book))
}

func bookJSON(b domain.Book) gin.H {
	return gin.H{
		"id":        b.ID,
		"title":     b.Title,
		"author":    b.Author,
		"category":  b.Category,
		"price":     b.Price,
		"stock":     b.Stock,
		"createdAt": b.CreatedAt,
	}
}

// orders

type orderItemReq struct {
	BookID   uuid.UUID `json:"bookId" binding:"required"`
	Quantity int       `json:"quantity" binding:"required"`
}

type createOrderReq struct {
	Items           []orderItemReq `json:"items" binding:"required"`
	DeliveryAddress string         `json:"deliveryAddress" binding:"required"`
	DeliveryMethod  string         `json:"deliveryMethod" binding:"required"`
}

func (s *Server) createOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	items := make([]service.OrderItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.OrderItemInput{BookID: it.BookID, Quantity: it.Quantity})
	}
	order, err := s.orders.CreateOrder(
		c.Request.Context(),
		currentUser(c),
		items,
		req.DeliveryAddress,
		domain.DeliveryMethod(req.DeliveryMethod),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderJSON(*order))
}

func (s *Server) listMyOrders(c *gin.Context) {
	orders, err := s.orders.GetOrdersByUser(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordersJSON(orders))
}

func (s *Server) listAllOrders(c *gin.Context) {
	orders, err := s.orders.GetAllOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordersJSON(orders))
}

func (s *Server) getOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	order, err := s.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if order.UserID != currentUser(c) && c.GetString(ctxUserRole) != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your order"})
		return
	}
	c.JSON(http.StatusOK, orderJSON(*order))
}

func (s *Server) cancelOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	snapshot, err := s.orders.CancelOrder(c.Request.Context(), id, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "order cancelled", "order": orderJSON(*snapshot)})
}

type updateOrderStatusReq struct {
	OrderStatus string `json:"orderStatus" binding:"required"`
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req updateOrderStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := s.orders.UpdateOrderStatus(c.Request.Context(), id, domain.OrderStatus(req.OrderStatus)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "order status updated"})
}

func ordersJSON(orders []domain.Order) []gin.H {
	out := make([]gin.H, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderJSON(o))
	}
	return out
}

func orderJSON(o domain.Order) gin.H {
	items := make([]gin.H, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, gin.H{
			"bookId":    it.BookID,
			"bookTitle": it.BookTitle,
			"quantity":  it.Quantity,
			"unitPrice": it.UnitPrice,
		})
	}
	return gin.H{
		"id":               o.ID,
		"userId":           o.UserID,
		"items":            items,
		"totalAmount":      o.TotalAmount,
		"deliveryFee":      o.DeliveryFee,
		"paymentStatus":    o.PaymentStatus,
		"orderStatus":      o.OrderStatus,
		"deliveryMethod":   o.DeliveryMethod,
		"deliveryAddress":  o.DeliveryAddress,
		"paymentReference": o.PaymentReference,
		"externalOrderNo":  o.ExternalOrderNo,
		"createdAt":        o.CreatedAt,
	}
}

// payments

type bankcardReq struct {
	CardHolderName string `json:"cardHolderName"`
	CardNumber     string `json:"cardNumber"`
	CVV            string `json:"cvv"`
	ExpiryMonth    string `json:"expiryMonth"`
	ExpiryYear     string `json:"expiryYear"`
}

type initiatePaymentReq struct {
	OrderID           uuid.UUID    `json:"orderId" binding:"required"`
	PayMethod         string       `json:"payMethod" binding:"required"`
	Bankcard          *bankcardReq `json:"bankcard"`
	BankCode          string       `json:"bankCode"`
	BankAccountNumber string       `json:"bankAccountNumber"`
	BVN               string       `json:"bvn"`
	DOBDay            string       `json:"dobDay"`
	DOBMonth          string       `json:"dobMonth"`
	DOBYear           string       `json:"dobYear"`
	UserPhone         string       `json:"userPhone"`
	CustomerName      string       `json:"customerName"`
}

// buildDetails converts the flat request body into the per-method details
// variant, so only the chosen method's fields travel further.
func buildDetails(req initiatePaymentReq) (payment.MethodDetails, error) {
	switch payment.Method(req.PayMethod) {
	case payment.MethodBankCard:
		if req.Bankcard == nil {
			return nil, fmt.Errorf("bankcard details are required for BankCard")
		}
		return payment.BankCardDetails{
			CardHolderName: req.Bankcard.CardHolderName,
			CardNumber:     req.Bankcard.CardNumber,
			CVV:            req.Bankcard.CVV,
			ExpiryMonth:    req.Bankcard.ExpiryMonth,
			ExpiryYear:     req.Bankcard.ExpiryYear,
		}, nil
	case payment.MethodBankTransfer:
		return payment.BankTransferDetails{
			CustomerName: req.CustomerName,
			UserPhone:    req.UserPhone,
		}, nil
	case payment.MethodBankUSSD:
		return payment.BankUSSDDetails{
			CustomerName: req.CustomerName,
			UserPhone:    req.UserPhone,
			BankCode:     req.BankCode,
		}, nil
	case payment.MethodBankAccount:
		return payment.BankAccountDetails{
			CustomerName:  req.CustomerName,
			UserPhone:     req.UserPhone,
			AccountNumber: req.BankAccountNumber,
			BankCode:      req.BankCode,
			BVN:           req.BVN,
			DOBDay:        req.DOBDay,
			DOBMonth:      req.DOBMonth,
			DOBYear:       req.DOBYear,
		}, nil
	case payment.MethodReferenceCode:
		return payment.ReferenceCodeDetails{}, nil
	case payment.MethodWalletQR:
		return payment.WalletQRDetails{}, nil
	default:
		return nil, fmt.Errorf("unsupported payMethod %q", req.PayMethod)
	}
}

func (s *Server) initiatePayment(c *gin.Context) {
	var req initiatePaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	details, err := buildDetails(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.payments.InitiatePayment(c.Request.Context(), req.OrderID, details, currentCustomer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type checkoutReq struct {
	OrderID uuid.UUID `json:"orderId" binding:"required"`
}

func (s *Server) initiateCheckout(c *gin.Context) {
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	result, err := s.payments.InitiateCashierPayment(c.Request.Context(), req.OrderID, currentCustomer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type callbackReq struct {
	Reference string `json:"reference"`
	OrderNo   string `json:"orderNo"`
	Status    string `json:"status"`
}

// paymentCallback consumes the gateway webhook. The gateway is not equipped
// to handle business errors, so processing failures are logged and the
// callback is still acknowledged; only a malformed payload is rejected.
func (s *Server) paymentCallback(c *gin.Context) {
	var req callbackReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Reference == "" || req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required callback parameters"})
		return
	}
	if err := s.payments.HandleCallback(c.Request.Context(), req.Reference, req.OrderNo, req.Status); err != nil {
		log.Printf("payment callback for reference %s: %v", req.Reference, err)
	}
	c.JSON(http.StatusOK, gin.H{"code": payment.SuccessCode, "message": "SUCCESSFUL"})
}

func (s *Server) paymentReturn(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing payment reference"})
		return
	}
	status, err := s.payments.QueryPaymentStatus(c.Request.Context(), reference)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reference": reference,
		"status":    status.Status,
		"amount":    status.Amount,
		"currency":  status.Currency,
	})
}

func (s *Server) paymentStatus(c *gin.Context) {
	status, err := s.payments.QueryPaymentStatus(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type cancelPaymentReq struct {
	Reference string `json:"reference" binding:"required"`
}

func (s *Server) cancelPayment(c *gin.Context) {
	var req cancelPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := s.payments.CancelPayment(c.Request.Context(), req.Reference); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "payment cancelled"})
}

type verifyPaymentReq struct {
	OrderID          uuid.UUID `json:"orderId" binding:"required"`
	PaymentReference string    `json:"paymentReference"`
	Status           string    `json:"status" binding:"required"`
}

func (s *Server) verifyPayment(c *gin.Context) {
	var req verifyPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := s.payments.VerifyPayment(c.Request.Context(), req.OrderID, req.PaymentReference, req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "payment verified"})
}

type refundReq struct {
	Reference string          `json:"reference" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

func (s *Server) createRefund(c *gin.Context) {
	var req refundReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	result, err := s.payments.RefundPayment(c.Request.Context(), req.Reference, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) refundStatus(c *gin.Context) {
	result, err := s.payments.QueryRefundStatus(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
