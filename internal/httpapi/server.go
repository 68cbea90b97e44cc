package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bookmate/internal/database"
	"bookmate/internal/infrastructure/payment"
	"bookmate/internal/repo"
	"bookmate/internal/service"
)

type Server struct {
	engine   *gin.Engine
	books    *service.BookService
	orders   *service.OrderService
	payments *service.PaymentService
	health   database.Service
}

func NewServer(
	corsOrigins []string,
	books *service.BookService,
	orders *service.OrderService,
	payments *service.PaymentService,
	health database.Service,
) *Server {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", "X-User-Id", "X-User-Role", "X-User-Name", "X-User-Email", "X-User-Phone"},
	}))

	s := &Server{engine: r, books: books, orders: orders, payments: payments, health: health}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.healthCheck)

	v1 := s.engine.Group("/api/v1")
	{
		books := v1.Group("/books")
		books.GET("", s.listBooks)
		books.GET(":id", s.getBook)

		orders := v1.Group("/orders", requireUser())
		orders.POST("", s.createOrder)
		orders.GET("", s.listMyOrders)
		orders.GET(":id", s.getOrder)
		orders.DELETE(":id", s.cancelOrder)

		payments := v1.Group("/payments")
		// webhook and return land without identity headers
		payments.POST("/callback", s.paymentCallback)
		payments.GET("/return", s.paymentReturn)
		payments.GET("/status/:reference", s.paymentStatus)

		authed := payments.Group("", requireUser())
		authed.POST("/initiate", s.initiatePayment)
		authed.POST("/checkout", s.initiateCheckout)
		authed.POST("/cancel", s.cancelPayment)
		authed.POST("/verify", s.verifyPayment)

		admin := v1.Group("/admin", requireUser(), requireAdmin())
		admin.POST("/books", s.createBook)
		admin.GET("/orders", s.listAllOrders)
		admin.PATCH("/orders/:id/status", s.updateOrderStatus)
		admin.POST("/refunds", s.createRefund)
		admin.GET("/refunds/:reference", s.refundStatus)
	}
}

// identity is supplied by the upstream auth layer via trusted headers; this
// core does not verify it.

const (
	ctxUserID   = "userID"
	ctxUserRole = "userRole"
)

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader("X-User-Id"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(ctxUserID, id)
		c.Set(ctxUserRole, c.GetHeader("X-User-Role"))
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxUserRole) != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ctxUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func currentCustomer(c *gin.Context) service.Customer {
	return service.Customer{
		ID:    currentUser(c),
		Name:  c.GetHeader("X-User-Name"),
		Email: c.GetHeader("X-User-Email"),
		Phone: c.GetHeader("X-User-Phone"),
	}
}

func mapErrorToStatus(err error) int {
	var apiErr *payment.APIError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repo.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrGatewayUnreachable):
		return http.StatusBadGateway
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
}
