package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bookmate/internal/config"
)

// ErrGatewayUnreachable marks a transport-level failure talking to the
// provider, as opposed to a structured error response.
var ErrGatewayUnreachable = errors.New("payment gateway unreachable")

// APIError is a non-success response from the gateway, carrying the
// provider's own code and message for diagnostics.
type APIError struct {
	Op      string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway %s failed: code=%s message=%s", e.Op, e.Code, e.Message)
}

// Gateway is the provider adapter consumed by the payment orchestrator.
type Gateway interface {
	CreatePayment(ctx context.Context, req CreateRequest) (*Response, error)
	CreateCashierPayment(ctx context.Context, req CashierRequest) (*Response, error)
	QueryStatus(ctx context.Context, reference string) (*Response, error)
	Cancel(ctx context.Context, reference string) (*Response, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*Response, error)
	QueryRefundStatus(ctx context.Context, reference string) (*Response, error)
}

const (
	pathPaymentCreate = "/api/v1/international/payment/create"
	pathCashierCreate = "/api/v1/international/cashier/create"
	pathCashierStatus = "/api/v1/international/cashier/status"
	pathPaymentClose  = "/api/v1/international/payment/close"
	pathRefundCreate  = "/api/v1/international/payment/refund/create"
	pathRefundQuery   = "/api/v1/international/payment/refund/query"

	defaultCountry  = "NG"
	defaultCurrency = "NGN"
)

// Client talks to the provider over HTTPS. Payment creation authenticates
// with the merchant public key; every other call is authenticated with an
// HMAC-SHA-512 signature over the JSON body, keyed by the secret key. The
// provider requires exactly this split.
type Client struct {
	cfg  config.Gateway
	http *http.Client
}

var _ Gateway = (*Client)(nil)

func NewClient(cfg config.Gateway) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// wire shapes

type wireAmount struct {
	Currency string `json:"currency"`
	Total    int64  `json:"total"`
}

type wireBankcard struct {
	CardHolderName string `json:"cardHolderName"`
	CardNumber     string `json:"cardNumber"`
	CVV            string `json:"cvv"`
	Enable3DS      bool   `json:"enable3DS"`
	ExpiryMonth    string `json:"expiryMonth"`
	ExpiryYear     string `json:"expiryYear"`
}

type wireCreate struct {
	Reference         string        `json:"reference"`
	Amount            wireAmount    `json:"amount"`
	Product           Product       `json:"product"`
	PayMethod         Method        `json:"payMethod"`
	Country           string        `json:"country"`
	CallbackURL       string        `json:"callbackUrl,omitempty"`
	ReturnURL         string        `json:"returnUrl,omitempty"`
	ExpireAt          int           `json:"expireAt,omitempty"`
	Bankcard          *wireBankcard `json:"bankcard,omitempty"`
	CustomerName      string        `json:"customerName,omitempty"`
	UserPhone         string        `json:"userPhone,omitempty"`
	UserInfo          *UserInfo     `json:"userInfo,omitempty"`
	BankCode          string        `json:"bankCode,omitempty"`
	BankAccountNumber string        `json:"bankAccountNumber,omitempty"`
	BVN               string        `json:"bvn,omitempty"`
	DOBDay            string        `json:"dobDay,omitempty"`
	DOBMonth          string        `json:"dobMonth,omitempty"`
	DOBYear           string        `json:"dobYear,omitempty"`
	MerchantName      string        `json:"merchantName,omitempty"`
	Notify            *Notify       `json:"notify,omitempty"`
}

type wireCashier struct {
	Reference    string     `json:"reference"`
	Amount       wireAmount `json:"amount"`
	Product      Product    `json:"product"`
	Country      string     `json:"country"`
	CallbackURL  string     `json:"callbackUrl,omitempty"`
	ReturnURL    string     `json:"returnUrl"`
	ExpireAt     int        `json:"expireAt,omitempty"`
	CustomerName string     `json:"customerName,omitempty"`
	UserPhone    string     `json:"userPhone,omitempty"`
	UserInfo     *UserInfo  `json:"userInfo,omitempty"`
}

type wireReference struct {
	Reference string `json:"reference"`
	Country   string `json:"country"`
}

type wireRefund struct {
	Reference         string          `json:"reference"`
	OriginalReference string          `json:"originalReference"`
	Country           string          `json:"country"`
	RefundWay         string          `json:"refundWay"`
	Amount            wireAmount      `json:"amount"`
	CallbackURL       string          `json:"callbackUrl,omitempty"`
	Receiver          *RefundReceiver `json:"receiver,omitempty"`
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// buildCreate maps the tagged method details onto the wire request. Only the
// fields the chosen method needs are sent.
func buildCreate(req CreateRequest) (*wireCreate, error) {
	if req.Details == nil {
		return nil, errors.New("payment method details are required")
	}
	w := &wireCreate{
		Reference: req.Reference,
		Amount: wireAmount{
			Currency: orDefault(req.Currency, defaultCurrency),
			Total:    MinorUnits(req.Amount),
		},
		Product:     req.Product,
		PayMethod:   req.Details.PayMethod(),
		Country:     orDefault(req.Country, defaultCountry),
		CallbackURL: req.CallbackURL,
		ReturnURL:   req.ReturnURL,
		ExpireAt:    req.ExpireAt,
		UserInfo:    req.UserInfo,
	}

	switch d := req.Details.(type) {
	case BankCardDetails:
		w.Bankcard = &wireBankcard{
			CardHolderName: d.CardHolderName,
			CardNumber:     d.CardNumber,
			CVV:            d.CVV,
			Enable3DS:      true,
			ExpiryMonth:    d.ExpiryMonth,
			ExpiryYear:     d.ExpiryYear,
		}
	case BankTransferDetails:
		w.CustomerName = d.CustomerName
		w.UserPhone = d.UserPhone
	case BankUSSDDetails:
		w.CustomerName = d.CustomerName
		w.UserPhone = d.UserPhone
		w.BankCode = d.BankCode
	case BankAccountDetails:
		w.CustomerName = d.CustomerName
		w.UserPhone = d.UserPhone
		w.BankAccountNumber = d.AccountNumber
		w.BankCode = d.BankCode
		w.BVN = d.BVN
		w.DOBDay = d.DOBDay
		w.DOBMonth = d.DOBMonth
		w.DOBYear = d.DOBYear
	case ReferenceCodeDetails:
		w.MerchantName = d.MerchantName
		w.Notify = &d.Notify
	case WalletQRDetails:
		// nothing beyond the common fields
	default:
		return nil, fmt.Errorf("unsupported payment method %q", req.Details.PayMethod())
	}
	return w, nil
}

func (c *Client) CreatePayment(ctx context.Context, req CreateRequest) (*Response, error) {
	w, err := buildCreate(req)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, pathPaymentCreate, w, false)
}

func (c *Client) CreateCashierPayment(ctx context.Context, req CashierRequest) (*Response, error) {
	w := &wireCashier{
		Reference: req.Reference,
		Amount: wireAmount{
			Currency: orDefault(req.Currency, defaultCurrency),
			Total:    MinorUnits(req.Amount),
		},
		Product:      req.Product,
		Country:      orDefault(req.Country, defaultCountry),
		CallbackURL:  req.CallbackURL,
		ReturnURL:    req.ReturnURL,
		ExpireAt:     req.ExpireAt,
		CustomerName: req.CustomerName,
		UserPhone:    req.UserPhone,
		UserInfo:     req.UserInfo,
	}
	return c.post(ctx, pathCashierCreate, w, false)
}

func (c *Client) QueryStatus(ctx context.Context, reference string) (*Response, error) {
	return c.post(ctx, pathCashierStatus, wireReference{Reference: reference, Country: defaultCountry}, true)
}

func (c *Client) Cancel(ctx context.Context, reference string) (*Response, error) {
	return c.post(ctx, pathPaymentClose, wireReference{Reference: reference, Country: defaultCountry}, true)
}

func (c *Client) CreateRefund(ctx context.Context, req RefundRequest) (*Response, error) {
	w := &wireRefund{
		Reference:         req.Reference,
		OriginalReference: req.OriginalReference,
		Country:           orDefault(req.Country, defaultCountry),
		RefundWay:         orDefault(req.RefundWay, "Original"),
		Amount: wireAmount{
			Currency: orDefault(req.Currency, defaultCurrency),
			Total:    MinorUnits(req.Amount),
		},
		CallbackURL: req.CallbackURL,
		Receiver:    req.Receiver,
	}
	return c.post(ctx, pathRefundCreate, w, true)
}

func (c *Client) QueryRefundStatus(ctx context.Context, reference string) (*Response, error) {
	return c.post(ctx, pathRefundQuery, wireReference{Reference: reference, Country: defaultCountry}, true)
}

// sign computes the hex HMAC-SHA-512 of the request body, keyed by the secret
// key.
func (c *Client) sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(c.cfg.SecretKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// post sends the request and decodes the gateway's reply. The signature, when
// used, covers exactly the bytes sent.
func (c *Client) post(ctx context.Context, path string, body any, signed bool) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	auth := c.cfg.PublicKey
	if signed {
		auth = c.sign(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+auth)
	req.Header.Set("MerchantId", c.cfg.MerchantID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGatewayUnreachable, err)
	}
	return &out, nil
}
