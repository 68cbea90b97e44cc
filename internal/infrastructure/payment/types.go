package payment

import (
	"github.com/shopspring/decimal"
)

// Method identifies the payment instrument offered to the gateway.
type Method string

const (
	MethodBankCard      Method = "BankCard"
	MethodBankTransfer  Method = "BankTransfer"
	MethodBankUSSD      Method = "BankUssd"
	MethodBankAccount   Method = "BankAccount"
	MethodReferenceCode Method = "ReferenceCode"
	MethodWalletQR      Method = "OpayWalletNgQR"
)

// Gateway transaction statuses.
const (
	StatusInitial = "INITIAL"
	StatusPending = "PENDING"
	StatusSuccess = "SUCCESS"
	StatusFail    = "FAIL"
	StatusClose   = "CLOSE"
)

// Next-action types returned by the gateway.
const (
	ActionRedirect3DS     = "REDIRECT_3DS"
	ActionTransferAccount = "TRANSFER_ACCOUNT"
	ActionShowUSSD        = "SHOW_USSD"
	ActionScanQRCode      = "SCAN_QR_CODE"
)

// SuccessCode is the gateway's success sentinel; every other code carries an
// error message.
const SuccessCode = "00000"

// MethodDetails is the per-method payload of a payment request. Each variant
// carries only the fields its method requires; the client matches exhaustively
// when building the wire request.
type MethodDetails interface {
	PayMethod() Method
}

type BankCardDetails struct {
	CardHolderName string
	CardNumber     string
	CVV            string
	ExpiryMonth    string
	ExpiryYear     string
}

func (BankCardDetails) PayMethod() Method { return MethodBankCard }

type BankTransferDetails struct {
	CustomerName string
	UserPhone    string
}

func (BankTransferDetails) PayMethod() Method { return MethodBankTransfer }

type BankUSSDDetails struct {
	CustomerName string
	UserPhone    string
	BankCode     string
}

func (BankUSSDDetails) PayMethod() Method { return MethodBankUSSD }

type BankAccountDetails struct {
	CustomerName  string
	UserPhone     string
	AccountNumber string
	BankCode      string
	BVN           string
	DOBDay        string
	DOBMonth      string
	DOBYear       string
}

func (BankAccountDetails) PayMethod() Method { return MethodBankAccount }

type ReferenceCodeDetails struct {
	MerchantName string
	Notify       Notify
}

func (ReferenceCodeDetails) PayMethod() Method { return MethodReferenceCode }

type WalletQRDetails struct{}

func (WalletQRDetails) PayMethod() Method { return MethodWalletQR }

type UserInfo struct {
	UserID     string `json:"userId,omitempty"`
	UserName   string `json:"userName,omitempty"`
	UserMobile string `json:"userMobile,omitempty"`
	UserEmail  string `json:"userEmail,omitempty"`
}

type Notify struct {
	NotifyUserName   string `json:"notifyUserName"`
	NotifyLanguage   string `json:"notifyLanguage"`
	NotifyMethod     string `json:"notifyMethod,omitempty"`
	NotifyUserEmail  string `json:"notifyUserEmail,omitempty"`
	NotifyUserMobile string `json:"notifyUserMobile,omitempty"`
}

type Product struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateRequest is a normalized payment-creation request. Amount is in major
// units; the client converts to the gateway's minor-unit integer.
type CreateRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Product     Product
	Country     string
	CallbackURL string
	ReturnURL   string
	// ExpireAt is the payment validity window in minutes.
	ExpireAt int
	UserInfo *UserInfo
	Details  MethodDetails
}

// CashierRequest is the express-checkout variant: no method details, the
// gateway hosts the payment page and returns a cashier URL.
type CashierRequest struct {
	Reference    string
	Amount       decimal.Decimal
	Currency     string
	Product      Product
	Country      string
	CallbackURL  string
	ReturnURL    string
	ExpireAt     int
	CustomerName string
	UserPhone    string
	UserInfo     *UserInfo
}

type RefundReceiver struct {
	BankCode      string `json:"bankCode,omitempty"`
	BankAccountNo string `json:"bankAccountNo,omitempty"`
}

type RefundRequest struct {
	Reference         string
	OriginalReference string
	Amount            decimal.Decimal
	Currency          string
	Country           string
	// RefundWay is "Original" or "BankAccount".
	RefundWay   string
	CallbackURL string
	Receiver    *RefundReceiver
}

type Amount struct {
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type NextAction struct {
	ActionType            string `json:"actionType"`
	RedirectURL           string `json:"redirectUrl,omitempty"`
	TransferAccountNumber string `json:"transferAccountNumber,omitempty"`
	TransferBankName      string `json:"transferBankName,omitempty"`
	ExpiredTimestamp      int64  `json:"expiredTimestamp,omitempty"`
	USSD                  string `json:"ussd,omitempty"`
	QRCode                string `json:"qrCode,omitempty"`
}

type ResponseData struct {
	Reference     string      `json:"reference"`
	OrderNo       string      `json:"orderNo"`
	Status        string      `json:"status"`
	Amount        Amount      `json:"amount"`
	NextAction    *NextAction `json:"nextAction,omitempty"`
	ReferenceCode string      `json:"referenceCode,omitempty"`
	CashierURL    string      `json:"cashierUrl,omitempty"`
	FailureCode   string      `json:"failureCode,omitempty"`
	FailureReason string      `json:"failureReason,omitempty"`
}

// Response is the gateway's normalized reply. Structured gateway errors are
// returned as a Response (not an error) so callers can inspect Code and
// Message.
type Response struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Data    *ResponseData `json:"data,omitempty"`
}

func (r *Response) OK() bool { return r.Code == SuccessCode }

// MinorUnits converts a major-unit amount to the gateway's integer minor
// units: round(amount * 100), computed in fixed point.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// MajorUnits converts the gateway's minor-unit integer back to a major-unit
// amount.
func MajorUnits(total int64) decimal.Decimal {
	return decimal.NewFromInt(total).Div(decimal.NewFromInt(100))
}
