package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookmate/internal/config"
)

func testConfig(baseURL string) config.Gateway {
	return config.Gateway{
		BaseURL:     baseURL,
		MerchantID:  "MERCHANT-1",
		PublicKey:   "pub-key",
		SecretKey:   "sec-key",
		CallbackURL: "https://example.test/callback",
		ReturnURL:   "https://example.test/return",
	}
}

func TestMinorUnitsRoundTrip(t *testing.T) {
	cases := []struct {
		major string
		minor int64
	}{
		{"5000.00", 500000},
		{"0.01", 1},
		{"2500", 250000},
		{"19.99", 1999},
		{"0.105", 11}, // rounds to nearest cent
	}
	for _, tc := range cases {
		d := decimal.RequireFromString(tc.major)
		assert.Equal(t, tc.minor, MinorUnits(d), "minor units of %s", tc.major)
	}

	// exact round trip for two-decimal inputs
	back := MajorUnits(MinorUnits(decimal.RequireFromString("5000.00")))
	assert.True(t, back.Equal(decimal.RequireFromString("5000.00")), "got %s", back)
}

func TestCreatePaymentUsesPublicKeyAuth(t *testing.T) {
	var gotAuth, gotMerchant string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMerchant = r.Header.Get("MerchantId")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(Response{
			Code:    SuccessCode,
			Message: "SUCCESSFUL",
			Data: &ResponseData{
				Reference: "REF-1",
				OrderNo:   "OP-9",
				Status:    StatusInitial,
				Amount:    Amount{Total: 550000, Currency: "NGN"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	resp, err := client.CreatePayment(context.Background(), CreateRequest{
		Reference: "REF-1",
		Amount:    decimal.RequireFromString("5500.00"),
		Product:   Product{Name: "2x Algebra", Description: "Book order #abc"},
		Details:   BankTransferDetails{CustomerName: "Ada", UserPhone: "+2348000000000"},
	})
	require.NoError(t, err)
	require.True(t, resp.OK())

	assert.Equal(t, "Bearer pub-key", gotAuth)
	assert.Equal(t, "MERCHANT-1", gotMerchant)

	amount := gotBody["amount"].(map[string]any)
	assert.Equal(t, float64(550000), amount["total"])
	assert.Equal(t, "NGN", amount["currency"])
	assert.Equal(t, "BankTransfer", gotBody["payMethod"])
	assert.Equal(t, "NG", gotBody["country"])
	// fields of other methods must not leak onto the wire
	_, hasCard := gotBody["bankcard"]
	assert.False(t, hasCard)
	_, hasUSSD := gotBody["bankCode"]
	assert.False(t, hasUSSD)
}

func TestQueryStatusUsesSignatureAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		mac := hmac.New(sha512.New, []byte("sec-key"))
		mac.Write(body)
		want := "Bearer " + hex.EncodeToString(mac.Sum(nil))
		assert.Equal(t, want, r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(Response{
			Code:    SuccessCode,
			Message: "SUCCESSFUL",
			Data: &ResponseData{
				Reference: "REF-1",
				Status:    StatusSuccess,
				Amount:    Amount{Total: 500000, Currency: "NGN"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	resp, err := client.QueryStatus(context.Background(), "REF-1")
	require.NoError(t, err)
	require.True(t, resp.OK())
	assert.Equal(t, StatusSuccess, resp.Data.Status)
	assert.True(t, MajorUnits(resp.Data.Amount.Total).Equal(decimal.RequireFromString("5000.00")))
}

func TestStructuredErrorReturnedNotThrown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(Response{Code: "02004", Message: "insufficient funds"})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	resp, err := client.CreatePayment(context.Background(), CreateRequest{
		Reference: "REF-2",
		Amount:    decimal.RequireFromString("100.00"),
		Details:   WalletQRDetails{},
	})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, "02004", resp.Code)
	assert.Equal(t, "insufficient funds", resp.Message)
}

func TestTransportFailureIsGatewayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewClient(testConfig(srv.URL))
	_, err := client.QueryStatus(context.Background(), "REF-3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGatewayUnreachable)
}

func TestBuildCreateRejectsMissingDetails(t *testing.T) {
	client := NewClient(testConfig("http://unused"))
	_, err := client.CreatePayment(context.Background(), CreateRequest{
		Reference: "REF-4",
		Amount:    decimal.RequireFromString("10.00"),
	})
	require.Error(t, err)
}

func TestBankCardDetailsOnWire(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(Response{
			Code: SuccessCode,
			Data: &ResponseData{
				Reference: "REF-5",
				NextAction: &NextAction{
					ActionType:  ActionRedirect3DS,
					RedirectURL: "https://3ds.example.test",
				},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	resp, err := client.CreatePayment(context.Background(), CreateRequest{
		Reference: "REF-5",
		Amount:    decimal.RequireFromString("10.00"),
		Details: BankCardDetails{
			CardHolderName: "Ada Obi",
			CardNumber:     "4111111111111111",
			CVV:            "123",
			ExpiryMonth:    "01",
			ExpiryYear:     "30",
		},
	})
	require.NoError(t, err)

	card := gotBody["bankcard"].(map[string]any)
	assert.Equal(t, "Ada Obi", card["cardHolderName"])
	assert.Equal(t, true, card["enable3DS"])
	assert.Equal(t, ActionRedirect3DS, resp.Data.NextAction.ActionType)
}
