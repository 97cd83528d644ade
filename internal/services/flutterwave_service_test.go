package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFlutterwave(url, key string) *FlutterwaveClient {
	return NewFlutterwaveClient(url, key, "customer@saukimart.com", "SAUKI MART", 5*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateVirtualAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/charges", r.URL.Path)
		assert.Equal(t, "bank_transfer", r.URL.Query().Get("type"))
		assert.Equal(t, "Bearer FLWSECK-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SAUKI-DATA-1", body["tx_ref"])
		assert.Equal(t, "NGN", body["currency"])
		assert.Equal(t, false, body["is_permanent"])
		assert.EqualValues(t, 300, body["amount"])

		_, _ = w.Write([]byte(`{
			"status": "success",
			"meta": {"authorization": {
				"transfer_bank": "WEMA BANK",
				"transfer_account": "7820000001",
				"transfer_amount": "310.00",
				"transfer_note": "Expires in 30 minutes"
			}}
		}`))
	}))
	defer server.Close()

	account, err := newTestFlutterwave(server.URL+"/v3/", "FLWSECK-test").CreateVirtualAccount(context.Background(), VirtualAccountRequest{
		TxRef:  "SAUKI-DATA-1",
		Amount: 300,
		Phone:  "08031234567",
	})
	require.NoError(t, err)
	assert.Equal(t, "WEMA BANK", account.BankName)
	assert.Equal(t, "7820000001", account.AccountNumber)
	assert.Equal(t, "SAUKI MART", account.AccountName)
	assert.Equal(t, int64(310), account.Amount)
	assert.Equal(t, "Expires in 30 minutes", account.Note)
}

func TestCreateVirtualAccountNestedMeta(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"meta":{"authorization":{"transfer_bank":"X","transfer_account":"1"}}}}`))
	}))
	defer server.Close()

	account, err := newTestFlutterwave(server.URL, "k").CreateVirtualAccount(context.Background(), VirtualAccountRequest{TxRef: "r", Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, "X", account.BankName)
	assert.Equal(t, int64(500), account.Amount)
}

func TestCreateVirtualAccountFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"missing bank details", 200, `{"status":"success","meta":{"authorization":{"transfer_bank":"X"}}}`},
		{"non success status", 200, `{"status":"error","message":"Invalid amount"}`},
		{"http error", 401, `{"status":"error","message":"Invalid authorization key"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := newTestFlutterwave(server.URL, "k").CreateVirtualAccount(context.Background(), VirtualAccountRequest{TxRef: "r", Amount: 1})
			require.Error(t, err)
			assert.True(t, HasKind(err, ErrorGateway))
		})
	}
}

func TestCreateVirtualAccountWithoutKey(t *testing.T) {
	_, err := newTestFlutterwave("http://127.0.0.1:1", "").CreateVirtualAccount(context.Background(), VirtualAccountRequest{})
	require.Error(t, err)
	assert.True(t, HasKind(err, ErrorConfiguration))
}

func TestVerifyByReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/verify_by_reference", r.URL.Path)
		assert.Equal(t, "SAUKI-DATA-1", r.URL.Query().Get("tx_ref"))
		_, _ = w.Write([]byte(`{"status":"success","data":{"status":"successful","amount":300,"currency":"NGN","tx_ref":"SAUKI-DATA-1"}}`))
	}))
	defer server.Close()

	v, err := newTestFlutterwave(server.URL, "k").VerifyByReference(context.Background(), "SAUKI-DATA-1")
	require.NoError(t, err)
	assert.True(t, v.Successful())
	assert.Equal(t, 300.0, v.Amount)
	assert.Equal(t, "NGN", v.Currency)
	assert.JSONEq(t, `{"status":"successful","amount":300,"currency":"NGN","tx_ref":"SAUKI-DATA-1"}`, string(v.Raw))
}

func TestVerifyByReferenceNotSettled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"No transaction was found"}`))
	}))
	defer server.Close()

	v, err := newTestFlutterwave(server.URL, "k").VerifyByReference(context.Background(), "r")
	require.NoError(t, err)
	assert.False(t, v.Successful())
}

func TestVerifyByReferenceHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"error","message":"No transaction was found for this id"}`))
	}))
	defer server.Close()

	_, err := newTestFlutterwave(server.URL, "k").VerifyByReference(context.Background(), "r")
	require.Error(t, err)
	assert.True(t, HasKind(err, ErrorGateway))
	assert.Contains(t, err.Error(), "No transaction was found")
}

func TestPassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/balances/NGN", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success","data":{"available_balance":1000}}`))
	}))
	defer server.Close()

	client := newTestFlutterwave(server.URL, "k")
	resp, err := client.Passthrough(context.Background(), "get", "/balances/NGN", json.RawMessage(`{"ignored":true}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	_, err = client.Passthrough(context.Background(), "GET", "https://evil.example/x", nil)
	assert.True(t, HasKind(err, ErrorValidation))
}

func TestPaymentVerificationSuccessful(t *testing.T) {
	assert.True(t, (&PaymentVerification{Status: "completed"}).Successful())
	assert.True(t, (&PaymentVerification{Status: "SUCCESSFUL"}).Successful())
	assert.False(t, (&PaymentVerification{Status: "pending"}).Successful())
	var missing *PaymentVerification
	assert.False(t, missing.Successful())
}
