package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// VirtualAccountRequest asks the payment gateway for a one-time transfer account.
type VirtualAccountRequest struct {
	TxRef     string
	Amount    int64
	Phone     string
	FullName  string
	Narration string
	Meta      map[string]any
}

// VirtualAccount holds the transfer instructions shown to the customer.
type VirtualAccount struct {
	BankName      string
	AccountNumber string
	AccountName   string
	Amount        int64
	Note          string
	Raw           json.RawMessage
}

// PaymentVerification is the gateway's view of a payment for one tx_ref.
type PaymentVerification struct {
	Status   string
	Amount   float64
	Currency string
	Raw      json.RawMessage
}

// Successful reports whether the gateway considers the payment settled.
func (v *PaymentVerification) Successful() bool {
	if v == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v.Status)) {
	case "successful", "completed":
		return true
	}
	return false
}

// PaymentGateway creates virtual accounts and verifies payments against them.
type PaymentGateway interface {
	CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccount, error)
	VerifyByReference(ctx context.Context, txRef string) (*PaymentVerification, error)
}

// GatewayResponse is an unparsed upstream answer.
type GatewayResponse struct {
	Status int
	Body   json.RawMessage
}

// FlutterwaveClient implements PaymentGateway over the Flutterwave v3 API.
type FlutterwaveClient struct {
	baseURL     string
	secretKey   string
	email       string
	accountName string
	httpClient  *http.Client
	log         *slog.Logger
}

// NewFlutterwaveClient creates a new FlutterwaveClient.
func NewFlutterwaveClient(baseURL, secretKey, email, accountName string, timeout time.Duration, log *slog.Logger) *FlutterwaveClient {
	if log == nil {
		log = slog.Default()
	}
	return &FlutterwaveClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		secretKey:   secretKey,
		email:       email,
		accountName: accountName,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log.With("gateway", "flutterwave"),
	}
}

type chargePayload struct {
	TxRef       string         `json:"tx_ref"`
	Amount      int64          `json:"amount"`
	Email       string         `json:"email"`
	PhoneNumber string         `json:"phone_number"`
	Currency    string         `json:"currency"`
	FullName    string         `json:"fullname"`
	Narration   string         `json:"narration,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	IsPermanent bool           `json:"is_permanent"`
}

// CreateVirtualAccount opens a temporary bank-transfer account for req.Amount.
func (c *FlutterwaveClient) CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccount, error) {
	if c.secretKey == "" {
		return nil, newServiceError(ErrorConfiguration, fmt.Errorf("flutterwave: %w", ErrGatewayNotConfigured))
	}

	fullName := req.FullName
	if fullName == "" {
		fullName = c.accountName
	}

	resp, err := c.do(ctx, http.MethodPost, "/charges?type=bank_transfer", chargePayload{
		TxRef:       req.TxRef,
		Amount:      req.Amount,
		Email:       c.email,
		PhoneNumber: req.Phone,
		Currency:    "NGN",
		FullName:    fullName,
		Narration:   req.Narration,
		Meta:        req.Meta,
		IsPermanent: false,
	})
	if err != nil {
		return nil, newServiceError(ErrorGateway, err)
	}

	if resp.Status < 200 || resp.Status >= 300 || gjson.GetBytes(resp.Body, "status").String() != "success" {
		c.log.Warn("virtual account request rejected", "tx_ref", req.TxRef, "http_status", resp.Status)
		return nil, &ServiceError{
			Info:    ErrorGateway,
			Err:     fmt.Errorf("flutterwave: %s", gatewayMessage(resp.Body, "virtual account request rejected")),
			Details: resp.Body,
		}
	}

	auth := gjson.GetBytes(resp.Body, "meta.authorization")
	if !auth.Exists() {
		auth = gjson.GetBytes(resp.Body, "data.meta.authorization")
	}

	account := &VirtualAccount{
		BankName:      auth.Get("transfer_bank").String(),
		AccountNumber: auth.Get("transfer_account").String(),
		AccountName:   c.accountName,
		Amount:        req.Amount,
		Note:          auth.Get("transfer_note").String(),
		Raw:           resp.Body,
	}
	if amount := auth.Get("transfer_amount"); amount.Exists() && amount.Float() > 0 {
		account.Amount = int64(amount.Float())
	}

	if account.BankName == "" || account.AccountNumber == "" {
		c.log.Error("virtual account response missing bank details", "tx_ref", req.TxRef)
		return nil, &ServiceError{
			Info:    ErrorGateway,
			Err:     errors.New("flutterwave: incomplete bank details"),
			Details: resp.Body,
		}
	}

	return account, nil
}

// VerifyByReference looks up the payment made against txRef.
func (c *FlutterwaveClient) VerifyByReference(ctx context.Context, txRef string) (*PaymentVerification, error) {
	if c.secretKey == "" {
		return nil, newServiceError(ErrorConfiguration, fmt.Errorf("flutterwave: %w", ErrGatewayNotConfigured))
	}

	resp, err := c.do(ctx, http.MethodGet, "/transactions/verify_by_reference?tx_ref="+url.QueryEscape(txRef), nil)
	if err != nil {
		return nil, newServiceError(ErrorGateway, err)
	}

	if resp.Status < 200 || resp.Status >= 300 {
		return nil, &ServiceError{
			Info:    ErrorGateway,
			Err:     fmt.Errorf("flutterwave verify: %s", gatewayMessage(resp.Body, http.StatusText(resp.Status))),
			Details: resp.Body,
		}
	}

	verification := &PaymentVerification{Raw: resp.Body}
	if gjson.GetBytes(resp.Body, "status").String() != "success" {
		return verification, nil
	}

	data := gjson.GetBytes(resp.Body, "data")
	verification.Status = data.Get("status").String()
	verification.Amount = data.Get("amount").Float()
	verification.Currency = data.Get("currency").String()
	if data.IsObject() {
		verification.Raw = json.RawMessage(data.Raw)
	}
	return verification, nil
}

// Passthrough forwards an arbitrary call to the gateway for the admin console.
func (c *FlutterwaveClient) Passthrough(ctx context.Context, method, endpoint string, payload json.RawMessage) (*GatewayResponse, error) {
	if c.secretKey == "" {
		return nil, newServiceError(ErrorConfiguration, fmt.Errorf("flutterwave: %w", ErrGatewayNotConfigured))
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if !strings.HasPrefix(endpoint, "/") || strings.Contains(endpoint, "://") {
		return nil, newServiceError(ErrorValidation, fmt.Errorf("endpoint must be a path, got %q", endpoint))
	}

	var body any
	if len(payload) > 0 && method != http.MethodGet {
		body = payload
	}

	resp, err := c.do(ctx, method, endpoint, body)
	if err != nil {
		return nil, newServiceError(ErrorGateway, err)
	}
	return resp, nil
}

func (c *FlutterwaveClient) do(ctx context.Context, method, path string, payload any) (*GatewayResponse, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal flutterwave payload: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build flutterwave request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flutterwave %s %s: %w", method, strings.SplitN(path, "?", 2)[0], err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read flutterwave response: %w", err)
	}

	return &GatewayResponse{Status: resp.StatusCode, Body: normalizeJSON(body)}, nil
}

func gatewayMessage(body []byte, fallback string) string {
	if msg := gjson.GetBytes(body, "message").String(); msg != "" {
		return msg
	}
	return fallback
}
