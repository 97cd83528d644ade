package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AmigoNetworks maps normalized network names to the delivery gateway's codes.
var AmigoNetworks = map[string]int{
	"MTN":      1,
	"GLO":      2,
	"AIRTEL":   4,
	"9MOBILE":  9,
	"ETISALAT": 9,
}

// NetworkCode resolves a catalog network name ("mtn ", "Airtel") to its gateway code.
func NetworkCode(network string) (int, error) {
	key := strings.ToUpper(strings.TrimSpace(network))
	code, ok := AmigoNetworks[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnmappedNetwork, network)
	}
	return code, nil
}

// DeliveryRequest describes one data bundle to provision.
type DeliveryRequest struct {
	NetworkCode    int
	Phone          string
	PlanCode       int
	IdempotencyKey string
}

// DeliveryResponse is whatever the gateway answered, successful or not.
type DeliveryResponse struct {
	HTTPStatus int
	Raw        json.RawMessage
}

// DeliveryGateway provisions data bundles. It is not idempotent: every call that
// reaches the upstream may provision a bundle.
//
// Provision returns a response for every answer the gateway gives, including
// rejections. It returns an error wrapping ErrDeliveryOutcomeUnknown when the
// request may have been sent but no answer was read.
type DeliveryGateway interface {
	Provision(ctx context.Context, req DeliveryRequest) (*DeliveryResponse, error)
}

// AmigoClient talks to the Amigo data API.
type AmigoClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewAmigoClient builds a client for the full data endpoint URL. proxyURL is optional.
func NewAmigoClient(endpoint, apiKey, proxyURL string, timeout time.Duration, log *slog.Logger) (*AmigoClient, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse delivery proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}
	if log == nil {
		log = slog.Default()
	}

	return &AmigoClient{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		log:        log.With("gateway", "amigo"),
	}, nil
}

type amigoPayload struct {
	Network      int    `json:"network"`
	MobileNumber string `json:"mobile_number"`
	Plan         int    `json:"plan"`
	PortedNumber bool   `json:"Ported_number"`
}

// Provision sends one data purchase to the gateway.
func (c *AmigoClient) Provision(ctx context.Context, req DeliveryRequest) (*DeliveryResponse, error) {
	if c.apiKey == "" || c.endpoint == "" {
		return nil, newServiceError(ErrorConfiguration, fmt.Errorf("amigo: %w", ErrGatewayNotConfigured))
	}

	body, err := json.Marshal(amigoPayload{
		Network:      req.NetworkCode,
		MobileNumber: req.Phone,
		Plan:         req.PlanCode,
		PortedNumber: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal amigo payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newServiceError(ErrorConfiguration, fmt.Errorf("build amigo request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Token", c.apiKey)
	httpReq.Header.Set("X-API-Key", c.apiKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	c.log.Info("provisioning data bundle",
		"network", req.NetworkCode,
		"plan", req.PlanCode,
		"tx_ref", req.IdempotencyKey,
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryOutcomeUnknown, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrDeliveryOutcomeUnknown, err)
	}

	c.log.Info("amigo responded", "http_status", resp.StatusCode, "tx_ref", req.IdempotencyKey)

	return &DeliveryResponse{
		HTTPStatus: resp.StatusCode,
		Raw:        normalizeJSON(respBody),
	}, nil
}

// normalizeJSON keeps valid JSON as is and wraps anything else so it can be
// stored in a jsonb column.
func normalizeJSON(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(body)})
	return wrapped
}
