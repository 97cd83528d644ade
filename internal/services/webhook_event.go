package services

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

var webhookRefFields = []string{"txRef", "tx_ref", "reference"}

// ParseFlutterwaveWebhook extracts the transaction reference and payment event
// from a webhook body. The payment sits under "data" or at the top level.
func ParseFlutterwaveWebhook(body []byte) (string, *PaymentEvent) {
	if !gjson.ValidBytes(body) {
		return "", nil
	}

	root := gjson.ParseBytes(body)
	payload := root.Get("data")
	if !payload.IsObject() {
		payload = root
	}

	var ref string
	for _, field := range webhookRefFields {
		if v := strings.TrimSpace(payload.Get(field).String()); v != "" {
			ref = v
			break
		}
		if v := strings.TrimSpace(root.Get(field).String()); v != "" {
			ref = v
			break
		}
	}

	event := &PaymentEvent{
		Status: payload.Get("status").String(),
		Raw:    json.RawMessage(payload.Raw),
	}
	if amount := payload.Get("amount"); amount.Exists() {
		event.Amount = amount.Float()
	}
	return ref, event
}

// Successful reports whether the event announces a settled payment.
func (e *PaymentEvent) Successful() bool {
	if e == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(e.Status)) {
	case "successful", "completed":
		return true
	}
	return false
}
