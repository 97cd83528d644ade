package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNaira(t *testing.T) {
	assert.Equal(t, "₦300", FormatNaira(300))
	assert.Equal(t, "₦25,000", FormatNaira(25000))
	assert.Equal(t, "₦1,234,567", FormatNaira(1234567.9))
}

func TestNotifyDeliveryIssue(t *testing.T) {
	var got telegramMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewTelegramService("TOKEN", "-100200", slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.apiBase = server.URL

	err := svc.NotifyDeliveryIssue(context.Background(), DeliveryIssueNotification{
		TxRef:    "SAUKI-DATA-1",
		Phone:    "08031234567",
		Network:  "MTN",
		Plan:     "1GB",
		Attempts: 1,
		Unknown:  true,
		Reason:   "timeout <60s>",
	})
	require.NoError(t, err)
	assert.Equal(t, "-100200", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Contains(t, got.Text, "DELIVERY OUTCOME UNKNOWN")
	assert.Contains(t, got.Text, "timeout &lt;60s&gt;")
}

func TestTelegramWithoutTokenIsSilent(t *testing.T) {
	svc := NewTelegramService("", "", nil)
	assert.NoError(t, svc.NotifyAmountMismatch(context.Background(), AmountMismatchNotification{TxRef: "r"}))
}

func TestTelegramUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	svc := NewTelegramService("TOKEN", "1", nil)
	svc.apiBase = server.URL
	assert.Error(t, svc.NotifyOrderPaid(context.Background(), OrderPaidNotification{TxRef: "r"}))
}
