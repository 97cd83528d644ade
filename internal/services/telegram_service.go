package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Notifier alerts the operations team about transactions that need a human.
type Notifier interface {
	NotifyAmountMismatch(ctx context.Context, n AmountMismatchNotification) error
	NotifyDeliveryIssue(ctx context.Context, n DeliveryIssueNotification) error
	NotifyOrderPaid(ctx context.Context, n OrderPaidNotification) error
}

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	apiBase     string
	botToken    string
	adminChatID string
	httpClient  *http.Client
	log         *slog.Logger
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string, log *slog.Logger) *TelegramService {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramService{
		apiBase:     "https://api.telegram.org",
		botToken:    botToken,
		adminChatID: adminChatID,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		log:         log.With("component", "telegram"),
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		s.log.Debug("bot token not configured, dropping message")
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Error("failed to send message", "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Error("unexpected status", "http_status", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		s.log.Debug("admin chat not configured, dropping message")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// FormatNaira formats an amount with thousand separators.
func FormatNaira(amount float64) string {
	str := fmt.Sprintf("%d", int64(amount))

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return "₦" + result.String()
}

// AmountMismatchNotification describes an underpaid transfer.
type AmountMismatchNotification struct {
	TxRef    string
	Phone    string
	Expected int64
	Paid     float64
}

// NotifyAmountMismatch reports a transfer smaller than the order total.
func (s *TelegramService) NotifyAmountMismatch(ctx context.Context, n AmountMismatchNotification) error {
	message := fmt.Sprintf(`<b>⚠️ UNDERPAID TRANSFER</b>
<b>Ref:</b> %s
<b>Phone:</b> %s
<b>Expected:</b> %s
<b>Received:</b> %s
━━━━━━━━━━━━━━━━━━
<i>Transaction left pending.</i>`,
		html.EscapeString(n.TxRef),
		html.EscapeString(n.Phone),
		FormatNaira(float64(n.Expected)),
		FormatNaira(n.Paid),
	)
	return s.SendToAdmin(ctx, message)
}

// DeliveryIssueNotification describes a delivery that did not complete.
type DeliveryIssueNotification struct {
	TxRef    string
	Phone    string
	Network  string
	Plan     string
	Attempts int
	Unknown  bool
	Reason   string
}

// NotifyDeliveryIssue reports a rejected or unconfirmed delivery.
func (s *TelegramService) NotifyDeliveryIssue(ctx context.Context, n DeliveryIssueNotification) error {
	title := "❌ DELIVERY FAILED"
	footer := "Will be retried after the cooldown."
	if n.Unknown {
		title = "❓ DELIVERY OUTCOME UNKNOWN"
		footer = "Lock held. Check the gateway dashboard, then unlock or override."
	}

	message := fmt.Sprintf(`<b>%s</b>
<b>Ref:</b> %s
<b>Phone:</b> %s
<b>Plan:</b> %s %s
<b>Attempt:</b> %d
<b>Reason:</b> %s
━━━━━━━━━━━━━━━━━━
<i>%s</i>`,
		title,
		html.EscapeString(n.TxRef),
		html.EscapeString(n.Phone),
		html.EscapeString(n.Network),
		html.EscapeString(n.Plan),
		n.Attempts,
		html.EscapeString(n.Reason),
		footer,
	)
	return s.SendToAdmin(ctx, message)
}

// OrderPaidNotification describes a paid physical order awaiting shipment.
type OrderPaidNotification struct {
	TxRef    string
	Customer string
	Phone    string
	State    string
	Amount   int64
}

// NotifyOrderPaid tells staff a physical order is ready to ship.
func (s *TelegramService) NotifyOrderPaid(ctx context.Context, n OrderPaidNotification) error {
	message := fmt.Sprintf(`<b>🛒 ORDER PAID</b>
<b>Ref:</b> %s
<b>Customer:</b> %s
<b>Phone:</b> %s
<b>State:</b> %s
<b>Total:</b> %s
━━━━━━━━━━━━━━━━━━
<i>SaukiMart</i>`,
		html.EscapeString(n.TxRef),
		html.EscapeString(n.Customer),
		html.EscapeString(n.Phone),
		html.EscapeString(n.State),
		FormatNaira(float64(n.Amount)),
	)
	return s.SendToAdmin(ctx, message)
}

type noopNotifier struct{}

func (noopNotifier) NotifyAmountMismatch(context.Context, AmountMismatchNotification) error {
	return nil
}
func (noopNotifier) NotifyDeliveryIssue(context.Context, DeliveryIssueNotification) error {
	return nil
}
func (noopNotifier) NotifyOrderPaid(context.Context, OrderPaidNotification) error { return nil }
