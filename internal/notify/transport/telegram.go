// Package transport implements the channel-specific Senders consumed
// by the Notification Core: Telegram Bot API, SMTP email, and
// generic/Slack/Zapier webhooks (§4.7, §6).
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arrowhq/sentinel/internal/models"
	"github.com/arrowhq/sentinel/internal/notify"
)

// TelegramSender posts messages through the Telegram Bot API
// sendMessage endpoint, splitting long bodies across multiple calls.
type TelegramSender struct {
	botToken   string
	apiBaseURL string
	httpClient *http.Client
}

func NewTelegramSender(botToken string, timeout time.Duration) *TelegramSender {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &TelegramSender{
		botToken:   botToken,
		apiBaseURL: "https://api.telegram.org",
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *TelegramSender) Channel() models.ChannelKind { return models.ChannelTelegram }

func (s *TelegramSender) Send(ctx context.Context, msg notify.Message) notify.SendResult {
	segments := notify.SplitTelegramMessage(msg.Body)
	if len(segments) == 0 {
		segments = []string{msg.Subject}
	} else if msg.Subject != "" {
		segments[0] = msg.Subject + "\n\n" + segments[0]
	}

	var lastMeta []byte
	for _, segment := range segments {
		res := s.sendOne(ctx, msg.Destination, segment)
		if !res.Success {
			return res
		}
		lastMeta = res.Metadata
	}
	return notify.SendResult{Success: true, Metadata: lastMeta}
}

type telegramResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

func (s *TelegramSender) sendOne(ctx context.Context, chatID, text string) notify.SendResult {
	reqBody := map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "markdown",
		"disable_web_page_preview": true,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return notify.SendResult{Permanent: true, Err: fmt.Errorf("marshal telegram request: %w", err)}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBaseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return notify.SendResult{Err: fmt.Errorf("build telegram request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return notify.SendResult{Err: fmt.Errorf("telegram request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return notify.SendResult{Err: fmt.Errorf("read telegram response: %w", err)}
	}

	var result telegramResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return notify.SendResult{Err: fmt.Errorf("decode telegram response: %w", err)}
	}
	if !result.OK {
		return notify.SendResult{Permanent: isTelegramPermanent(result.ErrorCode, result.Description), Err: fmt.Errorf("telegram error %d: %s", result.ErrorCode, result.Description)}
	}
	return notify.SendResult{Success: true, Metadata: result.Result}
}

// isTelegramPermanent reports whether a Telegram error should not be
// retried: the bot was blocked, the chat no longer exists, or the
// payload itself was rejected.
func isTelegramPermanent(code int, description string) bool {
	desc := strings.ToLower(description)
	switch code {
	case 400:
		return strings.Contains(desc, "chat not found") || strings.Contains(desc, "user not found")
	case 401, 403:
		return true
	default:
		return false
	}
}
