package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"bandbot/internal/config"
	"bandbot/internal/logger"
)

// Telegram pushes trade notices to a chat via the Bot API. Failures are
// retried a few times and then dropped; notifications never gate trading.
type Telegram struct {
	botToken string
	chatID   string
	client   *http.Client
}

func NewTelegram(cfg config.TelegramConfig) *Telegram {
	return &Telegram{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// SendText delivers one message, retrying up to 3 times on transport errors
// or non-ok API responses.
func (t *Telegram) SendText(text string) error {
	if t.botToken == "" || t.chatID == "" {
		return fmt.Errorf("telegram credentials missing")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)

	payload := map[string]any{
		"chat_id": t.chatID,
		"text":    text,
	}
	body, _ := json.Marshal(payload)

	var lastErr error
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err := apiError(resp.StatusCode, raw); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	return lastErr
}

// Notify sends asynchronously, logging a warning on failure. It satisfies
// the perf recorder's notifier contract.
func (t *Telegram) Notify(text string) {
	go func() {
		if err := t.SendText(text); err != nil {
			logger.Warnf("telegram notify failed: %v", err)
		}
	}()
}

// apiError interprets a Bot API response. Telegram reports failures both via
// HTTP status and an "ok" field with a description in the body.
func apiError(status int, raw []byte) error {
	parsed := gjson.ParseBytes(raw)
	if status/100 == 2 && parsed.Get("ok").Bool() {
		return nil
	}
	desc := parsed.Get("description").String()
	if desc == "" {
		desc = "no description"
	}
	return fmt.Errorf("telegram status=%d: %s", status, desc)
}
