package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Channel delivers one free-form text message to a destination address.
// Implementations must bound the call so a dead channel cannot stall a
// scheduler pass.
type Channel interface {
	Send(ctx context.Context, chatID, text string) error
}

const DefaultTelegramAPIURL = "https://api.telegram.org"

// TelegramChannel sends messages through the Telegram Bot API with
// Markdown parse mode.
type TelegramChannel struct {
	client *resty.Client
	token  string
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewTelegramChannel(token, apiURL string, timeout time.Duration) *TelegramChannel {
	if apiURL == "" {
		apiURL = DefaultTelegramAPIURL
	}
	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout)

	return &TelegramChannel{client: client, token: token}
}

func (t *TelegramChannel) Send(ctx context.Context, chatID, text string) error {
	var result telegramResponse

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    chatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}

	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram api: status %d: %s", resp.StatusCode(), result.Description)
	}
	return nil
}
