package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	maxMessageLength = 4096
	pollTimeoutSecs  = 30
)

// Update is one inbound event from getUpdates.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	EditedMessage *Message       `json:"edited_message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// Message is an inbound chat message.
type Message struct {
	Chat Chat   `json:"chat"`
	Text string `json:"text"`
}

// Chat identifies the conversation an update belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// CallbackQuery is an inline-button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	Message *Message `json:"message"`
}

// Chat returns the chat the callback originated from, or zero.
func (c *CallbackQuery) ChatID() int64 {
	if c.Message == nil {
		return 0
	}
	return c.Message.Chat.ID
}

// Client talks to the Telegram bot API for a single fixed recipient.
type Client struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewClient creates a bot API client for the configured recipient chat.
func NewClient(token, chatID string) *Client {
	return &Client{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		// Long polls block up to pollTimeoutSecs server-side.
		client: &http.Client{Timeout: (pollTimeoutSecs + 10) * time.Second},
	}
}

// ChatID returns the configured recipient chat identifier.
func (c *Client) ChatID() string {
	return c.chatID
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, payload any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s returned %s: %s", method, resp.Status, string(respBody))
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("%s not ok: %s", method, apiResp.Description)
	}
	return &apiResp, nil
}

// SendText sends an HTML-formatted message to the recipient.
func (c *Client) SendText(ctx context.Context, text string) error {
	_, err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id":    c.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	return err
}

// SendWithKeyboard sends an HTML message with an inline keyboard. buttons
// is rows of label/callback-data pairs.
func (c *Client) SendWithKeyboard(ctx context.Context, text string, buttons [][]Button) error {
	keyboard := make([][]map[string]string, 0, len(buttons))
	for _, row := range buttons {
		r := make([]map[string]string, 0, len(row))
		for _, b := range row {
			r = append(r, map[string]string{"text": b.Label, "callback_data": b.Data})
		}
		keyboard = append(keyboard, r)
	}

	_, err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": false,
		"reply_markup":             map[string]any{"inline_keyboard": keyboard},
	})
	return err
}

// Button is one inline-keyboard button.
type Button struct {
	Label string
	Data  string
}

// AnswerCallback dismisses the pending indicator on a pressed button,
// optionally flashing a short note.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
		"text":              text,
	})
	return err
}

// GetUpdates long-polls for inbound events newer than offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	resp, err := c.call(ctx, "getUpdates", map[string]any{
		"offset":  offset,
		"timeout": pollTimeoutSecs,
	})
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decoding updates: %w", err)
	}
	return updates, nil
}
