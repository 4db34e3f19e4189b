package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the platform's bot HTTP API. Every call runs under the
// caller's context plus the client timeout, whichever ends first.
type Client struct {
	base   string
	token  string
	client *http.Client
}

func NewClient(base, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (c *Client) call(ctx context.Context, method string, params map[string]any) (apiResponse, error) {
	var res apiResponse
	data, err := json.Marshal(params)
	if err != nil {
		return res, err
	}
	url := fmt.Sprintf("%s%s/%s", c.base, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return res, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return res, err
	}
	if !res.OK {
		return res, fmt.Errorf("api error: %s", res.Error)
	}
	return res, nil
}

func keyboardParam(kb Keyboard) any {
	if len(kb) == 0 {
		return nil
	}
	return map[string]any{"inline_keyboard": kb}
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string, kb Keyboard) (int64, error) {
	params := map[string]any{"chat_id": chatID, "text": text}
	if markup := keyboardParam(kb); markup != nil {
		params["reply_markup"] = markup
	}
	res, err := c.call(ctx, "sendMessage", params)
	if err != nil {
		return 0, TransportError{Op: "sendMessage", ChatID: chatID, Err: err}
	}
	return res.Result.MessageID, nil
}

func (c *Client) SendMedia(ctx context.Context, chatID int64, mediaRef, caption string, kb Keyboard) (int64, error) {
	params := map[string]any{"chat_id": chatID, "photo": mediaRef, "caption": caption}
	if markup := keyboardParam(kb); markup != nil {
		params["reply_markup"] = markup
	}
	res, err := c.call(ctx, "sendPhoto", params)
	if err != nil {
		return 0, TransportError{Op: "sendPhoto", ChatID: chatID, Err: err}
	}
	return res.Result.MessageID, nil
}

func (c *Client) EditText(ctx context.Context, chatID, messageID int64, text string, kb Keyboard) error {
	params := map[string]any{"chat_id": chatID, "message_id": messageID, "text": text}
	if markup := keyboardParam(kb); markup != nil {
		params["reply_markup"] = markup
	}
	if _, err := c.call(ctx, "editMessageText", params); err != nil {
		return TransportError{Op: "editMessageText", ChatID: chatID, Err: err}
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if _, err := c.call(ctx, "deleteMessage", map[string]any{"chat_id": chatID, "message_id": messageID}); err != nil {
		return TransportError{Op: "deleteMessage", ChatID: chatID, Err: err}
	}
	return nil
}

func (c *Client) PinMessage(ctx context.Context, chatID, messageID int64) error {
	if _, err := c.call(ctx, "pinChatMessage", map[string]any{"chat_id": chatID, "message_id": messageID, "disable_notification": true}); err != nil {
		return TransportError{Op: "pinChatMessage", ChatID: chatID, Err: err}
	}
	return nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	params := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		params["text"] = text
	}
	if _, err := c.call(ctx, "answerCallbackQuery", params); err != nil {
		return TransportError{Op: "answerCallbackQuery", ChatID: 0, Err: err}
	}
	return nil
}
