package chat

import (
	"context"
	"fmt"
)

// Button is one inline keyboard button; CallbackData and URL are mutually
// exclusive.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Keyboard is rows of buttons.
type Keyboard [][]Button

// Row builds a single-row keyboard.
func Row(buttons ...Button) Keyboard {
	return Keyboard{buttons}
}

// Transport is the outbound chat-platform contract. Implementations must
// honor the context deadline on every call.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, kb Keyboard) (int64, error)
	SendMedia(ctx context.Context, chatID int64, mediaRef, caption string, kb Keyboard) (int64, error)
	EditText(ctx context.Context, chatID, messageID int64, text string, kb Keyboard) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	PinMessage(ctx context.Context, chatID, messageID int64) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// TransportError wraps a failed platform call. Broadcast code treats it as
// per-target: logged, the target possibly evicted, never fatal.
type TransportError struct {
	Op     string
	ChatID int64
	Err    error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("chat %s (chat_id=%d): %v", e.Op, e.ChatID, e.Err)
}

func (e TransportError) Unwrap() error {
	return e.Err
}
