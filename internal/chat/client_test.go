package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"raidbot/internal/chat"
)

type recordedCall struct {
	Path   string
	Params map[string]any
}

func testServer(t *testing.T, respond func(method string) (int, string)) (*chat.Client, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("decode body: %v", err)
		}
		calls = append(calls, recordedCall{Path: r.URL.Path, Params: params})
		status, body := respond(r.URL.Path)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	client := chat.NewClient(srv.URL+"/bot", "TOKEN", time.Second)
	return client, &calls
}

func TestSendTextReturnsMessageID(t *testing.T) {
	client, calls := testServer(t, func(string) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{"message_id":42}}`
	})
	id, err := client.SendText(context.Background(), 7, "hello", chat.Row(chat.Button{Text: "Go", CallbackData: "help_raids"}))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != 42 {
		t.Fatalf("message id = %d", id)
	}
	call := (*calls)[0]
	if call.Path != "/botTOKEN/sendMessage" {
		t.Fatalf("path = %q", call.Path)
	}
	if call.Params["text"] != "hello" {
		t.Fatalf("params = %v", call.Params)
	}
	if _, ok := call.Params["reply_markup"]; !ok {
		t.Fatal("keyboard not serialized")
	}
}

func TestAPIErrorWrapsTransportError(t *testing.T) {
	client, _ := testServer(t, func(string) (int, string) {
		return http.StatusOK, `{"ok":false,"error":"chat not found"}`
	})
	_, err := client.SendText(context.Background(), 7, "hello", nil)
	var te chat.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Op != "sendMessage" || te.ChatID != 7 {
		t.Fatalf("unexpected detail: %+v", te)
	}
}

func TestHTTPStatusError(t *testing.T) {
	client, _ := testServer(t, func(string) (int, string) {
		return http.StatusForbidden, `{"ok":false,"error":"bot was kicked"}`
	})
	err := client.DeleteMessage(context.Background(), -100, 5)
	var te chat.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestPinAndAnswerMethods(t *testing.T) {
	client, calls := testServer(t, func(string) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{"message_id":1}}`
	})
	if err := client.PinMessage(context.Background(), -100, 9); err != nil {
		t.Fatalf("pin: %v", err)
	}
	if err := client.AnswerCallback(context.Background(), "cb-1", "done"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if (*calls)[0].Path != "/botTOKEN/pinChatMessage" {
		t.Fatalf("pin path = %q", (*calls)[0].Path)
	}
	if (*calls)[1].Params["callback_query_id"] != "cb-1" {
		t.Fatalf("answer params = %v", (*calls)[1].Params)
	}
}
