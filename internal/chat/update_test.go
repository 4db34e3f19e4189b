package chat_test

import (
	"testing"

	"raidbot/internal/chat"
)

func TestDecodeCallback(t *testing.T) {
	cases := []struct {
		data string
		want chat.Callback
	}{
		{"onboard_type_raider", chat.Callback{Kind: chat.CallbackOnboard, Action: "type", EntityID: "raider"}},
		{"onboard_skip", chat.Callback{Kind: chat.CallbackOnboard, Action: "skip"}},
		{"action_complete_9b2f1c00-4e7a", chat.Callback{Kind: chat.CallbackAction, Action: "complete", EntityID: "9b2f1c00-4e7a"}},
		{"vote_up_raid_with_underscores", chat.Callback{Kind: chat.CallbackVote, Action: "up", EntityID: "raid_with_underscores"}},
		{"help_raids", chat.Callback{Kind: chat.CallbackHelp, Action: "raids"}},
		{"settings_removebranding_-100", chat.Callback{Kind: chat.CallbackSettings, Action: "removebranding", EntityID: "-100"}},
	}
	for _, tc := range cases {
		got, err := chat.DecodeCallback(tc.data)
		if err != nil {
			t.Fatalf("%s: %v", tc.data, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %+v, want %+v", tc.data, got, tc.want)
		}
	}
}

func TestDecodeCallbackRejectsMalformed(t *testing.T) {
	for _, data := range []string{"", "vote", "mystery_action", "votes_up_1"} {
		if _, err := chat.DecodeCallback(data); err == nil {
			t.Fatalf("%q should not decode", data)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data := chat.EncodeCallback("action", "complete", "a_b_c")
	cb, err := chat.DecodeCallback(data)
	if err != nil {
		t.Fatal(err)
	}
	if cb.EntityID != "a_b_c" {
		t.Fatalf("entity = %q", cb.EntityID)
	}
}

func TestIsGroup(t *testing.T) {
	if (chat.Update{ChatID: 12345}).IsGroup() {
		t.Fatal("positive chat id is a direct chat")
	}
	if !(chat.Update{ChatID: -100123}).IsGroup() {
		t.Fatal("negative chat id is a group")
	}
}
