package chat

import (
	"fmt"
	"strings"
)

// Update kinds delivered by the messaging-platform adapter.
const (
	KindMessage       = "message"
	KindCallbackQuery = "callback_query"
	KindReaction      = "reaction"
)

// Update is one inbound platform event, normalized by the adapter.
type Update struct {
	Kind          string `json:"kind" enum:"message,callback_query,reaction"`
	ChatID        int64  `json:"chat_id"`
	SubjectID     int64  `json:"subject_id"`
	ChatTitle     string `json:"chat_title,omitempty"`
	Text          string `json:"text,omitempty"`
	MediaRef      string `json:"media_ref,omitempty"`
	CallbackID    string `json:"callback_id,omitempty"`
	CallbackData  string `json:"callback_data,omitempty"`
	ReactionDelta int    `json:"reaction_delta,omitempty"`
	OriginAddress string `json:"origin_address,omitempty"`
}

// IsGroup reports whether the update originated in a group chat. Group
// identifiers are negative on the platform; direct chats are positive.
func (u Update) IsGroup() bool {
	return u.ChatID < 0
}

// Callback kinds, one per structured prefix on the wire.
type CallbackKind int

const (
	CallbackUnknown CallbackKind = iota
	CallbackOnboard
	CallbackAction
	CallbackSettings
	CallbackHelp
	CallbackVote
)

var callbackPrefixes = map[string]CallbackKind{
	"onboard":  CallbackOnboard,
	"action":   CallbackAction,
	"settings": CallbackSettings,
	"help":     CallbackHelp,
	"vote":     CallbackVote,
}

// Callback is decoded callback-button data: prefix_action[_entity].
// Decoding happens once at the router boundary so handlers never touch the
// raw string.
type Callback struct {
	Kind     CallbackKind
	Action   string
	EntityID string
}

// DecodeCallback parses callback-button data. The entity segment may
// itself contain underscores (UUIDs are split on the wire only at the
// first two separators).
func DecodeCallback(data string) (Callback, error) {
	parts := strings.SplitN(data, "_", 3)
	if len(parts) < 2 {
		return Callback{}, fmt.Errorf("malformed callback data %q", data)
	}
	kind, ok := callbackPrefixes[parts[0]]
	if !ok {
		return Callback{}, fmt.Errorf("unknown callback prefix %q", parts[0])
	}
	cb := Callback{Kind: kind, Action: parts[1]}
	if len(parts) == 3 {
		cb.EntityID = parts[2]
	}
	return cb, nil
}

// EncodeCallback builds callback-button data for outbound keyboards.
func EncodeCallback(prefix, action, entityID string) string {
	if entityID == "" {
		return prefix + "_" + action
	}
	return prefix + "_" + action + "_" + entityID
}
