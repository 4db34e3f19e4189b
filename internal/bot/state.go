// Package bot routes inbound chat updates to commands, multi-step
// conversations and the onboarding wizard.
package bot

import (
	"sync"
	"time"
)

// Step identifies where a subject is inside a multi-step conversation.
type Step string

const (
	StepNone Step = ""

	StepLinkUsername   Step = "link_username"
	StepTwitterHandle  Step = "twitter_handle"
	StepFacebookHandle Step = "facebook_handle"

	StepRaidTitle  Step = "raid_title"
	StepRaidURL    Step = "raid_url"
	StepRaidReward Step = "raid_reward"

	StepCompleteProof Step = "complete_proof"

	StepOnboardAccount  Step = "onboard_account"
	StepOnboardLink     Step = "onboard_link"
	StepOnboardTwitter  Step = "onboard_twitter"
	StepOnboardFacebook Step = "onboard_facebook"
	StepOnboardType     Step = "onboard_type"
)

// Payload carries the answers a wizard has collected so far. Only the
// fields relevant to the active flow are ever set; the zero value means
// the answer was skipped or not reached yet.
type Payload struct {
	RaidID  string
	Title   string
	PostURL string

	NewAccount bool
	Username   string
	Twitter    string
	Facebook   string
	UserType   string
}

// Conversation is the per-subject wizard state.
type Conversation struct {
	Step      Step
	Payload   Payload
	MessageID int64
	UpdatedAt time.Time
}

// ConversationStore keeps at most one conversation per subject.
// Writes are last-write-wins; a new command simply replaces whatever
// conversation was in flight.
type ConversationStore struct {
	mu  sync.Mutex
	now func() time.Time

	conversations map[int64]Conversation
}

func NewConversationStore(now func() time.Time) *ConversationStore {
	if now == nil {
		now = time.Now
	}
	return &ConversationStore{
		now:           now,
		conversations: make(map[int64]Conversation),
	}
}

// Set replaces the subject's conversation.
func (s *ConversationStore) Set(subjectID int64, conv Conversation) {
	conv.UpdatedAt = s.now()
	s.mu.Lock()
	s.conversations[subjectID] = conv
	s.mu.Unlock()
}

// Get returns the subject's conversation, reporting whether one exists.
func (s *ConversationStore) Get(subjectID int64) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[subjectID]
	return conv, ok
}

// Clear drops the subject's conversation, if any.
func (s *ConversationStore) Clear(subjectID int64) {
	s.mu.Lock()
	delete(s.conversations, subjectID)
	s.mu.Unlock()
}
