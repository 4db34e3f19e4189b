package bot_test

import (
	"testing"

	"raidbot/internal/bot"
)

func TestConversationStoreLastWriteWins(t *testing.T) {
	s := bot.NewConversationStore(nil)

	s.Set(100, bot.Conversation{Step: bot.StepLinkUsername})
	s.Set(100, bot.Conversation{Step: bot.StepRaidTitle, Payload: bot.Payload{Title: "x"}})

	conv, ok := s.Get(100)
	if !ok {
		t.Fatal("conversation missing")
	}
	if conv.Step != bot.StepRaidTitle || conv.Payload.Title != "x" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	s.Clear(100)
	if _, ok := s.Get(100); ok {
		t.Fatal("conversation should be cleared")
	}
	// Clearing an absent subject is a no-op.
	s.Clear(200)
}

func TestConversationStorePerSubject(t *testing.T) {
	s := bot.NewConversationStore(nil)
	s.Set(100, bot.Conversation{Step: bot.StepLinkUsername})
	s.Set(200, bot.Conversation{Step: bot.StepCompleteProof})

	a, _ := s.Get(100)
	b, _ := s.Get(200)
	if a.Step != bot.StepLinkUsername || b.Step != bot.StepCompleteProof {
		t.Fatalf("states crossed: %v %v", a.Step, b.Step)
	}
}

func TestGroupRegistryEvict(t *testing.T) {
	r := bot.NewGroupRegistry()
	var evicted []int64
	r.Deactivate = func(id int64) { evicted = append(evicted, id) }

	r.Register(-1, "")
	r.Register(-2, "photo-ref")
	if got := r.Targets(); len(got) != 2 || got[0] != -2 || got[1] != -1 {
		t.Fatalf("targets = %v", got)
	}
	if r.Branding(-2) != "photo-ref" {
		t.Fatalf("branding = %q", r.Branding(-2))
	}

	// Re-registering without branding keeps the cached ref.
	r.Register(-2, "")
	if r.Branding(-2) != "photo-ref" {
		t.Fatal("branding lost on re-register")
	}

	r.Evict(-2)
	if r.Contains(-2) {
		t.Fatal("evicted group still present")
	}
	if len(evicted) != 1 || evicted[0] != -2 {
		t.Fatalf("deactivate hook calls = %v", evicted)
	}
	// Evicting twice fires the hook once.
	r.Evict(-2)
	if len(evicted) != 1 {
		t.Fatalf("deactivate hook calls = %v", evicted)
	}
}
