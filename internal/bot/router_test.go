package bot_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"raidbot/internal/bot"
	"raidbot/internal/chat"
	"raidbot/internal/config"
	"raidbot/internal/db"
	"raidbot/internal/engine"
	"raidbot/internal/migrate"
	"raidbot/internal/ratelimit"
)

// fakeTransport records outbound calls. Failing chat ids error on send.
type fakeTransport struct {
	mu      sync.Mutex
	nextID  int64
	sent    []sentText
	edits   []sentText
	deleted []int64
	pinned  []int64
	failing map[int64]bool
}

type sentText struct {
	ChatID   int64
	Text     string
	Keyboard chat.Keyboard
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failing: make(map[int64]bool)}
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, text string, kb chat.Keyboard) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[chatID] {
		return 0, chat.TransportError{Op: "sendMessage", ChatID: chatID, Err: fmt.Errorf("kicked")}
	}
	f.nextID++
	f.sent = append(f.sent, sentText{ChatID: chatID, Text: text, Keyboard: kb})
	return f.nextID, nil
}

func (f *fakeTransport) SendMedia(ctx context.Context, chatID int64, _, caption string, kb chat.Keyboard) (int64, error) {
	return f.SendText(ctx, chatID, caption, kb)
}

func (f *fakeTransport) EditText(_ context.Context, chatID, messageID int64, text string, kb chat.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentText{ChatID: chatID, Text: text, Keyboard: kb})
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, _ int64, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeTransport) PinMessage(_ context.Context, _ int64, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = append(f.pinned, messageID)
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, _, _ string) error { return nil }

func (f *fakeTransport) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type botEnv struct {
	Router    *bot.Router
	Transport *fakeTransport
	Engine    engine.Engine
	Ctx       context.Context
}

func newBotEnv(t *testing.T) botEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	transport := newFakeTransport()
	router := &bot.Router{
		Engine:    eng,
		Store:     bot.NewConversationStore(nil),
		Groups:    bot.NewGroupRegistry(),
		Limiter:   ratelimit.New(ratelimit.Config{}),
		Transport: transport,
		Log:       zap.NewNop(),
	}
	return botEnv{Router: router, Transport: transport, Engine: eng, Ctx: context.Background()}
}

func dm(subject int64, text string) chat.Update {
	return chat.Update{Kind: chat.KindMessage, ChatID: subject, SubjectID: subject, Text: text}
}

func TestLinkCommandWithArgument(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/link alice"))
	if !strings.Contains(env.Transport.lastText(), "alice") {
		t.Fatalf("reply = %q", env.Transport.lastText())
	}
	if _, err := env.Engine.Repo.GetUserByChatID(env.Ctx, 100); err != nil {
		t.Fatalf("user not stored: %v", err)
	}
}

func TestLinkCommandConversation(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/link"))
	env.Router.Handle(env.Ctx, dm(100, "alice"))
	if _, err := env.Engine.Repo.GetUserByChatID(env.Ctx, 100); err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	// Conversation is finished; stray text is ignored now.
	before := env.Transport.sentCount()
	env.Router.Handle(env.Ctx, dm(100, "hello?"))
	if env.Transport.sentCount() != before {
		t.Fatal("free text outside a conversation should be ignored")
	}
}

func TestUnknownCommandHintInDM(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/frobnicate"))
	if !strings.Contains(env.Transport.lastText(), "/help") {
		t.Fatalf("reply = %q", env.Transport.lastText())
	}
}

func TestCommandCancelsConversation(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/link"))
	env.Router.Handle(env.Ctx, dm(100, "/help"))
	// The pending link conversation must be gone.
	before := env.Transport.sentCount()
	env.Router.Handle(env.Ctx, dm(100, "alice"))
	if env.Transport.sentCount() != before {
		t.Fatal("conversation should have been cancelled by /help")
	}
}

func TestCancelCommand(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/link"))
	env.Router.Handle(env.Ctx, dm(100, "/cancel"))
	if env.Transport.lastText() != "Cancelled." {
		t.Fatalf("reply = %q", env.Transport.lastText())
	}
	env.Router.Handle(env.Ctx, dm(100, "/cancel"))
	if env.Transport.lastText() != "Nothing to cancel." {
		t.Fatalf("reply = %q", env.Transport.lastText())
	}
}

func TestGroupMessageRegistersAndAwards(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/link alice"))

	env.Router.Handle(env.Ctx, chat.Update{
		Kind: chat.KindMessage, ChatID: -500, SubjectID: 100, ChatTitle: "Raid Den", Text: "gm everyone",
	})
	if !env.Router.Groups.Contains(-500) {
		t.Fatal("group not registered as broadcast target")
	}
	g, err := env.Engine.Repo.GetGroup(env.Ctx, -500)
	if err != nil || !g.Active {
		t.Fatalf("group not persisted: %+v %v", g, err)
	}
	u, _ := env.Engine.Repo.GetUserByChatID(env.Ctx, 100)
	if u.Bubbles != env.Engine.Config.Rewards.MessagePoints {
		t.Fatalf("bubbles = %d, want %d", u.Bubbles, env.Engine.Config.Rewards.MessagePoints)
	}

	// Same day, second message: no further award.
	env.Router.Handle(env.Ctx, chat.Update{Kind: chat.KindMessage, ChatID: -500, SubjectID: 100, Text: "gm again"})
	u, _ = env.Engine.Repo.GetUserByChatID(env.Ctx, 100)
	if u.Bubbles != env.Engine.Config.Rewards.MessagePoints {
		t.Fatalf("second message awarded again: %d", u.Bubbles)
	}
}

func TestGroupReactionAwards(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/link alice"))
	env.Router.Handle(env.Ctx, chat.Update{Kind: chat.KindReaction, ChatID: -500, SubjectID: 100, ReactionDelta: 1})
	u, _ := env.Engine.Repo.GetUserByChatID(env.Ctx, 100)
	if u.Bubbles != env.Engine.Config.Rewards.ReactionPoints {
		t.Fatalf("bubbles = %d, want %d", u.Bubbles, env.Engine.Config.Rewards.ReactionPoints)
	}
	// Removing a reaction never awards.
	env.Router.Handle(env.Ctx, chat.Update{Kind: chat.KindReaction, ChatID: -500, SubjectID: 200, ReactionDelta: -1})
	if _, err := env.Engine.Repo.GetDailyEngagement(env.Ctx, 200, -500, "2026-03-01"); err == nil {
		t.Fatal("negative delta must not create an engagement record")
	}
}

func TestCompleteFlowSubmitsPending(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/link alice"))
	raid, err := env.Engine.CreateRaid(env.Ctx, engine.RaidCreateOptions{
		Title: "Retweet", PostURL: "https://x.com/p/1", Reward: 10, ActorID: "admin",
	})
	if err != nil {
		t.Fatalf("create raid: %v", err)
	}

	env.Router.Handle(env.Ctx, dm(100, "/complete "+raid.ID))
	env.Router.Handle(env.Ctx, dm(100, "https://x.com/alice/status/1"))
	if !strings.Contains(env.Transport.lastText(), "Proof received") {
		t.Fatalf("reply = %q", env.Transport.lastText())
	}

	pending, err := env.Engine.PendingCompletions(env.Ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v", pending, err)
	}
	if pending[0].SubjectID != 100 || pending[0].RaidID != raid.ID {
		t.Fatalf("unexpected completion: %+v", pending[0])
	}
}

func TestCompleteViaCallbackButton(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/link alice"))
	raid, err := env.Engine.CreateRaid(env.Ctx, engine.RaidCreateOptions{
		Title: "Retweet", PostURL: "https://x.com/p/1", Reward: 10, ActorID: "admin",
	})
	if err != nil {
		t.Fatalf("create raid: %v", err)
	}
	env.Router.Handle(env.Ctx, chat.Update{
		Kind: chat.KindCallbackQuery, ChatID: 100, SubjectID: 100,
		CallbackID: "cb-1", CallbackData: "action_complete_" + raid.ID,
	})
	if !strings.Contains(env.Transport.lastText(), "proof") {
		t.Fatalf("reply = %q", env.Transport.lastText())
	}
	env.Router.Handle(env.Ctx, dm(100, "https://x.com/alice/status/1"))
	pending, _ := env.Engine.PendingCompletions(env.Ctx)
	if len(pending) != 1 {
		t.Fatalf("pending = %d", len(pending))
	}
}

func TestVoteCallback(t *testing.T) {
	env := newBotEnv(t)
	raid, err := env.Engine.CreateRaid(env.Ctx, engine.RaidCreateOptions{
		Title: "Retweet", PostURL: "https://x.com/p/1", Reward: 10, ActorID: "admin",
	})
	if err != nil {
		t.Fatalf("create raid: %v", err)
	}
	env.Router.Handle(env.Ctx, chat.Update{
		Kind: chat.KindCallbackQuery, ChatID: 100, SubjectID: 100,
		CallbackID: "cb-1", CallbackData: "vote_up_" + raid.ID,
	})
	got, err := env.Engine.Repo.GetRaid(env.Ctx, raid.ID)
	if err != nil {
		t.Fatalf("get raid: %v", err)
	}
	if got.Votes != 1 {
		t.Fatalf("votes = %d, want 1", got.Votes)
	}
}

func TestRateLimitedProofSubmission(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Limiter = ratelimit.New(ratelimit.Config{SubjectLimit: 1, SubjectWindow: time.Hour})
	env.Router.Handle(env.Ctx, dm(100, "/link alice"))
	for i := 0; i < 2; i++ {
		raid, err := env.Engine.CreateRaid(env.Ctx, engine.RaidCreateOptions{
			Title: "r", PostURL: "https://x.com/p/1", Reward: 1, ActorID: "admin",
		})
		if err != nil {
			t.Fatalf("create raid: %v", err)
		}
		env.Router.Handle(env.Ctx, dm(100, "/complete "+raid.ID))
		env.Router.Handle(env.Ctx, dm(100, "https://x.com/alice/status/1"))
	}
	if !strings.Contains(env.Transport.lastText(), "Slow down") {
		t.Fatalf("reply = %q", env.Transport.lastText())
	}
	// The reply names the limit so the subject knows the budget.
	if !strings.Contains(env.Transport.lastText(), "1 per 1h0m0s") {
		t.Fatalf("reply should state the limit, got %q", env.Transport.lastText())
	}
	pending, _ := env.Engine.PendingCompletions(env.Ctx)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
}
