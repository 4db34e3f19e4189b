package bot_test

import (
	"strings"
	"testing"

	"raidbot/internal/bot"
	"raidbot/internal/chat"
)

func callback(subject int64, data string) chat.Update {
	return chat.Update{
		Kind: chat.KindCallbackQuery, ChatID: subject, SubjectID: subject,
		CallbackID: "cb", CallbackData: data,
	}
}

func TestOnboardingFullFlow(t *testing.T) {
	env := newBotEnv(t)

	env.Router.Handle(env.Ctx, dm(100, "/start"))
	if !strings.Contains(env.Transport.lastText(), "Welcome") {
		t.Fatalf("welcome = %q", env.Transport.lastText())
	}

	env.Router.Handle(env.Ctx, callback(100, "onboard_has_yes"))
	env.Router.Handle(env.Ctx, dm(100, "alice"))
	env.Router.Handle(env.Ctx, dm(100, "@alice_tw"))
	env.Router.Handle(env.Ctx, callback(100, "onboard_skip")) // no facebook
	env.Router.Handle(env.Ctx, callback(100, "onboard_type_raider"))

	if !strings.Contains(env.Transport.lastText(), "All set, alice") {
		t.Fatalf("summary = %q", env.Transport.lastText())
	}
	u, err := env.Engine.Repo.GetUserByChatID(env.Ctx, 100)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if u.Username != "alice" || u.UserType != "raider" || u.TwitterHandle != "alice_tw" || u.FacebookHandle != "" {
		t.Fatalf("unexpected profile: %+v", u)
	}
	// Wizard is finished.
	if _, ok := env.Router.Store.Get(100); ok {
		t.Fatal("conversation should be cleared after completion")
	}
}

func TestOnboardingBack(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/start"))
	env.Router.Handle(env.Ctx, callback(100, "onboard_has_yes"))
	env.Router.Handle(env.Ctx, dm(100, "alice"))
	env.Router.Handle(env.Ctx, callback(100, "onboard_skip")) // at facebook
	env.Router.Handle(env.Ctx, callback(100, "onboard_back")) // back to twitter
	env.Router.Handle(env.Ctx, dm(100, "alice_tw"))
	env.Router.Handle(env.Ctx, callback(100, "onboard_skip"))
	env.Router.Handle(env.Ctx, callback(100, "onboard_type_raider"))

	u, err := env.Engine.Repo.GetUserByChatID(env.Ctx, 100)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if u.TwitterHandle != "alice_tw" {
		t.Fatalf("twitter = %q", u.TwitterHandle)
	}
}

func TestOnboardingCancelBeforeLink(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/start"))
	env.Router.Handle(env.Ctx, callback(100, "onboard_has_yes"))
	env.Router.Handle(env.Ctx, callback(100, "onboard_cancel"))

	if _, ok := env.Router.Store.Get(100); ok {
		t.Fatal("conversation should be gone after cancel")
	}
	// Nothing was persisted: the account never linked.
	if _, err := env.Engine.Repo.GetUserByChatID(env.Ctx, 100); err == nil {
		t.Fatal("cancelled wizard must not create a user")
	}
}

func TestOnboardingSkipUsername(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/start"))
	env.Router.Handle(env.Ctx, callback(100, "onboard_has_no"))
	env.Router.Handle(env.Ctx, callback(100, "onboard_skip")) // no username
	env.Router.Handle(env.Ctx, callback(100, "onboard_skip")) // no twitter
	env.Router.Handle(env.Ctx, callback(100, "onboard_skip")) // no facebook
	env.Router.Handle(env.Ctx, callback(100, "onboard_type_raider"))

	if !strings.Contains(env.Transport.lastText(), "/link") {
		t.Fatalf("summary should point at /link, got %q", env.Transport.lastText())
	}
	// Without a linked account no profile exists to persist the type.
	if _, err := env.Engine.Repo.GetUserByChatID(env.Ctx, 100); err == nil {
		t.Fatal("skipped username must not create a user")
	}
	if _, ok := env.Router.Store.Get(100); ok {
		t.Fatal("conversation should be cleared after completion")
	}
}

func TestOnboardingTypedTextAtButtonStep(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(100, "/start"))
	// The account question wants a button press, not text.
	env.Router.Handle(env.Ctx, dm(100, "yes"))
	if !strings.Contains(env.Transport.lastText(), "buttons") {
		t.Fatalf("reprompt = %q", env.Transport.lastText())
	}
	conv, ok := env.Router.Store.Get(100)
	if !ok || conv.Step != bot.StepOnboardAccount {
		t.Fatalf("wizard should stay at the account step, got %+v ok=%v", conv, ok)
	}
}

func TestOnboardingStaleCallback(t *testing.T) {
	env := newBotEnv(t)
	// Button press with no wizard in flight.
	env.Router.Handle(env.Ctx, callback(100, "onboard_has_yes"))
	if _, ok := env.Router.Store.Get(100); ok {
		t.Fatal("stale callback must not start a conversation")
	}
}

func TestOnboardingLinkConflictKeepsWizard(t *testing.T) {
	env := newBotEnv(t)
	env.Router.Handle(env.Ctx, dm(200, "/link alice"))

	env.Router.Handle(env.Ctx, dm(100, "/start"))
	env.Router.Handle(env.Ctx, callback(100, "onboard_has_yes"))
	env.Router.Handle(env.Ctx, dm(100, "alice")) // taken

	if !strings.Contains(env.Transport.lastText(), "already linked") {
		t.Fatalf("reply = %q", env.Transport.lastText())
	}
	// Still at the username step; a free name succeeds.
	env.Router.Handle(env.Ctx, dm(100, "bob"))
	if _, err := env.Engine.Repo.GetUserByChatID(env.Ctx, 100); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	// The wizard moved on to the handle steps.
	env.Router.Handle(env.Ctx, callback(100, "onboard_skip"))
	env.Router.Handle(env.Ctx, callback(100, "onboard_skip"))
	env.Router.Handle(env.Ctx, callback(100, "onboard_type_project"))
	u, err := env.Engine.Repo.GetUserByChatID(env.Ctx, 100)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if u.UserType != "project" {
		t.Fatalf("user type = %q", u.UserType)
	}
}
