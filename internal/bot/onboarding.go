package bot

import (
	"context"
	"fmt"

	"raidbot/internal/chat"
	"raidbot/internal/engine"
)

// The onboarding wizard walks a new subject through account linking,
// social handles and the account type, in that order. Linking happens as
// soon as the username is typed so the uniqueness check fires early;
// handles and the type accumulate in the conversation payload and are
// applied in one profile update at the end. Cancel discards everything
// not yet applied.

const welcomeText = `Welcome to the raid crew! 🫧

Do you already have a marketplace account?`

const raiderTips = `You're all set to raid. Watch the group for announcements, hit "I did it" after you engage, and your bubbles land once a mod approves the proof.`

const projectSetup = `You run a project, nice. Ask an admin for access, then use /createraid to post your first raid and /setbranding to put your banner on announcements.`

func (r *Router) cmdStart(ctx context.Context, u chat.Update, _ string) error {
	msgID, err := r.Transport.SendText(ctx, u.ChatID, welcomeText, accountKeyboard())
	if err != nil {
		return err
	}
	r.Store.Set(u.SubjectID, Conversation{Step: StepOnboardAccount, MessageID: msgID})
	return nil
}

func accountKeyboard() chat.Keyboard {
	return chat.Keyboard{
		[]chat.Button{
			{Text: "Yes, link it", CallbackData: chat.EncodeCallback("onboard", "has", "yes")},
			{Text: "Not yet", CallbackData: chat.EncodeCallback("onboard", "has", "no")},
		},
		[]chat.Button{
			{Text: "Cancel", CallbackData: chat.EncodeCallback("onboard", "cancel", "")},
		},
	}
}

func (r *Router) onboardCallback(ctx context.Context, u chat.Update, cb chat.Callback) error {
	conv, ok := r.Store.Get(u.SubjectID)
	if !ok {
		// Stale button from a finished or cancelled wizard.
		r.answer(ctx, u, "That conversation is over. Send /start to begin again.")
		return nil
	}
	r.answer(ctx, u, "")

	switch cb.Action {
	case "cancel":
		r.Store.Clear(u.SubjectID)
		return r.edit(ctx, u, conv, "Setup cancelled. Send /start whenever you are ready.", nil)

	case "has":
		if conv.Step != StepOnboardAccount {
			return nil
		}
		conv.Payload.NewAccount = cb.EntityID == "no"
		return r.onboardAdvance(ctx, u, conv, StepOnboardLink)

	case "type":
		if conv.Step != StepOnboardType {
			return nil
		}
		if cb.EntityID != "raider" && cb.EntityID != "project" {
			return nil
		}
		conv.Payload.UserType = cb.EntityID
		return r.finishOnboarding(ctx, u, conv)

	case "skip":
		switch conv.Step {
		case StepOnboardLink:
			return r.onboardAdvance(ctx, u, conv, StepOnboardTwitter)
		case StepOnboardTwitter:
			return r.onboardAdvance(ctx, u, conv, StepOnboardFacebook)
		case StepOnboardFacebook:
			return r.onboardAdvance(ctx, u, conv, StepOnboardType)
		case StepOnboardType:
			return r.finishOnboarding(ctx, u, conv)
		}
		return nil

	case "back":
		switch conv.Step {
		case StepOnboardLink:
			conv.Step = StepOnboardAccount
			r.Store.Set(u.SubjectID, conv)
			return r.edit(ctx, u, conv, welcomeText, accountKeyboard())
		case StepOnboardTwitter:
			return r.onboardAdvance(ctx, u, conv, StepOnboardLink)
		case StepOnboardFacebook:
			return r.onboardAdvance(ctx, u, conv, StepOnboardTwitter)
		case StepOnboardType:
			return r.onboardAdvance(ctx, u, conv, StepOnboardFacebook)
		}
		return nil
	}
	return nil
}

// onboardText consumes a typed answer at the username and handle steps.
func (r *Router) onboardText(ctx context.Context, u chat.Update, conv Conversation) error {
	switch conv.Step {
	case StepOnboardLink:
		user, err := r.Engine.LinkAccount(ctx, u.ChatID, u.Text)
		if err != nil {
			return err
		}
		conv.Payload.Username = user.Username
		return r.onboardAdvance(ctx, u, conv, StepOnboardTwitter)

	case StepOnboardTwitter:
		conv.Payload.Twitter = u.Text
		return r.onboardAdvance(ctx, u, conv, StepOnboardFacebook)

	case StepOnboardFacebook:
		conv.Payload.Facebook = u.Text
		return r.onboardAdvance(ctx, u, conv, StepOnboardType)
	}
	return nil
}

// finishOnboarding applies the collected answers and closes the wizard.
// Handles and the type only persist when an account got linked; a subject
// who skipped the username step keeps a clean slate and can /link later.
func (r *Router) finishOnboarding(ctx context.Context, u chat.Update, conv Conversation) error {
	p := conv.Payload
	if p.Username != "" {
		upd := engine.ProfileUpdate{}
		if p.UserType != "" {
			upd.UserType = &p.UserType
		}
		if p.Twitter != "" {
			upd.TwitterHandle = &p.Twitter
		}
		if p.Facebook != "" {
			upd.FacebookHandle = &p.Facebook
		}
		if _, err := r.Engine.UpdateProfile(ctx, u.ChatID, upd); err != nil {
			return err
		}
	}
	r.Store.Clear(u.SubjectID)

	var done string
	switch p.UserType {
	case "project":
		done = projectSetup
	case "raider":
		done = raiderTips
	default:
		done = "You're in."
	}
	if p.Username != "" {
		done = fmt.Sprintf("All set, %s! 🎉\n\n%s\n\n%s", p.Username, done, helpText)
	} else {
		done = fmt.Sprintf("%s\n\nLink your marketplace account any time with /link <username>.\n\n%s", done, helpText)
	}
	_, err := r.Transport.SendText(ctx, u.ChatID, done, nil)
	return err
}

// onboardAdvance moves the wizard to the given step and repaints the
// wizard message in place.
func (r *Router) onboardAdvance(ctx context.Context, u chat.Update, conv Conversation, step Step) error {
	conv.Step = step
	r.Store.Set(u.SubjectID, conv)

	nav := []chat.Button{
		{Text: "Back", CallbackData: chat.EncodeCallback("onboard", "back", "")},
		{Text: "Skip", CallbackData: chat.EncodeCallback("onboard", "skip", "")},
		{Text: "Cancel", CallbackData: chat.EncodeCallback("onboard", "cancel", "")},
	}

	switch step {
	case StepOnboardLink:
		text := "What is your marketplace username?"
		if conv.Payload.NewAccount {
			text = "Pick a marketplace username and type it here. We will create the account for you."
		}
		return r.edit(ctx, u, conv, text, chat.Keyboard{nav})
	case StepOnboardTwitter:
		return r.edit(ctx, u, conv, "What is your Twitter handle? Type it, or skip.", chat.Keyboard{nav})
	case StepOnboardFacebook:
		return r.edit(ctx, u, conv, "What is your Facebook handle? Type it, or skip.", chat.Keyboard{nav})
	case StepOnboardType:
		kb := chat.Keyboard{
			[]chat.Button{
				{Text: "I'm a raider", CallbackData: chat.EncodeCallback("onboard", "type", "raider")},
				{Text: "I run a project", CallbackData: chat.EncodeCallback("onboard", "type", "project")},
			},
			nav,
		}
		return r.edit(ctx, u, conv, "Last one: are you here to raid, or do you run a project?", kb)
	}
	return nil
}

// edit repaints the wizard message, falling back to a fresh message when
// the original cannot be edited any more.
func (r *Router) edit(ctx context.Context, u chat.Update, conv Conversation, text string, kb chat.Keyboard) error {
	if conv.MessageID != 0 {
		if err := r.Transport.EditText(ctx, u.ChatID, conv.MessageID, text, kb); err == nil {
			return nil
		}
	}
	msgID, err := r.Transport.SendText(ctx, u.ChatID, text, kb)
	if err != nil {
		return err
	}
	if _, ok := r.Store.Get(u.SubjectID); ok {
		conv.MessageID = msgID
		r.Store.Set(u.SubjectID, conv)
	}
	return nil
}
