package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"raidbot/internal/chat"
	"raidbot/internal/domain"
	"raidbot/internal/engine"
	"raidbot/internal/notify"
	"raidbot/internal/repo"
)

const helpText = `Here is what I can do:

/link <username> - link your marketplace account
/twitter <handle> - set your Twitter handle
/facebook <handle> - set your Facebook handle
/raids - list the active raids
/complete <raid> - submit proof for a raid
/bubbles - show your bubble balance
/cancel - abort the current conversation`

func (r *Router) cmdHelp(ctx context.Context, u chat.Update, _ string) error {
	kb := chat.Row(
		chat.Button{Text: "Raids", CallbackData: chat.EncodeCallback("help", "raids", "")},
		chat.Button{Text: "Bubbles", CallbackData: chat.EncodeCallback("help", "bubbles", "")},
	)
	_, err := r.Transport.SendText(ctx, u.ChatID, helpText, kb)
	return err
}

func (r *Router) helpCallback(ctx context.Context, u chat.Update, cb chat.Callback) error {
	var text string
	switch cb.Action {
	case "raids":
		text = "Raids are promotion pushes on social posts. Use /raids to see what is live, complete one on the platform, then submit your proof with /complete."
	case "bubbles":
		text = "Bubbles are the points you earn from approved raids and daily group activity. Check your balance with /bubbles."
	default:
		r.answer(ctx, u, "")
		return nil
	}
	r.answer(ctx, u, "")
	_, err := r.Transport.SendText(ctx, u.ChatID, text, nil)
	return err
}

// --- account linking and profile ---

func (r *Router) cmdLink(ctx context.Context, u chat.Update, args string) error {
	if args == "" {
		r.Store.Set(u.SubjectID, Conversation{Step: StepLinkUsername})
		r.reply(ctx, u, "What is your marketplace username?")
		return nil
	}
	user, err := r.Engine.LinkAccount(ctx, u.ChatID, args)
	if err != nil {
		return err
	}
	r.reply(ctx, u, fmt.Sprintf("Linked to %s. You are ready to raid.", user.Username))
	return nil
}

func (r *Router) cmdTwitter(ctx context.Context, u chat.Update, args string) error {
	if args == "" {
		r.Store.Set(u.SubjectID, Conversation{Step: StepTwitterHandle})
		r.reply(ctx, u, "What is your Twitter handle?")
		return nil
	}
	if _, err := r.Engine.UpdateProfile(ctx, u.ChatID, engine.ProfileUpdate{TwitterHandle: &args}); err != nil {
		return err
	}
	r.reply(ctx, u, "Twitter handle saved.")
	return nil
}

func (r *Router) cmdFacebook(ctx context.Context, u chat.Update, args string) error {
	if args == "" {
		r.Store.Set(u.SubjectID, Conversation{Step: StepFacebookHandle})
		r.reply(ctx, u, "What is your Facebook handle?")
		return nil
	}
	if _, err := r.Engine.UpdateProfile(ctx, u.ChatID, engine.ProfileUpdate{FacebookHandle: &args}); err != nil {
		return err
	}
	r.reply(ctx, u, "Facebook handle saved.")
	return nil
}

// --- raids ---

func (r *Router) cmdRaids(ctx context.Context, u chat.Update, _ string) error {
	raids, err := r.Engine.ListRaids(ctx, true)
	if err != nil {
		return err
	}
	if len(raids) == 0 {
		r.reply(ctx, u, "No active raids right now. Check back soon.")
		return nil
	}
	for _, raid := range raids {
		text := fmt.Sprintf("%s\n%s\nReward: %d bubbles · Votes: %d", raid.Title, raid.PostURL, raid.Reward, raid.Votes)
		kb := chat.Row(
			chat.Button{Text: "👍 Vote", CallbackData: chat.EncodeCallback("vote", "up", raid.ID)},
			chat.Button{Text: "I did it", CallbackData: chat.EncodeCallback("action", "complete", raid.ID)},
		)
		if _, err := r.Transport.SendText(ctx, u.ChatID, text, kb); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) cmdComplete(ctx context.Context, u chat.Update, args string) error {
	if args == "" {
		r.reply(ctx, u, "Tell me which raid: /complete <raid id>, or pick one from /raids.")
		return nil
	}
	return r.startProof(ctx, u, args)
}

func (r *Router) startProof(ctx context.Context, u chat.Update, raidID string) error {
	r.Store.Set(u.SubjectID, Conversation{
		Step:    StepCompleteProof,
		Payload: Payload{RaidID: raidID},
	})
	r.reply(ctx, u, "Send the link to your post or interaction as proof.")
	return nil
}

func (r *Router) actionCallback(ctx context.Context, u chat.Update, cb chat.Callback) error {
	switch cb.Action {
	case "complete":
		r.answer(ctx, u, "")
		return r.startProof(ctx, u, cb.EntityID)
	default:
		r.answer(ctx, u, "")
		return nil
	}
}

func (r *Router) voteCallback(ctx context.Context, u chat.Update, cb chat.Callback) error {
	if cb.Action != "up" {
		r.answer(ctx, u, "")
		return nil
	}
	votes, err := r.Engine.Vote(ctx, cb.EntityID, 1)
	if err != nil {
		return err
	}
	r.answer(ctx, u, fmt.Sprintf("Vote counted. %d so far.", votes))
	if r.Queue != nil {
		r.Queue.Enqueue(notify.Job{
			Kind: notify.KindVoteUpdate,
			Text: fmt.Sprintf("A raid just hit %d votes. See what is live with /raids.", votes),
		})
	}
	return nil
}

// --- balances ---

func (r *Router) cmdBubbles(ctx context.Context, u chat.Update, _ string) error {
	user, err := r.Engine.Repo.GetUserByChatID(ctx, u.ChatID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			r.reply(ctx, u, "You are not linked yet. Use /link <username> first.")
			return nil
		}
		return err
	}
	score, err := r.Engine.Trust(ctx, u.SubjectID)
	if err != nil {
		return err
	}
	r.reply(ctx, u, fmt.Sprintf("%s, you have %d bubbles. Trust level: %s.", user.Username, user.Bubbles, score.Level))
	return nil
}

func (r *Router) cmdMyBubble(ctx context.Context, u chat.Update, args string) error {
	return r.cmdBubbles(ctx, u, args)
}

// --- admin: raid creation ---

func (r *Router) cmdCreateRaid(ctx context.Context, u chat.Update, _ string) error {
	if err := r.requireAdmin(ctx, u); err != nil {
		return err
	}
	r.Store.Set(u.SubjectID, Conversation{Step: StepRaidTitle})
	r.reply(ctx, u, "Creating a raid. What is the title?")
	return nil
}

func (r *Router) requireAdmin(ctx context.Context, u chat.Update) error {
	user, err := r.Engine.Repo.GetUserByChatID(ctx, u.ChatID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return engine.ValidationError{Field: "account", Hint: "link your account first with /link"}
		}
		return err
	}
	if !user.IsAdmin {
		return engine.ValidationError{Field: "account", Hint: "this command is for admins"}
	}
	return nil
}

// --- group branding ---

func (r *Router) cmdSetBranding(ctx context.Context, u chat.Update, _ string) error {
	if err := r.requireAdmin(ctx, u); err != nil {
		return err
	}
	if !u.IsGroup() {
		r.reply(ctx, u, "Run /setbranding inside the group, attached to a photo.")
		return nil
	}
	if u.MediaRef == "" {
		r.reply(ctx, u, "Attach the photo you want as branding to the /setbranding command.")
		return nil
	}
	if err := r.Engine.SetBranding(ctx, u.ChatID, u.MediaRef); err != nil {
		return err
	}
	r.Groups.SetBranding(u.ChatID, u.MediaRef)
	r.reply(ctx, u, "Branding saved. Broadcasts to this group will carry it.")
	return nil
}

func (r *Router) cmdRemoveBranding(ctx context.Context, u chat.Update, _ string) error {
	if err := r.requireAdmin(ctx, u); err != nil {
		return err
	}
	if !u.IsGroup() {
		r.reply(ctx, u, "Run /removebranding inside the group.")
		return nil
	}
	if err := r.Engine.RemoveBranding(ctx, u.ChatID); err != nil {
		return err
	}
	r.Groups.SetBranding(u.ChatID, "")
	r.reply(ctx, u, "Branding removed.")
	return nil
}

func (r *Router) settingsCallback(ctx context.Context, u chat.Update, cb chat.Callback) error {
	switch cb.Action {
	case "removebranding":
		groupID, err := strconv.ParseInt(cb.EntityID, 10, 64)
		if err != nil {
			r.answer(ctx, u, "")
			return nil
		}
		if err := r.requireAdmin(ctx, u); err != nil {
			return err
		}
		if err := r.Engine.RemoveBranding(ctx, groupID); err != nil {
			return err
		}
		r.Groups.SetBranding(groupID, "")
		r.answer(ctx, u, "Branding removed.")
		return nil
	default:
		r.answer(ctx, u, "")
		return nil
	}
}

// --- misc ---

func (r *Router) cmdCancel(ctx context.Context, u chat.Update, _ string) error {
	if _, ok := r.Store.Get(u.SubjectID); !ok {
		r.reply(ctx, u, "Nothing to cancel.")
		return nil
	}
	r.Store.Clear(u.SubjectID)
	r.reply(ctx, u, "Cancelled.")
	return nil
}

// continueConversation feeds free text into the conversation the subject
// has in flight. Onboarding steps live in onboarding.go.
func (r *Router) continueConversation(ctx context.Context, u chat.Update, conv Conversation) error {
	text := strings.TrimSpace(u.Text)
	switch conv.Step {
	case StepLinkUsername:
		user, err := r.Engine.LinkAccount(ctx, u.ChatID, text)
		if err != nil {
			return err
		}
		r.Store.Clear(u.SubjectID)
		r.reply(ctx, u, fmt.Sprintf("Linked to %s. You are ready to raid.", user.Username))
		return nil

	case StepTwitterHandle:
		if _, err := r.Engine.UpdateProfile(ctx, u.ChatID, engine.ProfileUpdate{TwitterHandle: &text}); err != nil {
			return err
		}
		r.Store.Clear(u.SubjectID)
		r.reply(ctx, u, "Twitter handle saved.")
		return nil

	case StepFacebookHandle:
		if _, err := r.Engine.UpdateProfile(ctx, u.ChatID, engine.ProfileUpdate{FacebookHandle: &text}); err != nil {
			return err
		}
		r.Store.Clear(u.SubjectID)
		r.reply(ctx, u, "Facebook handle saved.")
		return nil

	case StepRaidTitle:
		conv.Payload.Title = text
		conv.Step = StepRaidURL
		r.Store.Set(u.SubjectID, conv)
		r.reply(ctx, u, "Got it. What is the post URL?")
		return nil

	case StepRaidURL:
		conv.Payload.PostURL = text
		conv.Step = StepRaidReward
		r.Store.Set(u.SubjectID, conv)
		r.reply(ctx, u, "How many bubbles is it worth?")
		return nil

	case StepRaidReward:
		reward, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return engine.ValidationError{Field: "reward", Hint: "send a whole number of bubbles"}
		}
		user, err := r.Engine.Repo.GetUserByChatID(ctx, u.ChatID)
		if err != nil {
			return err
		}
		raid, err := r.Engine.CreateRaid(ctx, engine.RaidCreateOptions{
			Title:   conv.Payload.Title,
			PostURL: conv.Payload.PostURL,
			Reward:  reward,
			ActorID: user.ID,
		})
		if err != nil {
			return err
		}
		r.Store.Clear(u.SubjectID)
		r.reply(ctx, u, fmt.Sprintf("Raid %q is live.", raid.Title))
		if r.Queue != nil {
			r.Queue.Enqueue(notify.Job{
				Kind: notify.KindRaidAnnouncement,
				Text: fmt.Sprintf("🚨 New raid: %s\n%s\nReward: %d bubbles. Submit proof with /complete.", raid.Title, raid.PostURL, raid.Reward),
				Pin:  true,
			})
		}
		return nil

	case StepCompleteProof:
		if err := r.Limiter.Allow(strconv.FormatInt(u.SubjectID, 10), u.OriginAddress); err != nil {
			return err
		}
		user, err := r.Engine.Repo.GetUserByChatID(ctx, u.ChatID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return engine.ValidationError{Field: "account", Hint: "link your account first with /link"}
			}
			return err
		}
		c, err := r.Engine.SubmitCompletion(ctx, engine.SubmitOptions{
			RaidID:             conv.Payload.RaidID,
			SubjectID:          u.SubjectID,
			PlatformUsername:   user.TwitterHandle,
			PostReference:      text,
			VerificationMethod: domain.VerifyManual,
			OriginAddress:      u.OriginAddress,
		})
		if err != nil {
			return err
		}
		r.Store.Clear(u.SubjectID)
		r.reply(ctx, u, fmt.Sprintf("Proof received for %s. You will get your bubbles once it is approved.", c.RaidID))
		return nil

	case StepOnboardLink, StepOnboardTwitter, StepOnboardFacebook:
		return r.onboardText(ctx, u, conv)

	case StepOnboardAccount, StepOnboardType:
		// These steps only take button answers.
		r.reply(ctx, u, "Tap one of the buttons above to answer, or /cancel.")
		return nil

	default:
		r.Store.Clear(u.SubjectID)
		return nil
	}
}
