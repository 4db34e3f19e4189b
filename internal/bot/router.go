package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"raidbot/internal/chat"
	"raidbot/internal/engine"
	"raidbot/internal/notify"
	"raidbot/internal/ratelimit"
)

// Router dispatches inbound updates. Construct the struct literally and
// call Handle for each update; all fields except Log and Now are required.
type Router struct {
	Engine    engine.Engine
	Store     *ConversationStore
	Groups    *GroupRegistry
	Limiter   *ratelimit.Limiter
	Transport chat.Transport
	Queue     *notify.Queue
	Log       *zap.Logger
	Now       func() time.Time
}

type commandHandler func(ctx context.Context, u chat.Update, args string) error

// commands maps the slash-command name, lowercase and without the
// leading slash, to its handler.
func (r *Router) commands() map[string]commandHandler {
	return map[string]commandHandler{
		"start":          r.cmdStart,
		"help":           r.cmdHelp,
		"link":           r.cmdLink,
		"twitter":        r.cmdTwitter,
		"facebook":       r.cmdFacebook,
		"raids":          r.cmdRaids,
		"complete":       r.cmdComplete,
		"bubbles":        r.cmdBubbles,
		"mybubble":       r.cmdMyBubble,
		"createraid":     r.cmdCreateRaid,
		"setbranding":    r.cmdSetBranding,
		"removebranding": r.cmdRemoveBranding,
		"cancel":         r.cmdCancel,
	}
}

// Handle processes one update. Errors from transport sends are logged
// and swallowed; engine errors surface to the subject as reply text.
func (r *Router) Handle(ctx context.Context, u chat.Update) {
	if u.IsGroup() {
		r.handleGroup(ctx, u)
		return
	}

	switch u.Kind {
	case chat.KindCallbackQuery:
		r.handleCallback(ctx, u)
	case chat.KindMessage:
		r.handleDirect(ctx, u)
	}
	// Reactions in direct chats carry no meaning; ignored.
}

// handleGroup registers the group as a broadcast target and credits
// daily engagement. Slash commands are not served in groups except the
// branding pair, which only admins reach anyway.
func (r *Router) handleGroup(ctx context.Context, u chat.Update) {
	if !r.Groups.Contains(u.ChatID) {
		if err := r.Engine.RegisterGroup(ctx, u.ChatID, u.ChatTitle); err != nil {
			r.logErr("register group", u, err)
		} else {
			r.Groups.Register(u.ChatID, "")
		}
	}

	switch u.Kind {
	case chat.KindReaction:
		if u.ReactionDelta > 0 {
			if _, err := r.Engine.AwardReactionPoints(ctx, u.SubjectID, u.ChatID); err != nil {
				r.logErr("award reaction", u, err)
			}
		}
	case chat.KindMessage:
		if name, args, ok := splitCommand(u.Text); ok {
			if name == "setbranding" || name == "removebranding" {
				r.runCommand(ctx, u, name, args)
			}
			return
		}
		if _, err := r.Engine.AwardMessagePoints(ctx, u.SubjectID, u.ChatID); err != nil {
			r.logErr("award message", u, err)
		}
	}
}

func (r *Router) handleDirect(ctx context.Context, u chat.Update) {
	if name, args, ok := splitCommand(u.Text); ok {
		r.runCommand(ctx, u, name, args)
		return
	}
	conv, ok := r.Store.Get(u.SubjectID)
	if !ok {
		// Free text outside a conversation is ignored.
		return
	}
	if err := r.continueConversation(ctx, u, conv); err != nil {
		r.logErr("conversation", u, err)
		r.reply(ctx, u, userMessage(err))
	}
}

func (r *Router) runCommand(ctx context.Context, u chat.Update, name, args string) {
	handler, ok := r.commands()[name]
	if !ok {
		// Unknown command. Stay quiet in groups, hint in DMs.
		if !u.IsGroup() {
			r.reply(ctx, u, "Unknown command. Try /help.")
		}
		return
	}
	// A fresh command cancels whatever conversation was in flight.
	if name != "cancel" {
		r.Store.Clear(u.SubjectID)
	}
	if err := handler(ctx, u, args); err != nil {
		r.logErr("command "+name, u, err)
		r.reply(ctx, u, userMessage(err))
	}
}

func (r *Router) handleCallback(ctx context.Context, u chat.Update) {
	cb, err := chat.DecodeCallback(u.CallbackData)
	if err != nil {
		r.answer(ctx, u, "")
		return
	}
	switch cb.Kind {
	case chat.CallbackOnboard:
		err = r.onboardCallback(ctx, u, cb)
	case chat.CallbackAction:
		err = r.actionCallback(ctx, u, cb)
	case chat.CallbackSettings:
		err = r.settingsCallback(ctx, u, cb)
	case chat.CallbackHelp:
		err = r.helpCallback(ctx, u, cb)
	case chat.CallbackVote:
		err = r.voteCallback(ctx, u, cb)
	default:
		r.answer(ctx, u, "")
		return
	}
	if err != nil {
		r.logErr("callback "+u.CallbackData, u, err)
		r.answer(ctx, u, userMessage(err))
	}
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Router) reply(ctx context.Context, u chat.Update, text string) {
	if text == "" {
		return
	}
	if _, err := r.Transport.SendText(ctx, u.ChatID, text, nil); err != nil {
		r.logErr("send", u, err)
	}
}

func (r *Router) answer(ctx context.Context, u chat.Update, text string) {
	if err := r.Transport.AnswerCallback(ctx, u.CallbackID, text); err != nil {
		r.logErr("answer callback", u, err)
	}
}

func (r *Router) logErr(op string, u chat.Update, err error) {
	if r.Log == nil {
		return
	}
	r.Log.Warn(op,
		zap.Int64("chat_id", u.ChatID),
		zap.Int64("subject_id", u.SubjectID),
		zap.Error(err))
}

// splitCommand parses "/name args", tolerating the bot-mention suffix
// "/name@botname" that group clients append.
func splitCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	rest := text[1:]
	if rest == "" {
		return "", "", false
	}
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		name, args = rest[:i], strings.TrimSpace(rest[i+1:])
	} else {
		name = rest
	}
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), args, name != ""
}

// userMessage maps engine errors to reply text. Unexpected errors get a
// generic line so internals never leak into chat.
func userMessage(err error) string {
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return ve.Hint
	}
	var nf engine.NotFoundError
	if errors.As(err, &nf) {
		return "Not found: " + nf.Kind + "."
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	var rl ratelimit.Error
	if errors.As(err, &rl) {
		return fmt.Sprintf("Slow down a little: the limit is %d per %s. Try again in %s.",
			rl.Limit, rl.Window, rl.RetryAfter.Round(time.Second))
	}
	return "Something went wrong. Please try again."
}
