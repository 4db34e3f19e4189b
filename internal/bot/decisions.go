package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"raidbot/internal/domain"
	"raidbot/internal/notify"
)

// RejectionNotice is the subject-facing text for a rejected completion.
func RejectionNotice(c domain.Completion, raidTitle string) string {
	if raidTitle == "" {
		raidTitle = c.RaidID
	}
	text := fmt.Sprintf("Your proof for %q was rejected.", raidTitle)
	if c.RejectionReason != nil && *c.RejectionReason != "" {
		text += " Reason: " + *c.RejectionReason + "."
	}
	return text
}

// NotifyRejection tells the subject their proof was turned down, with the
// moderator's reason when one was given. Delivery is best effort: a
// failed send is logged and the rejection stands.
func (r *Router) NotifyRejection(ctx context.Context, c domain.Completion) {
	var title string
	if raid, err := r.Engine.Repo.GetRaid(ctx, c.RaidID); err == nil {
		title = raid.Title
	}
	if _, err := r.Transport.SendText(ctx, c.SubjectID, RejectionNotice(c, title), nil); err != nil {
		if r.Log != nil {
			r.Log.Warn("rejection notice undelivered",
				zap.String("completion_id", c.ID),
				zap.Int64("subject_id", c.SubjectID),
				zap.Error(err))
		}
	}
}

// AnnounceApproval queues a completion summary broadcast for the active
// groups.
func (r *Router) AnnounceApproval(ctx context.Context, c domain.Completion) {
	if r.Queue == nil {
		return
	}
	who := c.PlatformUsername
	if u, err := r.Engine.Repo.GetUserByChatID(ctx, c.SubjectID); err == nil {
		who = u.Username
	}
	if who == "" {
		who = "a raider"
	}
	text := fmt.Sprintf("✅ %s finished a raid. 🫧", who)
	if raid, err := r.Engine.Repo.GetRaid(ctx, c.RaidID); err == nil {
		text = fmt.Sprintf("✅ %s finished %q and earned %d bubbles. 🫧", who, raid.Title, raid.Reward)
	}
	r.Queue.Enqueue(notify.Job{Kind: notify.KindCompletionSummary, Text: text})
}
