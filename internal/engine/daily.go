package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"raidbot/internal/events"
	"raidbot/internal/repo"
)

// DateKey formats a calendar day for the engagement ledger.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// AwardMessagePoints credits the once-per-day message award for a subject
// in a group. Returns the credited amount, or 0 when today's award was
// already taken. A concurrent creator losing the insert race gets the same
// "already awarded" result, not an error.
func (e Engine) AwardMessagePoints(ctx context.Context, subjectID, groupID int64) (int64, error) {
	return e.awardDaily(ctx, subjectID, groupID, "message", e.Config.Rewards.MessagePoints)
}

// AwardReactionPoints is the reaction-category counterpart.
func (e Engine) AwardReactionPoints(ctx context.Context, subjectID, groupID int64) (int64, error) {
	return e.awardDaily(ctx, subjectID, groupID, "reaction", e.Config.Rewards.ReactionPoints)
}

func (e Engine) awardDaily(ctx context.Context, subjectID, groupID int64, category string, points int64) (int64, error) {
	if points <= 0 {
		return 0, nil
	}
	dateKey := DateKey(e.now())
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, StorageError{Err: err}
	}
	defer tx.Rollback()

	var awarded bool
	switch category {
	case "message":
		awarded, err = e.Repo.MarkMessagedTx(ctx, tx, subjectID, groupID, dateKey, points)
	case "reaction":
		awarded, err = e.Repo.MarkReactedTx(ctx, tx, subjectID, groupID, dateKey, points)
	}
	if err != nil {
		return 0, StorageError{Err: err}
	}
	if !awarded {
		return 0, nil
	}
	if err := e.Repo.CreditBubblesTx(ctx, tx, subjectID, points); err != nil {
		// Unlinked subjects still get their engagement record; the
		// balance credit only applies to linked accounts.
		if !errors.Is(err, repo.ErrNotFound) {
			return 0, StorageError{Err: err}
		}
	}
	if err := e.Events.Append(ctx, tx, "engagement."+category, subjectID, "group", strconv.FormatInt(groupID, 10), "raidbot", events.Payload{
		"date":   dateKey,
		"points": points,
	}); err != nil {
		return 0, StorageError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, StorageError{Err: err}
	}
	return points, nil
}
