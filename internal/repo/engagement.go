package repo

import (
	"context"
	"database/sql"

	"raidbot/internal/domain"
)

// MarkMessagedTx sets the has_messaged flag for (subject, group, day),
// creating the record if needed. Returns false when the flag was already
// set, including when a concurrent creator won the insert race; the
// conditional update absorbs that as "already awarded today".
func (r Repo) MarkMessagedTx(ctx context.Context, tx *sql.Tx, subjectID, groupID int64, dateKey string, points int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO daily_engagement(subject_id,group_id,date_key,has_messaged,has_reacted,message_points,reaction_points)
VALUES (?,?,?,1,0,?,0)
ON CONFLICT(subject_id,group_id,date_key) DO UPDATE SET has_messaged=1, message_points=?
WHERE daily_engagement.has_messaged=0`,
		subjectID, groupID, dateKey, points, points)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkReactedTx is the reaction-category counterpart of MarkMessagedTx.
func (r Repo) MarkReactedTx(ctx context.Context, tx *sql.Tx, subjectID, groupID int64, dateKey string, points int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO daily_engagement(subject_id,group_id,date_key,has_messaged,has_reacted,message_points,reaction_points)
VALUES (?,?,?,0,1,0,?)
ON CONFLICT(subject_id,group_id,date_key) DO UPDATE SET has_reacted=1, reaction_points=?
WHERE daily_engagement.has_reacted=0`,
		subjectID, groupID, dateKey, points, points)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) GetDailyEngagement(ctx context.Context, subjectID, groupID int64, dateKey string) (domain.DailyEngagement, error) {
	var d domain.DailyEngagement
	var messaged, reacted int
	err := r.DB.QueryRowContext(ctx, `SELECT subject_id,group_id,date_key,has_messaged,has_reacted,message_points,reaction_points
FROM daily_engagement WHERE subject_id=? AND group_id=? AND date_key=?`, subjectID, groupID, dateKey).
		Scan(&d.SubjectID, &d.GroupID, &d.DateKey, &messaged, &reacted, &d.MessagePoints, &d.ReactionPoints)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.HasMessaged = messaged != 0
	d.HasReacted = reacted != 0
	return d, nil
}

// DailySummary holds aggregate engagement for one group and day.
type DailySummary struct {
	GroupID        int64
	DateKey        string
	ActiveSubjects int
	MessagePoints  int64
	ReactionPoints int64
}

func (r Repo) SummarizeEngagement(ctx context.Context, groupID int64, dateKey string) (DailySummary, error) {
	s := DailySummary{GroupID: groupID, DateKey: dateKey}
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(message_points),0), COALESCE(SUM(reaction_points),0)
FROM daily_engagement WHERE group_id=? AND date_key=?`, groupID, dateKey).
		Scan(&s.ActiveSubjects, &s.MessagePoints, &s.ReactionPoints)
	return s, err
}
