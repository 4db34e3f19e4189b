package repo

import (
	"context"
	"database/sql"

	"raidbot/internal/domain"
)

const completionColumns = `id,raid_id,subject_id,platform_username,post_reference,verification_method,verified,approval_status,approved_by,approved_at,rejection_reason,reward_issued,origin_address,completed_at`

func scanCompletionRow(scan func(...any) error) (domain.Completion, error) {
	var c domain.Completion
	var verified, rewardIssued int
	var approvedBy, approvedAt, rejectionReason, origin sql.NullString
	err := scan(&c.ID, &c.RaidID, &c.SubjectID, &c.PlatformUsername, &c.PostReference, &c.VerificationMethod,
		&verified, &c.ApprovalStatus, &approvedBy, &approvedAt, &rejectionReason, &rewardIssued, &origin, &c.CompletedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Verified = verified != 0
	c.RewardIssued = rewardIssued != 0
	if approvedBy.Valid {
		c.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		c.ApprovedAt = &approvedAt.String
	}
	if rejectionReason.Valid {
		c.RejectionReason = &rejectionReason.String
	}
	if origin.Valid {
		c.OriginAddress = origin.String
	}
	return c, nil
}

// InsertCompletion appends a pending completion. The unique index on
// (raid_id, subject_id) turns a duplicate submission into ErrDuplicate.
func (r Repo) InsertCompletion(ctx context.Context, c domain.Completion) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO completions(id,raid_id,subject_id,platform_username,post_reference,verification_method,verified,approval_status,approved_by,approved_at,rejection_reason,reward_issued,origin_address,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.RaidID, c.SubjectID, c.PlatformUsername, c.PostReference, c.VerificationMethod,
		boolToInt(c.Verified), c.ApprovalStatus, nullableStringPtr(c.ApprovedBy), nullableStringPtr(c.ApprovedAt),
		nullableStringPtr(c.RejectionReason), boolToInt(c.RewardIssued), nullable(c.OriginAddress), c.CompletedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r Repo) GetCompletion(ctx context.Context, id string) (domain.Completion, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+completionColumns+` FROM completions WHERE id=?`, id)
	return scanCompletionRow(row.Scan)
}

func (r Repo) GetCompletionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Completion, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+completionColumns+` FROM completions WHERE id=?`, id)
	return scanCompletionRow(row.Scan)
}

// ListPendingCompletions returns pending completions in submission order;
// trust ordering is applied by the engine on top of this.
func (r Repo) ListPendingCompletions(ctx context.Context) ([]domain.Completion, error) {
	return r.listCompletions(ctx, `SELECT `+completionColumns+` FROM completions WHERE approval_status='pending' ORDER BY completed_at ASC, id ASC`)
}

func (r Repo) ListCompletionsBySubject(ctx context.Context, subjectID int64) ([]domain.Completion, error) {
	return r.listCompletions(ctx, `SELECT `+completionColumns+` FROM completions WHERE subject_id=? ORDER BY completed_at ASC, id ASC`, subjectID)
}

func (r Repo) ListCompletionsByRaid(ctx context.Context, raidID string) ([]domain.Completion, error) {
	return r.listCompletions(ctx, `SELECT `+completionColumns+` FROM completions WHERE raid_id=? ORDER BY completed_at ASC, id ASC`, raidID)
}

func (r Repo) listCompletions(ctx context.Context, query string, args ...any) ([]domain.Completion, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Completion
	for rows.Next() {
		c, err := scanCompletionRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// DecideCompletionTx flips a pending completion to its terminal status.
// RowsAffected==0 means the completion was already decided (or missing);
// callers distinguish via a prior read in the same transaction.
func (r Repo) DecideCompletionTx(ctx context.Context, tx *sql.Tx, c domain.Completion) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE completions SET approval_status=?, approved_by=?, approved_at=?, rejection_reason=?, reward_issued=?
WHERE id=? AND approval_status='pending'`,
		c.ApprovalStatus, nullableStringPtr(c.ApprovedBy), nullableStringPtr(c.ApprovedAt),
		nullableStringPtr(c.RejectionReason), boolToInt(c.RewardIssued), c.ID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// TrustCounts aggregates decided completions per subject for trust scoring.
type TrustCounts struct {
	Total    int
	Approved int
}

// DecidedCountsBySubject returns decided (non-pending) completion counts
// for the given subjects in one query.
func (r Repo) DecidedCountsBySubject(ctx context.Context, subjects []int64) (map[int64]TrustCounts, error) {
	res := make(map[int64]TrustCounts, len(subjects))
	if len(subjects) == 0 {
		return res, nil
	}
	query := `SELECT subject_id,
		COUNT(*),
		SUM(CASE WHEN approval_status='approved' THEN 1 ELSE 0 END)
		FROM completions WHERE approval_status != 'pending' GROUP BY subject_id`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	want := make(map[int64]struct{}, len(subjects))
	for _, s := range subjects {
		want[s] = struct{}{}
	}
	for rows.Next() {
		var subject int64
		var counts TrustCounts
		if err := rows.Scan(&subject, &counts.Total, &counts.Approved); err != nil {
			return nil, err
		}
		if _, ok := want[subject]; ok {
			res[subject] = counts
		}
	}
	return res, rows.Err()
}
