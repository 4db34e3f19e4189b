package repo

import (
	"context"
	"database/sql"
	"strings"

	"raidbot/internal/domain"
)

// LatestLedger returns the newest ledger entries, optionally filtered.
func (r Repo) LatestLedger(ctx context.Context, limit int, entryType string, subjectID int64) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if entryType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, entryType)
	}
	if subjectID != 0 {
		clauses = append(clauses, "subject_id=?")
		args = append(args, subjectID)
	}
	query := `SELECT id,ts,type,subject_id,entity_kind,entity_id,actor_id,payload_json FROM ledger WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var subject sql.NullInt64
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &subject, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if subject.Valid {
			e.SubjectID = subject.Int64
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
