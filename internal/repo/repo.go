package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"raidbot/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// isUniqueViolation detects SQLite unique-index conflicts. modernc.org/sqlite
// surfaces them as plain errors carrying the constraint message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// --- users ---

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,chat_id,username,twitter_handle,facebook_handle,user_type,bubbles,is_admin,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.ChatID, u.Username, nullable(u.TwitterHandle), nullable(u.FacebookHandle), nullable(u.UserType),
		u.Bubbles, boolToInt(u.IsAdmin), u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var twitter, facebook, userType sql.NullString
	var isAdmin int
	err := row.Scan(&u.ID, &u.ChatID, &u.Username, &twitter, &facebook, &userType, &u.Bubbles, &isAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if twitter.Valid {
		u.TwitterHandle = twitter.String
	}
	if facebook.Valid {
		u.FacebookHandle = facebook.String
	}
	if userType.Valid {
		u.UserType = userType.String
	}
	u.IsAdmin = isAdmin != 0
	return u, nil
}

const userColumns = `id,chat_id,username,twitter_handle,facebook_handle,user_type,bubbles,is_admin,created_at,updated_at`

func (r Repo) GetUserByChatID(ctx context.Context, chatID int64) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE chat_id=?`, chatID))
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=? COLLATE NOCASE`, username))
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) UpdateUser(ctx context.Context, u domain.User) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET username=?, twitter_handle=?, facebook_handle=?, user_type=?, updated_at=? WHERE id=?`,
		u.Username, nullable(u.TwitterHandle), nullable(u.FacebookHandle), nullable(u.UserType), u.UpdatedAt, u.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreditBubblesTx adds points to a user's balance inside a transaction.
func (r Repo) CreditBubblesTx(ctx context.Context, tx *sql.Tx, chatID, amount int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET bubbles=bubbles+? WHERE chat_id=?`, amount, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- raids ---

const raidColumns = `id,title,platform,post_url,reward,votes,active,created_by,created_at,closed_at`

func scanRaidRow(scan func(...any) error) (domain.Raid, error) {
	var raid domain.Raid
	var active int
	var closedAt sql.NullString
	err := scan(&raid.ID, &raid.Title, &raid.Platform, &raid.PostURL, &raid.Reward, &raid.Votes, &active, &raid.CreatedBy, &raid.CreatedAt, &closedAt)
	if err == sql.ErrNoRows {
		return raid, ErrNotFound
	}
	if err != nil {
		return raid, err
	}
	raid.Active = active != 0
	if closedAt.Valid {
		raid.ClosedAt = &closedAt.String
	}
	return raid, nil
}

func (r Repo) InsertRaid(ctx context.Context, raid domain.Raid) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO raids(id,title,platform,post_url,reward,votes,active,created_by,created_at,closed_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		raid.ID, raid.Title, raid.Platform, raid.PostURL, raid.Reward, raid.Votes, boolToInt(raid.Active), raid.CreatedBy, raid.CreatedAt, nullableStringPtr(raid.ClosedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r Repo) GetRaid(ctx context.Context, id string) (domain.Raid, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+raidColumns+` FROM raids WHERE id=?`, id)
	return scanRaidRow(row.Scan)
}

func (r Repo) ListRaids(ctx context.Context, activeOnly bool) ([]domain.Raid, error) {
	query := `SELECT ` + raidColumns + ` FROM raids`
	if activeOnly {
		query += ` WHERE active=1`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Raid
	for rows.Next() {
		raid, err := scanRaidRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, raid)
	}
	return res, rows.Err()
}

func (r Repo) CloseRaid(ctx context.Context, id, closedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE raids SET active=0, closed_at=? WHERE id=? AND active=1`, closedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddRaidVote adjusts a raid's tally and returns the new count.
func (r Repo) AddRaidVote(ctx context.Context, id string, delta int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE raids SET votes=votes+? WHERE id=?`, delta, id)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	var votes int64
	err = r.DB.QueryRowContext(ctx, `SELECT votes FROM raids WHERE id=?`, id).Scan(&votes)
	return votes, err
}

// --- group settings ---

func (r Repo) UpsertGroup(ctx context.Context, g domain.GroupSettings) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO group_settings(group_id,title,branding_ref,active,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(group_id) DO UPDATE SET title=excluded.title, active=excluded.active, updated_at=excluded.updated_at`,
		g.GroupID, nullable(g.Title), nullable(g.BrandingRef), boolToInt(g.Active), g.UpdatedAt)
	return err
}

func (r Repo) GetGroup(ctx context.Context, groupID int64) (domain.GroupSettings, error) {
	var g domain.GroupSettings
	var title, branding sql.NullString
	var active int
	err := r.DB.QueryRowContext(ctx, `SELECT group_id,title,branding_ref,active,updated_at FROM group_settings WHERE group_id=?`, groupID).
		Scan(&g.GroupID, &title, &branding, &active, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	if title.Valid {
		g.Title = title.String
	}
	if branding.Valid {
		g.BrandingRef = branding.String
	}
	g.Active = active != 0
	return g, nil
}

func (r Repo) ListActiveGroups(ctx context.Context) ([]domain.GroupSettings, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT group_id,title,branding_ref,active,updated_at FROM group_settings WHERE active=1 ORDER BY group_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []domain.GroupSettings
	for rows.Next() {
		var g domain.GroupSettings
		var title, branding sql.NullString
		var active int
		if err := rows.Scan(&g.GroupID, &title, &branding, &active, &g.UpdatedAt); err != nil {
			return nil, err
		}
		if title.Valid {
			g.Title = title.String
		}
		if branding.Valid {
			g.BrandingRef = branding.String
		}
		g.Active = active != 0
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r Repo) SetGroupBranding(ctx context.Context, groupID int64, mediaRef, updatedAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO group_settings(group_id,branding_ref,active,updated_at) VALUES (?,?,1,?)
ON CONFLICT(group_id) DO UPDATE SET branding_ref=excluded.branding_ref, updated_at=excluded.updated_at`,
		groupID, nullable(mediaRef), updatedAt)
	return err
}

func (r Repo) SetGroupActive(ctx context.Context, groupID int64, active bool, updatedAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO group_settings(group_id,active,updated_at) VALUES (?,?,?)
ON CONFLICT(group_id) DO UPDATE SET active=excluded.active, updated_at=excluded.updated_at`,
		groupID, boolToInt(active), updatedAt)
	return err
}
