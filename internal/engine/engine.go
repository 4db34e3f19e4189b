package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"raidbot/internal/config"
	"raidbot/internal/domain"
	"raidbot/internal/events"
	"raidbot/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

var handlePattern = regexp.MustCompile(`^@?[A-Za-z0-9_.]{2,32}$`)

// --- account linking ---

// LinkAccount binds a chat identity to a marketplace username. Uniqueness
// is checked both ways: the chat id must not already belong to a different
// account and the username must not already be bound to a different chat id.
func (e Engine) LinkAccount(ctx context.Context, chatID int64, username string) (domain.User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if !handlePattern.MatchString(username) {
		return domain.User{}, ValidationError{Field: "username", Hint: "use 2-32 letters, digits, dots or underscores"}
	}
	if existing, err := e.Repo.GetUserByChatID(ctx, chatID); err == nil {
		if strings.EqualFold(existing.Username, username) {
			return existing, nil
		}
		return domain.User{}, ConflictError{Reason: fmt.Sprintf("this chat account is already linked to %s", existing.Username)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, StorageError{Err: err}
	}
	if other, err := e.Repo.GetUserByUsername(ctx, username); err == nil && other.ChatID != chatID {
		return domain.User{}, ConflictError{Reason: fmt.Sprintf("%s is already linked to a different chat account", username)}
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, StorageError{Err: err}
	}
	now := e.now().UTC().Format(time.RFC3339)
	u := domain.User{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.User{}, ConflictError{Reason: "account already linked"}
		}
		return domain.User{}, StorageError{Err: err}
	}
	return u, nil
}

// UpdateProfile stores onboarding results (handles and user type) for a
// linked account.
type ProfileUpdate struct {
	TwitterHandle  *string
	FacebookHandle *string
	UserType       *string
}

func (e Engine) UpdateProfile(ctx context.Context, chatID int64, upd ProfileUpdate) (domain.User, error) {
	u, err := e.Repo.GetUserByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, NotFoundError{Kind: "account", ID: fmt.Sprintf("%d", chatID)}
		}
		return domain.User{}, StorageError{Err: err}
	}
	if upd.TwitterHandle != nil {
		h := strings.TrimPrefix(strings.TrimSpace(*upd.TwitterHandle), "@")
		if h != "" && !handlePattern.MatchString(h) {
			return domain.User{}, ValidationError{Field: "twitter handle", Hint: "use 2-32 letters, digits or underscores"}
		}
		u.TwitterHandle = h
	}
	if upd.FacebookHandle != nil {
		h := strings.TrimPrefix(strings.TrimSpace(*upd.FacebookHandle), "@")
		if h != "" && !handlePattern.MatchString(h) {
			return domain.User{}, ValidationError{Field: "facebook handle", Hint: "use 2-32 letters, digits or dots"}
		}
		u.FacebookHandle = h
	}
	if upd.UserType != nil {
		switch *upd.UserType {
		case "raider", "project":
			u.UserType = *upd.UserType
		default:
			return domain.User{}, ValidationError{Field: "user type", Hint: "choose raider or project"}
		}
	}
	u.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateUser(ctx, u); err != nil {
		return domain.User{}, StorageError{Err: err}
	}
	return u, nil
}

// --- raids ---

type RaidCreateOptions struct {
	Title    string
	Platform string
	PostURL  string
	Reward   int64
	ActorID  string
}

func (e Engine) CreateRaid(ctx context.Context, opts RaidCreateOptions) (domain.Raid, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Raid{}, ValidationError{Field: "title", Hint: "title is required"}
	}
	if u, err := url.Parse(opts.PostURL); err != nil || u.Scheme == "" || u.Host == "" {
		return domain.Raid{}, ValidationError{Field: "post url", Hint: "provide a full http(s) link to the post"}
	}
	if opts.Reward <= 0 {
		return domain.Raid{}, ValidationError{Field: "reward", Hint: "reward must be a positive bubble amount"}
	}
	if opts.Platform == "" {
		opts.Platform = "twitter"
	}
	raid := domain.Raid{
		ID:        uuid.New().String(),
		Title:     strings.TrimSpace(opts.Title),
		Platform:  opts.Platform,
		PostURL:   opts.PostURL,
		Reward:    opts.Reward,
		Active:    true,
		CreatedBy: opts.ActorID,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertRaid(ctx, raid); err != nil {
		return domain.Raid{}, StorageError{Err: err}
	}
	return raid, nil
}

func (e Engine) CloseRaid(ctx context.Context, raidID string) error {
	err := e.Repo.CloseRaid(ctx, raidID, e.now().UTC().Format(time.RFC3339))
	if errors.Is(err, repo.ErrNotFound) {
		return NotFoundError{Kind: "raid", ID: raidID}
	}
	if err != nil {
		return StorageError{Err: err}
	}
	return nil
}

func (e Engine) ListRaids(ctx context.Context, activeOnly bool) ([]domain.Raid, error) {
	raids, err := e.Repo.ListRaids(ctx, activeOnly)
	if err != nil {
		return nil, StorageError{Err: err}
	}
	return raids, nil
}

// Vote adjusts a raid's vote tally and returns the new count.
func (e Engine) Vote(ctx context.Context, raidID string, delta int64) (int64, error) {
	votes, err := e.Repo.AddRaidVote(ctx, raidID, delta)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, NotFoundError{Kind: "raid", ID: raidID}
	}
	if err != nil {
		return 0, StorageError{Err: err}
	}
	return votes, nil
}

// --- completion workflow ---

type SubmitOptions struct {
	RaidID             string
	SubjectID          int64
	PlatformUsername   string
	PostReference      string
	VerificationMethod string
	OriginAddress      string
}

// SubmitCompletion records a pending completion. No reward is granted at
// submission time; approval does that.
func (e Engine) SubmitCompletion(ctx context.Context, opts SubmitOptions) (domain.Completion, error) {
	raid, err := e.Repo.GetRaid(ctx, opts.RaidID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Completion{}, NotFoundError{Kind: "raid", ID: opts.RaidID}
		}
		return domain.Completion{}, StorageError{Err: err}
	}
	if !raid.Active {
		return domain.Completion{}, ValidationError{Field: "raid", Hint: "this raid is no longer active"}
	}
	if strings.TrimSpace(opts.PostReference) == "" {
		return domain.Completion{}, ValidationError{Field: "proof", Hint: "send the link to your post or interaction"}
	}
	method := opts.VerificationMethod
	switch method {
	case domain.VerifyAutomatic, domain.VerifyManual, domain.VerifyEmbed, domain.VerifyClientSide, domain.VerifyIframe, domain.VerifyBot:
	case "":
		method = domain.VerifyManual
	default:
		return domain.Completion{}, ValidationError{Field: "verification method", Hint: "unknown verification method"}
	}
	c := domain.Completion{
		ID:                 uuid.New().String(),
		RaidID:             raid.ID,
		SubjectID:          opts.SubjectID,
		PlatformUsername:   strings.TrimPrefix(strings.TrimSpace(opts.PlatformUsername), "@"),
		PostReference:      strings.TrimSpace(opts.PostReference),
		VerificationMethod: method,
		Verified:           method == domain.VerifyAutomatic || method == domain.VerifyBot,
		ApprovalStatus:     domain.ApprovalPending,
		OriginAddress:      opts.OriginAddress,
		CompletedAt:        e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertCompletion(ctx, c); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.Completion{}, ConflictError{Reason: "already completed this raid"}
		}
		return domain.Completion{}, StorageError{Err: err}
	}
	return c, nil
}

// PendingCompletions returns the review queue ordered by trust level
// (high, medium, new, low), ties broken by submission order.
func (e Engine) PendingCompletions(ctx context.Context) ([]domain.Completion, error) {
	pending, err := e.Repo.ListPendingCompletions(ctx)
	if err != nil {
		return nil, StorageError{Err: err}
	}
	subjects := make([]int64, 0, len(pending))
	seen := make(map[int64]struct{}, len(pending))
	for _, c := range pending {
		if _, ok := seen[c.SubjectID]; !ok {
			seen[c.SubjectID] = struct{}{}
			subjects = append(subjects, c.SubjectID)
		}
	}
	counts, err := e.Repo.DecidedCountsBySubject(ctx, subjects)
	if err != nil {
		return nil, StorageError{Err: err}
	}
	scores := make(map[int64]domain.TrustScore, len(subjects))
	for _, s := range subjects {
		scores[s] = scoreFromCounts(s, counts[s])
	}
	sortByTrust(pending, scores)
	return pending, nil
}

// Trust computes the derived trust score for one subject.
func (e Engine) Trust(ctx context.Context, subjectID int64) (domain.TrustScore, error) {
	counts, err := e.Repo.DecidedCountsBySubject(ctx, []int64{subjectID})
	if err != nil {
		return domain.TrustScore{}, StorageError{Err: err}
	}
	return scoreFromCounts(subjectID, counts[subjectID]), nil
}

// ApproveCompletion marks a pending completion approved and credits the
// raid reward to the subject's balance with a ledger entry. The status
// flip, the credit and the trail commit together or not at all.
func (e Engine) ApproveCompletion(ctx context.Context, completionID, adminID string) (domain.Completion, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Completion{}, StorageError{Err: err}
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCompletionTx(ctx, tx, completionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Completion{}, NotFoundError{Kind: "completion", ID: completionID}
		}
		return domain.Completion{}, StorageError{Err: err}
	}
	if c.ApprovalStatus != domain.ApprovalPending {
		return domain.Completion{}, ConflictError{Reason: fmt.Sprintf("completion already %s", c.ApprovalStatus)}
	}
	raid, err := e.Repo.GetRaid(ctx, c.RaidID)
	if err != nil {
		return domain.Completion{}, StorageError{Err: err}
	}
	now := e.now().UTC().Format(time.RFC3339)
	c.ApprovalStatus = domain.ApprovalApproved
	c.ApprovedBy = &adminID
	c.ApprovedAt = &now
	c.RewardIssued = true
	decided, err := e.Repo.DecideCompletionTx(ctx, tx, c)
	if err != nil {
		return domain.Completion{}, StorageError{Err: err}
	}
	if !decided {
		return domain.Completion{}, ConflictError{Reason: "completion already decided"}
	}
	if err := e.Repo.CreditBubblesTx(ctx, tx, c.SubjectID, raid.Reward); err != nil {
		return domain.Completion{}, StorageError{Err: err}
	}
	if err := e.Events.Append(ctx, tx, "reward.credited", c.SubjectID, "completion", c.ID, adminID, events.Payload{
		"raid_id": c.RaidID,
		"amount":  raid.Reward,
	}); err != nil {
		return domain.Completion{}, StorageError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Completion{}, StorageError{Err: err}
	}
	return c, nil
}

// RejectCompletion marks a pending completion rejected. rewardIssued stays
// false; the caller delivers the best-effort notification to the subject.
func (e Engine) RejectCompletion(ctx context.Context, completionID, adminID, reason string) (domain.Completion, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Completion{}, StorageError{Err: err}
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCompletionTx(ctx, tx, completionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Completion{}, NotFoundError{Kind: "completion", ID: completionID}
		}
		return domain.Completion{}, StorageError{Err: err}
	}
	if c.ApprovalStatus != domain.ApprovalPending {
		return domain.Completion{}, ConflictError{Reason: fmt.Sprintf("completion already %s", c.ApprovalStatus)}
	}
	now := e.now().UTC().Format(time.RFC3339)
	c.ApprovalStatus = domain.ApprovalRejected
	c.ApprovedBy = &adminID
	c.ApprovedAt = &now
	if reason = strings.TrimSpace(reason); reason != "" {
		c.RejectionReason = &reason
	}
	decided, err := e.Repo.DecideCompletionTx(ctx, tx, c)
	if err != nil {
		return domain.Completion{}, StorageError{Err: err}
	}
	if !decided {
		return domain.Completion{}, ConflictError{Reason: "completion already decided"}
	}
	if err := e.Events.Append(ctx, tx, "completion.rejected", c.SubjectID, "completion", c.ID, adminID, events.Payload{
		"raid_id": c.RaidID,
		"reason":  reason,
	}); err != nil {
		return domain.Completion{}, StorageError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Completion{}, StorageError{Err: err}
	}
	return c, nil
}

// --- group settings ---

func (e Engine) SetBranding(ctx context.Context, groupID int64, mediaRef string) error {
	if strings.TrimSpace(mediaRef) == "" {
		return ValidationError{Field: "branding", Hint: "send a photo to use as the group branding"}
	}
	if err := e.Repo.SetGroupBranding(ctx, groupID, mediaRef, e.now().UTC().Format(time.RFC3339)); err != nil {
		return StorageError{Err: err}
	}
	return nil
}

func (e Engine) RemoveBranding(ctx context.Context, groupID int64) error {
	if err := e.Repo.SetGroupBranding(ctx, groupID, "", e.now().UTC().Format(time.RFC3339)); err != nil {
		return StorageError{Err: err}
	}
	return nil
}

// RegisterGroup records a group seen in inbound traffic so broadcasts can
// fan out to it later.
func (e Engine) RegisterGroup(ctx context.Context, groupID int64, title string) error {
	g := domain.GroupSettings{
		GroupID:   groupID,
		Title:     title,
		Active:    true,
		UpdatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.UpsertGroup(ctx, g); err != nil {
		return StorageError{Err: err}
	}
	return nil
}

// DeactivateGroup drops a group from future broadcast fan-out.
func (e Engine) DeactivateGroup(ctx context.Context, groupID int64) error {
	if err := e.Repo.SetGroupActive(ctx, groupID, false, e.now().UTC().Format(time.RFC3339)); err != nil {
		return StorageError{Err: err}
	}
	return nil
}
