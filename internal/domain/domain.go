package domain

// Approval statuses for a raid completion.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Verification methods accepted on a completion submission.
const (
	VerifyAutomatic  = "automatic"
	VerifyManual     = "manual"
	VerifyEmbed      = "embed"
	VerifyClientSide = "client_side"
	VerifyIframe     = "iframe_interaction"
	VerifyBot        = "bot"
)

// Trust levels derived from a subject's decided completion history.
const (
	TrustNew    = "new"
	TrustLow    = "low"
	TrustMedium = "medium"
	TrustHigh   = "high"
)

type User struct {
	ID             string `json:"id"`
	ChatID         int64  `json:"chat_id"`
	Username       string `json:"username"`
	TwitterHandle  string `json:"twitter_handle,omitempty"`
	FacebookHandle string `json:"facebook_handle,omitempty"`
	UserType       string `json:"user_type,omitempty" enum:"raider,project"`
	Bubbles        int64  `json:"bubbles"`
	IsAdmin        bool   `json:"is_admin"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

type Raid struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Platform  string  `json:"platform"`
	PostURL   string  `json:"post_url"`
	Reward    int64   `json:"reward"`
	Votes     int64   `json:"votes"`
	Active    bool    `json:"active"`
	CreatedBy string  `json:"created_by"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	ClosedAt  *string `json:"closed_at,omitempty" format:"date-time"`
}

type Completion struct {
	ID                 string  `json:"id"`
	RaidID             string  `json:"raid_id"`
	SubjectID          int64   `json:"subject_id"`
	PlatformUsername   string  `json:"platform_username"`
	PostReference      string  `json:"post_reference"`
	VerificationMethod string  `json:"verification_method" enum:"automatic,manual,embed,client_side,iframe_interaction,bot"`
	Verified           bool    `json:"verified"`
	ApprovalStatus     string  `json:"approval_status" enum:"pending,approved,rejected"`
	ApprovedBy         *string `json:"approved_by,omitempty"`
	ApprovedAt         *string `json:"approved_at,omitempty" format:"date-time"`
	RejectionReason    *string `json:"rejection_reason,omitempty"`
	RewardIssued       bool    `json:"reward_issued"`
	OriginAddress      string  `json:"origin_address,omitempty"`
	CompletedAt        string  `json:"completed_at" format:"date-time"`
}

// TrustScore is derived on demand from a subject's decided completions;
// it is never persisted.
type TrustScore struct {
	SubjectID     int64   `json:"subject_id"`
	TotalPrior    int     `json:"total_prior"`
	ApprovedPrior int     `json:"approved_prior"`
	ApprovalRate  float64 `json:"approval_rate"`
	Level         string  `json:"level" enum:"new,low,medium,high"`
}

type DailyEngagement struct {
	SubjectID      int64  `json:"subject_id"`
	GroupID        int64  `json:"group_id"`
	DateKey        string `json:"date_key"`
	HasMessaged    bool   `json:"has_messaged"`
	HasReacted     bool   `json:"has_reacted"`
	MessagePoints  int64  `json:"message_points"`
	ReactionPoints int64  `json:"reaction_points"`
}

type GroupSettings struct {
	GroupID     int64  `json:"group_id"`
	Title       string `json:"title,omitempty"`
	BrandingRef string `json:"branding_ref,omitempty"`
	Active      bool   `json:"active"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// LedgerEntry is one row of the append-only audit ledger.
type LedgerEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	SubjectID  int64  `json:"subject_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
