package notify

// JobKind tags one class of broadcast; previously sent messages are
// tracked and deleted per kind.
type JobKind string

const (
	KindRaidAnnouncement  JobKind = "raid_announcement"
	KindVoteUpdate        JobKind = "vote_update"
	KindCompletionSummary JobKind = "raid_completion_summary"
	KindDailySummary      JobKind = "daily_summary"
)

// Job is one outbound fan-out unit. Targets nil means "all active groups
// at execution time". Jobs are discarded after execution; failures are
// logged, never retried.
type Job struct {
	Kind     JobKind
	Text     string
	MediaRef string
	Pin      bool
	Targets  []int64
}
