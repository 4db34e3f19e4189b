package server

import (
	"raidbot/internal/domain"
)

type CreateRaidRequest struct {
	Title    string `json:"title" minLength:"1"`
	Platform string `json:"platform,omitempty" enum:"twitter,facebook,instagram,"`
	PostURL  string `json:"post_url" format:"uri"`
	Reward   int64  `json:"reward" minimum:"1"`
}

type RaidResponse struct {
	Raid domain.Raid `json:"raid"`
}

type RaidListResponse struct {
	Raids []domain.Raid `json:"raids"`
}

type CompletionResponse struct {
	Completion domain.Completion `json:"completion"`
}

// PendingCompletionsResponse lists the review queue in trust order.
type PendingCompletionsResponse struct {
	Completions []domain.Completion `json:"completions"`
}

type RejectCompletionRequest struct {
	Reason string `json:"reason,omitempty" maxLength:"500"`
}

type AcceptedResponse struct {
	OK bool `json:"ok"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}
