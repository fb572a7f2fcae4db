// internal/workers/vetting/assign-reviewer/models.go
package assignreviewer

type Input struct {
	ApplicationID string `json:"applicationId"`
	ReviewerID    string `json:"reviewerId"`
	Actor         string `json:"actor"`
}

type Output struct {
	ApplicationID   string `json:"applicationId"`
	ReviewerID      string `json:"reviewerId"`
	Status          string `json:"status"`
	ReviewStartedAt string `json:"reviewStartedAt,omitempty"`
}
