// internal/workers/vetting/register-reviewer/models.go
package registerreviewer

type Input struct {
	ReviewerID      string   `json:"reviewerId"`
	UserID          string   `json:"userId"`
	DisplayName     string   `json:"displayName"`
	Specializations []string `json:"specializations"`
	MaxWorkload     int      `json:"maxWorkload"`
	Actor           string   `json:"actor"`
}

type Output struct {
	ReviewerID      string   `json:"reviewerId"`
	UserID          string   `json:"userId"`
	IsActive        bool     `json:"isActive"`
	IsAvailable     bool     `json:"isAvailable"`
	MaxWorkload     int      `json:"maxWorkload"`
	Specializations []string `json:"specializations"`
	CreatedAt       string   `json:"createdAt"`
}
