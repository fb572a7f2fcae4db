// internal/workers/vetting/set-reviewer-availability/models.go
package setrevieweravailability

// Input uses pointers so an omitted variable is distinguishable from false
// or zero.
type Input struct {
	ReviewerID       string   `json:"reviewerId"`
	IsActive         *bool    `json:"isActive"`
	IsAvailable      *bool    `json:"isAvailable"`
	UnavailableUntil *string  `json:"unavailableUntil"`
	MaxWorkload      *int     `json:"maxWorkload"`
	Specializations  []string `json:"specializations"`
	Actor            string   `json:"actor"`
}

type Output struct {
	ReviewerID       string `json:"reviewerId"`
	IsActive         bool   `json:"isActive"`
	IsAvailable      bool   `json:"isAvailable"`
	MaxWorkload      int    `json:"maxWorkload"`
	CurrentWorkload  int    `json:"currentWorkload"`
	UnavailableUntil string `json:"unavailableUntil,omitempty"`
}
