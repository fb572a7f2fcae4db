// internal/models/reviewer.go
package models

import "time"

type Reviewer struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"userId"`
	DisplayName        string     `json:"displayName"`
	IsActive           bool       `json:"isActive"`
	IsAvailable        bool       `json:"isAvailable"`
	Specializations    []string   `json:"specializations"`
	MaxWorkload        int        `json:"maxWorkload"`
	CurrentWorkload    int        `json:"currentWorkload"`
	AverageReviewHours float64    `json:"averageReviewHours"`
	ApprovalRate       float64    `json:"approvalRate"`
	CompletedReviews   int        `json:"completedReviews"`
	UnavailableUntil   *time.Time `json:"unavailableUntil,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// IsEligible reports whether the reviewer can take one more application at now.
func (r *Reviewer) IsEligible(now time.Time) bool {
	if !r.IsActive || !r.IsAvailable {
		return false
	}
	if r.UnavailableUntil != nil && !r.UnavailableUntil.Before(now) {
		return false
	}
	return r.CurrentWorkload < r.MaxWorkload
}

func (r *Reviewer) HasAnySpecialization(tags []string) bool {
	for _, want := range tags {
		for _, have := range r.Specializations {
			if want == have {
				return true
			}
		}
	}
	return false
}

// RecordCompletion folds one finished review into the rolling stats.
func (r *Reviewer) RecordCompletion(approved bool, reviewHours float64) {
	n := float64(r.CompletedReviews)
	r.AverageReviewHours = (r.AverageReviewHours*n + reviewHours) / (n + 1)
	outcome := 0.0
	if approved {
		outcome = 1
	}
	r.ApprovalRate = (r.ApprovalRate*n + outcome) / (n + 1)
	r.CompletedReviews++
}

func (r *Reviewer) Clone() *Reviewer {
	c := *r
	c.Specializations = append([]string(nil), r.Specializations...)
	c.UnavailableUntil = cloneTime(r.UnavailableUntil)
	return &c
}

// ReviewerRelease describes a workload slot being given back.
type ReviewerRelease struct {
	ReviewerID  string
	Completed   bool
	Approved    bool
	ReviewHours float64
}
