// internal/workers/vetting/record-decision/models.go
package recorddecision

type Input struct {
	ApplicationID     string `json:"applicationId"`
	ReviewerID        string `json:"reviewerId"`
	DecisionType      string `json:"decisionType"`
	Reasoning         string `json:"reasoning"`
	Score             *int   `json:"score"`
	RequestedInfo     string `json:"requestedInfo"`
	InterviewAt       string `json:"interviewAt"`
	RequestReferences bool   `json:"requestReferences"`
	Actor             string `json:"actor"`
}

type Output struct {
	DecisionID      string `json:"decisionId"`
	ApplicationID   string `json:"applicationId"`
	Status          string `json:"status"`
	IsFinalDecision bool   `json:"isFinalDecision"`
	ReviewerID      string `json:"reviewerId"`
}
