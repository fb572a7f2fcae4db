// internal/workers/vetting/record-reference-response/models.go
package recordreferenceresponse

// Input identifies the reference either by id (staff entering a response
// gathered by phone) or by the token from the emailed response link.
type Input struct {
	ReferenceID    string                 `json:"referenceId"`
	Token          string                 `json:"token"`
	Recommendation string                 `json:"recommendation"`
	Answers        map[string]interface{} `json:"answers"`
	Actor          string                 `json:"actor"`
}

type Output struct {
	ResponseID     string `json:"responseId"`
	ReferenceID    string `json:"referenceId"`
	Recommendation string `json:"recommendation"`
	RespondedAt    string `json:"respondedAt"`
}
