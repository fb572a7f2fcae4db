// internal/workers/vetting/submit-application/models.go
package submitapplication

type Input struct {
	ApplicantID        string                 `json:"applicantId"`
	FullName           string                 `json:"fullName"`
	SceneName          string                 `json:"sceneName"`
	Email              string                 `json:"email"`
	Phone              string                 `json:"phone"`
	Priority           string                 `json:"priority"`
	Answers            map[string]interface{} `json:"answers"`
	SensitiveAnswers   map[string]interface{} `json:"sensitiveAnswers"`
	AgreesToTerms      bool                   `json:"agreesToTerms"`
	AgreesToGuidelines bool                   `json:"agreesToGuidelines"`
	ConsentToContact   bool                   `json:"consentToContact"`
	IsAnonymous        bool                   `json:"isAnonymous"`
	Specializations    []string               `json:"specializations"`
	References         []ReferenceInput       `json:"references"`
	Actor              string                 `json:"actor"`
}

type ReferenceInput struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Relationship string `json:"relationship"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationNumber string `json:"applicationNumber"`
	Status            string `json:"status"`
	ExpiresAt         string `json:"expiresAt"`
}
