// internal/workers/vetting/mark-manual-contact/models.go
package markmanualcontact

type Input struct {
	ReferenceID string `json:"referenceId"`
	Notes       string `json:"notes"`
	Actor       string `json:"actor"`
}

type Output struct {
	ReferenceID           string `json:"referenceId"`
	Status                string `json:"status"`
	RequiresManualContact bool   `json:"requiresManualContact"`
	AttemptedAt           string `json:"attemptedAt,omitempty"`
}
