// internal/workers/vetting/archive-application/models.go
package archiveapplication

type Input struct {
	ApplicationID string `json:"applicationId"`
	Actor         string `json:"actor"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"status"`
	ArchivedAt    string `json:"archivedAt,omitempty"`
}
