package dto

// TickRequest scopes a manually triggered scheduler pass.
type TickRequest struct {
	AcademyID string `json:"academy_id"`
	DryRun    bool   `json:"dry_run"`
}

// TickResponse reports the outcome of a scheduler pass.
type TickResponse struct {
	Created      int  `json:"created"`
	Transitioned int  `json:"transitioned"`
	Terminated   int  `json:"terminated"`
	Errors       int  `json:"errors"`
	DryRun       bool `json:"dry_run"`
}
