package retrieveevidence

import "krishmitra-advisor/internal/models"

type Input struct {
	Query    string `json:"query"`
	Crop     string `json:"crop,omitempty"`
	Location string `json:"location,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
}

type Output struct {
	Evidence []models.Evidence `json:"evidence"`
	Count    int               `json:"count"`
	Backend  string            `json:"backend"`
	Degraded bool              `json:"degraded"`
}
