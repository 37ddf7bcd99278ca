package answerfarmquery

import "krishmitra-advisor/internal/models"

type Input struct {
	Question  string `json:"question"`
	Location  string `json:"location,omitempty"`
	Crop      string `json:"crop,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type Output struct {
	RunID            string            `json:"runId"`
	Answer           string            `json:"answer"`
	Confidence       float64           `json:"confidence"`
	Evidence         []models.Evidence `json:"evidence"`
	ModulesConsulted []models.ModuleID `json:"modulesConsulted"`
	Trace            []string          `json:"trace"`
	Degraded         bool              `json:"degraded"`
	Flags            []string          `json:"flags,omitempty"`
}

func (in Input) query() models.Query {
	return models.Query{
		Text:      in.Question,
		Location:  in.Location,
		Crop:      in.Crop,
		SessionID: in.SessionID,
	}
}

func fromAnswer(a models.SynthesizedAnswer) *Output {
	return &Output{
		RunID:            a.RunID,
		Answer:           a.Text,
		Confidence:       a.Confidence,
		Evidence:         a.EvidenceUnion,
		ModulesConsulted: a.ModulesConsulted,
		Trace:            a.Trace,
		Degraded:         a.Degraded,
		Flags:            a.Flags,
	}
}
