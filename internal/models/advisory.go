// internal/models/advisory.go
package models

import "strings"

type ModuleID string

const (
	ModuleWeather ModuleID = "weather"
	ModuleCrop    ModuleID = "crop"
	ModuleFinance ModuleID = "finance"
	ModulePolicy  ModuleID = "policy"
	ModuleGeneral ModuleID = "general"
)

// CanonicalModules is the fixed ordering used wherever module sets must be deterministic.
var CanonicalModules = []ModuleID{ModuleWeather, ModuleCrop, ModuleFinance, ModulePolicy, ModuleGeneral}

func (m ModuleID) Valid() bool {
	for _, known := range CanonicalModules {
		if m == known {
			return true
		}
	}
	return false
}

// Rank returns the canonical position of the module, or len(CanonicalModules) for unknown ids.
func (m ModuleID) Rank() int {
	for i, known := range CanonicalModules {
		if m == known {
			return i
		}
	}
	return len(CanonicalModules)
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

func (u Urgency) Weight() int {
	switch u {
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 1
	}
	return 0
}

// ParseUrgency maps free-form urgency labels onto the enum, defaulting to medium.
func ParseUrgency(s string) Urgency {
	switch Urgency(strings.ToLower(strings.TrimSpace(s))) {
	case UrgencyHigh:
		return UrgencyHigh
	case UrgencyLow:
		return UrgencyLow
	}
	return UrgencyMedium
}

type IntentMethod string

const (
	MethodLLM             IntentMethod = "llm"
	MethodKeywordFallback IntentMethod = "keyword-fallback"
)

type ResponseStatus string

const (
	StatusOK      ResponseStatus = "ok"
	StatusFailed  ResponseStatus = "failed"
	StatusTimeout ResponseStatus = "timeout"
)

// Query is the immutable request input.
type Query struct {
	Text      string `json:"text"`
	Location  string `json:"location,omitempty"`
	Crop      string `json:"crop,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	// Facts are what each module remembered from earlier turns of the session. The
	// orchestrator fills them; they are never read from the request.
	Facts map[ModuleID]map[string]float64 `json:"-"`
}

type IntentDecision struct {
	RequiredModules   []ModuleID   `json:"requiredModules"`
	Urgency           Urgency      `json:"urgency"`
	NeedsRealtimeData bool         `json:"needsRealtimeData"`
	Method            IntentMethod `json:"method"`
	PrimaryIntent     ModuleID     `json:"primaryIntent,omitempty"`
}

func (d IntentDecision) Requires(m ModuleID) bool {
	for _, id := range d.RequiredModules {
		if id == m {
			return true
		}
	}
	return false
}

type Evidence struct {
	Source  string  `json:"source"`
	Excerpt string  `json:"excerpt"`
	Date    string  `json:"date,omitempty"`
	Geo     string  `json:"geo,omitempty"`
	Crop    string  `json:"crop,omitempty"`
	Score   float64 `json:"score"`
}

// Key identifies evidence for deduplication.
func (e Evidence) Key() string {
	return strings.TrimSpace(e.Source) + "\x00" + strings.TrimSpace(e.Excerpt)
}

type ModuleResponse struct {
	ModuleID    ModuleID       `json:"moduleId"`
	Advice      string         `json:"advice"`
	Evidence    []Evidence     `json:"evidence"`
	Confidence  float64        `json:"confidence"`
	Urgency     Urgency        `json:"urgency"`
	Status      ResponseStatus `json:"status"`
	ErrorDetail string         `json:"errorDetail,omitempty"`
	FailureKind string         `json:"failureKind,omitempty"`
	Topic       string         `json:"topic,omitempty"`
	// Stance is the module's recommendation on Topic, e.g. "irrigate" or "defer".
	Stance string `json:"stance,omitempty"`
	// Facts are kept for the next turn of the session.
	Facts map[string]float64 `json:"facts,omitempty"`
	// AwaitingReply is set when the advice asks the farmer for more details.
	AwaitingReply bool `json:"awaitingReply,omitempty"`
}

func (r ModuleResponse) OK() bool {
	return r.Status == StatusOK
}

type SynthesizedAnswer struct {
	RunID            string     `json:"runId"`
	SessionID        string     `json:"sessionId,omitempty"`
	Text             string     `json:"text"`
	Confidence       float64    `json:"confidence"`
	EvidenceUnion    []Evidence `json:"evidenceUnion"`
	ModulesConsulted []ModuleID `json:"modulesConsulted"`
	Trace            []string   `json:"trace"`
	Degraded         bool       `json:"degraded"`
	Flags            []string   `json:"flags,omitempty"`
}

// Clone returns a copy whose slices can be modified without touching the original.
func (a SynthesizedAnswer) Clone() SynthesizedAnswer {
	out := a
	out.EvidenceUnion = append([]Evidence(nil), a.EvidenceUnion...)
	out.ModulesConsulted = append([]ModuleID(nil), a.ModulesConsulted...)
	out.Trace = append([]string(nil), a.Trace...)
	out.Flags = append([]string(nil), a.Flags...)
	return out
}
