// Package intent decides which advisory modules a farmer's question needs.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	commonerrors "krishmitra-advisor/internal/common/errors"
	"krishmitra-advisor/internal/common/metrics"
	"krishmitra-advisor/internal/common/observability"
	"krishmitra-advisor/internal/common/validation"
	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"
	"krishmitra-advisor/pkg/registry"

	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrLLMUnavailable = errors.New("INTENT_LLM_UNAVAILABLE")
	ErrSchemaRejected = errors.New("INTENT_SCHEMA_REJECTED")
)

// Completer is the slice of the LLM client the analyzer needs.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

var (
	urgentTerms   = []string{"urgent", "urgently", "immediately", "emergency", "storm", "flood", "outbreak", "attack", "severe", "critical"}
	casualTerms   = []string{"general", "someday", "plan ahead"}
	temporalTerms = []string{"today", "tomorrow", "now", "current", "this week"}
)

// aliases maps labels an LLM tends to produce onto module ids.
var aliases = map[string]models.ModuleID{
	"weather_agent":   models.ModuleWeather,
	"weather_module":  models.ModuleWeather,
	"forecast":        models.ModuleWeather,
	"crop_management": models.ModuleCrop,
	"crop_agent":      models.ModuleCrop,
	"crops":           models.ModuleCrop,
	"agronomy":        models.ModuleCrop,
	"finance_agent":   models.ModuleFinance,
	"market":          models.ModuleFinance,
	"market_price":    models.ModuleFinance,
	"policy_agent":    models.ModulePolicy,
	"scheme":          models.ModulePolicy,
	"schemes":         models.ModulePolicy,
	"government":      models.ModulePolicy,
	"general_agent":   models.ModuleGeneral,
}

const llmReplySchema = `{
	"type": "object",
	"required": ["required_modules", "urgency", "needs_realtime"],
	"properties": {
		"required_modules": {"type": "array", "items": {"type": "string"}},
		"urgency": {"type": "string", "enum": ["low", "medium", "high"]},
		"needs_realtime": {"type": "boolean"},
		"primary_intent": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`

var replySchema = validation.MustCompile("intent-reply", llmReplySchema)

const systemPrompt = `You route agricultural questions from Indian farmers to advisory modules.
Modules: weather (forecasts, rain, irrigation timing), crop (fertilizer, pests, irrigation practice, planting),
finance (market prices, costs, credit, profit), policy (government schemes, subsidies, eligibility), general.
Answer with one JSON object only:
{"required_modules": [...], "urgency": "low|medium|high", "needs_realtime": true|false,
 "primary_intent": "<module>", "confidence": 0.0-1.0}`

type llmReply struct {
	RequiredModules []string `json:"required_modules"`
	Urgency         string   `json:"urgency"`
	NeedsRealtime   bool     `json:"needs_realtime"`
	PrimaryIntent   string   `json:"primary_intent"`
}

// Analyzer classifies queries. The LLM path is optional; the keyword path is deterministic.
type Analyzer struct {
	llm      Completer
	registry *registry.ModuleRegistry
	keywords map[models.ModuleID][]string
	timeout  time.Duration
	log      Logger
}

// NewAnalyzer builds an analyzer. A nil completer always uses keyword matching and a nil
// registry uses the built-in module keywords.
func NewAnalyzer(llm Completer, reg *registry.ModuleRegistry, timeout time.Duration, log Logger) *Analyzer {
	if reg == nil {
		reg = registry.Default()
	}
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	kw := make(map[models.ModuleID][]string)
	for id, words := range reg.Keywords() {
		lowered := make([]string, 0, len(words))
		for _, w := range words {
			lowered = append(lowered, strings.ToLower(strings.TrimSpace(w)))
		}
		kw[models.ModuleID(id)] = lowered
	}
	return &Analyzer{llm: llm, registry: reg, keywords: kw, timeout: timeout, log: log}
}

// Analyze never fails. Any LLM problem yields the keyword decision with method keyword-fallback.
func (a *Analyzer) Analyze(ctx context.Context, q models.Query) models.IntentDecision {
	ctx, span := observability.StartSpan(ctx, "intent.analyze")

	decision, err := a.analyzeLLM(ctx, q)
	if err != nil {
		cause := classifyLLMError(err)
		a.log.Warn("intent analysis degraded, using keyword fallback", map[string]interface{}{
			"code":     string(cause.Code),
			"category": commonerrors.GetErrorCategory(cause.Code),
			"cause":    err.Error(),
		})
		decision = a.Fallback(q)
	}

	span.SetAttributes(
		attribute.String("method", string(decision.Method)),
		attribute.Int("modules", len(decision.RequiredModules)),
	)
	observability.End(span, err)
	metrics.IntentTotal.WithLabelValues(string(decision.Method)).Inc()
	return decision
}

func (a *Analyzer) analyzeLLM(ctx context.Context, q models.Query) (models.IntentDecision, error) {
	if a.llm == nil {
		return models.IntentDecision{}, ErrLLMUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	user := fmt.Sprintf("Query: %s\nLocation: %s\nCrop: %s", q.Text, q.Location, q.Crop)
	raw, err := a.llm.CompleteJSON(ctx, systemPrompt, user)
	if err != nil {
		return models.IntentDecision{}, fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
	}
	if res := replySchema.ValidateBytes([]byte(raw)); !res.Valid {
		return models.IntentDecision{}, fmt.Errorf("%w: %v", ErrSchemaRejected, res.Err())
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return models.IntentDecision{}, fmt.Errorf("%w: %v", ErrSchemaRejected, err)
	}

	seen := map[models.ModuleID]bool{}
	for _, name := range reply.RequiredModules {
		if id, ok := a.normalize(name); ok {
			seen[id] = true
		}
	}
	required := canonical(seen)
	if len(required) == 0 {
		required = []models.ModuleID{models.ModuleGeneral}
	}

	d := models.IntentDecision{
		RequiredModules:   required,
		Urgency:           models.ParseUrgency(reply.Urgency),
		NeedsRealtimeData: reply.NeedsRealtime || seen[models.ModuleWeather],
		Method:            models.MethodLLM,
	}
	if id, ok := a.normalize(reply.PrimaryIntent); ok && d.Requires(id) {
		d.PrimaryIntent = id
	} else {
		d.PrimaryIntent = a.mostSpecific(required)
	}
	return d, nil
}

// classifyLLMError maps an LLM path failure onto the error taxonomy.
func classifyLLMError(err error) *commonerrors.StandardError {
	if errors.Is(err, context.DeadlineExceeded) {
		return commonerrors.NewLLMTimeoutError(err)
	}
	return commonerrors.NewLLMFailedError(err)
}

// Fallback is the keyword decision. Identical input always yields an identical decision.
func (a *Analyzer) Fallback(q models.Query) models.IntentDecision {
	hits := map[models.ModuleID]int{}
	for id, words := range a.keywords {
		for _, w := range words {
			if w != "" && modules.ContainsAny(q.Text, w) {
				hits[id]++
			}
		}
	}
	seen := map[models.ModuleID]bool{}
	for id := range hits {
		seen[id] = true
	}
	required := canonical(seen)

	primary := models.ModuleGeneral
	best := 0
	for _, id := range required {
		switch {
		case hits[id] > best:
			primary, best = id, hits[id]
		case hits[id] == best && a.registry.Specificity(string(id)) < a.registry.Specificity(string(primary)):
			primary = id
		}
	}
	if len(required) == 0 {
		required = []models.ModuleID{models.ModuleGeneral}
	}

	urgency := models.UrgencyMedium
	switch {
	case modules.ContainsAny(q.Text, urgentTerms...):
		urgency = models.UrgencyHigh
	case modules.ContainsAny(q.Text, casualTerms...):
		urgency = models.UrgencyLow
	}

	return models.IntentDecision{
		RequiredModules:   required,
		Urgency:           urgency,
		NeedsRealtimeData: seen[models.ModuleWeather] || modules.ContainsAny(q.Text, temporalTerms...),
		Method:            models.MethodKeywordFallback,
		PrimaryIntent:     primary,
	}
}

func (a *Analyzer) normalize(name string) (models.ModuleID, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	n = strings.ReplaceAll(n, " ", "_")
	id := models.ModuleID(n)
	if alias, ok := aliases[n]; ok {
		id = alias
	}
	if !id.Valid() {
		return "", false
	}
	if entry, ok := a.registry.Get(string(id)); ok && entry.Status == registry.StatusDisabled {
		return "", false
	}
	return id, true
}

func (a *Analyzer) mostSpecific(ids []models.ModuleID) models.ModuleID {
	sorted := append([]models.ModuleID(nil), ids...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return a.registry.Specificity(string(sorted[i])) < a.registry.Specificity(string(sorted[j]))
	})
	return sorted[0]
}

// canonical returns the set in canonical module order.
func canonical(set map[models.ModuleID]bool) []models.ModuleID {
	var out []models.ModuleID
	for _, id := range models.CanonicalModules {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}
