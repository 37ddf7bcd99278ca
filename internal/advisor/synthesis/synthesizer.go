// Package synthesis merges module responses and retrieved evidence into one answer.
package synthesis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"krishmitra-advisor/internal/advisor/evidence"
	commonerrors "krishmitra-advisor/internal/common/errors"
	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/pkg/registry"
)

// DegradedTemplate is the answer given when no module produced usable advice.
const DegradedTemplate = "We could not reach our specialist advisors for this question right now. " +
	"Please try again shortly, or contact your local Krishi Vigyan Kendra or agriculture officer for advice specific to your field."

type Config struct {
	MinWeight     float64
	DegradedFloor float64
	MaxEvidence   int
}

type Synthesizer struct {
	cfg      Config
	registry *registry.ModuleRegistry
}

func New(cfg Config, reg *registry.ModuleRegistry) *Synthesizer {
	if cfg.MinWeight <= 0 {
		cfg.MinWeight = 0.5
	}
	if cfg.DegradedFloor <= 0 {
		cfg.DegradedFloor = 0.2
	}
	if cfg.MaxEvidence <= 0 {
		cfg.MaxEvidence = 8
	}
	if reg == nil {
		reg = registry.Default()
	}
	return &Synthesizer{cfg: cfg, registry: reg}
}

type contributor struct {
	resp  models.ModuleResponse
	order int
}

// Synthesize builds the answer. responses must be in plan order. The returned Trace holds
// only the annotations produced here.
func (s *Synthesizer) Synthesize(intent models.IntentDecision, responses []models.ModuleResponse, retrieval evidence.Result) models.SynthesizedAnswer {
	var ok []contributor
	for i, r := range responses {
		if r.OK() {
			ok = append(ok, contributor{resp: r, order: i})
		}
	}
	if len(ok) == 0 {
		return s.Degraded(retrieval.Evidence)
	}

	var trace []string
	ok, trace = s.resolveConflicts(intent, ok)

	sort.SliceStable(ok, func(i, j int) bool {
		wi, wj := ok[i].resp.Urgency.Weight(), ok[j].resp.Urgency.Weight()
		if wi != wj {
			return wi > wj
		}
		return ok[i].order < ok[j].order
	})

	blocks := make([]string, 0, len(ok))
	consulted := make([]models.ModuleID, 0, len(ok))
	var pool []models.Evidence
	for _, c := range ok {
		if c.resp.Advice != "" {
			blocks = append(blocks, fmt.Sprintf("%s: %s", s.label(c.resp.ModuleID), c.resp.Advice))
		}
		consulted = append(consulted, c.resp.ModuleID)
		pool = append(pool, c.resp.Evidence...)
	}
	pool = append(pool, retrieval.Evidence...)

	return models.SynthesizedAnswer{
		Text:             strings.Join(blocks, "\n\n"),
		Confidence:       s.confidence(ok),
		EvidenceUnion:    Dedup(pool, s.cfg.MaxEvidence),
		ModulesConsulted: consulted,
		Trace:            trace,
	}
}

// Degraded is the fixed low-confidence answer used when nothing usable came back.
func (s *Synthesizer) Degraded(ev []models.Evidence) models.SynthesizedAnswer {
	return models.SynthesizedAnswer{
		Text:             DegradedTemplate,
		Confidence:       s.cfg.DegradedFloor,
		EvidenceUnion:    Dedup(ev, s.cfg.MaxEvidence),
		ModulesConsulted: []models.ModuleID{},
		Trace:            []string{string(commonerrors.ErrCodeSynthesisEmpty)},
		Degraded:         true,
	}
}

// confidence is the evidence-weighted mean, clamped to the best single contributor.
func (s *Synthesizer) confidence(ok []contributor) float64 {
	var num, den, best float64
	for _, c := range ok {
		w := math.Max(float64(len(c.resp.Evidence)), s.cfg.MinWeight)
		num += c.resp.Confidence * w
		den += w
		best = math.Max(best, c.resp.Confidence)
	}
	if den == 0 {
		return 0
	}
	return math.Min(math.Max(num/den, 0), best)
}

// resolveConflicts drops the losing side whenever two responses take different stances on
// the same topic.
func (s *Synthesizer) resolveConflicts(intent models.IntentDecision, ok []contributor) ([]contributor, []string) {
	byTopic := map[string][]int{}
	var topics []string
	for i, c := range ok {
		if c.resp.Topic == "" || c.resp.Stance == "" {
			continue
		}
		if _, seen := byTopic[c.resp.Topic]; !seen {
			topics = append(topics, c.resp.Topic)
		}
		byTopic[c.resp.Topic] = append(byTopic[c.resp.Topic], i)
	}

	drop := map[int]bool{}
	var trace []string
	for _, topic := range topics {
		idx := byTopic[topic]
		stances := map[string]bool{}
		for _, i := range idx {
			stances[ok[i].resp.Stance] = true
		}
		if len(stances) < 2 {
			continue
		}

		winner := idx[0]
		for _, i := range idx[1:] {
			if s.beats(intent, ok[i].resp, ok[winner].resp) {
				winner = i
			}
		}
		for _, i := range idx {
			if ok[i].resp.Stance != ok[winner].resp.Stance {
				drop[i] = true
			}
		}
		trace = append(trace, "conflict-resolved:"+string(ok[winner].resp.ModuleID))
	}

	if len(drop) == 0 {
		return ok, trace
	}
	kept := make([]contributor, 0, len(ok)-len(drop))
	for i, c := range ok {
		if !drop[i] {
			kept = append(kept, c)
		}
	}
	return kept, trace
}

// beats orders conflicting responses: confidence, then the primary intent, then specificity.
func (s *Synthesizer) beats(intent models.IntentDecision, a, b models.ModuleResponse) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.ModuleID == intent.PrimaryIntent || b.ModuleID == intent.PrimaryIntent {
		return a.ModuleID == intent.PrimaryIntent
	}
	sa, sb := s.registry.Specificity(string(a.ModuleID)), s.registry.Specificity(string(b.ModuleID))
	if sa != sb {
		return sa < sb
	}
	return a.ModuleID.Rank() < b.ModuleID.Rank()
}

func (s *Synthesizer) label(id models.ModuleID) string {
	if e, ok := s.registry.Get(string(id)); ok && e.DisplayName != "" {
		return e.DisplayName
	}
	return string(id)
}

// Dedup keeps the first occurrence of each (source, excerpt) pair with a non-blank source,
// up to limit entries.
func Dedup(in []models.Evidence, limit int) []models.Evidence {
	out := make([]models.Evidence, 0, len(in))
	seen := map[string]bool{}
	for _, ev := range in {
		if strings.TrimSpace(ev.Source) == "" || seen[ev.Key()] {
			continue
		}
		seen[ev.Key()] = true
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
