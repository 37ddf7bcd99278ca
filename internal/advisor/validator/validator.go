// Package validator applies safety and quality checks to a synthesized answer before it is
// returned. It fails open.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"krishmitra-advisor/internal/advisor/synthesis"
	commonerrors "krishmitra-advisor/internal/common/errors"
	"krishmitra-advisor/internal/common/metrics"
	"krishmitra-advisor/internal/models"
)

const (
	FlagEmptyText      = "validator-empty-text"
	FlagLowConfidence  = "low-confidence-disclaimer"
	FlagUnsafeDosage   = "unsafe-dosage-substituted"
	Disclaimer         = "Note: our confidence in this advice is limited. Please confirm with your local agriculture officer before acting on it."
	HedgedDoseTemplate = "Follow the dose printed on the product label or recommended by your local agronomist, based on a soil test; do not exceed label rates."
)

var (
	doseVerb = regexp.MustCompile(`(?i)\b(apply|applying|spray|spraying|use|using|add|mix|broadcast|drench|give|put)\b`)
	doseRate = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:kg|kgs|g|gm|gms|grams?|ml|l|lit|litres?|liters?|quintals?)(?:\s+(?:of\s+)?[a-z]+){0,3}\s*(?:/|per)\s*(?:ha|hectares?|acres?|l|lit|litres?|liters?|plants?|tanks?|bighas?)\b`)
	// labelPrefix matches the "Module Name: " tag the synthesizer puts before each block.
	labelPrefix = regexp.MustCompile(`^[A-Z][A-Za-z ]{0,40}: `)
	hedges      = []string{"consult", "as per label", "label", "soil test", "recommended", "local agronomist", "agriculture officer", "krishi vigyan kendra", "kvk"}
)

type Logger interface {
	Warn(msg string, fields map[string]interface{})
}

// Check inspects or rewrites the answer in place. A returned error aborts validation.
type Check func(a *models.SynthesizedAnswer) error

type Config struct {
	PublishThreshold float64
	DegradedFloor    float64
}

type Validator struct {
	cfg    Config
	checks []Check
	log    Logger
}

type Option func(*Validator)

// WithCheck appends a check that runs after the built-in ones.
func WithCheck(c Check) Option {
	return func(v *Validator) { v.checks = append(v.checks, c) }
}

func New(cfg Config, log Logger, opts ...Option) *Validator {
	if cfg.PublishThreshold <= 0 {
		cfg.PublishThreshold = 0.5
	}
	if cfg.DegradedFloor <= 0 {
		cfg.DegradedFloor = 0.2
	}
	v := &Validator{cfg: cfg, log: log}
	v.checks = []Check{v.nonEmpty, v.disclaimer, v.dosage}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate never fails. A panic or error inside any check returns the input unchanged apart
// from a validator-bypassed trace entry.
func (v *Validator) Validate(in models.SynthesizedAnswer) (out models.SynthesizedAnswer) {
	defer func() {
		if p := recover(); p != nil {
			out = v.bypass(in, fmt.Errorf("panic: %v", p))
		}
	}()

	work := in.Clone()
	for _, check := range v.checks {
		if err := check(&work); err != nil {
			return v.bypass(in, err)
		}
	}
	return work
}

func (v *Validator) bypass(in models.SynthesizedAnswer, cause error) models.SynthesizedAnswer {
	v.log.Warn("validator bypassed", map[string]interface{}{"cause": cause.Error()})
	metrics.ValidatorFlags.WithLabelValues(string(commonerrors.ErrCodeValidatorBypassed)).Inc()
	out := in.Clone()
	out.Trace = append(out.Trace, string(commonerrors.ErrCodeValidatorBypassed))
	return out
}

func (v *Validator) nonEmpty(a *models.SynthesizedAnswer) error {
	if strings.TrimSpace(a.Text) != "" {
		return nil
	}
	a.Text = synthesis.DegradedTemplate
	if a.Confidence > v.cfg.DegradedFloor {
		a.Confidence = v.cfg.DegradedFloor
	}
	a.Degraded = true
	flag(a, FlagEmptyText)
	return nil
}

func (v *Validator) disclaimer(a *models.SynthesizedAnswer) error {
	if a.Degraded || a.Confidence >= v.cfg.PublishThreshold {
		return nil
	}
	a.Text = Disclaimer + "\n\n" + a.Text
	flag(a, FlagLowConfidence)
	return nil
}

func (v *Validator) dosage(a *models.SynthesizedAnswer) error {
	var changed bool
	paragraphs := strings.Split(a.Text, "\n")
	for i, p := range paragraphs {
		label := labelPrefix.FindString(p)
		sentences := splitSentences(p[len(label):])
		hit := false
		for j, s := range sentences {
			if UnsafeDosage(s) {
				sentences[j] = HedgedDoseTemplate
				hit = true
			}
		}
		if hit {
			paragraphs[i] = label + strings.Join(sentences, " ")
			changed = true
		}
	}
	if changed {
		a.Text = strings.Join(paragraphs, "\n")
		flag(a, FlagUnsafeDosage)
	}
	return nil
}

// UnsafeDosage reports whether the sentence states an absolute dose without any hedge.
func UnsafeDosage(sentence string) bool {
	if !doseVerb.MatchString(sentence) || !doseRate.MatchString(sentence) {
		return false
	}
	lower := strings.ToLower(sentence)
	for _, h := range hedges {
		if strings.Contains(lower, h) {
			return false
		}
	}
	return true
}

// splitSentences breaks on . ! or ? followed by whitespace, so decimals like 2.5 stay whole.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\t' {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func flag(a *models.SynthesizedAnswer, name string) {
	a.Trace = append(a.Trace, name)
	a.Flags = append(a.Flags, name)
	metrics.ValidatorFlags.WithLabelValues(name).Inc()
}
