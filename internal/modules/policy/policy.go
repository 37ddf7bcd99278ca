// Package policy matches queries against a catalogue of government and institutional schemes.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"
)

const (
	TopicEligibility = "scheme-eligibility"
	maxSchemes       = 3
)

var (
	applyTerms       = []string{"apply", "application", "how to", "process", "form", "register", "registration", "enroll"}
	eligibilityTerms = []string{"eligible", "eligibility", "qualify", "requirement", "requirements"}
)

type Module struct {
	schemes []Scheme
}

func New() *Module {
	return &Module{schemes: catalogue}
}

func (m *Module) ID() models.ModuleID { return models.ModulePolicy }

func (m *Module) Advise(ctx context.Context, in modules.Input) (modules.Output, error) {
	if err := ctx.Err(); err != nil {
		return modules.Output{}, modules.NewFailure(modules.FailureTimeout, err)
	}
	if strings.TrimSpace(in.Text) == "" {
		return modules.Output{}, modules.NewFailure(modules.FailureInvalidInput, nil)
	}

	matched := m.Search(in.Text, in.Location)
	if len(matched) > maxSchemes {
		matched = matched[:maxSchemes]
	}

	applying := modules.ContainsAny(in.Text, applyTerms...)
	checking := modules.ContainsAny(in.Text, eligibilityTerms...)

	var b strings.Builder
	fmt.Fprintf(&b, "Relevant schemes (%d):", len(matched))
	evidence := make([]models.Evidence, 0, len(matched))
	for i, s := range matched {
		fmt.Fprintf(&b, " %d. %s:", i+1, s.Name)
		switch {
		case applying:
			fmt.Fprintf(&b, " %s. Apply online at %s.", strings.Join(s.HowToApply, "; "), s.Link)
		case checking:
			fmt.Fprintf(&b, " eligibility: %s.", s.Eligibility)
		default:
			fmt.Fprintf(&b, " %s. Eligibility: %s.", s.Benefits, s.Eligibility)
		}
		evidence = append(evidence, models.Evidence{
			Source:  fmt.Sprintf("%s - %s", categoryLabel(s.Category), s.Name),
			Excerpt: fmt.Sprintf("%s | Benefits: %s", s.Objective, s.Benefits),
			Geo:     s.Geo,
			Crop:    "all",
		})
	}
	if !applying {
		b.WriteString(" Visit your nearest agriculture office or the official portal for the application process.")
	}

	out := modules.Output{
		Advice:     b.String(),
		Urgency:    models.UrgencyMedium,
		Evidence:   evidence,
		Confidence: 0.9,
	}
	if applying || checking {
		out.Urgency = models.UrgencyHigh
		out.Topic = TopicEligibility
	}
	return out, nil
}

// Search returns matching schemes in catalogue order. Without a keyword hit it falls back to
// category browsing, then to the central schemes.
func (m *Module) Search(text, location string) []Scheme {
	lower := strings.ToLower(text)
	ids := map[string]bool{}

	keys := make([]string, 0, len(keywordSchemes))
	for k := range keywordSchemes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if modules.ContainsAny(lower, k) {
			for _, id := range keywordSchemes[k] {
				ids[id] = true
			}
		}
	}

	byCategory := func(c category) {
		for _, s := range m.schemes {
			if s.Category == c {
				ids[s.ID] = true
			}
		}
	}
	if len(ids) == 0 {
		loc := strings.ToLower(location)
		switch {
		case modules.ContainsAny(lower, "bank", "banking", "finance"):
			byCategory(categoryBanking)
		case strings.Contains(loc, "tamil nadu") || modules.ContainsAny(loc, "tn"):
			byCategory(categoryState)
		default:
			byCategory(categoryCentral)
		}
	}

	var out []Scheme
	for _, s := range m.schemes {
		if ids[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

func categoryLabel(c category) string {
	words := strings.Split(string(c), "_")
	for i, w := range words {
		if w == "ngo" {
			words[i] = "NGO"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
