// Package crop gives practice guidance per crop from a static guide table.
package crop

import (
	"context"
	"strings"

	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"
	"krishmitra-advisor/internal/modules/weather"
)

const generalAdvice = "Follow recommended agricultural practices for optimal crop production and yield."

type Logger interface {
	Debug(msg string, fields map[string]interface{})
}

type Module struct {
	logger Logger
}

func New(log Logger) *Module {
	return &Module{logger: log}
}

func (m *Module) ID() models.ModuleID { return models.ModuleCrop }

func (m *Module) Advise(ctx context.Context, in modules.Input) (modules.Output, error) {
	if err := ctx.Err(); err != nil {
		return modules.Output{}, modules.NewFailure(modules.FailureTimeout, err)
	}
	if strings.TrimSpace(in.Text) == "" {
		return modules.Output{}, modules.NewFailure(modules.FailureInvalidInput, nil)
	}

	cropName := modules.ResolveCrop(in.Crop, in.Text)
	p, ok := classify(in.Text)
	if !ok {
		return modules.Output{Advice: generalAdvice, Urgency: models.UrgencyLow, Confidence: 0.5}, nil
	}

	g, found := cropGuides[cropName][p]
	if !found {
		g = genericGuides[p]
	}

	out := modules.Output{
		Advice:     g.advice,
		Urgency:    g.urgency,
		Confidence: g.confidence,
	}
	if cropName != "" && !found {
		out.Advice = strings.ToUpper(cropName[:1]) + cropName[1:] + ": " + out.Advice
	}
	if g.evidence != nil {
		out.Evidence = []models.Evidence{*g.evidence}
	}
	if p == practiceIrrigation {
		out.Topic = weather.TopicIrrigation
		out.Stance = weather.StanceIrrigate
		if w, ok := in.UpstreamOf(models.ModuleWeather); ok && w.Stance == weather.StanceDefer {
			out.Stance = weather.StanceDefer
			out.Advice = "Rain is forecast, so hold the next irrigation until the field drains. " + out.Advice
		}
	}

	m.logger.Debug("crop guidance selected", map[string]interface{}{
		"crop":     cropName,
		"practice": string(p),
		"guided":   found,
	})
	return out, nil
}

func classify(text string) (practice, bool) {
	switch {
	case modules.ContainsAny(text, "irrigation", "irrigate", "irrigating", "water", "watering"):
		return practiceIrrigation, true
	case modules.ContainsAny(text, "fertilizer", "fertiliser", "fertilize", "npk", "nutrient", "nutrients", "urea", "manure"):
		return practiceFertilizer, true
	case modules.ContainsAny(text, "pest", "pests", "insect", "insects", "disease", "bollworm", "rust", "spray", "fungicide"):
		return practicePest, true
	case modules.ContainsAny(text, "plant", "planting", "sow", "sowing", "transplant", "spacing", "seedling", "seedlings"):
		return practicePlanting, true
	}
	return "", false
}
