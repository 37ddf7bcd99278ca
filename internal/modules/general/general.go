// Package general answers when no specialist module applies.
package general

import (
	"context"

	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"
)

type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) ID() models.ModuleID { return models.ModuleGeneral }

func (m *Module) Advise(ctx context.Context, in modules.Input) (modules.Output, error) {
	if err := ctx.Err(); err != nil {
		return modules.Output{}, modules.NewFailure(modules.FailureTimeout, err)
	}
	advice := "Follow recommended practices for your region: test soil before each season, choose certified seed, " +
		"irrigate by crop stage and soil moisture, and contact your local Krishi Vigyan Kendra for crop specific guidance."
	if crop := modules.ResolveCrop(in.Crop, in.Text); crop != "" {
		advice = "For " + crop + ": " + advice
	}
	return modules.Output{
		Advice:     advice,
		Urgency:    models.UrgencyLow,
		Confidence: 0.5,
	}, nil
}
