// Package finance answers market price, credit and farm economics questions.
package finance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"
)

const (
	TopicMarketPrice   = "market-price"
	TopicProfitability = "profitability"
)

var (
	priceTerms    = []string{"price", "prices", "market", "mandi", "rate", "rates", "selling", "sell"}
	optimiseTerms = []string{"optimize", "optimise", "improve", "efficiency", "expenses", "reduce cost", "cost reduction", "better returns", "minimize costs", "strategy", "planning"}
	profitTerms   = []string{"profit", "profits", "income", "revenue", "maximize", "maximise", "economics", "budget"}
	creditTerms   = []string{"credit", "loan", "loans", "bank", "finance", "money", "investment", "capital", "funding"}
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type Module struct {
	prices PriceSource
	policy FollowUpPolicy
	logger Logger
	now    func() time.Time
}

func New(prices PriceSource, policy FollowUpPolicy, log Logger) *Module {
	if prices == nil {
		prices = DefaultPrices()
	}
	return &Module{prices: prices, policy: policy, logger: log, now: time.Now}
}

func (m *Module) ID() models.ModuleID { return models.ModuleFinance }

func (m *Module) Advise(ctx context.Context, in modules.Input) (modules.Output, error) {
	if strings.TrimSpace(in.Text) == "" {
		return modules.Output{}, modules.NewFailure(modules.FailureInvalidInput, nil)
	}

	switch {
	case modules.ContainsAny(in.Text, priceTerms...):
		return m.priceAdvice(ctx, in)
	case modules.ContainsAny(in.Text, optimiseTerms...):
		return m.economicsAdvice(in, goalOptimise), nil
	case modules.ContainsAny(in.Text, profitTerms...):
		return m.economicsAdvice(in, goalProfit), nil
	case modules.ContainsAny(in.Text, creditTerms...):
		return creditAdvice(), nil
	}
	// a reply to our follow-up questions carries no finance terms of its own
	if g := rememberedGoal(in.Facts); g != goalNone {
		return m.economicsAdvice(in, g), nil
	}
	return modules.Output{
		Advice: "Keep a season-wise record of input costs and sales, compare mandi prices before selling, " +
			"and use Kisan Credit Card credit instead of informal loans.",
		Urgency:    models.UrgencyLow,
		Confidence: 0.6,
	}, nil
}

func (m *Module) priceAdvice(ctx context.Context, in modules.Input) (modules.Output, error) {
	crop := modules.ResolveCrop(in.Crop, in.Text)
	if crop == "" {
		return generalPriceAdvice(), nil
	}

	p, found, err := m.prices.Price(ctx, crop)
	if err != nil {
		m.logger.Warn("price lookup failed", map[string]interface{}{"crop": crop, "error": err.Error()})
		if ctx.Err() != nil {
			return modules.Output{}, modules.NewFailure(modules.FailureTimeout, err)
		}
		return modules.Output{}, modules.NewFailure(modules.FailureNetwork, err)
	}
	if !found {
		return generalPriceAdvice(), nil
	}

	name := strings.ToUpper(p.Crop[:1]) + p.Crop[1:]
	var b strings.Builder
	fmt.Fprintf(&b, "%s is trading at ₹%.0f %s (range ₹%.0f-₹%.0f) with a %s trend and %s demand.",
		name, p.Current, p.Currency, p.Min, p.Max, p.Trend, p.Demand)
	if len(p.Markets) > 0 {
		fmt.Fprintf(&b, " Best markets: %s; peak season %s.", strings.Join(p.Markets, ", "), p.PeakSeason)
	}

	out := modules.Output{Confidence: 0.9, Topic: TopicMarketPrice}
	switch p.Trend {
	case "increasing":
		b.WriteString(" Prices are rising, so holding stock until the peak season may pay if storage is available.")
		out.Urgency, out.Stance = models.UrgencyLow, "hold"
	case "stable":
		b.WriteString(" Prices are stable, so selling now at a graded quality is reasonable.")
		out.Urgency, out.Stance = models.UrgencyMedium, "sell"
	default:
		b.WriteString(" Prices are falling, so consider selling soon.")
		out.Urgency, out.Stance = models.UrgencyHigh, "sell"
	}
	out.Advice = b.String()

	geo := in.Location
	if geo == "" {
		geo = "National"
	}
	out.Evidence = []models.Evidence{{
		Source:  "Agricultural Market Intelligence - " + name,
		Excerpt: fmt.Sprintf("Current market price: ₹%.0f per quintal with %s trend", p.Current, p.Trend),
		Date:    m.now().Format("2006-01-02"),
		Geo:     geo,
		Crop:    p.Crop,
	}}
	return out, nil
}

func (m *Module) economicsAdvice(in modules.Input, g goal) modules.Output {
	extracted := ExtractParams(in.Text)
	params := rememberedParams(in.Facts)
	for k, v := range extracted {
		params[k] = v
	}
	m.logger.Debug("farm parameters extracted", map[string]interface{}{
		"extracted":  len(extracted),
		"remembered": len(params) - len(extracted),
	})
	facts := withGoal(params, g)

	if m.policy.NeedsFollowUp(params, g) {
		qs := FollowUpQuestions(params)
		var b strings.Builder
		b.WriteString("To give a personalised plan I need a few farm details:")
		for i, q := range qs {
			fmt.Fprintf(&b, " (%d) %s", i+1, q)
		}
		b.WriteString(" Meanwhile, buy inputs through FPOs, follow soil-test based fertilizer doses and compare mandi prices before selling.")
		return modules.Output{
			Advice:        b.String(),
			Urgency:       models.UrgencyLow,
			Confidence:    0.6,
			Topic:         TopicProfitability,
			Facts:         facts,
			AwaitingReply: true,
		}
	}

	var b strings.Builder
	b.WriteString("Based on the figures you shared:")
	if acres, ok := params["land_size_acres"]; ok {
		fmt.Fprintf(&b, " farm size %.1f acres;", acres)
		if prod, ok := params["annual_production"]; ok && acres > 0 {
			fmt.Fprintf(&b, " productivity %.1f quintals per acre;", prod/acres)
		}
	}
	var totalCost float64
	for _, k := range costParams {
		totalCost += params[k]
	}
	if totalCost > 0 {
		fmt.Fprintf(&b, " recorded input costs ₹%.0f per year.", totalCost)
	}
	b.WriteString(" Cut fertilizer spend with soil-test based doses, move to drip or alternate wetting to reduce water cost, " +
		"and share machinery through custom hiring centres.")
	return modules.Output{Advice: b.String(), Urgency: models.UrgencyMedium, Confidence: 0.8, Topic: TopicProfitability, Facts: facts}
}

func generalPriceAdvice() modules.Output {
	return modules.Output{
		Advice: "Check daily mandi rates on the eNAM portal or the Agmarknet app before selling, grade and dry produce " +
			"well to earn a premium, and compare MSP with local market prices.",
		Urgency:    models.UrgencyLow,
		Confidence: 0.6,
		Topic:      TopicMarketPrice,
	}
}

func creditAdvice() modules.Output {
	return modules.Output{
		Advice: "A Kisan Credit Card gives crop loans at subsidised interest with prompt repayment incentives. " +
			"Banks also offer gold loans and tractor loans for farm investment; compare interest rates before borrowing.",
		Urgency:    models.UrgencyMedium,
		Confidence: 0.75,
		Evidence: []models.Evidence{{
			Source:  "Central Government - Kisan Credit Card",
			Excerpt: "KCC provides short term crop loans with interest subvention for prompt repayment.",
			Geo:     "India",
			Crop:    "all",
		}},
	}
}
