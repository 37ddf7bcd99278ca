package finance

import (
	"regexp"
	"strconv"
	"strings"
)

// FollowUpPolicy decides when an optimisation query has too little farm data to answer.
type FollowUpPolicy struct {
	MinBasicParams int
	MinCostParams  int
	MinTotalParams int
}

func DefaultFollowUpPolicy() FollowUpPolicy {
	return FollowUpPolicy{MinBasicParams: 1, MinCostParams: 2, MinTotalParams: 4}
}

var (
	basicParams = []string{"land_size_acres", "annual_production"}
	costParams  = []string{"fertilizer_cost", "water_cost", "seed_cost", "labor_cost", "machinery_cost"}

	landPattern       = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(acres?|hectares?|ha)\b`)
	productionPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:quintals?|qtls?|qt)\b`)

	costPatterns = map[string][]*regexp.Regexp{
		"fertilizer_cost": costRegexps(`fertili[sz]ers?`),
		"water_cost":      costRegexps(`(?:water|irrigation)`),
		"seed_cost":       costRegexps(`seeds?`),
		"labor_cost":      costRegexps(`(?:labou?r|workers?)`),
		"machinery_cost":  costRegexps(`(?:machinery|equipment|tractor)`),
	}
)

func costRegexps(item string) []*regexp.Regexp {
	money := `(?:rs\.?\s*|₹\s*)?(\d+(?:\.\d+)?)`
	return []*regexp.Regexp{
		regexp.MustCompile(`spend\s+` + money + `\s+on\s+` + item),
		regexp.MustCompile(item + `\s+(?:costs?|expenses?)?\s*(?:is|are|of)?\s*` + money),
		regexp.MustCompile(money + `\s+(?:for|on)\s+` + item),
	}
}

// ExtractParams pulls farm size, production and cost figures out of free text.
func ExtractParams(text string) map[string]float64 {
	lower := strings.ToLower(text)
	out := map[string]float64{}

	if m := landPattern.FindStringSubmatch(lower); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		if strings.HasPrefix(m[2], "h") {
			v *= 2.47
		}
		out["land_size_acres"] = v
	}
	if m := productionPattern.FindStringSubmatch(lower); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		out["annual_production"] = v
	}
	for key, patterns := range costPatterns {
		for _, re := range patterns {
			if m := re.FindStringSubmatch(lower); m != nil {
				v, _ := strconv.ParseFloat(m[1], 64)
				out[key] = v
				break
			}
		}
	}
	return out
}

type goal int

const (
	goalNone goal = iota
	goalOptimise
	goalProfit
)

// goalFact stores the goal of an unfinished economics conversation next to its parameters.
const goalFact = "goal"

func rememberedGoal(facts map[string]float64) goal {
	switch goal(facts[goalFact]) {
	case goalOptimise:
		return goalOptimise
	case goalProfit:
		return goalProfit
	}
	return goalNone
}

// rememberedParams copies the farm parameters of earlier turns, without the goal.
func rememberedParams(facts map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(facts))
	for k, v := range facts {
		if k != goalFact {
			out[k] = v
		}
	}
	return out
}

func withGoal(params map[string]float64, g goal) map[string]float64 {
	out := make(map[string]float64, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out[goalFact] = float64(g)
	return out
}

// NeedsFollowUp reports whether the module should ask for more farm data before advising.
func (p FollowUpPolicy) NeedsFollowUp(params map[string]float64, g goal) bool {
	basic := count(params, basicParams)
	cost := count(params, costParams)

	if len(params) >= p.MinTotalParams && basic >= p.MinBasicParams && cost >= p.MinCostParams {
		return false
	}
	switch g {
	case goalOptimise:
		return basic < p.MinBasicParams || cost < p.MinCostParams
	case goalProfit:
		return basic < p.MinBasicParams
	}
	return false
}

func count(params map[string]float64, keys []string) int {
	n := 0
	for _, k := range keys {
		if _, ok := params[k]; ok {
			n++
		}
	}
	return n
}

// FollowUpQuestions lists what to ask for, in a fixed order.
func FollowUpQuestions(params map[string]float64) []string {
	var qs []string
	if _, ok := params["land_size_acres"]; !ok {
		qs = append(qs, "How many acres of land do you cultivate?")
	}
	if _, ok := params["annual_production"]; !ok {
		qs = append(qs, "What is your current annual production in quintals?")
	}
	labels := map[string]string{
		"fertilizer_cost": "fertilizers",
		"water_cost":      "irrigation and water",
		"seed_cost":       "seeds",
		"labor_cost":      "labor",
		"machinery_cost":  "machinery",
	}
	var missing []string
	for _, k := range costParams {
		if _, ok := params[k]; !ok {
			missing = append(missing, labels[k])
		}
	}
	if len(missing) > 3 {
		missing = missing[:3]
	}
	if len(missing) > 0 {
		qs = append(qs, "What do you spend each year on "+strings.Join(missing, ", ")+"?")
	}
	qs = append(qs, "What type of irrigation do you use, and what budget do you have for improvements?")
	return qs
}
