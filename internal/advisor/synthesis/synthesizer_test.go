package synthesis

import (
	"math/rand"
	"strings"
	"testing"

	"krishmitra-advisor/internal/advisor/evidence"
	"krishmitra-advisor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(id models.ModuleID, conf float64, urgency models.Urgency, advice string, ev ...models.Evidence) models.ModuleResponse {
	return models.ModuleResponse{ModuleID: id, Advice: advice, Confidence: conf, Urgency: urgency, Status: models.StatusOK, Evidence: ev}
}

func failed(id models.ModuleID, status models.ResponseStatus) models.ModuleResponse {
	return models.ModuleResponse{
		ModuleID: id, Status: status, ErrorDetail: "boom",
		Confidence: 0.99, Evidence: []models.Evidence{{Source: "leaked.pdf", Excerpt: "must not appear"}},
	}
}

func ev(source, excerpt string) models.Evidence {
	return models.Evidence{Source: source, Excerpt: excerpt}
}

func TestSynthesizeAllFailedIsDegradedTemplate(t *testing.T) {
	s := New(Config{}, nil)

	a := s.Synthesize(models.IntentDecision{}, []models.ModuleResponse{
		failed(models.ModuleWeather, models.StatusTimeout),
		failed(models.ModuleCrop, models.StatusFailed),
	}, evidence.Result{})

	assert.Equal(t, DegradedTemplate, a.Text)
	assert.Equal(t, 0.2, a.Confidence)
	assert.True(t, a.Degraded)
	assert.Contains(t, a.Trace, "synthesis-empty")
	assert.Empty(t, a.ModulesConsulted)
	assert.Empty(t, a.EvidenceUnion)
}

func TestSynthesizeFailedModulesContributeNothing(t *testing.T) {
	s := New(Config{}, nil)

	a := s.Synthesize(models.IntentDecision{}, []models.ModuleResponse{
		ok(models.ModuleWeather, 0.95, models.UrgencyMedium, "Rain likely tomorrow.", ev("real_time_weather_api", "70% chance of rain")),
		failed(models.ModuleFinance, models.StatusFailed),
	}, evidence.Result{})

	assert.Equal(t, []models.ModuleID{models.ModuleWeather}, a.ModulesConsulted)
	assert.NotContains(t, a.Text, "must not appear")
	for _, e := range a.EvidenceUnion {
		assert.NotEqual(t, "leaked.pdf", e.Source)
	}
	assert.InDelta(t, 0.95, a.Confidence, 1e-9)
	assert.False(t, a.Degraded)
}

func TestSynthesizeOrdersByUrgencyThenPlan(t *testing.T) {
	s := New(Config{}, nil)

	a := s.Synthesize(models.IntentDecision{}, []models.ModuleResponse{
		ok(models.ModuleWeather, 0.9, models.UrgencyLow, "weather block"),
		ok(models.ModuleFinance, 0.9, models.UrgencyHigh, "finance block"),
		ok(models.ModuleCrop, 0.9, models.UrgencyLow, "crop block"),
	}, evidence.Result{})

	assert.Equal(t, []models.ModuleID{models.ModuleFinance, models.ModuleWeather, models.ModuleCrop}, a.ModulesConsulted)
	fi := strings.Index(a.Text, "finance block")
	wi := strings.Index(a.Text, "weather block")
	ci := strings.Index(a.Text, "crop block")
	assert.True(t, fi < wi && wi < ci, a.Text)
	assert.Contains(t, a.Text, "Weather: weather block")
	assert.Contains(t, a.Text, "Crop Management: crop block")
}

func TestSynthesizeEvidenceWeightedConfidence(t *testing.T) {
	s := New(Config{MinWeight: 0.5}, nil)

	a := s.Synthesize(models.IntentDecision{}, []models.ModuleResponse{
		ok(models.ModuleWeather, 0.9, models.UrgencyMedium, "w", ev("a", "1"), ev("b", "2"), ev("c", "3")),
		ok(models.ModuleGeneral, 0.5, models.UrgencyLow, "g"),
	}, evidence.Result{})

	// (0.9*3 + 0.5*0.5) / 3.5
	assert.InDelta(t, 2.95/3.5, a.Confidence, 1e-9)
}

func TestSynthesizeConfidenceNeverExceedsBestContributor(t *testing.T) {
	s := New(Config{}, nil)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		var responses []models.ModuleResponse
		best := 0.0
		anyOK := false
		for _, id := range models.CanonicalModules {
			if rng.Intn(3) == 0 {
				responses = append(responses, failed(id, models.StatusFailed))
				continue
			}
			c := rng.Float64()
			if c > best {
				best = c
			}
			anyOK = true
			var evs []models.Evidence
			for j := 0; j < rng.Intn(4); j++ {
				evs = append(evs, ev(string(id), string(rune('a'+j))))
			}
			responses = append(responses, ok(id, c, models.UrgencyMedium, "advice", evs...))
		}

		a := s.Synthesize(models.IntentDecision{}, responses, evidence.Result{})
		assert.GreaterOrEqual(t, a.Confidence, 0.0)
		assert.LessOrEqual(t, a.Confidence, 1.0)
		if anyOK {
			assert.LessOrEqual(t, a.Confidence, best+1e-12)
		} else {
			assert.Equal(t, 0.2, a.Confidence)
		}
	}
}

func TestSynthesizeResolvesConflictByConfidence(t *testing.T) {
	s := New(Config{}, nil)
	weather := ok(models.ModuleWeather, 0.95, models.UrgencyMedium, "Defer irrigation, rain expected.")
	weather.Topic, weather.Stance = "irrigation-timing", "defer"
	crop := ok(models.ModuleCrop, 0.85, models.UrgencyMedium, "Irrigate now.")
	crop.Topic, crop.Stance = "irrigation-timing", "irrigate"

	a := s.Synthesize(models.IntentDecision{}, []models.ModuleResponse{weather, crop}, evidence.Result{})

	assert.Contains(t, a.Text, "Defer irrigation")
	assert.NotContains(t, a.Text, "Irrigate now.")
	assert.Equal(t, []string{"conflict-resolved:weather"}, a.Trace)
	assert.Equal(t, []models.ModuleID{models.ModuleWeather}, a.ModulesConsulted)
}

func TestSynthesizeConflictTieGoesToPrimaryIntentThenSpecificity(t *testing.T) {
	s := New(Config{}, nil)
	weather := ok(models.ModuleWeather, 0.8, models.UrgencyMedium, "defer")
	weather.Topic, weather.Stance = "irrigation-timing", "defer"
	crop := ok(models.ModuleCrop, 0.8, models.UrgencyMedium, "irrigate")
	crop.Topic, crop.Stance = "irrigation-timing", "irrigate"
	responses := []models.ModuleResponse{weather, crop}

	a := s.Synthesize(models.IntentDecision{PrimaryIntent: models.ModuleWeather}, responses, evidence.Result{})
	assert.Equal(t, []string{"conflict-resolved:weather"}, a.Trace)

	a = s.Synthesize(models.IntentDecision{PrimaryIntent: models.ModuleFinance}, responses, evidence.Result{})
	assert.Equal(t, []string{"conflict-resolved:crop"}, a.Trace, "crop is the more specific module")
}

func TestSynthesizeAgreeingStancesAreNotConflicts(t *testing.T) {
	s := New(Config{}, nil)
	weather := ok(models.ModuleWeather, 0.95, models.UrgencyMedium, "Rain expected.")
	weather.Topic, weather.Stance = "irrigation-timing", "defer"
	crop := ok(models.ModuleCrop, 0.85, models.UrgencyMedium, "Hold irrigation until the rain passes.")
	crop.Topic, crop.Stance = "irrigation-timing", "defer"

	a := s.Synthesize(models.IntentDecision{}, []models.ModuleResponse{weather, crop}, evidence.Result{})
	assert.Empty(t, a.Trace)
	assert.Len(t, a.ModulesConsulted, 2)
}

func TestSynthesizeEvidenceUnionDedupAndCap(t *testing.T) {
	s := New(Config{MaxEvidence: 3}, nil)

	a := s.Synthesize(models.IntentDecision{}, []models.ModuleResponse{
		ok(models.ModuleCrop, 0.8, models.UrgencyMedium, "c", ev("guide.pdf", "x"), ev("guide.pdf", "x")),
	}, evidence.Result{Evidence: []models.Evidence{ev("guide.pdf", "x"), ev("", "orphan"), ev("r1", "y"), ev("r2", "z"), ev("r3", "w")}})

	require.Len(t, a.EvidenceUnion, 3)
	assert.Equal(t, "guide.pdf", a.EvidenceUnion[0].Source)
	assert.Equal(t, "r1", a.EvidenceUnion[1].Source)
	assert.Equal(t, "r2", a.EvidenceUnion[2].Source)
}
