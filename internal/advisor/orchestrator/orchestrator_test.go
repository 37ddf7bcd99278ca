package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"krishmitra-advisor/internal/advisor/evidence"
	"krishmitra-advisor/internal/advisor/intent"
	"krishmitra-advisor/internal/advisor/router"
	"krishmitra-advisor/internal/advisor/synthesis"
	"krishmitra-advisor/internal/advisor/validator"
	"krishmitra-advisor/internal/common/logger"
	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"
	"krishmitra-advisor/internal/modules/crop"
	"krishmitra-advisor/internal/modules/finance"
	"krishmitra-advisor/internal/modules/general"
	"krishmitra-advisor/internal/modules/policy"
	"krishmitra-advisor/internal/modules/weather"
	"krishmitra-advisor/internal/sessions"
	"krishmitra-advisor/pkg/registry"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	reply string
	err   error
}

func (s stubLLM) CompleteJSON(context.Context, string, string) (string, error) {
	return s.reply, s.err
}

type funcAdapter struct {
	id models.ModuleID
	fn func(ctx context.Context, in modules.Input) (modules.Output, error)
}

func (f funcAdapter) ID() models.ModuleID { return f.id }
func (f funcAdapter) Advise(ctx context.Context, in modules.Input) (modules.Output, error) {
	return f.fn(ctx, in)
}

func failing(id models.ModuleID, kind modules.FailureKind) funcAdapter {
	return funcAdapter{id: id, fn: func(context.Context, modules.Input) (modules.Output, error) {
		return modules.Output{}, modules.NewFailure(kind, errors.New(string(id)+" upstream unavailable"))
	}}
}

// rainyWeather stands in for the live weather module.
func rainyWeather() funcAdapter {
	return funcAdapter{id: models.ModuleWeather, fn: func(context.Context, modules.Input) (modules.Output, error) {
		return modules.Output{
			Advice:     "80% chance of rain tomorrow with 18 mm expected.",
			Urgency:    models.UrgencyMedium,
			Confidence: 0.95,
			Topic:      weather.TopicIrrigation,
			Stance:     weather.StanceDefer,
			Evidence: []models.Evidence{{
				Source:  "real_time_weather_api",
				Excerpt: "Tomorrow: 80% chance of rain, 18.0 mm",
			}},
		}, nil
	}}
}

type downIndex struct{}

func (downIndex) Name() string { return "down" }
func (downIndex) Upsert(context.Context, []evidence.Document, [][]float32) error {
	return nil
}
func (downIndex) Search(context.Context, []float32, int, evidence.Filter) ([]evidence.Hit, error) {
	return nil, errors.New("dial tcp 10.0.0.7:5432: connection refused")
}

type fixture struct {
	llm      intent.Completer
	registry *registry.ModuleRegistry
	index    evidence.VectorIndex
	synth    AnswerSynthesizer
	sessions SessionContext
}

func newOrchestrator(t *testing.T, fx fixture, adapters ...modules.Adapter) *Orchestrator {
	t.Helper()
	log := logger.NewTestLogger(t)
	reg := fx.registry
	if reg == nil {
		reg = registry.Default()
	}

	corpus, err := evidence.NewCorpus(evidence.SeedDocuments())
	require.NoError(t, err)
	index := fx.index
	if index == nil {
		index = evidence.NewMemoryIndex()
	}
	store := evidence.NewStore(corpus, index, evidence.NewHashEmbedder(128), evidence.Config{TopK: 3, RetryDelay: time.Millisecond}, log)
	require.NoError(t, store.Seed(context.Background()))

	synth := fx.synth
	if synth == nil {
		synth = synthesis.New(synthesis.Config{}, reg)
	}
	return New(Deps{
		Intent:      intent.NewAnalyzer(fx.llm, reg, time.Second, log),
		Router:      router.New(modules.NewCatalog(adapters...), reg, router.Config{ModuleTimeout: time.Second, RequestBudget: 5 * time.Second}, log),
		Evidence:    store,
		Synthesizer: synth,
		Validator:   validator.New(validator.Config{}, log),
		Sessions:    fx.sessions,
	}, 5*time.Second, log)
}

func llmReply(ids string) stubLLM {
	return stubLLM{reply: `{"required_modules": [` + ids + `], "urgency": "medium", "needs_realtime": true}`}
}

func TestRunRejectsEmptyQuery(t *testing.T) {
	o := newOrchestrator(t, fixture{})

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := o.Run(context.Background(), models.Query{Text: text})
		assert.ErrorIs(t, err, ErrEmptyQuery)
	}
}

func TestRunWheatPrice(t *testing.T) {
	o := newOrchestrator(t, fixture{llm: llmReply(`"finance"`)},
		finance.New(finance.DefaultPrices(), finance.DefaultFollowUpPolicy(), logger.NewTestLogger(t)))

	a, err := o.Run(context.Background(), models.Query{Text: "What is the current market price of wheat?", SessionID: "s-1"})
	require.NoError(t, err)

	assert.Equal(t, []models.ModuleID{models.ModuleFinance}, a.ModulesConsulted)
	assert.Contains(t, a.Text, "₹2100")
	assert.NotEmpty(t, a.RunID)
	assert.Equal(t, "s-1", a.SessionID)
	assert.False(t, a.Degraded)
	assert.InDelta(t, 0.9, a.Confidence, 1e-9)
	var sources []string
	for _, e := range a.EvidenceUnion {
		sources = append(sources, e.Source)
	}
	assert.Contains(t, sources, "Agricultural Market Intelligence - Wheat")
	assert.NotContains(t, a.Trace, "intent-analysis-degraded")
}

func TestRunIrrigationCallsWeatherBeforeCrop(t *testing.T) {
	var mu sync.Mutex
	var upstream []models.ModuleResponse
	cropModule := crop.New(logger.NewTestLogger(t))
	recording := funcAdapter{id: models.ModuleCrop, fn: func(ctx context.Context, in modules.Input) (modules.Output, error) {
		mu.Lock()
		upstream = in.Upstream
		mu.Unlock()
		return cropModule.Advise(ctx, in)
	}}
	o := newOrchestrator(t, fixture{llm: llmReply(`"crop", "weather"`)}, rainyWeather(), recording)

	a, err := o.Run(context.Background(), models.Query{Text: "Should I irrigate my paddy field tomorrow?", Location: "Mandya"})
	require.NoError(t, err)

	require.Len(t, upstream, 1)
	assert.Equal(t, models.ModuleWeather, upstream[0].ModuleID)
	assert.ElementsMatch(t, []models.ModuleID{models.ModuleWeather, models.ModuleCrop}, a.ModulesConsulted)
	assert.Contains(t, a.Text, "hold the next irrigation", "crop defers to the rain forecast")
	assert.NotContains(t, strings.Join(a.Trace, " "), "conflict-resolved")
	assert.NotEmpty(t, a.EvidenceUnion)
	assert.False(t, a.Degraded)
}

func TestRunFinanceFailureWeatherSuccess(t *testing.T) {
	o := newOrchestrator(t, fixture{llm: llmReply(`"weather", "finance"`)},
		rainyWeather(), failing(models.ModuleFinance, modules.FailureNetwork))

	a, err := o.Run(context.Background(), models.Query{Text: "Rain tomorrow and wheat price?"})
	require.NoError(t, err)

	assert.Equal(t, []models.ModuleID{models.ModuleWeather}, a.ModulesConsulted)
	assert.Contains(t, a.Trace, "module-failed:finance:failed")
	assert.Contains(t, a.Text, "chance of rain")
	assert.False(t, a.Degraded)
	for _, e := range a.EvidenceUnion {
		assert.NotContains(t, e.Source, "Market Intelligence")
	}
}

func TestRunAllModulesFailIsDegradedTemplate(t *testing.T) {
	o := newOrchestrator(t, fixture{llm: llmReply(`"weather", "crop"`)},
		failing(models.ModuleWeather, modules.FailureTimeout), failing(models.ModuleCrop, modules.FailureInternal))

	a, err := o.Run(context.Background(), models.Query{Text: "Should I irrigate my wheat today?"})
	require.NoError(t, err)

	assert.Equal(t, synthesis.DegradedTemplate, a.Text)
	assert.Equal(t, 0.2, a.Confidence)
	assert.True(t, a.Degraded)
	assert.Empty(t, a.ModulesConsulted)
	assert.Contains(t, a.Trace, "synthesis-empty")
	assert.Contains(t, a.Trace, "module-failed:weather:timeout")
	assert.Contains(t, a.Trace, "module-failed:crop:failed")
	assert.Equal(t, "step:done", a.Trace[len(a.Trace)-1])
}

func TestRunLLMFailureUsesKeywordFallback(t *testing.T) {
	o := newOrchestrator(t, fixture{llm: stubLLM{err: errors.New("503 from model gateway")}},
		policy.New(), general.New())

	a, err := o.Run(context.Background(), models.Query{Text: "Which government scheme gives income support to small farmers?"})
	require.NoError(t, err)

	assert.Contains(t, a.Trace, "intent-analysis-degraded")
	assert.Equal(t, []models.ModuleID{models.ModulePolicy}, a.ModulesConsulted)
	assert.NotEmpty(t, a.Text)
}

func TestRunVectorOutageFallsBackToLexical(t *testing.T) {
	o := newOrchestrator(t, fixture{index: downIndex{}}, general.New())

	a, err := o.Run(context.Background(), models.Query{Text: "How do I manage pests on my farm this season?"})
	require.NoError(t, err)

	assert.Contains(t, a.Trace, "retrieval-degraded")
	assert.NotEmpty(t, a.EvidenceUnion, "lexical index still serves evidence")
}

func TestRunTraceFollowsStateMachine(t *testing.T) {
	o := newOrchestrator(t, fixture{llm: llmReply(`"general"`)}, general.New())

	a, err := o.Run(context.Background(), models.Query{Text: "tips for a better harvest"})
	require.NoError(t, err)

	var steps []string
	for _, entry := range a.Trace {
		if strings.HasPrefix(entry, "step:") {
			steps = append(steps, entry)
		}
	}
	assert.Equal(t, []string{
		"step:start", "step:analyzing", "step:routing", "step:executing",
		"step:synthesizing", "step:validating", "step:done",
	}, steps)
}

func TestRunPlanCycleIsErrored(t *testing.T) {
	reg := registry.Default()
	for i := range reg.Modules {
		if reg.Modules[i].ID == "weather" {
			reg.Modules[i].DependsOn = []string{"crop"}
		}
	}
	o := newOrchestrator(t, fixture{llm: llmReply(`"weather", "crop"`), registry: reg}, rainyWeather(), crop.New(logger.NewNoOpLogger()))

	a, err := o.Run(context.Background(), models.Query{Text: "Should I irrigate today?"})
	require.NoError(t, err, "faults never reach the caller")

	assert.Equal(t, synthesis.DegradedTemplate, a.Text)
	assert.Equal(t, 0.2, a.Confidence)
	assert.True(t, a.Degraded)
	assert.Contains(t, a.Trace, "step:errored")
	assert.Equal(t, "errored", a.Trace[len(a.Trace)-1])
	assert.NotContains(t, a.Trace, "step:executing")
}

type panickingSynth struct {
	*synthesis.Synthesizer
}

func (panickingSynth) Synthesize(models.IntentDecision, []models.ModuleResponse, evidence.Result) models.SynthesizedAnswer {
	panic("index out of range")
}

func TestRunPanicIsErrored(t *testing.T) {
	o := newOrchestrator(t, fixture{
		llm:   llmReply(`"general"`),
		synth: panickingSynth{synthesis.New(synthesis.Config{}, nil)},
	}, general.New())

	a, err := o.Run(context.Background(), models.Query{Text: "any advice?"})
	require.NoError(t, err)

	assert.Equal(t, synthesis.DegradedTemplate, a.Text)
	assert.Contains(t, a.Trace, "step:synthesizing")
	assert.Contains(t, a.Trace, "step:errored")
	assert.NotEmpty(t, a.RunID)
}

func TestRunConfidenceStaysInBounds(t *testing.T) {
	log := logger.NewTestLogger(t)
	o := newOrchestrator(t, fixture{},
		rainyWeather(),
		crop.New(log),
		finance.New(nil, finance.DefaultFollowUpPolicy(), log),
		policy.New(),
		general.New(),
	)

	queries := []string{
		"What is the price of cotton in the mandi?",
		"When should I apply urea to wheat?",
		"Will it rain tomorrow, should I irrigate my maize?",
		"How do I apply for PM-KISAN and what is the rice price?",
		"How can I improve my farm profit this season?",
		"hello",
	}
	for _, q := range queries {
		a, err := o.Run(context.Background(), models.Query{Text: q})
		require.NoError(t, err, q)
		assert.GreaterOrEqual(t, a.Confidence, 0.0, q)
		assert.LessOrEqual(t, a.Confidence, 1.0, q)
		assert.NotEmpty(t, strings.TrimSpace(a.Text), q)
	}
}

func TestFiltersFor(t *testing.T) {
	f := FiltersFor(models.Query{Text: "paddy tillering stage fertilizer", Location: "Mandya"})
	assert.Equal(t, "rice", f.Crop)
	assert.Equal(t, "Mandya", f.Geo)

	f = FiltersFor(models.Query{Text: "rain tomorrow?", Location: "12.52, 76.89", Crop: "Cotton"})
	assert.Equal(t, "cotton", f.Crop)
	assert.Empty(t, f.Geo)
}

func newSessionStore(t *testing.T) (*sessions.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return sessions.NewStore(rdb, sessions.Config{}, logger.NewTestLogger(t)), mr
}

func TestRunRoutesFollowUpReplyToAskingModule(t *testing.T) {
	store, _ := newSessionStore(t)
	log := logger.NewTestLogger(t)
	o := newOrchestrator(t, fixture{sessions: store},
		finance.New(finance.DefaultPrices(), finance.DefaultFollowUpPolicy(), log),
		crop.New(log),
		general.New(),
	)
	ctx := context.Background()

	first, err := o.Run(ctx, models.Query{Text: "How can I improve my farm profit?", SessionID: "farmer-9"})
	require.NoError(t, err)
	assert.Equal(t, []models.ModuleID{models.ModuleFinance}, first.ModulesConsulted)
	assert.Contains(t, first.Text, "How many acres")

	pending, err := store.LoadContext(ctx, "farmer-9")
	require.NoError(t, err)
	assert.Equal(t, models.ModuleFinance, pending.Pending)

	second, err := o.Run(ctx, models.Query{Text: "I have 5 acres and spend 3000 on seeds", SessionID: "farmer-9"})
	require.NoError(t, err)
	assert.Equal(t, []models.ModuleID{models.ModuleFinance}, second.ModulesConsulted)
	assert.Contains(t, second.Trace, "follow-up:finance")
	assert.NotContains(t, second.Text, "How many acres")

	third, err := o.Run(ctx, models.Query{Text: "fertilizer costs 20000", SessionID: "farmer-9"})
	require.NoError(t, err)
	assert.Contains(t, third.ModulesConsulted, models.ModuleFinance)
	assert.Contains(t, third.Text, "farm size 5.0 acres")
	assert.Contains(t, third.Text, "₹23000")

	done, err := store.LoadContext(ctx, "farmer-9")
	require.NoError(t, err)
	assert.Empty(t, done.Pending)

	// the same reply in a fresh session has nothing to answer
	other, err := o.Run(ctx, models.Query{Text: "I have 5 acres and spend 3000 on seeds", SessionID: "farmer-10"})
	require.NoError(t, err)
	assert.Equal(t, []models.ModuleID{models.ModuleGeneral}, other.ModulesConsulted)
	assert.NotContains(t, other.Trace, "follow-up:finance")
}

func TestRunWithoutSessionStoreIsStateless(t *testing.T) {
	log := logger.NewTestLogger(t)
	o := newOrchestrator(t, fixture{},
		finance.New(finance.DefaultPrices(), finance.DefaultFollowUpPolicy(), log),
		general.New(),
	)
	ctx := context.Background()

	_, err := o.Run(ctx, models.Query{Text: "How can I improve my farm profit?", SessionID: "farmer-9"})
	require.NoError(t, err)
	a, err := o.Run(ctx, models.Query{Text: "I have 5 acres and spend 3000 on seeds", SessionID: "farmer-9"})
	require.NoError(t, err)
	assert.Equal(t, []models.ModuleID{models.ModuleGeneral}, a.ModulesConsulted)
}

func TestRunSurvivesSessionStoreOutage(t *testing.T) {
	store, mr := newSessionStore(t)
	o := newOrchestrator(t, fixture{sessions: store},
		finance.New(finance.DefaultPrices(), finance.DefaultFollowUpPolicy(), logger.NewTestLogger(t)))
	mr.Close()

	a, err := o.Run(context.Background(), models.Query{Text: "What is the current market price of wheat?", SessionID: "s-1"})
	require.NoError(t, err)
	assert.Contains(t, a.Text, "₹2100")
	assert.NotContains(t, a.Trace, traceErrored)
}

func TestRouteFollowUp(t *testing.T) {
	generalOnly := models.IntentDecision{RequiredModules: []models.ModuleID{models.ModuleGeneral}, PrimaryIntent: models.ModuleGeneral}
	cropOnly := models.IntentDecision{RequiredModules: []models.ModuleID{models.ModuleCrop}, PrimaryIntent: models.ModuleCrop}

	d, ok := RouteFollowUp(generalOnly, models.ModuleFinance, "I have 5 acres and spend 3000 on seeds and another 20000 on fertilizer every single year")
	require.True(t, ok)
	assert.Equal(t, []models.ModuleID{models.ModuleFinance}, d.RequiredModules)
	assert.Equal(t, models.ModuleFinance, d.PrimaryIntent)

	d, ok = RouteFollowUp(cropOnly, models.ModuleFinance, "fertilizer costs 20000")
	require.True(t, ok)
	assert.Equal(t, []models.ModuleID{models.ModuleCrop, models.ModuleFinance}, d.RequiredModules)
	assert.Equal(t, models.ModuleFinance, d.PrimaryIntent)

	_, ok = RouteFollowUp(cropOnly, models.ModuleFinance, "which fertilizer should I use for wheat sown in early november on black cotton soil near Indore")
	assert.False(t, ok)

	_, ok = RouteFollowUp(generalOnly, "", "5 acres")
	assert.False(t, ok)

	financeOnly := models.IntentDecision{RequiredModules: []models.ModuleID{models.ModuleFinance}}
	_, ok = RouteFollowUp(financeOnly, models.ModuleFinance, "5 acres")
	assert.False(t, ok)
}
